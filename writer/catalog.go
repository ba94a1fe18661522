package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"cryptonorm/models"
)

var catalogJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// DataFile describes one archived parquet object.
type DataFile struct {
	Path        string            `json:"path"`
	FileSize    int64             `json:"file_size_in_bytes"`
	RecordCount int64             `json:"record_count"`
	Partition   map[string]string `json:"partition"`
	Timestamp   time.Time         `json:"-"`
}

type manifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

type snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	Manifest    string `json:"manifest-list"`
}

// TableMetadata is the Iceberg-style metadata.json kept per route.
type TableMetadata struct {
	FormatVersion     int        `json:"format-version"`
	TableUUID         string     `json:"table-uuid"`
	Location          string     `json:"location"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	Snapshots         []snapshot `json:"snapshots"`
}

type catalogTable struct {
	uuid      string
	snapshots []snapshot
}

// Catalog keeps a local Iceberg-style table per route so query engines can
// find the objects the archive sink uploaded. Snapshots live in memory and
// are rewritten in full on every add.
type Catalog struct {
	dir    string
	mu     sync.Mutex
	tables map[string]*catalogTable
}

func NewCatalog(dir string) (*Catalog, error) {
	if dir == "" {
		return nil, fmt.Errorf("catalog directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Catalog{dir: dir, tables: make(map[string]*catalogTable)}, nil
}

// TableName is exchange_market_type_msg_type.
func TableName(route models.Route) string {
	return strings.Join([]string{route.Exchange, string(route.MarketType), string(route.MsgType)}, "_")
}

func (c *Catalog) tablePath(name string) string {
	return filepath.Join(c.dir, name)
}

// Add writes a manifest for df, appends a snapshot to the route's table and
// refreshes both metadata.json and the catalog entry.
func (c *Catalog) Add(route models.Route, df DataFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := TableName(route)
	table, ok := c.tables[name]
	if !ok {
		table = &catalogTable{uuid: uuid.NewString()}
		c.tables[name] = table
	}

	snapID := df.Timestamp.UnixNano()
	if n := len(table.snapshots); n > 0 && snapID <= table.snapshots[n-1].SnapshotID {
		snapID = table.snapshots[n-1].SnapshotID + 1
	}
	manifest := fmt.Sprintf("manifest-%d.json", snapID)
	if err := c.writeJSON(filepath.Join(c.tablePath(name), "metadata", manifest), []manifestEntry{{Status: 1, DataFile: df}}); err != nil {
		return err
	}
	table.snapshots = append(table.snapshots, snapshot{
		SnapshotID:  snapID,
		TimestampMs: df.Timestamp.UnixMilli(),
		Manifest:    manifest,
	})

	metaPath := filepath.Join(c.tablePath(name), "metadata", "metadata.json")
	if err := c.writeJSON(metaPath, TableMetadata{
		FormatVersion:     2,
		TableUUID:         table.uuid,
		Location:          c.tablePath(name),
		CurrentSnapshotID: snapID,
		Snapshots:         table.snapshots,
	}); err != nil {
		return err
	}
	return c.writeJSON(filepath.Join(c.dir, name+".json"), map[string]string{
		"name":              name,
		"metadata_location": metaPath,
	})
}

func (c *Catalog) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := catalogJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
