package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cryptonorm/logger"
	"cryptonorm/models"
)

// FileSink appends newline-delimited JSON to
// {dataDir}/{msg_type}/{exchange}/{market_type}/{exchange}.{market_type}.{msg_type}.
type FileSink struct {
	dataDir string

	mu    sync.Mutex
	files map[string]*appendFile
	log   *logger.Log
}

type appendFile struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileSink(dataDir string) (*FileSink, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileSink{
		dataDir: dataDir,
		files:   make(map[string]*appendFile),
		log:     logger.GetLogger(),
	}, nil
}

func (s *FileSink) Name() string { return "file" }

// Path returns the file a route is written to.
func (s *FileSink) Path(r models.Route) string {
	name := fmt.Sprintf("%s.%s.%s", r.Exchange, r.MarketType, r.MsgType)
	return filepath.Join(s.dataDir, string(r.MsgType), r.Exchange, string(r.MarketType), name)
}

func (s *FileSink) open(path string) (*appendFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if af, ok := s.files[path]; ok {
		return af, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	af := &appendFile{f: f}
	s.files[path] = af
	s.log.WithComponent("file_sink").WithFields(logger.Fields{"path": path}).Info("opened output file")
	return af, nil
}

func (s *FileSink) Write(_ context.Context, msg models.Message, line []byte) error {
	af, err := s.open(s.Path(msg.Route()))
	if err != nil {
		return &SinkError{Sink: s.Name(), Err: err}
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')

	af.mu.Lock()
	_, err = af.f.Write(buf)
	af.mu.Unlock()
	if err != nil {
		return &SinkError{Sink: s.Name(), Err: err}
	}
	logger.RecordFlow("file", len(buf))
	return nil
}

// Close syncs and closes every open file. Errors are logged and the first one
// is returned.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for path, af := range s.files {
		af.mu.Lock()
		err := af.f.Sync()
		if cerr := af.f.Close(); err == nil {
			err = cerr
		}
		af.mu.Unlock()
		if err != nil {
			s.log.WithComponent("file_sink").WithError(err).WithFields(logger.Fields{"path": path}).Error("failed to close output file")
			if first == nil {
				first = err
			}
		}
		delete(s.files, path)
	}
	return first
}
