package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Shard binds a set of symbols to the local address their connection is
// dialed from. Venues rate limit per IP, so large symbol sets are split.
type Shard struct {
	IP      string   `yaml:"ip"`
	Symbols []string `yaml:"symbols"`
}

type Shards struct {
	Shards []Shard `yaml:"shards"`
}

// LoadShards reads a shard file. Shards without symbols are dropped.
func LoadShards(path string) (*Shards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shards file: %w", err)
	}
	var cfg Shards
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shards file: %w", err)
	}
	kept := cfg.Shards[:0]
	for _, s := range cfg.Shards {
		if len(s.Symbols) > 0 {
			kept = append(kept, s)
		}
	}
	cfg.Shards = kept
	return &cfg, nil
}

// SourceShards returns the shards the source should open. Without a shard
// file every symbol goes on one connection from the default address; in a
// production-like environment a configured but unreadable shard file is an
// error rather than a silent fallback.
func (c *Config) SourceShards() ([]Shard, error) {
	if c.Source.ShardsFile == "" {
		return []Shard{{Symbols: c.Source.Symbols}}, nil
	}
	shards, err := LoadShards(c.Source.ShardsFile)
	if err != nil {
		if IsProductionLike(AppEnvironment()) {
			return nil, err
		}
		return []Shard{{Symbols: c.Source.Symbols}}, nil
	}
	if len(shards.Shards) == 0 {
		return nil, fmt.Errorf("shards file %s has no symbols", c.Source.ShardsFile)
	}
	return shards.Shards, nil
}
