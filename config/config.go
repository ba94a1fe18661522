package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration read when -config is not given.
const DefaultPath = "config/config.yml"

var envConfigPaths = map[string]string{
	EnvironmentProduction: "config/config.production.yml",
	EnvironmentStaging:    "config/config.staging.yml",
}

type Config struct {
	Cryptonorm CryptonormConfig `yaml:"cryptonorm"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Source     SourceConfig     `yaml:"source"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Output     OutputConfig     `yaml:"output"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type CryptonormConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer int `yaml:"raw_buffer"`
}

type ProcessorConfig struct {
	Workers        int           `yaml:"workers"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// SourceConfig selects where frames come from. ReplayFile wins over the
// websocket when set.
type SourceConfig struct {
	URL            string        `yaml:"url"`
	Subscriptions  []string      `yaml:"subscriptions"`
	Symbols        []string      `yaml:"symbols"`
	ShardsFile     string        `yaml:"shards_file"`
	ReplayFile     string        `yaml:"replay_file"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// MetadataConfig controls the startup lookups behind pair normalization and
// contract values.
type MetadataConfig struct {
	FetchTimeout          time.Duration                `yaml:"fetch_timeout"`
	Live                  bool                         `yaml:"live"`
	BitgetContractsURL    string                       `yaml:"bitget_contracts_url"`
	KucoinFuturesEndpoint string                       `yaml:"kucoin_futures_endpoint"`
	OKXInstrumentsURL     string                       `yaml:"okx_instruments_url"`
	BinanceExchangeInfo   bool                         `yaml:"binance_exchange_info"`
	PairOverrides         map[string]map[string]string `yaml:"pair_overrides"`
}

type OutputConfig struct {
	DataDir       string      `yaml:"data_dir"`
	RedisURL      string      `yaml:"redis_url"`
	ChannelPrefix string      `yaml:"channel_prefix"`
	Kafka         KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Prefix          string        `yaml:"prefix"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxRecords      int           `yaml:"max_records"`
	CatalogDir      string        `yaml:"catalog_dir"`
}

type MetricsConfig struct {
	Addr       string           `yaml:"addr"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
	// ReportInterval enables the periodic flow and resource report.
	ReportInterval time.Duration `yaml:"report_interval"`
}

// ResolvePath swaps the default path for the APP_ENV specific file.
func ResolvePath(path string) string {
	return resolveEnvSpecificPath(path, DefaultPath, envConfigPaths)
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels:  ChannelsConfig{RawBuffer: 10000},
		Processor: ProcessorConfig{Workers: 1, ReportInterval: 30 * time.Second},
		Metadata:  MetadataConfig{FetchTimeout: 10 * time.Second, Live: true},
		Output:    OutputConfig{ChannelPrefix: "cryptonorm"},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		config.Output.DataDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Output.RedisURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Cryptonorm.Name == "" {
		return fmt.Errorf("cryptonorm.name is required")
	}
	if cfg.Cryptonorm.Version == "" {
		return fmt.Errorf("cryptonorm.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Processor.Workers <= 0 {
		return fmt.Errorf("processor.workers must be greater than 0")
	}

	// Kafka and the S3 archive are extras; one of the two primary sinks
	// must always be present.
	if cfg.Output.DataDir == "" && cfg.Output.RedisURL == "" {
		return fmt.Errorf("output.data_dir or output.redis_url is required")
	}
	if cfg.Output.RedisURL != "" && !strings.HasPrefix(cfg.Output.RedisURL, "redis://") &&
		!strings.HasPrefix(cfg.Output.RedisURL, "rediss://") && !strings.HasPrefix(cfg.Output.RedisURL, "unix://") {
		return fmt.Errorf("output.redis_url '%s' must use redis://, rediss:// or unix://", cfg.Output.RedisURL)
	}
	if cfg.Output.Kafka.Enabled && len(cfg.Output.Kafka.Brokers) == 0 {
		return fmt.Errorf("output.kafka.brokers is required when kafka is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when cloudwatch is enabled")
	}
	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
