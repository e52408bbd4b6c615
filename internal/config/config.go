package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

const (
	MirrorNone  = ""
	MirrorSQL   = "sql"
	MirrorRedis = "redis"
)

// Config holds everything cmd/server needs to start.
type Config struct {
	HTTPAddr string        `json:"http_addr"`
	GRPCAddr string        `json:"grpc_addr"`
	LogLevel string        `json:"log_level"`
	Storage  StorageConfig `json:"storage"`
	Mirror   MirrorConfig  `json:"mirror"`
	Redis    RedisConfig   `json:"redis"`
}

type StorageConfig struct {
	Path            string `json:"path"`
	BucketSizePages uint16 `json:"bucket_size_pages,omitempty"`
	MaxPages        uint64 `json:"max_pages,omitempty"`
}

// MirrorConfig selects the read replica fed by the change feed. Backend is
// MirrorNone, MirrorSQL or MirrorRedis; Driver is "mysql" or "sqlite".
type MirrorConfig struct {
	Backend   string `json:"backend"`
	Driver    string `json:"driver,omitempty"`
	DSN       string `json:"dsn,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

// RedisConfig enables the idempotency cache (and the redis mirror) when Addr
// is set.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	PoolSize int    `json:"pool_size,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		LogLevel: "info",
		Storage: StorageConfig{
			Path:            "ledger.mem",
			BucketSizePages: 128,
		},
		Mirror: MirrorConfig{
			Driver:    "mysql",
			Workers:   4,
			QueueSize: 10000,
		},
		Redis: RedisConfig{
			PoolSize: 100,
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.HTTPAddr != "" {
		c.HTTPAddr = source.HTTPAddr
	}
	if source.GRPCAddr != "" {
		c.GRPCAddr = source.GRPCAddr
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}

	if source.Storage.Path != "" {
		c.Storage.Path = source.Storage.Path
	}
	if source.Storage.BucketSizePages > 0 {
		c.Storage.BucketSizePages = source.Storage.BucketSizePages
	}
	if source.Storage.MaxPages > 0 {
		c.Storage.MaxPages = source.Storage.MaxPages
	}

	if source.Mirror.Backend != "" {
		c.Mirror.Backend = source.Mirror.Backend
	}
	if source.Mirror.Driver != "" {
		c.Mirror.Driver = source.Mirror.Driver
	}
	if source.Mirror.DSN != "" {
		c.Mirror.DSN = source.Mirror.DSN
	}
	if source.Mirror.Workers > 0 {
		c.Mirror.Workers = source.Mirror.Workers
	}
	if source.Mirror.QueueSize > 0 {
		c.Mirror.QueueSize = source.Mirror.QueueSize
	}

	if source.Redis.Addr != "" {
		c.Redis.Addr = source.Redis.Addr
	}
	if source.Redis.PoolSize > 0 {
		c.Redis.PoolSize = source.Redis.PoolSize
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// ApplyEnv overrides c with the LEDGER_*, MYSQL_DSN and REDIS_ADDR variables
// that getenv reports as set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var env Config
	env.HTTPAddr = getenv("LEDGER_HTTP_ADDR")
	env.GRPCAddr = getenv("LEDGER_GRPC_ADDR")
	env.LogLevel = getenv("LEDGER_LOG_LEVEL")
	env.Storage.Path = getenv("LEDGER_DATA_FILE")
	env.Mirror.Backend = getenv("LEDGER_MIRROR")
	env.Mirror.DSN = getenv("MYSQL_DSN")
	env.Redis.Addr = getenv("REDIS_ADDR")

	if v := getenv("LEDGER_MIRROR_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEDGER_MIRROR_WORKERS: %w", err)
		}
		env.Mirror.Workers = n
	}

	c.Merge(&env)
	return c.Validate()
}

func (c *Config) Validate() error {
	switch c.Mirror.Backend {
	case MirrorNone, MirrorRedis:
	case MirrorSQL:
		if c.Mirror.Driver != "mysql" && c.Mirror.Driver != "sqlite" {
			return fmt.Errorf("unsupported mirror driver %q", c.Mirror.Driver)
		}
		if c.Mirror.DSN == "" {
			return fmt.Errorf("sql mirror needs a dsn")
		}
	default:
		return fmt.Errorf("unknown mirror backend %q", c.Mirror.Backend)
	}
	if c.Mirror.Backend == MirrorRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis mirror needs redis.addr")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is empty")
	}
	return nil
}
