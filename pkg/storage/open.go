package storage

import (
	"context"
	"fmt"
	"time"
)

// Driver names accepted by Open
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Config selects and configures the persistence driver
type Config struct {
	Driver   string         `yaml:"driver"`
	DataDir  string         `yaml:"dataDir"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// DefaultConfig returns a bolt store under ./modelhost-data
func DefaultConfig() Config {
	return Config{
		Driver:  DriverBolt,
		DataDir: "./modelhost-data",
		Postgres: PostgresConfig{
			PingTimeout:  2 * time.Second,
			MaxOpenConns: 10,
		},
	}
}

// Open returns the Store for the configured driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverBolt, "":
		return NewBoltStore(cfg.DataDir)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
