package app

import (
	"errors"
	"fmt"
	"time"
)

// Cache drivers selectable from the command line.
const (
	CacheFile   = "file"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Root string // installation directory
	Addr string // HTTP listen address

	LogFormat string
	LogLevel  string

	Cache    string
	RedisURL string

	ShutdownTimeout time.Duration
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		return nil, errors.New("Root is a required configuration field and cannot be empty")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Cache == "" {
		cfg.Cache = CacheFile
	}
	switch cfg.Cache {
	case CacheFile, CacheMemory:
	case CacheRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("a redis URL is required when the redis cache is selected")
		}
	default:
		return nil, fmt.Errorf("unknown cache driver %q: must be 'file', 'redis' or 'memory'", cfg.Cache)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &cfg, nil
}
