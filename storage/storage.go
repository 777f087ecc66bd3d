// Package storage opens the persistence backend for profiles and
// conversation history.
//
// Four drivers are available:
//
//   - "file": JSON documents under a directory, one folder per user
//   - "memory": process-local maps, lost on restart
//   - "redis": JSON values in Redis
//   - "postgres": JSONB rows in PostgreSQL
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/becomeliminal/nim-companion/history"
	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/profile"
	"github.com/becomeliminal/nim-companion/storage/file"
	"github.com/becomeliminal/nim-companion/storage/inmemory"
	"github.com/becomeliminal/nim-companion/storage/postgres"
	"github.com/becomeliminal/nim-companion/storage/redis"
)

// ErrUnknownDriver is returned by Open for an unrecognised driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Driver names.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Backend stores both profiles and history for every user.
type Backend interface {
	profile.Store
	history.Store
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string
	Dir         string
	RedisURL    string
	DatabaseURL string
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "data"
		}
		applog.Info("[STORAGE] Using file backend", "dir", dir)
		s, err := file.New(dir)
		if err != nil {
			return nil, err
		}
		return s, nil

	case DriverMemory:
		applog.Info("[STORAGE] Using in-memory backend")
		return inmemory.New(), nil

	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis driver: REDIS_URL is required")
		}
		applog.Info("[STORAGE] Using redis backend")
		s, err := redis.New(ctx, redis.Config{URL: cfg.RedisURL})
		if err != nil {
			return nil, err
		}
		return s, nil

	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver: DATABASE_URL is required")
		}
		applog.Info("[STORAGE] Using postgres backend")
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
