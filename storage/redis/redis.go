// Package redis stores profiles and history as JSON strings in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/profile"
)

// Config configures the Redis backend.
type Config struct {
	URL string
	// Client, when set, is used instead of dialing URL.
	Client    *redis.Client
	KeyPrefix string // default "companion:"
	// TTL expires idle users; zero keeps keys forever.
	TTL time.Duration
}

// Store keeps companion:profile:<user> and companion:history:<user>.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	owned     bool
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "companion:"
	}

	client, owned := cfg.Client, false
	if client == nil {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client, owned = redis.NewClient(opt), true
	}

	if err := client.Ping(ctx).Err(); err != nil {
		if owned {
			client.Close()
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL, owned: owned}, nil
}

func (s *Store) profileKey(userID string) string { return s.keyPrefix + "profile:" + userID }
func (s *Store) historyKey(userID string) string { return s.keyPrefix + "history:" + userID }

func (s *Store) LoadProfile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	var p profile.UserProfile
	found, err := s.get(ctx, s.profileKey(userID), &p)
	if err != nil || !found {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID string, p *profile.UserProfile) error {
	return s.set(ctx, s.profileKey(userID), p)
}

func (s *Store) LoadHistory(ctx context.Context, userID string) ([]core.Turn, error) {
	turns := []core.Turn{}
	if _, err := s.get(ctx, s.historyKey(userID), &turns); err != nil {
		return []core.Turn{}, err
	}
	return turns, nil
}

func (s *Store) SaveHistory(ctx context.Context, userID string, turns []core.Turn) error {
	if turns == nil {
		turns = []core.Turn{}
	}
	return s.set(ctx, s.historyKey(userID), turns)
}

// Delete removes everything stored for the user.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.profileKey(userID), s.historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}

// Close closes the client if New dialed it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		applog.Debug("[STORAGE/Redis] Key not found", "key", key)
		return false, nil
	}
	if err != nil {
		applog.Error("[STORAGE/Redis] GET failed", "key", key, "error", err)
		return false, fmt.Errorf("redis GET: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		applog.Warn("[STORAGE/Redis] Failed to decode value", "key", key, "error", err)
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		applog.Error("[STORAGE/Redis] SET failed", "key", key, "error", err)
		return fmt.Errorf("redis SET: %w", err)
	}
	applog.Debug("[STORAGE/Redis] Saved", "key", key, "bytes", len(data))
	return nil
}
