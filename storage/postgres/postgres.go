// Package postgres stores profiles and history as JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/profile"
)

// Store persists companion state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id TEXT PRIMARY KEY,
			profile JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_histories (
			user_id TEXT PRIMARY KEY,
			turns JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) LoadProfile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT profile FROM user_profiles WHERE user_id=$1`, userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var p profile.UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.Normalize()
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID string, p *profile.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, profile, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = now()`,
		userID, data,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) LoadHistory(ctx context.Context, userID string) ([]core.Turn, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT turns FROM conversation_histories WHERE user_id=$1`, userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []core.Turn{}, nil
	}
	if err != nil {
		return []core.Turn{}, fmt.Errorf("load history: %w", err)
	}

	turns := []core.Turn{}
	if err := json.Unmarshal(raw, &turns); err != nil {
		return []core.Turn{}, fmt.Errorf("decode history: %w", err)
	}
	return turns, nil
}

func (s *Store) SaveHistory(ctx context.Context, userID string, turns []core.Turn) error {
	if turns == nil {
		turns = []core.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_histories (user_id, turns, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET turns = EXCLUDED.turns, updated_at = now()`,
		userID, data,
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Delete removes everything stored for the user.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_profiles WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_histories WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
