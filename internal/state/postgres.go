package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS player_state (
	name       TEXT PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	selectState = `SELECT snapshot FROM player_state WHERE name = $1`
	upsertState = `INSERT INTO player_state (name, snapshot, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`

	defaultRow = "default"
)

// DB is the subset of a pgx pool the store needs
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the snapshot as one JSONB row in player_state
type PostgresStore struct {
	db    DB
	close func()
}

// NewPostgresStore creates the table if needed
func NewPostgresStore(ctx context.Context, db DB) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create player_state: %w", err)
	}
	return &PostgresStore{db: db, close: func() {}}, nil
}

// DialPostgres opens a pool for dsn
func DialPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, selectState, defaultRow).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("select player_state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse player_state: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	now := time.Now()
	data, err := json.Marshal(Stamp(snap, now))
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if _, err := s.db.Exec(ctx, upsertState, defaultRow, data, now); err != nil {
		return fmt.Errorf("upsert player_state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.close()
	return nil
}
