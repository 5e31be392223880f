package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Snapshots older than this are eligible for cleanup.
const snapshotTTL = 60 * 24 * time.Hour

const schemaDDL = `
CREATE TABLE IF NOT EXISTS game_snapshots (
    game_id    TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is the Postgres-backed Gateway.
type Store struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// EnsureSchema creates the snapshot table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaDDL)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Store) Load(ctx context.Context, key string) (string, error) {
	var state string
	err := s.Pool.QueryRow(
		ctx,
		`SELECT state FROM game_snapshots WHERE game_id = $1`,
		key,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, key, state string) error {
	_, err := s.Pool.Exec(
		ctx,
		`INSERT INTO game_snapshots (game_id, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (game_id)
		 DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		key, state,
	)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.Pool.Exec(
		ctx,
		`DELETE FROM game_snapshots WHERE game_id = $1`,
		key,
	)
	return err
}

// Cleanup drops snapshots that have not been touched within the TTL.
// The original kept sessions for 60 days; the table equivalent is a
// periodic sweep.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(
		ctx,
		`DELETE FROM game_snapshots WHERE updated_at < now() - make_interval(secs => $1)`,
		snapshotTTL.Seconds(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
