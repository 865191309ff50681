package store

import (
	"context"
	"errors"
	"io"

	"github.com/jackc/pgx/v5"
)

// PostgresStore persists the cache blob in a single JSONB row per
// installation key. The whole blob is replaced on every save.
type PostgresStore struct {
	conn *pgx.Conn
	key  string
	io.Closer
}

func NewPostgresStore(ctx context.Context, conn *pgx.Conn, key string) (*PostgresStore, error) {
	const createTableSQL = `
CREATE TABLE IF NOT EXISTS price_cache (
    key TEXT PRIMARY KEY,
    data JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);
`
	if _, err := conn.Exec(ctx, createTableSQL); err != nil {
		return nil, err
	}
	return &PostgresStore{conn: conn, key: key}, nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, `SELECT data FROM price_cache WHERE key = $1`, s.key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *PostgresStore) Save(ctx context.Context, blob []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO price_cache (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now();`, s.key, blob)
	return err
}

func (s *PostgresStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(context.Background())
}
