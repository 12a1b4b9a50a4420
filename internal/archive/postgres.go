package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const turnsSchema = `
CREATE TABLE IF NOT EXISTS turns (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	utterance TEXT NOT NULL,
	reply TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_session_idx ON turns (session_id, created_at);
`

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn and ensures the turns
// table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to archive database: %w", err)
	}
	if _, err := pool.Exec(ctx, turnsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure turns schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements [Store].
func (p *PostgresStore) Append(ctx context.Context, turn Turn) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO turns (session_id, utterance, reply, created_at) VALUES ($1, $2, $3, $4)`,
		turn.SessionID, turn.Utterance, turn.Reply, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (p *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT session_id, utterance, reply, created_at
		 FROM turns WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.SessionID, &t.Utterance, &t.Reply, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Ping implements [Store].
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements [Store].
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
