package nonce

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists nonces in a single table. Consumption is a single
// conditional UPDATE, so atomicity comes from the database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS nonces (
		value TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		issued_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		consumed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_nonces_expires ON nonces(expires_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Issue(ctx context.Context, agentID string) (*Nonce, error) {
	value, err := NewValue()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	n := &Nonce{
		Value:     value,
		AgentID:   agentID,
		IssuedAt:  now,
		ExpiresAt: now.Add(TTL),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nonces (value, agent_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		n.Value, n.AgentID, n.IssuedAt.UnixMilli(), n.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("nonce: insert: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) TryConsume(ctx context.Context, agentID, value string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nonces SET consumed_at = ?
		 WHERE value = ? AND agent_id = ? AND consumed_at IS NULL AND expires_at > ?`,
		now.UnixMilli(), value, agentID, now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("nonce: consume: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("nonce: rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("nonce: purge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
