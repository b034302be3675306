package heartbeat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	_ "modernc.org/sqlite"
)

// MemoryStore keeps the latest heartbeat per agent in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]*Heartbeat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: make(map[string]*Heartbeat)}
}

func (s *MemoryStore) Record(_ context.Context, hb *Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[hb.AgentID] = hb
	return nil
}

func (s *MemoryStore) Last(_ context.Context, agentID string) (*Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[agentID], nil
}

// RedisStore stores the latest heartbeat as a JSON value with a TTL just
// past the liveness window, so stale entries evict themselves.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func heartbeatKey(agentID string) string {
	return fmt.Sprintf("heartbeat:%s", agentID)
}

func (s *RedisStore) Record(ctx context.Context, hb *Heartbeat) error {
	payload, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("heartbeat: marshal: %w", err)
	}
	if err := s.client.Set(ctx, heartbeatKey(hb.AgentID), payload, DefaultWindow+time.Minute).Err(); err != nil {
		return fmt.Errorf("heartbeat: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Last(ctx context.Context, agentID string) (*Heartbeat, error) {
	raw, err := s.client.Get(ctx, heartbeatKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("heartbeat: redis get: %w", err)
	}
	var hb Heartbeat
	if err := json.Unmarshal(raw, &hb); err != nil {
		return nil, fmt.Errorf("heartbeat: unmarshal: %w", err)
	}
	return &hb, nil
}

// SQLiteStore keeps one row per agent, replaced on every beat.
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
	CREATE TABLE IF NOT EXISTS heartbeats (
		agent_id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		status JSON
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Record(ctx context.Context, hb *Heartbeat) error {
	statusJSON, err := json.Marshal(hb.Status)
	if err != nil {
		return fmt.Errorf("heartbeat: marshal status: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO heartbeats (agent_id, timestamp, status) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET timestamp = excluded.timestamp, status = excluded.status`,
		hb.AgentID, hb.Timestamp.UnixMilli(), string(statusJSON),
	)
	if err != nil {
		return fmt.Errorf("heartbeat: upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Last(ctx context.Context, agentID string) (*Heartbeat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT timestamp, status FROM heartbeats WHERE agent_id = ?`, agentID)

	var tsMillis int64
	var statusJSON sql.NullString
	if err := row.Scan(&tsMillis, &statusJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("heartbeat: query: %w", err)
	}

	hb := &Heartbeat{AgentID: agentID, Timestamp: time.UnixMilli(tsMillis)}
	if statusJSON.Valid && statusJSON.String != "" {
		if err := json.Unmarshal([]byte(statusJSON.String), &hb.Status); err != nil {
			return nil, fmt.Errorf("heartbeat: decode status: %w", err)
		}
	}
	return hb, nil
}
