package heartbeat

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	sqlite, err := NewSQLiteStore(db)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestGate_IsLive(t *testing.T) {
	now := time.Now()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			gate := NewGate(store)

			// No heartbeat at all.
			live, err := gate.IsLive(ctx, "agent-1", now)
			require.NoError(t, err)
			require.False(t, live)

			// Fresh heartbeat.
			require.NoError(t, store.Record(ctx, &Heartbeat{
				AgentID:   "agent-1",
				Timestamp: now.Add(-30 * time.Second),
				Status:    map[string]any{"cycles": 3},
			}))
			live, err = gate.IsLive(ctx, "agent-1", now)
			require.NoError(t, err)
			require.True(t, live)

			// Stale heartbeat.
			require.NoError(t, store.Record(ctx, &Heartbeat{
				AgentID:   "agent-1",
				Timestamp: now.Add(-DefaultWindow - time.Second),
			}))
			live, err = gate.IsLive(ctx, "agent-1", now)
			require.NoError(t, err)
			require.False(t, live)
		})
	}
}

func TestStore_LatestWins(t *testing.T) {
	now := time.Now()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Record(ctx, &Heartbeat{AgentID: "agent-1", Timestamp: now.Add(-time.Hour)}))
			require.NoError(t, store.Record(ctx, &Heartbeat{AgentID: "agent-1", Timestamp: now}))

			hb, err := store.Last(ctx, "agent-1")
			require.NoError(t, err)
			require.NotNil(t, hb)
			require.WithinDuration(t, now, hb.Timestamp, time.Second)
		})
	}
}
