// Package heartbeat records periodic liveness proofs from running agent
// processes and gates writes on their freshness. A stolen key alone is not
// enough to write: the holder must also keep a process heartbeating.
package heartbeat

import (
	"context"
	"fmt"
	"time"
)

// DefaultWindow is the freshness window a write must fall inside.
const DefaultWindow = 2 * time.Minute

// Heartbeat is one liveness proof from an agent process.
type Heartbeat struct {
	AgentID   string         `json:"agent_id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    map[string]any `json:"status,omitempty"`
}

// Store persists the latest heartbeat per agent.
type Store interface {
	Record(ctx context.Context, hb *Heartbeat) error
	// Last returns the most recent heartbeat, or nil when none exists.
	Last(ctx context.Context, agentID string) (*Heartbeat, error)
}

// Gate answers the liveness question against a Store.
type Gate struct {
	Store  Store
	Window time.Duration
}

func NewGate(store Store) *Gate {
	return &Gate{Store: store, Window: DefaultWindow}
}

// IsLive reports whether the agent heartbeated within the window of now.
func (g *Gate) IsLive(ctx context.Context, agentID string, now time.Time) (bool, error) {
	hb, err := g.Store.Last(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("heartbeat: lookup: %w", err)
	}
	if hb == nil {
		return false, nil
	}
	window := g.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return now.Sub(hb.Timestamp) <= window, nil
}
