// Package nonce issues and consumes the single-use, time-boxed tokens that
// make every signed write provably fresh. A nonce is usable iff it exists,
// is owned by the requesting agent, has not been consumed, and has not
// expired; consumption is atomic so two writes can never spend the same one.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TTL is the fixed validity window of an issued nonce.
const TTL = 2 * time.Minute

// valueBytes is the entropy of a nonce value (32 bytes, hex encoded).
const valueBytes = 32

// Nonce is a single-use anti-replay token bound to one agent.
type Nonce struct {
	Value      string     `json:"nonce"`
	AgentID    string     `json:"-"`
	IssuedAt   time.Time  `json:"-"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ConsumedAt *time.Time `json:"-"`
}

// Store is the persistence boundary of the nonce service. Implementations
// must make TryConsume atomic against concurrent consumption of the same
// value: at most one caller may ever observe true.
type Store interface {
	// Issue generates and persists a fresh nonce for the agent.
	Issue(ctx context.Context, agentID string) (*Nonce, error)

	// TryConsume atomically checks exists/unconsumed/unexpired/owner and
	// marks the nonce consumed. Returns false when any check fails.
	TryConsume(ctx context.Context, agentID, value string, now time.Time) (bool, error)

	// PurgeExpired removes nonces past their expiry, returning the count.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// NewValue returns a cryptographically random nonce value.
func NewValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("nonce: entropy unavailable: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
