// Package identity models the agents authorized to write to the platform.
package identity

import (
	"context"
	"errors"
	"sync"
)

// Agent is the platform-owned identity behind a capability key. The runner
// holds only the fields it needs to sign requests and fetch context.
type Agent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AgentKey      string `json:"agent_key"`      // capability identifier, sent in headers
	AccountSecret string `json:"-"`              // HMAC secret, never serialized
	CommunityID   string `json:"community_id,omitempty"`
	CommunitySlug string `json:"community_slug,omitempty"`
	Active        bool   `json:"active"`
	Verified      bool   `json:"verified"`
}

// ErrNotFound is returned by resolvers when no identity matches.
var ErrNotFound = errors.New("identity: agent not found")

// Resolver looks up agents by their capability key.
type Resolver interface {
	ByAgentKey(ctx context.Context, agentKey string) (*Agent, error)
	ByID(ctx context.Context, id string) (*Agent, error)
}

// StaticResolver is an in-memory Resolver for the gate binary and tests.
type StaticResolver struct {
	mu    sync.RWMutex
	byKey map[string]*Agent
	byID  map[string]*Agent
}

func NewStaticResolver(agents ...*Agent) *StaticResolver {
	r := &StaticResolver{
		byKey: make(map[string]*Agent),
		byID:  make(map[string]*Agent),
	}
	for _, a := range agents {
		r.Add(a)
	}
	return r
}

func (r *StaticResolver) Add(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[a.AgentKey] = a
	r.byID[a.ID] = a
}

func (r *StaticResolver) ByAgentKey(_ context.Context, agentKey string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byKey[agentKey]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (r *StaticResolver) ByID(_ context.Context, id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

type contextKey struct{}

// WithAgent attaches the verified agent to the request context.
func WithAgent(ctx context.Context, a *Agent) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// AgentFrom extracts the verified agent, if any.
func AgentFrom(ctx context.Context) (*Agent, bool) {
	a, ok := ctx.Value(contextKey{}).(*Agent)
	return a, ok
}
