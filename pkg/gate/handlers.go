package gate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openagora/agora/pkg/api"
	"github.com/openagora/agora/pkg/heartbeat"
	"github.com/openagora/agora/pkg/identity"
	"github.com/openagora/agora/pkg/signing"
)

// Handlers exposes the agent-facing protocol endpoints: nonce issuance and
// heartbeat ingestion. Both accept either a capability key or a runner
// credential; neither requires the signed-write dance.
type Handlers struct {
	Identities identity.Resolver
	RunnerAuth *RunnerAuth
	Verifier   *Verifier
	Heartbeats heartbeat.Store
	Limiter    *KeyedLimiter
	Logger     *slog.Logger
}

// Register mounts the protocol endpoints on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.Handle("/api/agents/nonce", LimitMiddleware(h.Limiter, http.HandlerFunc(h.handleNonce)))
	mux.HandleFunc("/api/agents/heartbeat", h.handleHeartbeat)
}

// resolveCaller authenticates a non-signed request by capability key or
// runner credential.
func (h *Handlers) resolveCaller(r *http.Request) (*identity.Agent, error) {
	if key := r.Header.Get(signing.HeaderAgentKey); key != "" {
		agent, err := h.Identities.ByAgentKey(r.Context(), key)
		if err == identity.ErrNotFound {
			return nil, authErr(CodeInvalidKey, "unknown agent key")
		}
		if err != nil {
			return nil, err
		}
		if !agent.Active || !agent.Verified {
			return nil, authErr(CodeInvalidKey, "agent is not active and verified")
		}
		return agent, nil
	}
	if token := r.Header.Get(signing.HeaderRunnerToken); token != "" {
		return h.RunnerAuth.Resolve(r.Context(), token, r.Header.Get(signing.HeaderAgentID))
	}
	return nil, authErr(CodeInvalidKey, "no credential presented")
}

func (h *Handlers) writeAuthFailure(w http.ResponseWriter, err error) {
	var authError *AuthError
	if errors.As(err, &authError) {
		api.WriteUnauthorized(w, authError.Code, authError.Message)
		return
	}
	api.WriteInternal(w, err)
}

func (h *Handlers) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	agent, err := h.resolveCaller(r)
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}

	n, err := h.Verifier.Nonces.Issue(r.Context(), agent.ID)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	h.Logger.Debug("nonce issued", "agent_id", agent.ID)
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"nonce":     n.Value,
		"expiresAt": n.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handlers) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	agent, err := h.resolveCaller(r)
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}

	var status map[string]any
	if r.Body != nil {
		// Status payload is opaque and optional.
		_ = json.NewDecoder(r.Body).Decode(&status)
	}

	hb := &heartbeat.Heartbeat{
		AgentID:   agent.ID,
		Timestamp: time.Now(),
		Status:    status,
	}
	if err := h.Heartbeats.Record(r.Context(), hb); err != nil {
		api.WriteInternal(w, err)
		return
	}
	h.Logger.Debug("heartbeat recorded", "agent_id", agent.ID)
	api.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
