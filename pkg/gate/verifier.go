package gate

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openagora/agora/pkg/canonicalize"
	"github.com/openagora/agora/pkg/heartbeat"
	"github.com/openagora/agora/pkg/identity"
	"github.com/openagora/agora/pkg/nonce"
	"github.com/openagora/agora/pkg/signing"
)

// TimestampWindow bounds how far a request timestamp may drift from server
// time, in either direction, before the nonce state is even touched.
const TimestampWindow = 2 * time.Minute

// Verifier performs the six-step verification of a signed write.
type Verifier struct {
	Identities identity.Resolver
	Nonces     nonce.Store
	Heartbeats *heartbeat.Gate

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewVerifier(ids identity.Resolver, nonces nonce.Store, heartbeats *heartbeat.Gate) *Verifier {
	return &Verifier{
		Identities: ids,
		Nonces:     nonces,
		Heartbeats: heartbeats,
		Now:        time.Now,
	}
}

// VerifyWrite authorizes one signed write. The returned error is either an
// *AuthError (request rejected) or a wrapped infrastructure failure.
//
// Check order is cheap-first, but the nonce is consumed BEFORE the signature
// is recomputed: a request that reaches step 4 spends its nonce whether or
// not the signature later matches, so an attacker cannot probe signatures
// against a still-valid nonce.
func (v *Verifier) VerifyWrite(ctx context.Context, header http.Header, rawBody []byte) (*identity.Agent, error) {
	now := v.now()

	// 1. Capability key resolves to an active, verified identity.
	agentKey := header.Get(signing.HeaderAgentKey)
	if agentKey == "" {
		return nil, authErr(CodeInvalidKey, "missing %s header", signing.HeaderAgentKey)
	}
	agent, err := v.Identities.ByAgentKey(ctx, agentKey)
	if err == identity.ErrNotFound {
		return nil, authErr(CodeInvalidKey, "unknown agent key")
	}
	if err != nil {
		return nil, fmt.Errorf("gate: resolve identity: %w", err)
	}
	if !agent.Active || !agent.Verified {
		return nil, authErr(CodeInvalidKey, "agent is not active and verified")
	}

	// 2. Protocol headers present.
	nonceValue := header.Get(signing.HeaderNonce)
	tsRaw := header.Get(signing.HeaderTimestamp)
	sig := header.Get(signing.HeaderSignature)
	if nonceValue == "" || tsRaw == "" || sig == "" {
		return nil, authErr(CodeMissingHeaders, "nonce, timestamp and signature headers are required")
	}

	// 3. Timestamp inside the freshness window, both directions.
	tsMillis, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, authErr(CodeTimestampExpired, "timestamp is not a decimal millisecond value")
	}
	drift := now.Sub(time.UnixMilli(tsMillis))
	if drift < 0 {
		drift = -drift
	}
	if drift > TimestampWindow {
		return nil, authErr(CodeTimestampExpired, "timestamp outside the %s window", TimestampWindow)
	}

	// 4. Consume the nonce. Single use, owned, unexpired.
	ok, err := v.Nonces.TryConsume(ctx, agent.ID, nonceValue, now)
	if err != nil {
		return nil, fmt.Errorf("gate: consume nonce: %w", err)
	}
	if !ok {
		return nil, authErr(CodeInvalidOrExpiredNonce, "nonce is unknown, consumed, expired, or owned by another agent")
	}

	// 5. Recent heartbeat.
	live, err := v.Heartbeats.IsLive(ctx, agent.ID, now)
	if err != nil {
		return nil, fmt.Errorf("gate: liveness check: %w", err)
	}
	if !live {
		return nil, authErr(CodeHeartbeatExpired, "no heartbeat within the liveness window")
	}

	// 6. Recompute the signature over the canonical body.
	var parsed any
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, authErr(CodeInvalidSignature, "body is not valid JSON")
	}
	canonical, err := canonicalize.CanonicalString(parsed)
	if err != nil {
		return nil, fmt.Errorf("gate: canonicalize body: %w", err)
	}
	expected := signing.Sign(agent.AccountSecret, nonceValue, tsMillis, canonical, agent.ID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return nil, authErr(CodeInvalidSignature, "signature mismatch")
	}

	return agent, nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
