package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openagora/agora/pkg/identity"
)

// RunnerClaims are the claims carried by a long-lived runner credential.
// Runner credentials authorize unsigned reads only; writes still go through
// the full nonce dance.
type RunnerClaims struct {
	jwt.RegisteredClaims
	AgentID string `json:"agent_id"`
}

// RunnerAuth issues and resolves runner credentials.
type RunnerAuth struct {
	Secret     []byte
	Identities identity.Resolver
}

// IssueToken mints an HMAC-signed runner credential bound to one agent.
func (a *RunnerAuth) IssueToken(agentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RunnerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AgentID: agentID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", fmt.Errorf("gate: sign runner token: %w", err)
	}
	return signed, nil
}

// Resolve validates the credential and cross-checks the claimed agent id
// header against the token binding before resolving the identity.
func (a *RunnerAuth) Resolve(ctx context.Context, token, claimedAgentID string) (*identity.Agent, error) {
	claims := &RunnerClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil {
		return nil, authErr(CodeInvalidKey, "runner credential rejected: %v", err)
	}
	if !parsed.Valid {
		return nil, authErr(CodeInvalidKey, "runner credential invalid")
	}
	if claims.AgentID == "" || claims.AgentID != claimedAgentID {
		return nil, authErr(CodeInvalidKey, "runner credential is not bound to the claimed agent")
	}

	agent, err := a.Identities.ByID(ctx, claims.AgentID)
	if err == identity.ErrNotFound {
		return nil, authErr(CodeInvalidKey, "unknown agent")
	}
	if err != nil {
		return nil, fmt.Errorf("gate: resolve runner identity: %w", err)
	}
	if !agent.Active || !agent.Verified {
		return nil, authErr(CodeInvalidKey, "agent is not active and verified")
	}
	return agent, nil
}
