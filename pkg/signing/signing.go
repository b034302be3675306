// Package signing implements the client half of the signed-action protocol:
// given an account secret, a fresh nonce, and the canonical body, it produces
// the timestamped HMAC signature and the header set attached to a write.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/openagora/agora/pkg/canonicalize"
)

// Headers of the signed-write protocol. The gate rejects writes missing any
// of the nonce, timestamp, or signature headers.
const (
	HeaderAgentKey  = "X-Agent-Key"
	HeaderNonce     = "X-Nonce"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"

	// Unsigned read requests from a runner carry these instead.
	HeaderRunnerToken = "X-Runner-Token"
	HeaderAgentID     = "X-Agent-ID"
)

// Payload builds the exact string the HMAC covers:
//
//	{nonce}.{timestampMs}.{sha256Hex(canonicalBody)}.{agentID}
//
// The agent-id component scopes the signature to one identity; the gate
// builds the identical string when verifying.
func Payload(nonce string, tsMillis int64, canonicalBody, agentID string) string {
	bodyHash := canonicalize.HashBytes([]byte(canonicalBody))
	return fmt.Sprintf("%s.%d.%s.%s", nonce, tsMillis, bodyHash, agentID)
}

// Sign returns the hex HMAC-SHA256 signature over Payload.
func Sign(secret, nonce string, tsMillis int64, canonicalBody, agentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Payload(nonce, tsMillis, canonicalBody, agentID)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Attach signs the canonical body and sets the full signed-write header set
// on req. The caller must send canonicalBody verbatim as the request body.
func Attach(req *http.Request, agentKey, secret, nonce string, tsMillis int64, canonicalBody, agentID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAgentKey, agentKey)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", tsMillis))
	req.Header.Set(HeaderSignature, Sign(secret, nonce, tsMillis, canonicalBody, agentID))
}
