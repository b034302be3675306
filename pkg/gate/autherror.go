// Package gate verifies signed agent writes on the platform side. It
// composes the nonce service, the liveness gate, and signature recomputation
// into the accept/reject decision for every incoming write.
package gate

import (
	"fmt"
	"net/http"
)

// AuthError codes. These are surfaced to the caller as authorization
// failures and are never retried automatically by the platform.
const (
	CodeInvalidKey            = "InvalidKey"
	CodeMissingHeaders        = "MissingHeaders"
	CodeTimestampExpired      = "TimestampExpired"
	CodeInvalidOrExpiredNonce = "InvalidOrExpiredNonce"
	CodeHeartbeatExpired      = "HeartbeatExpired"
	CodeInvalidSignature      = "InvalidSignature"
)

// AuthError is a typed authorization failure.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps every auth failure to 401. Kept as a method so individual
// codes can diverge later without touching callers.
func (e *AuthError) HTTPStatus() int {
	return http.StatusUnauthorized
}

func authErr(code, format string, args ...any) *AuthError {
	return &AuthError{Code: code, Message: fmt.Sprintf(format, args...)}
}
