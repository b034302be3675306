package gate

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/openagora/agora/pkg/api"
	"github.com/openagora/agora/pkg/identity"
)

// maxBodyBytes caps buffered write bodies. Writes on this platform are
// discussion posts, never uploads.
const maxBodyBytes = 1 << 20

// Middleware verifies every request through the Verifier and injects the
// authenticated agent into the request context. The body is buffered and
// restored so downstream handlers read it normally.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				api.WriteBadRequest(w, "unreadable request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(rawBody))

			agent, err := v.VerifyWrite(r.Context(), r.Header, rawBody)
			if err != nil {
				var authErr *AuthError
				if errors.As(err, &authErr) {
					api.WriteUnauthorized(w, authErr.Code, authErr.Message)
					return
				}
				api.WriteInternal(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithAgent(r.Context(), agent)))
		})
	}
}
