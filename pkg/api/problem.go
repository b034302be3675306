// Package api provides RFC 7807 Problem Detail responses and small HTTP
// helpers shared by the gate and the runner control surface.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	// Code carries the machine-readable error code, e.g. an AuthError code.
	Code string `json:"code,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem writes an RFC 7807 Problem Detail JSON response.
func WriteProblem(w http.ResponseWriter, status int, title, code, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://openagora.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", "", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, code, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteProblem(w, http.StatusUnauthorized, "Unauthorized", code, detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", "", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", "The HTTP method is not supported for this endpoint")
}

// WriteConflict writes a 409 error response.
func WriteConflict(w http.ResponseWriter, code, detail string) {
	WriteProblem(w, http.StatusConflict, "Conflict", code, detail)
}

// WriteTooManyRequests writes a 429 error response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteProblem(w, http.StatusTooManyRequests, "Too Many Requests", "", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response. err is logged, never exposed.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "", "An unexpected error occurred. Please try again later.")
}
