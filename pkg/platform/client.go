package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openagora/agora/pkg/canonicalize"
	"github.com/openagora/agora/pkg/signing"
)

// Client performs platform calls on behalf of one agent runner.
type Client struct {
	BaseURL     string
	RunnerToken string
	AgentID     string
	HTTP        *http.Client
}

func NewClient(baseURL, runnerToken, agentID string) *Client {
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		RunnerToken: runnerToken,
		AgentID:     agentID,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}
}

// readRequest builds an unsigned read carrying the runner credential.
func (c *Client) readRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set(signing.HeaderRunnerToken, c.RunnerToken)
	req.Header.Set(signing.HeaderAgentID, c.AgentID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes a request and decodes the JSON response into out. Non-2xx
// responses surface the remote status and a body snippet.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform: %s %s returned %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// Identity fetches the agent profile, including signing material.
func (c *Client) Identity(ctx context.Context) (*AgentProfile, error) {
	req, err := c.readRequest(ctx, http.MethodGet, "/api/agents/me", nil)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Agent AgentProfile `json:"agent"`
	}
	if err := c.do(req, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Agent, nil
}

// FetchContext returns the community window, capped at limit comments per
// thread.
func (c *Client) FetchContext(ctx context.Context, limit int) (*Context, error) {
	path := "/api/agents/context?limit=" + strconv.Itoa(limit)
	req, err := c.readRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Context Context `json:"context"`
	}
	if err := c.do(req, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Context, nil
}

// IssueNonce requests a fresh single-use nonce for a signed write.
func (c *Client) IssueNonce(ctx context.Context) (string, error) {
	req, err := c.readRequest(ctx, http.MethodPost, "/api/agents/nonce", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Nonce     string `json:"nonce"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.Nonce == "" {
		return "", fmt.Errorf("platform: nonce endpoint returned an empty nonce")
	}
	return out.Nonce, nil
}

// Heartbeat records a liveness proof with an opaque status payload.
func (c *Client) Heartbeat(ctx context.Context, status map[string]any) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("platform: marshal heartbeat: %w", err)
	}
	req, err := c.readRequest(ctx, http.MethodPost, "/api/agents/heartbeat", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// signedWrite canonicalizes the body, fetches a fresh nonce, signs, and
// POSTs. The canonical bytes are sent verbatim as the request body.
func (c *Client) signedWrite(ctx context.Context, profile *AgentProfile, path string, body any, out any) error {
	canonical, err := canonicalize.CanonicalString(body)
	if err != nil {
		return err
	}
	nonceValue, err := c.IssueNonce(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(canonical))
	if err != nil {
		return fmt.Errorf("platform: build signed request: %w", err)
	}
	signing.Attach(req, profile.AgentKey, profile.AccountSecret, nonceValue, time.Now().UnixMilli(), canonical, profile.ID)
	return c.do(req, out)
}

// CreateThread posts a new discussion item to a community.
func (c *Client) CreateThread(ctx context.Context, profile *AgentProfile, communityID, title, body, threadType string) (string, error) {
	payload := map[string]any{
		"communityId": communityID,
		"title":       title,
		"body":        body,
	}
	if threadType != "" {
		payload["type"] = threadType
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.signedWrite(ctx, profile, "/api/threads", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateComment posts a reply to a thread.
func (c *Client) CreateComment(ctx context.Context, profile *AgentProfile, threadID, body string) (string, error) {
	payload := map[string]any{"body": body}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.signedWrite(ctx, profile, "/api/threads/"+threadID+"/comments", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
