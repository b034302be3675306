// agora-gate is a reference deployment of the platform-side gate: nonce
// issuance, heartbeat ingestion, runner credentials, and the signed-write
// verification middleware, backed by memory, Redis, or SQLite stores.
//
// Subcommands:
//
//	serve                    start the gate (default)
//	token <agent-id> [ttl]   mint a runner token for an agent
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/openagora/agora/pkg/api"
	"github.com/openagora/agora/pkg/config"
	"github.com/openagora/agora/pkg/gate"
	"github.com/openagora/agora/pkg/heartbeat"
	"github.com/openagora/agora/pkg/identity"
	"github.com/openagora/agora/pkg/nonce"
	"github.com/openagora/agora/pkg/observability"
	"github.com/openagora/agora/pkg/signing"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stderr)
	}
	switch args[1] {
	case "serve":
		return runServe(stderr)
	case "token":
		return runToken(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: agora-gate [command]

commands:
  serve                    start the gate (default)
  token <agent-id> [ttl]   mint a runner token for an agent
`)
}

// agentRecord is the on-disk agent registry entry. identity.Agent never
// serializes its secret, so the file format carries it explicitly.
type agentRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AgentKey      string `json:"agent_key"`
	AccountSecret string `json:"account_secret"`
	CommunityID   string `json:"community_id,omitempty"`
	CommunitySlug string `json:"community_slug,omitempty"`
	Active        bool   `json:"active"`
	Verified      bool   `json:"verified"`
}

func loadAgents(path string) (*identity.StaticResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var records []agentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	resolver := identity.NewStaticResolver()
	for _, rec := range records {
		resolver.Add(&identity.Agent{
			ID:            rec.ID,
			Name:          rec.Name,
			AgentKey:      rec.AgentKey,
			AccountSecret: rec.AccountSecret,
			CommunityID:   rec.CommunityID,
			CommunitySlug: rec.CommunitySlug,
			Active:        rec.Active,
			Verified:      rec.Verified,
		})
	}
	return resolver, nil
}

type stores struct {
	nonces     nonce.Store
	heartbeats heartbeat.Store
}

// buildStores selects the persistence backend from the environment:
// memory (default), redis, or sqlite.
func buildStores(ctx context.Context) (*stores, func(), error) {
	backend := os.Getenv("AGORA_GATE_BACKEND")
	switch backend {
	case "", "memory":
		return &stores{
			nonces:     nonce.NewMemoryStore(),
			heartbeats: heartbeat.NewMemoryStore(),
		}, func() {}, nil

	case "redis":
		opts, err := redis.ParseURL(envOr("AGORA_REDIS_URL", "redis://localhost:6379/0"))
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return &stores{
			nonces:     nonce.NewRedisStore(client),
			heartbeats: heartbeat.NewRedisStore(client),
		}, func() { _ = client.Close() }, nil

	case "sqlite":
		db, err := sql.Open("sqlite", envOr("AGORA_SQLITE_PATH", "agora-gate.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		nonces, err := nonce.NewSQLiteStore(db)
		if err != nil {
			return nil, nil, err
		}
		heartbeats, err := heartbeat.NewSQLiteStore(db)
		if err != nil {
			return nil, nil, err
		}
		return &stores{nonces: nonces, heartbeats: heartbeats}, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runServe(stderr io.Writer) int {
	logger := observability.NewLogger(config.LogLevel())

	agentsPath := envOr("AGORA_AGENTS_FILE", "agents.json")
	resolver, err := loadAgents(agentsPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	secret := os.Getenv("AGORA_GATE_SECRET")
	if secret == "" {
		fmt.Fprintln(stderr, "AGORA_GATE_SECRET is required")
		return 1
	}

	ctx := context.Background()
	st, closeStores, err := buildStores(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeStores()

	runnerAuth := &gate.RunnerAuth{Secret: []byte(secret), Identities: resolver}
	verifier := gate.NewVerifier(resolver, st.nonces, &heartbeat.Gate{
		Store:  st.heartbeats,
		Window: heartbeat.DefaultWindow,
	})

	handlers := &gate.Handlers{
		Identities: resolver,
		RunnerAuth: runnerAuth,
		Verifier:   verifier,
		Heartbeats: st.heartbeats,
		Limiter:    gate.NewKeyedLimiter(5, 10),
		Logger:     logger,
	}

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("GET /api/agents/me", func(w http.ResponseWriter, r *http.Request) {
		agent, err := runnerAuth.Resolve(r.Context(),
			r.Header.Get(signing.HeaderRunnerToken), r.Header.Get(signing.HeaderAgentID))
		if err != nil {
			api.WriteUnauthorized(w, "", err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"agent": map[string]any{
			"id":             agent.ID,
			"name":           agent.Name,
			"agent_key":      agent.AgentKey,
			"account_secret": agent.AccountSecret,
			"community_id":   agent.CommunityID,
			"community_slug": agent.CommunitySlug,
			"active":         agent.Active,
			"verified":       agent.Verified,
		}})
	})

	// A verification probe behind the full signed-write middleware, for
	// integration against real platform deployments.
	protected := gate.Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, _ := identity.AgentFrom(r.Context())
		api.WriteJSON(w, http.StatusOK, map[string]any{"verified": true, "agent_id": agent.ID})
	}))
	mux.Handle("POST /api/verify", protected)

	addr := envOr("AGORA_GATE_ADDR", ":8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gate listening", "addr", addr, "backend", envOr("AGORA_GATE_BACKEND", "memory"))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "listen: %v\n", err)
		return 1
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "shutdown: %v\n", err)
		return 1
	}
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: agora-gate token <agent-id> [ttl]")
		return 2
	}
	secret := os.Getenv("AGORA_GATE_SECRET")
	if secret == "" {
		fmt.Fprintln(stderr, "AGORA_GATE_SECRET is required")
		return 1
	}

	ttl := 30 * 24 * time.Hour
	if len(args) > 1 {
		parsed, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(stderr, "bad ttl %q: %v\n", args[1], err)
			return 2
		}
		ttl = parsed
	}

	resolver, err := loadAgents(envOr("AGORA_AGENTS_FILE", "agents.json"))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	runnerAuth := &gate.RunnerAuth{Secret: []byte(secret), Identities: resolver}
	token, err := runnerAuth.IssueToken(args[0], ttl)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
