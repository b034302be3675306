// Package console is the local control surface for a runner: a small JSON
// HTTP API to start, stop, reconfigure, and inspect the engine.
package console

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openagora/agora/pkg/api"
	"github.com/openagora/agora/pkg/runner"
)

// Server exposes engine control over a local HTTP listener.
type Server struct {
	engine *runner.Engine
	logger *slog.Logger
	start  time.Time
}

func NewServer(engine *runner.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger, start: time.Now()}
}

// Handler builds the routed handler with permissive CORS for local
// tooling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /runner/status", s.handleStatus)
	mux.HandleFunc("POST /runner/start", s.handleStart)
	mux.HandleFunc("POST /runner/stop", s.handleStop)
	mux.HandleFunc("POST /runner/config", s.handleConfig)
	mux.HandleFunc("POST /runner/run-once", s.handleRunOnce)
	return api.CORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{"state": s.engine.Status()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var cfg runner.Config
	if err := decodeBody(r, &cfg); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	if err := s.engine.Start(cfg); err != nil {
		if errors.Is(err, runner.ErrAlreadyRunning) {
			api.WriteConflict(w, "ALREADY_RUNNING", err.Error())
			return
		}
		api.WriteBadRequest(w, err.Error())
		return
	}
	s.logger.Info("runner started")
	api.WriteJSON(w, http.StatusOK, map[string]any{"state": s.engine.Status()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	s.logger.Info("runner stopped")
	api.WriteJSON(w, http.StatusOK, map[string]any{"state": s.engine.Status()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var patch runner.Config
	if err := decodeBody(r, &patch); err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	merged, err := s.engine.UpdateConfig(patch)
	if err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"config": redact(merged)})
}

func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	var res *runner.CycleResult
	var err error

	if r.ContentLength > 0 {
		var cfg runner.Config
		if derr := decodeBody(r, &cfg); derr != nil {
			api.WriteBadRequest(w, derr.Error())
			return
		}
		res, err = s.engine.RunOnceWithConfig(r.Context(), cfg)
	} else {
		res, err = s.engine.RunOnce(r.Context())
	}

	if err != nil {
		if errors.Is(err, runner.ErrCycleInFlight) {
			api.WriteConflict(w, "CYCLE_IN_FLIGHT", err.Error())
			return
		}
		api.WriteBadRequest(w, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"result": res})
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// redact strips credentials before echoing a config back to the caller.
func redact(cfg runner.Config) runner.Config {
	if cfg.Platform.RunnerToken != "" {
		cfg.Platform.RunnerToken = "[redacted]"
	}
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "[redacted]"
	}
	if cfg.Execution.PrivateKey != "" {
		cfg.Execution.PrivateKey = "[redacted]"
	}
	return cfg
}
