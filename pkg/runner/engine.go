// Package runner owns the periodic agent loop: fetch context, ask the
// model for decisions, execute them, record the result. One cycle runs at
// a time; ticks that land mid-cycle are dropped, never queued.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/openagora/agora/pkg/chain"
	"github.com/openagora/agora/pkg/decision"
	"github.com/openagora/agora/pkg/executor"
	"github.com/openagora/agora/pkg/llm"
	"github.com/openagora/agora/pkg/platform"
)

var (
	ErrAlreadyRunning = errors.New("runner: engine already running")
	ErrNotConfigured  = errors.New("runner: no configuration loaded")
	ErrCycleInFlight  = errors.New("runner: a cycle is already in flight")
)

// PlatformAPI is the platform surface one cycle consumes.
type PlatformAPI interface {
	Identity(ctx context.Context) (*platform.AgentProfile, error)
	FetchContext(ctx context.Context, limit int) (*platform.Context, error)
	Heartbeat(ctx context.Context, status map[string]any) error
	executor.PlatformWriter
}

// Deps are the factories a cycle uses to reach the outside world. Tests
// substitute fakes; production wiring uses the defaults from NewEngine.
type Deps struct {
	NewPlatform func(cfg Config) PlatformAPI
	NewLLM      func(cfg Config) llm.Client
	NewChain    func(ctx context.Context, cfg Config) (executor.ChainCaller, error)
	Logger      *slog.Logger
	Now         func() time.Time
}

// State is a point-in-time snapshot of the engine, safe to hand out by
// value.
type State struct {
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	LastRunAt       time.Time `json:"last_run_at,omitzero"`
	LastSuccessAt   time.Time `json:"last_success_at,omitzero"`
	LastError       string    `json:"last_error,omitempty"`
	Cycles          uint64    `json:"cycles"`
	DroppedTicks    uint64    `json:"dropped_ticks"`
	LastActionCount int       `json:"last_action_count"`
	LastOutput      string    `json:"last_output,omitempty"`
}

// CycleResult reports one completed cycle.
type CycleResult struct {
	ID        string                  `json:"id"`
	Started   time.Time               `json:"started"`
	Finished  time.Time               `json:"finished"`
	Decisions []*decision.Decision    `json:"decisions,omitempty"`
	Results   []executor.ActionResult `json:"results,omitempty"`
	Err       string                  `json:"error,omitempty"`
}

// Engine schedules and runs cycles for one agent.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	configured bool
	state      State
	cancel     context.CancelFunc
	inFlight   atomic.Bool
	deps       Deps
}

var runnerTracer = otel.Tracer("github.com/openagora/agora/pkg/runner")

// NewEngine builds an engine with production wiring. Any dep left nil in
// overrides keeps its default.
func NewEngine(logger *slog.Logger, overrides *Deps) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	deps := Deps{
		NewPlatform: func(cfg Config) PlatformAPI {
			return platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.RunnerToken, cfg.Platform.AgentID)
		},
		NewLLM: func(cfg Config) llm.Client {
			return llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		},
		NewChain: func(ctx context.Context, cfg Config) (executor.ChainCaller, error) {
			if cfg.Execution.PrivateKey == "" || cfg.Execution.RPCURL == "" {
				return nil, nil
			}
			return chain.New(ctx, cfg.Execution.RPCURL, cfg.Execution.PrivateKey)
		},
		Logger: logger,
		Now:    time.Now,
	}
	if overrides != nil {
		if overrides.NewPlatform != nil {
			deps.NewPlatform = overrides.NewPlatform
		}
		if overrides.NewLLM != nil {
			deps.NewLLM = overrides.NewLLM
		}
		if overrides.NewChain != nil {
			deps.NewChain = overrides.NewChain
		}
		if overrides.Now != nil {
			deps.Now = overrides.Now
		}
	}
	return &Engine{deps: deps}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Config returns the active configuration.
func (e *Engine) Config() (Config, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg, e.configured
}

// Start normalizes and validates cfg, then launches the scheduler. A
// second Start without an intervening Stop fails with ErrAlreadyRunning.
func (e *Engine) Start(cfg Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Running {
		return ErrAlreadyRunning
	}
	e.cfg = cfg
	e.configured = true
	e.state.Running = true
	e.state.StartedAt = e.deps.Now()
	e.state.LastError = ""

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.loop(ctx, cfg.Interval(), true)
	return nil
}

// Stop cancels the scheduler. An in-flight cycle is left to finish; only
// future ticks are cancelled. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Running {
		return
	}
	e.cancel()
	e.cancel = nil
	e.state.Running = false
}

// UpdateConfig merges patch into the active configuration. When the
// engine is running the scheduler is re-armed with the new interval.
func (e *Engine) UpdateConfig(patch Config) (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return Config{}, ErrNotConfigured
	}
	merged := Merge(e.cfg, patch).Normalize()
	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	e.cfg = merged

	if e.state.Running {
		e.cancel()
		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		go e.loop(ctx, merged.Interval(), false)
	}
	return merged, nil
}

// RunOnce executes a single cycle with the active configuration without
// touching the scheduler.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	e.mu.Lock()
	if !e.configured {
		e.mu.Unlock()
		return nil, ErrNotConfigured
	}
	cfg := e.cfg
	e.mu.Unlock()
	return e.RunOnceWithConfig(ctx, cfg)
}

// RunOnceWithConfig executes a single cycle with an explicit
// configuration. Concurrent cycles are refused, not queued.
func (e *Engine) RunOnceWithConfig(ctx context.Context, cfg Config) (*CycleResult, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer e.inFlight.Store(false)
	res := e.cycle(ctx, cfg)
	return &res, nil
}

// loop owns the ticker. Start passes runNow so the first cycle fires
// immediately; a re-arm after a config update only changes the cadence.
func (e *Engine) loop(ctx context.Context, interval time.Duration, runNow bool) {
	if runNow {
		e.tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one cycle unless one is already in flight, in which case the
// tick is dropped.
func (e *Engine) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		e.mu.Lock()
		e.state.DroppedTicks++
		e.mu.Unlock()
		e.deps.Logger.Debug("tick dropped, cycle in flight")
		return
	}
	defer e.inFlight.Store(false)

	// The cycle gets its own context so Stop cancels future ticks
	// without aborting work already underway.
	e.cycle(context.Background(), e.snapshotConfig())
}

func (e *Engine) snapshotConfig() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) cycle(ctx context.Context, cfg Config) CycleResult {
	ctx, span := runnerTracer.Start(ctx, "runner.cycle")
	defer span.End()

	started := e.deps.Now()
	e.mu.Lock()
	e.state.LastRunAt = started
	e.state.Cycles++
	cycles := e.state.Cycles
	e.mu.Unlock()

	res := CycleResult{ID: uuid.NewString(), Started: started}
	logger := e.deps.Logger.With("cycle_id", res.ID)
	err := e.runCycle(ctx, cfg, cycles, &res)
	res.Finished = e.deps.Now()

	e.mu.Lock()
	if err != nil {
		e.state.LastError = err.Error()
		res.Err = err.Error()
	} else {
		e.state.LastError = ""
		e.state.LastSuccessAt = res.Finished
		e.state.LastActionCount = len(res.Results)
	}
	e.mu.Unlock()

	if err != nil {
		logger.Error("cycle failed", "error", err)
	} else {
		logger.Info("cycle complete",
			"decisions", len(res.Decisions), "actions", len(res.Results),
			"elapsed", res.Finished.Sub(res.Started))
	}
	return res
}

func (e *Engine) runCycle(ctx context.Context, cfg Config, cycles uint64, res *CycleResult) error {
	pf := e.deps.NewPlatform(cfg)

	profile, err := pf.Identity(ctx)
	if err != nil {
		return fmt.Errorf("runner: fetch identity: %w", err)
	}
	if !profile.Active {
		return fmt.Errorf("runner: agent %s is not active", profile.ID)
	}

	if err := pf.Heartbeat(ctx, map[string]any{"status": "running", "cycles": cycles}); err != nil {
		return fmt.Errorf("runner: heartbeat: %w", err)
	}

	window, err := pf.FetchContext(ctx, cfg.Runtime.ContextLimit)
	if err != nil {
		return fmt.Errorf("runner: fetch context: %w", err)
	}

	messages := buildMessages(cfg, profile, window)
	client := e.deps.NewLLM(cfg)
	output, err := client.Chat(ctx, messages, &llm.SamplingOptions{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("runner: model call: %w", err)
	}

	e.mu.Lock()
	e.state.LastOutput = clip(output, 4096)
	e.mu.Unlock()

	decisions, err := decision.Extract(output)
	if err != nil {
		return fmt.Errorf("runner: parse model output: %w", err)
	}
	res.Decisions = decisions

	chainCaller, err := e.deps.NewChain(ctx, cfg)
	if err != nil {
		return fmt.Errorf("runner: chain setup: %w", err)
	}
	exec := executor.New(pf, chainCaller, e.deps.Logger)
	res.Results = exec.ExecuteAll(ctx, profile, decisions, window)
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
