// Package executor turns parsed decisions into platform writes and
// on-chain calls. Each decision is dispatched independently: one failure
// never aborts the rest of the batch.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openagora/agora/pkg/chain"
	"github.com/openagora/agora/pkg/decision"
	"github.com/openagora/agora/pkg/platform"
)

// ActionState tracks a decision through dispatch.
type ActionState string

const (
	StatePending    ActionState = "pending"
	StateDispatched ActionState = "dispatched"
	StateSucceeded  ActionState = "succeeded"
	StateFailed     ActionState = "failed"
)

// ActionResult is the terminal record for one decision.
type ActionResult struct {
	Decision  *decision.Decision `json:"decision"`
	State     ActionState        `json:"state"`
	ThreadID  string             `json:"thread_id,omitempty"`
	CommentID string             `json:"comment_id,omitempty"`
	Outcome   *chain.CallOutcome `json:"outcome,omitempty"`
	Err       string             `json:"error,omitempty"`
}

// PlatformWriter is the subset of the platform client the executor needs.
type PlatformWriter interface {
	CreateThread(ctx context.Context, profile *platform.AgentProfile, communityID, title, body, threadType string) (string, error)
	CreateComment(ctx context.Context, profile *platform.AgentProfile, threadID, body string) (string, error)
}

// ChainCaller executes one contract function. A nil caller means no
// execution wallet is configured.
type ChainCaller interface {
	Execute(ctx context.Context, contractAddr, abiJSON, fn string, args []any, value string) (*chain.CallOutcome, error)
}

// Executor dispatches decision batches for one agent.
type Executor struct {
	Platform PlatformWriter
	Chain    ChainCaller
	Logger   *slog.Logger
}

func New(pf PlatformWriter, ch ChainCaller, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Platform: pf, Chain: ch, Logger: logger}
}

var tracer = otel.Tracer("github.com/openagora/agora/pkg/executor")

// ExecuteAll dispatches every decision against the fetched community
// window and returns one result per decision, in order.
func (e *Executor) ExecuteAll(ctx context.Context, profile *platform.AgentProfile, decisions []*decision.Decision, window *platform.Context) []ActionResult {
	results := make([]ActionResult, 0, len(decisions))
	for _, d := range decisions {
		results = append(results, e.execute(ctx, profile, d, window))
	}
	return results
}

func (e *Executor) execute(ctx context.Context, profile *platform.AgentProfile, d *decision.Decision, window *platform.Context) ActionResult {
	ctx, span := tracer.Start(ctx, "executor.action")
	defer span.End()
	span.SetAttributes(attribute.String("action.type", string(d.Action)))

	res := ActionResult{Decision: d, State: StateDispatched}

	var err error
	switch d.Action {
	case decision.ActionCreateThread:
		err = e.createThread(ctx, profile, d, window, &res)
	case decision.ActionComment:
		err = e.comment(ctx, profile, d, &res)
	case decision.ActionTx:
		err = e.transact(ctx, profile, d, window, &res)
	default:
		err = fmt.Errorf("executor: unknown action %q", d.Action)
	}

	if err != nil {
		res.State = StateFailed
		res.Err = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.Logger.Warn("action failed", "action", d.Action, "error", err)
		return res
	}
	if res.Outcome != nil && res.Outcome.TxHash != "" {
		span.SetAttributes(attribute.String("tx.hash", res.Outcome.TxHash))
	}
	res.State = StateSucceeded
	e.Logger.Info("action dispatched",
		"action", d.Action, "thread_id", res.ThreadID, "comment_id", res.CommentID)
	return res
}

func (e *Executor) createThread(ctx context.Context, profile *platform.AgentProfile, d *decision.Decision, window *platform.Context, res *ActionResult) error {
	community, err := resolveCommunity(profile, d.CommunitySlug, window)
	if err != nil {
		return err
	}
	id, err := e.Platform.CreateThread(ctx, profile, community.ID, d.Title, d.Body, "")
	if err != nil {
		return err
	}
	res.ThreadID = id
	return nil
}

func (e *Executor) comment(ctx context.Context, profile *platform.AgentProfile, d *decision.Decision, res *ActionResult) error {
	id, err := e.Platform.CreateComment(ctx, profile, d.ThreadID, d.Body)
	if err != nil {
		return err
	}
	res.ThreadID = d.ThreadID
	res.CommentID = id
	return nil
}

func (e *Executor) transact(ctx context.Context, profile *platform.AgentProfile, d *decision.Decision, window *platform.Context, res *ActionResult) error {
	if e.Chain == nil {
		return fmt.Errorf("executor: no execution wallet configured, cannot run %q", d.Function)
	}
	community, err := resolveCommunity(profile, d.CommunitySlug, window)
	if err != nil {
		return err
	}
	if community.ContractAddress == "" || community.ContractABI == "" {
		return fmt.Errorf("executor: community %q has no contract attached", community.Slug)
	}

	outcome, err := e.Chain.Execute(ctx, community.ContractAddress, community.ContractABI, d.Function, d.Args, d.Value)
	if err != nil {
		return err
	}
	res.Outcome = outcome

	// A transaction raised from inside a discussion reports back to it.
	if d.ThreadID != "" {
		commentID, cerr := e.Platform.CreateComment(ctx, profile, d.ThreadID, formatOutcome(d.Function, outcome))
		if cerr != nil {
			e.Logger.Warn("outcome comment failed", "thread_id", d.ThreadID, "error", cerr)
		} else {
			res.ThreadID = d.ThreadID
			res.CommentID = commentID
		}
	}
	return nil
}

// resolveCommunity matches the decision's slug against the fetched window,
// falling back to the agent's home community when the slug is empty.
func resolveCommunity(profile *platform.AgentProfile, slug string, window *platform.Context) (*platform.Community, error) {
	if slug == "" {
		slug = profile.CommunitySlug
	}
	if window != nil {
		for i := range window.Communities {
			if window.Communities[i].Slug == slug {
				return &window.Communities[i], nil
			}
		}
	}
	return nil, fmt.Errorf("executor: community %q not in fetched context", slug)
}

// formatOutcome renders the on-chain result as a thread comment.
func formatOutcome(fn string, outcome *chain.CallOutcome) string {
	var b strings.Builder
	if outcome.Mode == "call" {
		fmt.Fprintf(&b, "Executed read-only call `%s`: %v", fn, outcome.ReturnValue)
		return b.String()
	}
	fmt.Fprintf(&b, "Executed `%s` on-chain: %s", fn, outcome.Status)
	if outcome.TxHash != "" {
		fmt.Fprintf(&b, "\n- tx: %s", outcome.TxHash)
	}
	if outcome.BlockNumber != "" {
		fmt.Fprintf(&b, "\n- block: %s", outcome.BlockNumber)
	}
	if outcome.GasUsed != "" {
		fmt.Fprintf(&b, "\n- gas used: %s", outcome.GasUsed)
	}
	return b.String()
}
