package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagora/agora/pkg/chain"
	"github.com/openagora/agora/pkg/decision"
	"github.com/openagora/agora/pkg/platform"
)

type fakePlatform struct {
	threads  []string
	comments []struct{ threadID, body string }
	failNext bool
}

func (f *fakePlatform) CreateThread(_ context.Context, _ *platform.AgentProfile, communityID, title, _ string, _ string) (string, error) {
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("boom")
	}
	f.threads = append(f.threads, communityID+"/"+title)
	return fmt.Sprintf("thread-%d", len(f.threads)), nil
}

func (f *fakePlatform) CreateComment(_ context.Context, _ *platform.AgentProfile, threadID, body string) (string, error) {
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("boom")
	}
	f.comments = append(f.comments, struct{ threadID, body string }{threadID, body})
	return fmt.Sprintf("comment-%d", len(f.comments)), nil
}

type fakeChain struct {
	calls   int
	outcome *chain.CallOutcome
	err     error
}

func (f *fakeChain) Execute(_ context.Context, _, _, fn string, _ []any, _ string) (*chain.CallOutcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := *f.outcome
	out.Function = fn
	return &out, nil
}

func testWindow() *platform.Context {
	return &platform.Context{
		Communities: []platform.Community{
			{ID: "c-1", Slug: "governance", Name: "Governance"},
			{
				ID: "c-2", Slug: "treasury", Name: "Treasury",
				ContractAddress: "0x1111111111111111111111111111111111111111",
				ContractABI:     `[{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]}]`,
			},
		},
	}
}

func testProfile() *platform.AgentProfile {
	return &platform.AgentProfile{ID: "agent-1", CommunityID: "c-1", CommunitySlug: "governance"}
}

func TestExecuteAll_CreateThreadAndComment(t *testing.T) {
	pf := &fakePlatform{}
	exec := New(pf, nil, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionCreateThread, CommunitySlug: "governance", Title: "Hello", Body: "First"},
		{Action: decision.ActionComment, ThreadID: "thread-1", Body: "Reply"},
	}, testWindow())

	require.Len(t, results, 2)
	assert.Equal(t, StateSucceeded, results[0].State)
	assert.Equal(t, "thread-1", results[0].ThreadID)
	assert.Equal(t, StateSucceeded, results[1].State)
	assert.Equal(t, "comment-1", results[1].CommentID)
}

func TestExecuteAll_EmptySlugFallsBackToHomeCommunity(t *testing.T) {
	pf := &fakePlatform{}
	exec := New(pf, nil, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionCreateThread, Title: "Hello", Body: "Body"},
	}, testWindow())

	require.Len(t, results, 1)
	assert.Equal(t, StateSucceeded, results[0].State)
	require.Len(t, pf.threads, 1)
	assert.Equal(t, "c-1/Hello", pf.threads[0])
}

func TestExecuteAll_UnknownSlugFailsOnlyThatDecision(t *testing.T) {
	pf := &fakePlatform{}
	exec := New(pf, nil, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionCreateThread, CommunitySlug: "nowhere", Title: "A", Body: "B"},
		{Action: decision.ActionCreateThread, CommunitySlug: "governance", Title: "C", Body: "D"},
	}, testWindow())

	require.Len(t, results, 2)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Contains(t, results[0].Err, "nowhere")
	assert.Equal(t, StateSucceeded, results[1].State)
}

func TestExecuteAll_TxWithoutWalletFails(t *testing.T) {
	exec := New(&fakePlatform{}, nil, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionTx, CommunitySlug: "treasury", Function: "transfer"},
	}, testWindow())

	require.Len(t, results, 1)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Contains(t, results[0].Err, "execution wallet")
}

func TestExecuteAll_TxWithoutContractFails(t *testing.T) {
	ch := &fakeChain{outcome: &chain.CallOutcome{Mode: "transaction", Status: "success"}}
	exec := New(&fakePlatform{}, ch, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionTx, CommunitySlug: "governance", Function: "transfer"},
	}, testWindow())

	require.Len(t, results, 1)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Contains(t, results[0].Err, "no contract attached")
	assert.Zero(t, ch.calls)
}

func TestExecuteAll_TxPostsOutcomeCommentToThread(t *testing.T) {
	pf := &fakePlatform{}
	ch := &fakeChain{outcome: &chain.CallOutcome{
		Mode: "transaction", Status: "success",
		TxHash: "0xabc", GasUsed: "48123", BlockNumber: "120",
	}}
	exec := New(pf, ch, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionTx, CommunitySlug: "treasury", ThreadID: "thread-7", Function: "transfer"},
	}, testWindow())

	require.Len(t, results, 1)
	assert.Equal(t, StateSucceeded, results[0].State)
	require.NotNil(t, results[0].Outcome)
	assert.Equal(t, "0xabc", results[0].Outcome.TxHash)
	assert.Equal(t, "comment-1", results[0].CommentID)

	require.Len(t, pf.comments, 1)
	assert.Equal(t, "thread-7", pf.comments[0].threadID)
	assert.Contains(t, pf.comments[0].body, "0xabc")
	assert.Contains(t, pf.comments[0].body, "transfer")
}

func TestExecuteAll_TxWithoutThreadSkipsComment(t *testing.T) {
	pf := &fakePlatform{}
	ch := &fakeChain{outcome: &chain.CallOutcome{Mode: "transaction", Status: "success", TxHash: "0xabc"}}
	exec := New(pf, ch, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionTx, CommunitySlug: "treasury", Function: "transfer"},
	}, testWindow())

	require.Len(t, results, 1)
	assert.Equal(t, StateSucceeded, results[0].State)
	assert.Empty(t, pf.comments)
}

func TestExecuteAll_ChainErrorFailsDecision(t *testing.T) {
	ch := &fakeChain{err: fmt.Errorf("rpc unreachable")}
	exec := New(&fakePlatform{}, ch, nil)

	results := exec.ExecuteAll(context.Background(), testProfile(), []*decision.Decision{
		{Action: decision.ActionTx, CommunitySlug: "treasury", Function: "transfer"},
		{Action: decision.ActionCreateThread, CommunitySlug: "governance", Title: "Still works", Body: "B"},
	}, testWindow())

	require.Len(t, results, 2)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Contains(t, results[0].Err, "rpc unreachable")
	assert.Equal(t, StateSucceeded, results[1].State)
}

func TestFormatOutcome(t *testing.T) {
	body := formatOutcome("transfer", &chain.CallOutcome{
		Mode: "transaction", Status: "success", TxHash: "0xdead", GasUsed: "100", BlockNumber: "4",
	})
	assert.Contains(t, body, "`transfer`")
	assert.Contains(t, body, "0xdead")

	call := formatOutcome("balanceOf", &chain.CallOutcome{Mode: "call", ReturnValue: "42"})
	assert.Contains(t, call, "42")
}
