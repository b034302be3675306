package decision

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_CleanArray(t *testing.T) {
	raw := `[{"action":"comment","communitySlug":"x","threadId":"t1","body":"hi"}]`

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionComment, got[0].Action)
	assert.Equal(t, "x", got[0].CommunitySlug)
	assert.Equal(t, "t1", got[0].ThreadID)
	assert.Equal(t, "hi", got[0].Body)
}

// Parsing is idempotent on already-clean JSON: marshalling a decision and
// extracting it again yields the same decision.
func TestExtract_IdempotentOnCleanJSON(t *testing.T) {
	d := &Decision{
		Action:        ActionCreateThread,
		CommunitySlug: "molluscs",
		Title:         "shells",
		Body:          "post body",
	}
	raw, err := json.Marshal(d)
	require.NoError(t, err)

	got, err := Extract(string(raw))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d, got[0])
}

func TestExtract_FencedBlockWithProse(t *testing.T) {
	raw := "Sure, here:\n```json\n[{\"action\":\"comment\",\"communitySlug\":\"x\",\"threadId\":\"t1\",\"body\":\"hi\"}]\n```\nDone."

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionComment, got[0].Action)
	assert.Equal(t, "x", got[0].CommunitySlug)
	assert.Equal(t, "t1", got[0].ThreadID)
	assert.Equal(t, "hi", got[0].Body)
}

func TestExtract_BareFenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"action\":\"comment\",\"communitySlug\":\"x\",\"threadId\":\"t1\",\"body\":\"hi\"}\n```"

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExtract_SingleObjectWrapped(t *testing.T) {
	raw := `{"action":"create_thread","communitySlug":"x","title":"t","body":"b"}`

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionCreateThread, got[0].Action)
}

func TestExtract_JSONEmbeddedInProse(t *testing.T) {
	raw := `I think the best move is {"action":"comment","communitySlug":"x","threadId":"t9","body":"agreed"} because the thread is active.`

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t9", got[0].ThreadID)
}

func TestExtract_TxDecision(t *testing.T) {
	raw := `[{"action":"tx","communitySlug":"x","threadId":"t1","function":"transfer","args":["0xabc","1000000000000000000"],"value":"0"}]`

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionTx, got[0].Action)
	assert.Equal(t, "transfer", got[0].Function)
	require.Len(t, got[0].Args, 2)
	assert.Equal(t, "1000000000000000000", got[0].Args[1], "token amounts stay strings")
}

func TestExtract_InvalidElementsDropped(t *testing.T) {
	raw := `[
		{"action":"comment","communitySlug":"x","threadId":"t1","body":"ok"},
		{"action":"comment","body":"no community"},
		{"action":"fly","communitySlug":"x"},
		{"action":"create_thread","communitySlug":"x","title":"only title"}
	]`

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1, "only the valid element survives")
	assert.Equal(t, "t1", got[0].ThreadID)
}

func TestExtract_Errors(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"no json at all":      {"I could not decide on an action.", ErrNoJSONFound},
		"empty":               {"", ErrNoJSONFound},
		"all elements bogus":  {`[{"action":"comment"},{"action":"nope","communitySlug":""}]`, ErrNoValidActions},
		"empty array":         {`[]`, ErrNoValidActions},
		"object not a action": {`{"weather":"fine"}`, ErrNoValidActions},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

// Pathological input must terminate under the scan bounds, not hang.
func TestExtract_BoundedOnPathologicalInput(t *testing.T) {
	raw := strings.Repeat("{", 50000)
	_, err := Extract(raw)
	require.ErrorIs(t, err, ErrNoJSONFound)
}

func TestExtract_ShrinksPastTrailingProse(t *testing.T) {
	raw := `[{"action":"comment","communitySlug":"x","threadId":"t1","body":"hi"}] — hope that helps!`

	got, err := Extract(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
