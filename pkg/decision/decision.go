// Package decision turns free-form language-model output into validated,
// structured actions. Models wrap their JSON in prose and code fences more
// often than not, so extraction tolerates both.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActionType tags the decision variant.
type ActionType string

const (
	ActionCreateThread ActionType = "create_thread"
	ActionComment      ActionType = "comment"
	ActionTx           ActionType = "tx"
)

// Decision is one structured action extracted from model output. Only the
// fields of the tagged variant are populated; a Decision is produced
// exclusively by the validating parser, never assembled from loose maps.
type Decision struct {
	Action        ActionType `json:"action"`
	CommunitySlug string     `json:"communitySlug"`

	// create_thread
	Title string `json:"title,omitempty"`

	// create_thread and comment
	Body string `json:"body,omitempty"`

	// comment, and optionally tx (thread to report the outcome to)
	ThreadID string `json:"threadId,omitempty"`

	// tx
	Function string `json:"function,omitempty"`
	Args     []any  `json:"args,omitempty"`
	// Value is the native-token amount in wei as a decimal string; large
	// integers never ride in JSON numbers.
	Value string `json:"value,omitempty"`
}

// Parser errors.
var (
	ErrNoJSONFound       = errors.New("decision: no JSON object or array found in model output")
	ErrMalformedDecision = errors.New("decision: JSON found but not decodable as decisions")
	ErrNoValidActions    = errors.New("decision: no valid actions in model output")
)

// Extraction bounds. String-scanning with a shrink loop is the right tool
// for JSON embedded in prose, but unbounded it is quadratic on pathological
// input.
const (
	maxCandidateStarts = 8
	maxShrinkSteps     = 4096
)

// Extract parses one or more decisions out of raw model text.
//
// A single leading fenced block (```json ... ``` or ``` ... ```) is
// unwrapped first. Otherwise the text is scanned for the left-most '{' or
// '[' and the end index shrinks from the end of the string until the
// substring parses; the first success wins. A bare object is wrapped as a
// one-element list. Invalid elements are dropped; an empty result after
// validation is ErrNoValidActions.
func Extract(raw string) ([]*Decision, error) {
	candidate, err := locateJSON(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}

	elements, err := asList(candidate)
	if err != nil {
		return nil, err
	}

	decisions := make([]*Decision, 0, len(elements))
	for _, el := range elements {
		d, err := parseOne(el)
		if err != nil {
			continue // invalid elements are dropped, not fatal
		}
		decisions = append(decisions, d)
	}
	if len(decisions) == 0 {
		return nil, ErrNoValidActions
	}
	return decisions, nil
}

// locateJSON returns the first substring of text that parses as JSON.
func locateJSON(text string) (json.RawMessage, error) {
	if unfenced, ok := stripFence(text); ok {
		text = unfenced
	}

	starts := 0
	for i := 0; i < len(text) && starts < maxCandidateStarts; i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		starts++

		end := len(text)
		for steps := 0; end > i && steps < maxShrinkSteps; steps++ {
			sub := strings.TrimSpace(text[i:end])
			if json.Valid([]byte(sub)) {
				return json.RawMessage(sub), nil
			}
			end--
		}
	}
	return nil, ErrNoJSONFound
}

// stripFence unwraps a single leading/trailing code fence.
func stripFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		// The fence may follow a line or two of prose.
		idx := strings.Index(text, "```")
		if idx < 0 {
			return "", false
		}
		text = text[idx:]
	}
	rest := strings.TrimPrefix(text, "```")
	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		first := strings.TrimSpace(rest[:nl])
		if first == "json" || first == "" {
			rest = rest[nl+1:]
		}
	}
	closing := strings.Index(rest, "```")
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:closing]), true
}

// asList normalizes the parsed JSON into a list of raw elements.
func asList(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
		}
		return list, nil
	}
	return []json.RawMessage{raw}, nil
}

// parseOne validates a single element into a Decision.
func parseOne(raw json.RawMessage) (*Decision, error) {
	var d Decision
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	if d.CommunitySlug == "" {
		return nil, fmt.Errorf("%w: missing communitySlug", ErrMalformedDecision)
	}
	switch d.Action {
	case ActionCreateThread:
		if d.Title == "" || d.Body == "" {
			return nil, fmt.Errorf("%w: create_thread requires title and body", ErrMalformedDecision)
		}
	case ActionComment:
		if d.ThreadID == "" || d.Body == "" {
			return nil, fmt.Errorf("%w: comment requires threadId and body", ErrMalformedDecision)
		}
	case ActionTx:
		if d.Function == "" {
			return nil, fmt.Errorf("%w: tx requires function", ErrMalformedDecision)
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedDecision, d.Action)
	}
	return &d, nil
}
