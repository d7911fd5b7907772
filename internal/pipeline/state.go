// Package pipeline keeps a side view in sync with the output of the last
// executed command line and with the --query expression on the line being
// edited.
package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/standardbeagle/azline/internal/query"
)

// Phase is the run state of the pipeline
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseRendered
)

var phaseNames = [...]string{"idle", "running", "rendered"}

// String returns the phase name
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// ErrNoResult is returned by Render when no command output was parsed yet
var ErrNoResult = errors.New("no parsed result to render")

// State is the live result record. ParsedResult is only meaningful when
// HasResult is set, since a JSON null is a valid result.
type State struct {
	Phase           Phase       `json:"phase"`
	InFlight        int         `json:"in_flight"`
	SourceLine      string      `json:"source_line,omitempty"`
	RawOutput       string      `json:"raw_output,omitempty"`
	ParsedResult    interface{} `json:"parsed_result,omitempty"`
	HasResult       bool        `json:"has_result"`
	QueryExpression string      `json:"query_expression,omitempty"`
	HasQuery        bool        `json:"has_query"`
	QueryEnabled    bool        `json:"query_enabled"`
	SideViewID      string      `json:"side_view_id,omitempty"`
	ViewContent     string      `json:"view_content,omitempty"`
}

// Filtering reports whether a render would apply the query expression
func (s State) Filtering() bool {
	return s.QueryEnabled && s.QueryExpression != "" && s.HasResult
}

// Render computes the value the side view should show for state. With live
// filtering on and both a query and a result present, the query is
// evaluated against the result; otherwise the result is returned as is.
func Render(state State, eval query.Evaluator) (interface{}, error) {
	if !state.HasResult {
		return nil, ErrNoResult
	}
	if !state.Filtering() {
		return state.ParsedResult, nil
	}
	return eval.Evaluate(state.ParsedResult, state.QueryExpression)
}

// formatJSON renders v as two-space indented JSON without HTML escaping
func formatJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// parseOutput decodes command output. Empty or non-JSON output is not an error
// for the pipeline; it simply yields no result.
func parseOutput(stdout string) (interface{}, bool) {
	if strings.TrimSpace(stdout) == "" {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(stdout), &v); err != nil {
		return nil, false
	}
	return v, true
}
