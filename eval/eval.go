// Package eval defines field evaluations: pure predicates over named
// inputs producing PASS/FAIL results with human-readable requirements.
package eval

import (
	"context"
	"strings"

	"github.com/promptloop/promptloop/prompt"
)

// Outcome values.
const (
	Pass = "PASS"
	Fail = "FAIL"
)

// Result is the outcome of one evaluation. The JSON field names are part
// of the revision contract: serialized results are fed back to the model.
type Result struct {
	Field       string `json:"field"`
	Requirement string `json:"requirement"`
	Outcome     string `json:"evaluation_result"`
	Reason      string `json:"reason,omitempty"`
}

// Passed reports whether the evaluation passed.
func (r Result) Passed() bool {
	return r.Outcome == Pass
}

// Inputs is the named-value set an evaluation runs over.
type Inputs map[string]any

// Text returns the string form of a named input.
func (in Inputs) Text(name string) string {
	return prompt.Stringify(in[name])
}

// List returns a named input as a list of terms. A scalar string becomes a
// one-element list.
func (in Inputs) List(name string) []string {
	switch v := in[name].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, prompt.Stringify(item))
		}
		return out
	case string:
		return []string{v}
	default:
		return []string{prompt.Stringify(v)}
	}
}

// Merge returns a new Inputs with overlay entries taking precedence.
func (in Inputs) Merge(overlay map[string]string) Inputs {
	merged := make(Inputs, len(in)+len(overlay))
	for k, v := range in {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Evaluation is a pure predicate keyed by a field name. Deterministic
// evaluations are side-effect free and safe to invoke repeatedly; the
// LLM-backed variant's only side effect is a nested completion call.
type Evaluation interface {
	// Target returns the name of the field being evaluated.
	Target() string

	// Requirement returns the human-readable requirement description shown
	// to the model.
	Requirement() string

	// Deterministic reports whether evaluation is free of completion calls.
	Deterministic() bool

	// Evaluate computes the result over the given inputs.
	Evaluate(ctx context.Context, inputs Inputs) (Result, error)
}

func pass(e Evaluation) Result {
	return Result{Field: e.Target(), Requirement: e.Requirement(), Outcome: Pass}
}

func fail(e Evaluation, reason string) Result {
	return Result{Field: e.Target(), Requirement: e.Requirement(), Outcome: Fail, Reason: reason}
}

func joinTerms(terms []string) string {
	return strings.Join(terms, ", ")
}
