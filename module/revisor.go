package module

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/promptloop/promptloop/eval"
)

// ResultsSuffix names the output entry carrying the serialized failing
// evaluation result. It is empty when the loop converged.
const ResultsSuffix = "_evaluation_results"

// Revisor wraps a revise module in a bounded generate-evaluate-revise
// loop. The loop evaluates the target field of the revise module (its last
// output), feeds the first failing result back through the module, and
// repeats until every check passes or the revision budget is exhausted.
// Exhaustion is not an error: the last candidate is returned together with
// the last failing result, serialized.
type Revisor struct {
	// Reviser generates an updated candidate from the original inputs, the
	// current candidate, and a failing evaluation result.
	Reviser *Module

	// MaxRevisions bounds how many revise attempts run before the loop
	// accepts a non-passing candidate.
	MaxRevisions int

	// Logger receives per-iteration progress. Nil means no logging.
	Logger *zap.Logger
}

// Run executes the loop over the supplied inputs. The initial candidate is
// the inputs entry named after the target field. The returned mapping
// always holds the (possibly revised) candidate and the serialized
// evaluation result entry.
func (r *Revisor) Run(ctx context.Context, inputs eval.Inputs) (map[string]string, error) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	target := r.Reviser.Target()
	resultsKey := target.Name + ResultsSuffix
	outputs := map[string]string{
		target.Name: inputs.Text(target.Name),
		resultsKey:  "",
	}

	// Deterministic checks run before LLM-backed checks: they are cheaper
	// and carry no network cost.
	var ordered []eval.Evaluation
	for _, evl := range target.Evaluations {
		if evl.Deterministic() {
			ordered = append(ordered, evl)
		}
	}
	for _, evl := range target.Evaluations {
		if !evl.Deterministic() {
			ordered = append(ordered, evl)
		}
	}

	for revision := 0; revision <= r.MaxRevisions; revision++ {
		failing, err := r.firstFailure(ctx, ordered, inputs.Merge(outputs))
		if err != nil {
			return outputs, err
		}

		if failing == nil {
			outputs[resultsKey] = ""
			break
		}

		serialized, err := json.Marshal(failing)
		if err != nil {
			return outputs, err
		}
		outputs[resultsKey] = string(serialized)

		if revision >= r.MaxRevisions {
			log.Debug("revision budget exhausted",
				zap.String("field", target.Name),
				zap.Int("max_revisions", r.MaxRevisions))
			break
		}

		pretty, err := json.MarshalIndent(failing, "", "  ")
		if err != nil {
			return outputs, err
		}
		log.Debug("revising",
			zap.String("field", target.Name),
			zap.Int("revision", revision),
			zap.String("reason", failing.Reason))

		revised, err := r.Reviser.Run(ctx,
			inputs.Merge(outputs).Merge(map[string]string{"evaluation_result": string(pretty)}))
		if err != nil {
			return outputs, err
		}
		if candidate := strings.TrimSpace(revised[target.Name]); candidate != "" {
			outputs[target.Name] = candidate
		}
	}

	return outputs, nil
}

// firstFailure runs the checks in order and returns the first failing
// result, short-circuiting the remainder; nil means every check passed.
func (r *Revisor) firstFailure(ctx context.Context, checks []eval.Evaluation, inputs eval.Inputs) (*eval.Result, error) {
	for _, evl := range checks {
		result, err := evl.Evaluate(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if !result.Passed() {
			return &result, nil
		}
	}
	return nil, nil
}
