package module

import (
	"context"
	"fmt"

	"github.com/promptloop/promptloop/chat"
	"github.com/promptloop/promptloop/eval"
)

// LLMEvaluation grades a field with a nested module call. The grader
// module receives the field's upstream inputs, the field value itself, and
// the requirement text, and emits an evaluation_result and reason pair.
type LLMEvaluation struct {
	grader      *Module
	field       string
	requirement string
}

// NewLLMEvaluation builds the grader module for the target field. The
// grader's input set is the target's upstream fields plus the target value
// and the requirement; useCoT prepends a scratchpad output.
func NewLLMEvaluation(target Field, requirement string, useCoT bool, chatCfg chat.Config) (*LLMEvaluation, error) {
	requirementField := Field{
		Name:        "requirement",
		Description: fmt.Sprintf("A requirement for `%s`", target.Name),
	}
	verdict := Field{
		Name: "evaluation_result",
		Description: fmt.Sprintf(
			"PASS if `%s` meets the requirement described in `requirement`, FAIL otherwise",
			target.Name),
	}
	reason := Field{
		Name:        "reason",
		Description: "A reason for the evaluation result. Leave blank when the evaluation passes.",
	}

	outputs := []Field{verdict, reason}
	if useCoT {
		outputs = append([]Field{ChainOfThought()}, outputs...)
	}

	inputs := append(append([]Field{}, target.Inputs...),
		Field{Name: target.Name, Description: target.Description},
		requirementField)

	grader, err := New(Config{
		Chat:         chatCfg,
		InputsHeader: "You will be provided a set of inputs, along with an evaluation criteria that one of the inputs is expected to satisfy.",
		Task:         "Your task is to determine if the input meets the requirement.",
		Inputs:       inputs,
		Outputs:      outputs,
	})
	if err != nil {
		return nil, fmt.Errorf("building grader module: %w", err)
	}

	return &LLMEvaluation{grader: grader, field: target.Name, requirement: requirement}, nil
}

func (e *LLMEvaluation) Target() string      { return e.field }
func (e *LLMEvaluation) Requirement() string { return e.requirement }
func (e *LLMEvaluation) Deterministic() bool { return false }

// Evaluate runs the grader over the inputs plus the requirement text. The
// grader's verdict and reason are passed through verbatim.
func (e *LLMEvaluation) Evaluate(ctx context.Context, inputs eval.Inputs) (eval.Result, error) {
	graded, err := e.grader.Run(ctx, inputs.Merge(map[string]string{"requirement": e.requirement}))
	if err != nil {
		return eval.Result{}, err
	}
	return eval.Result{
		Field:       e.field,
		Requirement: e.requirement,
		Outcome:     graded["evaluation_result"],
		Reason:      graded["reason"],
	}, nil
}
