package module

import (
	"context"
	"fmt"

	"github.com/promptloop/promptloop/chat"
	"github.com/promptloop/promptloop/eval"
)

// NewGenerator builds a single-output generate module: a scratchpad field
// followed by the requested output, with the output's upstream fields as
// inputs.
func NewGenerator(task string, output Field, details string, chatCfg chat.Config) (*Module, error) {
	return New(Config{
		Chat:    chatCfg,
		Task:    task,
		Details: details,
		Inputs:  output.Inputs,
		Outputs: []Field{ChainOfThought(), output},
	})
}

// Pipeline chains a generate module with an optional evaluate-and-revise
// stage over the same output field.
type Pipeline struct {
	Generate *Module
	Revise   *Revisor
}

// NewPipeline builds the generate module and, when maxRevisions is
// positive, a revise module wrapped in a Revisor. The revise module sees
// the original inputs, the current candidate, and the failing evaluation
// result.
func NewPipeline(task string, output Field, details string, maxRevisions int, chatCfg chat.Config) (*Pipeline, error) {
	generate, err := NewGenerator(task, output, details, chatCfg)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Generate: generate}
	if maxRevisions <= 0 {
		return p, nil
	}

	reviseInputs := append(append([]Field{}, output.Inputs...),
		output,
		Field{Name: "evaluation_result", Description: "An evaluation result"})
	revise, err := New(Config{
		Chat:         chatCfg,
		InputsHeader: "You will be provided a set of inputs, along with a non-passing evaluation result.",
		Task:         "Your task is to generate an updated version of the field indicated in the evaluation result so that it meets all evaluation criteria and requirements.",
		Details:      details,
		Inputs:       reviseInputs,
		Outputs:      []Field{ChainOfThought(), output},
		Footer:       fmt.Sprintf("Generate the required <thinking> and updated %s outputs within XML tags.", output.XML()),
	})
	if err != nil {
		return nil, fmt.Errorf("building revise module: %w", err)
	}
	p.Revise = &Revisor{Reviser: revise, MaxRevisions: maxRevisions, Logger: chatCfg.Logger}
	return p, nil
}

// Run generates an initial candidate and, when a revise stage is
// configured, folds the evaluate-and-revise outputs over it. The returned
// mapping holds the original inputs' names mapped to their text forms plus
// every generated and revised entry.
func (p *Pipeline) Run(ctx context.Context, inputs eval.Inputs) (map[string]string, error) {
	sample := make(map[string]string, len(inputs))
	for name := range inputs {
		sample[name] = inputs.Text(name)
	}

	generated, err := p.Generate.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}
	for name, value := range generated {
		sample[name] = value
	}

	if p.Revise != nil {
		revised, err := p.Revise.Run(ctx, inputs.Merge(sample))
		if err != nil {
			return nil, err
		}
		for name, value := range revised {
			sample[name] = value
		}
	}
	return sample, nil
}
