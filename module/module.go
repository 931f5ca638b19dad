package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/promptloop/promptloop/chat"
	"github.com/promptloop/promptloop/eval"
	"github.com/promptloop/promptloop/prompt"
)

// DefaultInputsHeader introduces the input definitions in the assembled
// prompt when no override is configured.
const DefaultInputsHeader = "You are provided the following inputs:"

// ErrNoOutputs is returned when a module is configured without output
// fields.
var ErrNoOutputs = errors.New("module requires at least one output field")

// IncompleteOutputError is returned when declared output fields are not
// recoverable from the parsed response text.
type IncompleteOutputError struct {
	Missing []string
}

func (e *IncompleteOutputError) Error() string {
	return fmt.Sprintf("incomplete output: missing fields %s", strings.Join(e.Missing, ", "))
}

// Config describes a Module.
type Config struct {
	// Chat configures the underlying engine (provider, model, sampling,
	// logging).
	Chat chat.Config

	// Inputs are the module's input fields, in prompt order.
	Inputs []Field

	// Outputs are the module's output fields, in prompt order. The last
	// output is the module's target when composed by a Revisor.
	Outputs []Field

	// InputsHeader overrides DefaultInputsHeader.
	InputsHeader string

	// Task is the instruction sentence describing what to do.
	Task string

	// Details is an optional free-text block inserted after the output
	// requirements.
	Details string

	// Footer overrides the derived closing instruction naming the expected
	// output tags.
	Footer string
}

// Module is a chat engine specialized with a declarative prompt shape:
// each invocation assembles a prompt from its field definitions, runs a
// fresh single-shot chat call, and parses the declared outputs back out of
// the response text.
type Module struct {
	cfg    Config
	engine *chat.Engine
	log    *zap.Logger
}

// New validates the configuration and builds the Module and its engine.
func New(cfg Config) (*Module, error) {
	if len(cfg.Outputs) == 0 {
		return nil, ErrNoOutputs
	}
	if cfg.InputsHeader == "" {
		cfg.InputsHeader = DefaultInputsHeader
	}
	if cfg.Footer == "" {
		cfg.Footer = deriveFooter(cfg.Outputs)
	}

	engine, err := chat.New(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("building chat engine: %w", err)
	}

	log := cfg.Chat.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Module{cfg: cfg, engine: engine, log: log}, nil
}

// deriveFooter builds the closing instruction from the output field names.
func deriveFooter(outputs []Field) string {
	var inline string
	switch len(outputs) {
	case 1:
		inline = outputs[0].XML()
	case 2:
		inline = outputs[0].XML() + "..." + outputs[0].XMLClose() +
			" and " + outputs[1].XML() + "..." + outputs[1].XMLClose()
	default:
		parts := make([]string, len(outputs))
		for i, f := range outputs {
			parts[i] = f.XML() + "..." + f.XMLClose()
		}
		inline = strings.Join(parts, ", ")
	}

	plural := ""
	if len(outputs) > 1 {
		plural = "s"
	}
	return fmt.Sprintf("Generate the required output%s within XML tags: %s", plural, inline)
}

// Outputs returns the module's declared output fields.
func (m *Module) Outputs() []Field {
	return m.cfg.Outputs
}

// Target returns the module's target output field: the last declared
// output.
func (m *Module) Target() Field {
	return m.cfg.Outputs[len(m.cfg.Outputs)-1]
}

// Prompt assembles the module's prompt template. Assembly order is fixed:
// task header, inputs header and definitions, task sentence, output
// instructions with delimiter tags, per-output requirement bullets, the
// details block, input template regions, and the closing footer.
func (m *Module) Prompt() string {
	sections := []string{"# Task Description"}

	if len(m.cfg.Inputs) > 0 {
		sections = append(sections, m.cfg.InputsHeader)
		defs := make([]string, len(m.cfg.Inputs))
		for i, f := range m.cfg.Inputs {
			defs[i] = "- " + f.Definition()
		}
		sections = append(sections, strings.Join(defs, "\n"))
	}

	if m.cfg.Task != "" {
		sections = append(sections, m.cfg.Task)
	}

	sections = append(sections, "Generate the following outputs within XML tags:")
	for _, f := range m.cfg.Outputs {
		sections = append(sections, f.XML()+"\n"+f.Description+"\n"+f.XMLClose())
	}

	for _, f := range m.cfg.Outputs {
		if len(f.Evaluations) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("Requirements for %s:", f.Markdown()))
		reqs := make([]string, len(f.Evaluations))
		for i, evl := range f.Evaluations {
			reqs[i] = "- " + evl.Requirement()
		}
		sections = append(sections, strings.Join(reqs, "\n"))
	}

	if m.cfg.Details != "" {
		sections = append(sections, m.cfg.Details)
	}

	if len(m.cfg.Inputs) > 0 {
		sections = append(sections, "# Inputs")
		for _, f := range m.cfg.Inputs {
			sections = append(sections, f.InputTemplate())
		}
	}

	if m.cfg.Footer != "" {
		sections = append(sections, m.cfg.Footer)
	}

	return strings.Join(sections, "\n\n")
}

// Run substitutes inputs into the assembled prompt, issues a fresh
// single-shot chat call, and extracts every declared output from the
// response text. A transport failure degrades to an empty response, which
// trips the completeness check; the returned mapping is never partially
// populated.
func (m *Module) Run(ctx context.Context, inputs eval.Inputs) (map[string]string, error) {
	m.engine.ClearHistory()

	rendered := prompt.NewTemplate(m.Prompt()).Render(inputs)
	text, err := m.engine.Send(ctx, rendered)
	if err != nil {
		m.log.Warn("module chat call failed", zap.Error(err))
		text = ""
	}

	outputs := make(map[string]string, len(m.cfg.Outputs))
	var missing []string
	for _, f := range m.cfg.Outputs {
		contents := prompt.ParseTag(text, f.Name)
		if len(contents) == 0 {
			missing = append(missing, f.Name)
			continue
		}
		outputs[f.Name] = strings.TrimSpace(contents[len(contents)-1])
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &IncompleteOutputError{Missing: missing}
	}

	return outputs, nil
}

// Tokens returns the underlying engine's token tally.
func (m *Module) Tokens() chat.Tokens {
	return m.engine.Tokens()
}
