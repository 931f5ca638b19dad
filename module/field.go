// Package module composes declarative prompt modules over the chat engine:
// typed input/output fields, deterministic prompt assembly, tag-based
// output extraction, and the bounded generate-evaluate-revise loop.
package module

import (
	"github.com/promptloop/promptloop/eval"
)

// Field is a named module input or output slot. It is immutable once
// constructed; evaluations and upstream inputs attach to output fields.
type Field struct {
	Name        string
	Description string
	Evaluations []eval.Evaluation
	Inputs      []Field // upstream fields, used by nested evaluators
}

// Definition returns the "name: description" line used in prompt bullets.
func (f Field) Definition() string {
	return f.Name + ": " + f.Description
}

// Markdown returns the field name formatted as inline code.
func (f Field) Markdown() string {
	return "`" + f.Name + "`"
}

// XML returns the field's opening delimiter tag.
func (f Field) XML() string {
	return "<" + f.Name + ">"
}

// XMLClose returns the field's closing delimiter tag.
func (f Field) XMLClose() string {
	return "</" + f.Name + ">"
}

// InputTemplate returns the field rendered as a template region: delimiter
// tags around a double-brace placeholder.
func (f Field) InputTemplate() string {
	return f.XML() + "\n{{" + f.Name + "}}\n" + f.XMLClose()
}

// ChainOfThought is the conventional scratchpad output field prepended by
// the single-output pipeline constructors.
func ChainOfThought() Field {
	return Field{Name: "thinking", Description: "Begin by thinking step by step"}
}
