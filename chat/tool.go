package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/invopop/jsonschema"

	"github.com/promptloop/promptloop/schema"
)

// Tool is an executable function the model can call. Implementations must
// be safe to invoke repeatedly; the engine resolves every call the backend
// requests, in the order the backend returned them.
type Tool interface {
	// Name returns the tool's name as seen by the model.
	Name() string

	// Description returns the tool's description for the model.
	Description() string

	// Parameters returns the JSON schema for the tool's keyword arguments.
	Parameters() *jsonschema.Schema

	// Execute runs the tool with the given JSON arguments. A nil result is
	// normalized to the empty string; non-string results are JSON-encoded.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// StreamingTool is a Tool whose output arrives incrementally. When the
// engine is configured to stream tool output, each yielded increment is
// re-surfaced as a further snapshot of the overall response; otherwise the
// increments are concatenated and treated as a single result.
type StreamingTool interface {
	Tool

	// ExecuteStream runs the tool, yielding incremental string results.
	ExecuteStream(ctx context.Context, args json.RawMessage) (iter.Seq[string], error)
}

// TypedTool provides type-safe tool creation with an auto-generated
// parameter schema. In is the input type, Out the output type.
type TypedTool[In any, Out any] struct {
	name        string
	description string
	fn          func(ctx context.Context, in In) (Out, error)
	schema      *jsonschema.Schema
}

// NewTool creates a type-safe tool from a function. The input type In is
// reflected into the JSON schema the model sees.
//
// Example:
//
//	type WeatherInput struct {
//	    Location string `json:"location" jsonschema:"required,description=A location to fetch the weather for"`
//	}
//
//	weather := chat.NewTool("get_weather", "Returns the weather for a location",
//	    func(ctx context.Context, in WeatherInput) (string, error) {
//	        return lookup(in.Location), nil
//	    },
//	)
func NewTool[In any, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
) *TypedTool[In, Out] {
	return &TypedTool[In, Out]{
		name:        name,
		description: description,
		fn:          fn,
		schema:      schema.Reflect[In](),
	}
}

// Name returns the tool's name.
func (t *TypedTool[In, Out]) Name() string {
	return t.name
}

// Description returns the tool's description.
func (t *TypedTool[In, Out]) Description() string {
	return t.description
}

// Parameters returns the JSON schema for the tool's arguments.
func (t *TypedTool[In, Out]) Parameters() *jsonschema.Schema {
	return t.schema
}

// Execute runs the tool with the given JSON arguments.
func (t *TypedTool[In, Out]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var input In
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("unmarshaling arguments for tool %q: %w", t.name, err)
		}
	}
	return t.fn(ctx, input)
}

// StreamTool is a tool whose typed function yields incremental output.
type StreamTool[In any] struct {
	name        string
	description string
	fn          func(ctx context.Context, in In) iter.Seq[string]
	schema      *jsonschema.Schema
}

// NewStreamTool creates a streaming tool from a function that yields
// incremental string results.
func NewStreamTool[In any](
	name, description string,
	fn func(ctx context.Context, in In) iter.Seq[string],
) *StreamTool[In] {
	return &StreamTool[In]{
		name:        name,
		description: description,
		fn:          fn,
		schema:      schema.Reflect[In](),
	}
}

// Name returns the tool's name.
func (t *StreamTool[In]) Name() string {
	return t.name
}

// Description returns the tool's description.
func (t *StreamTool[In]) Description() string {
	return t.description
}

// Parameters returns the JSON schema for the tool's arguments.
func (t *StreamTool[In]) Parameters() *jsonschema.Schema {
	return t.schema
}

// Execute runs the tool to completion, concatenating its increments.
func (t *StreamTool[In]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	seq, err := t.ExecuteStream(ctx, args)
	if err != nil {
		return nil, err
	}
	var out string
	for inc := range seq {
		out += inc
	}
	return out, nil
}

// ExecuteStream runs the tool, yielding each increment as it is produced.
func (t *StreamTool[In]) ExecuteStream(ctx context.Context, args json.RawMessage) (iter.Seq[string], error) {
	var input In
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("unmarshaling arguments for tool %q: %w", t.name, err)
		}
	}
	return t.fn(ctx, input), nil
}
