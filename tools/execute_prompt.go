// Package tools provides built-in tools for the chat engine.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/promptloop/promptloop/chat"
	"github.com/promptloop/promptloop/prompt"
	"github.com/promptloop/promptloop/schema"
)

// executePromptInput declares the model-visible parameters. The remaining
// arguments, including the prompt body itself, arrive through tag-argument
// augmentation from the conversation history.
type executePromptInput struct {
	PromptID string `json:"prompt_id" jsonschema:"required,description=The xml tag of the prompt to be submitted"`
}

// ExecutePrompt runs a prompt the assistant previously generated in the
// conversation. The prompt body and its input values are looked up by tag
// name from the augmented arguments, so the engine must run with tag
// arguments from history enabled.
type ExecutePrompt struct {
	cfg    chat.Config
	schema *jsonschema.Schema
}

// NewExecutePrompt builds the tool. cfg configures the nested engine each
// execution runs on; tools and system prompt are stripped so a submitted
// prompt cannot recurse.
func NewExecutePrompt(cfg chat.Config) *ExecutePrompt {
	cfg.Tools = nil
	cfg.SystemPrompt = ""
	cfg.TagArgsFromHistory = false
	return &ExecutePrompt{
		cfg:    cfg,
		schema: schema.Reflect[executePromptInput](),
	}
}

func (t *ExecutePrompt) Name() string {
	return "execute_prompt"
}

func (t *ExecutePrompt) Description() string {
	return "Submit a prompt indicated by the prompt tag using the most recent data provided by the user."
}

func (t *ExecutePrompt) Parameters() *jsonschema.Schema {
	return t.schema
}

// Execute renders the named prompt template over the full argument set and
// runs it on a fresh single-shot engine.
func (t *ExecutePrompt) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var all map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &all); err != nil {
			return nil, fmt.Errorf("decoding execute_prompt arguments: %w", err)
		}
	}

	id := prompt.Stringify(all["prompt_id"])
	if id == "" {
		return nil, fmt.Errorf("execute_prompt: prompt_id is required")
	}
	body := prompt.Stringify(all[id])
	if body == "" {
		return nil, fmt.Errorf("execute_prompt: no prompt found under tag %q", id)
	}

	rendered := prompt.NewTemplate(body).Render(all)

	engine, err := chat.New(t.cfg)
	if err != nil {
		return nil, fmt.Errorf("execute_prompt: %w", err)
	}
	return engine.Send(ctx, rendered)
}
