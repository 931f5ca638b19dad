// Package chat implements the conversation engine: multi-turn history,
// completion calls, bounded tool-call resolution, and streaming snapshots.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/promptloop/promptloop/prompt"
	"github.com/promptloop/promptloop/provider"
)

// Default generation parameters, applied when the corresponding Config
// field is zero.
const (
	DefaultMaxTokens = 4096
	DefaultTopP      = 1.0
)

// Config describes an Engine. The zero value of MaxToolCalls means a tool
// request is resolved but never followed up with another completion call.
type Config struct {
	// Provider is the name of a registered provider.
	Provider string

	// Model is the backend model identifier.
	Model string

	// SystemPrompt, when non-empty, is prepended to every outgoing message
	// list. It is not part of the conversation history.
	SystemPrompt string

	// Temperature is the sampling temperature.
	Temperature float64

	// TopP is the cumulative probability for nucleus sampling. Zero means
	// DefaultTopP.
	TopP float64

	// MaxTokens is the maximum number of tokens to generate. Zero means
	// DefaultMaxTokens.
	MaxTokens int

	// Tools are the callables the model may invoke. Requires a model that
	// supports function calling.
	Tools []Tool

	// MaxToolCalls bounds the depth of sequential follow-up completions
	// issued to resolve tool calls.
	MaxToolCalls int

	// StreamToolOutput re-surfaces the increments of a StreamingTool as
	// snapshots during a streaming call.
	StreamToolOutput bool

	// TagArgsFromHistory merges tag-delimited blocks found anywhere in the
	// conversation history into every tool's decoded arguments, so a tool
	// can reference any datum the user or assistant has surfaced in XML
	// form. Arguments generated by the model take precedence.
	TagArgsFromHistory bool

	// Logger receives debug-level call and tool telemetry. Nil means no
	// logging.
	Logger *zap.Logger
}

// Tokens is the running token tally of an Engine. Input/Output accumulate
// across calls; LastInput/LastOutput reflect the most recent completion.
type Tokens struct {
	Input      int
	Output     int
	LastInput  int
	LastOutput int
}

func (t *Tokens) add(u provider.Usage) {
	t.Input += u.PromptTokens
	t.Output += u.CompletionTokens
	t.LastInput = u.PromptTokens
	t.LastOutput = u.CompletionTokens
}

// Engine owns one conversation with a model. History is mutated only by the
// engine's call methods, in strict call order; an Engine instance assumes
// at most one in-flight call at a time.
type Engine struct {
	cfg     Config
	backend provider.Provider
	info    provider.ModelInfo
	toolset map[string]Tool
	schemas []provider.ToolDef // index-aligned with cfg.Tools
	history []provider.Message
	tokens  Tokens
	log     *zap.Logger
}

// New validates the configuration and builds an Engine. Tool schemas are
// derived once, here; the tool map is never mutated afterward. Registering
// tools against a model without function-calling support is a configuration
// error.
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == "" {
		return nil, ErrProviderRequired
	}
	if cfg.Model == "" {
		return nil, ErrModelRequired
	}

	backend, err := provider.Get(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	info := backend.ModelInfo(cfg.Model)
	if len(cfg.Tools) > 0 && !info.SupportsFunctionCalling {
		return nil, ErrToolsUnsupported
	}

	if cfg.TopP == 0 {
		cfg.TopP = DefaultTopP
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		cfg:     cfg,
		backend: backend,
		info:    info,
		toolset: make(map[string]Tool, len(cfg.Tools)),
		log:     log,
	}

	for _, tool := range cfg.Tools {
		if _, exists := e.toolset[tool.Name()]; exists {
			return nil, &DuplicateToolError{Name: tool.Name()}
		}
		params, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, fmt.Errorf("marshaling schema for tool %q: %w", tool.Name(), err)
		}
		e.toolset[tool.Name()] = tool
		e.schemas = append(e.schemas, provider.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		})
	}

	return e, nil
}

// SendOption configures a single Send or Stream call.
type SendOption func(*sendConfig)

type sendConfig struct {
	prefill string
}

// WithPrefill seeds the assistant's next turn. The model's continuation is
// concatenated onto the seed to form the full response. Requires a model
// that supports assistant prefill.
func WithPrefill(seed string) SendOption {
	return func(c *sendConfig) {
		c.prefill = seed
	}
}

// Send appends userInput to the history (when non-empty), issues a
// completion call, and resolves any requested tool calls, following up with
// further completions down to the configured depth. The returned text is
// the concatenation of every turn in the resolution chain.
func (e *Engine) Send(ctx context.Context, userInput string, opts ...SendOption) (string, error) {
	var sc sendConfig
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.prefill != "" && !e.info.SupportsPrefill {
		return "", ErrPrefillUnsupported
	}

	if userInput != "" {
		e.history = append(e.history, provider.Message{Role: provider.RoleUser, Content: userInput})
	}

	var visible strings.Builder
	prefill := sc.prefill
	for depth := 0; ; depth++ {
		resp, err := e.complete(ctx, prefill)
		if err != nil {
			return visible.String(), err
		}
		visible.WriteString(resp.Content)
		prefill = ""

		if len(resp.ToolCalls) == 0 {
			break
		}
		for _, tc := range resp.ToolCalls {
			rendered, err := e.resolveToolCall(ctx, tc)
			if err != nil {
				return visible.String(), err
			}
			visible.WriteString(rendered)
		}
		if depth >= e.cfg.MaxToolCalls {
			// The unresolved request stays in history without a follow-up
			// turn; a later call on this engine can pick it up.
			e.log.Debug("tool call depth ceiling reached", zap.Int("max_tool_calls", e.cfg.MaxToolCalls))
			break
		}
	}

	return visible.String(), nil
}

// ClearHistory clears and reinitializes the conversation history.
func (e *Engine) ClearHistory() {
	e.history = nil
}

// History returns a copy of the conversation history, in order.
func (e *Engine) History() []provider.Message {
	out := make([]provider.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Tokens returns the current token tally.
func (e *Engine) Tokens() Tokens {
	return e.tokens
}

// complete issues one completion request, commits the assistant turn to
// history, and updates the token tally. The returned response content has
// the prefill already concatenated.
func (e *Engine) complete(ctx context.Context, prefill string) (*provider.Response, error) {
	resp, err := e.backend.Call(ctx, e.buildRequest(prefill))
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}
	e.commit(resp, prefill)
	return resp, nil
}

// buildRequest assembles the outgoing message list: system prompt first,
// then the full history, then a synthetic assistant turn when a prefill was
// supplied.
func (e *Engine) buildRequest(prefill string) *provider.Request {
	msgs := make([]provider.Message, 0, len(e.history)+2)
	if e.cfg.SystemPrompt != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: e.cfg.SystemPrompt})
	}
	msgs = append(msgs, e.history...)
	if prefill != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleAssistant, Content: prefill})
	}

	temp := e.cfg.Temperature
	topP := e.cfg.TopP
	maxTokens := e.cfg.MaxTokens
	return &provider.Request{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Tools:       e.schemas,
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	}
}

// commit records a completed assistant turn: prefill concatenation, history
// append, token tally.
func (e *Engine) commit(resp *provider.Response, prefill string) {
	resp.Content = prefill + resp.Content
	e.history = append(e.history, provider.Message{
		Role:      provider.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	e.tokens.add(resp.Usage)
	e.log.Debug("completion",
		zap.String("model", e.cfg.Model),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens))
}

// resolveToolCall resolves one requested invocation: looks up the callable,
// decodes (and optionally augments) its arguments, invokes it, appends the
// tool-result message to history, and returns a rendering of the call and
// its result for the visible response text.
func (e *Engine) resolveToolCall(ctx context.Context, tc provider.ToolCall) (string, error) {
	tool, ok := e.toolset[tc.Name]
	if !ok {
		return "", &ToolNotFoundError{Name: tc.Name}
	}

	args, err := e.toolArgs(tc)
	if err != nil {
		return "", err
	}

	result, err := tool.Execute(ctx, args)
	content := normalizeToolResult(result, err)
	e.appendToolResult(tc, content)
	return renderToolCall(tc, content), nil
}

// toolArgs decodes a tool call's arguments, merging tag-delimited blocks
// from the history when configured. Model-generated arguments win over
// history blocks; among blocks with the same tag, the most recent wins.
func (e *Engine) toolArgs(tc provider.ToolCall) (json.RawMessage, error) {
	if !e.cfg.TagArgsFromHistory {
		return json.RawMessage(tc.Arguments), nil
	}

	merged := make(map[string]any)
	for _, msg := range e.history {
		for _, block := range prompt.ParseAll(msg.Content) {
			merged[block.Tag] = block.Content
		}
	}

	if tc.Arguments != "" {
		var explicit map[string]any
		if err := json.Unmarshal([]byte(tc.Arguments), &explicit); err != nil {
			return nil, fmt.Errorf("decoding arguments for tool %q: %w", tc.Name, err)
		}
		for k, v := range explicit {
			merged[k] = v
		}
	}

	return json.Marshal(merged)
}

// appendToolResult appends a tool-result message to history.
func (e *Engine) appendToolResult(tc provider.ToolCall, content string) {
	e.history = append(e.history, provider.Message{
		Role:    provider.RoleTool,
		ToolID:  tc.ID,
		Name:    tc.Name,
		Content: content,
	})
	e.log.Debug("tool call resolved", zap.String("tool", tc.Name), zap.Int("result_len", len(content)))
}

// normalizeToolResult converts a tool's return value to message content.
// Execution errors become content rather than failing the turn, so the
// model can see and react to them.
func normalizeToolResult(result any, err error) string {
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("Error marshaling result: %v", err)
		}
		return string(encoded)
	}
}

// renderToolCall renders a resolved call for the visible response text.
func renderToolCall(tc provider.ToolCall, content string) string {
	return fmt.Sprintf("\n\ntool %s(%s):\n%s\n", tc.Name, tc.Arguments, content)
}
