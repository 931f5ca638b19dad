package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptloop/promptloop/provider"
)

// scriptedProvider replays a fixed sequence of responses and records every
// request it receives.
type scriptedProvider struct {
	name      string
	info      provider.ModelInfo
	responses []*provider.Response
	requests  []*provider.Request
	failWith  error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) ModelInfo(model string) provider.ModelInfo { return p.info }

func (p *scriptedProvider) Call(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if p.failWith != nil {
		return nil, p.failWith
	}
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, errors.New("scripted provider exhausted")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	// Copy: the engine mutates Content when concatenating a prefill.
	cp := *resp
	return &cp, nil
}

// register installs the scripted provider under a unique name and returns
// that name.
func (p *scriptedProvider) register() string {
	p.name = "scripted-" + uuid.NewString()
	provider.Register(p.name, func() (provider.Provider, error) { return p, nil })
	return p.name
}

func fullSupport() provider.ModelInfo {
	return provider.ModelInfo{SupportsFunctionCalling: true, SupportsPrefill: true}
}

func textResponse(content string) *provider.Response {
	return &provider.Response{
		Content:      content,
		FinishReason: provider.FinishReasonStop,
		Usage:        provider.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
}

func toolCallResponse(name, args string) *provider.Response {
	return &provider.Response{
		ToolCalls: []provider.ToolCall{{
			ID:        uuid.NewString(),
			Name:      name,
			Arguments: args,
		}},
		FinishReason: provider.FinishReasonToolCalls,
		Usage:        provider.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
}

type echoInput struct {
	Text string `json:"text"`
}

func echoTool() Tool {
	return NewTool("echo", "Echoes its input", func(ctx context.Context, in echoInput) (string, error) {
		return "echo:" + in.Text, nil
	})
}

func TestNewValidation(t *testing.T) {
	backend := &scriptedProvider{info: fullSupport()}
	name := backend.register()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "missing provider",
			cfg:     Config{Model: "m"},
			wantErr: ErrProviderRequired,
		},
		{
			name:    "missing model",
			cfg:     Config{Provider: name},
			wantErr: ErrModelRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewRejectsToolsWithoutFunctionCalling(t *testing.T) {
	backend := &scriptedProvider{info: provider.ModelInfo{SupportsFunctionCalling: false}}
	name := backend.register()

	_, err := New(Config{Provider: name, Model: "m", Tools: []Tool{echoTool()}})
	assert.ErrorIs(t, err, ErrToolsUnsupported)
}

func TestNewRejectsDuplicateToolNames(t *testing.T) {
	backend := &scriptedProvider{info: fullSupport()}
	name := backend.register()

	_, err := New(Config{Provider: name, Model: "m", Tools: []Tool{echoTool(), echoTool()}})
	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "echo", dup.Name)
}

func TestSend(t *testing.T) {
	backend := &scriptedProvider{
		info:      fullSupport(),
		responses: []*provider.Response{textResponse("hello there")},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m", SystemPrompt: "be terse"})
	require.NoError(t, err)

	text, err := e.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	// System prompt is prepended to the outgoing list, not stored in history.
	require.Len(t, backend.requests, 1)
	sent := backend.requests[0].Messages
	require.Len(t, sent, 2)
	assert.Equal(t, provider.RoleSystem, sent[0].Role)
	assert.Equal(t, provider.RoleUser, sent[1].Role)

	history := e.History()
	require.Len(t, history, 2)
	assert.Equal(t, provider.RoleUser, history[0].Role)
	assert.Equal(t, provider.RoleAssistant, history[1].Role)
	assert.Equal(t, "hello there", history[1].Content)

	tokens := e.Tokens()
	assert.Equal(t, 10, tokens.Input)
	assert.Equal(t, 5, tokens.Output)
	assert.Equal(t, 10, tokens.LastInput)
	assert.Equal(t, 5, tokens.LastOutput)
}

func TestSendAccumulatesTokens(t *testing.T) {
	backend := &scriptedProvider{
		info:      fullSupport(),
		responses: []*provider.Response{textResponse("one"), textResponse("two")},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = e.Send(context.Background(), "second")
	require.NoError(t, err)

	tokens := e.Tokens()
	assert.Equal(t, 20, tokens.Input)
	assert.Equal(t, 10, tokens.Output)
	assert.Equal(t, 10, tokens.LastInput)
}

func TestSendPrefill(t *testing.T) {
	backend := &scriptedProvider{
		info:      fullSupport(),
		responses: []*provider.Response{textResponse(" the beginning")},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	text, err := e.Send(context.Background(), "tell a story", WithPrefill("Once upon a time"))
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time the beginning", text)

	// The prefill rides along as a synthetic assistant turn.
	sent := backend.requests[0].Messages
	last := sent[len(sent)-1]
	assert.Equal(t, provider.RoleAssistant, last.Role)
	assert.Equal(t, "Once upon a time", last.Content)

	// History holds the concatenated turn, not the synthetic seed.
	history := e.History()
	assert.Equal(t, "Once upon a time the beginning", history[len(history)-1].Content)
}

func TestSendPrefillUnsupported(t *testing.T) {
	backend := &scriptedProvider{
		info: provider.ModelInfo{SupportsFunctionCalling: true, SupportsPrefill: false},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "hi", WithPrefill("seed"))
	assert.ErrorIs(t, err, ErrPrefillUnsupported)
}

func TestSendResolvesToolCalls(t *testing.T) {
	backend := &scriptedProvider{
		info: fullSupport(),
		responses: []*provider.Response{
			toolCallResponse("echo", `{"text":"ping"}`),
			textResponse("done"),
		},
	}
	e, err := New(Config{
		Provider:     backend.register(),
		Model:        "m",
		Tools:        []Tool{echoTool()},
		MaxToolCalls: 5,
	})
	require.NoError(t, err)

	text, err := e.Send(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, text, `tool echo({"text":"ping"})`)
	assert.Contains(t, text, "echo:ping")
	assert.Contains(t, text, "done")

	// user, assistant(tool call), tool result, assistant(final)
	history := e.History()
	require.Len(t, history, 4)
	assert.Equal(t, provider.RoleTool, history[2].Role)
	assert.Equal(t, "echo", history[2].Name)
	assert.Equal(t, "echo:ping", history[2].Content)
	assert.NotEmpty(t, history[2].ToolID)

	// Two completion calls: the original and the follow-up.
	assert.Len(t, backend.requests, 2)
}

func TestSendDepthCeilingZero(t *testing.T) {
	backend := &scriptedProvider{
		info: fullSupport(),
		responses: []*provider.Response{
			toolCallResponse("echo", `{"text":"ping"}`),
			textResponse("never requested"),
		},
	}
	e, err := New(Config{
		Provider:     backend.register(),
		Model:        "m",
		Tools:        []Tool{echoTool()},
		MaxToolCalls: 0,
	})
	require.NoError(t, err)

	text, err := e.Send(context.Background(), "go")
	require.NoError(t, err)

	// No follow-up completion call was attempted.
	assert.Len(t, backend.requests, 1)
	assert.Contains(t, text, "echo:ping")

	// The tool result is in history with no satisfying assistant turn after it.
	history := e.History()
	assert.Equal(t, provider.RoleTool, history[len(history)-1].Role)
}

func TestSendUnknownToolPropagates(t *testing.T) {
	backend := &scriptedProvider{
		info:      fullSupport(),
		responses: []*provider.Response{toolCallResponse("vanished", `{}`)},
	}
	e, err := New(Config{
		Provider:     backend.register(),
		Model:        "m",
		Tools:        []Tool{echoTool()},
		MaxToolCalls: 3,
	})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "go")
	var notFound *ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "vanished", notFound.Name)
}

func TestSendTransportErrorPropagates(t *testing.T) {
	backend := &scriptedProvider{info: fullSupport(), failWith: errors.New("connection reset")}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestTagArgsFromHistory(t *testing.T) {
	var seen map[string]any
	capture := NewTool("capture", "Records its raw arguments",
		func(ctx context.Context, in map[string]any) (string, error) {
			seen = in
			return "ok", nil
		})

	backend := &scriptedProvider{
		info: fullSupport(),
		responses: []*provider.Response{
			textResponse("Noted: <document>v1</document>"),
			textResponse("Updated: <document>v2</document> and <title>T</title>"),
			toolCallResponse("capture", `{"title":"explicit"}`),
			textResponse("done"),
		},
	}
	e, err := New(Config{
		Provider:           backend.register(),
		Model:              "m",
		Tools:              []Tool{capture},
		MaxToolCalls:       3,
		TagArgsFromHistory: true,
	})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = e.Send(context.Background(), "second")
	require.NoError(t, err)
	_, err = e.Send(context.Background(), "call the tool")
	require.NoError(t, err)

	require.NotNil(t, seen)
	// Most recent block wins; model-generated arguments win over blocks.
	assert.Equal(t, "v2", seen["document"])
	assert.Equal(t, "explicit", seen["title"])
}

func TestClearHistory(t *testing.T) {
	backend := &scriptedProvider{
		info:      fullSupport(),
		responses: []*provider.Response{textResponse("hi")},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	_, err = e.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, e.History())

	e.ClearHistory()
	assert.Empty(t, e.History())
}

func TestNormalizeToolResult(t *testing.T) {
	assert.Equal(t, "", normalizeToolResult(nil, nil))
	assert.Equal(t, "plain", normalizeToolResult("plain", nil))
	assert.Equal(t, "Error: boom", normalizeToolResult(nil, errors.New("boom")))

	encoded := normalizeToolResult(map[string]int{"n": 1}, nil)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Equal(t, 1, decoded["n"])
}

func TestRenderToolCall(t *testing.T) {
	tc := provider.ToolCall{Name: "echo", Arguments: `{"text":"x"}`}
	rendered := renderToolCall(tc, "result")
	assert.Equal(t, fmt.Sprintf("\n\ntool echo(%s):\nresult\n", `{"text":"x"}`), rendered)
}
