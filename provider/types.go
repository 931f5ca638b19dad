package provider

import "encoding/json"

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDef
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Message is a single turn in a conversation.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall // requested invocations, Role == RoleAssistant
	ToolID    string     // id of the call being answered, Role == RoleTool
	Name      string     // name of the tool that produced it, Role == RoleTool
}

// Role identifies the message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Response is the result of a completed (non-streaming) request, or the
// accumulated form of an exhausted stream.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded keyword arguments
}

// ToolDef declares a tool the model may call.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// Usage holds token counts for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// StreamChunk is one increment of a streaming response.
type StreamChunk struct {
	Delta         string
	ToolCallDelta *ToolCallDelta
	FinishReason  FinishReason
}

// ToolCallDelta is incremental tool-call data within a stream.
type ToolCallDelta struct {
	ID             string
	Name           string
	ArgumentsDelta string
}
