package chat

import (
	"errors"
	"fmt"
)

// Configuration errors, reported fast at construction or call time.
var (
	// ErrProviderRequired is returned when Config.Provider is empty.
	ErrProviderRequired = errors.New("provider is required")

	// ErrModelRequired is returned when Config.Model is empty.
	ErrModelRequired = errors.New("model is required")

	// ErrToolsUnsupported is returned when tools are registered against a
	// model that does not support function calling.
	ErrToolsUnsupported = errors.New("tools registered but model does not support function calling")

	// ErrPrefillUnsupported is returned when a prefill is requested against
	// a model that does not support assistant prefill.
	ErrPrefillUnsupported = errors.New("prefill requested but model does not support assistant prefill")
)

// ToolNotFoundError is returned when the backend requests a tool absent
// from the registered tool map. This indicates the declared schemas and the
// tool map have drifted out of sync, so it propagates rather than being
// degraded to a tool-result message.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %q", e.Name)
}

// DuplicateToolError is returned when two registered tools share a name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool name: %q", e.Name)
}
