// Package provider defines the boundary to the LLM completion transport.
// The orchestration core treats a provider as an opaque remote call with
// the fixed request/response contract declared here.
package provider

import "context"

// Provider is the core abstraction over a completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic").
	Name() string

	// ModelInfo reports the capabilities of a model served by this provider.
	ModelInfo(model string) ModelInfo

	// Call executes a non-streaming completion request.
	Call(ctx context.Context, req *Request) (*Response, error)
}

// StreamingProvider extends Provider with incremental delivery.
type StreamingProvider interface {
	Provider

	// CallStream executes a streaming completion request.
	CallStream(ctx context.Context, req *Request) (ResponseStream, error)
}

// ModelInfo describes what a model supports. The chat engine fails fast at
// construction or call time when a requested feature is unsupported.
type ModelInfo struct {
	SupportsFunctionCalling bool
	SupportsPrefill         bool
}

// ResponseStream is a pull-based sequence of completion increments. It is
// finite and non-restartable; the caller drives progress by calling Next.
type ResponseStream interface {
	// Next advances to the next chunk, returning false when the stream is
	// exhausted or failed.
	Next() bool

	// Current returns the chunk Next advanced to.
	Current() *StreamChunk

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close releases transport resources. Closing before exhaustion is how
	// a consumer cancels.
	Close() error

	// Accumulated reconstructs the full structured response from the chunks
	// observed so far. After exhaustion it is equivalent to the response a
	// non-streaming call would have returned, including usage.
	Accumulated() *Response
}
