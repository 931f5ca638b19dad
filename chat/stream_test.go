package chat

import (
	"context"
	"iter"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptloop/promptloop/provider"
)

// scriptedStreamProvider replays scripted responses in fixed-size chunks.
type scriptedStreamProvider struct {
	scriptedProvider
	chunkSize int
}

// register shadows the embedded method so the registry hands back the
// streaming-capable wrapper, not the inner scriptedProvider.
func (p *scriptedStreamProvider) register() string {
	p.name = "scripted-stream-" + uuid.NewString()
	provider.Register(p.name, func() (provider.Provider, error) { return p, nil })
	return p.name
}

func (p *scriptedStreamProvider) CallStream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, assert.AnError
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	cp := *resp

	size := p.chunkSize
	if size <= 0 {
		size = 4
	}
	var deltas []string
	for content := cp.Content; content != ""; {
		n := min(size, len(content))
		deltas = append(deltas, content[:n])
		content = content[n:]
	}
	return &scriptedStream{deltas: deltas, resp: &cp}, nil
}

type scriptedStream struct {
	deltas  []string
	resp    *provider.Response
	i       int
	current *provider.StreamChunk
	closed  bool
}

func (s *scriptedStream) Next() bool {
	if s.i >= len(s.deltas) {
		return false
	}
	s.current = &provider.StreamChunk{Delta: s.deltas[s.i]}
	s.i++
	return true
}

func (s *scriptedStream) Current() *provider.StreamChunk { return s.current }

func (s *scriptedStream) Err() error { return nil }

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedStream) Accumulated() *provider.Response { return s.resp }

func collect(t *testing.T, s *Snapshots) []string {
	t.Helper()
	var snapshots []string
	for snap := range s.All() {
		snapshots = append(snapshots, snap)
	}
	require.NoError(t, s.Err())
	return snapshots
}

func TestStreamSnapshots(t *testing.T) {
	backend := &scriptedStreamProvider{
		scriptedProvider: scriptedProvider{
			info:      fullSupport(),
			responses: []*provider.Response{textResponse("a longer streamed reply")},
		},
		chunkSize: 5,
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	s, err := e.Stream(context.Background(), "hi")
	require.NoError(t, err)
	snapshots := collect(t, s)

	require.NotEmpty(t, snapshots)
	// Each snapshot is the entire text so far: monotonically extending prefixes.
	for i := 1; i < len(snapshots); i++ {
		assert.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]))
	}
	assert.Equal(t, "a longer streamed reply", snapshots[len(snapshots)-1])
	assert.Equal(t, "a longer streamed reply", s.Text())

	// History and tallies are committed after exhaustion, same as Send.
	history := e.History()
	require.Len(t, history, 2)
	assert.Equal(t, "a longer streamed reply", history[1].Content)
	assert.Equal(t, 5, e.Tokens().Output)
}

func TestStreamAbandonDoesNotCommit(t *testing.T) {
	backend := &scriptedStreamProvider{
		scriptedProvider: scriptedProvider{
			info:      fullSupport(),
			responses: []*provider.Response{textResponse("should never be committed")},
		},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	s, err := e.Stream(context.Background(), "hi")
	require.NoError(t, err)
	for range s.All() {
		break
	}

	// The user turn is recorded, the abandoned assistant turn is not.
	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, provider.RoleUser, history[0].Role)
	assert.Equal(t, 0, e.Tokens().Output)
}

func TestStreamNonRestartable(t *testing.T) {
	backend := &scriptedStreamProvider{
		scriptedProvider: scriptedProvider{
			info:      fullSupport(),
			responses: []*provider.Response{textResponse("once only")},
		},
	}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	s, err := e.Stream(context.Background(), "hi")
	require.NoError(t, err)
	first := collect(t, s)
	require.NotEmpty(t, first)

	var second []string
	for snap := range s.All() {
		second = append(second, snap)
	}
	assert.Empty(t, second)
}

func TestStreamResolvesToolCalls(t *testing.T) {
	backend := &scriptedStreamProvider{
		scriptedProvider: scriptedProvider{
			info: fullSupport(),
			responses: []*provider.Response{
				toolCallResponse("echo", `{"text":"ping"}`),
				textResponse("all done"),
			},
		},
	}
	e, err := New(Config{
		Provider:     backend.register(),
		Model:        "m",
		Tools:        []Tool{echoTool()},
		MaxToolCalls: 3,
	})
	require.NoError(t, err)

	s, err := e.Stream(context.Background(), "go")
	require.NoError(t, err)
	snapshots := collect(t, s)

	final := snapshots[len(snapshots)-1]
	assert.Contains(t, final, "echo:ping")
	assert.Contains(t, final, "all done")

	history := e.History()
	require.Len(t, history, 4)
	assert.Equal(t, provider.RoleTool, history[2].Role)
}

func TestStreamToolOutputIncrements(t *testing.T) {
	drip := NewStreamTool("drip", "Yields its output in pieces",
		func(ctx context.Context, in echoInput) iter.Seq[string] {
			return func(yield func(string) bool) {
				for _, piece := range []string{"one ", "two ", "three"} {
					if !yield(piece) {
						return
					}
				}
			}
		})

	backend := &scriptedStreamProvider{
		scriptedProvider: scriptedProvider{
			info: fullSupport(),
			responses: []*provider.Response{
				toolCallResponse("drip", `{"text":"x"}`),
				textResponse("after"),
			},
		},
	}
	e, err := New(Config{
		Provider:         backend.register(),
		Model:            "m",
		Tools:            []Tool{drip},
		MaxToolCalls:     3,
		StreamToolOutput: true,
	})
	require.NoError(t, err)

	s, err := e.Stream(context.Background(), "go")
	require.NoError(t, err)
	snapshots := collect(t, s)

	// The tool's increments each surfaced as a snapshot.
	var sawPartial bool
	for _, snap := range snapshots {
		if strings.Contains(snap, "one two ") && !strings.Contains(snap, "three") {
			sawPartial = true
		}
	}
	assert.True(t, sawPartial, "expected a snapshot containing partial tool output")

	final := snapshots[len(snapshots)-1]
	assert.Contains(t, final, "one two three")
	assert.Contains(t, final, "after")

	// The committed tool result is the concatenation of the increments.
	history := e.History()
	assert.Equal(t, "one two three", history[2].Content)
}

func TestStreamUnsupportedProvider(t *testing.T) {
	backend := &scriptedProvider{info: fullSupport()}
	e, err := New(Config{Provider: backend.register(), Model: "m"})
	require.NoError(t, err)

	_, err = e.Stream(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support streaming")
}
