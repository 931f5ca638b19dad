package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/promptloop/promptloop/provider"
)

// Snapshots is a lazy, finite, non-restartable sequence of cumulative
// response snapshots. Each yielded value is the entire visible response
// text so far, not a delta; successive snapshots are monotonically
// extending prefixes of the final text.
//
// History and token tallies are committed only after a turn's stream is
// exhausted, so abandoning iteration mid-turn cancels without partial
// state. Check Err after iterating.
type Snapshots struct {
	ctx      context.Context
	engine   *Engine
	backend  provider.StreamingProvider
	prefill  string
	err      error
	final    string
	consumed bool
}

// Stream mirrors Send with incremental transport: the returned Snapshots
// yields the growing response text until the backend signals completion,
// then tool calls are resolved under the same depth policy as Send.
func (e *Engine) Stream(ctx context.Context, userInput string, opts ...SendOption) (*Snapshots, error) {
	backend, ok := e.backend.(provider.StreamingProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support streaming", e.cfg.Provider)
	}

	var sc sendConfig
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.prefill != "" && !e.info.SupportsPrefill {
		return nil, ErrPrefillUnsupported
	}

	if userInput != "" {
		e.history = append(e.history, provider.Message{Role: provider.RoleUser, Content: userInput})
	}

	return &Snapshots{
		ctx:     ctx,
		engine:  e,
		backend: backend,
		prefill: sc.prefill,
	}, nil
}

// All returns the snapshot iterator. The consumer drives progress: each
// pull blocks until the next increment arrives from the transport.
func (s *Snapshots) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.consumed {
			return
		}
		s.consumed = true

		e := s.engine
		var visible strings.Builder
		prefill := s.prefill

		for depth := 0; ; depth++ {
			stream, err := s.backend.CallStream(s.ctx, e.buildRequest(prefill))
			if err != nil {
				s.err = fmt.Errorf("starting stream: %w", err)
				return
			}

			turn := prefill
			for stream.Next() {
				chunk := stream.Current()
				if chunk.Delta == "" {
					continue
				}
				turn += chunk.Delta
				if !yield(visible.String() + turn) {
					_ = stream.Close() // abandoned before exhaustion: turn not committed
					return
				}
			}
			if err := stream.Err(); err != nil {
				_ = stream.Close()
				s.err = fmt.Errorf("reading stream: %w", err)
				return
			}
			resp := stream.Accumulated()
			_ = stream.Close()

			e.commit(resp, prefill)
			visible.WriteString(resp.Content)
			prefill = ""

			if len(resp.ToolCalls) == 0 {
				break
			}
			stopped, err := s.resolveToolCalls(resp.ToolCalls, &visible, yield)
			if err != nil {
				s.err = err
				return
			}
			if stopped {
				return
			}
			if depth >= e.cfg.MaxToolCalls {
				break
			}
		}

		s.final = visible.String()
	}
}

// Err returns the error that terminated iteration, if any.
func (s *Snapshots) Err() error {
	return s.err
}

// Text returns the final visible response text after the sequence has been
// fully consumed.
func (s *Snapshots) Text() string {
	return s.final
}

// resolveToolCalls resolves each requested invocation, yielding further
// snapshots as results land. A StreamingTool has its increments re-surfaced
// one by one when the engine is configured to stream tool output; otherwise
// each tool contributes a single combined snapshot.
func (s *Snapshots) resolveToolCalls(calls []provider.ToolCall, visible *strings.Builder, yield func(string) bool) (stopped bool, err error) {
	e := s.engine
	for _, tc := range calls {
		tool, ok := e.toolset[tc.Name]
		if !ok {
			return false, &ToolNotFoundError{Name: tc.Name}
		}
		args, err := e.toolArgs(tc)
		if err != nil {
			return false, err
		}

		if st, streams := tool.(StreamingTool); streams && e.cfg.StreamToolOutput {
			visible.WriteString(fmt.Sprintf("\n\ntool %s(%s):\n", tc.Name, tc.Arguments))
			var out strings.Builder
			seq, serr := st.ExecuteStream(s.ctx, args)
			if serr != nil {
				out.WriteString(fmt.Sprintf("Error: %v", serr))
			} else {
				for inc := range seq {
					out.WriteString(inc)
					if !yield(visible.String() + out.String()) {
						return true, nil
					}
				}
			}
			content := out.String()
			e.appendToolResult(tc, content)
			visible.WriteString(content + "\n")
			if !yield(visible.String()) {
				return true, nil
			}
			continue
		}

		result, rerr := tool.Execute(s.ctx, args)
		content := normalizeToolResult(result, rerr)
		e.appendToolResult(tc, content)
		visible.WriteString(renderToolCall(tc, content))
		if !yield(visible.String()) {
			return true, nil
		}
	}
	return false, nil
}
