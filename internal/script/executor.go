// Package script defines the interface the channel runtime uses to
// evaluate operator-authored filter/transformer/preprocessor/postprocessor
// code. The core treats the evaluator as an opaque function; it may embed
// a sandboxed JS engine, shell out to a subprocess, or — in tests — be a
// Go closure. See spec §9 "From operator-supplied JavaScript back to an
// evaluator interface".
package script

import (
	"context"
	"time"
)

// DefaultTimeout is the default per-execution timeout (spec §5).
const DefaultTimeout = 30 * time.Second

// Bindings is the set of values exposed to a script invocation: the
// connector message's maps plus any connector-specific globals.
type Bindings struct {
	SourceMap    map[string]interface{}
	ChannelMap   map[string]interface{}
	ConnectorMap map[string]interface{}
	ResponseMap  map[string]interface{}

	// Content is the payload the script operates on (e.g. the raw or
	// transformed message content).
	Content string
}

// Result is what a script invocation produces.
type Result struct {
	// Content is the (possibly rewritten) payload — used by
	// transformers; filters ignore it.
	Content string
	// Filtered is true when a filter script decided to drop the message.
	Filtered bool
}

// Executor evaluates a script against bindings and returns a Result or an
// error. Implementations must enforce their own timeout; Execute should
// not block past ctx's deadline.
type Executor interface {
	Execute(ctx context.Context, scriptSource string, bindings Bindings) (Result, error)
}

// ExecutorFunc adapts a plain function to Executor, the shape tests use to
// stub script behavior without a real evaluator.
type ExecutorFunc func(ctx context.Context, scriptSource string, bindings Bindings) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, scriptSource string, bindings Bindings) (Result, error) {
	return f(ctx, scriptSource, bindings)
}

// NoopExecutor always returns the content unchanged and never filters —
// used for connectors/tests that have no script configured.
var NoopExecutor Executor = ExecutorFunc(func(_ context.Context, _ string, b Bindings) (Result, error) {
	return Result{Content: b.Content}, nil
})
