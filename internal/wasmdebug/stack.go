// Package wasmdebug builds a human-readable Wasm call stack trace, attached
// to a trap or uncaught exception before it escapes to the embedder.
package wasmdebug

import (
	"fmt"
	"strings"

	"github.com/wasmtier/execore/api"
)

// FrameInfo names one entry of a call-stack trace.
type FrameInfo struct {
	Def *api.FunctionDefinition
	// PC is the bytecode offset or IR index active in this frame when the
	// trace was captured, for diagnostics only.
	PC int
}

// Trace renders frames innermost-first, the way a native stack trace reads.
func Trace(frames []FrameInfo) string {
	if len(frames) == 0 {
		return "wasm stack trace:\n\t(empty)"
	}
	var sb strings.Builder
	sb.WriteString("wasm stack trace:\n")
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		fmt.Fprintf(&sb, "\t%s (pc=%d)\n", f.Def.String(), f.PC)
	}
	return sb.String()
}

// Wrap attaches a stack trace to err without discarding its identity: a
// caller doing errors.Is/errors.As against err still works through %w.
func Wrap(err error, frames []FrameInfo) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\n%s", err, Trace(frames))
}
