package wasm

import (
	"sync"
	"sync/atomic"
)

// FunctionCaches holds the per-function tier caches described in spec.md §9
// ("Lazy per-function caches... Compute-once, observe-once. Failures latch
// a boolean flag to prevent retry"). The concrete payload of each slot is
// owned by its tier package (wazeroir, regir, jit); this package only
// provides the opaque, thread-safe compute-once slot so that
// internal/wasm doesn't need to import any tier package (which would
// create an import cycle, since every tier package needs *wasm.Function).
type FunctionCaches struct {
	BranchTable  Slot
	PredecodedIR Slot
	RegisterIR   Slot
	JITCode      Slot

	// calls counts invocations of the owning Function, used by the call
	// glue to decide when a function is hot enough to warrant building the
	// register-IR/JIT caches above (spec.md §4.5 "back-edge counters").
	calls int64

	// backEdges counts backward branches taken by the register-IR tier for
	// this function, across all calls. internal/engine/regir compares this
	// against its JIT trigger threshold (spec.md §4.5 "reaching the
	// back-edge threshold invokes the JIT compiler").
	backEdges int64
}

// IncCalls records one more invocation and returns the new total.
func (c *FunctionCaches) IncCalls() int64 { return atomic.AddInt64(&c.calls, 1) }

// IncBackEdges records one more register-IR back-edge and returns the new total.
func (c *FunctionCaches) IncBackEdges() int64 { return atomic.AddInt64(&c.backEdges, 1) }

// Slot is a compute-once cache cell. Get returns the cached value and true
// if already computed (successfully or not — Failed distinguishes the two).
// Store latches the value and, if err != nil, marks the slot Failed so
// later callers don't retry (spec.md §9 "latch a boolean flag").
type Slot struct {
	mu      sync.Mutex
	done    bool
	failed  bool
	value   any
}

func (s *Slot) Get() (value any, failed bool, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.failed, s.done
}

func (s *Slot) Store(value any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.value = value
	s.failed = err != nil
	s.done = true
}
