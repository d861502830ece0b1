package vmstate

import "github.com/wasmtier/execore/internal/wasmruntime"

// PendingException buffers an uncaught throw/throw_ref while the try_table
// protocol searches outward for a matching catch (spec.md §3 "Pending
// exception"). Up to 16 u64 payload values are carried, matching the
// widest tag signature this core supports.
type PendingException struct {
	Active  bool
	TagID   string
	Payload [16]uint64
	NumVals int
}

// Profile, when attached, counts every executed opcode plus a running
// total (spec.md §3 "Profile counters"). Attaching a profile disables tier
// promotion so counts reflect baseline bytecode execution; the bytecode
// tier counts each dispatched opcode byte (for a prefixed opcode, the
// prefix byte).
type Profile struct {
	PerOpcode [256]uint64
	Total     uint64
}

func (p *Profile) Count(opcode byte) {
	p.PerOpcode[opcode]++
	p.Total++
}

// VM is the per-instance execution core state shared by all three tiers
// (spec.md §3 "Core state (per VM instance)"). One VM serves exactly one
// invocation chain at a time (single-threaded cooperative model, spec.md
// §5); the embedder is expected to keep one VM per goroutine that calls
// into Wasm.
type VM struct {
	Operands *OperandStack
	Frames   *FrameStack
	Labels   *LabelStack
	Registers *RegisterStack

	// CurrentInstance is set on every call (spec.md §9) so host functions
	// can resolve `get_memory`/table lookups against the right instance.
	// Typed as `any` to avoid vmstate depending on the wasm package; tiers
	// type-assert to *wasm.ModuleInstance.
	CurrentInstance any

	Pending PendingException

	// Fuel is an optional non-negative step counter; nil means unmetered.
	// Each dispatched instruction decrements it by one; reaching zero traps
	// with FuelExhausted (spec.md §3 "Fuel").
	Fuel *int64

	// MemoryCeilingBytes optionally bounds total linear-memory bytes across
	// every memory reachable from CurrentInstance; 0 means unset (spec.md
	// §3 "Memory ceiling"). Enforced by the memory.grow handler in each
	// tier, not by this package.
	MemoryCeilingBytes uint64

	// Profile, when non-nil, disables tier promotion (spec.md §3
	// invariants) and counts every dispatched opcode.
	Profile *Profile

	// TailCall is a pending-tail-call slot (target plus up to 16 argument
	// values). No tier writes it: return_call/return_call_indirect/
	// return_call_ref run their callee as a nested call through
	// callhook.Call. Reset clears it.
	TailCall TailCallBuffer
}

// TailCallBuffer is the type of VM.TailCall: a target and a fixed 16-slot
// argument array. The return_call* handlers do not write it.
type TailCallBuffer struct {
	Pending bool
	Target  any // *wasm.Function, typed any for the same reason as CurrentInstance.
	Args    [16]uint64
	NumArgs int
}

// NewVM allocates a VM with all four stacks pre-sized to their spec
// capacities.
func NewVM() *VM {
	return &VM{
		Operands:  NewOperandStack(),
		Frames:    NewFrameStack(),
		Labels:    NewLabelStack(),
		Registers: NewRegisterStack(),
	}
}

// Reset restores a VM to its just-allocated state for reuse, as spec.md §7
// "Recovery" describes: "operand/frame/label pointers zero, instance
// pointer cleared, pending exception cleared... reuse stacks to avoid
// re-allocating the large arrays."
func (vm *VM) Reset() {
	vm.Operands.Reset()
	vm.Frames.Reset()
	vm.Labels.Reset()
	vm.Registers.Reset()
	vm.CurrentInstance = nil
	vm.Pending = PendingException{}
	vm.TailCall = TailCallBuffer{}
}

// ConsumeFuel decrements Fuel by one instruction, panicking with
// FuelExhausted if it was already at zero (spec.md §8 "With fuel set to 0
// before invoke, the first instruction traps with FuelExhausted").
func (vm *VM) ConsumeFuel() {
	if vm.Fuel == nil {
		return
	}
	if *vm.Fuel <= 0 {
		panic(wasmruntime.ErrRuntimeFuelExhausted)
	}
	*vm.Fuel--
}

// TierPromotionDisabled reports whether profiling is attached, per spec.md
// §3 "Profiling disables tier promotion".
func (vm *VM) TierPromotionDisabled() bool { return vm.Profile != nil }
