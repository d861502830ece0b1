package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmtier/execore/api"
	"github.com/wasmtier/execore/internal/enginetest"
	"github.com/wasmtier/execore/internal/wasm"
)

// TestException_PayloadOrderPreservedThroughCatch throws a two-value
// exception and verifies the catch handler sees the payload in the same
// order it was thrown, by immediately subtracting the two caught values —
// subtraction isn't commutative, so a swapped order changes the result
// (spec.md §4.8 "exception payload order").
func TestException_PayloadOrderPreservedThroughCatch(t *testing.T) {
	mod := enginetest.NewModule("m")
	tag := enginetest.AddTag(mod, "err", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32})
	_ = tag

	body := enginetest.Bytes(
		[]byte{wasm.OpcodeTryTable},
		[]byte{0x40},             // void block type
		enginetest.LEBU(1),       // one catch clause
		[]byte{0x00},             // CatchPlain
		enginetest.LEBU(0),       // tag index 0
		enginetest.LEBU(0),       // label depth 0: this try_table's own label

		[]byte{wasm.OpcodeI32Const}, enginetest.LEBI(30),
		[]byte{wasm.OpcodeI32Const}, enginetest.LEBI(12),
		[]byte{wasm.OpcodeThrow}, enginetest.LEBU(0),

		[]byte{wasm.OpcodeEnd}, // closes try_table; catch resumes execution here

		[]byte{0x6b}, // i32.sub: first-thrown (30) minus second-thrown (12)
		[]byte{wasm.OpcodeEnd},
	)

	enginetest.AddFunction(mod, "f", nil, []api.ValueType{api.ValueTypeI32}, 0, body)
	vm := enginetest.NewVM()

	results, err := Invoke(vm, mod, "f", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{18}, results, "30-12 confirms payload order v1, v2, not v2, v1")
	require.Equal(t, 0, vm.Operands.Len())
}

// TestException_UncaughtPropagatesAsWasmException checks that a throw with
// no matching catch escapes invoke as a readable error, not a bare panic.
func TestException_UncaughtPropagatesAsWasmException(t *testing.T) {
	mod := enginetest.NewModule("m")
	enginetest.AddTag(mod, "boom", nil)

	body := enginetest.Bytes(
		[]byte{wasm.OpcodeThrow}, enginetest.LEBU(0),
		[]byte{wasm.OpcodeEnd},
	)
	enginetest.AddFunction(mod, "f", nil, nil, 0, body)
	vm := enginetest.NewVM()

	_, err := Invoke(vm, mod, "f", nil)
	require.Error(t, err)
}
