package regir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmtier/execore/internal/vmstate"
	"github.com/wasmtier/execore/internal/wasm"
	"github.com/wasmtier/execore/internal/wasmruntime"
)

// TestTakeBackEdge_FiresOnceAtThreshold exercises the hot-loop counter
// independent of wazeroir.Compile, since every repeated br/br_if/br_table
// whose target doesn't advance ip funnels through this one method.
func TestTakeBackEdge_FiresOnceAtThreshold(t *testing.T) {
	fn := &wasm.Function{}
	vm := vmstate.NewVM()
	vm.Operands.PushI32(1)
	vm.Labels.Push(vmstate.Label{})

	s := &state{vm: vm, fn: fn, labelBase: vm.Labels.Len() - 1, operandBase: vm.Operands.Len() - 1}

	for i := 1; i < jitBackEdgeThreshold; i++ {
		require.False(t, s.takeBackEdge(10, 3), "back edge %d must not yet trigger a restart", i)
	}
	require.True(t, s.takeBackEdge(10, 3), "the threshold'th back edge must trigger a restart")

	require.Equal(t, s.operandBase, vm.Operands.Len(), "a restart must truncate operands back to the call's base")
	require.Equal(t, s.labelBase, vm.Labels.Len(), "a restart must truncate labels back to the call's base")
}

// TestTakeBackEdge_ForwardBranchNeverCounts checks that a forward branch
// (used for ordinary if/else and block exits) never contributes to the
// hot-loop counter, since target > ip there.
func TestTakeBackEdge_ForwardBranchNeverCounts(t *testing.T) {
	fn := &wasm.Function{}
	vm := vmstate.NewVM()
	s := &state{vm: vm, fn: fn}

	for i := 0; i < jitBackEdgeThreshold*2; i++ {
		require.False(t, s.takeBackEdge(3, 10))
	}
}

// TestTakeBackEdge_LatchesOncePerFunction ensures a function that already
// has a JITCode cache entry (compiled or permanently declined) never asks
// for a second restart — core.go's tier ladder already routes its later
// calls through the jit or regir tier directly.
func TestTakeBackEdge_LatchesOncePerFunction(t *testing.T) {
	fn := &wasm.Function{}
	fn.Caches.JITCode.Store(nil, wasmruntime.ErrRuntimeTrap) // marks done, failed

	vm := vmstate.NewVM()
	s := &state{vm: vm, fn: fn}

	for i := 0; i < jitBackEdgeThreshold*2; i++ {
		require.False(t, s.takeBackEdge(10, 3), "no restart once JITCode is already resolved")
	}
}
