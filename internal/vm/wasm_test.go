package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func wasmModule(sections ...byte) []byte {
	return append(append([]byte{}, wasmHeader...), sections...)
}

// (func (export "add") (param i32 i32) (result i32) local.get 0 local.get 1 i32.add)
var addWasm = wasmModule(
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
)

// (func (export "boom") (result i32) unreachable)
var trapWasm = wasmModule(
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x08, 0x01, 0x04, 'b', 'o', 'o', 'm', 0x00, 0x00,
	0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b,
)

// (import "env" "throw" (func (param i32 i32)))
// (func (export "raise") (param i32) (result i32) local.get 0 i32.const 7 call 0 i32.const 0)
// (func (export "onTag") (param i32) (result i32) local.get 0 i32.const 100 i32.add)
var throwWasm = wasmModule(
	0x01, 0x0b, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x00, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x02, 0x0d, 0x01, 0x03, 'e', 'n', 'v', 0x05, 't', 'h', 'r', 'o', 'w', 0x00, 0x00,
	0x03, 0x03, 0x02, 0x01, 0x01,
	0x07, 0x11, 0x02, 0x05, 'r', 'a', 'i', 's', 'e', 0x00, 0x01, 0x05, 'o', 'n', 'T', 'a', 'g', 0x00, 0x02,
	0x0a, 0x15, 0x02,
	0x0a, 0x00, 0x20, 0x00, 0x41, 0x07, 0x10, 0x00, 0x41, 0x00, 0x0b,
	0x08, 0x00, 0x20, 0x00, 0x41, 0xe4, 0x00, 0x6a, 0x0b,
)

// (import "env" "call_js" (func (param i32 i32) (result i32)))
// (func (export "twice") (param i32) (result i32) i32.const 0 local.get 0 call 0 i32.const 2 i32.mul)
var callJSWasm = wasmModule(
	0x01, 0x0c, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x02, 0x0f, 0x01, 0x03, 'e', 'n', 'v', 0x07, 'c', 'a', 'l', 'l', '_', 'j', 's', 0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x07, 0x09, 0x01, 0x05, 't', 'w', 'i', 'c', 'e', 0x00, 0x01,
	0x0a, 0x0d, 0x01, 0x0b, 0x00, 0x41, 0x00, 0x20, 0x00, 0x10, 0x00, 0x41, 0x02, 0x6c, 0x0b,
)

func exportWasm(t *testing.T, vm *VM, inst *WasmInstance, export string, handlers ...WasmHandler) *bytecode.Object {
	t.Helper()
	fn, err := inst.Function(export, handlers...)
	require.NoError(t, err)
	vm.Global().Define(export, bytecode.NewObjectValue(fn), bytecode.PropDefault)
	return fn
}

func TestWasmExportCall(t *testing.T) {
	vm := newTestVM(t)
	inst, err := vm.InstantiateWasm(context.Background(), "math", addWasm)
	require.NoError(t, err)
	assert.Equal(t, "math", inst.Name())
	add := exportWasm(t, vm, inst, "add")

	assert.Equal(t, float64(5), run(t, vm, "add(2, 3);").AsNumber())
	assert.Equal(t, float64(0), run(t, vm, "add(-1, 1);").AsNumber())
	assert.Equal(t, float64(3), run(t, vm, "add(3);").AsNumber(), "missing arguments are zero")

	v, err := vm.Call(bytecode.NewObjectValue(add), bytecode.Undefined, bytecode.NewInt(40), bytecode.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestWasmInstantiateErrors(t *testing.T) {
	vm := newTestVM(t)
	ctx := context.Background()

	_, err := vm.InstantiateWasm(ctx, "bad", []byte{0x00, 0x61, 0x73})
	require.Error(t, err)

	inst, err := vm.InstantiateWasm(ctx, "once", addWasm)
	require.NoError(t, err)
	_, err = vm.InstantiateWasm(ctx, "once", addWasm)
	require.Error(t, err)

	_, err = inst.Function("sub")
	require.Error(t, err)
	_, err = inst.Function("add", WasmHandler{Tag: 1, Entry: "missing"})
	require.Error(t, err)
}

func TestWasmTrapIsRuntimeError(t *testing.T) {
	vm := newTestVM(t)
	inst, err := vm.InstantiateWasm(context.Background(), "trap", trapWasm)
	require.NoError(t, err)
	exportWasm(t, vm, inst, "boom", WasmHandler{Tag: 0, Entry: "boom"})

	v := run(t, vm, `var r; try { boom(); } catch (e) { r = e.name + ": " + e.message; } r;`)
	assert.Equal(t, "RuntimeError: unreachable", v.AsString())

	err = runErr(t, vm, "boom();")
	exc, ok := AsException(err)
	require.True(t, ok)
	assert.True(t, exc.IsWasmTrap())
	assert.Equal(t, RuntimeErrorName, ErrorNameOf(err))
}

func TestWasmHandlerCatchesTaggedException(t *testing.T) {
	vm := newTestVM(t)
	inst, err := vm.InstantiateWasm(context.Background(), "raiser", throwWasm)
	require.NoError(t, err)
	raise := exportWasm(t, vm, inst, "raise", WasmHandler{Tag: 3, Entry: "onTag"})

	// 处理器的返回值成为调用结果
	assert.Equal(t, float64(107), run(t, vm, "raise(3);").AsNumber())
	assert.Equal(t, float64(108), run(t, vm, "1 + raise(3);").AsNumber())

	v, err := vm.Call(bytecode.NewObjectValue(raise), bytecode.Undefined, bytecode.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, float64(107), v.AsNumber())

	// 标签不匹配时异常传给脚本
	v = run(t, vm, `var got; try { raise(4); } catch (e) { got = e.tag * 10 + e.payload; } got;`)
	assert.Equal(t, float64(47), v.AsNumber())
	assert.Equal(t, 0, vm.Depth())
}

func TestWasmExceptionFromScript(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `var x = new WebAssembly.Exception(5, 9); x.tag + x.payload;`)
	assert.Equal(t, float64(14), v.AsNumber())
	assert.Equal(t, "[object WebAssembly.Exception]", run(t, vm, "Object.prototype.toString.call(x);").AsString())
}

func TestWasmCallsScript(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, `function inc(x) { return x + 1; } function bad(x) { throw new TypeError("from script " + x); }`)

	inst, err := vm.InstantiateWasm(context.Background(), "calls", callJSWasm, global(t, vm, "inc").AsObject())
	require.NoError(t, err)
	exportWasm(t, vm, inst, "twice")
	assert.Equal(t, float64(10), run(t, vm, "twice(4);").AsNumber())

	inst, err = vm.InstantiateWasm(context.Background(), "calls-bad", callJSWasm, global(t, vm, "bad").AsObject())
	require.NoError(t, err)
	fn, err := inst.Function("twice")
	require.NoError(t, err)
	vm.Global().Define("twiceBad", bytecode.NewObjectValue(fn), bytecode.PropDefault)

	v := run(t, vm, `var m; try { twiceBad(6); } catch (e) { m = e.name + ": " + e.message; } m;`)
	assert.Equal(t, "TypeError: from script 6", v.AsString())
}
