package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

type unwindRecorder struct {
	BaseDebugger
	unwound    map[string]int
	exceptions int
	hasHandler []bool
}

func (r *unwindRecorder) UnwindEvent(f *CallFrame) {
	r.unwound[f.FunctionName()]++
}

func (r *unwindRecorder) Exception(f *CallFrame, exception bytecode.Value, hasHandler bool) {
	r.exceptions++
	r.hasHandler = append(r.hasHandler, hasHandler)
}

func newRecorder(vm *VM) *unwindRecorder {
	r := &unwindRecorder{unwound: make(map[string]int)}
	vm.SetDebugger(r)
	return r
}

func TestUnwindNotifiesEachPoppedFrameOnce(t *testing.T) {
	vm := newTestVM(t)
	rec := newRecorder(vm)

	var unwindingInCatch []bool
	vm.DefineFunction(vm.Global(), "probe", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		unwindingInCatch = append(unwindingInCatch, vm.IsUnwinding())
		return bytecode.Undefined, nil
	})

	v := run(t, vm, `
function c() { throw new Error("deep"); }
function b() { c(); }
function a() { b(); }
var caught;
try { a(); } catch (e) { probe(); caught = e.message; }
caught;
`)
	assert.Equal(t, "deep", v.AsString())
	assert.Equal(t, map[string]int{"c": 1, "b": 1, "a": 1}, rec.unwound)
	assert.Equal(t, 1, rec.exceptions)
	assert.Equal(t, []bool{true}, rec.hasHandler)
	assert.Equal(t, []bool{false}, unwindingInCatch)
	assert.False(t, vm.IsUnwinding())
}

func TestUncaughtUnwindPopsToEntry(t *testing.T) {
	vm := newTestVM(t)
	rec := newRecorder(vm)

	err := runErr(t, vm, "function t() { throw 1; } t();")
	exc, ok := AsException(err)
	require.True(t, ok)
	assert.Equal(t, float64(1), exc.Value.AsNumber())
	assert.Equal(t, 1, rec.unwound["t"])
	assert.Equal(t, 1, rec.unwound["global code"])
	assert.Equal(t, []bool{false}, rec.hasHandler)
	assert.Equal(t, 0, vm.Depth())
}

func TestCatchRestoresOperandStack(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `
function thrower() { throw "x"; }
function f() {
  var r = 0;
  try { r = 1 + (2 * thrower()); } catch (e) { r = 5; }
  return r;
}
f() + f() + 1;
`)
	assert.Equal(t, float64(11), v.AsNumber())
	assert.Equal(t, 0, vm.Depth())
	assert.Equal(t, 0, vm.sp)
}

func TestFinallyRunsDuringUnwind(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `
var log = "";
function g() { try { throw "a"; } finally { log += "f"; } }
try { g(); } catch (e) { log += e; }
log;
`)
	assert.Equal(t, "fa", v.AsString())
}

func TestFinallyRethrowKeepsException(t *testing.T) {
	vm := newTestVM(t)
	rec := newRecorder(vm)

	v := run(t, vm, `
var log = "";
function inner() { try { throw new Error("once"); } finally { log += "i"; } }
function outer() { try { inner(); } finally { log += "o"; } }
try { outer(); } catch (e) { log += e.message; }
log;
`)
	assert.Equal(t, "ioonce", v.AsString())
	assert.Equal(t, 1, rec.exceptions, "rethrow from finally is the same exception")
	assert.Equal(t, []bool{true}, rec.hasHandler)
	assert.Equal(t, map[string]int{"inner": 1, "outer": 1}, rec.unwound)
	assert.Equal(t, 0, vm.sp)
}

func TestCatchScopeIsPopped(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `
var e = "outer";
function h() {
  try { { let inner = 1; throw inner; } } catch (e) { }
  return e;
}
h();
`)
	assert.Equal(t, "outer", v.AsString())
}

func TestNativeFrameUnwinds(t *testing.T) {
	vm := newTestVM(t)
	rec := newRecorder(vm)
	vm.DefineFunction(vm.Global(), "fail", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		return bytecode.Undefined, vm.throwError(TypeErrorName, "native failure")
	})

	v := run(t, vm, `function viaNative() { fail(); } var m; try { viaNative(); } catch (e) { m = e.message; } m;`)
	assert.Equal(t, "native failure", v.AsString())
	assert.Equal(t, 1, rec.unwound["viaNative"])
	assert.Equal(t, 1, rec.exceptions)
}
