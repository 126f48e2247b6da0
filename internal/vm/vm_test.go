package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/compiler"
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/jit"
	"github.com/tangzhangming/wkcjs/internal/threading"
)

func newTestVM(t *testing.T, configure ...func(*Options)) *VM {
	t.Helper()
	opts := Options{
		Config:    DefaultConfig(),
		Generator: compiler.NewGenerator(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	vm := New(opts)
	t.Cleanup(func() { vm.Close() })
	return vm
}

func program(src string) *bytecode.ProgramExecutable {
	return bytecode.NewProgramExecutable(bytecode.NewSourceCode("test.js", src))
}

func run(t *testing.T, vm *VM, src string) bytecode.Value {
	t.Helper()
	v, err := vm.ExecuteProgram(program(src), bytecode.Undefined)
	require.NoError(t, err)
	return v
}

func runErr(t *testing.T, vm *VM, src string) error {
	t.Helper()
	_, err := vm.ExecuteProgram(program(src), bytecode.Undefined)
	require.Error(t, err)
	assert.Nil(t, vm.Exception(), "exception slot is cleared on return")
	return err
}

func global(t *testing.T, vm *VM, name string) bytecode.Value {
	t.Helper()
	v, err := vm.Get(bytecode.NewObjectValue(vm.Global()), name)
	require.NoError(t, err)
	return v
}

// counter 在全局对象上定义 bump()，返回调用次数
func counter(vm *VM) *int {
	n := new(int)
	vm.DefineFunction(vm.Global(), "bump", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		*n++
		return bytecode.Undefined, nil
	})
	return n
}

func TestProgramCompletionValue(t *testing.T) {
	vm := newTestVM(t)

	tests := []struct {
		src  string
		want bytecode.Value
	}{
		{"1 + 2;", bytecode.NewNumber(3)},
		{"var s = 'a'; s + 'b';", bytecode.NewString("ab")},
		{"function f(a, b) { return a * b; } f(6, 7);", bytecode.NewNumber(42)},
		{"var o = {x: 1}; o.x = o.x + 1; o.x;", bytecode.NewNumber(2)},
		{"var a = [1, 2, 3]; a.length;", bytecode.NewNumber(3)},
		{"typeof undefined;", bytecode.NewString("undefined")},
		{"var n = 0; for (var i = 0; i < 10; i++) { n += i; } n;", bytecode.NewNumber(45)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := run(t, vm, tt.src)
			assert.True(t, tt.want.StrictEquals(got), "got %s", got)
		})
	}
}

func TestEntryStates(t *testing.T) {
	vm := newTestVM(t)

	run(t, vm, "1;")
	reached, outcome := vm.LastEntry()
	assert.Equal(t, StateExecuting, reached)
	assert.Equal(t, StateReturned, outcome)

	runErr(t, vm, "throw 1;")
	_, outcome = vm.LastEntry()
	assert.Equal(t, StateThrown, outcome)

	_, err := vm.ExecuteProgram(program("var = ;"), bytecode.Undefined)
	require.Error(t, err)
	reached, outcome = vm.LastEntry()
	assert.Equal(t, StateStackChecked, reached, "compile failure stops before Compiled")
	assert.Equal(t, StateThrown, outcome)
	assert.Equal(t, SyntaxErrorName, ErrorNameOf(err))
}

func TestThisBinding(t *testing.T) {
	vm := newTestVM(t)
	assert.True(t, run(t, vm, "this === globalThis;").AsBool())

	custom := vm.NewObject()
	custom.Define("tag", bytecode.NewString("custom"), bytecode.PropDefault)
	v, err := vm.ExecuteProgram(program("this.tag;"), bytecode.NewObjectValue(custom))
	require.NoError(t, err)
	assert.Equal(t, "custom", v.AsString())
}

func TestExecuteCallAndConstruct(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, `
function add(a, b) { return a + b; }
function Point(x) { this.x = x; }
function Boxed() { this.ignored = true; return {boxed: 1}; }
`)

	v, err := vm.Call(global(t, vm, "add"), bytecode.Undefined, bytecode.NewNumber(2), bytecode.NewNumber(3))
	require.NoError(t, err)
	assert.Equal(t, float64(5), v.AsNumber())

	p, err := vm.ExecuteConstruct(global(t, vm, "Point").AsObject(), []bytecode.Value{bytecode.NewNumber(9)})
	require.NoError(t, err)
	x, err := vm.Get(bytecode.NewObjectValue(p), "x")
	require.NoError(t, err)
	assert.Equal(t, float64(9), x.AsNumber())
	proto, err := vm.Get(global(t, vm, "Point"), "prototype")
	require.NoError(t, err)
	assert.Same(t, proto.AsObject(), p.Proto)

	b, err := vm.ExecuteConstruct(global(t, vm, "Boxed").AsObject(), nil)
	require.NoError(t, err)
	assert.True(t, b.HasOwn("boxed"))
	assert.False(t, b.HasOwn("ignored"))

	_, err = vm.Call(bytecode.NewNumber(1), bytecode.Undefined)
	require.Error(t, err)
	assert.Equal(t, TypeErrorName, ErrorNameOf(err))
}

func TestHostFunctionCall(t *testing.T) {
	vm := newTestVM(t)
	var seen bytecode.Value
	fn := vm.NewNativeFunction("echo", 1, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		seen = this
		return args[0], nil
	})
	v, err := vm.ExecuteCall(fn, bytecode.NewString("self"), []bytecode.Value{bytecode.NewNumber(7)})
	require.NoError(t, err)
	assert.Equal(t, float64(7), v.AsNumber())
	assert.Equal(t, "self", seen.AsString())
	assert.Equal(t, 0, vm.Depth())
}

func TestRepeatCall(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, "var total = 0; function acc(n) { total += n; return total; }")

	call, err := vm.PrepareForRepeatCall(global(t, vm, "acc").AsObject(), 1)
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		call.SetArgument(0, bytecode.NewNumber(float64(i)))
		_, err := call.Call()
		require.NoError(t, err)
	}
	assert.Equal(t, float64(10), global(t, vm, "total").AsNumber())
}

func TestUncaughtErrorIsRuntimeError(t *testing.T) {
	vm := newTestVM(t)
	err := runErr(t, vm, "function f() { null.x; }\nf();")

	re := RuntimeError(err)
	assert.Equal(t, TypeErrorName, re.Name)
	assert.Equal(t, rterrors.RuntimeCodeForErrorName(TypeErrorName), re.Code)
	require.NotEmpty(t, re.Frames)
	assert.Equal(t, "f", re.Frames[0].FunctionName)
	assert.Equal(t, 1, re.Frames[0].LineNumber)

	err = runErr(t, vm, "undefinedName;")
	assert.Equal(t, ReferenceErrorName, ErrorNameOf(err))
}

func TestStackOverflowIsCatchable(t *testing.T) {
	vm := newTestVM(t, func(o *Options) { o.Config.MaxFrames = 200 })

	err := runErr(t, vm, "function r() { return r(); } r();")
	assert.True(t, IsStackOverflow(err))
	assert.Equal(t, RangeErrorName, ErrorNameOf(err))
	assert.Equal(t, 0, vm.Depth())

	v := run(t, vm, "function d() { return d(); } var caught = 'no'; try { d(); } catch (e) { caught = e.name; } caught;")
	assert.Equal(t, RangeErrorName, v.AsString())

	// 溢出之后下一次无关调用不受影响
	assert.Equal(t, float64(2), run(t, vm, "1 + 1;").AsNumber())
}

func TestPlatformHeadroomCheck(t *testing.T) {
	vm := newTestVM(t, func(o *Options) {
		o.Config.StackLimit = 64*1024 + 2*16*1024
	})
	fn := vm.NewNativeFunction("reenter", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		return vm.ExecuteProgram(program("reenter();"), bytecode.Undefined)
	})
	vm.Global().Define("reenter", bytecode.NewObjectValue(fn), bytecode.PropDefault)

	err := runErr(t, vm, "reenter();")
	assert.True(t, IsStackOverflow(err))
	assert.Equal(t, 0, vm.Depth())
	assert.False(t, vm.InEntryScope())
}

func TestTerminationIsUncatchable(t *testing.T) {
	vm := newTestVM(t)
	vm.DefineFunction(vm.Global(), "stop", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		vm.TerminateExecution()
		return bytecode.Undefined, nil
	})

	err := runErr(t, vm, `
var caught = false;
var after = false;
function f() {}
try { stop(); f(); after = true; } catch (e) { caught = true; } finally { caught = true; }
`)
	exc, ok := AsException(err)
	require.True(t, ok)
	assert.True(t, exc.IsTermination())
	assert.False(t, global(t, vm, "caught").AsBool())
	assert.False(t, global(t, vm, "after").AsBool())
	assert.Equal(t, rterrors.R0003, RuntimeError(err).Code)
	assert.False(t, vm.HasPendingTermination())
}

func TestPendingExceptionRefusesEntry(t *testing.T) {
	vm := newTestVM(t)
	vm.throwError(ErrorName, "stale")
	_, err := vm.ExecuteProgram(program("1;"), bytecode.Undefined)
	assert.ErrorIs(t, err, ErrExceptionPending)
	vm.ClearException()
	run(t, vm, "1;")
}

func TestEntryScopeListeners(t *testing.T) {
	vm := newTestVM(t)
	calls := 0
	key := new(int)
	vm.DefineFunction(vm.Global(), "listen", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		assert.True(t, vm.AddDidPopListener(key, func() { calls++ }))
		return bytecode.Undefined, nil
	})

	assert.False(t, vm.AddDidPopListener(key, func() {}), "outside any entry")
	run(t, vm, "listen(); listen(); listen();")
	assert.Equal(t, 1, calls)
	assert.False(t, vm.InEntryScope())

	run(t, vm, "listen();")
	assert.Equal(t, 2, calls)
}

func TestCollectorBusyRefusesEntry(t *testing.T) {
	vm := newTestVM(t)
	var result bytecode.Value
	var resultErr error
	vm.Heap().AddFinalizer(func(vm *VM) {
		result, resultErr = vm.ExecuteProgram(program("42;"), bytecode.Undefined)
	})
	vm.Heap().Collect()

	require.NoError(t, resultErr)
	assert.True(t, result.IsUndefined())
	stats := vm.Heap().Stats()
	assert.Equal(t, int64(1), stats.RefusedEntries)
	assert.Equal(t, int64(1), stats.Finalized)
}

func TestDisallowGCDefersCollection(t *testing.T) {
	vm := newTestVM(t)
	gc := vm.Heap().DisallowGC()
	vm.Heap().Collect()
	assert.Equal(t, int64(0), vm.Heap().Stats().Collections)
	gc.Close()
	assert.Equal(t, int64(1), vm.Heap().Stats().Collections)
}

func newJITVM(t *testing.T) (*VM, *jit.JIT) {
	t.Helper()
	j := jit.New(threading.NewSession(), jit.Config{Enabled: true, TierUpThreshold: 1}, nil)
	t.Cleanup(j.Close)
	return newTestVM(t, func(o *Options) { o.JIT = j }), j
}

func TestCompiledFramesShareSemantics(t *testing.T) {
	vm, j := newJITVM(t)
	kinds := map[FrameKind]int{}
	vm.DefineFunction(vm.Global(), "probe", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		it := vm.NewStackVisitor()
		for {
			f, ok := it.Next()
			if !ok {
				break
			}
			if f.Kind == FrameInterpreted || f.Kind == FrameCompiled {
				kinds[f.Kind]++
				it.Stop()
			}
		}
		return bytecode.Undefined, nil
	})

	v := run(t, vm, `
function work(n) {
  probe();
  try {
    if (n % 2) { throw n; }
    return n;
  } catch (e) {
    return -e;
  }
}
var sum = 0;
for (var i = 0; i < 6; i++) { sum += work(i); }
sum;
`)
	assert.Equal(t, float64(0+(-1)+2+(-3)+4+(-5)), v.AsNumber())
	assert.Equal(t, 1, kinds[FrameInterpreted], "first call runs before tier-up")
	assert.Equal(t, 5, kinds[FrameCompiled])
	assert.GreaterOrEqual(t, j.Stats().Compiled, int64(1))
}

func TestJettisonFallsBackToInterpreter(t *testing.T) {
	vm, _ := newJITVM(t)
	run(t, vm, "function f() { return 1; } f(); f();")
	f := global(t, vm, "f")
	_, fn, ok := functionOf(f)
	require.True(t, ok)
	cb := fn.Executable.CodeBlockFor(bytecode.SpecializeCall)
	require.NotNil(t, cb)
	require.NotNil(t, cb.Compiled())

	vm.Heap().Collect()
	assert.Nil(t, cb.Compiled())
	assert.GreaterOrEqual(t, vm.Heap().Stats().Jettisoned, int64(1))

	v, err := vm.Call(f, bytecode.Undefined)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v.AsNumber())
}

func TestDeferTrapsPostponesTermination(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, "var inWindow = false; var after = false; function mark() { inWindow = true; } function f2() {}")
	vm.DefineFunction(vm.Global(), "stopDeferred", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		d := NewDeferTraps(vm)
		defer d.Close()
		vm.TerminateExecution()
		if _, err := vm.Call(global(t, vm, "mark"), bytecode.Undefined); err != nil {
			return bytecode.Undefined, err
		}
		return bytecode.Undefined, nil
	})

	err := runErr(t, vm, "stopDeferred(); f2(); after = true;")
	exc, ok := AsException(err)
	require.True(t, ok)
	assert.True(t, exc.IsTermination())
	assert.True(t, global(t, vm, "inWindow").AsBool())
	assert.False(t, global(t, vm, "after").AsBool())
}
