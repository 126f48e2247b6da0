package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
)

func frameNames(trace []rterrors.StackFrame) []string {
	names := make([]string, len(trace))
	for i, f := range trace {
		names[i] = f.FunctionName
	}
	return names
}

func TestGetStackTrace(t *testing.T) {
	vm := newTestVM(t)
	var maxFrames, skip int
	var trace []rterrors.StackFrame
	fn := vm.NewNativeFunction("capture", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		trace = vm.GetStackTrace(maxFrames, skip)
		return bytecode.Undefined, nil
	})
	vm.Global().Define("capture", bytecode.NewObjectValue(fn), bytecode.PropDefault)
	run(t, vm, "function inner() { capture(); }\nfunction outer() { inner(); }")

	maxFrames, skip = 10, 0
	run(t, vm, "outer();")
	assert.Equal(t, []string{"capture", "inner", "outer", "global code"}, frameNames(trace))
	assert.True(t, trace[0].Native)
	assert.Equal(t, "test.js", trace[1].FileName)

	maxFrames, skip = 2, 1
	run(t, vm, "outer();")
	assert.Equal(t, []string{"inner", "outer"}, frameNames(trace))

	maxFrames, skip = 0, 0
	run(t, vm, "outer();")
	assert.Empty(t, trace)
}

func TestErrorStackOmitsConstructor(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `
function make() { return new TypeError("x"); }
function called() { return RangeError("y"); }
make().stack + "|" + called().stack;
`)
	parts := strings.Split(v.AsString(), "|")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "TypeError: x\n    at make (test.js:"), parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "RangeError: y\n    at called (test.js:"), parts[1])
	assert.NotContains(t, v.AsString(), "(native)")
}

func TestStackVisitorStop(t *testing.T) {
	vm := newTestVM(t)
	var kinds []FrameKind
	var afterStop bool
	fn := vm.NewNativeFunction("walk", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		it := vm.NewStackVisitor()
		for {
			f, ok := it.Next()
			if !ok {
				break
			}
			kinds = append(kinds, f.Kind)
			if f.IsEntry() {
				it.Stop()
			}
		}
		_, afterStop = it.Next()
		return bytecode.Undefined, nil
	})
	vm.Global().Define("walk", bytecode.NewObjectValue(fn), bytecode.PropDefault)

	run(t, vm, "walk();")
	require.NotEmpty(t, kinds)
	assert.Equal(t, FrameNative, kinds[0])
	assert.Equal(t, FrameEntry, kinds[len(kinds)-1])
	assert.False(t, afterStop)
}
