package runtime

import (
	"math"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

// ============================================================================
// Math
// ============================================================================

func (r *Runtime) registerMath() {
	m := r.vm.NewObject()
	r.vm.DefineFunction(m, "floor", 1, mathUnary(math.Floor))
	r.vm.DefineFunction(m, "ceil", 1, mathUnary(math.Ceil))
	r.vm.DefineFunction(m, "abs", 1, mathUnary(math.Abs))
	r.vm.DefineFunction(m, "sqrt", 1, mathUnary(math.Sqrt))
	r.vm.DefineFunction(m, "max", 2, nativeMathMax)
	r.vm.DefineFunction(m, "min", 2, nativeMathMin)
	m.Define("PI", bytecode.NewNumber(math.Pi), 0)
	r.vm.Global().Define("Math", bytecode.NewObjectValue(m), bytecode.PropWritable|bytecode.PropConfigurable)
}

func mathUnary(fn func(float64) float64) vm.NativeFunction {
	return func(_ *vm.VM, _ bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		x := math.NaN()
		if len(args) > 0 {
			x = vm.ToNumber(args[0])
		}
		return bytecode.NewNumber(fn(x)), nil
	}
}

// nativeMathMax 没有参数时返回 -Infinity，任一参数为 NaN 时返回 NaN
func nativeMathMax(_ *vm.VM, _ bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	max := math.Inf(-1)
	for _, a := range args {
		n := vm.ToNumber(a)
		switch {
		case math.IsNaN(n):
			return bytecode.NewNumber(math.NaN()), nil
		case n > max, n == 0 && max == 0 && !math.Signbit(n):
			max = n
		}
	}
	return bytecode.NewNumber(max), nil
}

// nativeMathMin 没有参数时返回 Infinity
func nativeMathMin(_ *vm.VM, _ bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	min := math.Inf(1)
	for _, a := range args {
		n := vm.ToNumber(a)
		switch {
		case math.IsNaN(n):
			return bytecode.NewNumber(math.NaN()), nil
		case n < min, n == 0 && min == 0 && math.Signbit(n):
			min = n
		}
	}
	return bytecode.NewNumber(min), nil
}
