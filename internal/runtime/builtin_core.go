package runtime

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

// ============================================================================
// 核心内置函数
// ============================================================================

func (r *Runtime) registerBuiltins() {
	g := r.vm.Global()

	// 输出函数
	r.vm.DefineFunction(g, "print", 1, r.builtinPrint)
	console := r.vm.NewObject()
	r.vm.DefineFunction(console, "log", 0, r.builtinPrint)
	g.Define("console", bytecode.NewObjectValue(console), bytecode.PropWritable|bytecode.PropConfigurable)

	// 回收
	r.vm.DefineFunction(g, "gc", 0, r.builtinGC)

	r.registerMath()
	r.registerArray()
	r.registerJSON()
}

// builtinPrint 参数以空格分隔写到输出，字符串不加引号
func (r *Runtime) builtinPrint(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = display(arg)
	}
	if _, err := fmt.Fprintln(r.out, strings.Join(parts, " ")); err != nil {
		return bytecode.Undefined, fmt.Errorf("print: %w", err)
	}
	return bytecode.Undefined, nil
}

func (r *Runtime) builtinGC(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	before := v.Heap().Stats()
	v.Heap().Collect()
	after := v.Heap().Stats()
	r.logger.Debug("gc requested by script",
		zap.Int64("collections", after.Collections),
		zap.Int64("jettisoned", after.Jettisoned-before.Jettisoned))
	return bytecode.Undefined, nil
}

// display print 的值格式：数组展开元素，函数显示名字
func display(v bytecode.Value) string {
	if !v.IsObject() {
		return vm.ToString(v)
	}
	o := v.AsObject()
	switch {
	case v.IsFunction():
		return "function " + vm.FunctionName(v) + "() {}"
	case o.Class == bytecode.ClassArray, o.Class == bytecode.ClassImmutableButterfly:
		return vm.ToString(v)
	case o.Class == bytecode.ClassError:
		return vm.ToString(v)
	}
	return "[object " + o.Class.String() + "]"
}
