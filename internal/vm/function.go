package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 函数对象
// ============================================================================

// NativeFunction 宿主函数
//
// 返回的错误如果不是 *Exception，按 Error 对象抛给脚本。
type NativeFunction func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error)

// Function 函数对象的内部数据
type Function struct {
	Name  string
	Arity int

	// 脚本函数
	Executable *bytecode.FunctionExecutable
	Scope      *bytecode.Scope
	Strict     bool

	// 宿主函数
	Native      NativeFunction
	Constructor bool

	wasm *wasmFunction
}

// IsHost 宿主函数或 wasm 导出函数
func (fn *Function) IsHost() bool {
	return fn.Executable == nil
}

// IsConstructor 能否用 new 调用
func (fn *Function) IsConstructor() bool {
	if fn.Executable != nil {
		return true
	}
	return fn.Constructor
}

// functionOf 取出函数对象的内部数据
func functionOf(v bytecode.Value) (*bytecode.Object, *Function, bool) {
	o := v.AsObject()
	if o == nil || o.Class != bytecode.ClassFunction {
		return nil, nil, false
	}
	fn, ok := o.Internal.(*Function)
	return o, fn, ok
}

// newFunctionObject 按内部数据创建函数对象，定义 name 和 length
func (vm *VM) newFunctionObject(fn *Function) *bytecode.Object {
	var proto *bytecode.Object
	if vm.intrinsics != nil {
		proto = vm.intrinsics.FunctionPrototype
	}
	obj := bytecode.NewObject(bytecode.ClassFunction, proto)
	obj.Internal = fn
	obj.Define("length", bytecode.NewInt(int64(fn.Arity)), bytecode.PropConfigurable)
	obj.Define("name", bytecode.NewString(fn.Name), bytecode.PropConfigurable)
	return obj
}

// newClosure 创建脚本函数，闭包捕获 scope
func (vm *VM) newClosure(fe *bytecode.FunctionExecutable, scope *bytecode.Scope) *bytecode.Object {
	obj := vm.newFunctionObject(&Function{
		Name:       fe.Name,
		Arity:      fe.Arity(),
		Executable: fe,
		Scope:      scope,
		Strict:     fe.Strict,
	})
	proto := bytecode.NewObject(bytecode.ClassOrdinary, vm.intrinsics.ObjectPrototype)
	proto.Define("constructor", bytecode.NewObjectValue(obj), bytecode.PropWritable|bytecode.PropConfigurable)
	obj.Define("prototype", bytecode.NewObjectValue(proto), bytecode.PropWritable)
	return obj
}

// NewNativeFunction 创建宿主函数
func (vm *VM) NewNativeFunction(name string, arity int, native NativeFunction) *bytecode.Object {
	return vm.newFunctionObject(&Function{Name: name, Arity: arity, Native: native})
}

// NewNativeConstructor 创建可以用 new 调用的宿主函数，prototype 为 proto
//
// 构造调用时 this 是按 prototype 新建的对象；函数返回对象时取代它。
func (vm *VM) NewNativeConstructor(name string, arity int, proto *bytecode.Object, native NativeFunction) *bytecode.Object {
	obj := vm.newFunctionObject(&Function{Name: name, Arity: arity, Native: native, Constructor: true})
	if proto != nil {
		obj.Define("prototype", bytecode.NewObjectValue(proto), 0)
		proto.Define("constructor", bytecode.NewObjectValue(obj), bytecode.PropWritable|bytecode.PropConfigurable)
	}
	return obj
}

// DefineFunction 在对象上定义宿主方法（可写、可配置、不可枚举）
func (vm *VM) DefineFunction(target *bytecode.Object, name string, arity int, native NativeFunction) *bytecode.Object {
	fnObj := vm.NewNativeFunction(name, arity, native)
	target.Define(name, bytecode.NewObjectValue(fnObj), bytecode.PropWritable|bytecode.PropConfigurable)
	return fnObj
}

// FunctionName 函数对象的名字
func FunctionName(v bytecode.Value) string {
	if _, fn, ok := functionOf(v); ok {
		return fn.Name
	}
	return ""
}

// ============================================================================
// 函数作用域
// ============================================================================

// scopedArguments 非严格函数的 arguments：前 names 个下标映射到形参绑定
type scopedArguments struct {
	scope *bytecode.Scope
	names []string
}

// binding 下标对应的形参绑定；同名形参以最后一个为准
func (a *scopedArguments) binding(i uint32) (*bytecode.Binding, bool) {
	if int64(i) >= int64(len(a.names)) {
		return nil, false
	}
	name := a.names[i]
	for j := len(a.names) - 1; j > int(i); j-- {
		if a.names[j] == name {
			return nil, false
		}
	}
	return a.scope.Own(name)
}

// setupFunctionScope 建立函数作用域
//
// 依次放入形参、arguments、var（undefined）、顶层词法声明（死区）与
// 顶层函数声明。命名函数表达式在外面多一层只含自身名字的作用域。
func (vm *VM) setupFunctionScope(f *CallFrame, fn *Function) {
	cb := f.CodeBlock
	parent := fn.Scope
	if fn.Executable.IsExpression && fn.Name != "" {
		parent = bytecode.NewScope(bytecode.ScopeBlock, parent)
		parent.Declare(fn.Name, bytecode.BindCallee, bytecode.NewObjectValue(f.Callee))
	}
	scope := bytecode.NewScope(bytecode.ScopeFunction, parent)

	for i, name := range cb.ParamNames {
		v := bytecode.Undefined
		if i < f.ArgCount {
			v = vm.argument(f, i)
		}
		if b, ok := scope.Own(name); ok {
			b.Value = v
			continue
		}
		scope.Declare(name, bytecode.BindParam, v)
	}

	if cb.UsesArguments {
		if _, shadowed := scope.Own("arguments"); !shadowed {
			scope.Declare("arguments", bytecode.BindVar, bytecode.NewObjectValue(vm.newArguments(f, scope)))
		}
	}

	for _, name := range cb.Decls.VarNames {
		scope.Declare(name, bytecode.BindVar, bytecode.Undefined)
	}
	for _, l := range cb.Decls.Lexicals {
		kind := bytecode.BindLet
		if l.Const {
			kind = bytecode.BindConst
		}
		scope.Declare(l.Name, kind, bytecode.Empty)
	}
	for _, d := range cb.Decls.Functions {
		closure := vm.newClosure(cb.Functions[d.Index], scope)
		b := scope.Declare(d.Name, bytecode.BindFunction, bytecode.Undefined)
		b.Value = bytecode.NewObjectValue(closure)
	}

	f.fnScope = scope
	f.scope = scope
}

// newArguments 严格函数得到实参的副本，非严格函数得到映射到形参的对象
func (vm *VM) newArguments(f *CallFrame, scope *bytecode.Scope) *bytecode.Object {
	args := vm.argumentsOf(f)
	class := bytecode.ClassDirectArguments
	if !f.CodeBlock.Strict {
		class = bytecode.ClassScopedArguments
	}
	obj := bytecode.NewObject(class, vm.intrinsics.ObjectPrototype)
	obj.Indexed = args
	obj.Define("length", bytecode.NewInt(int64(len(args))), bytecode.PropWritable|bytecode.PropConfigurable)
	if class == bytecode.ClassScopedArguments {
		n := len(f.CodeBlock.ParamNames)
		if n > len(args) {
			n = len(args)
		}
		obj.Internal = &scopedArguments{scope: scope, names: f.CodeBlock.ParamNames[:n]}
	}
	return obj
}
