package vm

import (
	"math"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 内建对象
// ============================================================================

// Intrinsics 虚拟机创建时建立的内建对象
type Intrinsics struct {
	ObjectPrototype        *bytecode.Object
	FunctionPrototype      *bytecode.Object
	ArrayPrototype         *bytecode.Object
	ErrorPrototype         *bytecode.Object
	WasmExceptionPrototype *bytecode.Object

	// Eval 全局 eval；直接调用它的 CallEval 在调用者作用域里执行
	Eval *bytecode.Object

	errorPrototypes map[string]*bytecode.Object

	// 入口帧之上的程序、eval、模块帧使用的 callee
	programCallee *bytecode.Object
	evalCallee    *bytecode.Object
	moduleCallee  *bytecode.Object
}

// errorPrototype 按构造器名取错误原型，未知名字取 Error.prototype
func (in *Intrinsics) errorPrototype(name string) *bytecode.Object {
	if in == nil {
		return nil
	}
	if p, ok := in.errorPrototypes[name]; ok {
		return p
	}
	return in.ErrorPrototype
}

// ErrorPrototypeFor 按构造器名取错误原型
func (in *Intrinsics) ErrorPrototypeFor(name string) *bytecode.Object {
	return in.errorPrototype(name)
}

const hidden = bytecode.PropWritable | bytecode.PropConfigurable

func (vm *VM) initIntrinsics() {
	in := &Intrinsics{errorPrototypes: make(map[string]*bytecode.Object)}
	vm.intrinsics = in

	in.ObjectPrototype = bytecode.NewObject(bytecode.ClassOrdinary, nil)
	in.FunctionPrototype = bytecode.NewObject(bytecode.ClassFunction, in.ObjectPrototype)
	in.FunctionPrototype.Internal = &Function{Name: "", Native: func(*VM, bytecode.Value, []bytecode.Value) (bytecode.Value, error) {
		return bytecode.Undefined, nil
	}}
	in.ArrayPrototype = bytecode.NewArrayObject(in.ObjectPrototype, nil)

	vm.global = bytecode.NewObject(bytecode.ClassGlobal, in.ObjectPrototype)
	vm.objectScope = bytecode.NewObjectScope(vm.global)
	vm.lexicalScope = bytecode.NewScope(bytecode.ScopeGlobalLexical, vm.objectScope)

	in.programCallee = vm.newFunctionObject(&Function{Name: "global code"})
	in.evalCallee = vm.newFunctionObject(&Function{Name: "eval code"})
	in.moduleCallee = vm.newFunctionObject(&Function{Name: "module code"})

	g := vm.global
	g.Define("globalThis", bytecode.NewObjectValue(g), hidden)
	g.Define("undefined", bytecode.Undefined, 0)
	g.Define("NaN", bytecode.NewNumber(math.NaN()), 0)
	g.Define("Infinity", bytecode.NewNumber(math.Inf(1)), 0)

	vm.initObject()
	vm.initFunction()
	vm.initArray()
	vm.initErrors()
	vm.initWebAssembly()

	in.Eval = vm.DefineFunction(g, "eval", 1, func(vm *VM, _ bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if len(args) == 0 {
			return bytecode.Undefined, nil
		}
		if !args[0].IsString() {
			return args[0], nil
		}
		exe := bytecode.NewEvalExecutable(bytecode.NewSourceCode("eval", args[0].AsString()), false, false)
		return vm.ExecuteEval(exe, bytecode.NewObjectValue(vm.global), vm.lexicalScope)
	})
}

func argAt(args []bytecode.Value, i int) bytecode.Value {
	if i < len(args) {
		return args[i]
	}
	return bytecode.Undefined
}

// ============================================================================
// Object
// ============================================================================

func (vm *VM) initObject() {
	in := vm.intrinsics
	ctor := vm.NewNativeConstructor("Object", 1, in.ObjectPrototype, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if v := argAt(args, 0); v.IsObject() {
			return v, nil
		}
		return bytecode.NewObjectValue(vm.NewObject()), nil
	})
	vm.global.Define("Object", bytecode.NewObjectValue(ctor), hidden)

	vm.DefineFunction(in.ObjectPrototype, "hasOwnProperty", 1, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if !this.IsObject() {
			return bytecode.False, nil
		}
		o := this.AsObject()
		key := propertyKey(argAt(args, 0))
		if key == "length" && (o.Class == bytecode.ClassArray || o.Class == bytecode.ClassImmutableButterfly) {
			return bytecode.True, nil
		}
		return bytecode.NewBool(o.HasOwn(key)), nil
	})
	vm.DefineFunction(in.ObjectPrototype, "toString", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		switch {
		case this.IsUndefined():
			return bytecode.NewString("[object Undefined]"), nil
		case this.IsNull():
			return bytecode.NewString("[object Null]"), nil
		case this.IsObject():
			return bytecode.NewString("[object " + this.AsObject().Class.String() + "]"), nil
		}
		return bytecode.NewString("[object Object]"), nil
	})
}

// ============================================================================
// Function
// ============================================================================

func (vm *VM) initFunction() {
	in := vm.intrinsics
	fp := in.FunctionPrototype
	fp.Define("length", bytecode.Zero, bytecode.PropConfigurable)
	fp.Define("name", bytecode.NewString(""), bytecode.PropConfigurable)

	vm.DefineFunction(fp, "call", 1, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if !this.IsFunction() {
			return bytecode.Undefined, vm.throwError(TypeErrorName, "Function.prototype.call called on a non-function")
		}
		var rest []bytecode.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return vm.ExecuteCall(this.AsObject(), argAt(args, 0), rest)
	})
	vm.DefineFunction(fp, "apply", 2, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if !this.IsFunction() {
			return bytecode.Undefined, vm.throwError(TypeErrorName, "Function.prototype.apply was called on %s, which is not a function", describeCallee(this))
		}
		arrayLike := argAt(args, 1)
		n, err := vm.sizeOfVarargs(arrayLike, 0)
		if err != nil {
			return bytecode.Undefined, err
		}
		buf := make([]bytecode.Value, n)
		if err := vm.loadVarargs(buf, arrayLike, 0, n); err != nil {
			return bytecode.Undefined, err
		}
		return vm.ExecuteCall(this.AsObject(), argAt(args, 0), buf)
	})
	vm.DefineFunction(fp, "toString", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if !this.IsFunction() {
			return bytecode.Undefined, vm.throwError(TypeErrorName, "Function.prototype.toString called on a non-function")
		}
		return bytecode.NewString(toString(this)), nil
	})
}

// ============================================================================
// Array
// ============================================================================

func (vm *VM) initArray() {
	in := vm.intrinsics
	ctor := vm.NewNativeConstructor("Array", 1, in.ArrayPrototype, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if len(args) == 1 && args[0].IsNumber() {
			n := args[0].AsNumber()
			if n < 0 || n != math.Trunc(n) || n > math.MaxUint32 {
				return bytecode.Undefined, vm.throwError(RangeErrorName, "Invalid array length")
			}
			arr := vm.NewArray(nil)
			arr.SetArrayLength(uint32(n))
			return bytecode.NewObjectValue(arr), nil
		}
		elems := make([]bytecode.Value, len(args))
		copy(elems, args)
		return bytecode.NewObjectValue(vm.NewArray(elems)), nil
	})
	vm.DefineFunction(ctor, "isArray", 1, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		v := argAt(args, 0)
		return bytecode.NewBool(v.IsObject() && v.AsObject().Class == bytecode.ClassArray), nil
	})
	vm.global.Define("Array", bytecode.NewObjectValue(ctor), hidden)
}

// ============================================================================
// Error
// ============================================================================

func (vm *VM) initErrors() {
	in := vm.intrinsics
	in.ErrorPrototype = vm.defineErrorConstructor(vm.global, ErrorName, in.ObjectPrototype)
	for _, name := range []string{TypeErrorName, RangeErrorName, ReferenceErrorName, SyntaxErrorName} {
		vm.defineErrorConstructor(vm.global, name, in.ErrorPrototype)
	}

	vm.DefineFunction(in.ErrorPrototype, "toString", 0, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		if !this.IsObject() {
			return bytecode.Undefined, vm.throwError(TypeErrorName, "Error.prototype.toString requires that 'this' be an Object")
		}
		name, err := vm.getProperty(this, "name")
		if err != nil {
			return bytecode.Undefined, err
		}
		msg, err := vm.getProperty(this, "message")
		if err != nil {
			return bytecode.Undefined, err
		}
		n, m := ErrorName, ""
		if !name.IsUndefined() {
			n = toString(name)
		}
		if !msg.IsUndefined() {
			m = toString(msg)
		}
		switch {
		case n == "":
			return bytecode.NewString(m), nil
		case m == "":
			return bytecode.NewString(n), nil
		}
		return bytecode.NewString(n + ": " + m), nil
	})
}

// defineErrorConstructor 定义错误构造器，返回它的原型
func (vm *VM) defineErrorConstructor(target *bytecode.Object, name string, parent *bytecode.Object) *bytecode.Object {
	proto := bytecode.NewObject(bytecode.ClassOrdinary, parent)
	proto.Internal = errorPrototypeMarker{}
	proto.Define("name", bytecode.NewString(name), hidden)
	proto.Define("message", bytecode.NewString(""), hidden)
	vm.intrinsics.errorPrototypes[name] = proto

	ctor := vm.NewNativeConstructor(name, 1, proto, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		msg := ""
		if m := argAt(args, 0); !m.IsUndefined() {
			msg = toString(m)
		}
		return bytecode.NewObjectValue(vm.newErrorSkipping(name, msg, 1)), nil
	})
	target.Define(name, bytecode.NewObjectValue(ctor), hidden)
	return proto
}

// ============================================================================
// WebAssembly
// ============================================================================

func (vm *VM) initWebAssembly() {
	in := vm.intrinsics
	wa := vm.NewObject()
	vm.global.Define("WebAssembly", bytecode.NewObjectValue(wa), hidden)

	in.WasmExceptionPrototype = vm.NewObject()
	ctor := vm.NewNativeConstructor("Exception", 2, in.WasmExceptionPrototype, func(vm *VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
		tag := uint32(toInt32(argAt(args, 0)))
		payload := uint32(toInt32(argAt(args, 1)))
		return bytecode.NewObjectValue(vm.newWasmException(tag, payload)), nil
	})
	wa.Define("Exception", bytecode.NewObjectValue(ctor), hidden)
	vm.defineErrorConstructor(wa, RuntimeErrorName, in.ErrorPrototype)
}
