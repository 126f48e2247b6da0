package vm

import (
	"math"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
)

// ============================================================================
// 解释循环
// ============================================================================

// interpret 执行最内层脚本帧，直到控制回到入口帧
//
// 脚本之间的调用不递归：被调帧压入帧表后循环继续执行新的最内层帧。
// 两个执行层共用同一套指令语义，区别只在取指：解释帧按字节偏移解码，
// 编译帧直接读取预解码指令。
func (vm *VM) interpret() (bytecode.Value, error) {
	for {
		f := vm.top()
		var op bytecode.OpCode
		var a int
		f.callSite = f.ip
		if cc := f.compiled; cc != nil {
			inst := &cc.Insts[f.ip]
			op, a = inst.Op, inst.A
			f.ip++
		} else {
			chunk := f.CodeBlock.Chunk
			op = bytecode.OpCode(chunk.Code[f.ip])
			a = chunk.Operand(f.ip)
			f.ip += op.Size()
		}

		done, v, err := vm.step(f, op, a)
		if err != nil {
			return bytecode.Undefined, err
		}
		if done {
			return v, nil
		}
	}
}

func (vm *VM) name(f *CallFrame, a int) string {
	return f.CodeBlock.Chunk.Constants[a].AsString()
}

// step 执行一条指令；done 表示控制已经回到入口帧，v 是返回值
func (vm *VM) step(f *CallFrame, op bytecode.OpCode, a int) (done bool, v bytecode.Value, err error) {
	cb := f.CodeBlock
	switch op {
	case bytecode.OpConst:
		vm.push(cb.Chunk.Constants[a])
	case bytecode.OpUndefined:
		vm.push(bytecode.Undefined)
	case bytecode.OpNull:
		vm.push(bytecode.Null)
	case bytecode.OpTrue:
		vm.push(bytecode.True)
	case bytecode.OpFalse:
		vm.push(bytecode.False)
	case bytecode.OpPop:
		vm.pop()
	case bytecode.OpDup:
		vm.push(vm.peek(0))
	case bytecode.OpDup2:
		x, y := vm.peek(1), vm.peek(0)
		vm.push(x)
		vm.push(y)
	case bytecode.OpSwap:
		y := vm.pop()
		x := vm.pop()
		vm.push(y)
		vm.push(x)
	case bytecode.OpDupX1:
		y := vm.pop()
		x := vm.pop()
		vm.push(y)
		vm.push(x)
		vm.push(y)
	case bytecode.OpDupX2:
		z := vm.pop()
		y := vm.pop()
		x := vm.pop()
		vm.push(z)
		vm.push(x)
		vm.push(y)
		vm.push(z)

	// 变量与作用域
	case bytecode.OpGetVar:
		v, err := vm.lookupVar(f.scope, vm.name(f, a))
		if err != nil {
			return false, v, err
		}
		vm.push(v)
	case bytecode.OpTypeofVar:
		v, found, err := vm.resolveVar(f.scope, vm.name(f, a))
		if err != nil {
			return false, v, err
		}
		if !found {
			vm.push(bytecode.NewString("undefined"))
		} else {
			vm.push(bytecode.NewString(typeOf(v)))
		}
	case bytecode.OpSetVar:
		if err := vm.assignVar(f.scope, vm.name(f, a), vm.peek(0), cb.Strict); err != nil {
			return false, bytecode.Undefined, err
		}
	case bytecode.OpInitLet:
		initLet(f.scope, vm.name(f, a), vm.pop())
	case bytecode.OpPushScope:
		f.scope = cb.ScopeTemplates[a].Instantiate(f.scope)
		f.scopeDepth++
	case bytecode.OpPopScope:
		f.scope = f.scope.Parent
		f.scopeDepth--
	case bytecode.OpPushCatchScope:
		s := bytecode.NewScope(bytecode.ScopeCatch, f.scope)
		s.Declare(vm.name(f, a), bytecode.BindCatchParam, vm.pop())
		f.scope = s
		f.scopeDepth++

	// 属性
	case bytecode.OpGetProp:
		v, err := vm.getProperty(vm.pop(), vm.name(f, a))
		if err != nil {
			return false, v, err
		}
		vm.push(v)
	case bytecode.OpSetProp:
		val := vm.pop()
		obj := vm.pop()
		if err := vm.putProperty(obj, vm.name(f, a), val, cb.Strict); err != nil {
			return false, bytecode.Undefined, err
		}
		vm.push(val)
	case bytecode.OpGetIndex:
		key := vm.pop()
		obj := vm.pop()
		v, err := vm.getByValue(obj, key)
		if err != nil {
			return false, v, err
		}
		vm.push(v)
	case bytecode.OpSetIndex:
		val := vm.pop()
		key := vm.pop()
		obj := vm.pop()
		if err := vm.putByValue(obj, key, val, cb.Strict); err != nil {
			return false, bytecode.Undefined, err
		}
		vm.push(val)
	case bytecode.OpNewObject:
		vm.push(bytecode.NewObjectValue(bytecode.NewObject(bytecode.ClassOrdinary, vm.intrinsics.ObjectPrototype)))
	case bytecode.OpPutField:
		val := vm.pop()
		vm.peek(0).AsObject().Define(vm.name(f, a), val, bytecode.PropDefault)
	case bytecode.OpNewArray:
		elems := make([]bytecode.Value, a)
		copy(elems, vm.stack[vm.sp-a:vm.sp])
		for i := 0; i < a; i++ {
			vm.pop()
		}
		vm.push(bytecode.NewObjectValue(vm.NewArray(elems)))
	case bytecode.OpSpread:
		frozen, err := vm.spread(vm.pop())
		if err != nil {
			return false, bytecode.Undefined, err
		}
		vm.push(bytecode.NewObjectValue(frozen))

	// 调用
	case bytecode.OpNewFunc:
		vm.push(bytecode.NewObjectValue(vm.newClosure(cb.Functions[a], f.scope)))
	case bytecode.OpCall:
		return false, bytecode.Undefined, vm.callAt(vm.sp-a-2, a, false)
	case bytecode.OpNew:
		return false, bytecode.Undefined, vm.callAt(vm.sp-a-2, a, true)
	case bytecode.OpCallEval:
		return false, bytecode.Undefined, vm.callEval(f, a)
	case bytecode.OpCallVarargs, bytecode.OpNewVarargs:
		arrayLike := vm.pop()
		calleeIdx := vm.sp - a - 2
		n, err := vm.setupVarargsFrame(arrayLike, 0, a)
		if err != nil {
			return false, bytecode.Undefined, err
		}
		return false, bytecode.Undefined, vm.callAt(calleeIdx, a+n, op == bytecode.OpNewVarargs)
	case bytecode.OpCallForwardArguments:
		calleeIdx := vm.sp - 2
		n, err := vm.sizeFrameForForwardArguments(f)
		if err != nil {
			return false, bytecode.Undefined, err
		}
		return false, bytecode.Undefined, vm.callAt(calleeIdx, n, false)
	case bytecode.OpReturn:
		return vm.leave(f, vm.pop())
	case bytecode.OpEnd:
		if f.module != nil {
			f.module.finish(f.completion)
		}
		return vm.leave(f, f.completion)
	case bytecode.OpSetCompletion:
		f.completion = vm.pop()

	// 异常
	case bytecode.OpThrow:
		return false, bytecode.Undefined, vm.throwValue(vm.pop())
	case bytecode.OpRethrow:
		slot := vm.sp - 1
		v := vm.pop()
		if exc := f.takeRethrow(slot); exc != nil {
			return false, bytecode.Undefined, vm.rethrow(exc)
		}
		return false, bytecode.Undefined, vm.throwValue(v)
	case bytecode.OpCatch:
		exc := vm.exception
		vm.exception = nil
		if exc == nil {
			vm.push(bytecode.Undefined)
		} else {
			vm.push(exc.Value)
		}

	// 跳转
	case bytecode.OpJump:
		f.ip = a
	case bytecode.OpJumpIfFalse:
		if !toBoolean(vm.pop()) {
			f.ip = a
		}
	case bytecode.OpJumpIfTrue:
		if toBoolean(vm.pop()) {
			f.ip = a
		}
	case bytecode.OpJumpIfFalseKeep:
		if !toBoolean(vm.peek(0)) {
			f.ip = a
		} else {
			vm.pop()
		}
	case bytecode.OpJumpIfTrueKeep:
		if toBoolean(vm.peek(0)) {
			f.ip = a
		} else {
			vm.pop()
		}
	case bytecode.OpLoopHint:
		if err := vm.handleTraps(); err != nil {
			return false, bytecode.Undefined, err
		}

	// 运算
	case bytecode.OpAdd:
		y := vm.pop()
		x := vm.pop()
		vm.push(add(x, y))
	case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		y := toNumber(vm.pop())
		x := toNumber(vm.pop())
		vm.push(bytecode.NewNumber(arith(op, x, y)))
	case bytecode.OpNeg:
		vm.push(bytecode.NewNumber(-toNumber(vm.pop())))
	case bytecode.OpToNumber:
		vm.push(bytecode.NewNumber(toNumber(vm.pop())))
	case bytecode.OpInc:
		vm.push(bytecode.NewNumber(toNumber(vm.pop()) + 1))
	case bytecode.OpDec:
		vm.push(bytecode.NewNumber(toNumber(vm.pop()) - 1))
	case bytecode.OpNot:
		vm.push(bytecode.NewBool(!toBoolean(vm.pop())))
	case bytecode.OpTypeof:
		vm.push(bytecode.NewString(typeOf(vm.pop())))
	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		y := vm.pop()
		x := vm.pop()
		vm.push(bytecode.NewBool(compare(op, x, y)))
	case bytecode.OpEq:
		y := vm.pop()
		x := vm.pop()
		vm.push(bytecode.NewBool(looseEquals(x, y)))
	case bytecode.OpNe:
		y := vm.pop()
		x := vm.pop()
		vm.push(bytecode.NewBool(!looseEquals(x, y)))
	case bytecode.OpStrictEq:
		y := vm.pop()
		x := vm.pop()
		vm.push(bytecode.NewBool(x.StrictEquals(y)))
	case bytecode.OpStrictNe:
		y := vm.pop()
		x := vm.pop()
		vm.push(bytecode.NewBool(!x.StrictEquals(y)))

	// 其他
	case bytecode.OpThis:
		vm.push(f.This)
	case bytecode.OpCreateThis:
		this := bytecode.NewObjectValue(vm.createThis(f.Callee))
		f.This = this
		vm.stack[f.base+1] = this
	case bytecode.OpDebugHook:
		vm.debug(f, bytecode.DebugHookType(a))
	case bytecode.OpAwait:
		return vm.suspendModule(f, vm.pop())
	case bytecode.OpResumeModule:
		return false, bytecode.Undefined, vm.resumeModule(f)

	default:
		err := vm.throwError(ErrorName, "unknown opcode %s at %d", op, f.Offset())
		if d := errorDataOf(vm.exception.Value); d != nil {
			d.code = rterrors.R0002
		}
		return false, bytecode.Undefined, err
	}
	return false, bytecode.Undefined, nil
}

func arith(op bytecode.OpCode, x, y float64) float64 {
	switch op {
	case bytecode.OpSub:
		return x - y
	case bytecode.OpMul:
		return x * y
	case bytecode.OpDiv:
		return x / y
	}
	return math.Mod(x, y)
}

func compare(op bytecode.OpCode, x, y bytecode.Value) bool {
	switch op {
	case bytecode.OpLt:
		r, undef := lessThan(x, y)
		return r && !undef
	case bytecode.OpGt:
		r, undef := lessThan(y, x)
		return r && !undef
	case bytecode.OpLe:
		r, undef := lessThan(y, x)
		return !r && !undef
	}
	r, undef := lessThan(x, y)
	return !r && !undef
}

// leave 弹出脚本帧，把返回值交给调用者
//
// 构造调用返回非对象时结果是 this。
func (vm *VM) leave(f *CallFrame, v bytecode.Value) (bool, bytecode.Value, error) {
	if f.construct && !v.IsObject() {
		v = f.This
	}
	vm.popFrame()
	if vm.top().IsEntry() {
		return true, v, nil
	}
	vm.push(v)
	return false, v, nil
}

// ============================================================================
// 调用
// ============================================================================

// callAt 值栈上 calleeIdx 起是 [callee][this][argc 个实参]
//
// 脚本函数压入新帧后返回，由解释循环继续；宿主函数立即执行，结果替换
// callee 槽。
func (vm *VM) callAt(calleeIdx, argc int, construct bool) error {
	if err := vm.handleTraps(); err != nil {
		return err
	}
	callee := vm.stack[calleeIdx]
	obj, fn, ok := functionOf(callee)
	if !ok {
		return vm.throwError(TypeErrorName, "%s is not a function", describeCallee(callee))
	}
	if construct && !fn.IsConstructor() {
		return vm.throwError(TypeErrorName, "%s is not a constructor", describeCallee(callee))
	}

	if fn.IsHost() {
		v, err := vm.callHostAt(obj, fn, calleeIdx, argc, construct)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}

	kind := bytecode.SpecializeCall
	if construct {
		kind = bytecode.SpecializeConstruct
	} else if !fn.Strict && vm.stack[calleeIdx+1].IsUndefinedOrNull() {
		vm.stack[calleeIdx+1] = bytecode.NewObjectValue(vm.global)
	}
	cb, err := fn.Executable.Prepare(vm.gen, kind, vm.compileOptions())
	if err != nil {
		return err
	}
	f, err := vm.enterCodeBlock(cb, obj, calleeIdx, argc, construct, nil)
	if err != nil {
		return err
	}
	vm.setupFunctionScope(f, fn)
	return nil
}

// callHostAt 在宿主帧里调用宿主函数或 wasm 函数
//
// 成功时弹出宿主帧，值栈回到 calleeIdx；失败时宿主帧留给展开处理，
// wasm 帧的处理器表在展开时查找。
func (vm *VM) callHostAt(obj *bytecode.Object, fn *Function, calleeIdx, argc int, construct bool) (bytecode.Value, error) {
	if len(vm.frames) >= vm.cfg.MaxFrames || argc > vm.cfg.MaxArguments {
		return bytecode.Undefined, vm.throwStackOverflow()
	}
	this := vm.stack[calleeIdx+1]
	if construct {
		this = bytecode.NewObjectValue(vm.createThis(obj))
		vm.stack[calleeIdx+1] = this
	}
	args := make([]bytecode.Value, argc)
	copy(args, vm.stack[calleeIdx+2:calleeIdx+2+argc])

	f := &CallFrame{
		Kind:     FrameNative,
		Callee:   obj,
		This:     this,
		ArgCount: argc,
		base:     calleeIdx,
		opBase:   calleeIdx + 2 + argc,
		name:     fn.Name,
		wasmFn:   fn.wasm,
	}
	if fn.wasm != nil {
		f.Kind = FrameWasm
	}
	vm.pushFrame(f)

	var v bytecode.Value
	var err error
	if fn.wasm != nil {
		v, err = vm.callWasm(fn.wasm, args)
	} else if fn.Native != nil {
		v, err = fn.Native(vm, this, args)
	}
	if err != nil {
		return bytecode.Undefined, err
	}
	vm.popFrame()
	if construct && !v.IsObject() {
		v = this
	}
	return v, nil
}

// createThis 构造调用的 this：原型取 callee.prototype，不是对象时取 Object.prototype
func (vm *VM) createThis(callee *bytecode.Object) *bytecode.Object {
	proto := vm.intrinsics.ObjectPrototype
	if callee != nil {
		if p, ok := callee.GetOwn("prototype"); ok && !p.IsAccessor() && p.Value.IsObject() {
			proto = p.Value.AsObject()
		}
	}
	return bytecode.NewObject(bytecode.ClassOrdinary, proto)
}

// callEval 直接 eval：callee 是内建 eval 时在调用者的作用域里执行
func (vm *VM) callEval(f *CallFrame, argc int) error {
	calleeIdx := vm.sp - argc - 2
	if !vm.stack[calleeIdx].IsObject() || vm.stack[calleeIdx].AsObject() != vm.intrinsics.Eval {
		return vm.callAt(calleeIdx, argc, false)
	}
	result := bytecode.Undefined
	if argc > 0 {
		result = vm.stack[calleeIdx+2]
	}
	if result.IsString() {
		src := bytecode.NewSourceCode(f.SourceURL(), result.AsString())
		exe := bytecode.NewEvalExecutable(src, f.CodeBlock.Strict, true)
		v, err := vm.ExecuteEval(exe, f.This, f.scope)
		if err != nil {
			return err
		}
		result = v
	}
	for vm.sp > calleeIdx {
		vm.pop()
	}
	vm.push(result)
	return nil
}

// spread 把类数组冻结为不可变数组
func (vm *VM) spread(v bytecode.Value) (*bytecode.Object, error) {
	if v.IsObject() && v.AsObject().Class == bytecode.ClassImmutableButterfly {
		return v.AsObject(), nil
	}
	n, err := vm.sizeOfVarargs(v, 0)
	if err != nil {
		return nil, err
	}
	buf := make([]bytecode.Value, n)
	if err := vm.loadVarargs(buf, v, 0, n); err != nil {
		return nil, err
	}
	frozen := bytecode.NewArrayObject(vm.intrinsics.ArrayPrototype, buf)
	frozen.Class = bytecode.ClassImmutableButterfly
	return frozen, nil
}

// NewArray 以给定元素创建数组
func (vm *VM) NewArray(elems []bytecode.Value) *bytecode.Object {
	return bytecode.NewArrayObject(vm.intrinsics.ArrayPrototype, elems)
}

// NewObject 创建普通对象
func (vm *VM) NewObject() *bytecode.Object {
	return bytecode.NewObject(bytecode.ClassOrdinary, vm.intrinsics.ObjectPrototype)
}

func (vm *VM) getByValue(obj, key bytecode.Value) (bytecode.Value, error) {
	if o := obj.AsObject(); o != nil && key.IsNumber() {
		if n := key.AsNumber(); n >= 0 && n < math.MaxUint32 && n == math.Trunc(n) {
			return vm.getIndexed(o, uint32(n))
		}
	}
	return vm.getProperty(obj, propertyKey(key))
}

func (vm *VM) putByValue(obj, key, val bytecode.Value, strict bool) error {
	if o := obj.AsObject(); o != nil && key.IsNumber() {
		if n := key.AsNumber(); n >= 0 && n < math.MaxUint32 && n == math.Trunc(n) {
			return vm.putIndex(o, uint32(n), val, strict)
		}
	}
	return vm.putProperty(obj, propertyKey(key), val, strict)
}

func describeCallee(v bytecode.Value) string {
	switch v.Type {
	case bytecode.ValString:
		return v.String()
	case bytecode.ValObject:
		if v.AsObject().Class == bytecode.ClassArray {
			return "array"
		}
		return "object"
	}
	return toString(v)
}

// ============================================================================
// 名字解析
// ============================================================================

// resolveVar 沿作用域链查找；处于死区时抛出 ReferenceError
func (vm *VM) resolveVar(scope *bytecode.Scope, name string) (bytecode.Value, bool, error) {
	for s := scope; s != nil; s = s.Parent {
		if s.Object != nil {
			if !hasProperty(s.Object, name) {
				continue
			}
			v, err := vm.getProperty(bytecode.NewObjectValue(s.Object), name)
			return v, true, err
		}
		b, ok := s.Own(name)
		if !ok {
			continue
		}
		if !b.Initialized() {
			return bytecode.Undefined, true, vm.throwError(ReferenceErrorName, "Cannot access '%s' before initialization.", name)
		}
		return b.Value, true, nil
	}
	return bytecode.Undefined, false, nil
}

// lookupVar 找不到时抛出 ReferenceError
func (vm *VM) lookupVar(scope *bytecode.Scope, name string) (bytecode.Value, error) {
	v, found, err := vm.resolveVar(scope, name)
	if err != nil {
		return v, err
	}
	if !found {
		return bytecode.Undefined, vm.throwError(ReferenceErrorName, "Can't find variable: %s", name)
	}
	return v, nil
}

// assignVar 赋值给最近的绑定
//
// 找不到绑定时非严格代码创建全局属性，严格代码抛出 ReferenceError。
func (vm *VM) assignVar(scope *bytecode.Scope, name string, v bytecode.Value, strict bool) error {
	for s := scope; s != nil; s = s.Parent {
		if s.Object != nil {
			if !hasProperty(s.Object, name) {
				continue
			}
			return vm.putProperty(bytecode.NewObjectValue(s.Object), name, v, strict)
		}
		b, ok := s.Own(name)
		if !ok {
			continue
		}
		if !b.Initialized() {
			return vm.throwError(ReferenceErrorName, "Cannot access '%s' before initialization.", name)
		}
		switch b.Kind {
		case bytecode.BindConst:
			return vm.throwError(TypeErrorName, "Attempted to assign to readonly property.")
		case bytecode.BindCallee:
			if strict {
				return vm.throwError(TypeErrorName, "Attempted to assign to readonly property.")
			}
			return nil
		}
		b.Value = v
		return nil
	}
	if strict {
		return vm.throwError(ReferenceErrorName, "Can't find variable: %s", name)
	}
	vm.global.Set(name, v)
	return nil
}

// initLet 初始化最近一个拥有该名字的作用域里的绑定
func initLet(scope *bytecode.Scope, name string, v bytecode.Value) {
	for s := scope; s != nil; s = s.Parent {
		if b, ok := s.Own(name); ok {
			b.Value = v
			return
		}
	}
}
