package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 入口状态
// ============================================================================

// EntryState 一次入口调用经过的阶段
type EntryState byte

const (
	StateNone EntryState = iota
	StateEntered
	StateStackChecked
	StateCompiled
	StateFrameBuilt
	StateExecuting
	StateReturned
	StateThrown
)

var entryStateNames = [...]string{
	StateNone:         "none",
	StateEntered:      "entered",
	StateStackChecked: "stack-checked",
	StateCompiled:     "compiled",
	StateFrameBuilt:   "frame-built",
	StateExecuting:    "executing",
	StateReturned:     "returned",
	StateThrown:       "thrown",
}

func (s EntryState) String() string {
	if int(s) < len(entryStateNames) {
		return entryStateNames[s]
	}
	return "state"
}

// entry 一次入口调用的簿记
type entry struct {
	vm    *VM
	name  string
	throw *throwScope
	scope *VMEntryScope
	frame *CallFrame
}

func (vm *VM) reach(s EntryState) {
	vm.lastReached = s
}

// enter 建立入口作用域并做第一次栈检查
//
// 返回 nil 时入口不执行：回收进行中（错误为 nil，结果是 undefined）、
// 进入时已有待处理异常，或者栈余量不足。
func (vm *VM) enter(name string) (*entry, error) {
	vm.lastReached, vm.lastOutcome = StateNone, StateNone
	vm.lastJSONP = false
	if vm.heap.refuseEntry(name) {
		return nil, nil
	}
	ts := newThrowScope(vm)
	if err := ts.assertNoException(); err != nil {
		return nil, err
	}
	e := &entry{vm: vm, name: name, throw: ts, scope: vm.enterScope()}
	vm.reach(StateEntered)
	if err := vm.checkStack(); err != nil {
		_, err = e.finish(bytecode.Undefined, err)
		return nil, err
	}
	vm.reach(StateStackChecked)
	e.frame = vm.pushEntryFrame()
	return e, nil
}

// run 把控制交给脚本
func (e *entry) run(first func() (bytecode.Value, error)) (bytecode.Value, error) {
	vm := e.vm
	vm.reach(StateExecuting)
	e.throw.release()
	vm.reentry++
	defer func() { vm.reentry-- }()
	return vm.runFrom(first)
}

// finish 弹出入口帧，关闭入口作用域，整理结果
func (e *entry) finish(v bytecode.Value, err error) (bytecode.Value, error) {
	vm := e.vm
	if e.frame != nil {
		for len(vm.frames) > 0 {
			if vm.popFrame() == e.frame {
				break
			}
		}
		e.frame = nil
	}
	v, err = e.throw.finish(v, err)
	if err != nil {
		vm.lastOutcome = StateThrown
	} else {
		vm.lastOutcome = StateReturned
	}
	e.scope.Close()
	return v, err
}

// checkFrame 建帧前的第二次栈检查
func (e *entry) checkFrame() error {
	return e.vm.checkStack()
}

// ============================================================================
// 编译
// ============================================================================

// cached 先查共享的代码缓存，未命中时编译并放入缓存
func (vm *VM) cached(src *bytecode.SourceCode, typ bytecode.CodeType, opts bytecode.CompileOptions, compile func() (*bytecode.CodeBlock, error)) (*bytecode.CodeBlock, error) {
	if vm.cache != nil {
		if cb, ok := vm.cache.Get(src, typ, opts); ok {
			return cb, nil
		}
	}
	cb, err := compile()
	if err != nil {
		return nil, err
	}
	if vm.cache != nil {
		vm.cache.Put(src, typ, opts, cb)
	}
	return cb, nil
}

// ============================================================================
// 程序
// ============================================================================

// ExecuteProgram 执行顶层程序，this 为 undefined 时取全局对象
//
// 整个源码是 JSONP 形式时先走快速路径，不生成字节码。
func (vm *VM) ExecuteProgram(exe *bytecode.ProgramExecutable, this bytecode.Value) (bytecode.Value, error) {
	e, err := vm.enter("program")
	if e == nil {
		return bytecode.Undefined, err
	}

	if vm.cfg.JSONP {
		if v, handled, err := vm.executeJSONP(exe.Source.Text); handled {
			vm.lastJSONP = true
			vm.reach(StateCompiled)
			return e.finish(v, err)
		}
	}

	opts := vm.compileOptions()
	cb, err := vm.cached(exe.Source, bytecode.ProgramCode, opts, func() (*bytecode.CodeBlock, error) {
		return exe.Prepare(vm.gen, opts)
	})
	if err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	vm.reach(StateCompiled)

	if err := vm.initializeGlobalProperties(cb); err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	if this.IsUndefinedOrNull() {
		this = bytecode.NewObjectValue(vm.global)
	}
	if err := e.checkFrame(); err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	if _, err := vm.buildFrame(&ProtoCallFrame{
		CodeBlock: cb,
		Global:    vm.global,
		Callee:    vm.intrinsics.programCallee,
		This:      this,
		Scope:     vm.lexicalScope,
	}); err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	vm.reach(StateFrameBuilt)

	return e.finish(e.run(vm.interpret))
}

// ============================================================================
// 函数调用
// ============================================================================

// ExecuteCall 以 this 和 args 调用函数
func (vm *VM) ExecuteCall(fnObj *bytecode.Object, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	e, err := vm.enter("call")
	if e == nil {
		return bytecode.Undefined, err
	}
	return e.finish(vm.executeFunction(e, fnObj, this, args, false))
}

// ExecuteConstruct 以 new 调用函数，结果总是对象
func (vm *VM) ExecuteConstruct(fnObj *bytecode.Object, args []bytecode.Value) (*bytecode.Object, error) {
	e, err := vm.enter("construct")
	if e == nil {
		if err == nil {
			return nil, nil
		}
		return nil, err
	}
	v, err := e.finish(vm.executeFunction(e, fnObj, bytecode.Undefined, args, true))
	if err != nil {
		return nil, err
	}
	if !v.IsObject() {
		vm.logger.Error("constructor returned a non-object")
		return nil, vm.takeError(TypeErrorName, "constructor returned a non-object")
	}
	return v.AsObject(), nil
}

// executeFunction 入口帧已经压入后的调用过程
func (vm *VM) executeFunction(e *entry, fnObj *bytecode.Object, this bytecode.Value, args []bytecode.Value, construct bool) (bytecode.Value, error) {
	obj, fn, ok := functionOf(bytecode.NewObjectValue(fnObj))
	if !ok {
		return bytecode.Undefined, vm.throwError(TypeErrorName, "%s is not a function", describeCallee(bytecode.NewObjectValue(fnObj)))
	}
	if construct && !fn.IsConstructor() {
		return bytecode.Undefined, vm.throwError(TypeErrorName, "%s is not a constructor", fn.Name)
	}
	if len(args) > vm.cfg.MaxArguments {
		return bytecode.Undefined, vm.throwStackOverflow()
	}

	var cb *bytecode.CodeBlock
	if !fn.IsHost() {
		kind := bytecode.SpecializeCall
		if construct {
			kind = bytecode.SpecializeConstruct
		}
		var err error
		cb, err = fn.Executable.Prepare(vm.gen, kind, vm.compileOptions())
		if err != nil {
			return bytecode.Undefined, err
		}
	}
	vm.reach(StateCompiled)
	return vm.invokePrepared(e, obj, fn, cb, this, args, construct)
}

// invokePrepared 代码单元已经取得，建帧并执行
func (vm *VM) invokePrepared(e *entry, obj *bytecode.Object, fn *Function, cb *bytecode.CodeBlock, this bytecode.Value, args []bytecode.Value, construct bool) (bytecode.Value, error) {
	if err := e.checkFrame(); err != nil {
		return bytecode.Undefined, err
	}

	if fn.IsHost() {
		base := vm.sp
		if err := vm.ensureStack(base + 2 + len(args) + frameReserve); err != nil {
			return bytecode.Undefined, err
		}
		vm.stack[base] = bytecode.NewObjectValue(obj)
		vm.stack[base+1] = this
		copy(vm.stack[base+2:], args)
		vm.sp = base + 2 + len(args)
		vm.reach(StateFrameBuilt)
		return e.run(func() (bytecode.Value, error) {
			return vm.callHostAt(obj, fn, base, len(args), construct)
		})
	}

	if !construct && !fn.Strict && this.IsUndefinedOrNull() {
		this = bytecode.NewObjectValue(vm.global)
	}
	f, err := vm.buildFrame(&ProtoCallFrame{
		CodeBlock: cb,
		Global:    vm.global,
		Callee:    obj,
		This:      this,
		Args:      args,
		Construct: construct,
	})
	if err != nil {
		return bytecode.Undefined, err
	}
	vm.setupFunctionScope(f, fn)
	vm.reach(StateFrameBuilt)
	return e.run(vm.interpret)
}

// Call 从宿主调用脚本值
func (vm *VM) Call(fn bytecode.Value, this bytecode.Value, args ...bytecode.Value) (bytecode.Value, error) {
	if !fn.IsFunction() {
		return bytecode.Undefined, vm.takeError(TypeErrorName, "%s is not a function", describeCallee(fn))
	}
	return vm.ExecuteCall(fn.AsObject(), this, args)
}

// takeError 在入口之外构造错误：直接作为返回值，不留在异常槽里
func (vm *VM) takeError(name, format string, args ...interface{}) error {
	vm.throwError(name, format, args...)
	return vm.takeException()
}

// ============================================================================
// eval
// ============================================================================

// ExecuteEval 在 scope 上执行 eval 代码
//
// 直接 eval 传入调用者的作用域和 this；间接 eval 传入全局词法作用域。
// 声明提升全部检查通过才提交。
func (vm *VM) ExecuteEval(exe *bytecode.EvalExecutable, this bytecode.Value, scope *bytecode.Scope) (bytecode.Value, error) {
	e, err := vm.enter("eval")
	if e == nil {
		return bytecode.Undefined, err
	}
	if scope == nil {
		scope = vm.lexicalScope
	}

	opts := vm.compileOptions()
	opts.Strict = exe.Strict
	cb, err := vm.cached(exe.Source, bytecode.EvalCode, opts, func() (*bytecode.CodeBlock, error) {
		return exe.Prepare(vm.gen, opts)
	})
	if err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	vm.reach(StateCompiled)

	frameScope, err := vm.evalDeclarationInstantiation(cb, scope)
	if err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	if this.IsUndefinedOrNull() && !cb.Strict {
		this = bytecode.NewObjectValue(vm.global)
	}
	if err := e.checkFrame(); err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	if _, err := vm.buildFrame(&ProtoCallFrame{
		CodeBlock: cb,
		Global:    vm.global,
		Callee:    vm.intrinsics.evalCallee,
		This:      this,
		Scope:     frameScope,
	}); err != nil {
		return e.finish(bytecode.Undefined, err)
	}
	vm.reach(StateFrameBuilt)
	return e.finish(e.run(vm.interpret))
}

// ============================================================================
// 重复调用
// ============================================================================

// CachedCall 预先编译好的函数调用，用于宿主在循环里反复回调同一个函数
type CachedCall struct {
	vm   *VM
	obj  *bytecode.Object
	fn   *Function
	cb   *bytecode.CodeBlock
	this bytecode.Value
	args []bytecode.Value
}

// PrepareForRepeatCall 编译函数并准备 argc 个实参槽
func (vm *VM) PrepareForRepeatCall(fnObj *bytecode.Object, argc int) (*CachedCall, error) {
	obj, fn, ok := functionOf(bytecode.NewObjectValue(fnObj))
	if !ok {
		return nil, vm.takeError(TypeErrorName, "%s is not a function", describeCallee(bytecode.NewObjectValue(fnObj)))
	}
	if argc > vm.cfg.MaxArguments || !vm.isSafeToRecurse() || !vm.hasPlatformHeadroom() {
		vm.throwStackOverflow()
		return nil, vm.takeException()
	}
	c := &CachedCall{vm: vm, obj: obj, fn: fn, this: bytecode.Undefined, args: make([]bytecode.Value, argc)}
	for i := range c.args {
		c.args[i] = bytecode.Undefined
	}
	if !fn.IsHost() {
		cb, err := fn.Executable.Prepare(vm.gen, bytecode.SpecializeCall, vm.compileOptions())
		if err != nil {
			vm.toException(err)
			return nil, vm.takeException()
		}
		c.cb = cb
	}
	return c, nil
}

// SetThis 设置下一次调用的 this
func (c *CachedCall) SetThis(v bytecode.Value) {
	c.this = v
}

// SetArgument 设置第 i 个实参
func (c *CachedCall) SetArgument(i int, v bytecode.Value) {
	c.args[i] = v
}

// Call 以当前的 this 和实参调用
func (c *CachedCall) Call() (bytecode.Value, error) {
	vm := c.vm
	e, err := vm.enter("repeat call")
	if e == nil {
		return bytecode.Undefined, err
	}
	if c.cb != nil && c.cb.NeedsDebugHooks != vm.compileOptions().DebugHooks {
		cb, err := c.fn.Executable.Prepare(vm.gen, bytecode.SpecializeCall, vm.compileOptions())
		if err != nil {
			return e.finish(bytecode.Undefined, err)
		}
		c.cb = cb
	}
	vm.reach(StateCompiled)
	return e.finish(vm.invokePrepared(e, c.obj, c.fn, c.cb, c.this, c.args, false))
}
