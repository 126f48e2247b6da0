package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 处理器描述
// ============================================================================

// HandlerDescriptor 展开找到的处理器
//
// 取值只有 NoHandler、InterpretedHandler、CompiledHandler 和 WasmHandler。
type HandlerDescriptor interface {
	handlerDescriptor()
}

// NoHandler 到达入口帧，没有处理器
type NoHandler struct{}

// InterpretedHandler 解释帧的处理器，Target 是 CATCH 的字节偏移
type InterpretedHandler struct {
	Target     int
	Kind       bytecode.HandlerKind
	ScopeDepth int
	StackDepth int
}

// CompiledHandler 编译帧的处理器，NativeEntry 是 CATCH 的指令下标
type CompiledHandler struct {
	NativeEntry int
	Kind        bytecode.HandlerKind
	ScopeDepth  int
	StackDepth  int
}

// WasmHandler wasm 函数的处理器条目：捕获 Tag 的异常并调用导出函数 Entry
//
// Entry 以异常载荷为唯一参数，返回值作为被调用的 wasm 函数的结果。
type WasmHandler struct {
	Tag   uint32
	Entry string
}

func (NoHandler) handlerDescriptor()          {}
func (InterpretedHandler) handlerDescriptor() {}
func (CompiledHandler) handlerDescriptor()    {}
func (WasmHandler) handlerDescriptor()        {}

// CatchInfo 一次展开的结果，只在找到处理器的帧里有效
type CatchInfo struct {
	Valid   bool
	Handler HandlerDescriptor
	Frame   *CallFrame
}

// ============================================================================
// 展开
// ============================================================================

// unwind 沿帧表向外查找处理器
//
// 调用前异常必须已经在异常槽里，展开消耗当前的异常上下文，同一状态
// 不能展开两次。没有处理器的帧逐个弹出，每弹出一个通知一次调试器；
// 终止异常不查处理器。到达入口帧时停下，入口帧留给入口自己弹出。
func (vm *VM) unwind(exc *Exception) CatchInfo {
	vm.unwinding = true
	if d := vm.debugger; d != nil && !exc.notified {
		exc.notified = true
		if top := vm.top(); !top.IsEntry() {
			d.Exception(top, exc.Value, vm.hasHandler(exc))
		}
	}

	for {
		f := vm.top()
		if f.IsEntry() {
			vm.restoreCalleeSaves(f)
			vm.unwinding = false
			return CatchInfo{Handler: NoHandler{}, Frame: f}
		}
		if !exc.termination {
			if h, ok := vm.findHandler(f, exc); ok {
				vm.unwinding = false
				return CatchInfo{Valid: true, Handler: h, Frame: f}
			}
		}
		if d := vm.debugger; d != nil {
			d.UnwindEvent(f)
		}
		vm.popFrame()
	}
}

// hasHandler 不弹帧地预查到最近的入口帧为止是否有处理器
func (vm *VM) hasHandler(exc *Exception) bool {
	if exc.termination {
		return false
	}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		if f.IsEntry() {
			return false
		}
		if _, ok := vm.findHandler(f, exc); ok {
			return true
		}
	}
	return false
}

// findHandler 按帧的种类查处理器表
func (vm *VM) findHandler(f *CallFrame, exc *Exception) (HandlerDescriptor, bool) {
	switch f.Kind {
	case FrameInterpreted:
		h, ok := f.CodeBlock.Handlers.Lookup(f.callSite)
		if !ok {
			return nil, false
		}
		return InterpretedHandler{Target: h.Target, Kind: h.Kind, ScopeDepth: h.ScopeDepth, StackDepth: h.StackDepth}, true
	case FrameCompiled:
		h, ok := f.compiled.Lookup(f.callSite)
		if !ok {
			return nil, false
		}
		return CompiledHandler{NativeEntry: h.NativeEntry, Kind: h.Kind, ScopeDepth: h.ScopeDepth, StackDepth: h.StackDepth}, true
	case FrameWasm:
		if f.catching || exc.wasmTrap || f.wasmFn == nil {
			return nil, false
		}
		tag := wasmTagOf(exc.Value)
		for _, h := range f.wasmFn.handlers {
			if h.Tag == tag {
				return h, true
			}
		}
	}
	return nil, false
}

// restoreCalleeSaves 回到入口帧时恢复进入时的值栈
func (vm *VM) restoreCalleeSaves(entry *CallFrame) {
	for i := entry.saved.sp; i < vm.sp; i++ {
		vm.stack[i] = bytecode.Undefined
	}
	vm.sp = entry.saved.sp
}

// resumeFrame 在找到处理器的脚本帧里恢复执行
//
// 弹出 try 之后压入的块作用域，操作数栈截断到 try 开始时的深度，
// 然后跳到 CATCH。
func (vm *VM) resumeFrame(f *CallFrame, h HandlerDescriptor) {
	var target, scopeDepth, stackDepth int
	var kind bytecode.HandlerKind
	switch h := h.(type) {
	case InterpretedHandler:
		target, scopeDepth, stackDepth, kind = h.Target, h.ScopeDepth, h.StackDepth, h.Kind
	case CompiledHandler:
		target, scopeDepth, stackDepth, kind = h.NativeEntry, h.ScopeDepth, h.StackDepth, h.Kind
	default:
		return
	}
	for f.scopeDepth > scopeDepth {
		f.scope = f.scope.Parent
		f.scopeDepth--
	}
	sp := f.opBase + stackDepth
	for i := sp; i < vm.sp; i++ {
		vm.stack[i] = bytecode.Undefined
	}
	vm.sp = sp
	f.dropRethrows(sp)
	if kind == bytecode.HandlerFinally && vm.exception != nil {
		f.rethrows = append(f.rethrows, pendingRethrow{slot: sp, exc: vm.exception})
	}
	f.ip = target
}

// runFrom 执行 first，出错时展开并在处理器处继续，直到回到入口帧
func (vm *VM) runFrom(first func() (bytecode.Value, error)) (bytecode.Value, error) {
	v, err := first()
	for err != nil {
		exc := vm.toException(err)
		catch := vm.unwind(exc)
		if !catch.Valid {
			return bytecode.Undefined, vm.takeException()
		}
		if h, ok := catch.Handler.(WasmHandler); ok {
			v, err = vm.resumeWasm(catch.Frame, h)
			if err != nil {
				continue
			}
			if vm.top().IsEntry() {
				return v, nil
			}
			vm.push(v)
		} else {
			vm.resumeFrame(catch.Frame, catch.Handler)
		}
		v, err = vm.interpret()
	}
	return v, nil
}
