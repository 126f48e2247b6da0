package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 调试器
// ============================================================================

// Debugger 调试器回调
//
// 只有带调试钩子编译的代码单元会触发 CallEvent 之类的事件；
// debugger 语句（DidReachBreakpoint）在任何代码里都会触发。
type Debugger interface {
	CallEvent(f *CallFrame)
	ReturnEvent(f *CallFrame)
	UnwindEvent(f *CallFrame)
	AtStatement(f *CallFrame)
	AtExpression(f *CallFrame)
	WillExecuteProgram(f *CallFrame)
	DidExecuteProgram(f *CallFrame)
	DidReachBreakpoint(f *CallFrame)
	// Exception 异常开始展开时调用一次
	Exception(f *CallFrame, exception bytecode.Value, hasHandler bool)
}

// BaseDebugger 全部回调为空，嵌入后只实现关心的方法
type BaseDebugger struct{}

func (BaseDebugger) CallEvent(*CallFrame) {}
func (BaseDebugger) ReturnEvent(*CallFrame) {}
func (BaseDebugger) UnwindEvent(*CallFrame) {}
func (BaseDebugger) AtStatement(*CallFrame) {}
func (BaseDebugger) AtExpression(*CallFrame) {}
func (BaseDebugger) WillExecuteProgram(*CallFrame) {}
func (BaseDebugger) DidExecuteProgram(*CallFrame) {}
func (BaseDebugger) DidReachBreakpoint(*CallFrame) {}
func (BaseDebugger) Exception(*CallFrame, bytecode.Value, bool) {}

var _ Debugger = BaseDebugger{}

// debug 分发调试钩子
func (vm *VM) debug(f *CallFrame, hook bytecode.DebugHookType) {
	d := vm.debugger
	if d == nil {
		return
	}
	if !f.CodeBlock.NeedsDebugHooks && hook != bytecode.HookDidReachBreakpoint {
		return
	}
	switch hook {
	case bytecode.HookWillExecuteProgram:
		d.WillExecuteProgram(f)
	case bytecode.HookDidExecuteProgram:
		d.DidExecuteProgram(f)
	case bytecode.HookDidEnterCallFrame:
		d.CallEvent(f)
	case bytecode.HookWillLeaveCallFrame:
		d.ReturnEvent(f)
	case bytecode.HookWillExecuteStatement:
		d.AtStatement(f)
	case bytecode.HookWillExecuteExpression:
		d.AtExpression(f)
	case bytecode.HookDidReachBreakpoint:
		d.DidReachBreakpoint(f)
	}
}
