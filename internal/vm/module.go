package vm

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 模块记录
// ============================================================================

// ModuleStatus 模块求值状态
type ModuleStatus byte

const (
	ModuleNew ModuleStatus = iota
	ModuleExecuting
	ModuleSuspended
	ModuleEvaluated
	ModuleErrored
)

var moduleStatusNames = [...]string{
	ModuleNew:       "new",
	ModuleExecuting: "executing",
	ModuleSuspended: "suspended",
	ModuleEvaluated: "evaluated",
	ModuleErrored:   "errored",
}

func (s ModuleStatus) String() string {
	if int(s) < len(moduleStatusNames) {
		return moduleStatusNames[s]
	}
	return "status"
}

// ResumeMode 恢复挂起的模块时送入值的方式
type ResumeMode byte

const (
	// ResumeNormal await 表达式得到送入的值
	ResumeNormal ResumeMode = iota
	// ResumeThrow 在 await 处抛出送入的值
	ResumeThrow
)

// ErrModuleExecuting 模块正在执行时再次进入
var ErrModuleExecuting = errors.New("vm: module is already executing")

// moduleState 挂起时保存的帧状态
type moduleState struct {
	offset     int
	site       int
	operands   []bytecode.Value
	scope      *bytecode.Scope
	scopeDepth int
	completion bytecode.Value
}

// ModuleRecord 一个模块的执行状态
//
// 顶层 await 挂起模块：帧弹出，状态保存在记录里，ExecuteModuleProgram
// 以送入的值恢复。每次恢复都是一次新的入口。
type ModuleRecord struct {
	Name   string
	Status ModuleStatus
	Scope  *bytecode.Scope

	// Completion 求值完成时的完成值
	Completion bytecode.Value
	// Awaited 挂起时 await 的值
	Awaited bytecode.Value
	// Err 求值失败时的错误
	Err error

	suspended   *moduleState
	resumeValue bytecode.Value
	resumeMode  ResumeMode
}

// NewModuleRecord 创建模块记录
func NewModuleRecord(name string) *ModuleRecord {
	return &ModuleRecord{
		Name:       name,
		Completion: bytecode.Undefined,
		Awaited:    bytecode.Undefined,
	}
}

func (r *ModuleRecord) finish(v bytecode.Value) {
	r.Status = ModuleEvaluated
	r.Completion = v
	r.suspended = nil
}

// ============================================================================
// 执行
// ============================================================================

// ExecuteModuleProgram 开始或恢复模块求值
//
// 首次进入时 sent 和 mode 被忽略。模块挂起时返回 await 的值，记录状态为
// ModuleSuspended；求值完成时返回完成值。
func (vm *VM) ExecuteModuleProgram(record *ModuleRecord, exe *bytecode.ModuleProgramExecutable, sent bytecode.Value, mode ResumeMode) (bytecode.Value, error) {
	switch record.Status {
	case ModuleEvaluated:
		return record.Completion, nil
	case ModuleErrored:
		return bytecode.Undefined, record.Err
	case ModuleExecuting:
		return bytecode.Undefined, ErrModuleExecuting
	}

	e, err := vm.enter("module")
	if e == nil {
		return bytecode.Undefined, err
	}

	opts := vm.compileOptions()
	cb, err := vm.cached(exe.Source, bytecode.ModuleCode, opts, func() (*bytecode.CodeBlock, error) {
		return exe.Prepare(vm.gen, opts)
	})
	if err != nil {
		return vm.moduleFailed(record, e, err)
	}
	vm.reach(StateCompiled)

	if record.Status == ModuleNew {
		record.Scope = vm.instantiateModule(cb)
	} else {
		record.resumeValue = sent
		record.resumeMode = mode
	}
	if err := e.checkFrame(); err != nil {
		return vm.moduleFailed(record, e, err)
	}
	record.Status = ModuleExecuting
	if _, err := vm.buildFrame(&ProtoCallFrame{
		CodeBlock: cb,
		Global:    vm.global,
		Callee:    vm.intrinsics.moduleCallee,
		This:      bytecode.Undefined,
		Scope:     record.Scope,
		Module:    record,
	}); err != nil {
		return vm.moduleFailed(record, e, err)
	}
	vm.reach(StateFrameBuilt)

	v, err := e.finish(e.run(vm.interpret))
	if err != nil && record.Status == ModuleExecuting {
		record.Status = ModuleErrored
		record.Err = err
		record.suspended = nil
	}
	vm.logger.Debug("module entry finished",
		zap.String("module", record.Name),
		zap.Stringer("status", record.Status))
	return v, err
}

func (vm *VM) moduleFailed(record *ModuleRecord, e *entry, err error) (bytecode.Value, error) {
	_, err = e.finish(bytecode.Undefined, err)
	if record.Status == ModuleSuspended {
		// 恢复之前失败，挂起状态保持不变
		return bytecode.Undefined, err
	}
	record.Status = ModuleErrored
	record.Err = err
	return bytecode.Undefined, err
}

// instantiateModule 建立模块作用域并提升顶层声明
func (vm *VM) instantiateModule(cb *bytecode.CodeBlock) *bytecode.Scope {
	scope := bytecode.NewScope(bytecode.ScopeModule, vm.lexicalScope)
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
		closure := bytecode.NewObjectValue(vm.newClosure(cb.Functions[d.Index], scope))
		b := scope.Declare(d.Name, bytecode.BindFunction, closure)
		b.Value = closure
	}
	return scope
}

// resumeModule 模块代码的第一条指令：有挂起状态时恢复到 await 之后
func (vm *VM) resumeModule(f *CallFrame) error {
	r := f.module
	if r == nil || r.suspended == nil {
		return nil
	}
	st := r.suspended
	r.suspended = nil
	f.scope = st.scope
	f.scopeDepth = st.scopeDepth
	f.completion = st.completion
	if err := vm.ensureStack(vm.sp + len(st.operands) + frameReserve); err != nil {
		return err
	}
	for _, v := range st.operands {
		vm.push(v)
	}
	f.ip = f.positionOf(st.offset)

	sent := r.resumeValue
	r.resumeValue = bytecode.Undefined
	if r.resumeMode == ResumeThrow {
		f.callSite = f.positionOf(st.site)
		return vm.throwValue(sent)
	}
	vm.push(sent)
	return nil
}

// suspendModule 执行 await：保存帧状态并把控制交回入口
func (vm *VM) suspendModule(f *CallFrame, v bytecode.Value) (bool, bytecode.Value, error) {
	r := f.module
	if r == nil {
		return false, bytecode.Undefined, vm.throwError(SyntaxErrorName, "await is only valid in module code")
	}
	operands := make([]bytecode.Value, vm.sp-f.opBase)
	copy(operands, vm.stack[f.opBase:vm.sp])
	r.suspended = &moduleState{
		offset:     f.offsetOf(f.ip),
		site:       f.offsetOf(f.callSite),
		operands:   operands,
		scope:      f.scope,
		scopeDepth: f.scopeDepth,
		completion: f.completion,
	}
	r.Status = ModuleSuspended
	r.Awaited = v
	vm.popFrame()
	if vm.top().IsEntry() {
		return true, v, nil
	}
	panic(fmt.Sprintf("vm: module %s suspended below a script frame", r.Name))
}
