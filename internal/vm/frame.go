package vm

import (
	"sort"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 调用帧
// ============================================================================

// FrameKind 帧的种类
type FrameKind byte

const (
	FrameEntry       FrameKind = iota // 宿主进入虚拟机的边界
	FrameInterpreted                  // 解释执行
	FrameCompiled                     // 编译层执行
	FrameNative                       // 宿主函数
	FrameWasm                         // WebAssembly 函数
)

var frameKindNames = [...]string{
	FrameEntry:       "entry",
	FrameInterpreted: "interpreted",
	FrameCompiled:    "compiled",
	FrameNative:      "native",
	FrameWasm:        "wasm",
}

func (k FrameKind) String() string {
	if int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return "frame"
}

// calleeSaves 离开帧时需要恢复的寄存器
type calleeSaves struct {
	sp    int
	scope *bytecode.Scope
}

// CallFrame 一次调用的活动记录
//
// 值栈上的布局是 [callee][this][实参，补齐到形参个数][操作数...]，
// base 指向 callee 槽。帧记录保存在 VM 的帧表里，不单独占用值栈。
type CallFrame struct {
	Kind      FrameKind
	CodeBlock *bytecode.CodeBlock
	Callee    *bytecode.Object
	This      bytecode.Value
	ArgCount  int

	compiled *bytecode.CompiledCode

	base   int
	opBase int

	// ip 下一条指令；callSite 当前指令。解释帧是字节偏移，编译帧是指令下标
	ip       int
	callSite int

	scope      *bytecode.Scope
	fnScope    *bytecode.Scope
	scopeDepth int
	completion bytecode.Value
	construct  bool

	module *ModuleRecord

	// 宿主帧
	name     string
	wasmFn   *wasmFunction
	catching bool

	// finally 异常路径暂存的异常，slot 是 CATCH 压入异常值的栈位置
	rethrows []pendingRethrow

	// 入口帧保存的寄存器
	saved calleeSaves
}

type pendingRethrow struct {
	slot int
	exc  *Exception
}

// dropRethrows 丢弃栈位置不低于 sp 的暂存异常
func (f *CallFrame) dropRethrows(sp int) {
	n := len(f.rethrows)
	for n > 0 && f.rethrows[n-1].slot >= sp {
		n--
	}
	f.rethrows = f.rethrows[:n]
}

// takeRethrow 取出 slot 处暂存的异常
func (f *CallFrame) takeRethrow(slot int) *Exception {
	var exc *Exception
	if n := len(f.rethrows); n > 0 && f.rethrows[n-1].slot == slot {
		exc = f.rethrows[n-1].exc
	}
	f.dropRethrows(slot)
	return exc
}

// IsEntry 是否为入口帧
func (f *CallFrame) IsEntry() bool {
	return f.Kind == FrameEntry
}

// IsHost 宿主函数帧或 wasm 帧
func (f *CallFrame) IsHost() bool {
	return f.Kind == FrameNative || f.Kind == FrameWasm
}

// FunctionName 栈追踪里显示的名字
func (f *CallFrame) FunctionName() string {
	if f.IsHost() {
		return f.name
	}
	if f.CodeBlock == nil {
		return ""
	}
	switch f.CodeBlock.Type {
	case bytecode.ProgramCode:
		return "global code"
	case bytecode.EvalCode:
		return "eval code"
	case bytecode.ModuleCode:
		return "module code"
	}
	return f.CodeBlock.Name
}

// SourceURL 源文件名
func (f *CallFrame) SourceURL() string {
	if f.CodeBlock == nil {
		return ""
	}
	return f.CodeBlock.SourceURL()
}

// Line 当前指令所在的源码行
func (f *CallFrame) Line() int {
	if f.CodeBlock == nil {
		return 0
	}
	return f.CodeBlock.Line(f.offsetOf(f.callSite))
}

// Offset 当前指令的字节偏移
func (f *CallFrame) Offset() int {
	return f.offsetOf(f.callSite)
}

// offsetOf 把当前层的位置换算为字节偏移
func (f *CallFrame) offsetOf(pos int) int {
	if f.compiled == nil {
		return pos
	}
	if pos >= len(f.compiled.Insts) {
		return f.CodeBlock.Chunk.Len()
	}
	return f.compiled.Insts[pos].Offset
}

// positionOf 把字节偏移换算为当前层的位置
func (f *CallFrame) positionOf(offset int) int {
	if f.compiled == nil {
		return offset
	}
	insts := f.compiled.Insts
	return sort.Search(len(insts), func(i int) bool { return insts[i].Offset >= offset })
}

// ============================================================================
// 建帧
// ============================================================================

// ProtoCallFrame 建帧前由调用方准备的参数
type ProtoCallFrame struct {
	CodeBlock *bytecode.CodeBlock
	Global    *bytecode.Object
	Callee    *bytecode.Object
	This      bytecode.Value
	Args      []bytecode.Value
	Scope     *bytecode.Scope
	Construct bool
	Module    *ModuleRecord
}

// pushEntryFrame 压入入口帧，记录进入时的值栈位置
func (vm *VM) pushEntryFrame() *CallFrame {
	f := &CallFrame{
		Kind:  FrameEntry,
		base:  vm.sp,
		saved: calleeSaves{sp: vm.sp},
	}
	vm.pushFrame(f)
	return f
}

// buildFrame 按 ProtoCallFrame 在值栈上写入 callee、this 和实参并压帧
//
// 写入之前先保证值栈容量，容量不够时抛出栈溢出，不留下半个帧。
func (vm *VM) buildFrame(proto *ProtoCallFrame) (*CallFrame, error) {
	base := vm.sp
	argc := len(proto.Args)
	padded := argc
	if proto.CodeBlock.NumParameters > padded {
		padded = proto.CodeBlock.NumParameters
	}
	if err := vm.ensureStack(base + 2 + padded + frameReserve); err != nil {
		return nil, err
	}
	vm.stack[base] = bytecode.NewObjectValue(proto.Callee)
	vm.stack[base+1] = proto.This
	copy(vm.stack[base+2:], proto.Args)
	vm.sp = base + 2 + argc
	f, err := vm.enterCodeBlock(proto.CodeBlock, proto.Callee, base, argc, proto.Construct, proto.Scope)
	if err != nil {
		return nil, err
	}
	f.module = proto.Module
	return f, nil
}

// enterCodeBlock 值栈上已经有 [callee][this][args] 时压入脚本帧
//
// 代码指针在 DeferTraps 与 DisallowGC 的窗口内取得，之后帧一直使用它，
// 即使编译层代码随后被丢弃或替换。
func (vm *VM) enterCodeBlock(cb *bytecode.CodeBlock, callee *bytecode.Object, base, argc int, construct bool, scope *bytecode.Scope) (*CallFrame, error) {
	if len(vm.frames) >= vm.cfg.MaxFrames || argc > vm.cfg.MaxArguments {
		return nil, vm.throwStackOverflow()
	}
	padded := argc
	if cb.NumParameters > padded {
		padded = cb.NumParameters
	}
	if err := vm.ensureStack(base + 2 + padded + frameReserve); err != nil {
		return nil, err
	}
	for i := argc; i < padded; i++ {
		vm.stack[base+2+i] = bytecode.Undefined
	}
	vm.sp = base + 2 + padded

	f := &CallFrame{
		Kind:       FrameInterpreted,
		CodeBlock:  cb,
		Callee:     callee,
		This:       vm.stack[base+1],
		ArgCount:   argc,
		base:       base,
		opBase:     base + 2 + padded,
		scope:      scope,
		completion: bytecode.Undefined,
		construct:  construct,
	}

	traps := NewDeferTraps(vm)
	gc := vm.heap.DisallowGC()
	f.compiled = cb.Compiled()
	gc.Close()
	traps.Close()
	if f.compiled != nil {
		f.Kind = FrameCompiled
	}

	vm.heap.track(cb)
	vm.jit.OnExecute(cb)
	vm.pushFrame(f)
	return f, nil
}

// argument 第 i 个实参槽
func (vm *VM) argument(f *CallFrame, i int) bytecode.Value {
	return vm.stack[f.base+2+i]
}

// arguments 实参的副本
func (vm *VM) argumentsOf(f *CallFrame) []bytecode.Value {
	out := make([]bytecode.Value, f.ArgCount)
	copy(out, vm.stack[f.base+2:f.base+2+f.ArgCount])
	return out
}
