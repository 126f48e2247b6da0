// Package vm 实现脚本执行核心。
//
// 入口（程序、函数调用、构造、eval、模块）在这里建立入口作用域、检查栈
// 余量、取得代码单元并构造调用帧，然后交给解释器或编译层执行。异常通过
// unwind 沿帧表向外查找处理器，解释帧、编译帧和 wasm 帧各有自己的处理器表。
package vm

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/jit"
)

// ============================================================================
// 配置
// ============================================================================

const (
	// DefaultMaxArguments 一次调用允许的最大实参个数
	DefaultMaxArguments = 0x10000

	// DefaultStackSlots 值栈容量上限（槽位数）
	DefaultStackSlots = 1 << 20

	// DefaultMaxFrames 调用帧数上限
	DefaultMaxFrames = 10000

	// DefaultNativeFrameCost 每层宿主重入估算占用的平台栈字节数
	DefaultNativeFrameCost = 16 * 1024

	// DefaultStackMargin 平台栈保留余量
	DefaultStackMargin = 64 * 1024

	// DefaultErrorStackLimit 错误对象捕获的最大帧数
	DefaultErrorStackLimit = 100

	// frameReserve 建帧时保证可用的操作数槽位
	frameReserve = 64
)

// Config 虚拟机配置
type Config struct {
	MaxArguments    int
	StackSlots      int
	MaxFrames       int
	NativeFrameCost int
	StackMargin     int
	// StackLimit 平台栈上限（字节），0 表示读取系统设置
	StackLimit      int
	ErrorStackLimit int
	// JSONP 启用 JSONP 快速路径
	JSONP bool
	// DebugHooks 即使没有挂接调试器也按调试模式编译
	DebugHooks bool
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxArguments:    DefaultMaxArguments,
		StackSlots:      DefaultStackSlots,
		MaxFrames:       DefaultMaxFrames,
		NativeFrameCost: DefaultNativeFrameCost,
		StackMargin:     DefaultStackMargin,
		ErrorStackLimit: DefaultErrorStackLimit,
		JSONP:           true,
	}
}

// withDefaults 零值字段取默认值
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxArguments <= 0 {
		c.MaxArguments = d.MaxArguments
	}
	if c.StackSlots <= 0 {
		c.StackSlots = d.StackSlots
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.NativeFrameCost <= 0 {
		c.NativeFrameCost = d.NativeFrameCost
	}
	if c.StackMargin <= 0 {
		c.StackMargin = d.StackMargin
	}
	if c.ErrorStackLimit <= 0 {
		c.ErrorStackLimit = d.ErrorStackLimit
	}
	return c
}

// Options 创建虚拟机的参数
type Options struct {
	Config    Config
	Generator bytecode.CodeGenerator
	// JIT 可以为 nil，此时只用解释器
	JIT *jit.JIT
	// Cache 可以在多个虚拟机之间共享
	Cache  *bytecode.CodeCache
	Logger *zap.Logger
}

// ============================================================================
// VM
// ============================================================================

// VM 虚拟机实例
//
// 一个 VM 同一时刻只有一个脚本控制流。TerminateExecution 可以从任意
// goroutine 调用，其余方法都只能在拥有该 VM 的 goroutine 上调用。
type VM struct {
	cfg    Config
	logger *zap.Logger
	gen    bytecode.CodeGenerator
	jit    *jit.JIT
	cache  *bytecode.CodeCache

	// 值栈
	stack []bytecode.Value
	sp    int

	// 帧表，末尾是最内层
	frames []*CallFrame

	exception *Exception
	unwinding bool

	global       *bytecode.Object
	objectScope  *bytecode.Scope
	lexicalScope *bytecode.Scope
	intrinsics   *Intrinsics

	entryScope *VMEntryScope
	reentry    int
	stackLimit int

	lastReached EntryState
	lastOutcome EntryState
	lastJSONP   bool

	traps      atomic.Uint32
	deferTraps int

	heap     *Heap
	debugger Debugger
	wasm     *wasmEngine

	closed bool
}

// New 创建虚拟机
func New(opts Options) *VM {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config.withDefaults()
	vm := &VM{
		cfg:    cfg,
		logger: logger.Named("vm"),
		gen:    opts.Generator,
		jit:    opts.JIT,
		cache:  opts.Cache,
		stack:  make([]bytecode.Value, 0, 256),
	}
	vm.stackLimit = cfg.StackLimit
	if vm.stackLimit <= 0 {
		vm.stackLimit = platformStackLimit()
	}
	vm.heap = newHeap(vm)
	vm.initIntrinsics()
	return vm
}

// Config 当前配置
func (vm *VM) Config() Config {
	return vm.cfg
}

// Logger 虚拟机日志
func (vm *VM) Logger() *zap.Logger {
	return vm.logger
}

// Global 全局对象
func (vm *VM) Global() *bytecode.Object {
	return vm.global
}

// GlobalScope 全局词法作用域，其父作用域是全局对象
func (vm *VM) GlobalScope() *bytecode.Scope {
	return vm.lexicalScope
}

// Intrinsics 内建对象
func (vm *VM) Intrinsics() *Intrinsics {
	return vm.intrinsics
}

// Heap 堆
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// SetDebugger 挂接调试器，nil 表示摘除
//
// 挂接后新编译的代码单元带调试钩子；已经编译的单元在下次进入时按
// 调试设置重新编译。
func (vm *VM) SetDebugger(d Debugger) {
	vm.debugger = d
}

// Debugger 当前调试器
func (vm *VM) Debugger() Debugger {
	return vm.debugger
}

// Exception 当前待处理的异常，没有时为 nil
func (vm *VM) Exception() *Exception {
	return vm.exception
}

// ClearException 清除待处理的异常
func (vm *VM) ClearException() {
	vm.exception = nil
}

// IsUnwinding 是否正在展开异常
func (vm *VM) IsUnwinding() bool {
	return vm.unwinding
}

// Depth 当前帧数
func (vm *VM) Depth() int {
	return len(vm.frames)
}

// LastEntry 最近一次入口到达的最后阶段和结果
func (vm *VM) LastEntry() (reached, outcome EntryState) {
	return vm.lastReached, vm.lastOutcome
}

// LastEntryUsedJSONP 最近一次入口是否由 JSONP 快速路径完成
func (vm *VM) LastEntryUsedJSONP() bool {
	return vm.lastJSONP
}

// Close 释放虚拟机持有的资源
func (vm *VM) Close() error {
	if vm.closed {
		return nil
	}
	vm.closed = true
	var err error
	if vm.wasm != nil {
		err = vm.wasm.close()
	}
	vm.frames = nil
	vm.stack = nil
	vm.sp = 0
	vm.exception = nil
	return err
}

func (vm *VM) compileOptions() bytecode.CompileOptions {
	return bytecode.CompileOptions{DebugHooks: vm.cfg.DebugHooks || vm.debugger != nil}
}

// ============================================================================
// 值栈
// ============================================================================

func (vm *VM) push(v bytecode.Value) {
	if vm.sp < len(vm.stack) {
		vm.stack[vm.sp] = v
	} else {
		vm.stack = append(vm.stack, v)
	}
	vm.sp++
}

func (vm *VM) pop() bytecode.Value {
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = bytecode.Undefined
	return v
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.sp-1-distance]
}

// ensureStack 保证值栈至少有 n 个槽位，超过上限时抛出栈溢出
func (vm *VM) ensureStack(n int) error {
	if n > vm.cfg.StackSlots {
		return vm.throwStackOverflow()
	}
	if n <= len(vm.stack) {
		return nil
	}
	if n <= cap(vm.stack) {
		vm.stack = vm.stack[:n]
		return nil
	}
	size := 2 * cap(vm.stack)
	if size < n {
		size = n
	}
	if size > vm.cfg.StackSlots {
		size = vm.cfg.StackSlots
	}
	grown := make([]bytecode.Value, n, size)
	copy(grown, vm.stack)
	vm.stack = grown
	return nil
}

// ============================================================================
// 帧表
// ============================================================================

func (vm *VM) top() *CallFrame {
	return vm.frames[len(vm.frames)-1]
}

func (vm *VM) pushFrame(f *CallFrame) {
	vm.frames = append(vm.frames, f)
}

// popFrame 弹出最内层帧，值栈回到帧基址
func (vm *VM) popFrame() *CallFrame {
	n := len(vm.frames) - 1
	f := vm.frames[n]
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
	for i := f.base; i < vm.sp; i++ {
		vm.stack[i] = bytecode.Undefined
	}
	vm.sp = f.base
	return f
}
