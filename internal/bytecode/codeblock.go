package bytecode

import (
	"fmt"
	"strings"

	"go.uber.org/atomic"
)

// ============================================================================
// CodeBlock
// ============================================================================

// CodeType 代码单元种类
type CodeType byte

const (
	ProgramCode CodeType = iota
	FunctionCode
	EvalCode
	ModuleCode
)

func (t CodeType) String() string {
	switch t {
	case ProgramCode:
		return "program"
	case FunctionCode:
		return "function"
	case EvalCode:
		return "eval"
	case ModuleCode:
		return "module"
	}
	return "code"
}

// CodeSpecializationKind 函数代码的调用方式
type CodeSpecializationKind byte

const (
	SpecializeCall CodeSpecializationKind = iota
	SpecializeConstruct
)

func (k CodeSpecializationKind) String() string {
	if k == SpecializeConstruct {
		return "construct"
	}
	return "call"
}

// FunctionDecl 需要提升的函数声明，Index 指向 CodeBlock.Functions
type FunctionDecl struct {
	Name  string
	Index int
}

// LexicalDecl 顶层词法声明
type LexicalDecl struct {
	Name  string
	Const bool
}

// Declarations 代码单元顶层的声明
type Declarations struct {
	VarNames  []string
	Functions []FunctionDecl
	Lexicals  []LexicalDecl
}

// CodeBlock 编译后的代码单元
type CodeBlock struct {
	Name   string
	Type   CodeType
	Kind   CodeSpecializationKind
	Source *SourceCode

	Chunk    *Chunk
	Handlers HandlerTable

	NumParameters int
	ParamNames    []string
	Decls         Declarations

	Strict          bool
	NeedsDebugHooks bool
	UsesArguments   bool

	// Functions 嵌套函数，OpNewFunc 的操作数索引此表
	Functions      []*FunctionExecutable
	ScopeTemplates []*ScopeTemplate

	executeCount atomic.Int64
	tierUp       atomic.Bool
	compiled     atomic.Pointer[CompiledCode]
}

// NewCodeBlock 创建空代码单元
func NewCodeBlock(name string, typ CodeType, src *SourceCode) *CodeBlock {
	return &CodeBlock{
		Name:   name,
		Type:   typ,
		Source: src,
		Chunk:  NewChunk(),
	}
}

// RecordExecution 记录一次执行，返回累计次数
func (cb *CodeBlock) RecordExecution() int64 {
	return cb.executeCount.Inc()
}

// ExecuteCount 累计执行次数
func (cb *CodeBlock) ExecuteCount() int64 {
	return cb.executeCount.Load()
}

// Compiled 当前发布的编译层代码，未编译时为 nil
func (cb *CodeBlock) Compiled() *CompiledCode {
	return cb.compiled.Load()
}

// Publish 发布编译层代码
//
// 已经在运行的帧继续使用它们开始时取到的指针。
func (cb *CodeBlock) Publish(cc *CompiledCode) {
	cb.compiled.Store(cc)
}

// RequestTierUp 标记已经提交编译，返回 false 表示之前已经提交过
func (cb *CodeBlock) RequestTierUp() bool {
	return cb.tierUp.CompareAndSwap(false, true)
}

// Jettison 丢弃编译层代码，之后可以重新升级
func (cb *CodeBlock) Jettison() bool {
	old := cb.compiled.Swap(nil)
	cb.tierUp.Store(false)
	cb.executeCount.Store(0)
	return old != nil
}

// Line 偏移量对应的源码行
func (cb *CodeBlock) Line(offset int) int {
	return cb.Chunk.Line(offset)
}

// SourceURL 源文件名
func (cb *CodeBlock) SourceURL() string {
	if cb.Source == nil {
		return ""
	}
	return cb.Source.URL
}

// Disassemble 反汇编本代码单元及其嵌套函数已编译的部分
func (cb *CodeBlock) Disassemble() string {
	var sb strings.Builder
	title := fmt.Sprintf("%s %s (%s)", cb.Type, cb.displayName(), cb.Kind)
	sb.WriteString(cb.Chunk.Disassemble(title))
	if len(cb.Handlers) > 0 {
		sb.WriteString("handlers:\n")
		for _, h := range cb.Handlers {
			fmt.Fprintf(&sb, "  [%04d, %04d) -> %04d %s scope=%d stack=%d\n", h.Start, h.End, h.Target, h.Kind, h.ScopeDepth, h.StackDepth)
		}
	}
	for _, fe := range cb.Functions {
		if inner := fe.CodeBlockFor(SpecializeCall); inner != nil {
			sb.WriteString("\n")
			sb.WriteString(inner.Disassemble())
		}
	}
	return sb.String()
}

func (cb *CodeBlock) displayName() string {
	if cb.Name == "" {
		return "<anonymous>"
	}
	return cb.Name
}

// ============================================================================
// 编译层代码
// ============================================================================

// Inst 预解码指令
//
// 跳转指令的 A 是目标指令下标；Offset 是原字节码偏移，用于行号和诊断。
type Inst struct {
	Op     OpCode
	A      int
	Offset int
}

// CompiledHandler 编译层处理器，范围和入口都是指令下标
type CompiledHandler struct {
	Start       int
	End         int
	NativeEntry int
	Kind        HandlerKind
	ScopeDepth  int
	StackDepth  int
}

// CompiledCode 编译层代码
type CompiledCode struct {
	Insts    []Inst
	Handlers []CompiledHandler
}

// Lookup 返回包含调用点下标的最内层处理器
func (cc *CompiledCode) Lookup(callSite int) (*CompiledHandler, bool) {
	var best *CompiledHandler
	for i := range cc.Handlers {
		h := &cc.Handlers[i]
		if callSite < h.Start || callSite >= h.End {
			continue
		}
		if best == nil || h.End-h.Start < best.End-best.Start {
			best = h
		}
	}
	return best, best != nil
}
