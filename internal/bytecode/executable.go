package bytecode

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/tangzhangming/wkcjs/internal/threading"
)

// ============================================================================
// 源码
// ============================================================================

// SourceCode 一段源码及其内容摘要
type SourceCode struct {
	URL       string
	Text      string
	StartLine int
	Hash      [32]byte
}

// NewSourceCode 创建源码并计算摘要
func NewSourceCode(url, text string) *SourceCode {
	return &SourceCode{
		URL:       url,
		Text:      text,
		StartLine: 1,
		Hash:      blake2b.Sum256([]byte(text)),
	}
}

// HashString 摘要的十六进制前缀，用于日志
func (s *SourceCode) HashString() string {
	return hex.EncodeToString(s.Hash[:8])
}

// ============================================================================
// 代码生成
// ============================================================================

// CompileOptions 编译选项
type CompileOptions struct {
	DebugHooks bool
	// Strict 外层代码的严格模式（eval 继承调用者）
	Strict bool
}

// CodeGenerator 从源码生成代码单元
type CodeGenerator interface {
	CompileProgram(src *SourceCode, opts CompileOptions) (*CodeBlock, error)
	CompileEval(src *SourceCode, opts CompileOptions) (*CodeBlock, error)
	CompileModule(src *SourceCode, opts CompileOptions) (*CodeBlock, error)
	CompileFunction(fe *FunctionExecutable, kind CodeSpecializationKind, opts CompileOptions) (*CodeBlock, error)
}

// ============================================================================
// 可执行体
// ============================================================================

// ProgramExecutable 顶层程序
type ProgramExecutable struct {
	Source    *SourceCode
	codeBlock *CodeBlock
}

// NewProgramExecutable 创建程序可执行体
func NewProgramExecutable(src *SourceCode) *ProgramExecutable {
	return &ProgramExecutable{Source: src}
}

// Prepare 取得与调试钩子设置一致的代码单元，必要时重新编译
func (e *ProgramExecutable) Prepare(gen CodeGenerator, opts CompileOptions) (*CodeBlock, error) {
	if cb := e.codeBlock; cb != nil && cb.NeedsDebugHooks == opts.DebugHooks {
		return cb, nil
	}
	cb, err := gen.CompileProgram(e.Source, opts)
	if err != nil {
		return nil, err
	}
	e.codeBlock = cb
	return cb, nil
}

// CodeBlock 已经编译的代码单元
func (e *ProgramExecutable) CodeBlock() *CodeBlock {
	return e.codeBlock
}

// EvalExecutable eval 代码
type EvalExecutable struct {
	Source *SourceCode
	// Strict 调用者的严格模式（直接 eval）或 false（间接 eval）
	Strict bool
	// Direct 是否为直接 eval
	Direct    bool
	codeBlock *CodeBlock
}

// NewEvalExecutable 创建 eval 可执行体
func NewEvalExecutable(src *SourceCode, strict, direct bool) *EvalExecutable {
	return &EvalExecutable{Source: src, Strict: strict, Direct: direct}
}

// Prepare 取得代码单元
func (e *EvalExecutable) Prepare(gen CodeGenerator, opts CompileOptions) (*CodeBlock, error) {
	if cb := e.codeBlock; cb != nil && cb.NeedsDebugHooks == opts.DebugHooks {
		return cb, nil
	}
	opts.Strict = e.Strict
	cb, err := gen.CompileEval(e.Source, opts)
	if err != nil {
		return nil, err
	}
	e.codeBlock = cb
	return cb, nil
}

// ModuleProgramExecutable 模块主体
type ModuleProgramExecutable struct {
	Source    *SourceCode
	codeBlock *CodeBlock
}

// NewModuleProgramExecutable 创建模块可执行体
func NewModuleProgramExecutable(src *SourceCode) *ModuleProgramExecutable {
	return &ModuleProgramExecutable{Source: src}
}

// Prepare 取得代码单元
func (e *ModuleProgramExecutable) Prepare(gen CodeGenerator, opts CompileOptions) (*CodeBlock, error) {
	if cb := e.codeBlock; cb != nil && cb.NeedsDebugHooks == opts.DebugHooks {
		return cb, nil
	}
	cb, err := gen.CompileModule(e.Source, opts)
	if err != nil {
		return nil, err
	}
	e.codeBlock = cb
	return cb, nil
}

// FunctionExecutable 函数字面量
//
// 每种调用方式各自惰性编译一个代码单元。同一个可执行体可以被
// 多个 VM 共享，缓存的读写由 mu 保护，编译期间不持有锁。
type FunctionExecutable struct {
	Name       string
	Source     *SourceCode
	ParamNames []string
	Strict     bool
	Line       int
	// IsExpression 命名函数表达式需要绑定自身名字
	IsExpression bool

	// Node 语法树节点，由代码生成器解释
	Node interface{}

	mu         *threading.Mutex
	codeBlocks [2]*CodeBlock
}

// NewFunctionExecutable 创建函数可执行体
func NewFunctionExecutable(name string, src *SourceCode, params []string, strict bool, node interface{}) *FunctionExecutable {
	return &FunctionExecutable{
		Name:       name,
		Source:     src,
		ParamNames: params,
		Strict:     strict,
		Node:       node,
		mu:         threading.NewMutex(nil),
	}
}

// CodeBlockFor 已经编译的代码单元，未编译时为 nil
func (e *FunctionExecutable) CodeBlockFor(kind CodeSpecializationKind) *CodeBlock {
	g := threading.NewLockGuard(e.mu)
	defer g.Close()
	return e.codeBlocks[kind]
}

// Prepare 取得对应调用方式的代码单元，调试钩子设置不一致时重新编译
func (e *FunctionExecutable) Prepare(gen CodeGenerator, kind CodeSpecializationKind, opts CompileOptions) (*CodeBlock, error) {
	if cb := e.CodeBlockFor(kind); cb != nil && cb.NeedsDebugHooks == opts.DebugHooks {
		return cb, nil
	}
	opts.Strict = e.Strict
	cb, err := gen.CompileFunction(e, kind, opts)
	if err != nil {
		return nil, err
	}

	g := threading.NewLockGuard(e.mu)
	defer g.Close()
	if cur := e.codeBlocks[kind]; cur != nil && cur.NeedsDebugHooks == opts.DebugHooks {
		return cur, nil
	}
	e.codeBlocks[kind] = cb
	return cb, nil
}

// Arity 形参个数
func (e *FunctionExecutable) Arity() int {
	return len(e.ParamNames)
}
