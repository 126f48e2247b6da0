package compiler

import (
	"fmt"

	"github.com/tangzhangming/wkcjs/internal/ast"
	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/parser"
	"github.com/tangzhangming/wkcjs/internal/token"
)

// maxConstants 常量池上限，操作数是 u16
const maxConstants = 1 << 16

// ============================================================================
// 代码生成器
// ============================================================================

// Generator 实现 bytecode.CodeGenerator：解析源码并编译为代码单元
type Generator struct{}

var _ bytecode.CodeGenerator = (*Generator)(nil)

// NewGenerator 创建代码生成器
func NewGenerator() *Generator {
	return &Generator{}
}

// CompileProgram 编译顶层脚本
func (g *Generator) CompileProgram(src *bytecode.SourceCode, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	prog, err := parser.Parse(src.Text, src.URL, parser.ModeScript, false)
	if err != nil {
		return nil, err
	}
	return CompileProgram(prog, src, opts)
}

// CompileEval 编译 eval 代码，严格模式继承自 opts.Strict
func (g *Generator) CompileEval(src *bytecode.SourceCode, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	prog, err := parser.Parse(src.Text, src.URL, parser.ModeEval, opts.Strict)
	if err != nil {
		return nil, err
	}
	return CompileEval(prog, src, opts)
}

// CompileModule 编译模块主体
func (g *Generator) CompileModule(src *bytecode.SourceCode, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	prog, err := parser.Parse(src.Text, src.URL, parser.ModeModule, true)
	if err != nil {
		return nil, err
	}
	return CompileModule(prog, src, opts)
}

// CompileFunction 按调用方式编译函数体
func (g *Generator) CompileFunction(fe *bytecode.FunctionExecutable, kind bytecode.CodeSpecializationKind, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	return CompileFunction(fe, kind, opts)
}

// ============================================================================
// 编译入口
// ============================================================================

// CompileProgram 编译已解析的脚本
func CompileProgram(prog *ast.Program, src *bytecode.SourceCode, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	cb := bytecode.NewCodeBlock("", bytecode.ProgramCode, src)
	cb.Strict = prog.Strict
	cb.NeedsDebugHooks = opts.DebugHooks

	c := newCompiler(cb, opts)
	c.completion = true
	c.declareTopLevel(prog.Body, nil)
	c.emitHook(bytecode.HookWillExecuteProgram)
	c.compileStatements(prog.Body, true)
	c.emitHook(bytecode.HookDidExecuteProgram)
	c.emit(bytecode.OpEnd)
	return c.finish()
}

// CompileEval 编译已解析的 eval 代码
func CompileEval(prog *ast.Program, src *bytecode.SourceCode, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	cb := bytecode.NewCodeBlock("", bytecode.EvalCode, src)
	cb.Strict = prog.Strict
	cb.NeedsDebugHooks = opts.DebugHooks

	c := newCompiler(cb, opts)
	c.completion = true
	c.declareTopLevel(prog.Body, nil)
	c.compileStatements(prog.Body, true)
	c.emit(bytecode.OpEnd)
	return c.finish()
}

// CompileModule 编译已解析的模块
//
// 入口是 RESUME_MODULE，由它决定从头执行还是回到上次挂起的 AWAIT 之后。
func CompileModule(prog *ast.Program, src *bytecode.SourceCode, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	cb := bytecode.NewCodeBlock("", bytecode.ModuleCode, src)
	cb.Strict = true
	cb.NeedsDebugHooks = opts.DebugHooks

	c := newCompiler(cb, opts)
	c.completion = true
	c.declareTopLevel(prog.Body, nil)
	c.emit(bytecode.OpResumeModule)
	c.emitHook(bytecode.HookWillExecuteProgram)
	c.compileStatements(prog.Body, true)
	c.emitHook(bytecode.HookDidExecuteProgram)
	c.emit(bytecode.OpEnd)
	return c.finish()
}

// CompileFunction 编译函数可执行体
//
// 构造调用的代码单元以 CREATE_THIS 开头。参数、var 与顶层函数声明
// 由虚拟机在建帧时放入函数作用域。
func CompileFunction(fe *bytecode.FunctionExecutable, kind bytecode.CodeSpecializationKind, opts bytecode.CompileOptions) (*bytecode.CodeBlock, error) {
	lit, ok := fe.Node.(*ast.FunctionLiteral)
	if !ok || lit.Body == nil {
		return nil, fmt.Errorf("compiler: function %q has no syntax tree", fe.Name)
	}

	cb := bytecode.NewCodeBlock(fe.Name, bytecode.FunctionCode, fe.Source)
	cb.Kind = kind
	cb.Strict = fe.Strict
	cb.NeedsDebugHooks = opts.DebugHooks
	cb.ParamNames = lit.ParamNames()
	cb.NumParameters = len(cb.ParamNames)
	cb.UsesArguments = usesArguments(lit.Body)

	c := newCompiler(cb, opts)
	c.line = lit.Pos().Line
	c.declareTopLevel(lit.Body.Body, cb.ParamNames)
	if kind == bytecode.SpecializeConstruct {
		c.emit(bytecode.OpCreateThis)
	}
	c.emitHook(bytecode.HookDidEnterCallFrame)
	c.compileStatements(lit.Body.Body, true)
	c.emit(bytecode.OpUndefined)
	c.emitHook(bytecode.HookWillLeaveCallFrame)
	c.emit(bytecode.OpReturn)
	return c.finish()
}

// SourceText 函数字面量的源码文本
func SourceText(fe *bytecode.FunctionExecutable) string {
	lit, ok := fe.Node.(*ast.FunctionLiteral)
	if !ok || fe.Source == nil || lit.End > len(fe.Source.Text) || lit.Start >= lit.End {
		return "function " + fe.Name + "() {\n    [native code]\n}"
	}
	return fe.Source.Text[lit.Start:lit.End]
}

// ============================================================================
// 编译器状态
// ============================================================================

// Compiler 单个代码单元的编译状态
type Compiler struct {
	cb   *bytecode.CodeBlock
	opts bytecode.CompileOptions
	line int

	// scopeDepth 当前压入的块作用域层数（相对帧的基作用域）
	scopeDepth int
	// stackDepth 语句边界上操作数栈的深度
	stackDepth int
	controls   []*control

	// completion 表达式语句的值记为完成值（程序、eval、模块）
	completion bool

	constantsFull bool
	errors        errors.ErrorList
}

func newCompiler(cb *bytecode.CodeBlock, opts bytecode.CompileOptions) *Compiler {
	return &Compiler{cb: cb, opts: opts, line: 1}
}

func (c *Compiler) finish() (*bytecode.CodeBlock, error) {
	if err := c.errors.Err(); err != nil {
		return nil, err
	}
	if err := bytecode.Verify(c.cb); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	return c.cb, nil
}

func (c *Compiler) errorAt(pos token.Position, code, format string, args ...interface{}) {
	file := pos.Filename
	if file == "" {
		file = c.cb.SourceURL()
	}
	c.errors = append(c.errors, &errors.CompileError{
		Code:    code,
		Level:   errors.LevelError,
		Message: fmt.Sprintf(format, args...),
		File:    file,
		Line:    pos.Line,
		Column:  pos.Column,
	})
}

func (c *Compiler) setLine(n ast.Node) {
	if p := n.Pos(); p.Line > 0 {
		c.line = p.Line
	}
}

// ============================================================================
// 字节码生成辅助
// ============================================================================

func (c *Compiler) chunk() *bytecode.Chunk {
	return c.cb.Chunk
}

func (c *Compiler) pos() int {
	return c.cb.Chunk.Len()
}

func (c *Compiler) emit(op bytecode.OpCode) {
	c.chunk().WriteOp(op, c.line)
}

func (c *Compiler) emitU16(op bytecode.OpCode, v uint16) {
	c.emit(op)
	c.chunk().WriteU16(v, c.line)
}

func (c *Compiler) emitCount(op bytecode.OpCode, n int, at ast.Node) {
	if n > 0xFFFF {
		c.errorAt(at.Pos(), errors.E0103, "too many arguments or elements: %d", n)
		n = 0xFFFF
	}
	c.emitU16(op, uint16(n))
}

func (c *Compiler) emitName(op bytecode.OpCode, name string) {
	c.emitU16(op, c.nameIndex(name))
}

func (c *Compiler) emitConstant(v bytecode.Value) {
	if v.IsString() {
		c.emitU16(bytecode.OpConst, c.nameIndex(v.AsString()))
		return
	}
	if !c.roomForConstant() {
		c.emitU16(bytecode.OpConst, 0)
		return
	}
	c.emitU16(bytecode.OpConst, c.chunk().AddConstant(v))
}

func (c *Compiler) nameIndex(name string) uint16 {
	if !c.roomForConstant() {
		return 0
	}
	return c.chunk().AddName(name)
}

func (c *Compiler) roomForConstant() bool {
	if len(c.chunk().Constants) < maxConstants-1 {
		return true
	}
	if !c.constantsFull {
		c.constantsFull = true
		c.errorAt(token.Position{Line: c.line}, errors.E0103, "too many constants in one code unit")
	}
	return false
}

// emitHook 仅在需要调试钩子时生成
func (c *Compiler) emitHook(h bytecode.DebugHookType) {
	if c.opts.DebugHooks {
		c.emitU16(bytecode.OpDebugHook, uint16(h))
	}
}

// emitJump 生成跳转并返回待修补的操作数位置
func (c *Compiler) emitJump(op bytecode.OpCode) int {
	c.emit(op)
	at := c.pos()
	c.chunk().WriteU32(0, c.line)
	return at
}

// emitJumpTo 跳转到已知位置
func (c *Compiler) emitJumpTo(op bytecode.OpCode, target int) {
	c.emit(op)
	c.chunk().WriteU32(uint32(target), c.line)
}

// patchJump 令跳转指向当前位置
func (c *Compiler) patchJump(at int) {
	c.chunk().PatchU32(at, uint32(c.pos()))
}

func (c *Compiler) patchJumpTo(at, target int) {
	c.chunk().PatchU32(at, uint32(target))
}

func (c *Compiler) emitPops(n int) {
	for i := 0; i < n; i++ {
		c.emit(bytecode.OpPop)
	}
}

// emitScopePops 弹出块作用域直到 depth
func (c *Compiler) emitScopePops(depth int) {
	for c.scopeDepth > depth {
		c.emit(bytecode.OpPopScope)
		c.scopeDepth--
	}
}

func (c *Compiler) addTemplate(t *bytecode.ScopeTemplate) uint16 {
	c.cb.ScopeTemplates = append(c.cb.ScopeTemplates, t)
	return uint16(len(c.cb.ScopeTemplates) - 1)
}

// newFunction 把函数字面量登记到函数表，inferred 是匿名函数推断出的名字
func (c *Compiler) newFunction(lit *ast.FunctionLiteral, inferred string) uint16 {
	name := inferred
	if lit.Name != nil {
		name = lit.Name.Name
	}
	fe := bytecode.NewFunctionExecutable(name, c.cb.Source, lit.ParamNames(), lit.Strict, lit)
	fe.Line = lit.Pos().Line
	fe.IsExpression = lit.IsExpression && lit.Name != nil
	c.cb.Functions = append(c.cb.Functions, fe)
	return uint16(len(c.cb.Functions) - 1)
}
