package compiler

import (
	"github.com/tangzhangming/wkcjs/internal/ast"
	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/errors"
)

// ============================================================================
// 控制流上下文
// ============================================================================

type controlKind byte

const (
	controlLoop controlKind = iota
	controlTry
)

// control 一层循环或 try
//
// try 的受保护范围在内联 finally 时被切开：break / continue / return
// 离开 try 时生成的 finally 副本不受本层处理器保护。
type control struct {
	kind       controlKind
	scopeDepth int
	stackDepth int

	breaks    []int
	continues []int

	finalizer  *ast.BlockStmt
	rangeStart int // -1 表示范围当前关闭
	ranges     [][2]int
}

func (ctl *control) closeRange(pos int) {
	if ctl.rangeStart < 0 {
		return
	}
	if pos > ctl.rangeStart {
		ctl.ranges = append(ctl.ranges, [2]int{ctl.rangeStart, pos})
	}
	ctl.rangeStart = -1
}

func (c *Compiler) pushControl(kind controlKind) *control {
	ctl := &control{
		kind:       kind,
		scopeDepth: c.scopeDepth,
		stackDepth: c.stackDepth,
		rangeStart: -1,
	}
	if kind == controlTry {
		ctl.rangeStart = c.pos()
	}
	c.controls = append(c.controls, ctl)
	return ctl
}

func (c *Compiler) popControl() *control {
	ctl := c.controls[len(c.controls)-1]
	c.controls = c.controls[:len(c.controls)-1]
	return ctl
}

// addHandlers 为 try 的每段受保护范围登记处理器
func (c *Compiler) addHandlers(ctl *control, target int, kind bytecode.HandlerKind) {
	for _, r := range ctl.ranges {
		c.cb.Handlers = append(c.cb.Handlers, bytecode.HandlerInfo{
			Start:      r[0],
			End:        r[1],
			Target:     target,
			Kind:       kind,
			ScopeDepth: ctl.scopeDepth,
			StackDepth: ctl.stackDepth,
		})
	}
}

// leaveControls 为跳出 controls[depth:] 做准备：由内向外关闭经过的 try
// 范围并内联其 finally。调用者生成跳转后必须调用 reopen。
func (c *Compiler) leaveControls(depth int) (crossed []*control) {
	for i := len(c.controls) - 1; i >= depth; i-- {
		ctl := c.controls[i]
		if ctl.kind != controlTry {
			continue
		}
		ctl.closeRange(c.pos())
		crossed = append(crossed, ctl)
		if ctl.finalizer == nil {
			continue
		}
		c.emitScopePops(ctl.scopeDepth)
		outer := c.controls
		c.controls = append([]*control(nil), outer[:i]...)
		c.compileBlock(ctl.finalizer)
		c.controls = outer
	}
	return crossed
}

func (c *Compiler) reopen(crossed []*control) {
	for _, ctl := range crossed {
		ctl.rangeStart = c.pos()
	}
}

func (c *Compiler) innermostLoop() int {
	for i := len(c.controls) - 1; i >= 0; i-- {
		if c.controls[i].kind == controlLoop {
			return i
		}
	}
	return -1
}

// ============================================================================
// 语句编译
// ============================================================================

// compileStatements 编译语句列表；topLevel 时函数声明已经提升
func (c *Compiler) compileStatements(body []ast.Statement, topLevel bool) {
	for _, st := range body {
		if _, ok := st.(*ast.FunctionDecl); ok && topLevel {
			continue
		}
		c.compileStmt(st)
	}
}

func (c *Compiler) compileStmt(stmt ast.Statement) {
	c.setLine(stmt)
	switch stmt.(type) {
	case *ast.BlockStmt, *ast.EmptyStmt, *ast.FunctionDecl:
	default:
		c.emitHook(bytecode.HookWillExecuteStatement)
	}

	switch s := stmt.(type) {
	case *ast.ExprStmt:
		c.compileExpr(s.Expr)
		if c.completion {
			c.emit(bytecode.OpSetCompletion)
		} else {
			c.emit(bytecode.OpPop)
		}
	case *ast.VarDecl:
		c.compileVarDecl(s)
	case *ast.FunctionDecl:
		// 出现在 if / 循环体位置的函数声明，按只含它的块处理
		c.compileScopedStatements([]ast.Statement{s})
	case *ast.BlockStmt:
		c.compileBlock(s)
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s)
	case *ast.DoWhileStmt:
		c.compileDoWhile(s)
	case *ast.ForStmt:
		c.compileFor(s)
	case *ast.BreakStmt:
		c.compileBreak(s)
	case *ast.ContinueStmt:
		c.compileContinue(s)
	case *ast.ReturnStmt:
		c.compileReturn(s)
	case *ast.ThrowStmt:
		c.compileExpr(s.Value)
		c.setLine(s)
		c.emit(bytecode.OpThrow)
	case *ast.TryStmt:
		c.compileTry(s)
	case *ast.DebuggerStmt:
		c.emitU16(bytecode.OpDebugHook, uint16(bytecode.HookDidReachBreakpoint))
	case *ast.EmptyStmt:
	default:
		c.errorAt(stmt.Pos(), errors.E0001, "unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(s *ast.VarDecl) {
	for _, d := range s.Decls {
		c.setLine(d.Name)
		if !s.IsLexical() {
			if d.Init == nil {
				continue
			}
			c.compileNamedExpr(d.Init, d.Name.Name)
			c.emitName(bytecode.OpSetVar, d.Name.Name)
			c.emit(bytecode.OpPop)
			continue
		}
		if d.Init != nil {
			c.compileNamedExpr(d.Init, d.Name.Name)
		} else {
			c.emit(bytecode.OpUndefined)
		}
		c.emitName(bytecode.OpInitLet, d.Name.Name)
	}
}

func (c *Compiler) compileBlock(b *ast.BlockStmt) {
	c.compileScopedStatements(b.Body)
}

// compileScopedStatements 有词法声明时在新的块作用域中编译
func (c *Compiler) compileScopedStatements(body []ast.Statement) {
	bs := c.declareBlock(body)
	if bs == nil {
		c.compileStatements(body, false)
		return
	}
	c.emitU16(bytecode.OpPushScope, c.addTemplate(bs.template))
	c.scopeDepth++
	for _, fn := range bs.functions {
		c.emitU16(bytecode.OpNewFunc, c.newFunction(fn, fn.Name.Name))
		c.emitName(bytecode.OpInitLet, fn.Name.Name)
	}
	c.compileStatements(body, true)
	c.emit(bytecode.OpPopScope)
	c.scopeDepth--
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	c.compileExpr(s.Cond)
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.compileStmt(s.Then)
	if s.Else == nil {
		c.patchJump(elseJump)
		return
	}
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.compileStmt(s.Else)
	c.patchJump(endJump)
}

// ============================================================================
// 循环
// ============================================================================

func (c *Compiler) finishLoop(ctl *control, continueTarget int) {
	for _, at := range ctl.continues {
		c.patchJumpTo(at, continueTarget)
	}
	for _, at := range ctl.breaks {
		c.patchJump(at)
	}
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	loopStart := c.pos()
	ctl := c.pushControl(controlLoop)
	c.emit(bytecode.OpLoopHint)
	c.compileExpr(s.Cond)
	exit := c.emitJump(bytecode.OpJumpIfFalse)
	c.compileStmt(s.Body)
	c.emitJumpTo(bytecode.OpJump, loopStart)
	c.patchJump(exit)
	c.popControl()
	c.finishLoop(ctl, loopStart)
}

func (c *Compiler) compileDoWhile(s *ast.DoWhileStmt) {
	loopStart := c.pos()
	ctl := c.pushControl(controlLoop)
	c.emit(bytecode.OpLoopHint)
	c.compileStmt(s.Body)
	condStart := c.pos()
	c.setLine(s.Cond)
	c.compileExpr(s.Cond)
	c.emitJumpTo(bytecode.OpJumpIfTrue, loopStart)
	c.popControl()
	c.finishLoop(ctl, condStart)
}

// compileFor for(;;)；let / const 初始化放在包住整个循环的作用域里，
// 各次迭代共享同一组绑定
func (c *Compiler) compileFor(s *ast.ForStmt) {
	scoped := false
	if decl, ok := s.Init.(*ast.VarDecl); ok && decl.IsLexical() {
		inner := []ast.Statement{decl}
		bs := c.declareBlock(inner)
		c.checkVarShadowing(lexicalsOf(inner, false), collectVarNames([]ast.Statement{s.Body}))
		c.emitU16(bytecode.OpPushScope, c.addTemplate(bs.template))
		c.scopeDepth++
		scoped = true
	}
	if s.Init != nil {
		switch init := s.Init.(type) {
		case *ast.VarDecl:
			c.compileVarDecl(init)
		case *ast.ExprStmt:
			c.compileExpr(init.Expr)
			c.emit(bytecode.OpPop)
		default:
			c.compileStmt(init)
		}
	}

	loopStart := c.pos()
	ctl := c.pushControl(controlLoop)
	c.emit(bytecode.OpLoopHint)
	exit := -1
	if s.Cond != nil {
		c.compileExpr(s.Cond)
		exit = c.emitJump(bytecode.OpJumpIfFalse)
	}
	c.compileStmt(s.Body)
	updateStart := c.pos()
	if s.Update != nil {
		c.setLine(s.Update)
		c.compileExpr(s.Update)
		c.emit(bytecode.OpPop)
	}
	c.emitJumpTo(bytecode.OpJump, loopStart)
	if exit >= 0 {
		c.patchJump(exit)
	}
	c.popControl()
	c.finishLoop(ctl, updateStart)

	if scoped {
		c.emit(bytecode.OpPopScope)
		c.scopeDepth--
	}
}

func (c *Compiler) compileBreak(s *ast.BreakStmt) {
	c.jumpOutOfLoop(s, true)
}

func (c *Compiler) compileContinue(s *ast.ContinueStmt) {
	c.jumpOutOfLoop(s, false)
}

func (c *Compiler) jumpOutOfLoop(s ast.Statement, isBreak bool) {
	li := c.innermostLoop()
	if li < 0 {
		if isBreak {
			c.errorAt(s.Pos(), errors.E0304, "'break' is only valid inside a loop")
		} else {
			c.errorAt(s.Pos(), errors.E0305, "'continue' is only valid inside a loop")
		}
		return
	}
	loop := c.controls[li]
	savedScope, savedStack := c.scopeDepth, c.stackDepth

	crossed := c.leaveControls(li + 1)
	c.emitScopePops(loop.scopeDepth)
	c.emitPops(c.stackDepth - loop.stackDepth)
	at := c.emitJump(bytecode.OpJump)
	if isBreak {
		loop.breaks = append(loop.breaks, at)
	} else {
		loop.continues = append(loop.continues, at)
	}
	c.reopen(crossed)
	c.scopeDepth, c.stackDepth = savedScope, savedStack
}

func (c *Compiler) compileReturn(s *ast.ReturnStmt) {
	if c.cb.Type != bytecode.FunctionCode {
		c.errorAt(s.Pos(), errors.E0306, "return statement outside of function")
		return
	}
	if s.Value != nil {
		c.compileExpr(s.Value)
	} else {
		c.emit(bytecode.OpUndefined)
	}
	savedScope := c.scopeDepth
	c.stackDepth++
	crossed := c.leaveControls(0)
	c.setLine(s)
	c.emitHook(bytecode.HookWillLeaveCallFrame)
	c.emit(bytecode.OpReturn)
	c.reopen(crossed)
	c.stackDepth--
	c.scopeDepth = savedScope
}

// ============================================================================
// try / catch / finally
// ============================================================================
//
//	try {...} catch (e) {...} finally {...} 的布局：
//
//	    <try 块>                 受 catch 与 finally 处理器保护
//	    JUMP normal
//	catch:
//	    CATCH
//	    PUSH_CATCH_SCOPE e
//	    <catch 块>               受 finally 处理器保护
//	    POP_SCOPE
//	normal:
//	    <finally 块>             正常路径的副本
//	    JUMP end
//	finally:
//	    CATCH
//	    <finally 块>             异常路径的副本
//	    RETHROW
//	end:

func (c *Compiler) compileTry(s *ast.TryStmt) {
	var fin, catchCtl *control
	if s.Finalizer != nil {
		fin = c.pushControl(controlTry)
		fin.finalizer = s.Finalizer
	}
	if s.Handler != nil {
		catchCtl = c.pushControl(controlTry)
	}

	c.compileBlock(s.Block)

	if catchCtl != nil {
		c.popControl()
		catchCtl.closeRange(c.pos())
		normal := c.emitJump(bytecode.OpJump)
		target := c.pos()
		c.addHandlers(catchCtl, target, bytecode.HandlerCatch)

		c.setLine(s.Handler)
		c.emit(bytecode.OpCatch)
		if s.Param != nil {
			if l, ok := findLexical(lexicalsOf(s.Handler.Body, true), s.Param.Name); ok {
				c.errorAt(l.pos, errors.E0101, "Cannot declare a %s variable that shadows a catch parameter: '%s'.", l.kindName(), s.Param.Name)
			}
			c.emitName(bytecode.OpPushCatchScope, s.Param.Name)
			c.scopeDepth++
			c.compileBlock(s.Handler)
			c.emit(bytecode.OpPopScope)
			c.scopeDepth--
		} else {
			c.emit(bytecode.OpPop)
			c.compileBlock(s.Handler)
		}
		c.patchJump(normal)
	}

	if fin == nil {
		return
	}
	c.popControl()
	fin.closeRange(c.pos())
	c.compileBlock(s.Finalizer)
	end := c.emitJump(bytecode.OpJump)

	target := c.pos()
	c.addHandlers(fin, target, bytecode.HandlerFinally)
	c.setLine(s.Finalizer)
	c.emit(bytecode.OpCatch)
	c.stackDepth++
	c.compileBlock(s.Finalizer)
	c.stackDepth--
	c.emit(bytecode.OpRethrow)
	c.patchJump(end)
}
