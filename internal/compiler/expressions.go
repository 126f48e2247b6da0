package compiler

import (
	"github.com/tangzhangming/wkcjs/internal/ast"
	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/token"
)

// ============================================================================
// 表达式编译
// ============================================================================

var binaryOps = map[token.TokenType]bytecode.OpCode{
	token.PLUS:      bytecode.OpAdd,
	token.MINUS:     bytecode.OpSub,
	token.STAR:      bytecode.OpMul,
	token.SLASH:     bytecode.OpDiv,
	token.PERCENT:   bytecode.OpMod,
	token.EQ:        bytecode.OpEq,
	token.NE:        bytecode.OpNe,
	token.STRICT_EQ: bytecode.OpStrictEq,
	token.STRICT_NE: bytecode.OpStrictNe,
	token.LT:        bytecode.OpLt,
	token.LE:        bytecode.OpLe,
	token.GT:        bytecode.OpGt,
	token.GE:        bytecode.OpGe,
}

var compoundOps = map[token.TokenType]bytecode.OpCode{
	token.PLUS_ASSIGN:    bytecode.OpAdd,
	token.MINUS_ASSIGN:   bytecode.OpSub,
	token.STAR_ASSIGN:    bytecode.OpMul,
	token.SLASH_ASSIGN:   bytecode.OpDiv,
	token.PERCENT_ASSIGN: bytecode.OpMod,
}

func (c *Compiler) compileExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.emitConstant(bytecode.NewNumber(e.Value))
	case *ast.StringLiteral:
		c.emitConstant(bytecode.NewString(e.Value))
	case *ast.BoolLiteral:
		if e.Value {
			c.emit(bytecode.OpTrue)
		} else {
			c.emit(bytecode.OpFalse)
		}
	case *ast.NullLiteral:
		c.emit(bytecode.OpNull)
	case *ast.ThisExpr:
		c.emit(bytecode.OpThis)
	case *ast.Identifier:
		c.emitName(bytecode.OpGetVar, e.Name)
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			c.compileExpr(el)
		}
		c.emitCount(bytecode.OpNewArray, len(e.Elements), e)
	case *ast.ObjectLiteral:
		c.emit(bytecode.OpNewObject)
		for _, p := range e.Properties {
			c.compileNamedExpr(p.Value, p.Key)
			c.emitName(bytecode.OpPutField, p.Key)
		}
	case *ast.FunctionLiteral:
		c.emitU16(bytecode.OpNewFunc, c.newFunction(e, ""))
	case *ast.UnaryExpr:
		c.compileUnary(e)
	case *ast.UpdateExpr:
		c.compileUpdate(e)
	case *ast.BinaryExpr:
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.setLine(e)
		c.emit(binaryOps[e.Operator.Type])
	case *ast.LogicalExpr:
		c.compileExpr(e.Left)
		op := bytecode.OpJumpIfFalseKeep
		if e.Operator.Type == token.OR {
			op = bytecode.OpJumpIfTrueKeep
		}
		end := c.emitJump(op)
		c.compileExpr(e.Right)
		c.patchJump(end)
	case *ast.ConditionalExpr:
		c.compileExpr(e.Cond)
		elseJump := c.emitJump(bytecode.OpJumpIfFalse)
		c.compileExpr(e.Then)
		end := c.emitJump(bytecode.OpJump)
		c.patchJump(elseJump)
		c.compileExpr(e.Else)
		c.patchJump(end)
	case *ast.AssignExpr:
		c.compileAssign(e)
	case *ast.SequenceExpr:
		for i, sub := range e.Exprs {
			c.compileExpr(sub)
			if i < len(e.Exprs)-1 {
				c.emit(bytecode.OpPop)
			}
		}
	case *ast.CallExpr:
		c.compileCall(e)
	case *ast.NewExpr:
		c.compileNew(e)
	case *ast.MemberExpr:
		c.compileExpr(e.Object)
		c.setLine(e)
		c.emitName(bytecode.OpGetProp, e.Property)
	case *ast.IndexExpr:
		c.compileExpr(e.Object)
		c.compileExpr(e.Index)
		c.setLine(e)
		c.emit(bytecode.OpGetIndex)
	case *ast.AwaitExpr:
		if c.cb.Type != bytecode.ModuleCode {
			c.errorAt(e.Pos(), errors.E0307, "await is only valid at the top level of a module")
			return
		}
		c.compileExpr(e.Argument)
		c.setLine(e)
		c.emit(bytecode.OpAwait)
	case *ast.SpreadElement:
		c.errorAt(e.Pos(), errors.E0007, "unexpected spread element")
	default:
		c.errorAt(expr.Pos(), errors.E0001, "unsupported expression %T", expr)
	}
}

// compileNamedExpr 匿名函数字面量取得被赋予的名字
func (c *Compiler) compileNamedExpr(expr ast.Expression, name string) {
	if lit, ok := expr.(*ast.FunctionLiteral); ok && lit.Name == nil {
		c.emitU16(bytecode.OpNewFunc, c.newFunction(lit, name))
		return
	}
	c.compileExpr(expr)
}

func (c *Compiler) compileUnary(e *ast.UnaryExpr) {
	if e.Operator.Type == token.TYPEOF {
		if id, ok := e.Operand.(*ast.Identifier); ok {
			c.emitName(bytecode.OpTypeofVar, id.Name)
			return
		}
	}
	c.compileExpr(e.Operand)
	c.setLine(e)
	switch e.Operator.Type {
	case token.NOT:
		c.emit(bytecode.OpNot)
	case token.MINUS:
		c.emit(bytecode.OpNeg)
	case token.PLUS:
		c.emit(bytecode.OpToNumber)
	case token.TYPEOF:
		c.emit(bytecode.OpTypeof)
	case token.VOID:
		c.emit(bytecode.OpPop)
		c.emit(bytecode.OpUndefined)
	default:
		c.errorAt(e.Pos(), errors.E0007, "unsupported unary operator %s", e.Operator.Type)
	}
}

// ============================================================================
// 赋值与自增
// ============================================================================

func (c *Compiler) compileAssign(e *ast.AssignExpr) {
	op, compound := compoundOps[e.Operator.Type]
	switch t := e.Target.(type) {
	case *ast.Identifier:
		if compound {
			c.emitName(bytecode.OpGetVar, t.Name)
			c.compileExpr(e.Value)
			c.emit(op)
		} else {
			c.compileNamedExpr(e.Value, t.Name)
		}
		c.setLine(e)
		c.emitName(bytecode.OpSetVar, t.Name)
	case *ast.MemberExpr:
		c.compileExpr(t.Object)
		if compound {
			c.emit(bytecode.OpDup)
			c.emitName(bytecode.OpGetProp, t.Property)
			c.compileExpr(e.Value)
			c.emit(op)
		} else {
			c.compileExpr(e.Value)
		}
		c.setLine(e)
		c.emitName(bytecode.OpSetProp, t.Property)
	case *ast.IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Index)
		if compound {
			c.emit(bytecode.OpDup2)
			c.emit(bytecode.OpGetIndex)
			c.compileExpr(e.Value)
			c.emit(op)
		} else {
			c.compileExpr(e.Value)
		}
		c.setLine(e)
		c.emit(bytecode.OpSetIndex)
	default:
		c.errorAt(e.Pos(), errors.E0008, "invalid assignment target")
	}
}

// compileUpdate ++ / --；后缀形式的结果是转换为数值后的旧值
func (c *Compiler) compileUpdate(e *ast.UpdateExpr) {
	step := bytecode.OpInc
	if e.Operator.Type == token.DECREMENT {
		step = bytecode.OpDec
	}
	switch t := e.Target.(type) {
	case *ast.Identifier:
		c.emitName(bytecode.OpGetVar, t.Name)
		if e.Prefix {
			c.emit(step)
			c.emitName(bytecode.OpSetVar, t.Name)
			return
		}
		c.emit(bytecode.OpToNumber)
		c.emit(bytecode.OpDup)
		c.emit(step)
		c.emitName(bytecode.OpSetVar, t.Name)
		c.emit(bytecode.OpPop)
	case *ast.MemberExpr:
		c.compileExpr(t.Object)
		c.emit(bytecode.OpDup)
		c.emitName(bytecode.OpGetProp, t.Property)
		if e.Prefix {
			c.emit(step)
			c.emitName(bytecode.OpSetProp, t.Property)
			return
		}
		c.emit(bytecode.OpToNumber)
		c.emit(bytecode.OpDupX1)
		c.emit(step)
		c.emitName(bytecode.OpSetProp, t.Property)
		c.emit(bytecode.OpPop)
	case *ast.IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Index)
		c.emit(bytecode.OpDup2)
		c.emit(bytecode.OpGetIndex)
		if e.Prefix {
			c.emit(step)
			c.emit(bytecode.OpSetIndex)
			return
		}
		c.emit(bytecode.OpToNumber)
		c.emit(bytecode.OpDupX2)
		c.emit(step)
		c.emit(bytecode.OpSetIndex)
		c.emit(bytecode.OpPop)
	default:
		c.errorAt(e.Pos(), errors.E0008, "invalid increment/decrement target")
	}
}

// ============================================================================
// 调用
// ============================================================================

// compileCall 栈布局 [callee][this][args...]
func (c *Compiler) compileCall(e *ast.CallExpr) {
	c.emitHook(bytecode.HookWillExecuteExpression)

	if id, ok := e.Callee.(*ast.Identifier); ok && id.Name == "eval" && e.Spread() == nil {
		c.emitName(bytecode.OpGetVar, "eval")
		c.emit(bytecode.OpUndefined)
		for _, arg := range e.Args {
			c.compileExpr(arg)
		}
		c.setLine(e)
		c.emitCount(bytecode.OpCallEval, len(e.Args), e)
		return
	}

	switch callee := e.Callee.(type) {
	case *ast.MemberExpr:
		c.compileExpr(callee.Object)
		c.emit(bytecode.OpDup)
		c.setLine(callee)
		c.emitName(bytecode.OpGetProp, callee.Property)
		c.emit(bytecode.OpSwap)
	case *ast.IndexExpr:
		c.compileExpr(callee.Object)
		c.emit(bytecode.OpDup)
		c.compileExpr(callee.Index)
		c.emit(bytecode.OpGetIndex)
		c.emit(bytecode.OpSwap)
	default:
		c.compileExpr(e.Callee)
		c.emit(bytecode.OpUndefined)
	}
	c.compileArguments(e, e.Args, e.Spread(), bytecode.OpCall, bytecode.OpCallVarargs)
}

// compileNew 栈布局 [callee][占位][args...]，占位由构造序言替换为 this
func (c *Compiler) compileNew(e *ast.NewExpr) {
	c.compileExpr(e.Callee)
	c.emit(bytecode.OpUndefined)
	c.compileArguments(e, e.Args, e.Spread(), bytecode.OpNew, bytecode.OpNewVarargs)
}

// compileArguments 固定实参逐个压栈；末尾的展开参数先冻结为不可变数组，
// 由变长调用指令在调用时展开。f(...arguments) 直接转发当前帧的实参。
func (c *Compiler) compileArguments(at ast.Node, args []ast.Expression, spread *ast.SpreadElement, op, varargsOp bytecode.OpCode) {
	if spread == nil {
		for _, arg := range args {
			c.compileExpr(arg)
		}
		c.setLine(at)
		c.emitCount(op, len(args), at)
		return
	}

	if id, ok := spread.Argument.(*ast.Identifier); ok && op == bytecode.OpCall &&
		len(args) == 1 && id.Name == "arguments" && c.argumentsIsOwn() {
		c.setLine(at)
		c.emit(bytecode.OpCallForwardArguments)
		return
	}

	fixed := args[:len(args)-1]
	for _, arg := range fixed {
		c.compileExpr(arg)
	}
	c.compileExpr(spread.Argument)
	c.setLine(at)
	c.emit(bytecode.OpSpread)
	c.emitCount(varargsOp, len(fixed), at)
}
