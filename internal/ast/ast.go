package ast

import (
	"strconv"
	"strings"

	"github.com/tangzhangming/wkcjs/internal/token"
)

// Node 是所有 AST 节点的基接口
type Node interface {
	Pos() token.Position // 返回节点在源代码中的位置
	String() string      // 返回节点的字符串表示（用于调试）
}

// Expression 表示一个表达式节点
type Expression interface {
	Node
	exprNode()
}

// Statement 表示一个语句节点
type Statement interface {
	Node
	stmtNode()
}

// ============================================================================
// 程序
// ============================================================================

// Program 一个脚本 / eval / 模块的顶层
type Program struct {
	Body   []Statement
	Strict bool // 以 "use strict" 指令开头，或为模块
	Module bool
}

func (p *Program) Pos() token.Position {
	if len(p.Body) > 0 {
		return p.Body[0].Pos()
	}
	return token.Position{Line: 1, Column: 1}
}

func (p *Program) String() string {
	var sb strings.Builder
	for i, s := range p.Body {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(s.String())
	}
	return sb.String()
}

// ============================================================================
// 表达式
// ============================================================================

// Identifier 标识符
type Identifier struct {
	Token token.Token
	Name  string
}

func (e *Identifier) Pos() token.Position { return e.Token.Pos }
func (e *Identifier) String() string      { return e.Name }
func (e *Identifier) exprNode()           {}

// NumberLiteral 数字字面量
type NumberLiteral struct {
	Token token.Token
	Value float64
}

func (e *NumberLiteral) Pos() token.Position { return e.Token.Pos }
func (e *NumberLiteral) String() string {
	return strconv.FormatFloat(e.Value, 'g', -1, 64)
}
func (e *NumberLiteral) exprNode() {}

// StringLiteral 字符串字面量
type StringLiteral struct {
	Token token.Token
	Value string
}

func (e *StringLiteral) Pos() token.Position { return e.Token.Pos }
func (e *StringLiteral) String() string      { return strconv.Quote(e.Value) }
func (e *StringLiteral) exprNode()           {}

// BoolLiteral 布尔字面量
type BoolLiteral struct {
	Token token.Token
	Value bool
}

func (e *BoolLiteral) Pos() token.Position { return e.Token.Pos }
func (e *BoolLiteral) String() string      { return strconv.FormatBool(e.Value) }
func (e *BoolLiteral) exprNode()           {}

// NullLiteral null
type NullLiteral struct {
	Token token.Token
}

func (e *NullLiteral) Pos() token.Position { return e.Token.Pos }
func (e *NullLiteral) String() string      { return "null" }
func (e *NullLiteral) exprNode()           {}

// ThisExpr this
type ThisExpr struct {
	Token token.Token
}

func (e *ThisExpr) Pos() token.Position { return e.Token.Pos }
func (e *ThisExpr) String() string      { return "this" }
func (e *ThisExpr) exprNode()           {}

// ArrayLiteral 数组字面量 [a, b, c]
type ArrayLiteral struct {
	LBracket token.Token
	Elements []Expression
}

func (e *ArrayLiteral) Pos() token.Position { return e.LBracket.Pos }
func (e *ArrayLiteral) String() string {
	return "[" + joinExprs(e.Elements) + "]"
}
func (e *ArrayLiteral) exprNode() {}

// PropertyNode 对象字面量中的一个属性
type PropertyNode struct {
	Key   string
	Value Expression
}

// ObjectLiteral 对象字面量 {k: v}
type ObjectLiteral struct {
	LBrace     token.Token
	Properties []PropertyNode
}

func (e *ObjectLiteral) Pos() token.Position { return e.LBrace.Pos }
func (e *ObjectLiteral) String() string {
	parts := make([]string, len(e.Properties))
	for i, p := range e.Properties {
		parts[i] = strconv.Quote(p.Key) + ": " + p.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (e *ObjectLiteral) exprNode() {}

// FunctionLiteral 函数表达式或函数声明的主体
type FunctionLiteral struct {
	FuncToken    token.Token
	Name         *Identifier // 匿名函数为 nil
	Params       []*Identifier
	Body         *BlockStmt
	Strict       bool
	IsExpression bool

	// 源码范围 [Start, End)，用于 Function.prototype.toString
	Start, End int
}

func (e *FunctionLiteral) Pos() token.Position { return e.FuncToken.Pos }
func (e *FunctionLiteral) String() string {
	var sb strings.Builder
	sb.WriteString("function")
	if e.Name != nil {
		sb.WriteByte(' ')
		sb.WriteString(e.Name.Name)
	}
	sb.WriteByte('(')
	for i, p := range e.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
	}
	sb.WriteString(") ")
	sb.WriteString(e.Body.String())
	return sb.String()
}
func (e *FunctionLiteral) exprNode() {}

// ParamNames 参数名列表
func (e *FunctionLiteral) ParamNames() []string {
	names := make([]string, len(e.Params))
	for i, p := range e.Params {
		names[i] = p.Name
	}
	return names
}

// UnaryExpr 一元表达式 (! - + typeof void)
type UnaryExpr struct {
	Operator token.Token
	Operand  Expression
}

func (e *UnaryExpr) Pos() token.Position { return e.Operator.Pos }
func (e *UnaryExpr) String() string {
	op := e.Operator.Type.String()
	if token.IsKeyword(e.Operator.Type) {
		op += " "
	}
	return "(" + op + e.Operand.String() + ")"
}
func (e *UnaryExpr) exprNode() {}

// UpdateExpr ++ / --
type UpdateExpr struct {
	Operator token.Token
	Prefix   bool
	Target   Expression
}

func (e *UpdateExpr) Pos() token.Position { return e.Operator.Pos }
func (e *UpdateExpr) String() string {
	if e.Prefix {
		return "(" + e.Operator.Type.String() + e.Target.String() + ")"
	}
	return "(" + e.Target.String() + e.Operator.Type.String() + ")"
}
func (e *UpdateExpr) exprNode() {}

// BinaryExpr 二元表达式（算术、比较、相等）
type BinaryExpr struct {
	Left     Expression
	Operator token.Token
	Right    Expression
}

func (e *BinaryExpr) Pos() token.Position { return e.Operator.Pos }
func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Operator.Type.String() + " " + e.Right.String() + ")"
}
func (e *BinaryExpr) exprNode() {}

// LogicalExpr && / ||
type LogicalExpr struct {
	Left     Expression
	Operator token.Token
	Right    Expression
}

func (e *LogicalExpr) Pos() token.Position { return e.Operator.Pos }
func (e *LogicalExpr) String() string {
	return "(" + e.Left.String() + " " + e.Operator.Type.String() + " " + e.Right.String() + ")"
}
func (e *LogicalExpr) exprNode() {}

// ConditionalExpr 条件表达式 a ? b : c
type ConditionalExpr struct {
	Cond     Expression
	Question token.Token
	Then     Expression
	Else     Expression
}

func (e *ConditionalExpr) Pos() token.Position { return e.Question.Pos }
func (e *ConditionalExpr) String() string {
	return "(" + e.Cond.String() + " ? " + e.Then.String() + " : " + e.Else.String() + ")"
}
func (e *ConditionalExpr) exprNode() {}

// AssignExpr 赋值表达式，Target 为 Identifier / MemberExpr / IndexExpr
type AssignExpr struct {
	Target   Expression
	Operator token.Token
	Value    Expression
}

func (e *AssignExpr) Pos() token.Position { return e.Operator.Pos }
func (e *AssignExpr) String() string {
	return "(" + e.Target.String() + " " + e.Operator.Type.String() + " " + e.Value.String() + ")"
}
func (e *AssignExpr) exprNode() {}

// SequenceExpr 逗号表达式
type SequenceExpr struct {
	Exprs []Expression
}

func (e *SequenceExpr) Pos() token.Position { return e.Exprs[0].Pos() }
func (e *SequenceExpr) String() string      { return "(" + joinExprs(e.Exprs) + ")" }
func (e *SequenceExpr) exprNode()           {}

// SpreadElement 调用参数中的 ...expr，只允许出现在最后
type SpreadElement struct {
	Ellipsis token.Token
	Argument Expression
}

func (e *SpreadElement) Pos() token.Position { return e.Ellipsis.Pos }
func (e *SpreadElement) String() string      { return "..." + e.Argument.String() }
func (e *SpreadElement) exprNode()           {}

// CallExpr 函数调用
type CallExpr struct {
	Callee Expression
	LParen token.Token
	Args   []Expression
}

func (e *CallExpr) Pos() token.Position { return e.LParen.Pos }
func (e *CallExpr) String() string {
	return e.Callee.String() + "(" + joinExprs(e.Args) + ")"
}
func (e *CallExpr) exprNode() {}

// Spread 最后一个参数是否为展开
func (e *CallExpr) Spread() *SpreadElement { return trailingSpread(e.Args) }

// NewExpr new 表达式
type NewExpr struct {
	NewToken token.Token
	Callee   Expression
	Args     []Expression
}

func (e *NewExpr) Pos() token.Position { return e.NewToken.Pos }
func (e *NewExpr) String() string {
	return "new " + e.Callee.String() + "(" + joinExprs(e.Args) + ")"
}
func (e *NewExpr) exprNode() {}

// Spread 最后一个参数是否为展开
func (e *NewExpr) Spread() *SpreadElement { return trailingSpread(e.Args) }

// MemberExpr 属性访问 a.b
type MemberExpr struct {
	Object   Expression
	Dot      token.Token
	Property string
}

func (e *MemberExpr) Pos() token.Position { return e.Dot.Pos }
func (e *MemberExpr) String() string      { return e.Object.String() + "." + e.Property }
func (e *MemberExpr) exprNode()           {}

// IndexExpr 下标访问 a[b]
type IndexExpr struct {
	Object   Expression
	LBracket token.Token
	Index    Expression
}

func (e *IndexExpr) Pos() token.Position { return e.LBracket.Pos }
func (e *IndexExpr) String() string {
	return e.Object.String() + "[" + e.Index.String() + "]"
}
func (e *IndexExpr) exprNode() {}

// AwaitExpr 模块顶层 await
type AwaitExpr struct {
	AwaitToken token.Token
	Argument   Expression
}

func (e *AwaitExpr) Pos() token.Position { return e.AwaitToken.Pos }
func (e *AwaitExpr) String() string      { return "(await " + e.Argument.String() + ")" }
func (e *AwaitExpr) exprNode()           {}

// ============================================================================
// 语句
// ============================================================================

// VarDeclarator 单个声明项
type VarDeclarator struct {
	Name *Identifier
	Init Expression // 可为 nil
}

// VarDecl var / let / const 声明
type VarDecl struct {
	Token token.Token // VAR / LET / CONST
	Decls []*VarDeclarator
}

func (s *VarDecl) Pos() token.Position { return s.Token.Pos }
func (s *VarDecl) String() string {
	parts := make([]string, len(s.Decls))
	for i, d := range s.Decls {
		parts[i] = d.Name.Name
		if d.Init != nil {
			parts[i] += " = " + d.Init.String()
		}
	}
	return s.Token.Type.String() + " " + strings.Join(parts, ", ") + ";"
}
func (s *VarDecl) stmtNode() {}

// IsLexical let / const
func (s *VarDecl) IsLexical() bool {
	return s.Token.Type == token.LET || s.Token.Type == token.CONST
}

// FunctionDecl 函数声明
type FunctionDecl struct {
	Func *FunctionLiteral
}

func (s *FunctionDecl) Pos() token.Position { return s.Func.Pos() }
func (s *FunctionDecl) String() string      { return s.Func.String() }
func (s *FunctionDecl) stmtNode()           {}

// ExprStmt 表达式语句
type ExprStmt struct {
	Expr Expression
}

func (s *ExprStmt) Pos() token.Position { return s.Expr.Pos() }
func (s *ExprStmt) String() string      { return s.Expr.String() + ";" }
func (s *ExprStmt) stmtNode()           {}

// BlockStmt 代码块
type BlockStmt struct {
	LBrace token.Token
	Body   []Statement
}

func (s *BlockStmt) Pos() token.Position { return s.LBrace.Pos }
func (s *BlockStmt) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for _, st := range s.Body {
		sb.WriteString(" ")
		sb.WriteString(st.String())
	}
	sb.WriteString(" }")
	return sb.String()
}
func (s *BlockStmt) stmtNode() {}

// IfStmt if 语句
type IfStmt struct {
	IfToken token.Token
	Cond    Expression
	Then    Statement
	Else    Statement // 可为 nil
}

func (s *IfStmt) Pos() token.Position { return s.IfToken.Pos }
func (s *IfStmt) String() string {
	out := "if (" + s.Cond.String() + ") " + s.Then.String()
	if s.Else != nil {
		out += " else " + s.Else.String()
	}
	return out
}
func (s *IfStmt) stmtNode() {}

// WhileStmt while 循环
type WhileStmt struct {
	WhileToken token.Token
	Cond       Expression
	Body       Statement
}

func (s *WhileStmt) Pos() token.Position { return s.WhileToken.Pos }
func (s *WhileStmt) String() string {
	return "while (" + s.Cond.String() + ") " + s.Body.String()
}
func (s *WhileStmt) stmtNode() {}

// DoWhileStmt do-while 循环
type DoWhileStmt struct {
	DoToken token.Token
	Body    Statement
	Cond    Expression
}

func (s *DoWhileStmt) Pos() token.Position { return s.DoToken.Pos }
func (s *DoWhileStmt) String() string {
	return "do " + s.Body.String() + " while (" + s.Cond.String() + ");"
}
func (s *DoWhileStmt) stmtNode() {}

// ForStmt for(;;) 循环
type ForStmt struct {
	ForToken token.Token
	Init     Statement  // *VarDecl / *ExprStmt / nil
	Cond     Expression // 可为 nil
	Update   Expression // 可为 nil
	Body     Statement
}

func (s *ForStmt) Pos() token.Position { return s.ForToken.Pos }
func (s *ForStmt) String() string {
	var sb strings.Builder
	sb.WriteString("for (")
	if s.Init != nil {
		sb.WriteString(strings.TrimSuffix(s.Init.String(), ";"))
	}
	sb.WriteString("; ")
	if s.Cond != nil {
		sb.WriteString(s.Cond.String())
	}
	sb.WriteString("; ")
	if s.Update != nil {
		sb.WriteString(s.Update.String())
	}
	sb.WriteString(") ")
	sb.WriteString(s.Body.String())
	return sb.String()
}
func (s *ForStmt) stmtNode() {}

// BreakStmt break
type BreakStmt struct {
	Token token.Token
}

func (s *BreakStmt) Pos() token.Position { return s.Token.Pos }
func (s *BreakStmt) String() string      { return "break;" }
func (s *BreakStmt) stmtNode()           {}

// ContinueStmt continue
type ContinueStmt struct {
	Token token.Token
}

func (s *ContinueStmt) Pos() token.Position { return s.Token.Pos }
func (s *ContinueStmt) String() string      { return "continue;" }
func (s *ContinueStmt) stmtNode()           {}

// ReturnStmt return
type ReturnStmt struct {
	Token token.Token
	Value Expression // 可为 nil
}

func (s *ReturnStmt) Pos() token.Position { return s.Token.Pos }
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return;"
	}
	return "return " + s.Value.String() + ";"
}
func (s *ReturnStmt) stmtNode() {}

// ThrowStmt throw
type ThrowStmt struct {
	Token token.Token
	Value Expression
}

func (s *ThrowStmt) Pos() token.Position { return s.Token.Pos }
func (s *ThrowStmt) String() string      { return "throw " + s.Value.String() + ";" }
func (s *ThrowStmt) stmtNode()           {}

// TryStmt try / catch / finally，Handler 与 Finalizer 至少一个非 nil
type TryStmt struct {
	TryToken  token.Token
	Block     *BlockStmt
	Param     *Identifier // catch 参数，可为 nil
	Handler   *BlockStmt
	Finalizer *BlockStmt
}

func (s *TryStmt) Pos() token.Position { return s.TryToken.Pos }
func (s *TryStmt) String() string {
	out := "try " + s.Block.String()
	if s.Handler != nil {
		out += " catch "
		if s.Param != nil {
			out += "(" + s.Param.Name + ") "
		}
		out += s.Handler.String()
	}
	if s.Finalizer != nil {
		out += " finally " + s.Finalizer.String()
	}
	return out
}
func (s *TryStmt) stmtNode() {}

// DebuggerStmt debugger
type DebuggerStmt struct {
	Token token.Token
}

func (s *DebuggerStmt) Pos() token.Position { return s.Token.Pos }
func (s *DebuggerStmt) String() string      { return "debugger;" }
func (s *DebuggerStmt) stmtNode()           {}

// EmptyStmt 空语句
type EmptyStmt struct {
	Token token.Token
}

func (s *EmptyStmt) Pos() token.Position { return s.Token.Pos }
func (s *EmptyStmt) String() string      { return ";" }
func (s *EmptyStmt) stmtNode()           {}

// ============================================================================
// 辅助函数
// ============================================================================

func joinExprs(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func trailingSpread(args []Expression) *SpreadElement {
	if len(args) == 0 {
		return nil
	}
	s, _ := args[len(args)-1].(*SpreadElement)
	return s
}

// NumberKey 数字属性名的规范字符串形式（{1: x} 的键为 "1"）
func NumberKey(v float64) string {
	if v == float64(int64(v)) && v >= -1e15 && v <= 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
