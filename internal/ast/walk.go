package ast

// Visitor 访问者函数类型，返回 false 时不再进入子节点
type Visitor func(node Node) bool

// Walk 深度优先遍历 AST 节点
func Walk(node Node, visitor Visitor) {
	if node == nil || !visitor(node) {
		return
	}

	switch n := node.(type) {
	case *Program:
		walkStmts(n.Body, visitor)
	case *BlockStmt:
		walkStmts(n.Body, visitor)
	case *VarDecl:
		for _, d := range n.Decls {
			Walk(d.Name, visitor)
			walkExpr(d.Init, visitor)
		}
	case *FunctionDecl:
		Walk(n.Func, visitor)
	case *ExprStmt:
		Walk(n.Expr, visitor)
	case *IfStmt:
		Walk(n.Cond, visitor)
		Walk(n.Then, visitor)
		walkStmt(n.Else, visitor)
	case *WhileStmt:
		Walk(n.Cond, visitor)
		Walk(n.Body, visitor)
	case *DoWhileStmt:
		Walk(n.Body, visitor)
		Walk(n.Cond, visitor)
	case *ForStmt:
		walkStmt(n.Init, visitor)
		walkExpr(n.Cond, visitor)
		walkExpr(n.Update, visitor)
		Walk(n.Body, visitor)
	case *ReturnStmt:
		walkExpr(n.Value, visitor)
	case *ThrowStmt:
		Walk(n.Value, visitor)
	case *TryStmt:
		Walk(n.Block, visitor)
		if n.Param != nil {
			Walk(n.Param, visitor)
		}
		if n.Handler != nil {
			Walk(n.Handler, visitor)
		}
		if n.Finalizer != nil {
			Walk(n.Finalizer, visitor)
		}

	case *FunctionLiteral:
		if n.Name != nil {
			Walk(n.Name, visitor)
		}
		for _, p := range n.Params {
			Walk(p, visitor)
		}
		Walk(n.Body, visitor)
	case *ArrayLiteral:
		walkExprs(n.Elements, visitor)
	case *ObjectLiteral:
		for _, p := range n.Properties {
			Walk(p.Value, visitor)
		}
	case *UnaryExpr:
		Walk(n.Operand, visitor)
	case *UpdateExpr:
		Walk(n.Target, visitor)
	case *BinaryExpr:
		Walk(n.Left, visitor)
		Walk(n.Right, visitor)
	case *LogicalExpr:
		Walk(n.Left, visitor)
		Walk(n.Right, visitor)
	case *ConditionalExpr:
		Walk(n.Cond, visitor)
		Walk(n.Then, visitor)
		Walk(n.Else, visitor)
	case *AssignExpr:
		Walk(n.Target, visitor)
		Walk(n.Value, visitor)
	case *SequenceExpr:
		walkExprs(n.Exprs, visitor)
	case *SpreadElement:
		Walk(n.Argument, visitor)
	case *CallExpr:
		Walk(n.Callee, visitor)
		walkExprs(n.Args, visitor)
	case *NewExpr:
		Walk(n.Callee, visitor)
		walkExprs(n.Args, visitor)
	case *MemberExpr:
		Walk(n.Object, visitor)
	case *IndexExpr:
		Walk(n.Object, visitor)
		Walk(n.Index, visitor)
	case *AwaitExpr:
		Walk(n.Argument, visitor)
	}
}

func walkStmts(stmts []Statement, visitor Visitor) {
	for _, s := range stmts {
		Walk(s, visitor)
	}
}

func walkExprs(exprs []Expression, visitor Visitor) {
	for _, e := range exprs {
		Walk(e, visitor)
	}
}

// 避免把值为 nil 的接口装进 Node 后误判为非 nil
func walkExpr(e Expression, visitor Visitor) {
	if e != nil {
		Walk(e, visitor)
	}
}

func walkStmt(s Statement, visitor Visitor) {
	if s != nil {
		Walk(s, visitor)
	}
}
