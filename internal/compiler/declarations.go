package compiler

import (
	"github.com/tangzhangming/wkcjs/internal/ast"
	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/token"
)

// ============================================================================
// 声明提升
// ============================================================================
//
// 顶层（程序、函数体、eval、模块）的 var 名、函数声明和词法声明记录在
// CodeBlock.Decls，由虚拟机在执行前一次性实例化。块内的 let / const /
// 函数声明放进作用域模板，进入块时创建。

// lexicalName 一个词法声明
type lexicalName struct {
	name    string
	isConst bool
	isFunc  bool
	pos     token.Position
}

func (l lexicalName) kindName() string {
	switch {
	case l.isFunc:
		return "function"
	case l.isConst:
		return "const"
	}
	return "let"
}

// declareTopLevel 收集顶层声明并检查冲突
func (c *Compiler) declareTopLevel(body []ast.Statement, params []string) {
	decls := &c.cb.Decls
	lexicals := c.checkLexicals(lexicalsOf(body, false))

	for _, l := range lexicals {
		decls.Lexicals = append(decls.Lexicals, bytecode.LexicalDecl{Name: l.name, Const: l.isConst})
	}

	decls.VarNames = collectVarNames(body)
	c.checkVarShadowing(lexicals, decls.VarNames)

	for _, st := range body {
		fd, ok := st.(*ast.FunctionDecl)
		if !ok {
			continue
		}
		name := fd.Func.Name.Name
		if l, ok := findLexical(lexicals, name); ok {
			c.errorAt(fd.Pos(), errors.E0101, "Cannot declare a function that shadows a %s variable: '%s'.", l.kindName(), name)
		}
		idx := c.newFunction(fd.Func, name)
		decls.Functions = append(decls.Functions, bytecode.FunctionDecl{Name: name, Index: int(idx)})
	}

	for _, p := range params {
		if l, ok := findLexical(lexicals, p); ok {
			c.errorAt(l.pos, errors.E0101, "Cannot declare a %s variable that shadows a parameter: '%s'.", l.kindName(), p)
		}
	}
}

// blockScope 块的作用域模板与需要提升到块开头的函数声明
type blockScope struct {
	template  *bytecode.ScopeTemplate
	functions []*ast.FunctionLiteral
}

// declareBlock 检查块内声明，块没有词法声明时返回 nil
func (c *Compiler) declareBlock(body []ast.Statement) *blockScope {
	lexicals := c.checkLexicals(lexicalsOf(body, true))
	if len(lexicals) == 0 {
		return nil
	}
	c.checkVarShadowing(lexicals, collectVarNames(body))

	bs := &blockScope{template: &bytecode.ScopeTemplate{Kind: bytecode.ScopeBlock}}
	for _, l := range lexicals {
		bs.template.Names = append(bs.template.Names, l.name)
		bs.template.Consts = append(bs.template.Consts, l.isConst)
	}
	for _, st := range body {
		if fd, ok := st.(*ast.FunctionDecl); ok {
			bs.functions = append(bs.functions, fd.Func)
		}
	}
	return bs
}

// lexicalsOf 语句列表直接包含的词法声明；块内的函数声明按 let 处理
func lexicalsOf(body []ast.Statement, functionsAreLexical bool) []lexicalName {
	var out []lexicalName
	for _, st := range body {
		switch s := st.(type) {
		case *ast.VarDecl:
			if !s.IsLexical() {
				continue
			}
			for _, d := range s.Decls {
				out = append(out, lexicalName{
					name:    d.Name.Name,
					isConst: s.Token.Type == token.CONST,
					pos:     d.Name.Pos(),
				})
			}
		case *ast.FunctionDecl:
			if functionsAreLexical {
				out = append(out, lexicalName{name: s.Func.Name.Name, isFunc: true, pos: s.Pos()})
			}
		}
	}
	return out
}

// checkLexicals 报告重复的词法声明并去重
//
// 同一块内重复的函数声明以最后一个为准。
func (c *Compiler) checkLexicals(in []lexicalName) []lexicalName {
	out := in[:0:0]
	index := make(map[string]int, len(in))
	for _, l := range in {
		i, dup := index[l.name]
		if !dup {
			index[l.name] = len(out)
			out = append(out, l)
			continue
		}
		if l.isFunc && out[i].isFunc {
			continue
		}
		c.errorAt(l.pos, errors.E0101, "Cannot declare a %s variable twice: '%s'.", l.kindName(), l.name)
	}
	return out
}

func (c *Compiler) checkVarShadowing(lexicals []lexicalName, vars []string) {
	for _, v := range vars {
		if l, ok := findLexical(lexicals, v); ok {
			c.errorAt(l.pos, errors.E0101, "Cannot declare a var variable that shadows a %s variable: '%s'.", l.kindName(), v)
		}
	}
}

func findLexical(lexicals []lexicalName, name string) (lexicalName, bool) {
	for _, l := range lexicals {
		if l.name == name {
			return l, true
		}
	}
	return lexicalName{}, false
}

// collectVarNames 语句树中的 var 名（不进入嵌套函数），按出现顺序去重
func collectVarNames(body []ast.Statement) []string {
	var names []string
	seen := make(map[string]bool)
	var visit func(st ast.Statement)
	visit = func(st ast.Statement) {
		switch s := st.(type) {
		case *ast.VarDecl:
			if s.IsLexical() {
				return
			}
			for _, d := range s.Decls {
				if !seen[d.Name.Name] {
					seen[d.Name.Name] = true
					names = append(names, d.Name.Name)
				}
			}
		case *ast.BlockStmt:
			for _, inner := range s.Body {
				visit(inner)
			}
		case *ast.IfStmt:
			visit(s.Then)
			if s.Else != nil {
				visit(s.Else)
			}
		case *ast.WhileStmt:
			visit(s.Body)
		case *ast.DoWhileStmt:
			visit(s.Body)
		case *ast.ForStmt:
			if s.Init != nil {
				visit(s.Init)
			}
			visit(s.Body)
		case *ast.TryStmt:
			visit(s.Block)
			if s.Handler != nil {
				visit(s.Handler)
			}
			if s.Finalizer != nil {
				visit(s.Finalizer)
			}
		}
	}
	for _, st := range body {
		visit(st)
	}
	return names
}

// usesArguments 函数体（不含嵌套函数）是否引用 arguments
func usesArguments(body *ast.BlockStmt) bool {
	found := false
	ast.Walk(body, func(n ast.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.FunctionLiteral:
			return false
		case *ast.Identifier:
			if n.Name == "arguments" {
				found = true
			}
		}
		return true
	})
	return found
}

// argumentsIsOwn 当前函数的 arguments 没有被参数或声明遮蔽
func (c *Compiler) argumentsIsOwn() bool {
	if c.cb.Type != bytecode.FunctionCode {
		return false
	}
	for _, p := range c.cb.ParamNames {
		if p == "arguments" {
			return false
		}
	}
	for _, v := range c.cb.Decls.VarNames {
		if v == "arguments" {
			return false
		}
	}
	for _, l := range c.cb.Decls.Lexicals {
		if l.Name == "arguments" {
			return false
		}
	}
	for _, f := range c.cb.Decls.Functions {
		if f.Name == "arguments" {
			return false
		}
	}
	return c.scopeDepth == 0
}
