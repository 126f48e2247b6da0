package parser

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/wkcjs/internal/ast"
	"github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/lexer"
	"github.com/tangzhangming/wkcjs/internal/token"
)

// Mode 解析目标
type Mode int

const (
	ModeScript Mode = iota // 顶层脚本
	ModeEval               // eval 代码（不允许 return）
	ModeModule             // 模块（严格模式，顶层允许 await）
)

// Parser 语法分析器
type Parser struct {
	tokens    []token.Token
	current   int
	errors    []Error
	filename  string
	panicMode bool // 错误恢复模式标志，用于避免级联报错
	exprDepth int  // 表达式解析深度，防止栈溢出

	mode      Mode
	strict    bool
	funcDepth int
	loopDepth int
}

// maxExprDepth 最大表达式嵌套深度，防止栈溢出
const maxExprDepth = 200

// Error 语法分析错误
type Error struct {
	Pos     token.Position
	Code    string
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// CompileError 转换为带错误码的编译错误
func (e Error) CompileError() *errors.CompileError {
	return &errors.CompileError{
		Code:    e.Code,
		Level:   errors.LevelError,
		Message: e.Message,
		File:    e.Pos.Filename,
		Line:    e.Pos.Line,
		Column:  e.Pos.Column,
	}
}

// New 创建一个新的语法分析器，词法错误并入语法错误列表
func New(source, filename string) *Parser {
	l := lexer.New(source, filename)
	tokens := l.ScanTokens()

	p := &Parser{
		tokens:   tokens,
		filename: filename,
	}
	for _, le := range l.Errors() {
		p.errors = append(p.errors, Error{Pos: le.Pos, Code: lexerErrorCode(le.Message), Message: le.Message})
	}
	return p
}

// Parse 解析源码，出错时返回 errors.ErrorList
func Parse(source, filename string, mode Mode, strict bool) (*ast.Program, error) {
	p := New(source, filename)
	prog := p.ParseProgram(mode, strict)
	if err := p.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// ParseProgram 解析整个程序；strict 表示外层上下文已是严格模式（严格 eval）
func (p *Parser) ParseProgram(mode Mode, strict bool) *ast.Program {
	p.mode = mode
	p.strict = strict || mode == ModeModule
	prog := &ast.Program{Module: mode == ModeModule}

	if p.parseDirectives() {
		p.strict = true
	}
	prog.Strict = p.strict

	for !p.isAtEnd() {
		p.panicMode = false
		stmt := p.parseStatement()
		if p.panicMode {
			p.synchronize()
			continue
		}
		if stmt != nil {
			prog.Body = append(prog.Body, stmt)
		}
	}
	return prog
}

// Errors 返回所有语法错误
func (p *Parser) Errors() []Error {
	return p.errors
}

// HasErrors 检查是否有错误
func (p *Parser) HasErrors() bool {
	return len(p.errors) > 0
}

// Err 以 errors.ErrorList 形式返回错误，无错误时为 nil
func (p *Parser) Err() error {
	if len(p.errors) == 0 {
		return nil
	}
	list := make(errors.ErrorList, len(p.errors))
	for i, e := range p.errors {
		list[i] = e.CompileError()
	}
	return list
}

func lexerErrorCode(msg string) string {
	switch {
	case strings.Contains(msg, "string"):
		return errors.E0003
	case strings.Contains(msg, "comment"):
		return errors.E0004
	case strings.Contains(msg, "number"), strings.Contains(msg, "numeric"), strings.Contains(msg, "hexadecimal literal"):
		return errors.E0005
	case strings.Contains(msg, "escape"):
		return errors.E0003
	default:
		return errors.E0002
	}
}

// ============================================================================
// 辅助方法
// ============================================================================

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == token.EOF
}

func (p *Parser) peek() token.Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() token.Token {
	return p.tokens[p.current-1]
}

func (p *Parser) advance() token.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) check(t token.TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) match(types ...token.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(t token.TokenType, message string) token.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorCode(errors.E0006, message)
	p.panicMode = true
	return token.Token{} // 返回零值，调用方应检查 panicMode
}

// consumeSemicolon 语句结尾：显式分号，或在换行 / '}' / EOF 前自动插入
func (p *Parser) consumeSemicolon() {
	if p.match(token.SEMICOLON) {
		return
	}
	if p.isAtEnd() || p.check(token.RBRACE) || p.peek().NewlineBefore {
		return
	}
	p.errorCode(errors.E0006, fmt.Sprintf("expected ';' but found '%s'", p.peek().Type))
	p.panicMode = true
}

// maxParseErrors 最大错误数量限制，防止错误爆炸
const maxParseErrors = 50

func (p *Parser) errorCode(code, message string) {
	// panicMode 下跳过后续错误，避免级联报错
	if p.panicMode {
		return
	}

	pos := p.peek().Pos

	// 避免在同一位置重复报错
	if len(p.errors) > 0 {
		last := p.errors[len(p.errors)-1]
		if last.Pos.Line == pos.Line && last.Pos.Column == pos.Column {
			return
		}
	}

	if len(p.errors) >= maxParseErrors {
		p.errors = append(p.errors, Error{Pos: pos, Code: errors.E0001, Message: "too many errors, aborting"})
		p.panicMode = true
		return
	}

	p.errors = append(p.errors, Error{Pos: pos, Code: code, Message: message})
}

func (p *Parser) unexpected() {
	tok := p.peek()
	if tok.Type == token.EOF {
		p.errorCode(errors.E0007, "unexpected end of input")
	} else {
		p.errorCode(errors.E0007, fmt.Sprintf("unexpected token '%s'", tok.Literal))
	}
	p.panicMode = true
}

func (p *Parser) synchronize() {
	p.advance()

	for !p.isAtEnd() {
		if p.previous().Type == token.SEMICOLON || p.previous().Type == token.RBRACE {
			return
		}
		switch p.peek().Type {
		case token.VAR, token.LET, token.CONST, token.FUNCTION, token.IF, token.FOR,
			token.WHILE, token.DO, token.RETURN, token.TRY, token.THROW,
			token.BREAK, token.CONTINUE:
			return
		}
		p.advance()
	}
}

// parseDirectives 检查指令序言中的 "use strict"，不消费 token
func (p *Parser) parseDirectives() bool {
	for i := p.current; i < len(p.tokens); i++ {
		tok := p.tokens[i]
		if tok.Type != token.STRING {
			return false
		}
		next := p.tokens[i+1]
		terminated := next.Type == token.SEMICOLON || next.Type == token.RBRACE ||
			next.Type == token.EOF || next.NewlineBefore
		if !terminated {
			return false
		}
		if tok.Literal == `"use strict"` || tok.Literal == `'use strict'` {
			return true
		}
		if next.Type == token.SEMICOLON {
			i++
		}
	}
	return false
}

// ============================================================================
// 表达式解析 (Pratt Parser / 优先级攀升)
// ============================================================================

// 运算符优先级
const (
	PREC_NONE       = iota
	PREC_ASSIGNMENT // =, +=, -=, ...
	PREC_TERNARY    // ?:
	PREC_OR         // ||
	PREC_AND        // &&
	PREC_EQUALITY   // ==, !=, ===, !==
	PREC_COMPARISON // <, >, <=, >=
	PREC_TERM       // +, -
	PREC_FACTOR     // *, /, %
	PREC_UNARY      // !, -, +, typeof, void, ++, --
	PREC_POSTFIX    // ++, --
	PREC_CALL       // (), ., []
	PREC_PRIMARY
)

func (p *Parser) getPrecedence(tok token.Token) int {
	switch tok.Type {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN,
		token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		return PREC_ASSIGNMENT
	case token.QUESTION:
		return PREC_TERNARY
	case token.OR:
		return PREC_OR
	case token.AND:
		return PREC_AND
	case token.EQ, token.NE, token.STRICT_EQ, token.STRICT_NE:
		return PREC_EQUALITY
	case token.LT, token.LE, token.GT, token.GE:
		return PREC_COMPARISON
	case token.PLUS, token.MINUS:
		return PREC_TERM
	case token.STAR, token.SLASH, token.PERCENT:
		return PREC_FACTOR
	case token.INCREMENT, token.DECREMENT:
		// 后缀 ++/-- 前不能有换行
		if tok.NewlineBefore {
			return PREC_NONE
		}
		return PREC_POSTFIX
	case token.LPAREN, token.DOT, token.LBRACKET:
		return PREC_CALL
	default:
		return PREC_NONE
	}
}

// parseExpression 逗号表达式
func (p *Parser) parseExpression() ast.Expression {
	first := p.parseAssignment()
	if first == nil || !p.check(token.COMMA) {
		return first
	}
	seq := &ast.SequenceExpr{Exprs: []ast.Expression{first}}
	for p.match(token.COMMA) {
		next := p.parseAssignment()
		if next == nil {
			return nil
		}
		seq.Exprs = append(seq.Exprs, next)
	}
	return seq
}

func (p *Parser) parseAssignment() ast.Expression {
	// 检查递归深度，防止栈溢出
	p.exprDepth++
	defer func() { p.exprDepth-- }()
	if p.exprDepth > maxExprDepth {
		p.errorCode(errors.E0009, "expression too deeply nested")
		p.panicMode = true
		return nil
	}

	return p.parsePrecedence(PREC_ASSIGNMENT)
}

func (p *Parser) parsePrecedence(precedence int) ast.Expression {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for precedence <= p.getPrecedence(p.peek()) && !p.panicMode {
		left = p.parseInfixExpr(left)
		if left == nil {
			return nil
		}
	}

	return left
}

func (p *Parser) parsePrefixExpr() ast.Expression {
	switch p.peek().Type {
	case token.NUMBER:
		tok := p.advance()
		return &ast.NumberLiteral{Token: tok, Value: tok.Value.(float64)}
	case token.STRING:
		tok := p.advance()
		return &ast.StringLiteral{Token: tok, Value: tok.Value.(string)}
	case token.TRUE:
		return &ast.BoolLiteral{Token: p.advance(), Value: true}
	case token.FALSE:
		return &ast.BoolLiteral{Token: p.advance(), Value: false}
	case token.NULL:
		return &ast.NullLiteral{Token: p.advance()}
	case token.THIS:
		return &ast.ThisExpr{Token: p.advance()}
	case token.IDENT:
		tok := p.advance()
		return &ast.Identifier{Token: tok, Name: tok.Literal}
	case token.AWAIT:
		return p.parseAwaitExpr()
	case token.LPAREN:
		p.advance()
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		p.consume(token.RPAREN, "expected ')'")
		if p.panicMode {
			return nil
		}
		return expr
	case token.LBRACKET:
		return p.parseArrayLiteral()
	case token.LBRACE:
		return p.parseObjectLiteral()
	case token.FUNCTION:
		return p.parseFunction(true)
	case token.NEW:
		return p.parseNewExpr()
	case token.NOT, token.MINUS, token.PLUS, token.TYPEOF, token.VOID:
		op := p.advance()
		operand := p.parsePrecedence(PREC_UNARY)
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Operator: op, Operand: operand}
	case token.INCREMENT, token.DECREMENT:
		op := p.advance()
		target := p.parsePrecedence(PREC_UNARY)
		if target == nil {
			return nil
		}
		if !p.isValidAssignTarget(target) {
			p.errorCode(errors.E0008, "invalid left-hand side expression in prefix operation")
			p.panicMode = true
			return nil
		}
		return &ast.UpdateExpr{Operator: op, Prefix: true, Target: target}
	default:
		p.unexpected()
		return nil
	}
}

func (p *Parser) parseInfixExpr(left ast.Expression) ast.Expression {
	switch p.peek().Type {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.EQ, token.NE, token.STRICT_EQ, token.STRICT_NE,
		token.LT, token.LE, token.GT, token.GE:
		op := p.advance()
		right := p.parsePrecedence(p.getPrecedence(op) + 1)
		if right == nil {
			return nil
		}
		return &ast.BinaryExpr{Left: left, Operator: op, Right: right}
	case token.AND, token.OR:
		op := p.advance()
		right := p.parsePrecedence(p.getPrecedence(op) + 1)
		if right == nil {
			return nil
		}
		return &ast.LogicalExpr{Left: left, Operator: op, Right: right}
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN,
		token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		return p.parseAssignExpr(left)
	case token.QUESTION:
		q := p.advance()
		then := p.parseAssignment()
		if then == nil {
			return nil
		}
		p.consume(token.COLON, "expected ':' in conditional expression")
		if p.panicMode {
			return nil
		}
		els := p.parseAssignment()
		if els == nil {
			return nil
		}
		return &ast.ConditionalExpr{Cond: left, Question: q, Then: then, Else: els}
	case token.INCREMENT, token.DECREMENT:
		if !p.isValidAssignTarget(left) {
			p.errorCode(errors.E0008, "invalid left-hand side expression in postfix operation")
			p.panicMode = true
			return nil
		}
		return &ast.UpdateExpr{Operator: p.advance(), Target: left}
	case token.DOT:
		return p.parseDotAccess(left)
	case token.LBRACKET:
		lb := p.advance()
		index := p.parseExpression()
		if index == nil {
			return nil
		}
		p.consume(token.RBRACKET, "expected ']'")
		if p.panicMode {
			return nil
		}
		return &ast.IndexExpr{Object: left, LBracket: lb, Index: index}
	case token.LPAREN:
		lparen := p.peek()
		args := p.parseArguments()
		if p.panicMode {
			return nil
		}
		return &ast.CallExpr{Callee: left, LParen: lparen, Args: args}
	default:
		return left
	}
}

func (p *Parser) parseAssignExpr(left ast.Expression) ast.Expression {
	if !p.isValidAssignTarget(left) {
		p.errorCode(errors.E0008, "invalid assignment target")
		p.panicMode = true
		return nil
	}
	op := p.advance()
	// 右结合
	value := p.parsePrecedence(PREC_ASSIGNMENT)
	if value == nil {
		return nil
	}
	return &ast.AssignExpr{Target: left, Operator: op, Value: value}
}

func (p *Parser) isValidAssignTarget(expr ast.Expression) bool {
	switch e := expr.(type) {
	case *ast.Identifier:
		// 严格模式下不能给 eval / arguments 赋值
		return !(p.strict && (e.Name == "eval" || e.Name == "arguments"))
	case *ast.MemberExpr, *ast.IndexExpr:
		return true
	}
	return false
}

func (p *Parser) parseDotAccess(left ast.Expression) ast.Expression {
	dot := p.advance()
	name := p.peek()
	if name.Type != token.IDENT && !token.IsKeyword(name.Type) {
		p.errorCode(errors.E0006, "expected property name after '.'")
		p.panicMode = true
		return nil
	}
	p.advance()
	return &ast.MemberExpr{Object: left, Dot: dot, Property: name.Literal}
}

// parseArguments 解析 (a, b, ...c)，展开只允许在最后
func (p *Parser) parseArguments() []ast.Expression {
	p.consume(token.LPAREN, "expected '('")
	if p.panicMode {
		return nil
	}
	var args []ast.Expression
	for !p.check(token.RPAREN) && !p.isAtEnd() {
		if p.check(token.ELLIPSIS) {
			ellipsis := p.advance()
			arg := p.parseAssignment()
			if arg == nil {
				return nil
			}
			args = append(args, &ast.SpreadElement{Ellipsis: ellipsis, Argument: arg})
			if !p.check(token.RPAREN) {
				p.errorCode(errors.E0006, "spread argument must be the last argument")
				p.panicMode = true
				return nil
			}
			break
		}
		arg := p.parseAssignment()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		if !p.match(token.COMMA) {
			break
		}
	}
	p.consume(token.RPAREN, "expected ')' after arguments")
	return args
}

func (p *Parser) parseNewExpr() ast.Expression {
	newTok := p.advance()

	var callee ast.Expression
	if p.check(token.NEW) {
		callee = p.parseNewExpr()
	} else {
		callee = p.parsePrefixExpr()
	}
	if callee == nil {
		return nil
	}
	// new 的目标只包含成员访问，不包含调用
	for !p.panicMode && (p.check(token.DOT) || p.check(token.LBRACKET)) {
		callee = p.parseInfixExpr(callee)
		if callee == nil {
			return nil
		}
	}

	var args []ast.Expression
	if p.check(token.LPAREN) {
		args = p.parseArguments()
		if p.panicMode {
			return nil
		}
	}
	return &ast.NewExpr{NewToken: newTok, Callee: callee, Args: args}
}

func (p *Parser) parseAwaitExpr() ast.Expression {
	tok := p.peek()
	if p.mode != ModeModule {
		// 脚本中 await 是普通标识符
		p.advance()
		return &ast.Identifier{Token: tok, Name: tok.Literal}
	}
	if p.funcDepth > 0 {
		p.errorCode(errors.E0307, "await is only valid at the top level of a module")
		p.panicMode = true
		return nil
	}
	p.advance()
	arg := p.parsePrecedence(PREC_UNARY)
	if arg == nil {
		return nil
	}
	return &ast.AwaitExpr{AwaitToken: tok, Argument: arg}
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	lb := p.advance()
	lit := &ast.ArrayLiteral{LBracket: lb}
	for !p.check(token.RBRACKET) && !p.isAtEnd() {
		elem := p.parseAssignment()
		if elem == nil {
			return nil
		}
		lit.Elements = append(lit.Elements, elem)
		if !p.match(token.COMMA) {
			break
		}
	}
	p.consume(token.RBRACKET, "expected ']' after array elements")
	if p.panicMode {
		return nil
	}
	return lit
}

func (p *Parser) parseObjectLiteral() ast.Expression {
	lb := p.advance()
	lit := &ast.ObjectLiteral{LBrace: lb}
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		keyTok := p.peek()
		var key string
		switch {
		case keyTok.Type == token.IDENT || token.IsKeyword(keyTok.Type):
			key = keyTok.Literal
		case keyTok.Type == token.STRING:
			key = keyTok.Value.(string)
		case keyTok.Type == token.NUMBER:
			key = ast.NumberKey(keyTok.Value.(float64))
		default:
			p.errorCode(errors.E0006, "expected property name")
			p.panicMode = true
			return nil
		}
		p.advance()

		var value ast.Expression
		if keyTok.Type == token.IDENT && (p.check(token.COMMA) || p.check(token.RBRACE)) {
			// 简写 {a}
			value = &ast.Identifier{Token: keyTok, Name: key}
		} else {
			p.consume(token.COLON, "expected ':' after property name")
			if p.panicMode {
				return nil
			}
			value = p.parseAssignment()
			if value == nil {
				return nil
			}
		}
		lit.Properties = append(lit.Properties, ast.PropertyNode{Key: key, Value: value})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.consume(token.RBRACE, "expected '}' after object properties")
	if p.panicMode {
		return nil
	}
	return lit
}

// parseFunction 解析函数声明或函数表达式
func (p *Parser) parseFunction(isExpression bool) *ast.FunctionLiteral {
	funcTok := p.advance()
	fn := &ast.FunctionLiteral{FuncToken: funcTok, IsExpression: isExpression, Start: funcTok.Pos.Offset}

	if p.check(token.IDENT) {
		tok := p.advance()
		fn.Name = &ast.Identifier{Token: tok, Name: tok.Literal}
	} else if !isExpression {
		p.errorCode(errors.E0006, "function statement requires a name")
		p.panicMode = true
		return nil
	}

	p.consume(token.LPAREN, "expected '(' after function name")
	if p.panicMode {
		return nil
	}
	for !p.check(token.RPAREN) && !p.isAtEnd() {
		tok := p.consume(token.IDENT, "expected parameter name")
		if p.panicMode {
			return nil
		}
		fn.Params = append(fn.Params, &ast.Identifier{Token: tok, Name: tok.Literal})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.consume(token.RPAREN, "expected ')' after parameters")
	if p.panicMode {
		return nil
	}

	// 函数体有独立的循环 / 严格模式上下文
	savedLoop, savedStrict := p.loopDepth, p.strict
	p.loopDepth = 0
	p.funcDepth++
	defer func() {
		p.loopDepth, p.strict = savedLoop, savedStrict
		p.funcDepth--
	}()

	if p.check(token.LBRACE) {
		saved := p.current
		p.current++
		if p.parseDirectives() {
			p.strict = true
		}
		p.current = saved
	}
	fn.Strict = p.strict
	fn.Body = p.parseBlock()
	if p.panicMode || fn.Body == nil {
		return nil
	}
	closing := p.previous()
	fn.End = closing.Pos.Offset + len(closing.Literal)
	return fn
}

// ============================================================================
// 语句解析
// ============================================================================

func (p *Parser) parseStatement() ast.Statement {
	switch p.peek().Type {
	case token.VAR, token.LET, token.CONST:
		decl := p.parseVarDecl()
		if decl == nil {
			return nil
		}
		p.consumeSemicolon()
		return decl
	case token.FUNCTION:
		fn := p.parseFunction(false)
		if fn == nil {
			return nil
		}
		return &ast.FunctionDecl{Func: fn}
	case token.LBRACE:
		return p.parseBlock()
	case token.IF:
		return p.parseIfStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.DO:
		return p.parseDoWhileStmt()
	case token.FOR:
		return p.parseForStmt()
	case token.BREAK:
		tok := p.advance()
		if p.loopDepth == 0 {
			p.errorCode(errors.E0304, "break must be inside loop")
			p.panicMode = true
			return nil
		}
		p.consumeSemicolon()
		return &ast.BreakStmt{Token: tok}
	case token.CONTINUE:
		tok := p.advance()
		if p.loopDepth == 0 {
			p.errorCode(errors.E0305, "continue must be inside loop")
			p.panicMode = true
			return nil
		}
		p.consumeSemicolon()
		return &ast.ContinueStmt{Token: tok}
	case token.RETURN:
		return p.parseReturnStmt()
	case token.THROW:
		return p.parseThrowStmt()
	case token.TRY:
		return p.parseTryStmt()
	case token.DEBUGGER:
		tok := p.advance()
		p.consumeSemicolon()
		return &ast.DebuggerStmt{Token: tok}
	case token.SEMICOLON:
		return &ast.EmptyStmt{Token: p.advance()}
	default:
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		p.consumeSemicolon()
		return &ast.ExprStmt{Expr: expr}
	}
}

// parseVarDecl 解析声明列表，不消费结尾分号（for 头部复用）
func (p *Parser) parseVarDecl() *ast.VarDecl {
	kind := p.advance()
	decl := &ast.VarDecl{Token: kind}
	for {
		nameTok := p.consume(token.IDENT, fmt.Sprintf("expected variable name after '%s'", kind.Literal))
		if p.panicMode {
			return nil
		}
		if p.strict && (nameTok.Literal == "eval" || nameTok.Literal == "arguments") {
			p.errorCode(errors.E0008, fmt.Sprintf("cannot declare '%s' in strict mode", nameTok.Literal))
			p.panicMode = true
			return nil
		}
		d := &ast.VarDeclarator{Name: &ast.Identifier{Token: nameTok, Name: nameTok.Literal}}
		if p.match(token.ASSIGN) {
			d.Init = p.parseAssignment()
			if d.Init == nil {
				return nil
			}
		} else if kind.Type == token.CONST {
			p.errorCode(errors.E0102, "missing initializer in const declaration")
			p.panicMode = true
			return nil
		}
		decl.Decls = append(decl.Decls, d)
		if !p.match(token.COMMA) {
			break
		}
	}
	return decl
}

func (p *Parser) parseBlock() *ast.BlockStmt {
	lbrace := p.consume(token.LBRACE, "expected '{'")
	if p.panicMode {
		return nil
	}

	var stmts []ast.Statement
	for !p.check(token.RBRACE) && !p.isAtEnd() && !p.panicMode {
		stmt := p.parseStatement()
		if p.panicMode {
			return nil
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}

	p.consume(token.RBRACE, "expected '}'")
	if p.panicMode {
		return nil
	}
	return &ast.BlockStmt{LBrace: lbrace, Body: stmts}
}

func (p *Parser) parseParenCondition(what string) ast.Expression {
	p.consume(token.LPAREN, fmt.Sprintf("expected '(' after '%s'", what))
	if p.panicMode {
		return nil
	}
	cond := p.parseExpression()
	if cond == nil {
		return nil
	}
	p.consume(token.RPAREN, "expected ')' after condition")
	if p.panicMode {
		return nil
	}
	return cond
}

func (p *Parser) parseIfStmt() ast.Statement {
	ifTok := p.advance()
	cond := p.parseParenCondition("if")
	if cond == nil {
		return nil
	}
	then := p.parseStatement()
	if then == nil {
		return nil
	}
	stmt := &ast.IfStmt{IfToken: ifTok, Cond: cond, Then: then}
	if p.match(token.ELSE) {
		stmt.Else = p.parseStatement()
		if stmt.Else == nil {
			return nil
		}
	}
	return stmt
}

func (p *Parser) parseLoopBody() ast.Statement {
	p.loopDepth++
	defer func() { p.loopDepth-- }()
	return p.parseStatement()
}

func (p *Parser) parseWhileStmt() ast.Statement {
	whileTok := p.advance()
	cond := p.parseParenCondition("while")
	if cond == nil {
		return nil
	}
	body := p.parseLoopBody()
	if body == nil {
		return nil
	}
	return &ast.WhileStmt{WhileToken: whileTok, Cond: cond, Body: body}
}

func (p *Parser) parseDoWhileStmt() ast.Statement {
	doTok := p.advance()
	body := p.parseLoopBody()
	if body == nil {
		return nil
	}
	p.consume(token.WHILE, "expected 'while' after do body")
	if p.panicMode {
		return nil
	}
	cond := p.parseParenCondition("while")
	if cond == nil {
		return nil
	}
	// do-while 之后的分号总是可以省略
	p.match(token.SEMICOLON)
	return &ast.DoWhileStmt{DoToken: doTok, Body: body, Cond: cond}
}

func (p *Parser) parseForStmt() ast.Statement {
	forTok := p.advance()
	p.consume(token.LPAREN, "expected '(' after 'for'")
	if p.panicMode {
		return nil
	}
	stmt := &ast.ForStmt{ForToken: forTok}

	switch {
	case p.check(token.SEMICOLON):
	case p.check(token.VAR) || p.check(token.LET) || p.check(token.CONST):
		decl := p.parseVarDecl()
		if decl == nil {
			return nil
		}
		stmt.Init = decl
	default:
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		stmt.Init = &ast.ExprStmt{Expr: expr}
	}
	p.consume(token.SEMICOLON, "expected ';' after for initializer")
	if p.panicMode {
		return nil
	}

	if !p.check(token.SEMICOLON) {
		stmt.Cond = p.parseExpression()
		if stmt.Cond == nil {
			return nil
		}
	}
	p.consume(token.SEMICOLON, "expected ';' after for condition")
	if p.panicMode {
		return nil
	}

	if !p.check(token.RPAREN) {
		stmt.Update = p.parseExpression()
		if stmt.Update == nil {
			return nil
		}
	}
	p.consume(token.RPAREN, "expected ')' after for clauses")
	if p.panicMode {
		return nil
	}

	stmt.Body = p.parseLoopBody()
	if stmt.Body == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseReturnStmt() ast.Statement {
	tok := p.advance()
	if p.funcDepth == 0 {
		p.errorCode(errors.E0306, "return statement outside of function")
		p.panicMode = true
		return nil
	}
	stmt := &ast.ReturnStmt{Token: tok}
	// return 之后换行即结束
	if !p.check(token.SEMICOLON) && !p.check(token.RBRACE) && !p.isAtEnd() && !p.peek().NewlineBefore {
		stmt.Value = p.parseExpression()
		if stmt.Value == nil {
			return nil
		}
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseThrowStmt() ast.Statement {
	tok := p.advance()
	if p.peek().NewlineBefore || p.isAtEnd() {
		p.errorCode(errors.E0007, "illegal newline after throw")
		p.panicMode = true
		return nil
	}
	value := p.parseExpression()
	if value == nil {
		return nil
	}
	p.consumeSemicolon()
	return &ast.ThrowStmt{Token: tok, Value: value}
}

func (p *Parser) parseTryStmt() ast.Statement {
	tryTok := p.advance()
	stmt := &ast.TryStmt{TryToken: tryTok}
	stmt.Block = p.parseBlock()
	if stmt.Block == nil {
		return nil
	}

	if p.match(token.CATCH) {
		// 可选的 catch 绑定
		if p.match(token.LPAREN) {
			tok := p.consume(token.IDENT, "expected identifier in catch clause")
			if p.panicMode {
				return nil
			}
			stmt.Param = &ast.Identifier{Token: tok, Name: tok.Literal}
			p.consume(token.RPAREN, "expected ')' after catch parameter")
			if p.panicMode {
				return nil
			}
		}
		stmt.Handler = p.parseBlock()
		if stmt.Handler == nil {
			return nil
		}
	}
	if p.match(token.FINALLY) {
		stmt.Finalizer = p.parseBlock()
		if stmt.Finalizer == nil {
			return nil
		}
	}
	if stmt.Handler == nil && stmt.Finalizer == nil {
		p.errorCode(errors.E0006, "missing catch or finally after try")
		p.panicMode = true
		return nil
	}
	return stmt
}
