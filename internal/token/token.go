package token

import "fmt"

// ============================================================================
// Token 类型定义
// ============================================================================
//
// TokenType 使用 iota 自动编号，按类别分组：
// 1. 特殊标记（ILLEGAL, EOF）
// 2. 字面量（标识符、数字、字符串）
// 3. 运算符
// 4. 分隔符
// 5. 关键字
//
// ============================================================================

// TokenType 表示 Token 的类型
type TokenType int

const (
	// ----------------------------------------------------------
	// 特殊标记
	// ----------------------------------------------------------
	ILLEGAL TokenType = iota // 非法字符
	EOF                      // 文件结束

	// ----------------------------------------------------------
	// 字面量
	// ----------------------------------------------------------
	IDENT  // 标识符
	NUMBER // 数字字面量
	STRING // 字符串字面量

	// ----------------------------------------------------------
	// 算术与赋值运算符
	// ----------------------------------------------------------
	PLUS           // +
	MINUS          // -
	STAR           // *
	SLASH          // /
	PERCENT        // %
	ASSIGN         // =
	PLUS_ASSIGN    // +=
	MINUS_ASSIGN   // -=
	STAR_ASSIGN    // *=
	SLASH_ASSIGN   // /=
	PERCENT_ASSIGN // %=
	INCREMENT      // ++
	DECREMENT      // --

	// ----------------------------------------------------------
	// 比较运算符
	// ----------------------------------------------------------
	EQ        // ==
	NE        // !=
	STRICT_EQ // ===
	STRICT_NE // !==
	LT        // <
	LE        // <=
	GT        // >
	GE        // >=

	// ----------------------------------------------------------
	// 逻辑运算符
	// ----------------------------------------------------------
	AND // &&
	OR  // ||
	NOT // !

	// ----------------------------------------------------------
	// 分隔符
	// ----------------------------------------------------------
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	LBRACKET  // [
	RBRACKET  // ]
	COMMA     // ,
	DOT       // .
	SEMICOLON // ;
	COLON     // :
	QUESTION  // ?
	ELLIPSIS  // ...

	keyword_beg // 关键字起始标记（不是实际 token）
	VAR         // var
	LET         // let
	CONST       // const
	FUNCTION    // function
	RETURN      // return
	IF          // if
	ELSE        // else
	WHILE       // while
	DO          // do
	FOR         // for
	BREAK       // break
	CONTINUE    // continue
	THROW       // throw
	TRY         // try
	CATCH       // catch
	FINALLY     // finally
	NEW         // new
	THIS        // this
	TYPEOF      // typeof
	VOID        // void
	DEBUGGER    // debugger
	TRUE        // true
	FALSE       // false
	NULL        // null
	AWAIT       // await（仅模块顶层）
	keyword_end // 关键字结束标记（不是实际 token）
)

var tokenNames = map[TokenType]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",

	IDENT:  "IDENT",
	NUMBER: "NUMBER",
	STRING: "STRING",

	PLUS:           "+",
	MINUS:          "-",
	STAR:           "*",
	SLASH:          "/",
	PERCENT:        "%",
	ASSIGN:         "=",
	PLUS_ASSIGN:    "+=",
	MINUS_ASSIGN:   "-=",
	STAR_ASSIGN:    "*=",
	SLASH_ASSIGN:   "/=",
	PERCENT_ASSIGN: "%=",
	INCREMENT:      "++",
	DECREMENT:      "--",

	EQ:        "==",
	NE:        "!=",
	STRICT_EQ: "===",
	STRICT_NE: "!==",
	LT:        "<",
	LE:        "<=",
	GT:        ">",
	GE:        ">=",

	AND: "&&",
	OR:  "||",
	NOT: "!",

	LPAREN:    "(",
	RPAREN:    ")",
	LBRACE:    "{",
	RBRACE:    "}",
	LBRACKET:  "[",
	RBRACKET:  "]",
	COMMA:     ",",
	DOT:       ".",
	SEMICOLON: ";",
	COLON:     ":",
	QUESTION:  "?",
	ELLIPSIS:  "...",

	VAR:      "var",
	LET:      "let",
	CONST:    "const",
	FUNCTION: "function",
	RETURN:   "return",
	IF:       "if",
	ELSE:     "else",
	WHILE:    "while",
	DO:       "do",
	FOR:      "for",
	BREAK:    "break",
	CONTINUE: "continue",
	THROW:    "throw",
	TRY:      "try",
	CATCH:    "catch",
	FINALLY:  "finally",
	NEW:      "new",
	THIS:     "this",
	TYPEOF:   "typeof",
	VOID:     "void",
	DEBUGGER: "debugger",
	TRUE:     "true",
	FALSE:    "false",
	NULL:     "null",
	AWAIT:    "await",
}

// ============================================================================
// 关键字查找表
// ============================================================================

var keywords = map[string]TokenType{
	"var":      VAR,
	"let":      LET,
	"const":    CONST,
	"function": FUNCTION,
	"return":   RETURN,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"break":    BREAK,
	"continue": CONTINUE,
	"throw":    THROW,
	"try":      TRY,
	"catch":    CATCH,
	"finally":  FINALLY,
	"new":      NEW,
	"this":     THIS,
	"typeof":   TYPEOF,
	"void":     VOID,
	"debugger": DEBUGGER,
	"true":     TRUE,
	"false":    FALSE,
	"null":     NULL,
	"await":    AWAIT,
}

// LookupIdent 查找标识符是否为关键字
//
// 长度超出关键字范围的标识符直接返回 IDENT，省去一次 map 查找。
func LookupIdent(ident string) TokenType {
	if len(ident) < 2 || len(ident) > 8 {
		return IDENT
	}
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsKeyword 判断 TokenType 是否为关键字
func IsKeyword(t TokenType) bool {
	return t > keyword_beg && t < keyword_end
}

// IsAssign 是否为赋值运算符
func IsAssign(t TokenType) bool {
	switch t {
	case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, PERCENT_ASSIGN:
		return true
	}
	return false
}

// String 返回 TokenType 的字符串表示
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// ============================================================================
// Position - 源代码位置
// ============================================================================

// Position 表示源代码中的位置
type Position struct {
	Filename string // 文件名
	Line     int    // 行号 (从1开始)
	Column   int    // 列号 (从1开始)
	Offset   int    // 字节偏移量 (从0开始)
}

// String 返回位置的字符串表示，格式为 "filename:line:column"
func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsValid 检查位置是否有效
func (p Position) IsValid() bool {
	return p.Line > 0
}

// ============================================================================
// Token - 词法单元
// ============================================================================

// Token 表示一个词法单元
type Token struct {
	Type    TokenType   // Token 类型
	Literal string      // 原始字面量
	Value   interface{} // 解析后的值 (数字为 float64，字符串为解码后的 string)
	Pos     Position    // 位置信息

	// NewlineBefore 与前一个 token 之间是否有换行（自动分号插入使用）
	NewlineBefore bool
}

// String 返回 Token 的字符串表示（用于调试）
func (t Token) String() string {
	switch t.Type {
	case IDENT, NUMBER, STRING:
		return fmt.Sprintf("%s(%s) at %s", t.Type, t.Literal, t.Pos)
	default:
		return fmt.Sprintf("%s at %s", t.Type, t.Pos)
	}
}
