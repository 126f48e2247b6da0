// Package literal 解析严格 JSON 字面量以及 JSONP 形式的程序
// （var a = {...}; a.b[0] = [...]; cb({...});），供执行入口绕过完整编译。
package literal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Kind 字面量值类别
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Member 对象成员，按源码顺序保存（重复键由使用方按赋值语义处理）
type Member struct {
	Key   string
	Value *Value
}

// Value 解析出的字面量
type Value struct {
	Kind     Kind
	Bool     bool
	Number   float64
	Str      string
	Elements []*Value
	Members  []Member
}

// SyntaxError JSON 语法错误
type SyntaxError struct {
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("JSON Parse error: %s (at offset %d)", e.Message, e.Offset)
}

// maxDepth 嵌套上限
const maxDepth = 512

// ============================================================================
// 词法
// ============================================================================

type tokenType int

const (
	tokError tokenType = iota
	tokEnd
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokColon
	tokComma
	tokDot
	tokAssign
	tokSemi
	tokString
	tokNumber
	tokIdentifier
)

type lexToken struct {
	typ   tokenType
	start int
	str   string
	num   float64
}

type lexer struct {
	src  string
	pos  int
	tok  lexToken
	err  *SyntaxError
	idOK bool // JSONP 路径允许标识符
}

func (l *lexer) fail(msg string) tokenType {
	if l.err == nil {
		l.err = &SyntaxError{Offset: l.pos, Message: msg}
	}
	l.tok = lexToken{typ: tokError, start: l.pos}
	return tokError
}

func (l *lexer) next() tokenType {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
			continue
		}
		break
	}
	start := l.pos
	if l.pos >= len(l.src) {
		l.tok = lexToken{typ: tokEnd, start: start}
		return tokEnd
	}

	single := func(t tokenType) tokenType {
		l.pos++
		l.tok = lexToken{typ: t, start: start}
		return t
	}

	ch := l.src[l.pos]
	switch ch {
	case '[':
		return single(tokLBracket)
	case ']':
		return single(tokRBracket)
	case '{':
		return single(tokLBrace)
	case '}':
		return single(tokRBrace)
	case '(':
		return single(tokLParen)
	case ')':
		return single(tokRParen)
	case ':':
		return single(tokColon)
	case ',':
		return single(tokComma)
	case '.':
		return single(tokDot)
	case '=':
		return single(tokAssign)
	case ';':
		return single(tokSemi)
	case '"':
		return l.lexString()
	}
	if ch == '-' || (ch >= '0' && ch <= '9') {
		return l.lexNumber()
	}
	if isIdentStart(ch) {
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		l.tok = lexToken{typ: tokIdentifier, start: start, str: l.src[start:l.pos]}
		return tokIdentifier
	}
	return l.fail(fmt.Sprintf("Unrecognized token '%c'", ch))
}

func (l *lexer) lexString() tokenType {
	start := l.pos
	l.pos++ // "
	var sb *strings.Builder
	runStart := l.pos
	for {
		if l.pos >= len(l.src) {
			return l.fail("Unterminated string")
		}
		ch := l.src[l.pos]
		switch {
		case ch == '"':
			var s string
			if sb == nil {
				s = l.src[runStart:l.pos]
			} else {
				sb.WriteString(l.src[runStart:l.pos])
				s = sb.String()
			}
			l.pos++
			l.tok = lexToken{typ: tokString, start: start, str: s}
			return tokString
		case ch < 0x20:
			return l.fail("Invalid character in string")
		case ch == '\\':
			if sb == nil {
				sb = &strings.Builder{}
			}
			sb.WriteString(l.src[runStart:l.pos])
			l.pos++
			if !l.lexEscape(sb) {
				return tokError
			}
			runStart = l.pos
		default:
			l.pos++
		}
	}
}

func (l *lexer) lexEscape(sb *strings.Builder) bool {
	if l.pos >= len(l.src) {
		l.fail("Unterminated string")
		return false
	}
	ch := l.src[l.pos]
	l.pos++
	switch ch {
	case '"', '\\', '/':
		sb.WriteByte(ch)
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'u':
		r, ok := l.hex4()
		if !ok {
			l.fail("Invalid unicode escape")
			return false
		}
		if utf16.IsSurrogate(r) {
			// 代理对
			save := l.pos
			if l.pos+1 < len(l.src) && l.src[l.pos] == '\\' && l.src[l.pos+1] == 'u' {
				l.pos += 2
				if lo, ok := l.hex4(); ok {
					if combined := utf16.DecodeRune(r, lo); combined != utf8.RuneError {
						sb.WriteRune(combined)
						return true
					}
				}
			}
			l.pos = save
			r = utf8.RuneError
		}
		sb.WriteRune(r)
	default:
		l.fail(fmt.Sprintf("Invalid escape character %c", ch))
		return false
	}
	return true
}

func (l *lexer) hex4() (rune, bool) {
	if l.pos+4 > len(l.src) {
		return 0, false
	}
	n, err := strconv.ParseUint(l.src[l.pos:l.pos+4], 16, 32)
	if err != nil {
		return 0, false
	}
	l.pos += 4
	return rune(n), true
}

func (l *lexer) lexNumber() tokenType {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	switch {
	case l.pos < len(l.src) && l.src[l.pos] == '0':
		l.pos++
	case l.pos < len(l.src) && l.src[l.pos] >= '1' && l.src[l.pos] <= '9':
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	default:
		return l.fail("Invalid number")
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		if l.pos >= len(l.src) || !isDigit(l.src[l.pos]) {
			return l.fail("Invalid digits after decimal point")
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.src) || !isDigit(l.src[l.pos]) {
			return l.fail("Exponent symbols should be followed by an optional '+' or '-' and then by at least one number")
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	n, err := strconv.ParseFloat(l.src[start:l.pos], 64)
	if err != nil && !math.IsInf(n, 0) {
		return l.fail("Invalid number")
	}
	l.tok = lexToken{typ: tokNumber, start: start, num: n}
	return tokNumber
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '$'
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }

// ============================================================================
// 解析
// ============================================================================

type parser struct {
	lex   lexer
	depth int
}

// parseValue 从当前 token 开始解析一个值，结束时当前 token 为值之后的 token
func (p *parser) parseValue() (*Value, bool) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		p.lex.fail("Exceeded maximum nesting depth")
		return nil, false
	}

	tok := p.lex.tok
	switch tok.typ {
	case tokString:
		p.lex.next()
		return &Value{Kind: String, Str: tok.str}, true
	case tokNumber:
		p.lex.next()
		return &Value{Kind: Number, Number: tok.num}, true
	case tokIdentifier:
		var v *Value
		switch tok.str {
		case "true":
			v = &Value{Kind: Bool, Bool: true}
		case "false":
			v = &Value{Kind: Bool}
		case "null":
			v = &Value{Kind: Null}
		default:
			p.lex.fail(fmt.Sprintf("Unexpected identifier \"%s\"", tok.str))
			return nil, false
		}
		p.lex.next()
		return v, true
	case tokLBracket:
		arr := &Value{Kind: Array}
		if p.lex.next() == tokRBracket {
			p.lex.next()
			return arr, true
		}
		for {
			elem, ok := p.parseValue()
			if !ok {
				return nil, false
			}
			arr.Elements = append(arr.Elements, elem)
			switch p.lex.tok.typ {
			case tokComma:
				p.lex.next()
			case tokRBracket:
				p.lex.next()
				return arr, true
			default:
				p.lex.fail("Expected ']'")
				return nil, false
			}
		}
	case tokLBrace:
		obj := &Value{Kind: Object}
		if p.lex.next() == tokRBrace {
			p.lex.next()
			return obj, true
		}
		for {
			if p.lex.tok.typ != tokString {
				p.lex.fail("Property name must be a string literal")
				return nil, false
			}
			key := p.lex.tok.str
			if p.lex.next() != tokColon {
				p.lex.fail("Expected ':' before value in object property definition")
				return nil, false
			}
			p.lex.next()
			val, ok := p.parseValue()
			if !ok {
				return nil, false
			}
			obj.Members = append(obj.Members, Member{Key: key, Value: val})
			switch p.lex.tok.typ {
			case tokComma:
				p.lex.next()
			case tokRBrace:
				p.lex.next()
				return obj, true
			default:
				p.lex.fail("Expected '}'")
				return nil, false
			}
		}
	case tokEnd:
		p.lex.fail("Unexpected EOF")
	default:
		if p.lex.err == nil {
			p.lex.fail("Unexpected token")
		}
	}
	return nil, false
}

// ParseJSON 解析严格 JSON 文本
func ParseJSON(text string) (*Value, error) {
	p := &parser{lex: lexer{src: text}}
	p.lex.next()
	v, ok := p.parseValue()
	if ok && p.lex.tok.typ != tokEnd {
		p.lex.fail("Unexpected content at end of JSON literal")
		ok = false
	}
	if !ok {
		return nil, p.lex.err
	}
	return v, nil
}
