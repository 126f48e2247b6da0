package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/segmentio/asm/ascii"

	"github.com/tangzhangming/wkcjs/internal/token"
)

// ============================================================================
// Lexer - 词法分析器
// ============================================================================
//
// 词法分析器负责将源代码字符串转换为 Token 序列。
//
// 纯 ASCII 源码（绝大多数脚本）走字节级快速路径，标识符扫描不做 UTF-8 解码。
// 每个 token 记录与前一个 token 之间是否有换行，供解析器做自动分号插入。
//
// ============================================================================

// Lexer 词法分析器结构体
type Lexer struct {
	source   string        // 源代码字符串
	filename string        // 源文件名（用于错误报告）
	tokens   []token.Token // 已扫描的 Token 列表

	start     int // 当前 Token 的起始位置（字节偏移）
	current   int // 当前扫描位置（字节偏移）
	line      int // 当前行号（从1开始）
	lineStart int // 当前行的起始偏移（用于计算列号）

	startLine   int // 当前 Token 起始行
	startColumn int // 当前 Token 起始列
	sawNewline  bool
	asciiOnly   bool

	errors []Error // 词法错误列表
}

// Error 表示词法分析错误
type Error struct {
	Pos     token.Position // 错误位置
	Message string         // 错误信息
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// ============================================================================
// 构造函数
// ============================================================================

// New 创建一个新的词法分析器
func New(source, filename string) *Lexer {
	estimatedTokens := len(source) / 5
	if estimatedTokens < 16 {
		estimatedTokens = 16
	}
	return &Lexer{
		source:    source,
		filename:  filename,
		tokens:    make([]token.Token, 0, estimatedTokens),
		line:      1,
		asciiOnly: ascii.ValidString(source),
	}
}

// ============================================================================
// 公共方法
// ============================================================================

// ScanTokens 扫描所有 tokens，最后一个 Token 总是 EOF
func (l *Lexer) ScanTokens() []token.Token {
	for !l.isAtEnd() {
		l.start = l.current
		l.startLine = l.line
		l.startColumn = l.current - l.lineStart + 1
		l.scanToken()
	}
	l.start = l.current
	l.startLine = l.line
	l.startColumn = l.current - l.lineStart + 1
	l.tokens = append(l.tokens, token.Token{
		Type:          token.EOF,
		Pos:           l.startPos(),
		NewlineBefore: l.sawNewline,
	})
	return l.tokens
}

// Errors 返回所有词法错误
func (l *Lexer) Errors() []Error {
	return l.errors
}

// HasErrors 检查是否有错误
func (l *Lexer) HasErrors() bool {
	return len(l.errors) > 0
}

// ============================================================================
// 核心扫描逻辑
// ============================================================================

func (l *Lexer) scanToken() {
	ch := l.advanceByte()

	switch ch {
	case ' ', '\t', '\r', '\v', '\f':
		l.skipWhitespace()
	case '\n':
		l.newLine()
		l.skipWhitespace()

	case '(':
		l.addToken(token.LPAREN)
	case ')':
		l.addToken(token.RPAREN)
	case '{':
		l.addToken(token.LBRACE)
	case '}':
		l.addToken(token.RBRACE)
	case '[':
		l.addToken(token.LBRACKET)
	case ']':
		l.addToken(token.RBRACKET)
	case ',':
		l.addToken(token.COMMA)
	case ';':
		l.addToken(token.SEMICOLON)
	case ':':
		l.addToken(token.COLON)
	case '?':
		l.addToken(token.QUESTION)

	case '.':
		if isDigit(l.peekByte()) {
			l.number()
		} else if l.peekByte() == '.' && l.peekNextByte() == '.' {
			l.current += 2
			l.addToken(token.ELLIPSIS)
		} else {
			l.addToken(token.DOT)
		}

	case '=':
		if l.match('=') {
			if l.match('=') {
				l.addToken(token.STRICT_EQ)
			} else {
				l.addToken(token.EQ)
			}
		} else {
			l.addToken(token.ASSIGN)
		}

	case '!':
		if l.match('=') {
			if l.match('=') {
				l.addToken(token.STRICT_NE)
			} else {
				l.addToken(token.NE)
			}
		} else {
			l.addToken(token.NOT)
		}

	case '+':
		if l.match('+') {
			l.addToken(token.INCREMENT)
		} else if l.match('=') {
			l.addToken(token.PLUS_ASSIGN)
		} else {
			l.addToken(token.PLUS)
		}

	case '-':
		if l.match('-') {
			l.addToken(token.DECREMENT)
		} else if l.match('=') {
			l.addToken(token.MINUS_ASSIGN)
		} else {
			l.addToken(token.MINUS)
		}

	case '*':
		if l.match('=') {
			l.addToken(token.STAR_ASSIGN)
		} else {
			l.addToken(token.STAR)
		}

	case '/':
		if l.match('/') {
			l.lineComment()
		} else if l.match('*') {
			l.blockComment()
		} else if l.match('=') {
			l.addToken(token.SLASH_ASSIGN)
		} else {
			l.addToken(token.SLASH)
		}

	case '%':
		if l.match('=') {
			l.addToken(token.PERCENT_ASSIGN)
		} else {
			l.addToken(token.PERCENT)
		}

	case '<':
		if l.match('=') {
			l.addToken(token.LE)
		} else {
			l.addToken(token.LT)
		}

	case '>':
		if l.match('=') {
			l.addToken(token.GE)
		} else {
			l.addToken(token.GT)
		}

	case '&':
		if l.match('&') {
			l.addToken(token.AND)
		} else {
			l.error("unexpected character '&'")
		}

	case '|':
		if l.match('|') {
			l.addToken(token.OR)
		} else {
			l.error("unexpected character '|'")
		}

	case '"', '\'':
		l.string(ch)

	default:
		switch {
		case isDigit(ch):
			l.number()
		case isIdentStart(ch):
			l.identifier()
		case ch >= utf8.RuneSelf && !l.asciiOnly:
			l.current--
			r, size := utf8.DecodeRuneInString(l.source[l.current:])
			l.current += size
			switch {
			case r == '\u2028' || r == '\u2029':
				l.newLine()
			case unicode.IsSpace(r):
			case unicode.IsLetter(r):
				l.identifier()
			default:
				l.error(fmt.Sprintf("unexpected character %q", r))
			}
		default:
			l.error(fmt.Sprintf("unexpected character %q", ch))
		}
	}
}

// ============================================================================
// 空白与注释
// ============================================================================

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		switch l.peekByte() {
		case ' ', '\t', '\r', '\v', '\f':
			l.current++
		case '\n':
			l.current++
			l.newLine()
		default:
			return
		}
	}
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peekByte() != '\n' {
		l.current++
	}
}

// blockComment 多行注释，内部的换行同样参与自动分号插入
func (l *Lexer) blockComment() {
	for !l.isAtEnd() {
		ch := l.advanceByte()
		if ch == '\n' {
			l.newLine()
			continue
		}
		if ch == '*' && l.match('/') {
			return
		}
	}
	l.error("unterminated comment")
}

// ============================================================================
// 标识符与数字
// ============================================================================

func (l *Lexer) identifier() {
	if l.asciiOnly {
		for !l.isAtEnd() && isIdentPart(l.peekByte()) {
			l.current++
		}
	} else {
		for !l.isAtEnd() {
			ch := l.peekByte()
			if ch < utf8.RuneSelf {
				if !isIdentPart(ch) {
					break
				}
				l.current++
				continue
			}
			r, size := utf8.DecodeRuneInString(l.source[l.current:])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.current += size
		}
	}
	text := l.source[l.start:l.current]
	l.addToken(token.LookupIdent(text))
}

func (l *Lexer) number() {
	// 十六进制
	if l.source[l.start] == '0' && (l.peekByte() == 'x' || l.peekByte() == 'X') {
		l.current++
		digits := l.current
		for !l.isAtEnd() && isHexDigit(l.peekByte()) {
			l.current++
		}
		if l.current == digits {
			l.error("invalid hexadecimal literal")
			return
		}
		n, err := strconv.ParseUint(l.source[digits:l.current], 16, 64)
		if err != nil {
			l.error("invalid hexadecimal literal")
			return
		}
		l.addTokenValue(token.NUMBER, float64(n))
		return
	}

	for !l.isAtEnd() && isDigit(l.peekByte()) {
		l.current++
	}
	if l.peekByte() == '.' {
		l.current++
		for !l.isAtEnd() && isDigit(l.peekByte()) {
			l.current++
		}
	}
	if ch := l.peekByte(); ch == 'e' || ch == 'E' {
		save := l.current
		l.current++
		if ch := l.peekByte(); ch == '+' || ch == '-' {
			l.current++
		}
		if !isDigit(l.peekByte()) {
			l.current = save
		} else {
			for !l.isAtEnd() && isDigit(l.peekByte()) {
				l.current++
			}
		}
	}
	if isIdentStart(l.peekByte()) {
		l.error("identifier starts immediately after numeric literal")
		return
	}

	text := l.source[l.start:l.current]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// 超出范围时 ParseFloat 返回 ±Inf 和错误，保留 Inf
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			l.error(fmt.Sprintf("invalid number %q", text))
			return
		}
	}
	l.addTokenValue(token.NUMBER, n)
}

// ============================================================================
// 字符串
// ============================================================================

func (l *Lexer) string(quote byte) {
	// 快速路径：无转义时直接切片
	for i := l.current; i < len(l.source); i++ {
		ch := l.source[i]
		if ch == quote {
			l.current = i + 1
			l.addTokenValue(token.STRING, l.source[l.start+1:i])
			return
		}
		if ch == '\\' || ch == '\n' || ch == '\r' {
			break
		}
	}

	var sb strings.Builder
	for {
		if l.isAtEnd() {
			l.error("unterminated string literal")
			return
		}
		ch := l.advanceByte()
		switch ch {
		case quote:
			l.addTokenValue(token.STRING, sb.String())
			return
		case '\n', '\r':
			l.error("unterminated string literal")
			return
		case '\\':
			if !l.escape(&sb) {
				return
			}
		default:
			sb.WriteByte(ch)
		}
	}
}

func (l *Lexer) escape(sb *strings.Builder) bool {
	if l.isAtEnd() {
		l.error("unterminated string literal")
		return false
	}
	ch := l.advanceByte()
	switch ch {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		if isDigit(l.peekByte()) {
			l.error("octal escape sequences are not allowed")
			return false
		}
		sb.WriteByte(0)
	case '\n':
		// 行延续
		l.newLine()
	case '\r':
		l.match('\n')
		l.newLine()
	case 'x':
		r, ok := l.hexDigits(2)
		if !ok {
			l.error("invalid hexadecimal escape sequence")
			return false
		}
		sb.WriteRune(r)
	case 'u':
		r, ok := l.unicodeEscape()
		if !ok {
			l.error("invalid Unicode escape sequence")
			return false
		}
		sb.WriteRune(r)
	default:
		sb.WriteByte(ch)
	}
	return true
}

func (l *Lexer) unicodeEscape() (rune, bool) {
	if !l.match('{') {
		return l.hexDigits(4)
	}
	var r rune
	digits := 0
	for !l.isAtEnd() && l.peekByte() != '}' {
		ch := l.advanceByte()
		if !isHexDigit(ch) {
			return 0, false
		}
		r = r*16 + rune(hexValue(ch))
		digits++
		if r > unicode.MaxRune {
			return 0, false
		}
	}
	if digits == 0 || !l.match('}') {
		return 0, false
	}
	return r, true
}

func (l *Lexer) hexDigits(n int) (rune, bool) {
	if l.current+n > len(l.source) {
		return 0, false
	}
	var r rune
	for i := 0; i < n; i++ {
		ch := l.source[l.current+i]
		if !isHexDigit(ch) {
			return 0, false
		}
		r = r*16 + rune(hexValue(ch))
	}
	l.current += n
	return r, true
}

// ============================================================================
// 辅助函数
// ============================================================================

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) advanceByte() byte {
	ch := l.source[l.current]
	l.current++
	return ch
}

func (l *Lexer) peekByte() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) peekNextByte() byte {
	if l.current+1 >= len(l.source) {
		return 0
	}
	return l.source[l.current+1]
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	return true
}

func (l *Lexer) newLine() {
	l.line++
	l.lineStart = l.current
	l.sawNewline = true
}

func (l *Lexer) startPos() token.Position {
	return token.Position{
		Filename: l.filename,
		Line:     l.startLine,
		Column:   l.startColumn,
		Offset:   l.start,
	}
}

func (l *Lexer) addToken(t token.TokenType) {
	l.addTokenValue(t, nil)
}

func (l *Lexer) addTokenValue(t token.TokenType, value interface{}) {
	l.tokens = append(l.tokens, token.Token{
		Type:          t,
		Literal:       l.source[l.start:l.current],
		Value:         value,
		Pos:           l.startPos(),
		NewlineBefore: l.sawNewline,
	})
	l.sawNewline = false
}

func (l *Lexer) error(msg string) {
	l.errors = append(l.errors, Error{Pos: l.startPos(), Message: msg})
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func hexValue(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	default:
		return int(ch-'A') + 10
	}
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '$'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
