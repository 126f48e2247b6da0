package lexer

import (
	"testing"

	"github.com/tangzhangming/wkcjs/internal/token"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `+ - * / % = += -= *= /= %= ++ -- == != === !== < <= > >= && || ! ( ) { } [ ] , . ; : ? ...`

	expected := []token.TokenType{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN,
		token.SLASH_ASSIGN, token.PERCENT_ASSIGN, token.INCREMENT, token.DECREMENT,
		token.EQ, token.NE, token.STRICT_EQ, token.STRICT_NE,
		token.LT, token.LE, token.GT, token.GE,
		token.AND, token.OR, token.NOT,
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.LBRACKET, token.RBRACKET,
		token.COMMA, token.DOT, token.SEMICOLON, token.COLON, token.QUESTION,
		token.ELLIPSIS,
		token.EOF,
	}

	l := New(input, "test.js")
	tokens := l.ScanTokens()

	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(expected))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token[%d] type mismatch: got %s, want %s", i, tok.Type, expected[i])
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	input := `var let const function return if else while do for break continue
	throw try catch finally new this typeof void debugger true false null await`

	expected := []token.TokenType{
		token.VAR, token.LET, token.CONST, token.FUNCTION, token.RETURN,
		token.IF, token.ELSE, token.WHILE, token.DO, token.FOR, token.BREAK, token.CONTINUE,
		token.THROW, token.TRY, token.CATCH, token.FINALLY, token.NEW, token.THIS,
		token.TYPEOF, token.VOID, token.DEBUGGER, token.TRUE, token.FALSE, token.NULL, token.AWAIT,
		token.EOF,
	}

	tokens := New(input, "test.js").ScanTokens()
	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(expected))
	}
	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token[%d]: got %s, want %s", i, tok.Type, expected[i])
		}
	}
}

func TestLexerIdentifiers(t *testing.T) {
	tests := []string{"x", "$", "_private", "$jq", "a1b2", "variable", "functional", "名字"}

	for _, src := range tests {
		tokens := New(src, "test.js").ScanTokens()
		if len(tokens) != 2 || tokens[0].Type != token.IDENT {
			t.Errorf("%q: expected single IDENT, got %v", src, tokens)
			continue
		}
		if tokens[0].Literal != src {
			t.Errorf("%q: literal = %q", src, tokens[0].Literal)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"0", 0},
		{"42", 42},
		{"3.25", 3.25},
		{".5", 0.5},
		{"1e3", 1000},
		{"2E-2", 0.02},
		{"0xff", 255},
		{"0X10", 16},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.js")
		tokens := l.ScanTokens()
		if l.HasErrors() {
			t.Errorf("%q: unexpected errors %v", tt.input, l.Errors())
			continue
		}
		if tokens[0].Type != token.NUMBER {
			t.Errorf("%q: got %s, want NUMBER", tt.input, tokens[0].Type)
			continue
		}
		if got := tokens[0].Value.(float64); got != tt.want {
			t.Errorf("%q: value = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"q\"q"`, `q"q`},
		{`'it\'s'`, "it's"},
		{`"\x41B\u{43}"`, "ABC"},
		{`"\\"`, `\`},
		{`"中文"`, "中文"},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.js")
		tokens := l.ScanTokens()
		if l.HasErrors() {
			t.Errorf("%s: unexpected errors %v", tt.input, l.Errors())
			continue
		}
		if tokens[0].Type != token.STRING {
			t.Errorf("%s: got %s, want STRING", tt.input, tokens[0].Type)
			continue
		}
		if got := tokens[0].Value.(string); got != tt.want {
			t.Errorf("%s: value = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLexerNewlineBefore(t *testing.T) {
	input := "a\nb /* x\n y */ c // tail\nd e"
	tokens := New(input, "test.js").ScanTokens()

	want := []bool{false, true, true, true, false, false}
	if len(tokens) != len(want) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.NewlineBefore != want[i] {
			t.Errorf("token[%d] %s: NewlineBefore = %v, want %v", i, tok, tok.NewlineBefore, want[i])
		}
	}
}

func TestLexerPositions(t *testing.T) {
	input := "var x\n  = 1"
	tokens := New(input, "pos.js").ScanTokens()

	assign := tokens[2]
	if assign.Type != token.ASSIGN {
		t.Fatalf("expected ASSIGN, got %s", assign.Type)
	}
	if assign.Pos.Line != 2 || assign.Pos.Column != 3 {
		t.Errorf("ASSIGN position = %s, want 2:3", assign.Pos)
	}
	if assign.Pos.Filename != "pos.js" {
		t.Errorf("filename = %q", assign.Pos.Filename)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []string{
		`"unterminated`,
		"'broken\nline'",
		"/* never closed",
		"3in",
		"0x",
		"a & b",
		"#",
		`"\u{110000}"`,
	}

	for _, src := range tests {
		l := New(src, "test.js")
		l.ScanTokens()
		if !l.HasErrors() {
			t.Errorf("%q: expected lexer error", src)
		}
	}
}
