package parser

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/ast"
	"github.com/tangzhangming/wkcjs/internal/errors"
)

func mustParse(t *testing.T, src string, mode Mode) *ast.Program {
	t.Helper()
	prog, err := Parse(src, "test.js", mode, false)
	require.NoError(t, err)
	return prog
}

func TestParseExpressionPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`1 + 2 * 3;`, `(1 + (2 * 3));`},
		{`a = b = c;`, `(a = (b = c));`},
		{`-a.b;`, `(-a.b);`},
		{`typeof x === "u";`, `((typeof x) === "u");`},
		{`a ? b : c ? d : e;`, `(a ? b : (c ? d : e));`},
		{`f(1, ...xs);`, `f(1, ...xs);`},
		{`new a.B(1).c;`, `new a.B(1).c;`},
		{`x++ + ++y;`, `((x++) + (++y));`},
		{`a || b && c;`, `(a || (b && c));`},
		{`a, b;`, `(a, b);`},
		{`o[k] += 2;`, `(o[k] += 2);`},
		{`(1 + 2) * 3;`, `((1 + 2) * 3);`},
		{`a.catch.new;`, `a.catch.new;`},
	}

	for _, tt := range tests {
		prog := mustParse(t, tt.input, ModeScript)
		require.Len(t, prog.Body, 1, tt.input)
		assert.Equal(t, tt.expected, prog.Body[0].String(), tt.input)
	}
}

func TestParseAutomaticSemicolonInsertion(t *testing.T) {
	prog := mustParse(t, "var a = 1\nvar b = 2\na\n++b", ModeScript)

	want := []string{"var a = 1;", "var b = 2;", "a;", "(++b);"}
	require.Len(t, prog.Body, len(want))
	for i, s := range prog.Body {
		assert.Equal(t, want[i], s.String())
	}
}

func TestParseRestrictedReturn(t *testing.T) {
	prog := mustParse(t, "function f() { return\n1 }", ModeScript)
	fn := prog.Body[0].(*ast.FunctionDecl).Func
	require.Len(t, fn.Body.Body, 2)

	ret, ok := fn.Body.Body[0].(*ast.ReturnStmt)
	require.True(t, ok)
	assert.Nil(t, ret.Value)
}

func TestParseStrictDirectives(t *testing.T) {
	prog := mustParse(t, `"use strict"; var x;`, ModeScript)
	assert.True(t, prog.Strict)

	prog = mustParse(t, `function f() { 'use strict'; return 1 } function g() {}`, ModeScript)
	assert.False(t, prog.Strict)
	assert.True(t, prog.Body[0].(*ast.FunctionDecl).Func.Strict)
	assert.False(t, prog.Body[1].(*ast.FunctionDecl).Func.Strict)

	// 严格外层的 eval 继承严格模式
	strictEval, err := Parse(`var y = 1`, "eval", ModeEval, true)
	require.NoError(t, err)
	assert.True(t, strictEval.Strict)

	assert.True(t, mustParse(t, `var m = 1;`, ModeModule).Strict)
}

func TestParseFunctionSourceRange(t *testing.T) {
	src := `var f = function g(a) { return a };`
	prog := mustParse(t, src, ModeScript)

	decl := prog.Body[0].(*ast.VarDecl)
	fn := decl.Decls[0].Init.(*ast.FunctionLiteral)
	assert.True(t, fn.IsExpression)
	assert.Equal(t, "g", fn.Name.Name)
	assert.Equal(t, []string{"a"}, fn.ParamNames())
	assert.Equal(t, "function g(a) { return a }", src[fn.Start:fn.End])
}

func TestParseObjectLiteral(t *testing.T) {
	prog := mustParse(t, `({a: 1, "b c": 2, 3: x, if: 4, d});`, ModeScript)
	obj := prog.Body[0].(*ast.ExprStmt).Expr.(*ast.ObjectLiteral)

	keys := make([]string, len(obj.Properties))
	for i, p := range obj.Properties {
		keys[i] = p.Key
	}
	assert.Equal(t, []string{"a", "b c", "3", "if", "d"}, keys)
	assert.IsType(t, &ast.Identifier{}, obj.Properties[4].Value)
}

func TestParseStatements(t *testing.T) {
	src := `
for (let i = 0; i < 3; i++) { if (i) continue; else break }
do x--; while (x)
while (true) {}
try { a() } catch (e) { b(e) } finally { c() }
try { a() } catch { }
debugger;
;
`
	prog := mustParse(t, src, ModeScript)
	require.Len(t, prog.Body, 7)
	assert.IsType(t, &ast.ForStmt{}, prog.Body[0])
	assert.IsType(t, &ast.DoWhileStmt{}, prog.Body[1])
	assert.IsType(t, &ast.WhileStmt{}, prog.Body[2])

	try := prog.Body[3].(*ast.TryStmt)
	assert.Equal(t, "e", try.Param.Name)
	assert.NotNil(t, try.Finalizer)

	bare := prog.Body[4].(*ast.TryStmt)
	assert.Nil(t, bare.Param)
	assert.NotNil(t, bare.Handler)

	assert.IsType(t, &ast.DebuggerStmt{}, prog.Body[5])
	assert.IsType(t, &ast.EmptyStmt{}, prog.Body[6])
}

func TestParseAwait(t *testing.T) {
	prog := mustParse(t, `var v = await p;`, ModeModule)
	decl := prog.Body[0].(*ast.VarDecl)
	assert.IsType(t, &ast.AwaitExpr{}, decl.Decls[0].Init)

	// 脚本中 await 只是标识符
	prog = mustParse(t, `await;`, ModeScript)
	assert.IsType(t, &ast.Identifier{}, prog.Body[0].(*ast.ExprStmt).Expr)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		mode  Mode
		code  string
	}{
		{"a + ;", ModeScript, errors.E0007},
		{"break;", ModeScript, errors.E0304},
		{"while (1) { function f() { continue } }", ModeScript, errors.E0305},
		{"return 1", ModeScript, errors.E0306},
		{"return 1", ModeEval, errors.E0306},
		{"const x;", ModeScript, errors.E0102},
		{"1 = 2;", ModeScript, errors.E0008},
		{"\"use strict\"; eval = 1;", ModeScript, errors.E0008},
		{"f(...a, b)", ModeScript, errors.E0006},
		{"function f() { await x }", ModeModule, errors.E0307},
		{`"unterminated`, ModeScript, errors.E0003},
		{"var x = 1 var y", ModeScript, errors.E0006},
		{"throw\n1", ModeScript, errors.E0007},
		{"try {}", ModeScript, errors.E0006},
		{"x = 3in", ModeScript, errors.E0005},
	}

	for _, tt := range tests {
		_, err := Parse(tt.input, "bad.js", tt.mode, false)
		require.Error(t, err, tt.input)

		var ce *errors.CompileError
		require.True(t, stderrors.As(err, &ce), tt.input)
		assert.Equal(t, tt.code, ce.Code, "%q: %v", tt.input, err)
		assert.Equal(t, "bad.js", ce.File)
	}
}

func TestParseErrorRecoveryReportsMultiple(t *testing.T) {
	p := New("var = 1;\nvar ok = 2;\nlet = 3;", "multi.js")
	p.ParseProgram(ModeScript, false)
	assert.Len(t, p.Errors(), 2)
}
