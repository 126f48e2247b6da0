package runtime

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/config"
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
)

func newTestRuntime(t *testing.T, configure ...func(*config.Config)) (*Runtime, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	for _, fn := range configure {
		fn(cfg)
	}
	var out bytes.Buffer
	r, err := New(cfg, WithOutput(&out), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, &out
}

func evalString(t *testing.T, r *Runtime, src string) string {
	t.Helper()
	v, err := r.Eval(src)
	require.NoError(t, err)
	return v.AsString()
}

func TestRunCompletionValue(t *testing.T) {
	r, _ := newTestRuntime(t)

	v, err := r.Run("var a = 20; function add(x) { return a + x; } add(22);", "main.js")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v.AsNumber())

	src, ok := r.Source("main.js")
	assert.True(t, ok)
	assert.Contains(t, src, "function add")
}

func TestPrintAndConsoleLog(t *testing.T) {
	r, out := newTestRuntime(t)

	_, err := r.Eval(`
print("hello", 1, true, null);
console.log([1, 2, 3], undefined);
function named() {}
print(named, {});
`)
	require.NoError(t, err)
	assert.Equal(t, "hello 1 true null\n1,2,3 undefined\nfunction named() {} [object Object]\n", out.String())
}

func TestMathBuiltins(t *testing.T) {
	r, _ := newTestRuntime(t)

	v, err := r.Eval("Math.floor(3.7) + Math.ceil(1.2) + Math.max(1, 9, 4) + Math.min(5, -2);")
	require.NoError(t, err)
	assert.Equal(t, float64(3+2+9-2), v.AsNumber())

	v, err = r.Eval("Math.max();")
	require.NoError(t, err)
	assert.True(t, v.AsNumber() < 0)

	v, err = r.Eval("Math.min(1, 0 / 0);")
	require.NoError(t, err)
	assert.True(t, v.AsNumber() != v.AsNumber(), "NaN")
}

func TestArrayBuiltins(t *testing.T) {
	r, _ := newTestRuntime(t)

	assert.Equal(t, "2-4-6", evalString(t, r, "[1, 2, 3].map(function (x) { return x * 2; }).join('-');"))
	assert.Equal(t, "1,2,,4", evalString(t, r, "var a = [1, 2]; a.push(null, 4); a.join();"))

	v, err := r.Eval(`
var sum = 0;
var seen = "";
[5, 6, 7].forEach(function (x, i, arr) { sum += x * i; seen += arr.length; });
sum + ":" + seen;
`)
	require.NoError(t, err)
	assert.Equal(t, "20:333", v.AsString())

	v, err = r.Eval("var o = { k: 3 }; [1, 2].map(function (x) { return this.k + x; }, o).join();")
	require.NoError(t, err)
	assert.Equal(t, "4,5", v.AsString())

	_, err = r.Eval("[1].forEach(42);")
	je, ok := AsJSError(err)
	require.True(t, ok)
	assert.Equal(t, "TypeError", je.Name)
}

func TestJSONBuiltins(t *testing.T) {
	r, _ := newTestRuntime(t)

	assert.Equal(t, `{"a":[1,"x<y",null],"b":{"c":true}}`,
		evalString(t, r, `JSON.stringify({a: [1, "x<y", undefined], b: {c: true}, f: function () {}});`))
	assert.Equal(t, "3:z", evalString(t, r, `var p = JSON.parse('{"n": 3, "s": ["z"]}'); p.n + ":" + p.s[0];`))
	assert.Equal(t, "{\n  \"a\": 1\n}", evalString(t, r, `JSON.stringify({a: 1}, null, 2);`))

	_, err := r.Eval("JSON.parse('{bad');")
	je, ok := AsJSError(err)
	require.True(t, ok)
	assert.Equal(t, "SyntaxError", je.Name)

	_, err = r.Eval("var cyc = {}; cyc.self = cyc; JSON.stringify(cyc);")
	je, ok = AsJSError(err)
	require.True(t, ok)
	assert.Equal(t, "TypeError", je.Name)
}

func TestCallGlobalFunction(t *testing.T) {
	r, _ := newTestRuntime(t)

	_, err := r.Eval("function mul(a, b) { return a * b; }")
	require.NoError(t, err)

	v, err := r.Call("mul", bytecode.NewInt(6), bytecode.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, float64(42), v.AsNumber())

	_, err = r.Call("nothing")
	je, ok := AsJSError(err)
	require.True(t, ok)
	assert.Equal(t, "TypeError", je.Name)
}

func TestRunModuleResumesAwait(t *testing.T) {
	r, _ := newTestRuntime(t)

	v, err := r.RunModule("let b = await 10; let c = await 'x'; b + c;", "mod.js")
	require.NoError(t, err)
	assert.Equal(t, "10x", v.AsString())

	_, err = r.RunModule("undeclared = 1;", "strict.js")
	je, ok := AsJSError(err)
	require.True(t, ok)
	assert.Equal(t, "ReferenceError", je.Name)
}

func TestDisassemble(t *testing.T) {
	r, _ := newTestRuntime(t)

	text, err := r.Disassemble("function f() { return 1; } f();", "dis.js", false)
	require.NoError(t, err)
	assert.Contains(t, text, "f")
	assert.NotEmpty(t, text)

	_, err = r.Disassemble("let = ;", "bad.js", false)
	assert.Error(t, err)
}

func TestUncaughtErrorFormatting(t *testing.T) {
	r, _ := newTestRuntime(t, func(c *config.Config) { c.Engine.MaxFrames = 200 })

	_, err := r.Run("function boom() {\n  throw new TypeError('bad thing');\n}\nboom();", "boom.js")
	je, ok := AsJSError(err)
	require.True(t, ok)
	assert.False(t, je.IsStackOverflow())
	assert.False(t, je.IsTermination())
	assert.Equal(t, "TypeError: bad thing", je.Error())

	text := je.Format(r, false)
	assert.Contains(t, text, "Uncaught TypeError")
	assert.Contains(t, text, "bad thing")

	_, err = r.Run("function r() { return r(); } r();", "deep.js")
	je, ok = AsJSError(err)
	require.True(t, ok)
	assert.True(t, je.IsStackOverflow())
	assert.Equal(t, rterrors.R0400, je.Code)
}

func TestCompileErrorReturnsErrorList(t *testing.T) {
	r, _ := newTestRuntime(t)

	_, err := r.Run("let x = ;", "syntax.js")
	require.Error(t, err)
	var list rterrors.ErrorList
	assert.True(t, errors.As(err, &list))
	assert.NotEmpty(t, list)
	_, ok := AsJSError(err)
	assert.False(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.StackSlots = 0
	_, err := New(cfg, WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	cfg := config.Default()
	r, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}
