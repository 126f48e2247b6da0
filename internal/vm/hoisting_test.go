package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

func TestGlobalDeclarations(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, "var a = 1; let b = 2; const c = 3; function f() { return b + c; }")

	p, ok := vm.Global().GetOwn("a")
	require.True(t, ok)
	assert.False(t, p.Configurable(), "var is not deletable")
	assert.True(t, p.Writable())
	assert.True(t, vm.Global().HasOwn("f"))
	assert.False(t, vm.Global().HasOwn("b"), "let lives in the global lexical scope")

	b, ok := vm.GlobalScope().Own("b")
	require.True(t, ok)
	assert.Equal(t, float64(2), b.Value.AsNumber())

	assert.Equal(t, float64(5), run(t, vm, "f();").AsNumber())
}

func TestGlobalDeclarationConflictsAreAllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		prep string
		src  string
		err  string
	}{
		{"let over let", "let x = 1;", "var fresh = 1; let x = 2;", SyntaxErrorName},
		{"var over let", "let x = 1;", "var fresh = 1; var x;", SyntaxErrorName},
		{"function over let", "let x = 1;", "var fresh = 1; function x() {}", SyntaxErrorName},
		{"let over non-configurable", "var x = 1;", "var fresh = 1; let x = 2;", SyntaxErrorName},
		{"let over builtin", "", "var fresh = 1; let undefined = 2;", SyntaxErrorName},
		{"function over readonly", "", "var fresh = 1; function NaN() {}", TypeErrorName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			if tt.prep != "" {
				run(t, vm, tt.prep)
			}
			err := runErr(t, vm, tt.src)
			assert.Equal(t, tt.err, ErrorNameOf(err))
			assert.False(t, vm.Global().HasOwn("fresh"), "no declaration is committed")
			_, ok := vm.GlobalScope().Own("fresh")
			assert.False(t, ok)
		})
	}
}

func TestLexicalTDZ(t *testing.T) {
	vm := newTestVM(t)
	err := runErr(t, vm, "function early() { return late; } early(); let late = 1;")
	assert.Equal(t, ReferenceErrorName, ErrorNameOf(err))

	// 死区里的绑定已经登记，不能再次声明
	err = runErr(t, vm, "let late = 2;")
	assert.Equal(t, SyntaxErrorName, ErrorNameOf(err))
}

func TestNonExtensibleGlobal(t *testing.T) {
	vm := newTestVM(t)
	vm.Global().Extensible = false
	err := runErr(t, vm, "var brandNew;")
	assert.Equal(t, TypeErrorName, ErrorNameOf(err))

	err = runErr(t, vm, "function brandNewFn() {}")
	assert.Equal(t, TypeErrorName, ErrorNameOf(err))
}

func TestEvalVarConflictsWithGlobalLet(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, "let x = 5; var sideEffect = 0;")

	err := runErr(t, vm, `function g() { return (0, eval)("sideEffect = 1; var x = 1; x"); } g();`)
	assert.Equal(t, SyntaxErrorName, ErrorNameOf(err))

	assert.False(t, vm.Global().HasOwn("x"), "no global var is created")
	b, ok := vm.GlobalScope().Own("x")
	require.True(t, ok)
	assert.Equal(t, float64(5), b.Value.AsNumber(), "the let binding is not mutated")
	assert.Equal(t, float64(0), global(t, vm, "sideEffect").AsNumber(), "eval body never runs")
}

func TestDirectEvalAtGlobalScopeConflicts(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, "let y = 1;")
	err := runErr(t, vm, `eval("var y = 2;");`)
	assert.Equal(t, SyntaxErrorName, ErrorNameOf(err))
	assert.Equal(t, float64(1), run(t, vm, "y;").AsNumber())
}

func TestDirectEvalInFunction(t *testing.T) {
	vm := newTestVM(t)
	run(t, vm, "let x = 5;")

	// 函数作用域是 var 作用域，与全局 let 不冲突
	v := run(t, vm, `function h() { eval("var x = 1;"); return x; } h();`)
	assert.Equal(t, float64(1), v.AsNumber())
	assert.False(t, vm.Global().HasOwn("x"))

	v = run(t, vm, `function k(a) { return eval("a * 2"); } k(21);`)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestStrictEvalKeepsVarsLocal(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `function s() { "use strict"; eval("var inner = 3;"); return typeof inner; } s();`)
	assert.Equal(t, "undefined", v.AsString())
	assert.False(t, vm.Global().HasOwn("inner"))
}

func TestIndirectEvalCreatesDeletableGlobals(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, `(0, eval)("var fromEval = 7; function fe() { return fromEval; }"); fe();`)
	assert.Equal(t, float64(7), v.AsNumber())

	p, ok := vm.Global().GetOwn("fromEval")
	require.True(t, ok)
	assert.True(t, p.Configurable())
}

func TestEvalNonString(t *testing.T) {
	vm := newTestVM(t)
	v := run(t, vm, "eval(42);")
	assert.True(t, bytecode.NewNumber(42).StrictEquals(v))
}
