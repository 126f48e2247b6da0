package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	cerrors "github.com/tangzhangming/wkcjs/internal/errors"
)

func compileProgram(t *testing.T, src string) *bytecode.CodeBlock {
	t.Helper()
	cb, err := NewGenerator().CompileProgram(bytecode.NewSourceCode("test.js", src), bytecode.CompileOptions{})
	require.NoError(t, err)
	return cb
}

func compileFunction(t *testing.T, parent *bytecode.CodeBlock, idx int, kind bytecode.CodeSpecializationKind) *bytecode.CodeBlock {
	t.Helper()
	cb, err := parent.Functions[idx].Prepare(NewGenerator(), kind, bytecode.CompileOptions{})
	require.NoError(t, err)
	return cb
}

// ops 按顺序解出的操作码
func ops(cb *bytecode.CodeBlock) []bytecode.OpCode {
	var out []bytecode.OpCode
	code := cb.Chunk.Code
	for ip := 0; ip < len(code); {
		op := bytecode.OpCode(code[ip])
		out = append(out, op)
		ip += op.Size()
	}
	return out
}

func compileCode(err error) string {
	var list cerrors.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Code
	}
	return ""
}

func TestProgramDeclarations(t *testing.T) {
	cb := compileProgram(t, `
var a = 1;
let b = 2;
const c = 3;
function f() {}
if (a) { var d; }
`)
	assert.Equal(t, []string{"a", "d"}, cb.Decls.VarNames)
	assert.Equal(t, []bytecode.LexicalDecl{{Name: "b"}, {Name: "c", Const: true}}, cb.Decls.Lexicals)
	require.Len(t, cb.Decls.Functions, 1)
	assert.Equal(t, "f", cb.Decls.Functions[0].Name)
	assert.Equal(t, "f", cb.Functions[cb.Decls.Functions[0].Index].Name)
	assert.Equal(t, bytecode.OpEnd, ops(cb)[len(ops(cb))-1])
}

func TestDuplicateDeclarations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"let twice", "let x; let x;"},
		{"let and var", "let x; var x;"},
		{"var in nested block", "let x; { var x; }"},
		{"let and function", "let f; function f() {}"},
		{"block let and function", "{ let y; function y() {} }"},
		{"catch parameter", "try {} catch (e) { let e; }"},
		{"for let and body var", "for (let i = 0; i < 1; i++) { var i; }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator().CompileProgram(bytecode.NewSourceCode("dup.js", tt.src), bytecode.CompileOptions{})
			require.Error(t, err)
			assert.Equal(t, cerrors.E0101, compileCode(err))
		})
	}
}

func TestBlockFunctionsMayRepeat(t *testing.T) {
	cb := compileProgram(t, "{ function g() { return 1; } function g() { return 2; } }")
	require.Len(t, cb.ScopeTemplates, 1)
	assert.Equal(t, []string{"g"}, cb.ScopeTemplates[0].Names)
}

func TestParameterShadowedByLet(t *testing.T) {
	cb := compileProgram(t, "function f(a) { let a = 1; }")
	_, err := cb.Functions[0].Prepare(NewGenerator(), bytecode.SpecializeCall, bytecode.CompileOptions{})
	require.Error(t, err)
	assert.Equal(t, cerrors.E0101, compileCode(err))
}

func TestCompletionValues(t *testing.T) {
	cb := compileProgram(t, "1; var x = 2; x;")
	count := 0
	for _, op := range ops(cb) {
		if op == bytecode.OpSetCompletion {
			count++
		}
	}
	assert.Equal(t, 2, count)

	fn := compileFunction(t, compileProgram(t, "function f() { 1; }"), 0, bytecode.SpecializeCall)
	assert.NotContains(t, ops(fn), bytecode.OpSetCompletion)
}

func TestTryCatchHandler(t *testing.T) {
	cb := compileProgram(t, "try { a(); } catch (e) { b(e); }")
	require.Len(t, cb.Handlers, 1)
	h := cb.Handlers[0]
	assert.Equal(t, bytecode.HandlerCatch, h.Kind)
	assert.Equal(t, 0, h.ScopeDepth)
	assert.Equal(t, 0, h.StackDepth)
	assert.Equal(t, bytecode.OpCatch, bytecode.OpCode(cb.Chunk.Code[h.Target]))
	assert.Contains(t, ops(cb), bytecode.OpPushCatchScope)
}

func TestTryFinallyRethrows(t *testing.T) {
	cb := compileProgram(t, "try { a(); } catch (e) { b(); } finally { c(); }")
	require.Len(t, cb.Handlers, 2)
	assert.Equal(t, bytecode.HandlerCatch, cb.Handlers[0].Kind)
	assert.Equal(t, bytecode.HandlerFinally, cb.Handlers[1].Kind)

	// finally 的范围覆盖 try 块和 catch 块
	assert.Less(t, cb.Handlers[0].End, cb.Handlers[1].End)
	assert.Equal(t, cb.Handlers[0].Start, cb.Handlers[1].Start)

	seq := ops(cb)
	assert.Equal(t, bytecode.OpRethrow, seq[len(seq)-2], "exception path ends with RETHROW before END")
}

func TestBreakThroughFinallySplitsRange(t *testing.T) {
	cb := compileProgram(t, `
while (true) {
  try {
    a();
    if (c) break;
    b();
  } finally {
    g();
  }
}`)
	require.Len(t, cb.Handlers, 2)
	first, second := cb.Handlers[0], cb.Handlers[1]
	assert.Equal(t, first.Target, second.Target)
	assert.Less(t, first.End, second.Start, "inlined finally copy is not protected")
	for _, h := range cb.Handlers {
		assert.Equal(t, bytecode.HandlerFinally, h.Kind)
	}
}

func TestHandlerDepthInsideBlock(t *testing.T) {
	cb := compileProgram(t, "{ let a = 1; try { a(); } catch (e) {} }")
	require.Len(t, cb.Handlers, 1)
	assert.Equal(t, 1, cb.Handlers[0].ScopeDepth)
}

func TestConstructPrologue(t *testing.T) {
	prog := compileProgram(t, "function P(x) { this.x = x; }")
	call := compileFunction(t, prog, 0, bytecode.SpecializeCall)
	construct := compileFunction(t, prog, 0, bytecode.SpecializeConstruct)

	assert.NotEqual(t, bytecode.OpCreateThis, ops(call)[0])
	assert.Equal(t, bytecode.OpCreateThis, ops(construct)[0])
	assert.Equal(t, 1, construct.NumParameters)
	assert.Equal(t, []string{"x"}, construct.ParamNames)
}

func TestUsesArguments(t *testing.T) {
	prog := compileProgram(t, `
function f() { return arguments.length; }
function g() { function h() { return arguments; } return h; }`)
	assert.True(t, compileFunction(t, prog, 0, bytecode.SpecializeCall).UsesArguments)
	assert.False(t, compileFunction(t, prog, 1, bytecode.SpecializeCall).UsesArguments)
}

func TestSpreadCalls(t *testing.T) {
	prog := compileProgram(t, `
function fwd() { return g(...arguments); }
function mixed(xs) { return g(1, 2, ...xs); }
function shadowed(arguments) { return g(...arguments); }
new C(...list);`)
	assert.Contains(t, ops(compileFunction(t, prog, 0, bytecode.SpecializeCall)), bytecode.OpCallForwardArguments)

	mixed := ops(compileFunction(t, prog, 1, bytecode.SpecializeCall))
	assert.Contains(t, mixed, bytecode.OpSpread)
	assert.Contains(t, mixed, bytecode.OpCallVarargs)

	shadowed := ops(compileFunction(t, prog, 2, bytecode.SpecializeCall))
	assert.NotContains(t, shadowed, bytecode.OpCallForwardArguments)
	assert.Contains(t, ops(prog), bytecode.OpNewVarargs)
}

func TestVarargsOperandCountsFixedArguments(t *testing.T) {
	cb := compileProgram(t, "g(1, 2, ...xs);")
	code := cb.Chunk.Code
	for ip := 0; ip < len(code); {
		op := bytecode.OpCode(code[ip])
		if op == bytecode.OpCallVarargs {
			assert.Equal(t, uint16(2), cb.Chunk.ReadU16(ip+1))
			return
		}
		ip += op.Size()
	}
	t.Fatal("CALL_VARARGS not emitted")
}

func TestDirectEval(t *testing.T) {
	cb := compileProgram(t, "eval('1'); (0, eval)('2');")
	seq := ops(cb)
	assert.Contains(t, seq, bytecode.OpCallEval)
	evals := 0
	for _, op := range seq {
		if op == bytecode.OpCallEval {
			evals++
		}
	}
	assert.Equal(t, 1, evals, "only the bare identifier form is a direct eval")
}

func TestDebugHooks(t *testing.T) {
	src := bytecode.NewSourceCode("dbg.js", "var a = 1;\ndebugger;")
	plain, err := NewGenerator().CompileProgram(src, bytecode.CompileOptions{})
	require.NoError(t, err)
	hooked, err := NewGenerator().CompileProgram(src, bytecode.CompileOptions{DebugHooks: true})
	require.NoError(t, err)

	count := func(cb *bytecode.CodeBlock) int {
		n := 0
		for _, op := range ops(cb) {
			if op == bytecode.OpDebugHook {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, count(plain), "debugger statement always reports the breakpoint")
	// willExecuteProgram + 两条语句 + breakpoint + didExecuteProgram
	assert.Equal(t, 5, count(hooked))
	assert.True(t, hooked.NeedsDebugHooks)
}

func TestModuleResumeAndAwait(t *testing.T) {
	g := NewGenerator()
	cb, err := g.CompileModule(bytecode.NewSourceCode("m.js", "let v = await load(); v;"), bytecode.CompileOptions{})
	require.NoError(t, err)
	seq := ops(cb)
	assert.Equal(t, bytecode.OpResumeModule, seq[0])
	assert.Contains(t, seq, bytecode.OpAwait)
	assert.True(t, cb.Strict)
}

func TestEvalInheritsStrictness(t *testing.T) {
	cb, err := NewGenerator().CompileEval(bytecode.NewSourceCode("eval", "var x = 1; x"), bytecode.CompileOptions{Strict: true})
	require.NoError(t, err)
	assert.True(t, cb.Strict)
	assert.Equal(t, bytecode.EvalCode, cb.Type)
	assert.Equal(t, []string{"x"}, cb.Decls.VarNames)
}

func TestFunctionNameInference(t *testing.T) {
	cb := compileProgram(t, "var f = function () {}; let o = { m: function () {} }; h = function named() {};")
	require.Len(t, cb.Functions, 3)
	assert.Equal(t, "f", cb.Functions[0].Name)
	assert.Equal(t, "m", cb.Functions[1].Name)
	assert.Equal(t, "named", cb.Functions[2].Name)
	assert.True(t, cb.Functions[2].IsExpression)
	assert.False(t, cb.Functions[0].IsExpression)
}

func TestSourceText(t *testing.T) {
	cb := compileProgram(t, "var f = function (a, b) { return a + b; };")
	assert.Equal(t, "function (a, b) { return a + b; }", SourceText(cb.Functions[0]))
}

func TestParseErrorsPropagate(t *testing.T) {
	_, err := NewGenerator().CompileProgram(bytecode.NewSourceCode("bad.js", "var = ;"), bytecode.CompileOptions{})
	require.Error(t, err)
	var list cerrors.ErrorList
	assert.True(t, errors.As(err, &list))
}
