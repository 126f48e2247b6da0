package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

func moduleProgram(name, src string) *bytecode.ModuleProgramExecutable {
	return bytecode.NewModuleProgramExecutable(bytecode.NewSourceCode(name, src))
}

func TestModuleRunsToCompletion(t *testing.T) {
	vm := newTestVM(t)
	record := NewModuleRecord("plain")
	exe := moduleProgram("plain.js", "var a = 2; function twice(x) { return x * 2; } twice(a) + 1;")

	v, err := vm.ExecuteModuleProgram(record, exe, bytecode.Undefined, ResumeNormal)
	require.NoError(t, err)
	assert.Equal(t, float64(5), v.AsNumber())
	assert.Equal(t, ModuleEvaluated, record.Status)

	// 模块的顶层声明不在全局对象上
	assert.False(t, vm.Global().HasOwn("a"))
	b, ok := record.Scope.Own("a")
	require.True(t, ok)
	assert.Equal(t, float64(2), b.Value.AsNumber())

	// 已求值的模块不再执行
	v, err = vm.ExecuteModuleProgram(record, exe, bytecode.Undefined, ResumeNormal)
	require.NoError(t, err)
	assert.Equal(t, float64(5), v.AsNumber())
}

func TestModuleAwaitSuspendsAndResumes(t *testing.T) {
	vm := newTestVM(t)
	calls := counter(vm)
	record := NewModuleRecord("await")
	exe := moduleProgram("await.js", `
var a = 1;
bump();
let b = await 10;
var c = a + b;
let d = (await "second") + c;
bump();
d;
`)

	v, err := vm.ExecuteModuleProgram(record, exe, bytecode.Undefined, ResumeNormal)
	require.NoError(t, err)
	assert.Equal(t, float64(10), v.AsNumber())
	assert.Equal(t, ModuleSuspended, record.Status)
	assert.Equal(t, float64(10), record.Awaited.AsNumber())
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 0, vm.Depth(), "suspension pops the module frame")

	v, err = vm.ExecuteModuleProgram(record, exe, bytecode.NewInt(5), ResumeNormal)
	require.NoError(t, err)
	assert.Equal(t, "second", v.AsString())
	assert.Equal(t, ModuleSuspended, record.Status)
	assert.Equal(t, 1, *calls, "code before the await does not run again")

	v, err = vm.ExecuteModuleProgram(record, exe, bytecode.NewInt(100), ResumeNormal)
	require.NoError(t, err)
	assert.Equal(t, float64(106), v.AsNumber())
	assert.Equal(t, ModuleEvaluated, record.Status)
	assert.Equal(t, 2, *calls)

	c, ok := record.Scope.Own("c")
	require.True(t, ok)
	assert.Equal(t, float64(6), c.Value.AsNumber())
}

func TestModuleResumeThrow(t *testing.T) {
	vm := newTestVM(t)
	exe := moduleProgram("throw.js", `
var caught = "none";
try { await 1; } catch (e) { caught = e; }
caught;
`)

	record := NewModuleRecord("caught")
	_, err := vm.ExecuteModuleProgram(record, exe, bytecode.Undefined, ResumeNormal)
	require.NoError(t, err)
	v, err := vm.ExecuteModuleProgram(record, exe, bytecode.NewString("rejected"), ResumeThrow)
	require.NoError(t, err)
	assert.Equal(t, "rejected", v.AsString())
	assert.Equal(t, ModuleEvaluated, record.Status)

	uncaught := NewModuleRecord("uncaught")
	exe = moduleProgram("uncaught.js", "await 1; 2;")
	_, err = vm.ExecuteModuleProgram(uncaught, exe, bytecode.Undefined, ResumeNormal)
	require.NoError(t, err)
	_, err = vm.ExecuteModuleProgram(uncaught, exe, bytecode.NewString("boom"), ResumeThrow)
	require.Error(t, err)
	assert.Equal(t, ModuleErrored, uncaught.Status)
	assert.Nil(t, vm.Exception())

	// 失败的模块重复返回同一个错误
	_, again := vm.ExecuteModuleProgram(uncaught, exe, bytecode.Undefined, ResumeNormal)
	assert.Equal(t, err, again)
}

func TestModuleErrors(t *testing.T) {
	vm := newTestVM(t)

	record := NewModuleRecord("syntax")
	_, err := vm.ExecuteModuleProgram(record, moduleProgram("syntax.js", "let x = ;"), bytecode.Undefined, ResumeNormal)
	require.Error(t, err)
	assert.Equal(t, SyntaxErrorName, ErrorNameOf(err))
	assert.Equal(t, ModuleErrored, record.Status)

	record = NewModuleRecord("strict")
	_, err = vm.ExecuteModuleProgram(record, moduleProgram("strict.js", "undeclared = 1;"), bytecode.Undefined, ResumeNormal)
	assert.Equal(t, ReferenceErrorName, ErrorNameOf(err), "module code is strict")
	assert.False(t, vm.Global().HasOwn("undeclared"))
}

func TestModuleStatusString(t *testing.T) {
	assert.Equal(t, "suspended", ModuleSuspended.String())
	assert.Equal(t, "errored", ModuleErrored.String())
}
