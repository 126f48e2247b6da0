package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

func jsonpPair(t *testing.T) (on, off *VM) {
	on = newTestVM(t)
	off = newTestVM(t, func(o *Options) { o.Config.JSONP = false })
	return on, off
}

func sameResult(t *testing.T, want, got bytecode.Value) {
	t.Helper()
	if want.IsObject() {
		assert.True(t, got.IsObject(), "want object, got %s", got)
		return
	}
	assert.True(t, want.StrictEquals(got) || (want.IsUndefined() && got.IsUndefined()), "want %s, got %s", want, got)
}

func TestJSONPMatchesFullCompile(t *testing.T) {
	tests := []struct {
		name  string
		prep  string
		src   string
		probe string
	}{
		{"declare var", "", `var data = {"a": 1, "b": [1, 2, 3]};`, "data.a + data.b[2]"},
		{"member path", "var ns = {inner: {}};", `ns.inner.x = {"v": 7}; ns["inner"].y = [8];`, "ns.inner.x.v + ns.inner.y[0]"},
		{"call", "var got; function cb(v) { got = v; return v.n * 2; }", `cb({"n": 21});`, "got.n"},
		{"member call", "var api = {seen: 0, load: function (v) { this.seen = v.length; return this.seen; }};", `api.load([1, 2, 3]);`, "api.seen"},
		{"index", "var arr = [0, 0];", `arr[1] = "x";`, "arr[1]"},
		{"global lexical", "let lex = 0;", `lex = [1, 2];`, "lex[1]"},
		{"duplicate keys", "", `var dup = {"k": 1, "k": 2};`, "dup.k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			on, off := jsonpPair(t)
			if tt.prep != "" {
				run(t, on, tt.prep)
				run(t, off, tt.prep)
			}

			fast := run(t, on, tt.src)
			reached, outcome := on.LastEntry()
			assert.Equal(t, StateCompiled, reached, "no bytecode is generated")
			assert.Equal(t, StateReturned, outcome)
			assert.True(t, on.LastEntryUsedJSONP())

			full := run(t, off, tt.src)
			reached, _ = off.LastEntry()
			assert.Equal(t, StateExecuting, reached)
			assert.False(t, off.LastEntryUsedJSONP())

			sameResult(t, full, fast)
			sameResult(t, run(t, off, tt.probe), run(t, on, tt.probe))
		})
	}
}

func TestJSONPFallsBackOnFirstEntry(t *testing.T) {
	vm := newTestVM(t)

	// 全局上没有 missing，按普通程序执行，非严格赋值创建全局属性
	run(t, vm, `missing = {"k": 1};`)
	reached, _ := vm.LastEntry()
	assert.Equal(t, StateExecuting, reached)
	assert.False(t, vm.LastEntryUsedJSONP())
	assert.Equal(t, float64(1), run(t, vm, "missing.k").AsNumber())

	// 与全局 let 冲突的 var 不在快速路径上报告
	run(t, vm, "let taken = 1;")
	err := runErr(t, vm, `var taken = [1];`)
	assert.Equal(t, SyntaxErrorName, ErrorNameOf(err))
	reached, _ = vm.LastEntry()
	assert.Equal(t, StateCompiled, reached, "full compile succeeded, hoisting failed")
	assert.False(t, vm.LastEntryUsedJSONP())

	run(t, vm, `var fresh = [1];`)
	assert.True(t, vm.LastEntryUsedJSONP())
}

func TestJSONPErrorsMatchFullCompile(t *testing.T) {
	tests := []struct {
		name  string
		prep  string
		src   string
		err   string
		probe string
		want  float64
	}{
		{"later entry root missing", "var a = {};", `a.x = 1; b.y = 2;`, ReferenceErrorName, "a.x", 1},
		{"const", "const k = 1;", `k = [1];`, TypeErrorName, "k", 1},
		{"not a function", "var notFn = 5;", `notFn({});`, TypeErrorName, "notFn", 5},
		{"member of undefined", "var u = {};", `u.missing.x = 1;`, TypeErrorName, "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			on, off := jsonpPair(t)
			for _, vm := range []*VM{on, off} {
				run(t, vm, tt.prep)
				err := runErr(t, vm, tt.src)
				assert.Equal(t, tt.err, ErrorNameOf(err))
				assert.Equal(t, tt.want, run(t, vm, tt.probe).AsNumber())
			}
		})
	}
}

func TestJSONPDisabled(t *testing.T) {
	vm := newTestVM(t, func(o *Options) { o.Config.JSONP = false })
	run(t, vm, `var disabled = [1];`)
	reached, _ := vm.LastEntry()
	assert.Equal(t, StateExecuting, reached)

	v, ok := vm.Global().GetOwn("disabled")
	require.True(t, ok)
	assert.True(t, v.Value.IsObject())
}
