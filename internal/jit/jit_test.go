package jit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/compiler"
	"github.com/tangzhangming/wkcjs/internal/threading"
)

func program(t *testing.T, src string) *bytecode.CodeBlock {
	t.Helper()
	cb, err := compiler.NewGenerator().CompileProgram(bytecode.NewSourceCode("jit.js", src), bytecode.CompileOptions{})
	require.NoError(t, err)
	return cb
}

func TestTranslateResolvesJumps(t *testing.T) {
	cb := program(t, "var i = 0; while (i < 3) { i++; }")
	cc, err := Translate(cb)
	require.NoError(t, err)

	for i, inst := range cc.Insts {
		assert.Equal(t, bytecode.OpCode(cb.Chunk.Code[inst.Offset]), inst.Op)
		if inst.Op.IsJump() {
			require.Less(t, inst.A, len(cc.Insts), "jump %d resolves to an instruction index", i)
			target := cc.Insts[inst.A]
			assert.Equal(t, int(cb.Chunk.ReadU32(inst.Offset+1)), target.Offset)
		}
	}
	assert.Equal(t, bytecode.OpEnd, cc.Insts[len(cc.Insts)-1].Op)
}

func TestTranslateHandlers(t *testing.T) {
	cb := program(t, "try { f(); } catch (e) { g(); } finally { h(); }")
	cc, err := Translate(cb)
	require.NoError(t, err)
	require.Len(t, cc.Handlers, len(cb.Handlers))

	for i, h := range cc.Handlers {
		assert.Equal(t, bytecode.OpCatch, cc.Insts[h.NativeEntry].Op)
		assert.Equal(t, cb.Handlers[i].Target, cc.Insts[h.NativeEntry].Offset)
		assert.Equal(t, cb.Handlers[i].Start, cc.Insts[h.Start].Offset)
		assert.Equal(t, cb.Handlers[i].Kind, h.Kind)
	}
}

func TestTranslateRejectsBadCode(t *testing.T) {
	cb := program(t, "1;")
	cb.Chunk.Code = cb.Chunk.Code[:len(cb.Chunk.Code)-1]
	cb.Chunk.Lines = cb.Chunk.Lines[:len(cb.Chunk.Lines)-1]
	_, err := Translate(cb)
	assert.Error(t, err)
}

func TestSynchronousTierUp(t *testing.T) {
	j := New(threading.NewSession(), Config{Enabled: true, TierUpThreshold: 3}, nil)
	defer j.Close()

	cb := program(t, "1;")
	j.OnExecute(cb)
	j.OnExecute(cb)
	assert.Nil(t, cb.Compiled())
	j.OnExecute(cb)
	require.NotNil(t, cb.Compiled())
	assert.Equal(t, int64(1), j.Stats().Compiled)

	// 已经提交过的代码单元不会重复编译
	j.OnExecute(cb)
	assert.Equal(t, int64(1), j.Stats().Compiled)
}

func TestDisabledNeverTiersUp(t *testing.T) {
	j := New(threading.NewSession(), Config{Enabled: false, TierUpThreshold: 1}, nil)
	cb := program(t, "1;")
	for i := 0; i < 10; i++ {
		j.OnExecute(cb)
	}
	assert.Nil(t, cb.Compiled())
}

func TestBackgroundWorkersPublishAll(t *testing.T) {
	j := New(threading.NewSession(), Config{Enabled: true, TierUpThreshold: 1, Workers: 3}, nil)
	defer j.Close()

	blocks := make([]*bytecode.CodeBlock, 200)
	for i := range blocks {
		blocks[i] = program(t, fmt.Sprintf("var x%d = %d;", i, i))
	}
	for _, cb := range blocks {
		j.OnExecute(cb)
	}
	j.Drain()

	for i, cb := range blocks {
		assert.NotNil(t, cb.Compiled(), "block %d", i)
	}
	assert.Equal(t, int64(len(blocks)), j.Stats().Pool.TotalCompiled)
}

func TestBlocklistRejects(t *testing.T) {
	j := New(threading.NewSession(), Config{Enabled: true, TierUpThreshold: 1, Blocklist: []string{"CALL_EVAL", "NO_SUCH_OP"}}, nil)
	cb := program(t, "eval('1');")
	j.OnExecute(cb)
	assert.Nil(t, cb.Compiled())
	assert.Equal(t, int64(1), j.Stats().Rejected)

	ok := program(t, "f(1);")
	j.OnExecute(ok)
	assert.NotNil(t, ok.Compiled())
}

func TestOpcodeTableRebuiltAfterReset(t *testing.T) {
	s := threading.NewSession()
	j := New(s, Config{Enabled: true}, nil)

	op, ok := j.OpcodeByName("CALL_VARARGS")
	require.True(t, ok)
	assert.Equal(t, bytecode.OpCallVarargs, op)
	assert.True(t, j.tableOnce.Done())

	require.NoError(t, s.Reset())
	assert.False(t, j.tableOnce.Done())
	_, ok = j.OpcodeByName("LOOP_HINT")
	assert.True(t, ok)
}
