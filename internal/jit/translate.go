package jit

import (
	"fmt"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// Translate 把代码单元的字节码翻译为预解码指令
//
// 原字节码必须已经通过验证。处理器表按指令下标重建：范围的结束位置
// 可以等于指令条数，NativeEntry 是 CATCH 指令的下标。
func Translate(cb *bytecode.CodeBlock) (*bytecode.CompiledCode, error) {
	if err := bytecode.Verify(cb); err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}

	chunk := cb.Chunk
	index := make(map[int]int, chunk.Len()/2)
	insts := make([]bytecode.Inst, 0, chunk.Len()/2)
	for ip := 0; ip < chunk.Len(); {
		op := bytecode.OpCode(chunk.Code[ip])
		index[ip] = len(insts)
		insts = append(insts, bytecode.Inst{Op: op, A: chunk.Operand(ip), Offset: ip})
		ip += op.Size()
	}
	index[chunk.Len()] = len(insts)

	// 第二遍：跳转目标换成指令下标
	for i := range insts {
		if !insts[i].Op.IsJump() {
			continue
		}
		target, ok := index[insts[i].A]
		if !ok {
			return nil, fmt.Errorf("jit: jump at %d targets %d which is not an instruction", insts[i].Offset, insts[i].A)
		}
		insts[i].A = target
	}

	handlers := make([]bytecode.CompiledHandler, len(cb.Handlers))
	for i, h := range cb.Handlers {
		handlers[i] = bytecode.CompiledHandler{
			Start:       index[h.Start],
			End:         index[h.End],
			NativeEntry: index[h.Target],
			Kind:        h.Kind,
			ScopeDepth:  h.ScopeDepth,
			StackDepth:  h.StackDepth,
		}
	}

	return &bytecode.CompiledCode{Insts: insts, Handlers: handlers}, nil
}
