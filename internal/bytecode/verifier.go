package bytecode

import (
	"fmt"
)

// VerificationError 字节码验证错误
type VerificationError struct {
	Offset  int    // 指令偏移量
	Message string // 错误消息
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("字节码验证错误 (偏移量 %d): %s", e.Offset, e.Message)
}

// Verifier 字节码验证器
//
// 检查指令边界、操作数范围、跳转目标和处理器表。编译层只翻译
// 通过验证的代码单元。
type Verifier struct {
	cb         *CodeBlock
	boundaries map[int]bool
}

// NewVerifier 创建验证器
func NewVerifier(cb *CodeBlock) *Verifier {
	return &Verifier{cb: cb}
}

// Verify 验证代码单元
func (v *Verifier) Verify() error {
	if v.cb == nil || v.cb.Chunk == nil {
		return &VerificationError{Offset: 0, Message: "chunk 为空"}
	}
	chunk := v.cb.Chunk
	if len(chunk.Lines) != len(chunk.Code) {
		return &VerificationError{Offset: 0, Message: fmt.Sprintf("行号表长度 %d 与代码长度 %d 不一致", len(chunk.Lines), len(chunk.Code))}
	}

	// 第一遍：记录所有指令边界
	if err := v.scanBoundaries(); err != nil {
		return err
	}

	// 第二遍：检查操作数
	ip := 0
	last := OpEnd
	for ip < chunk.Len() {
		op := OpCode(chunk.Code[ip])
		if err := v.verifyOperand(ip, op); err != nil {
			return err
		}
		last = op
		ip += op.Size()
	}
	if chunk.Len() > 0 && !last.IsTerminator() {
		return &VerificationError{Offset: ip - 1, Message: fmt.Sprintf("代码结尾不是终结指令: %s", last)}
	}

	return v.verifyHandlers()
}

func (v *Verifier) scanBoundaries() error {
	chunk := v.cb.Chunk
	v.boundaries = make(map[int]bool, chunk.Len()/2)
	ip := 0
	for ip < chunk.Len() {
		op := OpCode(chunk.Code[ip])
		if !op.Valid() {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("未知操作码 %d", op)}
		}
		if ip+op.Size() > chunk.Len() {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("%s 操作数被截断", op)}
		}
		v.boundaries[ip] = true
		ip += op.Size()
	}
	// 代码末尾也是合法边界（处理器范围的结束位置）
	v.boundaries[ip] = true
	return nil
}

func (v *Verifier) verifyOperand(ip int, op OpCode) error {
	chunk := v.cb.Chunk
	switch op.Operand() {
	case OperandConst:
		if idx := int(chunk.ReadU16(ip + 1)); idx >= len(chunk.Constants) {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("常量池索引超出范围: %d >= %d", idx, len(chunk.Constants))}
		}
	case OperandName:
		idx := int(chunk.ReadU16(ip + 1))
		if idx >= len(chunk.Constants) {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("名字索引超出范围: %d >= %d", idx, len(chunk.Constants))}
		}
		if !chunk.Constants[idx].IsString() {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("%s 的名字常量不是字符串", op)}
		}
	case OperandTemplate:
		if idx := int(chunk.ReadU16(ip + 1)); idx >= len(v.cb.ScopeTemplates) {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("作用域模板索引超出范围: %d", idx)}
		}
	case OperandFunction:
		if idx := int(chunk.ReadU16(ip + 1)); idx >= len(v.cb.Functions) {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("函数索引超出范围: %d", idx)}
		}
	case OperandHook:
		if h := DebugHookType(chunk.ReadU16(ip + 1)); h > HookDidReachBreakpoint {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("未知调试钩子: %d", h)}
		}
	case OperandJump:
		target := int(chunk.ReadU32(ip + 1))
		if target >= chunk.Len() || !v.boundaries[target] {
			return &VerificationError{Offset: ip, Message: fmt.Sprintf("跳转目标无效: %d (范围: 0-%d)", target, chunk.Len()-1)}
		}
	}
	if op == OpAwait && v.cb.Type != ModuleCode {
		return &VerificationError{Offset: ip, Message: "await 只能出现在模块代码中"}
	}
	return nil
}

func (v *Verifier) verifyHandlers() error {
	for i, h := range v.cb.Handlers {
		if h.Start >= h.End {
			return &VerificationError{Offset: h.Start, Message: fmt.Sprintf("处理器 #%d 范围为空", i)}
		}
		if !v.boundaries[h.Start] || !v.boundaries[h.End] {
			return &VerificationError{Offset: h.Start, Message: fmt.Sprintf("处理器 #%d 范围不在指令边界上", i)}
		}
		if h.Target >= v.cb.Chunk.Len() || !v.boundaries[h.Target] {
			return &VerificationError{Offset: h.Target, Message: fmt.Sprintf("处理器 #%d 入口无效", i)}
		}
		if OpCode(v.cb.Chunk.Code[h.Target]) != OpCatch {
			return &VerificationError{Offset: h.Target, Message: fmt.Sprintf("处理器 #%d 入口不是 CATCH", i)}
		}
		if h.ScopeDepth < 0 || h.StackDepth < 0 {
			return &VerificationError{Offset: h.Start, Message: fmt.Sprintf("处理器 #%d 深度为负", i)}
		}
	}
	return nil
}

// Verify 验证代码单元的便捷函数
func Verify(cb *CodeBlock) error {
	return NewVerifier(cb).Verify()
}
