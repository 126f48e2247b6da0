package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Chunk 字节码块
type Chunk struct {
	Code      []byte  // 字节码
	Constants []Value // 常量池
	Lines     []int   // 行号信息 (用于错误报告)

	names map[string]uint16
}

// NewChunk 创建新的字节码块
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]Value, 0, 16),
		Lines:     make([]int, 0, 64),
	}
}

// Write 写入一个字节
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp 写入操作码
func (c *Chunk) WriteOp(op OpCode, line int) {
	c.Write(byte(op), line)
}

// WriteU16 写入 uint16 (大端序)
func (c *Chunk) WriteU16(v uint16, line int) {
	c.Write(byte(v>>8), line)
	c.Write(byte(v), line)
}

// WriteU32 写入 uint32 (大端序)
func (c *Chunk) WriteU32(v uint32, line int) {
	c.WriteU16(uint16(v>>16), line)
	c.WriteU16(uint16(v), line)
}

// AddConstant 添加常量，返回索引
func (c *Chunk) AddConstant(value Value) uint16 {
	if len(c.Constants) >= 0xFFFF {
		panic("too many constants in one chunk")
	}
	c.Constants = append(c.Constants, value)
	return uint16(len(c.Constants) - 1)
}

// AddName 添加名字常量，相同名字复用同一个槽
func (c *Chunk) AddName(name string) uint16 {
	if c.names == nil {
		c.names = make(map[string]uint16)
	}
	if idx, ok := c.names[name]; ok {
		return idx
	}
	idx := c.AddConstant(NewString(name))
	c.names[name] = idx
	return idx
}

// Len 返回字节码长度
func (c *Chunk) Len() int {
	return len(c.Code)
}

// ReadU16 从指定位置读取 uint16
func (c *Chunk) ReadU16(offset int) uint16 {
	return binary.BigEndian.Uint16(c.Code[offset:])
}

// ReadU32 从指定位置读取 uint32
func (c *Chunk) ReadU32(offset int) uint32 {
	return binary.BigEndian.Uint32(c.Code[offset:])
}

// PatchU32 回填跳转目标
func (c *Chunk) PatchU32(offset int, v uint32) {
	binary.BigEndian.PutUint32(c.Code[offset:], v)
}

// Line 偏移量对应的源码行
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		if len(c.Lines) > 0 {
			return c.Lines[len(c.Lines)-1]
		}
		return 0
	}
	return c.Lines[offset]
}

// Operand 解码 offset 处指令的操作数
func (c *Chunk) Operand(offset int) int {
	op := OpCode(c.Code[offset])
	switch op.Operand().Width() {
	case 2:
		return int(c.ReadU16(offset + 1))
	case 4:
		return int(c.ReadU32(offset + 1))
	}
	return 0
}

// ============================================================================
// 反汇编
// ============================================================================

// Disassemble 反汇编字节码
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder
	sb.Grow(len(c.Code) * 24)

	sb.WriteString("=== ")
	sb.WriteString(name)
	sb.WriteString(" ===\n")

	offset := 0
	for offset < len(c.Code) {
		offset = c.disassembleInstruction(&sb, offset)
	}
	return sb.String()
}

func (c *Chunk) disassembleInstruction(sb *strings.Builder, offset int) int {
	fmt.Fprintf(sb, "%04d ", offset)

	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(sb, "%4d ", c.Lines[offset])
	}

	op := OpCode(c.Code[offset])
	if !op.Valid() || offset+op.Size() > len(c.Code) {
		fmt.Fprintf(sb, "%s\n", op)
		return offset + 1
	}

	switch kind := op.Operand(); kind {
	case OperandNone:
		fmt.Fprintf(sb, "%s\n", op)
	case OperandConst, OperandName:
		idx := c.ReadU16(offset + 1)
		fmt.Fprintf(sb, "%-22s %4d '", op, idx)
		if int(idx) < len(c.Constants) {
			sb.WriteString(c.Constants[idx].String())
		}
		sb.WriteString("'\n")
	case OperandJump:
		fmt.Fprintf(sb, "%-22s -> %04d\n", op, c.ReadU32(offset+1))
	case OperandHook:
		fmt.Fprintf(sb, "%-22s %s\n", op, DebugHookType(c.ReadU16(offset+1)))
	default:
		fmt.Fprintf(sb, "%-22s %4d\n", op, c.ReadU16(offset+1))
	}
	return offset + op.Size()
}
