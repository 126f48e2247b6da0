package vm

import (
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
)

// ============================================================================
// 栈遍历
// ============================================================================

// StackVisitor 从最内层向外遍历帧表的单遍迭代器
//
// Stop 之后或遍历结束后不能继续；遍历期间不能改变帧表。
type StackVisitor struct {
	frames []*CallFrame
	index  int
	done   bool
}

// NewStackVisitor 从最内层帧开始
func (vm *VM) NewStackVisitor() *StackVisitor {
	return &StackVisitor{frames: vm.frames, index: len(vm.frames) - 1}
}

// Next 下一个帧，没有时返回 false
func (it *StackVisitor) Next() (*CallFrame, bool) {
	if it.done || it.index < 0 {
		it.done = true
		return nil, false
	}
	f := it.frames[it.index]
	it.index--
	return f, true
}

// Stop 结束遍历
func (it *StackVisitor) Stop() {
	it.done = true
}

// GetStackTrace 捕获调用栈，跳过最内层 skip 个帧，最多 maxFrames 个
//
// 入口帧不出现在结果里。
func (vm *VM) GetStackTrace(maxFrames, skip int) []rterrors.StackFrame {
	if maxFrames <= 0 {
		return nil
	}
	var out []rterrors.StackFrame
	it := vm.NewStackVisitor()
	for {
		f, ok := it.Next()
		if !ok {
			break
		}
		if f.IsEntry() {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		sf := rterrors.StackFrame{FunctionName: f.FunctionName()}
		switch f.Kind {
		case FrameNative:
			sf.Native = true
		case FrameWasm:
			sf.Wasm = true
		default:
			sf.FileName = f.SourceURL()
			sf.LineNumber = f.Line()
		}
		out = append(out, sf)
		if len(out) >= maxFrames {
			it.Stop()
			break
		}
	}
	return out
}
