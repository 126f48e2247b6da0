package vm

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 堆
// ============================================================================
//
// 对象内存由 Go 回收；这里管理的是引擎自己的回收周期：丢弃不在栈上的
// 代码单元的编译层代码，并运行终结器。回收进行中调用任何入口都是
// 编程错误，入口拒绝执行并返回 undefined。

// HeapStats 回收统计
type HeapStats struct {
	Collections    int64
	Jettisoned     int64
	Finalized      int64
	RefusedEntries int64
}

// Heap 回收状态
type Heap struct {
	vm *VM

	busy     bool
	disallow int
	pending  bool

	finalizers []func(*VM)
	codeBlocks map[*bytecode.CodeBlock]struct{}

	stats HeapStats
}

func newHeap(vm *VM) *Heap {
	return &Heap{
		vm:         vm,
		codeBlocks: make(map[*bytecode.CodeBlock]struct{}),
	}
}

// IsBusy 是否正在回收
func (h *Heap) IsBusy() bool {
	return h.busy
}

// Stats 统计信息
func (h *Heap) Stats() HeapStats {
	return h.stats
}

// AddFinalizer 登记下一次回收时运行的终结器
func (h *Heap) AddFinalizer(fn func(*VM)) {
	h.finalizers = append(h.finalizers, fn)
}

// track 记录执行过的代码单元
func (h *Heap) track(cb *bytecode.CodeBlock) {
	h.codeBlocks[cb] = struct{}{}
}

// Collect 运行一次回收；DisallowGC 窗口内推迟到窗口关闭
func (h *Heap) Collect() {
	if h.busy {
		return
	}
	if h.disallow > 0 {
		h.pending = true
		return
	}
	h.collect()
}

func (h *Heap) collect() {
	h.busy = true
	defer func() { h.busy = false }()
	h.stats.Collections++

	live := make(map[*bytecode.CodeBlock]bool, len(h.vm.frames))
	for _, f := range h.vm.frames {
		if f.CodeBlock != nil {
			live[f.CodeBlock] = true
		}
	}
	for cb := range h.codeBlocks {
		if live[cb] {
			continue
		}
		delete(h.codeBlocks, cb)
		if cb.Jettison() {
			h.stats.Jettisoned++
			h.vm.logger.Debug("jettisoned compiled code",
				zap.String("codeBlock", cb.Name),
				zap.Stringer("type", cb.Type))
		}
	}

	finalizers := h.finalizers
	h.finalizers = nil
	for _, fn := range finalizers {
		fn(h.vm)
		h.stats.Finalized++
	}
}

// refuseEntry 回收期间的入口检查
func (h *Heap) refuseEntry(entry string) bool {
	if !h.busy {
		return false
	}
	h.stats.RefusedEntries++
	h.vm.logger.Error("script entry while collector is busy",
		zap.String("entry", entry))
	return true
}

// ============================================================================
// DisallowGC
// ============================================================================

// DisallowGC 禁止回收的窗口，窗口内请求的回收在关闭时执行
type DisallowGC struct {
	h *Heap
}

// DisallowGC 打开窗口，必须 Close
func (h *Heap) DisallowGC() *DisallowGC {
	h.disallow++
	return &DisallowGC{h: h}
}

// Close 关闭窗口
func (d *DisallowGC) Close() {
	h := d.h
	if h == nil {
		return
	}
	d.h = nil
	h.disallow--
	if h.disallow == 0 && h.pending {
		h.pending = false
		h.collect()
	}
}
