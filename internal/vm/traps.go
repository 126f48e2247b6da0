package vm

// ============================================================================
// 陷阱
// ============================================================================
//
// 陷阱位可以由任意 goroutine 置位，脚本在循环回边和调用处检查。
// DeferTraps 窗口内不处理陷阱，用于取代码指针到真正进入之间。

const (
	trapTermination uint32 = 1 << iota
)

// TerminateExecution 请求终止正在执行的脚本，可以从任意 goroutine 调用
func (vm *VM) TerminateExecution() {
	for {
		old := vm.traps.Load()
		if vm.traps.CompareAndSwap(old, old|trapTermination) {
			return
		}
	}
}

// HasPendingTermination 是否有尚未处理的终止请求
func (vm *VM) HasPendingTermination() bool {
	return vm.traps.Load()&trapTermination != 0
}

// handleTraps 处理待处理的陷阱
func (vm *VM) handleTraps() error {
	if vm.deferTraps > 0 {
		return nil
	}
	for {
		old := vm.traps.Load()
		if old&trapTermination == 0 {
			return nil
		}
		if vm.traps.CompareAndSwap(old, old&^trapTermination) {
			return vm.throwTermination()
		}
	}
}

// DeferTraps 推迟陷阱处理的窗口
type DeferTraps struct {
	vm *VM
}

// NewDeferTraps 打开窗口，必须 Close
func NewDeferTraps(vm *VM) *DeferTraps {
	vm.deferTraps++
	return &DeferTraps{vm: vm}
}

// Close 关闭窗口
func (d *DeferTraps) Close() {
	if d.vm != nil {
		d.vm.deferTraps--
		d.vm = nil
	}
}
