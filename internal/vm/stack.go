package vm

// defaultPlatformStack 读不到系统设置时假定的平台栈大小
const defaultPlatformStack = 8 << 20

// ============================================================================
// 栈余量检查
// ============================================================================
//
// 两道检查：通用检查看帧表深度，平台检查估算宿主重入已经占用的平台栈。
// 任一失败都在写入值栈之前抛出栈溢出。

// isSafeToRecurse 通用检查：还能再压入入口帧和一个调用帧
func (vm *VM) isSafeToRecurse() bool {
	return len(vm.frames)+2 <= vm.cfg.MaxFrames
}

// hasPlatformHeadroom 平台检查：下一层重入之后仍保留 StackMargin
func (vm *VM) hasPlatformHeadroom() bool {
	need := (vm.reentry+1)*vm.cfg.NativeFrameCost + vm.cfg.StackMargin
	return need <= vm.stackLimit
}

// checkStack 两道检查都通过才返回 nil
func (vm *VM) checkStack() error {
	if !vm.isSafeToRecurse() || !vm.hasPlatformHeadroom() {
		return vm.throwStackOverflow()
	}
	return nil
}

// StackLimit 平台栈上限（字节）
func (vm *VM) StackLimit() int {
	return vm.stackLimit
}
