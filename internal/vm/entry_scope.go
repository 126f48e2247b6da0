package vm

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 入口作用域
// ============================================================================
//
// 最外层入口建立 VMEntryScope，嵌套入口共享它。最外层作用域关闭时依次
// 调用登记的监听器，每个键只调用一次，之后清空。

// VMEntryScope 标记正在为某个全局对象执行脚本
type VMEntryScope struct {
	vm     *VM
	global *bytecode.Object
	nested bool

	listeners []entryListener
}

type entryListener struct {
	key any
	fn  func()
}

// enterScope 进入虚拟机，返回的作用域必须 Close
func (vm *VM) enterScope() *VMEntryScope {
	if vm.entryScope != nil {
		return &VMEntryScope{vm: vm, global: vm.global, nested: true}
	}
	s := &VMEntryScope{vm: vm, global: vm.global}
	vm.entryScope = s
	return s
}

// Global 作用域所属的全局对象
func (s *VMEntryScope) Global() *bytecode.Object {
	return s.global
}

// Close 离开虚拟机；最外层作用域关闭时调用监听器
func (s *VMEntryScope) Close() {
	if s.nested {
		return
	}
	vm := s.vm
	vm.entryScope = nil
	listeners := s.listeners
	s.listeners = nil
	for _, l := range listeners {
		l.fn()
	}
	if len(listeners) > 0 {
		vm.logger.Debug("entry scope did pop", zap.Int("listeners", len(listeners)))
	}
}

// AddDidPopListener 登记最外层入口作用域关闭时的回调，同一个键只保留第一次登记
//
// 不在脚本执行中时返回 false。
func (vm *VM) AddDidPopListener(key any, fn func()) bool {
	s := vm.entryScope
	if s == nil {
		return false
	}
	for _, l := range s.listeners {
		if l.key == key {
			return true
		}
	}
	s.listeners = append(s.listeners, entryListener{key: key, fn: fn})
	return true
}

// InEntryScope 是否正在执行脚本
func (vm *VM) InEntryScope() bool {
	return vm.entryScope != nil
}
