package vm

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ErrExceptionPending 进入虚拟机时已经有未处理的异常
var ErrExceptionPending = errors.New("vm: entered with a pending exception")

// ============================================================================
// 抛出作用域
// ============================================================================
//
// 每个入口持有一个 throwScope。进入时断言没有待处理异常；把控制交给
// 脚本之前 release；返回时 finish 保证异常要么作为错误返回，要么不存在，
// 不会留在异常槽里被下一次无关的调用继承。

type throwScope struct {
	vm       *VM
	released bool
}

func newThrowScope(vm *VM) *throwScope {
	return &throwScope{vm: vm}
}

func (s *throwScope) assertNoException() error {
	if s.vm.exception == nil {
		return nil
	}
	s.vm.logger.Error("entry with pending exception",
		zap.String("exception", s.vm.exception.Error()))
	return ErrExceptionPending
}

// release 之后由脚本代码负责检查和传播异常
func (s *throwScope) release() {
	s.released = true
}

// finish 整理入口的返回值
func (s *throwScope) finish(v bytecode.Value, err error) (bytecode.Value, error) {
	vm := s.vm
	if err != nil {
		vm.toException(err)
		return bytecode.Undefined, vm.takeException()
	}
	if vm.exception != nil {
		vm.logger.Warn("exception left pending by a normal return",
			zap.Bool("released", s.released),
			zap.String("exception", vm.exception.Error()))
		return bytecode.Undefined, vm.takeException()
	}
	return v, nil
}
