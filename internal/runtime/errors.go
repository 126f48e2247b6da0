package runtime

import (
	"errors"
	"strings"

	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

// JSError 未被脚本捕获的异常
type JSError struct {
	*rterrors.RuntimeError

	// Exception 原始异常，可以取得抛出的值
	Exception *vm.Exception
}

// Unwrap 返回原始异常
func (e *JSError) Unwrap() error {
	return e.Exception
}

// IsStackOverflow 是否为栈溢出
func (e *JSError) IsStackOverflow() bool {
	return e.Code == rterrors.R0400
}

// IsTermination 是否因 TerminateExecution 结束
func (e *JSError) IsTermination() bool {
	return e.Exception != nil && e.Exception.IsTermination()
}

// Format 带堆栈和出错行的文本，colors 控制是否着色
func (e *JSError) Format(r *Runtime, colors bool) string {
	f := rterrors.NewFormatter()
	f.Colors = colors
	cache := make(map[string][]string, len(r.sources))
	for name, src := range r.sources {
		cache[name] = strings.Split(src, "\n")
	}
	return f.FormatRuntimeError(e.RuntimeError, cache)
}

// wrap 把虚拟机返回的异常整理为 JSError，编译错误原样返回
func (r *Runtime) wrap(err error) error {
	exc, ok := vm.AsException(err)
	if !ok {
		return err
	}
	var list rterrors.ErrorList
	if errors.As(exc.Cause(), &list) {
		return list
	}
	return &JSError{RuntimeError: vm.RuntimeError(err), Exception: exc}
}

// AsJSError 取出错误链上的 JSError
func AsJSError(err error) (*JSError, bool) {
	var je *JSError
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
