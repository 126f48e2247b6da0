package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
)

// 错误构造器名
const (
	ErrorName          = "Error"
	TypeErrorName      = "TypeError"
	RangeErrorName     = "RangeError"
	ReferenceErrorName = "ReferenceError"
	SyntaxErrorName    = "SyntaxError"
	RuntimeErrorName   = "RuntimeError"
)

const terminationMessage = "JavaScript execution terminated."

// ============================================================================
// 异常
// ============================================================================

// Exception 被抛出的值
//
// 同一时刻虚拟机最多有一个待处理的异常。终止异常不能被脚本捕获，
// 展开时跳过所有处理器直达入口帧。
type Exception struct {
	Value bytecode.Value

	// cause 由宿主错误转换而来时的原始错误
	cause error

	termination bool
	wasmTrap    bool
	notified    bool
}

// Error 实现 error 接口
func (e *Exception) Error() string {
	if e.termination {
		return terminationMessage
	}
	return describeValue(e.Value)
}

// IsTermination 是否为终止异常
func (e *Exception) IsTermination() bool {
	return e.termination
}

// Cause 由 Go 错误（编译错误等）转换而来时的原始错误
func (e *Exception) Cause() error {
	return e.cause
}

// IsWasmTrap 是否由 wasm 陷阱产生
func (e *Exception) IsWasmTrap() bool {
	return e.wasmTrap
}

// Frames 错误对象创建时捕获的栈
func (e *Exception) Frames() []rterrors.StackFrame {
	if d := errorDataOf(e.Value); d != nil {
		return d.frames
	}
	return nil
}

// AsException 取出错误链上的脚本异常
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}

// throwValue 把值放进异常槽
func (vm *VM) throwValue(v bytecode.Value) error {
	exc := &Exception{Value: v}
	vm.exception = exc
	return exc
}

// rethrow 把已有异常重新放进异常槽
func (vm *VM) rethrow(exc *Exception) error {
	vm.exception = exc
	return exc
}

// throwError 以新的错误对象抛出
func (vm *VM) throwError(name, format string, args ...interface{}) error {
	return vm.throwValue(bytecode.NewObjectValue(vm.newError(name, fmt.Sprintf(format, args...))))
}

// ThrowError 宿主函数抛出 name 类型的错误，返回值直接作为宿主函数的错误返回
func (vm *VM) ThrowError(name, format string, args ...interface{}) error {
	return vm.throwError(name, format, args...)
}

// Throw 宿主函数抛出任意值
func (vm *VM) Throw(v bytecode.Value) error {
	return vm.throwValue(v)
}

// throwStackOverflow 栈溢出是普通的 RangeError，可以被捕获
func (vm *VM) throwStackOverflow() error {
	obj := vm.newError(RangeErrorName, "Maximum call stack size exceeded.")
	obj.Internal.(*errorData).code = rterrors.R0400
	return vm.throwValue(bytecode.NewObjectValue(obj))
}

// throwTermination 抛出终止异常
func (vm *VM) throwTermination() error {
	exc := &Exception{Value: bytecode.NewString(terminationMessage), termination: true}
	vm.exception = exc
	return exc
}

// toException 把任意错误转换为异常槽里的异常
//
// 宿主函数返回的普通 Go 错误包装为 Error 对象。
func (vm *VM) toException(err error) *Exception {
	if exc, ok := AsException(err); ok {
		vm.exception = exc
		return exc
	}
	var cerr rterrors.ErrorList
	name := ErrorName
	if errors.As(err, &cerr) {
		name = SyntaxErrorName
	}
	exc := &Exception{Value: bytecode.NewObjectValue(vm.newError(name, err.Error())), cause: err}
	vm.exception = exc
	return exc
}

// takeException 取出并清除异常槽
func (vm *VM) takeException() error {
	exc := vm.exception
	vm.exception = nil
	if exc == nil {
		return errors.New("vm: exception slot is empty")
	}
	return exc
}

// ============================================================================
// 错误对象
// ============================================================================

// errorData 错误对象的内部数据
type errorData struct {
	code   string
	frames []rterrors.StackFrame
	stack  string
	built  bool
}

func errorDataOf(v bytecode.Value) *errorData {
	o := v.AsObject()
	if o == nil || o.Class != bytecode.ClassError {
		return nil
	}
	d, _ := o.Internal.(*errorData)
	return d
}

// newError 创建错误对象并捕获当前栈
func (vm *VM) newError(name, message string) *bytecode.Object {
	return vm.newErrorSkipping(name, message, 0)
}

// newErrorSkipping 栈追踪跳过最内层的 skip 帧（错误构造器自己的帧）
func (vm *VM) newErrorSkipping(name, message string, skip int) *bytecode.Object {
	proto := vm.intrinsics.errorPrototype(name)
	obj := bytecode.NewObject(bytecode.ClassError, proto)
	obj.Define("message", bytecode.NewString(message), bytecode.PropWritable|bytecode.PropConfigurable)
	d := &errorData{
		frames: vm.GetStackTrace(vm.cfg.ErrorStackLimit, skip),
	}
	obj.Internal = d
	obj.DefineAccessor("stack", func(this *bytecode.Object) (bytecode.Value, error) {
		return bytecode.NewString(d.format(this)), nil
	}, bytecode.PropConfigurable)
	return obj
}

// format 首次读取 stack 时才拼接
func (d *errorData) format(this *bytecode.Object) string {
	if d.built {
		return d.stack
	}
	var sb strings.Builder
	sb.WriteString(errorSummary(this))
	for _, f := range d.frames {
		sb.WriteString("\n    at ")
		sb.WriteString(f.String())
	}
	d.stack = sb.String()
	d.built = true
	return d.stack
}

// errorSummary "Name: message"，不调用脚本代码
func errorSummary(o *bytecode.Object) string {
	name := dataProperty(o, "name")
	msg := dataProperty(o, "message")
	switch {
	case name == "":
		return msg
	case msg == "":
		return name
	}
	return name + ": " + msg
}

// dataProperty 沿原型链读取字符串数据属性
func dataProperty(o *bytecode.Object, key string) string {
	for cur := o; cur != nil; cur = cur.Proto {
		if v, ok := cur.GetIndexOwnOrNamed(key); ok {
			if v.IsString() {
				return v.AsString()
			}
			return v.String()
		}
	}
	return ""
}

// describeValue 异常的文字描述
func describeValue(v bytecode.Value) string {
	switch v.Type {
	case bytecode.ValString:
		return v.AsString()
	case bytecode.ValObject:
		if o := v.AsObject(); o.Class == bytecode.ClassError {
			return errorSummary(o)
		}
	}
	return v.String()
}

// ============================================================================
// 宿主侧描述
// ============================================================================

// RuntimeError 把传播到宿主的错误整理为运行时错误
func RuntimeError(err error) *rterrors.RuntimeError {
	exc, ok := AsException(err)
	if !ok {
		return &rterrors.RuntimeError{Code: rterrors.R0001, Level: rterrors.LevelError, Message: err.Error()}
	}
	re := &rterrors.RuntimeError{Code: rterrors.R0001, Level: rterrors.LevelError, Message: exc.Error()}
	switch {
	case exc.termination:
		re.Code = rterrors.R0003
		return re
	case exc.wasmTrap:
		re.Code = rterrors.R0600
	}
	o := exc.Value.AsObject()
	if o == nil || o.Class != bytecode.ClassError {
		re.Message = "Uncaught " + describeValue(exc.Value)
		return re
	}
	re.Name = dataProperty(o, "name")
	re.Message = dataProperty(o, "message")
	d := errorDataOf(exc.Value)
	if d != nil {
		re.Frames = d.frames
	}
	switch {
	case d != nil && d.code != "":
		re.Code = d.code
	case !exc.wasmTrap:
		re.Code = rterrors.RuntimeCodeForErrorName(re.Name)
	}
	return re
}

// IsStackOverflow 错误是否为栈溢出
func IsStackOverflow(err error) bool {
	exc, ok := AsException(err)
	if !ok {
		return false
	}
	d := errorDataOf(exc.Value)
	return d != nil && d.code == rterrors.R0400
}

// ErrorNameOf 错误对象的 name，非错误对象时为空
func ErrorNameOf(err error) string {
	exc, ok := AsException(err)
	if !ok {
		return ""
	}
	o := exc.Value.AsObject()
	if o == nil || o.Class != bytecode.ClassError {
		return ""
	}
	return dataProperty(o, "name")
}
