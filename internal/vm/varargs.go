package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 变长实参
// ============================================================================
//
// f(a, ...xs) 与 Function.prototype.apply 的实参在调用时展开：先求长度，
// 再确认值栈放得下整帧，最后才复制元素。超过 MaxArguments 是栈溢出，
// 不会截断。

// sizeOfVarargs 从 offset 起要展开的元素个数
func (vm *VM) sizeOfVarargs(arrayLike bytecode.Value, offset int) (int, error) {
	var length uint64
	switch arrayLike.Type {
	case bytecode.ValUndefined, bytecode.ValNull:
		return 0, nil
	case bytecode.ValObject:
		o := arrayLike.AsObject()
		switch o.Class {
		case bytecode.ClassImmutableButterfly, bytecode.ClassArray:
			length = uint64(o.ArrayLength())
		case bytecode.ClassDirectArguments, bytecode.ClassScopedArguments:
			v, _, err := vm.getOwnProperty(o, "length")
			if err != nil {
				return 0, err
			}
			length = toLength(v)
		default:
			v, err := vm.getProperty(arrayLike, "length")
			if err != nil {
				return 0, err
			}
			length = toLength(v)
		}
	default:
		return 0, vm.throwError(TypeErrorName, "First argument to Function.prototype.apply must be an Array-like object.")
	}

	if length <= uint64(offset) {
		return 0, nil
	}
	length -= uint64(offset)
	if length > uint64(vm.cfg.MaxArguments) {
		return 0, vm.throwStackOverflow()
	}
	return int(length), nil
}

// sizeFrameForVarargs 确认值栈放得下 length 个实参和被调帧的保留槽位
func (vm *VM) sizeFrameForVarargs(length int) error {
	need := vm.sp + length + 1 + frameReserve
	if need > vm.cfg.StackSlots {
		return vm.throwStackOverflow()
	}
	return vm.ensureStack(need)
}

// loadVarargs 把 arrayLike[offset:offset+length] 复制到 buf
//
// 数组和 arguments 走逐元素的快速路径；空洞和普通对象按属性读取，
// 包括原型链上的元素，结果与逐个下标访问一致。
func (vm *VM) loadVarargs(buf []bytecode.Value, arrayLike bytecode.Value, offset, length int) error {
	if length == 0 {
		return nil
	}
	o := arrayLike.AsObject()
	switch o.Class {
	case bytecode.ClassImmutableButterfly, bytecode.ClassArray, bytecode.ClassDirectArguments:
		for i := 0; i < length; i++ {
			idx := uint32(offset + i)
			if v, ok := o.GetIndexOwn(idx); ok {
				buf[i] = v
				continue
			}
			v, err := vm.getIndexed(o, idx)
			if err != nil {
				return err
			}
			buf[i] = v
		}
		return nil
	}
	for i := 0; i < length; i++ {
		v, err := vm.getIndexed(o, uint32(offset+i))
		if err != nil {
			return err
		}
		buf[i] = v
	}
	return nil
}

// setupVarargsFrame 把 arrayLike 展开到值栈顶，返回展开的个数
//
// 调用前值栈顶是 [callee][this][fixed 个固定实参]，arrayLike 已经弹出。
// 固定实参与展开部分合计超过 MaxArguments 时抛出栈溢出。
func (vm *VM) setupVarargsFrame(arrayLike bytecode.Value, offset, fixed int) (int, error) {
	length, err := vm.sizeOfVarargs(arrayLike, offset)
	if err != nil {
		return 0, err
	}
	if fixed+length > vm.cfg.MaxArguments {
		return 0, vm.throwStackOverflow()
	}
	if err := vm.sizeFrameForVarargs(length); err != nil {
		return 0, err
	}
	buf := make([]bytecode.Value, length)
	if err := vm.loadVarargs(buf, arrayLike, offset, length); err != nil {
		return 0, err
	}
	for _, v := range buf {
		vm.push(v)
	}
	return length, nil
}

// sizeFrameForForwardArguments 转发当前帧的实参
//
// 严格函数转发实参槽；非严格函数的前 NumParameters 个实参取形参绑定的
// 当前值。
func (vm *VM) sizeFrameForForwardArguments(f *CallFrame) (int, error) {
	length := f.ArgCount
	if length > vm.cfg.MaxArguments {
		return 0, vm.throwStackOverflow()
	}
	if err := vm.sizeFrameForVarargs(length); err != nil {
		return 0, err
	}
	cb := f.CodeBlock
	for i := 0; i < length; i++ {
		v := vm.argument(f, i)
		if !cb.Strict && i < cb.NumParameters && f.fnScope != nil {
			if b, ok := f.fnScope.Own(cb.ParamNames[i]); ok && lastParamIndex(cb.ParamNames, b.Name) == i {
				v = b.Value
			}
		}
		vm.push(v)
	}
	return length, nil
}

func lastParamIndex(names []string, name string) int {
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == name {
			return i
		}
	}
	return -1
}
