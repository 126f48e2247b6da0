package runtime

import (
	"strconv"
	"strings"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

// ============================================================================
// Array.prototype
// ============================================================================

func (r *Runtime) registerArray() {
	proto := r.vm.Intrinsics().ArrayPrototype
	r.vm.DefineFunction(proto, "push", 1, arrayPush)
	r.vm.DefineFunction(proto, "forEach", 1, arrayForEach)
	r.vm.DefineFunction(proto, "map", 1, arrayMap)
	r.vm.DefineFunction(proto, "join", 1, arrayJoin)
}

// thisArray 取 this 上的可写数组
func thisArray(v *vm.VM, this bytecode.Value, method string) (*bytecode.Object, error) {
	o := this.AsObject()
	if o == nil || (o.Class != bytecode.ClassArray && o.Class != bytecode.ClassImmutableButterfly) {
		return nil, v.ThrowError(vm.TypeErrorName, "Array.prototype.%s requires that |this| be an Array", method)
	}
	return o, nil
}

func arrayPush(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	o, err := thisArray(v, this, "push")
	if err != nil {
		return bytecode.Undefined, err
	}
	for _, a := range args {
		if !o.SetIndex(o.ArrayLength(), a) {
			return bytecode.Undefined, v.ThrowError(vm.TypeErrorName, "Attempted to assign to readonly property.")
		}
	}
	return bytecode.NewInt(int64(o.ArrayLength())), nil
}

// eachElement 以 (element, index, array) 逐个调用回调，跳过空洞
//
// 长度在开始时取一次；回调通过 PrepareForRepeatCall 只编译一次。
func eachElement(v *vm.VM, this bytecode.Value, args []bytecode.Value, method string, fn func(i uint32, result bytecode.Value)) error {
	o, err := thisArray(v, this, method)
	if err != nil {
		return err
	}
	var callback bytecode.Value
	if len(args) > 0 {
		callback = args[0]
	}
	if !callback.IsFunction() {
		return v.ThrowError(vm.TypeErrorName, "Array.prototype.%s callback must be a function", method)
	}
	call, err := v.PrepareForRepeatCall(callback.AsObject(), 3)
	if err != nil {
		return err
	}
	if len(args) > 1 {
		call.SetThis(args[1])
	}
	call.SetArgument(2, this)

	n := o.ArrayLength()
	for i := uint32(0); i < n; i++ {
		elem, ok := o.GetIndexOwn(i)
		if !ok {
			continue
		}
		call.SetArgument(0, elem)
		call.SetArgument(1, bytecode.NewInt(int64(i)))
		result, err := call.Call()
		if err != nil {
			return err
		}
		fn(i, result)
	}
	return nil
}

func arrayForEach(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	err := eachElement(v, this, args, "forEach", func(uint32, bytecode.Value) {})
	return bytecode.Undefined, err
}

func arrayMap(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	var out *bytecode.Object
	if o := this.AsObject(); o != nil {
		out = v.NewArray(nil)
		out.SetArrayLength(o.ArrayLength())
	}
	err := eachElement(v, this, args, "map", func(i uint32, result bytecode.Value) {
		out.SetIndex(i, result)
	})
	if err != nil {
		return bytecode.Undefined, err
	}
	return bytecode.NewObjectValue(out), nil
}

func arrayJoin(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	o, err := thisArray(v, this, "join")
	if err != nil {
		return bytecode.Undefined, err
	}
	sep := ","
	if len(args) > 0 && !args[0].IsUndefined() {
		sep = vm.ToString(args[0])
	}
	n := o.ArrayLength()
	parts := make([]string, n)
	for i := uint32(0); i < n; i++ {
		elem, err := v.Get(this, strconv.FormatUint(uint64(i), 10))
		if err != nil {
			return bytecode.Undefined, err
		}
		if !elem.IsUndefinedOrNull() {
			parts[i] = vm.ToString(elem)
		}
	}
	return bytecode.NewString(strings.Join(parts, sep)), nil
}
