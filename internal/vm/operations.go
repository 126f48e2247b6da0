package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// HostObject 宿主对象（ClassHostExotic）的属性钩子
//
// GetProperty 返回 false 表示宿主不处理该键，继续按普通属性查找。
type HostObject interface {
	GetProperty(vm *VM, key string) (bytecode.Value, bool, error)
	SetProperty(vm *VM, key string, v bytecode.Value) (bool, error)
}

// ============================================================================
// 属性读取
// ============================================================================

// Get 读取属性，沿原型链查找
func (vm *VM) Get(base bytecode.Value, key string) (bytecode.Value, error) {
	return vm.getProperty(base, key)
}

// Set 写属性，strict 决定只读失败时是否抛出
func (vm *VM) Set(base bytecode.Value, key string, v bytecode.Value, strict bool) error {
	return vm.putProperty(base, key, v, strict)
}

func (vm *VM) getProperty(base bytecode.Value, key string) (bytecode.Value, error) {
	switch base.Type {
	case bytecode.ValUndefined, bytecode.ValNull:
		return bytecode.Undefined, vm.throwError(TypeErrorName, "%s is not an object (evaluating '%s')", toString(base), key)
	case bytecode.ValString:
		s := base.AsString()
		if key == "length" {
			return bytecode.NewInt(int64(len(s))), nil
		}
		if i, ok := bytecode.ParseIndex(key); ok && int64(i) < int64(len(s)) {
			return bytecode.NewString(s[i : i+1]), nil
		}
		return bytecode.Undefined, nil
	case bytecode.ValObject:
		for o := base.AsObject(); o != nil; o = o.Proto {
			v, ok, err := vm.getOwnProperty(o, key)
			if err != nil || ok {
				return v, err
			}
		}
	}
	return bytecode.Undefined, nil
}

// getOwnProperty 自身属性，包括各类别的特殊属性
func (vm *VM) getOwnProperty(o *bytecode.Object, key string) (bytecode.Value, bool, error) {
	switch o.Class {
	case bytecode.ClassHostExotic:
		if h, ok := o.Internal.(HostObject); ok {
			v, found, err := h.GetProperty(vm, key)
			if err != nil || found {
				return v, found, err
			}
		}
	case bytecode.ClassArray, bytecode.ClassImmutableButterfly:
		if key == "length" {
			return bytecode.NewInt(int64(o.ArrayLength())), true, nil
		}
	case bytecode.ClassScopedArguments:
		if i, ok := bytecode.ParseIndex(key); ok {
			if sa, _ := o.Internal.(*scopedArguments); sa != nil {
				if b, ok := sa.binding(i); ok && int64(i) < int64(len(o.Indexed)) && !o.Indexed[i].IsEmpty() {
					return b.Value, true, nil
				}
			}
		}
	}

	if i, ok := bytecode.ParseIndex(key); ok {
		if v, ok := o.GetIndexOwn(i); ok {
			return v, true, nil
		}
	}
	p, ok := o.GetOwn(key)
	if !ok {
		return bytecode.Undefined, false, nil
	}
	if p.IsAccessor() {
		if p.Getter == nil {
			return bytecode.Undefined, true, nil
		}
		v, err := p.Getter(o)
		return v, true, err
	}
	return p.Value, true, nil
}

// getIndexed 沿原型链读取下标属性
func (vm *VM) getIndexed(o *bytecode.Object, i uint32) (bytecode.Value, error) {
	if v, ok := o.GetIndexOwn(i); ok && o.Class != bytecode.ClassScopedArguments {
		return v, nil
	}
	return vm.getProperty(bytecode.NewObjectValue(o), strconv.FormatUint(uint64(i), 10))
}

// ============================================================================
// 属性写入
// ============================================================================

func (vm *VM) putProperty(base bytecode.Value, key string, v bytecode.Value, strict bool) error {
	switch base.Type {
	case bytecode.ValUndefined, bytecode.ValNull:
		return vm.throwError(TypeErrorName, "%s is not an object (evaluating '%s')", toString(base), key)
	case bytecode.ValObject:
	default:
		if strict {
			return vm.throwError(TypeErrorName, "Attempted to assign to readonly property.")
		}
		return nil
	}

	o := base.AsObject()
	switch o.Class {
	case bytecode.ClassHostExotic:
		if h, ok := o.Internal.(HostObject); ok {
			handled, err := h.SetProperty(vm, key, v)
			if err != nil || handled {
				return err
			}
		}
	case bytecode.ClassArray:
		if key == "length" {
			n := toNumber(v)
			if n < 0 || n != math.Trunc(n) || n > math.MaxUint32 {
				return vm.throwError(RangeErrorName, "Invalid array length")
			}
			o.SetArrayLength(uint32(n))
			return nil
		}
	case bytecode.ClassImmutableButterfly:
		return vm.readonly(strict)
	case bytecode.ClassScopedArguments:
		if i, ok := bytecode.ParseIndex(key); ok {
			if sa, _ := o.Internal.(*scopedArguments); sa != nil {
				if b, ok := sa.binding(i); ok && int64(i) < int64(len(o.Indexed)) && !o.Indexed[i].IsEmpty() {
					b.Value = v
					o.Indexed[i] = v
					return nil
				}
			}
		}
	}

	if !o.HasOwn(key) && inheritsReadonly(o.Proto, key) {
		return vm.readonly(strict)
	}
	if !o.Set(key, v) {
		return vm.readonly(strict)
	}
	return nil
}

// putIndex 按下标写属性
func (vm *VM) putIndex(o *bytecode.Object, i uint32, v bytecode.Value, strict bool) error {
	if o.Class == bytecode.ClassArray || o.Class == bytecode.ClassOrdinary {
		if o.SetIndex(i, v) {
			return nil
		}
	}
	return vm.putProperty(bytecode.NewObjectValue(o), strconv.FormatUint(uint64(i), 10), v, strict)
}

func (vm *VM) readonly(strict bool) error {
	if strict {
		return vm.throwError(TypeErrorName, "Attempted to assign to readonly property.")
	}
	return nil
}

// inheritsReadonly 原型链上是否有同名的只读属性或访问器
func inheritsReadonly(proto *bytecode.Object, key string) bool {
	for o := proto; o != nil; o = o.Proto {
		if p, ok := o.GetOwn(key); ok {
			return !p.Writable() || p.IsAccessor()
		}
	}
	return false
}

// propertyKey 把值转为属性键
func propertyKey(v bytecode.Value) string {
	if v.IsString() {
		return v.AsString()
	}
	return toString(v)
}

// hasProperty 沿原型链判断属性是否存在
func hasProperty(o *bytecode.Object, key string) bool {
	for cur := o; cur != nil; cur = cur.Proto {
		if cur.HasOwn(key) {
			return true
		}
		if key == "length" && (cur.Class == bytecode.ClassArray || cur.Class == bytecode.ClassImmutableButterfly) {
			return true
		}
	}
	return false
}

// ============================================================================
// 类型转换
// ============================================================================
//
// 对象到原始值的转换按内建规则进行，不调用脚本定义的 valueOf / toString。

func toBoolean(v bytecode.Value) bool {
	switch v.Type {
	case bytecode.ValBool:
		return v.AsBool()
	case bytecode.ValNumber:
		n := v.AsNumber()
		return n != 0 && !math.IsNaN(n)
	case bytecode.ValString:
		return v.AsString() != ""
	case bytecode.ValObject:
		return true
	}
	return false
}

func toNumber(v bytecode.Value) float64 {
	switch v.Type {
	case bytecode.ValNumber:
		return v.AsNumber()
	case bytecode.ValBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case bytecode.ValNull:
		return 0
	case bytecode.ValString:
		return stringToNumber(v.AsString())
	case bytecode.ValObject:
		o := v.AsObject()
		if o.Class == bytecode.ClassArray || o.Class == bytecode.ClassImmutableButterfly {
			return stringToNumber(toString(v))
		}
	}
	return math.NaN()
}

// stringToNumber 数字字面量语法；空白串为 0，其余非法输入为 NaN
func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return math.NaN()
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return n
		}
		return math.NaN()
	}
	return n
}

func toString(v bytecode.Value) string {
	switch v.Type {
	case bytecode.ValUndefined:
		return "undefined"
	case bytecode.ValNull:
		return "null"
	case bytecode.ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case bytecode.ValNumber:
		return bytecode.NumberToString(v.AsNumber())
	case bytecode.ValString:
		return v.AsString()
	case bytecode.ValObject:
		return objectToString(v.AsObject(), nil)
	}
	return ""
}

// objectToString 数组按逗号连接，seen 防止循环引用
func objectToString(o *bytecode.Object, seen map[*bytecode.Object]bool) string {
	switch o.Class {
	case bytecode.ClassArray, bytecode.ClassImmutableButterfly:
		if seen[o] {
			return ""
		}
		if seen == nil {
			seen = make(map[*bytecode.Object]bool)
		}
		seen[o] = true
		defer delete(seen, o)
		parts := make([]string, len(o.Indexed))
		for i, e := range o.Indexed {
			switch {
			case e.IsEmpty(), e.IsUndefinedOrNull():
			case e.IsObject():
				parts[i] = objectToString(e.AsObject(), seen)
			default:
				parts[i] = toString(e)
			}
		}
		return strings.Join(parts, ",")
	case bytecode.ClassFunction:
		if fn, ok := o.Internal.(*Function); ok {
			return "function " + fn.Name + "() {\n    [native code]\n}"
		}
	case bytecode.ClassError:
		return errorSummary(o)
	}
	if isErrorPrototype(o) {
		return errorSummary(o)
	}
	return "[object Object]"
}

// isErrorPrototype 错误原型对象自身也按 "Name: message" 显示
func isErrorPrototype(o *bytecode.Object) bool {
	_, ok := o.Internal.(errorPrototypeMarker)
	return ok
}

type errorPrototypeMarker struct{}

func typeOf(v bytecode.Value) string {
	switch v.Type {
	case bytecode.ValUndefined, bytecode.ValEmpty:
		return "undefined"
	case bytecode.ValNull:
		return "object"
	case bytecode.ValBool:
		return "boolean"
	case bytecode.ValNumber:
		return "number"
	case bytecode.ValString:
		return "string"
	}
	if v.IsFunction() {
		return "function"
	}
	return "object"
}

// looseEquals ==
func looseEquals(a, b bytecode.Value) bool {
	if a.Type == b.Type {
		return a.StrictEquals(b)
	}
	if a.IsUndefinedOrNull() && b.IsUndefinedOrNull() {
		return true
	}
	if a.IsUndefinedOrNull() || b.IsUndefinedOrNull() {
		return false
	}
	if a.IsObject() {
		return looseEquals(bytecode.NewString(toString(a)), b)
	}
	if b.IsObject() {
		return looseEquals(a, bytecode.NewString(toString(b)))
	}
	return toNumber(a) == toNumber(b)
}

// add 任一侧是字符串或对象时连接字符串
func add(a, b bytecode.Value) bytecode.Value {
	if a.IsNumber() && b.IsNumber() {
		return bytecode.NewNumber(a.AsNumber() + b.AsNumber())
	}
	if a.IsString() || b.IsString() || a.IsObject() || b.IsObject() {
		return bytecode.NewString(toString(a) + toString(b))
	}
	return bytecode.NewNumber(toNumber(a) + toNumber(b))
}

// lessThan a < b；任一侧为 NaN 时 undefined 为 true
func lessThan(a, b bytecode.Value) (result, undefined bool) {
	if a.IsObject() {
		a = bytecode.NewString(toString(a))
	}
	if b.IsObject() {
		b = bytecode.NewString(toString(b))
	}
	if a.IsString() && b.IsString() {
		return a.AsString() < b.AsString(), false
	}
	x, y := toNumber(a), toNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false, true
	}
	return x < y, false
}

// toLength 截断到 [0, 2^53-1]
func toLength(v bytecode.Value) uint64 {
	n := toNumber(v)
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	if math.IsInf(n, 1) || n >= 1<<53-1 {
		return 1<<53 - 1
	}
	return uint64(n)
}

// toInt32 取模 2^32 后的有符号整数
func toInt32(v bytecode.Value) int32 {
	n := toNumber(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	n = math.Trunc(n)
	n = math.Mod(n, 1<<32)
	if n < 0 {
		n += 1 << 32
	}
	return int32(uint32(n))
}

// ToString 按脚本规则把值转为字符串
func ToString(v bytecode.Value) string {
	return toString(v)
}

// ToNumber 按脚本规则把值转为数字
func ToNumber(v bytecode.Value) float64 {
	return toNumber(v)
}

// ToBoolean 按脚本规则把值转为布尔值
func ToBoolean(v bytecode.Value) bool {
	return toBoolean(v)
}

// TypeOf typeof 运算的结果
func TypeOf(v bytecode.Value) string {
	return typeOf(v)
}
