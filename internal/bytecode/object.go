package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// 对象
// ============================================================================
//
// Object 只负责原始存储：命名属性按插入顺序保存，整数索引属性保存在
// Indexed 中（空洞为 Empty）。原型链查找、访问器调用和各类异质对象的
// 语义由 vm 包实现。

// ObjectClass 对象类别
type ObjectClass byte

const (
	ClassOrdinary ObjectClass = iota
	ClassArray
	ClassImmutableButterfly // 冻结的连续数组（展开参数的结果）
	ClassDirectArguments    // 严格模式 arguments，元素是实参副本
	ClassScopedArguments    // 非严格模式 arguments，元素映射到形参绑定
	ClassFunction
	ClassError
	ClassGlobal
	ClassHostExotic // 宿主提供属性语义的对象
	ClassModuleRecord
	ClassWasmException
)

var classNames = [...]string{
	ClassOrdinary:           "Object",
	ClassArray:              "Array",
	ClassImmutableButterfly: "ImmutableButterfly",
	ClassDirectArguments:    "Arguments",
	ClassScopedArguments:    "Arguments",
	ClassFunction:           "Function",
	ClassError:              "Error",
	ClassGlobal:             "global",
	ClassHostExotic:         "HostObject",
	ClassModuleRecord:       "Module",
	ClassWasmException:      "WebAssembly.Exception",
}

func (c ObjectClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "Object"
}

// PropFlags 属性特性
type PropFlags byte

const (
	PropWritable PropFlags = 1 << iota
	PropEnumerable
	PropConfigurable
	PropAccessor // 原生访问器，值由 Getter 计算

	PropDefault = PropWritable | PropEnumerable | PropConfigurable
)

// Getter 原生访问器
type Getter func(this *Object) (Value, error)

// Property 命名属性
type Property struct {
	Value  Value
	Flags  PropFlags
	Getter Getter
}

func (p *Property) Writable() bool     { return p.Flags&PropWritable != 0 }
func (p *Property) Enumerable() bool   { return p.Flags&PropEnumerable != 0 }
func (p *Property) Configurable() bool { return p.Flags&PropConfigurable != 0 }
func (p *Property) IsAccessor() bool   { return p.Flags&PropAccessor != 0 }

// maxDenseGap 超过当前长度这么多的索引写入不再扩展稠密存储
const maxDenseGap = 1024

// Object 堆对象
type Object struct {
	Class ObjectClass
	Proto *Object

	props map[string]*Property
	keys  []string

	// Indexed 稠密索引存储，空洞为 Empty
	Indexed []Value

	Extensible bool

	// Internal 类别相关的内部数据（函数、arguments、错误栈等）
	Internal interface{}
}

// NewObject 创建对象
func NewObject(class ObjectClass, proto *Object) *Object {
	return &Object{
		Class:      class,
		Proto:      proto,
		Extensible: true,
	}
}

// NewArrayObject 以给定元素创建数组
func NewArrayObject(proto *Object, elems []Value) *Object {
	o := NewObject(ClassArray, proto)
	o.Indexed = elems
	return o
}

// ============================================================================
// 命名属性
// ============================================================================

// GetOwn 读取自身命名属性
func (o *Object) GetOwn(key string) (*Property, bool) {
	if o.props == nil {
		return nil, false
	}
	p, ok := o.props[key]
	return p, ok
}

// HasOwn 是否有自身属性（包括索引）
func (o *Object) HasOwn(key string) bool {
	if idx, ok := ParseIndex(key); ok {
		if _, ok := o.GetIndexOwn(idx); ok {
			return true
		}
	}
	_, ok := o.GetOwn(key)
	return ok
}

// Define 定义或覆盖自身属性，保持首次插入的顺序
func (o *Object) Define(key string, v Value, flags PropFlags) {
	if idx, ok := ParseIndex(key); ok {
		if flags == PropDefault && o.putDense(idx, v) {
			return
		}
		if int64(idx) < int64(len(o.Indexed)) {
			o.Indexed[idx] = Empty
		}
	}
	if o.props == nil {
		o.props = make(map[string]*Property)
	}
	if p, ok := o.props[key]; ok {
		p.Value = v
		p.Flags = flags
		p.Getter = nil
		return
	}
	o.props[key] = &Property{Value: v, Flags: flags}
	o.keys = append(o.keys, key)
}

// DefineAccessor 定义原生访问器属性
func (o *Object) DefineAccessor(key string, g Getter, flags PropFlags) {
	o.Define(key, Undefined, flags|PropAccessor)
	o.props[key].Getter = g
}

// Set 写自身数据属性；属性不存在时按默认特性创建
//
// 返回 false 表示属性只读或对象不可扩展。
func (o *Object) Set(key string, v Value) bool {
	if idx, ok := ParseIndex(key); ok {
		return o.SetIndex(idx, v)
	}
	if p, ok := o.GetOwn(key); ok {
		if !p.Writable() || p.IsAccessor() {
			return false
		}
		p.Value = v
		return true
	}
	if !o.Extensible {
		return false
	}
	o.Define(key, v, PropDefault)
	return true
}

// Delete 删除自身属性
func (o *Object) Delete(key string) bool {
	if idx, ok := ParseIndex(key); ok && int64(idx) < int64(len(o.Indexed)) {
		if o.Class == ClassImmutableButterfly {
			return false
		}
		o.Indexed[idx] = Empty
		return true
	}
	p, ok := o.GetOwn(key)
	if !ok {
		return true
	}
	if !p.Configurable() {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys 自身可枚举键：先索引升序，再命名属性插入顺序
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.Indexed)+len(o.keys))
	for i, v := range o.Indexed {
		if !v.IsEmpty() {
			keys = append(keys, strconv.Itoa(i))
		}
	}
	for _, k := range o.keys {
		if o.props[k].Enumerable() {
			keys = append(keys, k)
		}
	}
	return keys
}

// OwnKeys 全部自身命名键（包括不可枚举）
func (o *Object) OwnKeys() []string {
	return append([]string(nil), o.keys...)
}

// ============================================================================
// 索引属性
// ============================================================================

// ParseIndex 判断键是否为规范的数组索引
func ParseIndex(key string) (uint32, bool) {
	if key == "" || len(key) > 10 {
		return 0, false
	}
	if key[0] == '0' && len(key) > 1 {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	if n >= 0xFFFFFFFF {
		return 0, false
	}
	return uint32(n), true
}

// GetIndexOwn 读取自身索引属性，不查原型链
func (o *Object) GetIndexOwn(i uint32) (Value, bool) {
	if int64(i) < int64(len(o.Indexed)) {
		if v := o.Indexed[i]; !v.IsEmpty() {
			return v, true
		}
	}
	if o.props == nil {
		return Undefined, false
	}
	if p, ok := o.GetOwn(strconv.FormatUint(uint64(i), 10)); ok && !p.IsAccessor() {
		return p.Value, true
	}
	return Undefined, false
}

// SetIndex 写自身索引属性
func (o *Object) SetIndex(i uint32, v Value) bool {
	if o.Class == ClassImmutableButterfly {
		return false
	}
	if int64(i) < int64(len(o.Indexed)) && !o.Indexed[i].IsEmpty() {
		o.Indexed[i] = v
		return true
	}
	key := strconv.FormatUint(uint64(i), 10)
	if p, ok := o.GetOwn(key); ok {
		if !p.Writable() || p.IsAccessor() {
			return false
		}
		p.Value = v
		return true
	}
	if !o.Extensible {
		return false
	}
	if o.putDense(i, v) {
		return true
	}
	if o.props == nil {
		o.props = make(map[string]*Property)
	}
	o.props[key] = &Property{Value: v, Flags: PropDefault}
	o.keys = append(o.keys, key)
	return true
}

func (o *Object) putDense(i uint32, v Value) bool {
	n := len(o.Indexed)
	if int64(i) < int64(n) {
		o.Indexed[i] = v
		return true
	}
	if int64(i) > int64(n)+maxDenseGap {
		return false
	}
	for len(o.Indexed) < int(i) {
		o.Indexed = append(o.Indexed, Empty)
	}
	o.Indexed = append(o.Indexed, v)
	return true
}

// ArrayLength 数组长度
func (o *Object) ArrayLength() uint32 {
	return uint32(len(o.Indexed))
}

// SetArrayLength 截断或扩展数组
func (o *Object) SetArrayLength(n uint32) {
	cur := uint32(len(o.Indexed))
	switch {
	case n < cur:
		o.Indexed = o.Indexed[:n]
	case n > cur:
		for i := cur; i < n; i++ {
			o.Indexed = append(o.Indexed, Empty)
		}
	}
}

// ============================================================================
// 调试输出
// ============================================================================

func (o *Object) String() string {
	if o == nil {
		return "null"
	}
	switch o.Class {
	case ClassArray, ClassImmutableButterfly:
		parts := make([]string, len(o.Indexed))
		for i, v := range o.Indexed {
			if !v.IsEmpty() {
				parts[i] = v.String()
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ClassFunction:
		return "[Function]"
	}
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range o.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v, _ := o.GetIndexOwnOrNamed(k)
		fmt.Fprintf(&sb, "%s: %s", k, v)
	}
	sb.WriteString("}")
	return sb.String()
}

// GetIndexOwnOrNamed 按键读取自身数据值，不调用访问器
func (o *Object) GetIndexOwnOrNamed(key string) (Value, bool) {
	if idx, ok := ParseIndex(key); ok {
		if v, ok := o.GetIndexOwn(idx); ok {
			return v, true
		}
	}
	if p, ok := o.GetOwn(key); ok && !p.IsAccessor() {
		return p.Value, true
	}
	return Undefined, false
}
