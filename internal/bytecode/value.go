package bytecode

import (
	"math"
	"strconv"
	"strings"
)

// ValueType 值类型
type ValueType byte

const (
	ValUndefined ValueType = iota
	ValNull
	ValBool
	ValNumber
	ValString
	ValObject
	ValEmpty // 引擎内部的空洞 / TDZ 标记，脚本不可见
)

var typeNames = [...]string{
	ValUndefined: "undefined",
	ValNull:      "null",
	ValBool:      "boolean",
	ValNumber:    "number",
	ValString:    "string",
	ValObject:    "object",
	ValEmpty:     "<empty>",
}

func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Value 运行时值
type Value struct {
	Type ValueType
	Data interface{}
}

// 预定义常量值
var (
	Undefined = Value{Type: ValUndefined}
	Null      = Value{Type: ValNull}
	True      = Value{Type: ValBool, Data: true}
	False     = Value{Type: ValBool, Data: false}
	Empty     = Value{Type: ValEmpty}
	Zero      = Value{Type: ValNumber, Data: float64(0)}
)

// NewBool 创建布尔值
func NewBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewNumber 创建数值
func NewNumber(n float64) Value {
	return Value{Type: ValNumber, Data: n}
}

// NewInt 以整数创建数值
func NewInt(n int64) Value {
	return Value{Type: ValNumber, Data: float64(n)}
}

// NewString 创建字符串
func NewString(s string) Value {
	return Value{Type: ValString, Data: s}
}

// NewObjectValue 包装对象
func NewObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{Type: ValObject, Data: o}
}

// ============================================================================
// 类型判断
// ============================================================================

func (v Value) IsUndefined() bool { return v.Type == ValUndefined }
func (v Value) IsNull() bool      { return v.Type == ValNull }
func (v Value) IsBool() bool      { return v.Type == ValBool }
func (v Value) IsNumber() bool    { return v.Type == ValNumber }
func (v Value) IsString() bool    { return v.Type == ValString }
func (v Value) IsObject() bool    { return v.Type == ValObject }
func (v Value) IsEmpty() bool     { return v.Type == ValEmpty }

// IsUndefinedOrNull undefined 或 null
func (v Value) IsUndefinedOrNull() bool {
	return v.Type == ValUndefined || v.Type == ValNull
}

// IsCell 是否为堆对象
func (v Value) IsCell() bool {
	return v.Type == ValObject
}

// ============================================================================
// 取值
// ============================================================================

// AsBool 取布尔值
func (v Value) AsBool() bool {
	if b, ok := v.Data.(bool); ok {
		return b
	}
	return false
}

// AsNumber 取数值
func (v Value) AsNumber() float64 {
	if n, ok := v.Data.(float64); ok {
		return n
	}
	return math.NaN()
}

// AsString 取字符串
func (v Value) AsString() string {
	if s, ok := v.Data.(string); ok {
		return s
	}
	return ""
}

// AsObject 取对象
func (v Value) AsObject() *Object {
	if o, ok := v.Data.(*Object); ok {
		return o
	}
	return nil
}

// IsFunction 是否为可调用对象
func (v Value) IsFunction() bool {
	o := v.AsObject()
	return o != nil && o.Class == ClassFunction
}

// StrictEquals 严格相等 (===)
func (v Value) StrictEquals(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ValUndefined, ValNull, ValEmpty:
		return true
	case ValBool:
		return v.AsBool() == o.AsBool()
	case ValNumber:
		return v.AsNumber() == o.AsNumber()
	case ValString:
		return v.AsString() == o.AsString()
	case ValObject:
		return v.AsObject() == o.AsObject()
	}
	return false
}

// ============================================================================
// 格式化
// ============================================================================

// NumberToString 按脚本语义格式化数值
func NumberToString(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	abs := math.Abs(n)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(n, 'e', -1, 64)
		// Go 输出 1e+21，脚本语义同样是 1e+21；去掉指数前导零
		s = strings.Replace(s, "e+0", "e+", 1)
		s = strings.Replace(s, "e-0", "e-", 1)
		return s
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// String 调试用字符串表示
func (v Value) String() string {
	switch v.Type {
	case ValUndefined:
		return "undefined"
	case ValNull:
		return "null"
	case ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case ValNumber:
		return NumberToString(v.AsNumber())
	case ValString:
		return strconv.Quote(v.AsString())
	case ValObject:
		return v.AsObject().String()
	case ValEmpty:
		return "<empty>"
	}
	return "<?>"
}
