package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/literal"
)

// ============================================================================
// JSONP 快速路径
// ============================================================================
//
// 程序整体是 `var a = JSON;`、`a.b = JSON;` 或 `f(JSON);` 这样的语句序列时，
// 直接解析字面量并执行赋值或调用，不生成字节码。第一条语句的第一段解析
// 失败时还没有任何副作用，退回完整编译；之后的失败照常抛出。

// executeJSONP handled 为 false 表示应当走完整编译
func (vm *VM) executeJSONP(src string) (bytecode.Value, bool, error) {
	entries, ok := literal.TryJSONPParse(src)
	if !ok || len(entries) == 0 {
		return bytecode.Undefined, false, nil
	}

	result := bytecode.Undefined
	for i, data := range entries {
		first := i == 0
		value := vm.literalValue(data.Value)
		path := data.Path

		if path[0].Type == literal.PathDeclareVar {
			name := path[0].Name
			if _, ok := vm.lexicalScope.Own(name); ok {
				if first {
					return bytecode.Undefined, false, nil
				}
				return bytecode.Undefined, true, vm.throwError(SyntaxErrorName, "Can't create duplicate variable: '%s'", name)
			}
			if !vm.global.HasOwn(name) {
				if !vm.global.Extensible {
					return bytecode.Undefined, true, vm.throwError(TypeErrorName, "Can't declare global variable '%s': global object must be extensible", name)
				}
				vm.global.Define(name, bytecode.Undefined, bytecode.PropWritable|bytecode.PropEnumerable)
			}
			if err := vm.putProperty(bytecode.NewObjectValue(vm.global), name, value, false); err != nil {
				return bytecode.Undefined, true, err
			}
			result = bytecode.Undefined
			continue
		}

		if len(path) == 1 {
			v, handled, err := vm.jsonpSingle(path[0], value, first)
			if !handled {
				return bytecode.Undefined, false, nil
			}
			if err != nil {
				return bytecode.Undefined, true, err
			}
			result = v
			continue
		}

		base, found, err := vm.jsonpRoot(path[0].Name)
		if err != nil {
			return bytecode.Undefined, true, err
		}
		if !found {
			if first {
				return bytecode.Undefined, false, nil
			}
			return bytecode.Undefined, true, vm.throwError(ReferenceErrorName, "Can't find variable: %s", path[0].Name)
		}
		for _, seg := range path[1 : len(path)-1] {
			if base, err = vm.jsonpStep(base, seg); err != nil {
				return bytecode.Undefined, true, err
			}
		}

		last := path[len(path)-1]
		switch last.Type {
		case literal.PathDot:
			err = vm.putProperty(base, last.Name, value, false)
			result = value
		case literal.PathLookup:
			err = vm.putByValue(base, bytecode.NewNumber(float64(last.Index)), value, false)
			result = value
		case literal.PathCall:
			var fn bytecode.Value
			if fn, err = vm.getProperty(base, last.Name); err == nil {
				result, err = vm.jsonpCall(fn, base, value, last.Name)
			}
		}
		if err != nil {
			return bytecode.Undefined, true, err
		}
	}
	return result, true, nil
}

// jsonpSingle 只有一段的赋值或调用：先查全局词法作用域，再查全局对象
func (vm *VM) jsonpSingle(seg literal.PathEntry, value bytecode.Value, first bool) (bytecode.Value, bool, error) {
	name := seg.Name
	if b, ok := vm.lexicalScope.Own(name); ok {
		if !b.Initialized() {
			return bytecode.Undefined, true, vm.throwError(ReferenceErrorName, "Cannot access '%s' before initialization.", name)
		}
		if seg.Type == literal.PathCall {
			v, err := vm.jsonpCall(b.Value, bytecode.Undefined, value, name)
			return v, true, err
		}
		if b.Kind == bytecode.BindConst {
			return bytecode.Undefined, true, vm.throwError(TypeErrorName, "Attempted to assign to readonly property.")
		}
		b.Value = value
		return value, true, nil
	}

	if !hasProperty(vm.global, name) {
		if first {
			return bytecode.Undefined, false, nil
		}
		return bytecode.Undefined, true, vm.throwError(ReferenceErrorName, "Can't find variable: %s", name)
	}
	if seg.Type == literal.PathCall {
		fn, err := vm.getProperty(bytecode.NewObjectValue(vm.global), name)
		if err != nil {
			return bytecode.Undefined, true, err
		}
		v, err := vm.jsonpCall(fn, bytecode.Undefined, value, name)
		return v, true, err
	}
	return value, true, vm.putProperty(bytecode.NewObjectValue(vm.global), name, value, false)
}

// jsonpRoot 路径第一段的值
func (vm *VM) jsonpRoot(name string) (bytecode.Value, bool, error) {
	if b, ok := vm.lexicalScope.Own(name); ok {
		if !b.Initialized() {
			return bytecode.Undefined, true, vm.throwError(ReferenceErrorName, "Cannot access '%s' before initialization.", name)
		}
		return b.Value, true, nil
	}
	if !hasProperty(vm.global, name) {
		return bytecode.Undefined, false, nil
	}
	v, err := vm.getProperty(bytecode.NewObjectValue(vm.global), name)
	return v, true, err
}

// jsonpStep 中间段
func (vm *VM) jsonpStep(base bytecode.Value, seg literal.PathEntry) (bytecode.Value, error) {
	switch seg.Type {
	case literal.PathLookup:
		return vm.getByValue(base, bytecode.NewNumber(float64(seg.Index)))
	default:
		return vm.getProperty(base, seg.Name)
	}
}

func (vm *VM) jsonpCall(fn, this, arg bytecode.Value, name string) (bytecode.Value, error) {
	if !fn.IsFunction() {
		return bytecode.Undefined, vm.throwError(TypeErrorName, "%s is not a function. (In '%s(...)', '%s' is %s)", name, name, name, describeValue(fn))
	}
	return vm.ExecuteCall(fn.AsObject(), this, []bytecode.Value{arg})
}

// literalValue 把字面量转换为脚本值，重复键后者覆盖前者
func (vm *VM) literalValue(v *literal.Value) bytecode.Value {
	switch v.Kind {
	case literal.Null:
		return bytecode.Null
	case literal.Bool:
		return bytecode.NewBool(v.Bool)
	case literal.Number:
		return bytecode.NewNumber(v.Number)
	case literal.String:
		return bytecode.NewString(v.Str)
	case literal.Array:
		elems := make([]bytecode.Value, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = vm.literalValue(e)
		}
		return bytecode.NewObjectValue(vm.NewArray(elems))
	case literal.Object:
		obj := vm.NewObject()
		for _, m := range v.Members {
			obj.Define(m.Key, vm.literalValue(m.Value), bytecode.PropDefault)
		}
		return bytecode.NewObjectValue(obj)
	}
	return bytecode.Undefined
}

// FromLiteral 把 JSON 字面量转换为脚本值
func (vm *VM) FromLiteral(v *literal.Value) bytecode.Value {
	return vm.literalValue(v)
}
