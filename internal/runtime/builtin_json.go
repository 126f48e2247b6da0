package runtime

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/literal"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

// ============================================================================
// JSON
// ============================================================================

func (r *Runtime) registerJSON() {
	j := r.vm.NewObject()
	r.vm.DefineFunction(j, "parse", 1, jsonParse)
	r.vm.DefineFunction(j, "stringify", 2, jsonStringify)
	r.vm.Global().Define("JSON", bytecode.NewObjectValue(j), bytecode.PropWritable|bytecode.PropConfigurable)
}

func jsonParse(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	text := "undefined"
	if len(args) > 0 {
		text = vm.ToString(args[0])
	}
	lit, err := literal.ParseJSON(text)
	if err != nil {
		return bytecode.Undefined, v.ThrowError(vm.SyntaxErrorName, "JSON Parse error: %s", err.Error())
	}
	return v.FromLiteral(lit), nil
}

func jsonStringify(v *vm.VM, this bytecode.Value, args []bytecode.Value) (bytecode.Value, error) {
	if len(args) == 0 {
		return bytecode.Undefined, nil
	}
	s := &stringifier{vm: v, seen: make(map[*bytecode.Object]bool)}
	if len(args) > 2 {
		s.gap = indentGap(args[2])
	}
	ok, err := s.write(args[0], "")
	if err != nil {
		return bytecode.Undefined, err
	}
	if !ok {
		return bytecode.Undefined, nil
	}
	return bytecode.NewString(s.buf.String()), nil
}

// indentGap 数字表示空格数，字符串直接使用，都截断到 10
func indentGap(space bytecode.Value) string {
	switch {
	case space.IsNumber():
		n := int(math.Min(10, math.Max(0, math.Trunc(space.AsNumber()))))
		return strings.Repeat(" ", n)
	case space.IsString():
		s := space.AsString()
		if len(s) > 10 {
			s = s[:10]
		}
		return s
	}
	return ""
}

type stringifier struct {
	vm   *vm.VM
	buf  bytes.Buffer
	gap  string
	seen map[*bytecode.Object]bool
}

// write 写入一个值；undefined 和函数不可序列化，返回 false
func (s *stringifier) write(val bytecode.Value, indent string) (bool, error) {
	switch val.Type {
	case bytecode.ValNull:
		s.buf.WriteString("null")
	case bytecode.ValBool:
		s.buf.WriteString(strconv.FormatBool(val.AsBool()))
	case bytecode.ValNumber:
		n := val.AsNumber()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			s.buf.WriteString("null")
		} else {
			s.buf.WriteString(vm.ToString(val))
		}
	case bytecode.ValString:
		return true, s.quote(val.AsString())
	case bytecode.ValObject:
		if val.IsFunction() {
			return false, nil
		}
		return true, s.writeObject(val, indent)
	default:
		return false, nil
	}
	return true, nil
}

func (s *stringifier) quote(str string) error {
	enc := json.NewEncoder(&s.buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(str); err != nil {
		return err
	}
	// Encode 追加换行
	s.buf.Truncate(s.buf.Len() - 1)
	return nil
}

func (s *stringifier) writeObject(val bytecode.Value, indent string) error {
	o := val.AsObject()
	if s.seen[o] {
		return s.vm.ThrowError(vm.TypeErrorName, "JSON.stringify cannot serialize cyclic structures.")
	}
	s.seen[o] = true
	defer delete(s.seen, o)

	inner := indent + s.gap
	isArray := o.Class == bytecode.ClassArray || o.Class == bytecode.ClassImmutableButterfly
	open, closing := byte('{'), byte('}')
	if isArray {
		open, closing = '[', ']'
	}
	s.buf.WriteByte(open)

	count := 0
	sep := func() {
		if count > 0 {
			s.buf.WriteByte(',')
		}
		if s.gap != "" {
			s.buf.WriteByte('\n')
			s.buf.WriteString(inner)
		}
		count++
	}

	if isArray {
		for i := uint32(0); i < o.ArrayLength(); i++ {
			elem, err := s.vm.Get(val, strconv.FormatUint(uint64(i), 10))
			if err != nil {
				return err
			}
			sep()
			ok, err := s.write(elem, inner)
			if err != nil {
				return err
			}
			if !ok {
				s.buf.WriteString("null")
			}
		}
	} else {
		for _, key := range o.Keys() {
			prop, err := s.vm.Get(val, key)
			if err != nil {
				return err
			}
			if prop.IsUndefined() || prop.IsFunction() {
				continue
			}
			sep()
			if err := s.quote(key); err != nil {
				return err
			}
			s.buf.WriteByte(':')
			if s.gap != "" {
				s.buf.WriteByte(' ')
			}
			if _, err := s.write(prop, inner); err != nil {
				return err
			}
		}
	}

	if count > 0 && s.gap != "" {
		s.buf.WriteByte('\n')
		s.buf.WriteString(indent)
	}
	s.buf.WriteByte(closing)
	return nil
}
