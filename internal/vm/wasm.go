package vm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// WebAssembly
// ============================================================================
//
// wasm 模块在 wazero 解释器里运行。导出函数包装成宿主函数，调用时压入
// FrameWasm 帧。模块可以导入 "env" 的两个函数：
//
//	throw(tag i32, payload i32)    抛出带标签的 wasm 异常
//	call_js(slot i32, arg i32) i32 调用实例化时传入的第 slot 个脚本函数
//
// wasm 帧的处理器表按标签匹配异常，命中时调用处理器指定的导出函数，
// 返回值作为原调用的结果。陷阱产生 RuntimeError，脚本可以捕获，
// wasm 处理器不能。

const wasmHostModule = "env"

// wasmThrow throw 导入函数中断 wasm 执行时使用的错误
type wasmThrow struct {
	tag     uint32
	payload uint32
}

func (e *wasmThrow) Error() string {
	return fmt.Sprintf("wasm exception (tag %d)", e.tag)
}

// wasmExceptionData WebAssembly.Exception 对象的内部数据
type wasmExceptionData struct {
	tag     uint32
	payload uint32
}

type wasmEngine struct {
	ctx       context.Context
	runtime   wazero.Runtime
	instances map[string]*WasmInstance
}

// WasmInstance 一个已实例化的 wasm 模块
type WasmInstance struct {
	vm      *VM
	name    string
	mod     api.Module
	imports []*bytecode.Object

	pendingThrow *wasmThrow
	pendingErr   error
}

type wasmFunction struct {
	inst     *WasmInstance
	fn       api.Function
	name     string
	handlers []WasmHandler
}

// wasmRuntime 首次使用时创建 wazero 运行时和 env 模块
func (vm *VM) wasmRuntime() (*wasmEngine, error) {
	if vm.wasm != nil {
		return vm.wasm, nil
	}
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	eng := &wasmEngine{ctx: ctx, runtime: r, instances: make(map[string]*WasmInstance)}

	_, err := r.NewHostModuleBuilder(wasmHostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := eng.instances[mod.Name()]
			t := &wasmThrow{tag: api.DecodeU32(stack[0]), payload: api.DecodeU32(stack[1])}
			if inst != nil {
				inst.pendingThrow = t
			}
			panic(t)
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("throw").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			inst := eng.instances[mod.Name()]
			if inst == nil {
				panic(fmt.Errorf("call_js from unknown module %q", mod.Name()))
			}
			slot := int(api.DecodeI32(stack[0]))
			if slot < 0 || slot >= len(inst.imports) {
				inst.pendingErr = inst.vm.takeError(RangeErrorName, "call_js slot %d out of range", slot)
				panic(inst.pendingErr)
			}
			arg := bytecode.NewInt(int64(api.DecodeI32(stack[1])))
			v, err := inst.vm.ExecuteCall(inst.imports[slot], bytecode.Undefined, []bytecode.Value{arg})
			if err != nil {
				inst.pendingErr = err
				panic(err)
			}
			stack[0] = api.EncodeI32(toInt32(v))
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("call_js").
		Instantiate(ctx)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("instantiate %s host module: %w", wasmHostModule, err)
	}
	vm.wasm = eng
	return eng, nil
}

func (e *wasmEngine) close() error {
	return e.runtime.Close(e.ctx)
}

// InstantiateWasm 编译并实例化 wasm 模块，imports 是 call_js 可以调用的脚本函数
func (vm *VM) InstantiateWasm(ctx context.Context, name string, binary []byte, imports ...*bytecode.Object) (*WasmInstance, error) {
	eng, err := vm.wasmRuntime()
	if err != nil {
		return nil, err
	}
	if _, ok := eng.instances[name]; ok {
		return nil, fmt.Errorf("wasm module %q already instantiated", name)
	}
	compiled, err := eng.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("compile wasm module %q: %w", name, err)
	}
	inst := &WasmInstance{vm: vm, name: name, imports: imports}
	eng.instances[name] = inst
	mod, err := eng.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		delete(eng.instances, name)
		return nil, fmt.Errorf("instantiate wasm module %q: %w", name, err)
	}
	inst.mod = mod
	vm.logger.Debug("wasm module instantiated",
		zap.String("module", name),
		zap.Int("imports", len(imports)))
	return inst, nil
}

// Name 实例化时的模块名
func (inst *WasmInstance) Name() string {
	return inst.name
}

// Function 把导出函数包装成脚本函数，handlers 是它的处理器表
func (inst *WasmInstance) Function(export string, handlers ...WasmHandler) (*bytecode.Object, error) {
	fn := inst.mod.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("wasm module %q has no exported function %q", inst.name, export)
	}
	for _, h := range handlers {
		if inst.mod.ExportedFunction(h.Entry) == nil {
			return nil, fmt.Errorf("wasm module %q has no handler entry %q", inst.name, h.Entry)
		}
	}
	return inst.vm.newFunctionObject(&Function{
		Name:  export,
		Arity: len(fn.Definition().ParamTypes()),
		wasm:  &wasmFunction{inst: inst, fn: fn, name: export, handlers: handlers},
	}), nil
}

// ============================================================================
// 调用
// ============================================================================

// callWasm 按参数类型转换实参，调用导出函数，第一个结果转换为数字
func (vm *VM) callWasm(wf *wasmFunction, args []bytecode.Value) (bytecode.Value, error) {
	def := wf.fn.Definition()
	params := make([]uint64, len(def.ParamTypes()))
	for i, t := range def.ParamTypes() {
		v := bytecode.Undefined
		if i < len(args) {
			v = args[i]
		}
		params[i] = encodeWasm(t, v)
	}

	inst := wf.inst
	inst.pendingThrow, inst.pendingErr = nil, nil
	results, err := wf.fn.Call(vm.wasm.ctx, params...)
	if err != nil {
		return bytecode.Undefined, vm.wasmError(inst, err)
	}
	if len(results) == 0 {
		return bytecode.Undefined, nil
	}
	return decodeWasm(def.ResultTypes()[0], results[0]), nil
}

func encodeWasm(t api.ValueType, v bytecode.Value) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(toInt32(v))
	case api.ValueTypeI64:
		return api.EncodeI64(int64(toNumber(v)))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(toNumber(v)))
	case api.ValueTypeF64:
		return api.EncodeF64(toNumber(v))
	}
	return 0
}

func decodeWasm(t api.ValueType, r uint64) bytecode.Value {
	switch t {
	case api.ValueTypeI32:
		return bytecode.NewInt(int64(api.DecodeI32(r)))
	case api.ValueTypeI64:
		return bytecode.NewNumber(float64(int64(r)))
	case api.ValueTypeF32:
		return bytecode.NewNumber(float64(api.DecodeF32(r)))
	case api.ValueTypeF64:
		return bytecode.NewNumber(api.DecodeF64(r))
	}
	return bytecode.Undefined
}

// wasmError 把 wazero 返回的错误转换为异常
func (vm *VM) wasmError(inst *WasmInstance, err error) error {
	if pending := inst.pendingErr; pending != nil {
		inst.pendingErr = nil
		if exc, ok := AsException(pending); ok {
			return vm.rethrow(exc)
		}
		return vm.toException(pending)
	}
	if t := inst.pendingThrow; t != nil {
		inst.pendingThrow = nil
		return vm.throwValue(bytecode.NewObjectValue(vm.newWasmException(t.tag, t.payload)))
	}

	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimPrefix(msg, "wasm error: ")
	vm.logger.Debug("wasm trap", zap.String("module", inst.name), zap.String("trap", msg))
	exc := &Exception{Value: bytecode.NewObjectValue(vm.newError(RuntimeErrorName, msg)), wasmTrap: true}
	vm.exception = exc
	return exc
}

// newWasmException 创建 WebAssembly.Exception 对象
func (vm *VM) newWasmException(tag, payload uint32) *bytecode.Object {
	obj := bytecode.NewObject(bytecode.ClassWasmException, vm.intrinsics.WasmExceptionPrototype)
	obj.Internal = &wasmExceptionData{tag: tag, payload: payload}
	obj.Define("tag", bytecode.NewInt(int64(tag)), bytecode.PropEnumerable)
	obj.Define("payload", bytecode.NewInt(int64(payload)), bytecode.PropEnumerable)
	return obj
}

// wasmTagOf 异常的标签，脚本抛出的值是 0
func wasmTagOf(v bytecode.Value) uint32 {
	if d := wasmExceptionOf(v); d != nil {
		return d.tag
	}
	return 0
}

func wasmPayloadOf(v bytecode.Value) uint32 {
	if d := wasmExceptionOf(v); d != nil {
		return d.payload
	}
	return 0
}

func wasmExceptionOf(v bytecode.Value) *wasmExceptionData {
	o := v.AsObject()
	if o == nil || o.Class != bytecode.ClassWasmException {
		return nil
	}
	d, _ := o.Internal.(*wasmExceptionData)
	return d
}

// resumeWasm 在 wasm 帧的处理器处继续：以载荷调用处理器函数
//
// 处理器函数再抛出的异常不会被同一帧捕获。成功时弹出 wasm 帧。
func (vm *VM) resumeWasm(f *CallFrame, h WasmHandler) (bytecode.Value, error) {
	exc := vm.exception
	vm.exception = nil
	payload := uint32(0)
	if exc != nil {
		payload = wasmPayloadOf(exc.Value)
	}
	f.catching = true

	wf := f.wasmFn
	entry := &wasmFunction{inst: wf.inst, fn: wf.inst.mod.ExportedFunction(h.Entry), name: h.Entry}
	v, err := vm.callWasm(entry, []bytecode.Value{bytecode.NewInt(int64(payload))})
	if err != nil {
		return bytecode.Undefined, err
	}
	vm.popFrame()
	return v, nil
}
