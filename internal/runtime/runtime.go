// Package runtime 把编译器、虚拟机和编译层组装成可嵌入的脚本运行时
package runtime

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/compiler"
	"github.com/tangzhangming/wkcjs/internal/config"
	"github.com/tangzhangming/wkcjs/internal/jit"
	"github.com/tangzhangming/wkcjs/internal/threading"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

// codeCacheLimit 运行时共享代码缓存的容量
const codeCacheLimit = 256

// Runtime wkcjs 运行时
type Runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *threading.Session
	jit     *jit.JIT
	cache   *bytecode.CodeCache
	vm      *vm.VM
	out     io.Writer
	sources map[string]string

	ownLogger bool
}

// Option 创建运行时的可选参数
type Option func(*Runtime)

// WithOutput print 与 console.log 的输出目标，默认标准输出
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) { r.out = w }
}

// WithLogger 使用外部日志器，不再按 log 配置段创建
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// New 创建运行时，cfg 为 nil 时使用默认配置
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Runtime{
		cfg:     cfg,
		out:     os.Stdout,
		sources: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		logger, err := cfg.NewLogger()
		if err != nil {
			return nil, err
		}
		r.logger = logger
		r.ownLogger = true
	}

	r.session = threading.NewSession()
	r.jit = jit.New(r.session, jit.Config{
		Enabled:         cfg.JIT.Enabled,
		TierUpThreshold: int64(cfg.JIT.TierUpThreshold),
		Workers:         cfg.JIT.Workers,
		Blocklist:       cfg.JIT.Blocklist,
	}, r.logger)
	r.cache = bytecode.NewCodeCache(r.session, codeCacheLimit)
	r.vm = vm.New(vm.Options{
		Config:    cfg.VMConfig(),
		Generator: compiler.NewGenerator(),
		JIT:       r.jit,
		Cache:     r.cache,
		Logger:    r.logger,
	})
	r.registerBuiltins()

	r.logger.Debug("runtime created",
		zap.Bool("jit", cfg.JIT.Enabled),
		zap.Bool("jsonp", cfg.Engine.JSONP),
		zap.Bool("debugHooks", cfg.Debug.Hooks))
	return r, nil
}

// VM 底层虚拟机
func (r *Runtime) VM() *vm.VM {
	return r.vm
}

// Logger 运行时日志器
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// Run 运行顶层程序，返回完成值
func (r *Runtime) Run(source, filename string) (bytecode.Value, error) {
	r.sources[filename] = source
	exe := bytecode.NewProgramExecutable(bytecode.NewSourceCode(filename, source))
	v, err := r.vm.ExecuteProgram(exe, bytecode.Undefined)
	if err != nil {
		return bytecode.Undefined, r.wrap(err)
	}
	return v, nil
}

// Eval 以匿名文件名运行一段源码
func (r *Runtime) Eval(source string) (bytecode.Value, error) {
	return r.Run(source, "<eval>")
}

// Call 调用全局函数
func (r *Runtime) Call(name string, args ...bytecode.Value) (bytecode.Value, error) {
	fn, err := r.vm.Get(bytecode.NewObjectValue(r.vm.Global()), name)
	if err != nil {
		return bytecode.Undefined, r.wrap(err)
	}
	v, err := r.vm.Call(fn, bytecode.Undefined, args...)
	if err != nil {
		return bytecode.Undefined, r.wrap(err)
	}
	return v, nil
}

// RunModule 运行模块直到求值完成
//
// 顶层 await 挂起模块后，以 await 的值恢复执行。
func (r *Runtime) RunModule(source, filename string) (bytecode.Value, error) {
	r.sources[filename] = source
	exe := bytecode.NewModuleProgramExecutable(bytecode.NewSourceCode(filename, source))
	record := vm.NewModuleRecord(filename)

	sent := bytecode.Undefined
	for {
		v, err := r.vm.ExecuteModuleProgram(record, exe, sent, vm.ResumeNormal)
		if err != nil {
			return bytecode.Undefined, r.wrap(err)
		}
		switch record.Status {
		case vm.ModuleSuspended:
			r.logger.Debug("module suspended", zap.String("module", filename))
			sent = v
		case vm.ModuleEvaluated:
			return v, nil
		default:
			// 回收进行中，入口没有执行
			return bytecode.Undefined, fmt.Errorf("module %s did not run (status %s)", filename, record.Status)
		}
	}
}

// Disassemble 编译但不运行，返回字节码文本
func (r *Runtime) Disassemble(source, filename string, module bool) (string, error) {
	gen := compiler.NewGenerator()
	src := bytecode.NewSourceCode(filename, source)
	opts := bytecode.CompileOptions{DebugHooks: r.cfg.Debug.Hooks}

	var cb *bytecode.CodeBlock
	var err error
	if module {
		cb, err = bytecode.NewModuleProgramExecutable(src).Prepare(gen, opts)
	} else {
		cb, err = bytecode.NewProgramExecutable(src).Prepare(gen, opts)
	}
	if err != nil {
		return "", err
	}
	return cb.Disassemble(), nil
}

// Close 停止编译线程并释放虚拟机
func (r *Runtime) Close() error {
	err := r.vm.Close()
	r.jit.Close()
	err = multierr.Append(err, r.session.Reset())
	if r.ownLogger {
		// Sync 对标准输出可能返回 EINVAL，忽略
		_ = r.logger.Sync()
	}
	return err
}

// Source 已运行文件的源码，用于格式化错误
func (r *Runtime) Source(filename string) (string, bool) {
	s, ok := r.sources[filename]
	return s, ok
}
