// Package jit 实现基线编译层：把字节码预解码为线程化指令。
//
// 编译层与解释器共用同一套指令语义，区别只在于取指：解释器逐字节
// 解码，编译层直接读取预解码的 Inst，跳转目标已经解析为指令下标。
package jit

import (
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/threading"
)

// Config JIT 配置
type Config struct {
	Enabled bool
	// TierUpThreshold 代码单元执行多少次后提交编译
	TierUpThreshold int64
	// Workers 后台编译线程数，0 表示在触发的调用中同步编译
	Workers int
	// Blocklist 含有这些指令（按名字）的代码单元不升级
	Blocklist []string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		TierUpThreshold: 100,
		Workers:         1,
	}
}

// Stats JIT 统计信息
type Stats struct {
	Compiled int64
	Rejected int64
	Pool     WorkerPoolStats
}

// JIT 编译层管理器
//
// 一个 JIT 可以被同一会话里的多个 VM 共享；代码单元的发布是原子的，
// 正在运行的帧继续使用它们开始时取到的代码。
type JIT struct {
	cfg    Config
	logger *zap.Logger
	pool   *WorkerPool

	tableOnce *threading.OnceFlag
	table     map[string]bytecode.OpCode
	blocked   map[bytecode.OpCode]bool

	compiled atomic.Int64
	rejected atomic.Int64
}

// New 创建 JIT，进程级的指令名表随会话重置
func New(s *threading.Session, cfg Config, logger *zap.Logger) *JIT {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TierUpThreshold <= 0 {
		cfg.TierUpThreshold = DefaultConfig().TierUpThreshold
	}
	j := &JIT{
		cfg:       cfg,
		logger:    logger.Named("jit"),
		tableOnce: threading.NewOnceFlag(s),
	}
	if cfg.Enabled && cfg.Workers > 0 {
		j.pool = NewWorkerPool(cfg.Workers, j.compileAndPublish, j.logger)
		j.pool.Start()
	}
	return j
}

// Enabled 是否启用
func (j *JIT) Enabled() bool {
	return j != nil && j.cfg.Enabled
}

// OnExecute 记录一次执行，达到阈值时提交编译
func (j *JIT) OnExecute(cb *bytecode.CodeBlock) {
	if !j.Enabled() {
		return
	}
	if cb.RecordExecution() < j.cfg.TierUpThreshold {
		return
	}
	if !cb.RequestTierUp() {
		return
	}
	if j.pool != nil {
		j.pool.Submit(cb)
		return
	}
	j.compileAndPublish(cb)
}

// CompileNow 同步编译并发布
func (j *JIT) CompileNow(cb *bytecode.CodeBlock) (*bytecode.CompiledCode, error) {
	cc, err := j.translate(cb)
	if err != nil {
		return nil, err
	}
	cb.Publish(cc)
	j.compiled.Inc()
	return cc, nil
}

func (j *JIT) compileAndPublish(cb *bytecode.CodeBlock) {
	cc, err := j.CompileNow(cb)
	if err != nil {
		j.rejected.Inc()
		j.logger.Debug("tier-up rejected",
			zap.String("codeBlock", cb.Name),
			zap.Stringer("type", cb.Type),
			zap.Error(err))
		return
	}
	j.logger.Debug("tier-up published",
		zap.String("codeBlock", cb.Name),
		zap.Stringer("kind", cb.Kind),
		zap.Int("insts", len(cc.Insts)),
		zap.Int("handlers", len(cc.Handlers)))
}

func (j *JIT) translate(cb *bytecode.CodeBlock) (*bytecode.CompiledCode, error) {
	blocked := j.blockedOpcodes()
	if len(blocked) > 0 {
		code := cb.Chunk.Code
		for ip := 0; ip < len(code); {
			op := bytecode.OpCode(code[ip])
			if blocked[op] {
				return nil, fmt.Errorf("jit: %s is blocklisted", op)
			}
			ip += op.Size()
		}
	}
	return Translate(cb)
}

// OpcodeByName 按名字查找指令，名字表在首次使用时构建一次
func (j *JIT) OpcodeByName(name string) (bytecode.OpCode, bool) {
	threading.CallOnce(j.tableOnce, func() {
		table := make(map[string]bytecode.OpCode)
		for op := bytecode.OpCode(0); op.Valid(); op++ {
			table[op.String()] = op
		}
		blocked := make(map[bytecode.OpCode]bool)
		for _, name := range j.cfg.Blocklist {
			if op, ok := table[name]; ok {
				blocked[op] = true
			} else {
				j.logger.Warn("unknown opcode in blocklist", zap.String("opcode", name))
			}
		}
		j.table = table
		j.blocked = blocked
	})
	op, ok := j.table[name]
	return op, ok
}

func (j *JIT) blockedOpcodes() map[bytecode.OpCode]bool {
	j.OpcodeByName("")
	return j.blocked
}

// Drain 等待后台编译队列清空
func (j *JIT) Drain() {
	if j.pool != nil {
		j.pool.Drain()
	}
}

// Stats 统计信息
func (j *JIT) Stats() Stats {
	s := Stats{Compiled: j.compiled.Load(), Rejected: j.rejected.Load()}
	if j.pool != nil {
		s.Pool = j.pool.Stats()
	}
	return s
}

// Close 停止后台编译线程
func (j *JIT) Close() {
	if j.pool != nil {
		j.pool.Stop()
	}
}
