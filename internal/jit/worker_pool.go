package jit

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/threading"
)

// ============================================================================
// 后台编译线程池
// ============================================================================
//
// 每个 Worker 有自己的本地队列，Submit 轮流投递；本地队列为空时从其他
// Worker 的队尾窃取，再不行就休眠等待唤醒。编译任务很短，队列用互斥锁
// 保护，临界区里不做编译。

const (
	// LocalQueueSize 每个工作线程的本地队列容量，满了进全局队列
	LocalQueueSize = 64

	// maxWorkers 工作线程数上限
	maxWorkers = 64
)

// WorkerPoolStats 线程池统计信息
type WorkerPoolStats struct {
	TotalCompiled      int64
	TotalSteals        int64
	TotalStealFailures int64
}

// WorkerPool 编译线程池
type WorkerPool struct {
	workers []*Worker
	run     func(*bytecode.CodeBlock)
	logger  *zap.Logger

	globalMu *threading.Mutex
	global   []*bytecode.CodeBlock

	next    atomic.Uint32
	running atomic.Bool
	wg      sync.WaitGroup
	pending sync.WaitGroup
	stopCh  chan struct{}

	compiled      atomic.Int64
	steals        atomic.Int64
	stealFailures atomic.Int64
}

// NewWorkerPool 创建线程池，numWorkers <= 0 时按 CPU 核心数
func NewWorkerPool(numWorkers int, run func(*bytecode.CodeBlock), logger *zap.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > maxWorkers {
		numWorkers = maxWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &WorkerPool{
		workers:  make([]*Worker, numWorkers),
		run:      run,
		logger:   logger,
		globalMu: threading.NewMutex(nil),
		stopCh:   make(chan struct{}),
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i, p)
	}
	return p
}

// Start 启动工作线程
func (p *WorkerPool) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.loop()
	}
	p.logger.Debug("compile workers started", zap.Int("workers", len(p.workers)))
}

// Stop 停止线程池，未开始的任务被丢弃
func (p *WorkerPool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()

	// 丢弃的任务也要释放 Drain 的等待者
	for _, w := range p.workers {
		for cb := w.popLocal(); cb != nil; cb = w.popLocal() {
			p.pending.Done()
		}
	}
	for cb := p.popGlobal(); cb != nil; cb = p.popGlobal() {
		p.pending.Done()
	}
}

// Submit 提交一个代码单元
func (p *WorkerPool) Submit(cb *bytecode.CodeBlock) {
	if !p.running.Load() {
		return
	}
	p.pending.Add(1)
	w := p.workers[int(p.next.Inc())%len(p.workers)]
	if !w.pushLocal(cb) {
		p.pushGlobal(cb)
	}
	w.wake()
}

// Drain 等待已经提交的任务全部完成
func (p *WorkerPool) Drain() {
	p.pending.Wait()
}

// NumWorkers 工作线程数量
func (p *WorkerPool) NumWorkers() int {
	return len(p.workers)
}

// Stats 统计信息
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		TotalCompiled:      p.compiled.Load(),
		TotalSteals:        p.steals.Load(),
		TotalStealFailures: p.stealFailures.Load(),
	}
}

func (p *WorkerPool) pushGlobal(cb *bytecode.CodeBlock) {
	g := threading.NewLockGuard(p.globalMu)
	defer g.Close()
	p.global = append(p.global, cb)
}

func (p *WorkerPool) popGlobal() *bytecode.CodeBlock {
	g := threading.NewLockGuard(p.globalMu)
	defer g.Close()
	if len(p.global) == 0 {
		return nil
	}
	cb := p.global[0]
	p.global = p.global[1:]
	return cb
}

// ============================================================================
// 工作线程
// ============================================================================

// Worker 工作线程
type Worker struct {
	id   int
	pool *WorkerPool

	mu    *threading.Mutex
	queue []*bytecode.CodeBlock

	wakeCh   chan struct{}
	executed atomic.Int64
}

func newWorker(id int, pool *WorkerPool) *Worker {
	return &Worker{
		id:     id,
		pool:   pool,
		mu:     threading.NewMutex(nil),
		wakeCh: make(chan struct{}, 1),
	}
}

func (w *Worker) loop() {
	defer w.pool.wg.Done()
	for {
		if cb := w.findWork(); cb != nil {
			w.execute(cb)
			continue
		}
		select {
		case <-w.wakeCh:
		case <-w.pool.stopCh:
			return
		}
	}
}

// findWork 本地队列、全局队列、窃取，依次尝试
func (w *Worker) findWork() *bytecode.CodeBlock {
	if cb := w.popLocal(); cb != nil {
		return cb
	}
	if cb := w.pool.popGlobal(); cb != nil {
		return cb
	}
	return w.steal()
}

func (w *Worker) execute(cb *bytecode.CodeBlock) {
	defer w.pool.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("compile task panicked",
				zap.Int("worker", w.id),
				zap.String("codeBlock", cb.Name),
				zap.Any("panic", r))
		}
	}()
	w.pool.run(cb)
	w.executed.Inc()
	w.pool.compiled.Inc()
}

func (w *Worker) pushLocal(cb *bytecode.CodeBlock) bool {
	g := threading.NewLockGuard(w.mu)
	defer g.Close()
	if len(w.queue) >= LocalQueueSize {
		return false
	}
	w.queue = append(w.queue, cb)
	return true
}

// popLocal 自己从队头取
func (w *Worker) popLocal() *bytecode.CodeBlock {
	g := threading.NewLockGuard(w.mu)
	defer g.Close()
	if len(w.queue) == 0 {
		return nil
	}
	cb := w.queue[0]
	w.queue = w.queue[1:]
	return cb
}

// stealTail 被窃取方从队尾让出一个任务
func (w *Worker) stealTail() *bytecode.CodeBlock {
	if !w.mu.TryLock() {
		return nil
	}
	defer w.mu.Unlock()
	n := len(w.queue)
	if n == 0 {
		return nil
	}
	cb := w.queue[n-1]
	w.queue = w.queue[:n-1]
	return cb
}

func (w *Worker) steal() *bytecode.CodeBlock {
	n := len(w.pool.workers)
	if n <= 1 {
		return nil
	}
	start := int(w.executed.Load()) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == w.id {
			continue
		}
		if cb := w.pool.workers[idx].stealTail(); cb != nil {
			w.pool.steals.Inc()
			return cb
		}
	}
	w.pool.stealFailures.Inc()
	return nil
}

func (w *Worker) wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}
