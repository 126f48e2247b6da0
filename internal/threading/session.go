package threading

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// ============================================================================
// 会话
// ============================================================================
//
// Session 持有所有进程级的延迟初始化状态。宿主在一个进程中反复加载
// 独立页面时，通过 Reset 把这些状态恢复到初始值，而不是依赖隐藏的全局单例。

// Session 全局状态注册表
type Session struct {
	mu        sync.Mutex
	flags     []*OnceFlag
	resetters []namedResetter

	generation atomic.Int64
}

type namedResetter struct {
	name string
	fn   func() error
}

// NewSession 创建会话
func NewSession() *Session {
	return &Session{}
}

func (s *Session) registerFlag(f *OnceFlag) {
	s.mu.Lock()
	s.flags = append(s.flags, f)
	s.mu.Unlock()
}

// Register 注册重置回调
func (s *Session) Register(name string, fn func() error) {
	s.mu.Lock()
	s.resetters = append(s.resetters, namedResetter{name: name, fn: fn})
	s.mu.Unlock()
}

// Generation 已经执行过的重置次数
func (s *Session) Generation() int64 {
	return s.generation.Load()
}

// Reset 重置所有注册的标志和状态
//
// 任意一个标志的初始化正在进行时整体拒绝重置，不修改任何状态。
// 回调错误会被合并返回。回调运行时持有会话锁，回调内不能再注册。
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for i, f := range s.flags {
		if f.running() {
			err = multierr.Append(err, fmt.Errorf("once flag #%d: initializer still running", i))
		}
	}
	if err != nil {
		return err
	}

	for _, f := range s.flags {
		f.reset()
	}
	for _, r := range s.resetters {
		if rerr := r.fn(); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reset %s: %w", r.name, rerr))
		}
	}
	s.generation.Inc()
	return err
}

// ============================================================================
// 按所有者划分的存储
// ============================================================================

// ThreadSpecific 每个所有者（VM 实例等）一个槽位
//
// Go 没有操作系统线程局部存储，这里以所有者身份作为键。
type ThreadSpecific[T any] struct {
	slots sync.Map
}

// NewThreadSpecific 创建存储键，s 不为 nil 时随会话重置清空
func NewThreadSpecific[T any](s *Session, name string) *ThreadSpecific[T] {
	k := &ThreadSpecific[T]{}
	if s != nil {
		s.Register(name, func() error {
			k.slots.Range(func(key, _ any) bool {
				k.slots.Delete(key)
				return true
			})
			return nil
		})
	}
	return k
}

// Get 读取槽位
func (k *ThreadSpecific[T]) Get(owner any) (T, bool) {
	v, ok := k.slots.Load(owner)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// GetOrInit 读取槽位，不存在时用 init 创建
func (k *ThreadSpecific[T]) GetOrInit(owner any, init func() T) T {
	if v, ok := k.slots.Load(owner); ok {
		return v.(T)
	}
	v, _ := k.slots.LoadOrStore(owner, init())
	return v.(T)
}

// Set 写入槽位
func (k *ThreadSpecific[T]) Set(owner any, v T) {
	k.slots.Store(owner, v)
}

// Delete 删除槽位
func (k *ThreadSpecific[T]) Delete(owner any) {
	k.slots.Delete(owner)
}
