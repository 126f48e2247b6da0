package threading

import (
	"sync"

	"go.uber.org/atomic"
)

// ============================================================================
// 一次性初始化
// ============================================================================
//
// 状态转换只允许 unset -> running -> done：
//   - 第一个把 running 位从 0 置为 1 的调用者负责执行初始化
//   - 其他调用者阻塞等待，直到状态变为 done
//   - 初始化函数 panic 时状态回到 unset，等待者被唤醒后重新竞争

const (
	onceUnset   uint32 = 0x00
	onceRunning uint32 = 0x01
	onceDone    uint32 = 0x03
)

// OnceFlag 三态一次性标志
//
// 零值可以直接使用；只有需要随会话重置时才通过 NewOnceFlag 创建。
type OnceFlag struct {
	state atomic.Uint32

	// 没有原子等待/唤醒时使用的后备互斥锁，第一次需要时创建
	waitInit sync.Once
	mu       *Mutex
	cond     *sync.Cond
}

// NewOnceFlag 创建标志并注册到会话（用于会话重置）
func NewOnceFlag(s *Session) *OnceFlag {
	f := &OnceFlag{}
	if s != nil {
		s.registerFlag(f)
	}
	return f
}

func (f *OnceFlag) waiter() (*Mutex, *sync.Cond) {
	f.waitInit.Do(func() {
		f.mu = NewMutex(nil)
		f.cond = sync.NewCond(f.mu)
	})
	return f.mu, f.cond
}

// Done 初始化是否已经完成
func (f *OnceFlag) Done() bool {
	return f.state.Load() == onceDone
}

// innerTestAndWait 竞争初始化权
//
// 返回 true 表示当前调用者赢得竞争，必须执行初始化并调用 setCalled。
// 返回 false 表示初始化已经由其他调用者完成。
func (f *OnceFlag) innerTestAndWait() bool {
	for {
		old := f.state.Load()
		if old == onceDone {
			return false
		}
		if old&onceRunning == 0 {
			if f.state.CompareAndSwap(old, old|onceRunning) {
				return true
			}
			continue
		}

		mu, cond := f.waiter()
		mu.Lock()
		for f.state.Load() == onceRunning {
			cond.Wait()
		}
		mu.Unlock()
	}
}

// setCalled 标记完成并唤醒所有等待者
//
// 只能由竞争的胜者调用一次。
func (f *OnceFlag) setCalled() {
	mu, cond := f.waiter()
	mu.Lock()
	f.state.Store(onceDone)
	cond.Broadcast()
	mu.Unlock()
}

// abort 初始化失败，回到 unset
func (f *OnceFlag) abort() {
	mu, cond := f.waiter()
	mu.Lock()
	f.state.Store(onceUnset)
	cond.Broadcast()
	mu.Unlock()
}

// running 是否有调用者正在执行初始化
func (f *OnceFlag) running() bool {
	return f.state.Load() == onceRunning
}

// reset 由会话重置调用，调用前已确认没有初始化在进行
func (f *OnceFlag) reset() {
	f.state.CompareAndSwap(onceDone, onceUnset)
}

// CallOnce 保证 fn 在 flag 生命周期内只成功执行一次
func CallOnce(f *OnceFlag, fn func()) {
	if f.state.Load() == onceDone {
		return
	}
	if !f.innerTestAndWait() {
		return
	}

	completed := false
	defer func() {
		if !completed {
			f.abort()
		}
	}()
	fn()
	completed = true
	f.setCalled()
}
