// Package threading 提供引擎底层使用的同步原语。
//
// 这些原语可以在完整的线程运行时启动之前使用：互斥锁、RAII 风格的锁包装、
// 多锁组合、一次性初始化以及按所有者划分的存储槽位。
package threading

import (
	"sync"

	"go.uber.org/atomic"
)

// ============================================================================
// 平台轻量互斥锁
// ============================================================================

// LightMutexPeer 平台提供的轻量互斥锁
//
// 所有调用都被视为不会失败。Unlock 未持有的锁属于未定义行为，
// 与底层实现保持一致。
type LightMutexPeer interface {
	Init()
	Lock()
	Unlock()
	TryLock() bool
	Finalize()
}

// Lockable 可以被 ScopedLock 组合的锁
type Lockable interface {
	Lock()
	Unlock()
	TryLock() bool
	// LockID 进程内唯一的锁标识，用于规范化加锁顺序
	LockID() uint64
}

// goMutexPeer 基于 sync.Mutex 的默认平台实现
type goMutexPeer struct {
	mu sync.Mutex
}

func (p *goMutexPeer) Init()         {}
func (p *goMutexPeer) Lock()         { p.mu.Lock() }
func (p *goMutexPeer) Unlock()       { p.mu.Unlock() }
func (p *goMutexPeer) TryLock() bool { return p.mu.TryLock() }
func (p *goMutexPeer) Finalize()     {}

// NewDefaultPeer 创建默认的平台互斥锁
func NewDefaultPeer() LightMutexPeer {
	return &goMutexPeer{}
}

// lockIDs 锁标识分配器
var lockIDs atomic.Uint64

func nextLockID() uint64 {
	return lockIDs.Inc()
}

// ============================================================================
// Mutex
// ============================================================================

// Mutex 委托给平台 peer 的互斥锁
//
// 不保证公平性，也不支持递归加锁。
type Mutex struct {
	peer LightMutexPeer
	id   uint64
}

// NewMutex 创建互斥锁，peer 为 nil 时使用默认实现
func NewMutex(peer LightMutexPeer) *Mutex {
	if peer == nil {
		peer = NewDefaultPeer()
	}
	peer.Init()
	return &Mutex{peer: peer, id: nextLockID()}
}

// Lock 加锁
func (m *Mutex) Lock() { m.peer.Lock() }

// Unlock 解锁
func (m *Mutex) Unlock() { m.peer.Unlock() }

// TryLock 尝试加锁
func (m *Mutex) TryLock() bool { return m.peer.TryLock() }

// LockID 返回锁标识
func (m *Mutex) LockID() uint64 { return m.id }

// Close 释放平台资源
func (m *Mutex) Close() {
	m.peer.Finalize()
}

// ============================================================================
// UniqueLock / LockGuard
// ============================================================================

// LockMode UniqueLock 的构造方式
type LockMode int

const (
	LockNow   LockMode = iota // 立即加锁
	DeferLock                 // 延迟加锁
	TryToLock                 // 尝试加锁
	AdoptLock                 // 接管已经持有的锁
)

// UniqueLock 可转移所有权的锁包装
type UniqueLock struct {
	m     Lockable
	owned bool
}

// NewUniqueLock 按指定模式创建
func NewUniqueLock(m Lockable, mode LockMode) *UniqueLock {
	l := &UniqueLock{m: m}
	switch mode {
	case LockNow:
		m.Lock()
		l.owned = true
	case TryToLock:
		l.owned = m.TryLock()
	case AdoptLock:
		l.owned = true
	case DeferLock:
	}
	return l
}

// Lock 加锁
func (l *UniqueLock) Lock() {
	l.m.Lock()
	l.owned = true
}

// TryLock 尝试加锁
func (l *UniqueLock) TryLock() bool {
	l.owned = l.m.TryLock()
	return l.owned
}

// Unlock 解锁
func (l *UniqueLock) Unlock() {
	l.m.Unlock()
	l.owned = false
}

// OwnsLock 是否持有锁
func (l *UniqueLock) OwnsLock() bool {
	return l.owned
}

// Release 放弃所有权但不解锁，返回底层锁
func (l *UniqueLock) Release() Lockable {
	m := l.m
	l.m = nil
	l.owned = false
	return m
}

// Close 仅在持有时解锁
func (l *UniqueLock) Close() {
	if l.owned && l.m != nil {
		l.Unlock()
	}
}

// LockGuard 构造即加锁，Close 时解锁
type LockGuard struct {
	m Lockable
}

// NewLockGuard 加锁并返回守卫
func NewLockGuard(m Lockable) *LockGuard {
	m.Lock()
	return &LockGuard{m: m}
}

// Close 解锁
func (g *LockGuard) Close() {
	g.m.Unlock()
}
