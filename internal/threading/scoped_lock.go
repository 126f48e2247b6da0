package threading

import (
	"sort"
)

// ============================================================================
// ScopedLock 多锁组合
// ============================================================================
//
// 按锁标识排序后依次加锁，同一组锁无论调用方以何种顺序传入，
// 实际加锁顺序都相同，因此不会因交叉顺序而死锁。
// 重复传入的同一把锁只加一次。

// ScopedLock 一次性持有多把锁
type ScopedLock struct {
	locks []Lockable
}

// NewScopedLock 以规范顺序获取全部锁
func NewScopedLock(locks ...Lockable) *ScopedLock {
	ordered := make([]Lockable, 0, len(locks))
	seen := make(map[uint64]struct{}, len(locks))
	for _, l := range locks {
		if l == nil {
			continue
		}
		if _, dup := seen[l.LockID()]; dup {
			continue
		}
		seen[l.LockID()] = struct{}{}
		ordered = append(ordered, l)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LockID() < ordered[j].LockID()
	})

	for _, l := range ordered {
		l.Lock()
	}
	return &ScopedLock{locks: ordered}
}

// Len 持有的锁数量
func (s *ScopedLock) Len() int {
	return len(s.locks)
}

// Close 逆序解锁
func (s *ScopedLock) Close() {
	for i := len(s.locks) - 1; i >= 0; i-- {
		s.locks[i].Unlock()
	}
	s.locks = nil
}
