package threading

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// ============================================================================
// 一次性初始化测试
// ============================================================================

func TestCallOnceConcurrentFirstUse(t *testing.T) {
	s := NewSession()
	flag := NewOnceFlag(s)

	var runs atomic.Int32
	var finished atomic.Bool
	const workers = 64

	var wg sync.WaitGroup
	observed := make([]bool, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			CallOnce(flag, func() {
				runs.Inc()
				time.Sleep(5 * time.Millisecond)
				finished.Store(true)
			})
			observed[id] = finished.Load()
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	for i, ok := range observed {
		assert.True(t, ok, "worker %d returned before the initializer finished", i)
	}
	assert.True(t, flag.Done())
}

func TestCallOnceRetriesAfterPanic(t *testing.T) {
	flag := NewOnceFlag(nil)

	require.Panics(t, func() {
		CallOnce(flag, func() { panic("boom") })
	})
	assert.False(t, flag.Done())

	ran := false
	CallOnce(flag, func() { ran = true })
	assert.True(t, ran)
	assert.True(t, flag.Done())
}

func TestCallOnceZeroValueFlagUnderContention(t *testing.T) {
	var flag OnceFlag

	var runs atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			CallOnce(&flag, func() {
				runs.Inc()
				time.Sleep(5 * time.Millisecond)
			})
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.True(t, flag.Done())
}

func TestSessionResetRearmsFlags(t *testing.T) {
	s := NewSession()
	flag := NewOnceFlag(s)

	count := 0
	CallOnce(flag, func() { count++ })
	CallOnce(flag, func() { count++ })
	require.Equal(t, 1, count)

	require.NoError(t, s.Reset())
	CallOnce(flag, func() { count++ })
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(1), s.Generation())
}

func TestSessionResetAggregatesErrors(t *testing.T) {
	s := NewSession()
	s.Register("a", func() error { return assert.AnError })
	s.Register("b", func() error { return nil })
	s.Register("c", func() error { return assert.AnError })

	err := s.Reset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset a")
	assert.Contains(t, err.Error(), "reset c")
}

func TestSessionResetRefusesWhileInitializing(t *testing.T) {
	s := NewSession()
	done := NewOnceFlag(s)
	busy := NewOnceFlag(s)

	resets := 0
	s.Register("counter", func() error { resets++; return nil })

	CallOnce(done, func() {})
	require.True(t, done.Done())

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		CallOnce(busy, func() {
			close(entered)
			<-release
		})
	}()
	<-entered

	err := s.Reset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "once flag #1")
	assert.True(t, done.Done(), "completed flag must stay done")
	assert.Equal(t, 0, resets)
	assert.Equal(t, int64(0), s.Generation())

	close(release)
	<-finished
	assert.True(t, busy.Done())

	require.NoError(t, s.Reset())
	assert.False(t, done.Done())
	assert.False(t, busy.Done())
	assert.Equal(t, 1, resets)
	assert.Equal(t, int64(1), s.Generation())
}

// ============================================================================
// 锁测试
// ============================================================================

func TestUniqueLockModes(t *testing.T) {
	m := NewMutex(nil)
	defer m.Close()

	l := NewUniqueLock(m, DeferLock)
	assert.False(t, l.OwnsLock())
	l.Lock()
	assert.True(t, l.OwnsLock())

	other := NewUniqueLock(m, TryToLock)
	assert.False(t, other.OwnsLock())
	other.Close()

	l.Close()
	assert.True(t, m.TryLock())

	adopted := NewUniqueLock(m, AdoptLock)
	assert.True(t, adopted.OwnsLock())
	adopted.Close()
	assert.True(t, m.TryLock())
	m.Unlock()
}

func TestScopedLockCanonicalOrder(t *testing.T) {
	a := NewMutex(nil)
	b := NewMutex(nil)
	c := NewMutex(nil)

	var wg sync.WaitGroup
	const rounds = 500
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			l := NewScopedLock(a, b, c)
			l.Close()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			l := NewScopedLock(c, b, a)
			l.Close()
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scoped locks with reversed order deadlocked")
	}
}

func TestScopedLockDeduplicates(t *testing.T) {
	a := NewMutex(nil)
	l := NewScopedLock(a, a)
	assert.Equal(t, 1, l.Len())
	l.Close()
	assert.True(t, a.TryLock())
	a.Unlock()
}

func TestThreadSpecificPerOwner(t *testing.T) {
	s := NewSession()
	key := NewThreadSpecific[int](s, "counter")

	ownerA, ownerB := &struct{ n int }{1}, &struct{ n int }{2}
	key.Set(ownerA, 10)
	assert.Equal(t, 20, key.GetOrInit(ownerB, func() int { return 20 }))

	v, ok := key.Get(ownerA)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	require.NoError(t, s.Reset())
	_, ok = key.Get(ownerA)
	assert.False(t, ok)
}
