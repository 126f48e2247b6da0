package bytecode

import (
	"github.com/tangzhangming/wkcjs/internal/threading"
)

// ============================================================================
// 代码缓存
// ============================================================================
//
// 以源码摘要为键缓存程序 / eval / 模块的代码单元，可在同一会话的多个
// VM 之间共享。会话重置时清空。

type cacheKey struct {
	hash       [32]byte
	typ        CodeType
	strict     bool
	debugHooks bool
}

// CodeCache 代码单元缓存
type CodeCache struct {
	mu      *threading.Mutex
	entries map[cacheKey]*CodeBlock
	limit   int
}

// NewCodeCache 创建缓存，limit <= 0 表示不限制
func NewCodeCache(s *threading.Session, limit int) *CodeCache {
	c := &CodeCache{
		mu:      threading.NewMutex(nil),
		entries: make(map[cacheKey]*CodeBlock),
		limit:   limit,
	}
	if s != nil {
		s.Register("code cache", func() error {
			c.Clear()
			return nil
		})
	}
	return c
}

// Get 查找缓存
func (c *CodeCache) Get(src *SourceCode, typ CodeType, opts CompileOptions) (*CodeBlock, bool) {
	g := threading.NewLockGuard(c.mu)
	defer g.Close()
	cb, ok := c.entries[cacheKey{src.Hash, typ, opts.Strict, opts.DebugHooks}]
	return cb, ok
}

// Put 写入缓存，超过上限时整体清空
func (c *CodeCache) Put(src *SourceCode, typ CodeType, opts CompileOptions, cb *CodeBlock) {
	g := threading.NewLockGuard(c.mu)
	defer g.Close()
	if c.limit > 0 && len(c.entries) >= c.limit {
		c.entries = make(map[cacheKey]*CodeBlock)
	}
	c.entries[cacheKey{src.Hash, typ, opts.Strict, opts.DebugHooks}] = cb
}

// Len 缓存条目数
func (c *CodeCache) Len() int {
	g := threading.NewLockGuard(c.mu)
	defer g.Close()
	return len(c.entries)
}

// Clear 清空缓存
func (c *CodeCache) Clear() {
	g := threading.NewLockGuard(c.mu)
	defer g.Close()
	c.entries = make(map[cacheKey]*CodeBlock)
}

// Each 遍历缓存的代码单元
func (c *CodeCache) Each(fn func(*CodeBlock)) {
	g := threading.NewLockGuard(c.mu)
	blocks := make([]*CodeBlock, 0, len(c.entries))
	for _, cb := range c.entries {
		blocks = append(blocks, cb)
	}
	g.Close()
	for _, cb := range blocks {
		fn(cb)
	}
}
