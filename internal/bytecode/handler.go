package bytecode

// ============================================================================
// 异常处理表
// ============================================================================

// HandlerKind 处理器种类
type HandlerKind byte

const (
	HandlerCatch   HandlerKind = iota // catch 子句
	HandlerFinally                    // finally 的异常路径，执行后重新抛出
)

func (k HandlerKind) String() string {
	if k == HandlerFinally {
		return "finally"
	}
	return "catch"
}

// HandlerInfo 处理器条目
//
// [Start, End) 是受保护的字节码范围，Target 是处理器入口。
// ScopeDepth 是进入 try 时块作用域的嵌套层数，恢复时据此弹出作用域；
// StackDepth 是当时操作数栈的深度，恢复时截断到这里再压入异常。
type HandlerInfo struct {
	Start      int
	End        int
	Target     int
	Kind       HandlerKind
	ScopeDepth int
	StackDepth int
}

// Contains 偏移量是否在受保护范围内
func (h *HandlerInfo) Contains(offset int) bool {
	return offset >= h.Start && offset < h.End
}

// HandlerTable 处理器表
type HandlerTable []HandlerInfo

// Lookup 返回包含 offset 的最内层处理器
func (t HandlerTable) Lookup(offset int) (*HandlerInfo, bool) {
	var best *HandlerInfo
	for i := range t {
		h := &t[i]
		if !h.Contains(offset) {
			continue
		}
		if best == nil || h.End-h.Start < best.End-best.Start {
			best = h
		}
	}
	return best, best != nil
}
