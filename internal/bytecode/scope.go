package bytecode

// ============================================================================
// 作用域链
// ============================================================================
//
// 名字在运行时沿作用域链解析，eval 因此可以在已有作用域上追加绑定。
// 全局链的末端是两层：GlobalLexical（顶层 let/const）在前，
// GlobalObject（var / function 作为全局对象属性）在后。

// ScopeKind 作用域种类
type ScopeKind byte

const (
	ScopeGlobalObject ScopeKind = iota
	ScopeGlobalLexical
	ScopeFunction
	ScopeBlock
	ScopeStrictEval
	ScopeModule
	ScopeCatch
)

var scopeKindNames = [...]string{
	ScopeGlobalObject:  "global-object",
	ScopeGlobalLexical: "global-lexical",
	ScopeFunction:      "function",
	ScopeBlock:         "block",
	ScopeStrictEval:    "strict-eval",
	ScopeModule:        "module",
	ScopeCatch:         "catch",
}

func (k ScopeKind) String() string {
	if int(k) < len(scopeKindNames) {
		return scopeKindNames[k]
	}
	return "scope"
}

// IsVarScope var 声明是否落在此作用域
func (k ScopeKind) IsVarScope() bool {
	switch k {
	case ScopeGlobalObject, ScopeFunction, ScopeStrictEval, ScopeModule:
		return true
	}
	return false
}

// BindingKind 绑定种类
type BindingKind byte

const (
	BindVar BindingKind = iota
	BindLet
	BindConst
	BindParam
	BindFunction
	BindCatchParam
	BindCallee // 命名函数表达式自身的名字
)

// IsLexical let / const 类绑定
func (k BindingKind) IsLexical() bool {
	return k == BindLet || k == BindConst
}

// Binding 变量绑定
//
// Value 为 Empty 表示处于暂时性死区。
type Binding struct {
	Name  string
	Kind  BindingKind
	Value Value
}

// Initialized 是否已经离开暂时性死区
func (b *Binding) Initialized() bool {
	return !b.Value.IsEmpty()
}

// Scope 作用域
type Scope struct {
	Kind     ScopeKind
	Parent   *Scope
	Bindings map[string]*Binding

	// Object 对象作用域（全局对象）的绑定对象
	Object *Object
}

// NewScope 创建声明式作用域
func NewScope(kind ScopeKind, parent *Scope) *Scope {
	return &Scope{
		Kind:     kind,
		Parent:   parent,
		Bindings: make(map[string]*Binding),
	}
}

// NewObjectScope 创建以对象为绑定存储的作用域
func NewObjectScope(obj *Object) *Scope {
	return &Scope{Kind: ScopeGlobalObject, Object: obj}
}

// Declare 在本作用域声明绑定，已存在时返回原绑定
func (s *Scope) Declare(name string, kind BindingKind, initial Value) *Binding {
	if b, ok := s.Bindings[name]; ok {
		return b
	}
	b := &Binding{Name: name, Kind: kind, Value: initial}
	s.Bindings[name] = b
	return b
}

// Own 本作用域自己的绑定
func (s *Scope) Own(name string) (*Binding, bool) {
	if s.Bindings == nil {
		return nil, false
	}
	b, ok := s.Bindings[name]
	return b, ok
}

// VarScope 最近的 var 作用域
func (s *Scope) VarScope() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind.IsVarScope() {
			return cur
		}
	}
	return nil
}

// Global 链末端的全局对象作用域
func (s *Scope) Global() *Scope {
	cur := s
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Depth 到链末端的层数
func (s *Scope) Depth() int {
	n := 0
	for cur := s; cur != nil; cur = cur.Parent {
		n++
	}
	return n
}

// ScopeTemplate 块作用域的编译期描述
type ScopeTemplate struct {
	Kind   ScopeKind
	Names  []string
	Consts []bool
}

// Instantiate 按模板创建作用域，词法绑定处于死区
func (t *ScopeTemplate) Instantiate(parent *Scope) *Scope {
	s := NewScope(t.Kind, parent)
	for i, name := range t.Names {
		kind := BindLet
		if t.Consts[i] {
			kind = BindConst
		}
		s.Declare(name, kind, Empty)
	}
	return s
}
