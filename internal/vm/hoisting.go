package vm

import (
	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

// ============================================================================
// 全局声明
// ============================================================================
//
// 先检查全部冲突，全部通过后才提交，失败时全局对象和全局词法作用域
// 都不变。

// initializeGlobalProperties 把程序顶层声明放进全局作用域
func (vm *VM) initializeGlobalProperties(cb *bytecode.CodeBlock) error {
	global := vm.global
	lex := vm.lexicalScope

	for _, l := range cb.Decls.Lexicals {
		if _, ok := lex.Own(l.Name); ok {
			return vm.throwError(SyntaxErrorName, "Can't create duplicate variable: '%s'", l.Name)
		}
		if p, ok := global.GetOwn(l.Name); ok && !p.Configurable() {
			return vm.throwError(SyntaxErrorName, "Can't create duplicate variable that shadows a global property: '%s'", l.Name)
		}
	}
	for _, d := range cb.Decls.Functions {
		if _, ok := lex.Own(d.Name); ok {
			return vm.throwError(SyntaxErrorName, "Can't create duplicate variable: '%s'", d.Name)
		}
		if !canDeclareGlobalFunction(global, d.Name) {
			return vm.throwError(TypeErrorName, "Can't declare global function '%s': property must be either configurable or both writable and enumerable", d.Name)
		}
	}
	for _, name := range cb.Decls.VarNames {
		if _, ok := lex.Own(name); ok {
			return vm.throwError(SyntaxErrorName, "Can't create duplicate variable: '%s'", name)
		}
		if !global.HasOwn(name) && !global.Extensible {
			return vm.throwError(TypeErrorName, "Can't declare global variable '%s': global object must be extensible", name)
		}
	}
	if !global.Extensible {
		for _, d := range cb.Decls.Functions {
			if !global.HasOwn(d.Name) {
				return vm.throwError(TypeErrorName, "Can't declare global function '%s': global object must be extensible", d.Name)
			}
		}
	}

	for _, l := range cb.Decls.Lexicals {
		kind := bytecode.BindLet
		if l.Const {
			kind = bytecode.BindConst
		}
		lex.Declare(l.Name, kind, bytecode.Empty)
	}
	for _, d := range cb.Decls.Functions {
		closure := bytecode.NewObjectValue(vm.newClosure(cb.Functions[d.Index], lex))
		if p, ok := global.GetOwn(d.Name); ok && !p.Configurable() {
			global.Set(d.Name, closure)
			continue
		}
		global.Define(d.Name, closure, bytecode.PropWritable|bytecode.PropEnumerable)
	}
	for _, name := range cb.Decls.VarNames {
		if global.HasOwn(name) {
			continue
		}
		global.Define(name, bytecode.Undefined, bytecode.PropWritable|bytecode.PropEnumerable)
	}
	return nil
}

// canDeclareGlobalFunction 已有属性必须可配置，或者可写且可枚举
func canDeclareGlobalFunction(global *bytecode.Object, name string) bool {
	p, ok := global.GetOwn(name)
	if !ok {
		return true
	}
	if p.Configurable() {
		return true
	}
	return p.Writable() && p.Enumerable() && !p.IsAccessor()
}

// ============================================================================
// eval 声明
// ============================================================================

// evalDeclarationInstantiation 为 eval 代码准备变量作用域并提升声明，返回帧作用域
//
// 严格 eval 得到新的变量作用域；非严格 eval 的 var 落在最近的 var 作用域
// （可能是全局对象）。非严格时从 scope 到 var 作用域之间已有的词法绑定
// 与 var 同名是 SyntaxError。检查全部通过后才提交。
func (vm *VM) evalDeclarationInstantiation(cb *bytecode.CodeBlock, scope *bytecode.Scope) (*bytecode.Scope, error) {
	varScope := scope.VarScope()
	if cb.Strict {
		varScope = bytecode.NewScope(bytecode.ScopeStrictEval, scope)
	}

	names := make([]string, 0, len(cb.Decls.VarNames)+len(cb.Decls.Functions))
	names = append(names, cb.Decls.VarNames...)
	for _, d := range cb.Decls.Functions {
		names = append(names, d.Name)
	}

	if !cb.Strict {
		for _, name := range names {
			if vm.lexicalConflict(scope, varScope, name) {
				return nil, vm.throwError(SyntaxErrorName, "Can't create duplicate variable in eval: '%s'", name)
			}
		}
		if varScope.Object != nil {
			global := varScope.Object
			for _, d := range cb.Decls.Functions {
				if !canDeclareGlobalFunction(global, d.Name) {
					return nil, vm.throwError(TypeErrorName, "Can't declare global function '%s': property must be either configurable or both writable and enumerable", d.Name)
				}
			}
			for _, name := range names {
				if !global.HasOwn(name) && !global.Extensible {
					return nil, vm.throwError(TypeErrorName, "Can't declare global variable '%s': global object must be extensible", name)
				}
			}
		}
	}

	frameScope := bytecode.NewScope(bytecode.ScopeBlock, scope)
	if cb.Strict {
		frameScope.Parent = varScope
	}
	for _, l := range cb.Decls.Lexicals {
		kind := bytecode.BindLet
		if l.Const {
			kind = bytecode.BindConst
		}
		frameScope.Declare(l.Name, kind, bytecode.Empty)
	}

	for _, name := range cb.Decls.VarNames {
		vm.declareEvalVar(varScope, name, bytecode.Undefined, false)
	}
	for _, d := range cb.Decls.Functions {
		closure := bytecode.NewObjectValue(vm.newClosure(cb.Functions[d.Index], frameScope))
		vm.declareEvalVar(varScope, d.Name, closure, true)
	}
	return frameScope, nil
}

// lexicalConflict 从 scope 到 varScope（含）之间是否有同名词法绑定
//
// var 作用域是全局对象时还要查全局词法作用域。
func (vm *VM) lexicalConflict(scope, varScope *bytecode.Scope, name string) bool {
	for cur := scope; cur != nil; cur = cur.Parent {
		if b, ok := cur.Own(name); ok && (b.Kind.IsLexical() || cur.Kind == bytecode.ScopeGlobalLexical) {
			return true
		}
		if cur == varScope {
			break
		}
	}
	if varScope.Object != nil {
		if _, ok := vm.lexicalScope.Own(name); ok {
			return true
		}
	}
	return false
}

// declareEvalVar 全局时定义为可删除的全局属性，否则声明为 var 绑定
func (vm *VM) declareEvalVar(varScope *bytecode.Scope, name string, v bytecode.Value, overwrite bool) {
	if global := varScope.Object; global != nil {
		if p, ok := global.GetOwn(name); ok {
			if overwrite {
				if p.Configurable() {
					global.Define(name, v, bytecode.PropDefault)
				} else {
					global.Set(name, v)
				}
			}
			return
		}
		global.Define(name, v, bytecode.PropDefault)
		return
	}
	b := varScope.Declare(name, bytecode.BindVar, v)
	if overwrite {
		b.Value = v
	}
}
