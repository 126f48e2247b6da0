// Package errors 提供 wkcjs 的错误处理系统
package errors

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
	LevelHelp                 // 帮助
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	case LevelHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ============================================================================
// 编译期错误码 (E 开头)
// ============================================================================

const (
	// E0001-E0099: 词法 / 语法错误
	E0001 = "E0001" // 语法错误
	E0002 = "E0002" // 意外的字符
	E0003 = "E0003" // 未闭合的字符串
	E0004 = "E0004" // 未闭合的注释
	E0005 = "E0005" // 无效的数字
	E0006 = "E0006" // 期望的 token
	E0007 = "E0007" // 意外的 token
	E0008 = "E0008" // 非法的赋值目标
	E0009 = "E0009" // 嵌套过深

	// E0100-E0199: 声明错误
	E0101 = "E0101" // 词法绑定重复声明
	E0102 = "E0102" // const 缺少初始化
	E0103 = "E0103" // 代码单元常量过多

	// E0300-E0399: 控制流错误
	E0304 = "E0304" // break 在循环外
	E0305 = "E0305" // continue 在循环外
	E0306 = "E0306" // return 在函数外
	E0307 = "E0307" // await 在模块顶层之外
)

// ============================================================================
// 运行时错误码 (R 开头)
// ============================================================================

const (
	// R0001-R0099: 通用运行时错误
	R0001 = "R0001" // 未捕获的异常
	R0002 = "R0002" // 未知操作码
	R0003 = "R0003" // 执行被终止

	// R0300-R0399: 类型 / 引用错误
	R0300 = "R0300" // TypeError
	R0301 = "R0301" // ReferenceError
	R0302 = "R0302" // SyntaxError（运行期声明冲突）
	R0303 = "R0303" // RangeError

	// R0400-R0499: 资源 / 限制错误
	R0400 = "R0400" // 栈溢出
	R0401 = "R0401" // 垃圾回收期间重入
	R0402 = "R0402" // 调用栈过深

	// R0600-R0699: WebAssembly
	R0600 = "R0600" // wasm 陷阱
	R0601 = "R0601" // wasm 模块实例化失败
)

// ============================================================================
// 错误码信息
// ============================================================================

// ErrorInfo 错误码信息
type ErrorInfo struct {
	Code     string // 错误码
	Level    Level  // 错误级别
	Summary  string // 简述
	Category string // 错误分类
}

// compilerErrors 编译期错误码信息表
var compilerErrors = map[string]ErrorInfo{
	E0001: {E0001, LevelError, "syntax error", "syntax"},
	E0002: {E0002, LevelError, "unexpected character", "syntax"},
	E0003: {E0003, LevelError, "unterminated string literal", "syntax"},
	E0004: {E0004, LevelError, "unterminated comment", "syntax"},
	E0005: {E0005, LevelError, "invalid number", "syntax"},
	E0006: {E0006, LevelError, "expected token", "syntax"},
	E0007: {E0007, LevelError, "unexpected token", "syntax"},
	E0008: {E0008, LevelError, "invalid assignment target", "syntax"},
	E0009: {E0009, LevelError, "nesting too deep", "syntax"},

	E0101: {E0101, LevelError, "duplicate lexical declaration", "declaration"},
	E0102: {E0102, LevelError, "missing initializer in const declaration", "declaration"},
	E0103: {E0103, LevelError, "too many constants in one code unit", "declaration"},

	E0304: {E0304, LevelError, "break outside loop", "control"},
	E0305: {E0305, LevelError, "continue outside loop", "control"},
	E0306: {E0306, LevelError, "return outside function", "control"},
	E0307: {E0307, LevelError, "await outside module top level", "control"},
}

// runtimeErrors 运行时错误码信息表
var runtimeErrors = map[string]ErrorInfo{
	R0001: {R0001, LevelError, "uncaught exception", "runtime"},
	R0002: {R0002, LevelError, "unknown opcode", "runtime"},
	R0003: {R0003, LevelError, "execution terminated", "runtime"},

	R0300: {R0300, LevelError, "type error", "type"},
	R0301: {R0301, LevelError, "reference error", "type"},
	R0302: {R0302, LevelError, "syntax error", "type"},
	R0303: {R0303, LevelError, "range error", "type"},

	R0400: {R0400, LevelError, "stack overflow", "resource"},
	R0401: {R0401, LevelError, "reentry during garbage collection", "resource"},
	R0402: {R0402, LevelError, "call stack too deep", "resource"},

	R0600: {R0600, LevelError, "wasm trap", "wasm"},
	R0601: {R0601, LevelError, "wasm instantiation failed", "wasm"},
}

// GetCompilerErrorInfo 获取编译期错误信息
func GetCompilerErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := compilerErrors[code]
	return info, ok
}

// GetRuntimeErrorInfo 获取运行时错误信息
func GetRuntimeErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := runtimeErrors[code]
	return info, ok
}

// IsCompilerError 检查是否为编译期错误码
func IsCompilerError(code string) bool {
	_, ok := compilerErrors[code]
	return ok
}

// IsRuntimeError 检查是否为运行时错误码
func IsRuntimeError(code string) bool {
	_, ok := runtimeErrors[code]
	return ok
}

// RuntimeCodeForErrorName 将脚本错误构造器名称映射到运行时错误码
func RuntimeCodeForErrorName(name string) string {
	switch name {
	case "TypeError":
		return R0300
	case "ReferenceError":
		return R0301
	case "SyntaxError":
		return R0302
	case "RangeError":
		return R0303
	case "RuntimeError":
		return R0600
	default:
		return R0001
	}
}
