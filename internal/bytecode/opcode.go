package bytecode

import "fmt"

// OpCode 操作码类型
type OpCode byte

const (
	// 栈操作
	OpConst     OpCode = iota // 压入常量 (index: u16)
	OpUndefined               // 压入 undefined
	OpNull                    // 压入 null
	OpTrue                    // 压入 true
	OpFalse                   // 压入 false
	OpPop                     // 弹出栈顶
	OpDup                     // a -> a a
	OpDup2                    // a b -> a b a b
	OpSwap                    // a b -> b a
	OpDupX1                   // a b -> b a b
	OpDupX2                   // a b c -> c a b c

	// 变量与作用域
	OpGetVar         // 按名读取 (name: u16)
	OpTypeofVar      // typeof 标识符，未定义时得到 "undefined" (name: u16)
	OpSetVar         // 按名赋值，值留在栈顶 (name: u16)
	OpInitLet        // 初始化当前作用域中的词法绑定并弹出 (name: u16)
	OpPushScope      // 进入块作用域 (template: u16)
	OpPopScope       // 离开块作用域
	OpPushCatchScope // 弹出异常值，绑定到新的 catch 作用域 (name: u16)

	// 属性
	OpGetProp   // obj -> obj.name (name: u16)
	OpSetProp   // obj val -> val (name: u16)
	OpGetIndex  // obj key -> obj[key]
	OpSetIndex  // obj key val -> val
	OpNewObject // 压入空对象
	OpPutField  // obj val -> obj，定义字面量属性 (name: u16)
	OpNewArray  // n 个元素 -> 数组 (count: u16)
	OpSpread    // 类数组 -> 冻结数组

	// 调用
	OpNewFunc              // 创建闭包 (function: u16)
	OpCall                 // callee this args... -> result (argc: u16)
	OpCallEval             // 可能是直接 eval 的调用 (argc: u16)
	OpNew                  // callee _ args... -> object (argc: u16)
	OpCallVarargs          // callee this fixed... arrayLike -> result (fixed: u16)
	OpNewVarargs           // callee _ fixed... arrayLike -> object (fixed: u16)
	OpCallForwardArguments // callee this -> result，转发当前帧实参
	OpReturn               // 函数返回
	OpEnd                  // 程序 / eval 结束，返回完成值
	OpSetCompletion        // 弹出并记录完成值

	// 异常
	OpThrow   // 抛出栈顶
	OpCatch   // 压入待处理异常并清除
	OpRethrow // 弹出 finally 暂存的异常值，重新抛出原来的异常

	// 跳转 (target: u32 绝对偏移)
	OpJump
	OpJumpIfFalse     // 弹出并在假值时跳转
	OpJumpIfTrue      // 弹出并在真值时跳转
	OpJumpIfFalseKeep // 假值时保留并跳转，否则弹出
	OpJumpIfTrueKeep  // 真值时保留并跳转，否则弹出
	OpLoopHint        // 循环回边，检查陷阱

	// 运算
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpToNumber
	OpInc
	OpDec
	OpNot
	OpTypeof
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpStrictEq
	OpStrictNe

	// 其他
	OpThis         // 压入 this
	OpCreateThis   // 构造调用序言：按 newTarget.prototype 创建 this
	OpDebugHook    // 调试钩子 (hook: u16)
	OpAwait        // 模块顶层 await，挂起并交还控制权
	OpResumeModule // 模块入口：按记录状态恢复挂起点

	opCount
)

var opNames = [...]string{
	OpConst:                "CONST",
	OpUndefined:            "UNDEFINED",
	OpNull:                 "NULL",
	OpTrue:                 "TRUE",
	OpFalse:                "FALSE",
	OpPop:                  "POP",
	OpDup:                  "DUP",
	OpDup2:                 "DUP2",
	OpSwap:                 "SWAP",
	OpDupX1:                "DUP_X1",
	OpDupX2:                "DUP_X2",
	OpGetVar:               "GET_VAR",
	OpTypeofVar:            "TYPEOF_VAR",
	OpSetVar:               "SET_VAR",
	OpInitLet:              "INIT_LET",
	OpPushScope:            "PUSH_SCOPE",
	OpPopScope:             "POP_SCOPE",
	OpPushCatchScope:       "PUSH_CATCH_SCOPE",
	OpGetProp:              "GET_PROP",
	OpSetProp:              "SET_PROP",
	OpGetIndex:             "GET_INDEX",
	OpSetIndex:             "SET_INDEX",
	OpNewObject:            "NEW_OBJECT",
	OpPutField:             "PUT_FIELD",
	OpNewArray:             "NEW_ARRAY",
	OpSpread:               "SPREAD",
	OpNewFunc:              "NEW_FUNC",
	OpCall:                 "CALL",
	OpCallEval:             "CALL_EVAL",
	OpNew:                  "NEW",
	OpCallVarargs:          "CALL_VARARGS",
	OpNewVarargs:           "NEW_VARARGS",
	OpCallForwardArguments: "CALL_FORWARD_ARGUMENTS",
	OpReturn:               "RETURN",
	OpEnd:                  "END",
	OpSetCompletion:        "SET_COMPLETION",
	OpThrow:                "THROW",
	OpCatch:                "CATCH",
	OpRethrow:              "RETHROW",
	OpJump:                 "JUMP",
	OpJumpIfFalse:          "JUMP_IF_FALSE",
	OpJumpIfTrue:           "JUMP_IF_TRUE",
	OpJumpIfFalseKeep:      "JUMP_IF_FALSE_KEEP",
	OpJumpIfTrueKeep:       "JUMP_IF_TRUE_KEEP",
	OpLoopHint:             "LOOP_HINT",
	OpAdd:                  "ADD",
	OpSub:                  "SUB",
	OpMul:                  "MUL",
	OpDiv:                  "DIV",
	OpMod:                  "MOD",
	OpNeg:                  "NEG",
	OpToNumber:             "TO_NUMBER",
	OpInc:                  "INC",
	OpDec:                  "DEC",
	OpNot:                  "NOT",
	OpTypeof:               "TYPEOF",
	OpLt:                   "LT",
	OpLe:                   "LE",
	OpGt:                   "GT",
	OpGe:                   "GE",
	OpEq:                   "EQ",
	OpNe:                   "NE",
	OpStrictEq:             "STRICT_EQ",
	OpStrictNe:             "STRICT_NE",
	OpThis:                 "THIS",
	OpCreateThis:           "CREATE_THIS",
	OpDebugHook:            "DEBUG_HOOK",
	OpAwait:                "AWAIT",
	OpResumeModule:         "RESUME_MODULE",
}

func (op OpCode) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("UNKNOWN(%d)", op)
}

// ============================================================================
// 操作数格式
// ============================================================================

// OperandKind 操作数种类
type OperandKind byte

const (
	OperandNone     OperandKind = iota
	OperandConst                // u16 常量池索引
	OperandName                 // u16 常量池中的名字
	OperandCount                // u16 计数
	OperandTemplate             // u16 作用域模板索引
	OperandFunction             // u16 函数表索引
	OperandHook                 // u16 调试钩子类型
	OperandJump                 // u32 绝对跳转目标
)

// Width 操作数字节数
func (k OperandKind) Width() int {
	switch k {
	case OperandNone:
		return 0
	case OperandJump:
		return 4
	default:
		return 2
	}
}

var operandKinds = [opCount]OperandKind{
	OpConst:           OperandConst,
	OpGetVar:          OperandName,
	OpTypeofVar:       OperandName,
	OpSetVar:          OperandName,
	OpInitLet:         OperandName,
	OpPushScope:       OperandTemplate,
	OpPushCatchScope:  OperandName,
	OpGetProp:         OperandName,
	OpSetProp:         OperandName,
	OpPutField:        OperandName,
	OpNewArray:        OperandCount,
	OpNewFunc:         OperandFunction,
	OpCall:            OperandCount,
	OpCallEval:        OperandCount,
	OpNew:             OperandCount,
	OpCallVarargs:     OperandCount,
	OpNewVarargs:      OperandCount,
	OpJump:            OperandJump,
	OpJumpIfFalse:     OperandJump,
	OpJumpIfTrue:      OperandJump,
	OpJumpIfFalseKeep: OperandJump,
	OpJumpIfTrueKeep:  OperandJump,
	OpDebugHook:       OperandHook,
}

// Operand 操作码的操作数种类
func (op OpCode) Operand() OperandKind {
	if op < opCount {
		return operandKinds[op]
	}
	return OperandNone
}

// Size 指令总字节数
func (op OpCode) Size() int {
	return 1 + op.Operand().Width()
}

// IsJump 是否为跳转指令
func (op OpCode) IsJump() bool {
	return op.Operand() == OperandJump
}

// IsTerminator 之后的字节不会顺序执行
func (op OpCode) IsTerminator() bool {
	switch op {
	case OpJump, OpReturn, OpEnd, OpThrow, OpRethrow:
		return true
	}
	return false
}

// ============================================================================
// 调试钩子
// ============================================================================

// DebugHookType 调试钩子类型
type DebugHookType uint16

const (
	HookWillExecuteProgram DebugHookType = iota
	HookDidExecuteProgram
	HookDidEnterCallFrame
	HookWillLeaveCallFrame
	HookWillExecuteStatement
	HookWillExecuteExpression
	HookDidReachBreakpoint
)

var hookNames = [...]string{
	HookWillExecuteProgram:    "willExecuteProgram",
	HookDidExecuteProgram:     "didExecuteProgram",
	HookDidEnterCallFrame:     "didEnterCallFrame",
	HookWillLeaveCallFrame:    "willLeaveCallFrame",
	HookWillExecuteStatement:  "willExecuteStatement",
	HookWillExecuteExpression: "willExecuteExpression",
	HookDidReachBreakpoint:    "didReachBreakpoint",
}

func (h DebugHookType) String() string {
	if int(h) < len(hookNames) {
		return hookNames[h]
	}
	return fmt.Sprintf("hook(%d)", h)
}

// Valid 是否为已定义的操作码
func (op OpCode) Valid() bool {
	return op < opCount
}
