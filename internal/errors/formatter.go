package errors

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ============================================================================
// 错误标签
// ============================================================================

// Label 代码标签（用于标注错误位置）
type Label struct {
	Line    int    // 行号（1-based）
	Column  int    // 列号（1-based，字节）
	Length  int    // 标注长度
	Message string // 标签消息
	Primary bool   // 是否为主要标签
}

// ============================================================================
// 编译错误
// ============================================================================

// CompileError 编译错误（词法、语法、声明冲突）
type CompileError struct {
	Code      string   // 错误码 (E0006)
	Level     Level    // 错误级别
	Message   string   // 主消息
	File      string   // 文件路径
	Line      int      // 行号
	Column    int      // 列号
	EndColumn int      // 结束列
	Labels    []Label  // 代码标签
	Hints     []string // 修复建议
	Notes     []string // 附加说明
}

// Error 实现 error 接口
func (e *CompileError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// ErrorList 一次编译产生的全部错误
type ErrorList []*CompileError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0].Error(), len(l)-1)
}

// Unwrap 支持 errors.As 取出单个 CompileError
func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// Err 没有错误时返回 nil
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// ============================================================================
// 运行时错误
// ============================================================================

// StackFrame 堆栈帧
type StackFrame struct {
	FunctionName string `json:"function"`
	FileName     string `json:"file,omitempty"`
	LineNumber   int    `json:"line,omitempty"`
	Native       bool   `json:"native,omitempty"`
	Wasm         bool   `json:"wasm,omitempty"`
}

// String 格式化为 "at name (file:line)"
func (f StackFrame) String() string {
	name := f.FunctionName
	if name == "" {
		name = "<anonymous>"
	}
	switch {
	case f.Native:
		return name + " (native)"
	case f.Wasm:
		return name + " (wasm)"
	case f.FileName != "":
		return fmt.Sprintf("%s (%s:%d)", name, f.FileName, f.LineNumber)
	default:
		return fmt.Sprintf("%s (line %d)", name, f.LineNumber)
	}
}

// RuntimeError 未被脚本捕获、传播到宿主的异常
type RuntimeError struct {
	Code       string                 // 错误码 (R0300)
	Level      Level                  // 错误级别
	Name       string                 // 脚本错误名 (TypeError)，非错误对象时为空
	Message    string                 // 主消息
	Context    map[string]interface{} // 上下文变量
	Frames     []StackFrame           // 堆栈帧
	Hints      []string               // 修复建议
	SourceLine string                 // 出错行源代码
	Column     int                    // 出错列
	Length     int                    // 标注长度
}

// Error 实现 error 接口
func (e *RuntimeError) Error() string {
	if e.Name != "" {
		return e.Name + ": " + e.Message
	}
	return e.Message
}

// ============================================================================
// 格式化器
// ============================================================================

// Formatter 错误格式化器
type Formatter struct {
	Colors     bool // 是否使用颜色
	ShowSource bool // 是否显示源代码
	ShowHints  bool // 是否显示修复建议
	TabWidth   int  // Tab 宽度
}

// NewFormatter 创建默认格式化器
func NewFormatter() *Formatter {
	return &Formatter{
		Colors:     ColorsEnabled(),
		ShowSource: true,
		ShowHints:  true,
		TabWidth:   4,
	}
}

// FormatCompileError 格式化编译错误
func (f *Formatter) FormatCompileError(err *CompileError, sourceLines []string) string {
	var sb strings.Builder

	// 错误头: error[E0006]: expected ')'
	levelStr := f.colorize(err.Level.String(), f.levelColor(err.Level))
	codeStr := f.colorize(fmt.Sprintf("[%s]", err.Code), f.levelColor(err.Level))
	sb.WriteString(fmt.Sprintf("%s%s: %s\n", levelStr, codeStr, err.Message))

	// 位置: --> file.js:5:12
	arrow := f.colorize("-->", ColorCyan)
	location := f.colorize(fmt.Sprintf("%s:%d:%d", err.File, err.Line, err.Column), ColorCyan)
	sb.WriteString(fmt.Sprintf(" %s %s\n", arrow, location))

	if f.ShowSource && err.Line > 0 && err.Line <= len(sourceLines) {
		sb.WriteString(f.formatSourceContext(sourceLines, err.Line, err.Column, err.EndColumn, err.Labels))
	}

	if f.ShowHints {
		for _, hint := range err.Hints {
			sb.WriteString(fmt.Sprintf("%s %s\n", f.colorize(" = help:", ColorCyan), hint))
		}
	}
	for _, note := range err.Notes {
		sb.WriteString(fmt.Sprintf("%s %s\n", f.colorize(" = note:", ColorCyan), note))
	}

	return sb.String()
}

// FormatRuntimeError 格式化运行时错误
func (f *Formatter) FormatRuntimeError(err *RuntimeError, sourceCache map[string][]string) string {
	var sb strings.Builder

	title := "Uncaught"
	if err.Name != "" {
		title += " " + err.Name
	}
	sb.WriteString(fmt.Sprintf("%s%s: %s\n",
		f.colorize(title, ColorBoldRed),
		f.colorize(fmt.Sprintf("[%s]", err.Code), ColorRed),
		err.Message))

	if len(err.Context) > 0 {
		sb.WriteString("\n")
		for key, value := range err.Context {
			sb.WriteString(fmt.Sprintf("%s %v\n", f.colorize(fmt.Sprintf("  %s:", key), ColorYellow), value))
		}
	}

	if len(err.Frames) > 0 {
		sb.WriteString("\n")
		sb.WriteString(f.colorize("Stack trace:", ColorBoldWhite) + "\n")
		for i, frame := range err.Frames {
			sb.WriteString(fmt.Sprintf("    %s %s\n", f.colorize("at", ColorWhite), f.colorize(frame.String(), ColorYellow)))

			// 第一帧附带源代码
			if i == 0 && f.ShowSource && frame.FileName != "" {
				if lines, ok := sourceCache[frame.FileName]; ok && frame.LineNumber > 0 && frame.LineNumber <= len(lines) {
					sb.WriteString(f.formatSingleLine(lines[frame.LineNumber-1], frame.LineNumber, err.Column, err.Length))
				} else if err.SourceLine != "" {
					sb.WriteString(f.formatSingleLine(err.SourceLine, frame.LineNumber, err.Column, err.Length))
				}
			}
		}
	}

	if f.ShowHints && len(err.Hints) > 0 {
		sb.WriteString("\n")
		for _, hint := range err.Hints {
			sb.WriteString(fmt.Sprintf("%s %s\n", f.colorize(" = help:", ColorCyan), hint))
		}
	}

	return sb.String()
}

// formatSourceContext 输出出错行及标注
func (f *Formatter) formatSourceContext(lines []string, errorLine, startCol, endCol int, labels []Label) string {
	var sb strings.Builder

	lineNumWidth := len(fmt.Sprintf("%d", errorLine))
	for _, l := range labels {
		if w := len(fmt.Sprintf("%d", l.Line)); w > lineNumWidth {
			lineNumWidth = w
		}
	}

	separator := f.colorize(strings.Repeat(" ", lineNumWidth)+" |", ColorBlue)
	sb.WriteString(separator + "\n")

	line := lines[errorLine-1]
	lineNum := f.colorize(fmt.Sprintf("%*d", lineNumWidth, errorLine), ColorBlue)
	pipe := f.colorize(" |", ColorBlue)
	sb.WriteString(fmt.Sprintf("%s%s %s\n", lineNum, pipe, f.expandTabs(line)))

	if endCol == 0 {
		endCol = startCol + 1
	}
	length := endCol - startCol
	if length < 1 {
		length = 1
	}
	actualCol := f.displayColumn(line, startCol)
	sb.WriteString(strings.Repeat(" ", lineNumWidth+3+actualCol) + f.colorize(strings.Repeat("^", length), ColorRed) + "\n")

	for _, label := range labels {
		if label.Line == errorLine || label.Line <= 0 || label.Line > len(lines) {
			continue
		}
		line := lines[label.Line-1]
		lineNum := f.colorize(fmt.Sprintf("%*d", lineNumWidth, label.Line), ColorBlue)
		sb.WriteString(fmt.Sprintf("%s%s %s\n", lineNum, pipe, f.expandTabs(line)))
		if label.Message != "" {
			col := f.displayColumn(line, label.Column)
			sb.WriteString(strings.Repeat(" ", lineNumWidth+3+col) +
				f.colorize(strings.Repeat("^", max(label.Length, 1))+" "+label.Message, f.labelColor(label.Primary)) + "\n")
		}
	}

	return sb.String()
}

// formatSingleLine 格式化单行源代码
func (f *Formatter) formatSingleLine(line string, lineNum, col, length int) string {
	var sb strings.Builder

	lineNumWidth := len(fmt.Sprintf("%d", lineNum))
	separator := f.colorize(strings.Repeat(" ", lineNumWidth+4)+" |", ColorBlue)
	sb.WriteString(separator + "\n")

	lineNumStr := f.colorize(fmt.Sprintf("%*d", lineNumWidth, lineNum), ColorBlue)
	pipe := f.colorize(" |", ColorBlue)
	sb.WriteString(fmt.Sprintf("    %s%s %s\n", lineNumStr, pipe, f.expandTabs(line)))

	if col > 0 {
		if length < 1 {
			length = 1
		}
		actualCol := f.displayColumn(line, col)
		sb.WriteString(strings.Repeat(" ", lineNumWidth+7+actualCol) + f.colorize(strings.Repeat("^", length), ColorRed) + "\n")
	}

	sb.WriteString(separator + "\n")
	return sb.String()
}

// expandTabs 展开 Tab 为空格
func (f *Formatter) expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", f.TabWidth))
}

// displayColumn 字节列号对应的终端显示宽度（Tab 展开，宽字符占两列）
func (f *Formatter) displayColumn(line string, col int) int {
	if col <= 1 {
		return 0
	}
	end := col - 1
	if end > len(line) {
		end = len(line)
	}
	prefix := line[:end]
	tabs := strings.Count(prefix, "\t")
	return runewidth.StringWidth(strings.ReplaceAll(prefix, "\t", "")) + tabs*f.TabWidth
}

// levelColor 获取错误级别对应的颜色
func (f *Formatter) levelColor(level Level) Color {
	switch level {
	case LevelError:
		return ColorRed
	case LevelWarning:
		return ColorYellow
	case LevelNote:
		return ColorCyan
	case LevelHelp:
		return ColorGreen
	default:
		return ColorWhite
	}
}

func (f *Formatter) labelColor(primary bool) Color {
	if primary {
		return ColorRed
	}
	return ColorYellow
}

func (f *Formatter) colorize(s string, c Color) string {
	if !f.Colors {
		return s
	}
	return Colorize(s, c)
}

// FormatCompileErrors 格式化多个编译错误
func (f *Formatter) FormatCompileErrors(errs []*CompileError, sourceCache map[string][]string) string {
	var sb strings.Builder
	for i, err := range errs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(f.FormatCompileError(err, sourceCache[err.File]))
	}
	if len(errs) > 0 {
		sb.WriteString("\n")
		sb.WriteString(f.colorize(fmt.Sprintf("错误: 发现 %d 个错误", len(errs)), ColorRed) + "\n")
	}
	return sb.String()
}
