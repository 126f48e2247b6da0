package errors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ============================================================================
// 错误报告器
// ============================================================================

// Reporter 错误报告器，缓存源码以便渲染出错行
type Reporter struct {
	out         io.Writer
	formatter   *Formatter
	sourceCache map[string][]string
	errors      []*CompileError
	runtime     []*RuntimeError
}

// NewReporter 创建输出到 w 的报告器，w 为 nil 时输出到标准错误
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	return &Reporter{
		out:         w,
		formatter:   NewFormatter(),
		sourceCache: make(map[string][]string),
	}
}

// SetFormatter 设置格式化器
func (r *Reporter) SetFormatter(f *Formatter) {
	r.formatter = f
}

// LoadSource 加载源文件
func (r *Reporter) LoadSource(filename string) error {
	if _, ok := r.sourceCache[filename]; ok {
		return nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	r.sourceCache[filename] = lines
	return nil
}

// SetSource 设置源代码（内存中的源码，例如 eval 文本）
func (r *Reporter) SetSource(filename string, content string) {
	r.sourceCache[filename] = strings.Split(content, "\n")
}

// GetSourceLines 获取源代码行数组
func (r *Reporter) GetSourceLines(filename string) []string {
	return r.sourceCache[filename]
}

// ReportError 报告编译错误
func (r *Reporter) ReportError(err *CompileError) {
	_ = r.LoadSource(err.File)
	r.errors = append(r.errors, err)
	fmt.Fprint(r.out, r.formatter.FormatCompileError(err, r.GetSourceLines(err.File)))
}

// ReportRuntimeError 报告运行时错误
func (r *Reporter) ReportRuntimeError(err *RuntimeError) {
	for _, frame := range err.Frames {
		if frame.FileName != "" {
			_ = r.LoadSource(frame.FileName)
			break
		}
	}
	r.runtime = append(r.runtime, err)
	fmt.Fprint(r.out, r.formatter.FormatRuntimeError(err, r.sourceCache))
}

// Report 按错误类型分派；非本包错误按普通消息输出
func (r *Reporter) Report(err error) {
	switch e := err.(type) {
	case *CompileError:
		r.ReportError(e)
	case ErrorList:
		for _, ce := range e {
			r.ReportError(ce)
		}
	case *RuntimeError:
		r.ReportRuntimeError(e)
	default:
		fmt.Fprintf(r.out, "%s %s\n", r.formatter.colorize("error:", ColorRed), err)
	}
}

// HasErrors 是否报告过错误
func (r *Reporter) HasErrors() bool {
	return len(r.errors) > 0 || len(r.runtime) > 0
}

// ErrorCount 已报告的错误数
func (r *Reporter) ErrorCount() int {
	return len(r.errors) + len(r.runtime)
}

// Clear 清空记录
func (r *Reporter) Clear() {
	r.errors = nil
	r.runtime = nil
}
