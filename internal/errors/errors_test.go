package errors

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainFormatter() *Formatter {
	f := NewFormatter()
	f.Colors = false
	return f
}

func TestFormatCompileErrorUnderline(t *testing.T) {
	err := &CompileError{Code: E0006, Message: "expected ')'", File: "a.js", Line: 1, Column: 7}
	out := plainFormatter().FormatCompileError(err, []string{"f(a, b;"})

	assert.Contains(t, out, "error[E0006]: expected ')'")
	assert.Contains(t, out, "--> a.js:1:7")
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	// "1 | f(a, b;" 之后的标注行，'^' 对准第 7 列
	assert.Equal(t, strings.Repeat(" ", 4+6)+"^", lines[4])
}

func TestDisplayColumnHandlesWideRunes(t *testing.T) {
	f := plainFormatter()
	line := "名字 = 1"
	// "名字 " 占 5 个显示列，但 7 个字节
	assert.Equal(t, 5, f.displayColumn(line, len("名字 ")+1))
	assert.Equal(t, 4, f.displayColumn("\tx", 2))
}

func TestFormatRuntimeErrorFrames(t *testing.T) {
	err := &RuntimeError{
		Code:    R0300,
		Name:    "TypeError",
		Message: "x is not a function",
		Frames: []StackFrame{
			{FunctionName: "inner", FileName: "a.js", LineNumber: 3},
			{FunctionName: "apply", Native: true},
		},
	}
	out := plainFormatter().FormatRuntimeError(err, nil)
	assert.Contains(t, out, "Uncaught TypeError[R0300]: x is not a function")
	assert.Contains(t, out, "at inner (a.js:3)")
	assert.Contains(t, out, "at apply (native)")
	assert.Equal(t, "TypeError: x is not a function", err.Error())
}

func TestErrorListUnwrap(t *testing.T) {
	list := ErrorList{
		{Code: E0007, Message: "first", Line: 1, Column: 1},
		{Code: E0304, Message: "second", Line: 2, Column: 1},
	}
	var err error = list
	var ce *CompileError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, E0007, ce.Code)
	assert.Contains(t, err.Error(), "and 1 more errors")
	assert.Nil(t, ErrorList(nil).Err())
}

func TestToJSON(t *testing.T) {
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(ToJSON(&RuntimeError{Code: R0400, Name: "RangeError", Message: "Maximum call stack size exceeded."}), &decoded))
	assert.Equal(t, "R0400", decoded["code"])
	assert.Equal(t, "RangeError", decoded["name"])

	require.NoError(t, json.Unmarshal(ToJSON(stderrors.New("boom")), &decoded))
	assert.Equal(t, "boom", decoded["message"])
}

func TestReporterDispatch(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.SetFormatter(plainFormatter())
	r.SetSource("mem.js", "var x = ;")

	r.Report(&CompileError{Code: E0007, Message: "unexpected ';'", File: "mem.js", Line: 1, Column: 9})
	r.Report(stderrors.New("plain failure"))

	assert.Equal(t, 1, r.ErrorCount())
	assert.Contains(t, buf.String(), "var x = ;")
	assert.Contains(t, buf.String(), "error: plain failure")
}

func TestCodeTables(t *testing.T) {
	assert.True(t, IsCompilerError(E0304))
	assert.False(t, IsCompilerError(R0400))
	assert.True(t, IsRuntimeError(R0400))
	assert.Equal(t, R0301, RuntimeCodeForErrorName("ReferenceError"))
	assert.Equal(t, R0001, RuntimeCodeForErrorName("Whatever"))
}
