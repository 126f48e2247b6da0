package errors

import (
	"github.com/segmentio/encoding/json"
)

// ============================================================================
// JSON 输出（-json 模式）
// ============================================================================

type jsonCompileError struct {
	Code    string   `json:"code"`
	Level   string   `json:"level"`
	Message string   `json:"message"`
	File    string   `json:"file,omitempty"`
	Line    int      `json:"line"`
	Column  int      `json:"column"`
	Hints   []string `json:"hints,omitempty"`
}

type jsonRuntimeError struct {
	Code    string       `json:"code"`
	Name    string       `json:"name,omitempty"`
	Message string       `json:"message"`
	Frames  []StackFrame `json:"stack,omitempty"`
}

// MarshalJSON 编译错误的 JSON 形式
func (e *CompileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonCompileError{
		Code:    e.Code,
		Level:   e.Level.String(),
		Message: e.Message,
		File:    e.File,
		Line:    e.Line,
		Column:  e.Column,
		Hints:   e.Hints,
	})
}

// MarshalJSON 运行时错误的 JSON 形式
func (e *RuntimeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonRuntimeError{
		Code:    e.Code,
		Name:    e.Name,
		Message: e.Message,
		Frames:  e.Frames,
	})
}

// ToJSON 将任意错误编码为一行 JSON，未知错误类型只输出消息
func ToJSON(err error) []byte {
	var payload interface{}
	switch e := err.(type) {
	case *CompileError, *RuntimeError, ErrorList:
		payload = e
	default:
		payload = map[string]string{"message": err.Error()}
	}
	out, mErr := json.Marshal(payload)
	if mErr != nil {
		out, _ = json.Marshal(map[string]string{"message": err.Error()})
	}
	return out
}
