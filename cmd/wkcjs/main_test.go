package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, bytecode.NewInt(42)))

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]string{"result": "42", "type": "number"}, got)
}

func TestWriteResultReportsWriteFailure(t *testing.T) {
	err := writeResult(failingWriter{}, bytecode.NewString("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write result")
	assert.Contains(t, err.Error(), "closed pipe")
}
