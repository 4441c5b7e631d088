package errors

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeOpen, "cannot open source")

	assert.Equal(t, ErrorTypeOpen, err.Type)
	assert.Equal(t, "open: cannot open source", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeConfig, "unknown format %q", "hdf5")
	assert.Equal(t, `config: unknown format "hdf5"`, err.Error())
}

func TestWrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Wrap(cause, ErrorTypeDecode, "reading message body")

	assert.Equal(t, ErrorTypeDecode, err.Type)
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "decode: reading message body: unexpected EOF", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeResource, "closing"))
}

func TestWrapKeepsOriginalStack(t *testing.T) {
	inner := New(ErrorTypeEncode, "write failed")
	outer := Wrap(inner, ErrorTypeResource, "closing writer")

	require.NotEmpty(t, outer.Stack)
	assert.Equal(t, inner.Stack[0], outer.Stack[0])
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeOpen, "cannot open source").
		WithDetail("path", "/tmp/events.sqlite").
		WithDetail("attempt", 1)

	assert.Equal(t, "/tmp/events.sqlite", err.Details["path"])
	assert.Equal(t, 1, err.Details["attempt"])
}

func TestIsType(t *testing.T) {
	err := Wrap(New(ErrorTypeDecode, "bad frame"), ErrorTypeInternal, "run aborted")

	assert.True(t, IsType(err, ErrorTypeInternal))
	assert.False(t, IsType(err, ErrorTypeOpen))
	assert.False(t, IsType(io.EOF, ErrorTypeDecode))
}
