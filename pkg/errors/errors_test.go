package errors

import (
	stdliberrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New(CodeShapeMismatch, "lengths differ")
	assert.Equal(t, "[PARAM_001] lengths differ", e.Error())

	e = e.WithDetail("points=3 features=4")
	assert.Equal(t, "[PARAM_001] lengths differ: points=3 features=4", e.Error())
}

func TestWrap(t *testing.T) {
	base := stdliberrors.New("boom")
	wrapped := Wrap(base, CodeExternalTool, "tool failed")

	assert.True(t, stdliberrors.Is(wrapped, base))
	assert.Equal(t, CodeExternalTool, GetCode(wrapped))

	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestWrap_PreservesCodeOnUnknown(t *testing.T) {
	inner := New(CodeFatalConfiguration, "chain pool exhausted")
	outer := Wrap(inner, CodeUnknown, "cleaning failed")
	assert.Equal(t, CodeFatalConfiguration, outer.Code)
}

func TestIsCode(t *testing.T) {
	inner := New(CodeInvalidParameter, "minw must be < maxw")
	outer := fmt.Errorf("interpolation: %w", inner)

	assert.True(t, IsCode(outer, CodeInvalidParameter))
	assert.False(t, IsCode(outer, CodeShapeMismatch))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stdliberrors.New("plain")))
	assert.Equal(t, CodeUnsupportedOption, GetCode(UnsupportedOption("map_to", "bogus")))
}

func TestUnsupportedOption_Message(t *testing.T) {
	e := UnsupportedOption("weight_method", "quadratic")
	assert.Contains(t, e.Error(), "weight_method")
	assert.Contains(t, e.Error(), "quadratic")
}

func TestWithDetailNilSafe(t *testing.T) {
	var e *AppError
	assert.Nil(t, e.WithDetail("x"))
	assert.Nil(t, e.WithCause(stdliberrors.New("y")))
}
