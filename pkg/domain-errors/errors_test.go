package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesInnerCode(t *testing.T) {
	inner := New(CodeState, "loan not active")
	wrapped := Wrap(inner, CodeInternal, "repayment failed")

	assert.True(t, HasCode(wrapped, CodeState), "inner code should win")
	assert.Equal(t, CodeState, CodeOf(wrapped))
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(fmt.Errorf("store: %w", cause), CodeInternal, "append failed")
	assert.ErrorIs(t, err, cause)
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeState, http.StatusConflict},
		{CodeOracle, http.StatusBadGateway},
		{CodeInsufficientFunds, http.StatusUnprocessableEntity},
		{CodeInternal, http.StatusInternalServerError},
		{Code("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.code), "code %s", tt.code)
	}
}
