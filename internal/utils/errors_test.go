package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(CodeInternal, "nothing", nil))

	cause := errors.New("connection refused")
	err := fmt.Errorf("send: %w", Wrap(CodeUpstream, "upload", cause))
	require.ErrorIs(t, err, cause)

	var ce *CustomError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, CodeUpstream, ce.Code)
	require.Equal(t, "Code: 502, Message: upload: connection refused", ce.Error())
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "upload: connection refused", UserMessage(Wrap(CodeUpstream, "upload", errors.New("connection refused"))))
	require.Equal(t, "bad input", UserMessage(New(CodeValidation, "bad input")))
	require.Equal(t, "plain", UserMessage(errors.New("plain")))
}
