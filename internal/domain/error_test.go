package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_MessageFormatting(t *testing.T) {
	err := E(CodeNotFound, "catalog.Get", "tool missing", nil)
	require.Equal(t, "catalog.Get: NOT_FOUND: tool missing", err.Error())

	err = E(CodeInternal, "", "boom", nil)
	require.Equal(t, "INTERNAL: boom", err.Error())
}

func TestWrap_PreservesCauseChain(t *testing.T) {
	cause := fmt.Errorf("%w: slow_tool", ErrInvokeTimeout)
	err := Wrap(CodeDeadlineExceeded, "router.Invoke", cause)

	require.ErrorIs(t, err, ErrInvokeTimeout)
	code, ok := CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, CodeDeadlineExceeded, code)
}

func TestWrap_NilIsNil(t *testing.T) {
	require.Nil(t, Wrap(CodeInternal, "op", nil))
}

func TestWrap_DoesNotDoubleWrap(t *testing.T) {
	inner := E(CodeInvalidArgument, "config.Validate", "bad value", nil)
	outer := Wrap(CodeInternal, "app.Serve", inner)

	code, ok := CodeFrom(outer)
	require.True(t, ok)
	require.Equal(t, CodeInvalidArgument, code)
	require.Same(t, inner, outer)
}

func TestCodeFrom_SentinelMapping(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{ErrToolNotFound, CodeNotFound},
		{ErrBackendNotFound, CodeNotFound},
		{ErrBackendUnavailable, CodeUnavailable},
		{ErrInvokeTimeout, CodeDeadlineExceeded},
		{ErrInvalidQuery, CodeInvalidArgument},
		{ErrInvalidTransition, CodeInvalidArgument},
		{ErrIndexInconsistent, CodeInternal},
	}
	for _, tc := range cases {
		code, ok := CodeFrom(fmt.Errorf("wrapped: %w", tc.err))
		require.True(t, ok, "no code for %v", tc.err)
		require.Equal(t, tc.code, code)
	}
}

func TestCodeFrom_UnknownError(t *testing.T) {
	_, ok := CodeFrom(errors.New("plain"))
	require.False(t, ok)

	_, ok = CodeFrom(nil)
	require.False(t, ok)
}
