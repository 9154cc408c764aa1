package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/carelink-auth/internal/storage"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidCredentials, CodeInvalidCredentials},
		{fmt.Errorf("op: %w", ErrTokenInvalid), CodeTokenInvalid},
		{fmt.Errorf("op: %w", ErrTokenExpired), CodeTokenExpired},
		{ErrTokenRevoked, CodeTokenRevoked},
		{fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrReplayDetected)), CodeReplayDetected},
		{ErrForbidden, CodeForbidden},
		{ErrAuthHeaderMissing, CodeAuthHeaderMissing},
		{ErrInvalidRequest, CodeInvalidRequest},
		{errors.New("boom"), CodeInternal},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, Code(tc.err), fmt.Sprint(tc.err))
	}
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	err := unavailable("op", fmt.Errorf("pg: %w", storage.ErrUnavailable))
	require.ErrorIs(t, err, ErrServiceUnavailable)
	require.ErrorIs(t, err, storage.ErrUnavailable)
	require.Equal(t, CodeServiceUnavailable, Code(err))

	err = unavailable("op", context.DeadlineExceeded)
	require.Equal(t, CodeServiceUnavailable, Code(err))

	err = unavailable("op", errors.New("syntax error"))
	require.Equal(t, CodeInternal, Code(err))
}

func TestFromCode(t *testing.T) {
	t.Parallel()

	for _, c := range []string{CodeForbidden, CodeTokenRevoked, CodeReplayDetected, CodeServiceUnavailable} {
		err := FromCode(c)
		require.Error(t, err)
		require.Equal(t, c, Code(err))
	}

	require.NoError(t, FromCode(CodeInternal))
	require.NoError(t, FromCode("nope"))
}
