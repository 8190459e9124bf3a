package aio

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/slot"
)

func TestNewErrorFormatsWithFD(t *testing.T) {
	err := NewErrorWithErrno("Submit", 7, syscall.EINVAL)

	require.Equal(t, "Submit", err.Op)
	require.Equal(t, 7, err.FD)
	require.Equal(t, ErrCodeInvalidParameters, err.Code)
	require.Contains(t, err.Error(), "fd=7")
}

func TestNewErrorOmitsUnsetFields(t *testing.T) {
	err := NewError("Flush", ErrCodeTimeout, "deadline exceeded")
	require.Equal(t, "aio: deadline exceeded (op=Flush)", err.Error())
}

func TestWrapErrorPreservesErrnoForErrorsIs(t *testing.T) {
	err := WrapError("Submit", syscall.ENOSPC)

	require.True(t, errors.Is(err, syscall.ENOSPC))
	require.Equal(t, ErrCodeIOError, err.Code)
}

func TestWrapErrorPassesThroughExistingStructuredError(t *testing.T) {
	inner := NewErrorWithErrno("Submit", 3, syscall.ETIMEDOUT)
	wrapped := WrapError("Wait", inner)

	require.Equal(t, "Wait", wrapped.Op)
	require.Equal(t, ErrCodeTimeout, wrapped.Code)
	require.Equal(t, 3, wrapped.FD)
}

func TestWrapErrorNilReturnsNil(t *testing.T) {
	require.Nil(t, WrapError("Submit", nil))
}

func TestErrorIsMatchesOnCode(t *testing.T) {
	a := &Error{Code: ErrCodeClosed}
	b := &Error{Code: ErrCodeClosed, Op: "Submit"}
	c := &Error{Code: ErrCodeTimeout}

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestIsCodeAndIsErrno(t *testing.T) {
	err := NewErrorWithErrno("Submit", 1, syscall.EIO)

	require.True(t, IsCode(err, ErrCodeIOError))
	require.False(t, IsCode(err, ErrCodeTimeout))
	require.True(t, IsErrno(err, syscall.EIO))
	require.False(t, IsErrno(err, syscall.EPERM))

	require.False(t, IsCode(nil, ErrCodeIOError))
	require.False(t, IsErrno(nil, syscall.EIO))
}

func TestMapErrnoToCode(t *testing.T) {
	cases := []struct {
		errno syscall.Errno
		want  ErrCode
	}{
		{syscall.EINVAL, ErrCodeInvalidParameters},
		{syscall.E2BIG, ErrCodeInvalidParameters},
		{syscall.ENOSYS, ErrCodeUnsupportedDriver},
		{syscall.EOPNOTSUPP, ErrCodeUnsupportedDriver},
		{syscall.ETIMEDOUT, ErrCodeTimeout},
		{syscall.EIO, ErrCodeIOError},
	}
	for _, c := range cases {
		require.Equal(t, c.want, mapErrnoToCode(c.errno))
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Code: ErrCodeIOError, Inner: inner}
	require.Equal(t, inner, err.Unwrap())
}

func TestErrorCarriesOwner(t *testing.T) {
	err := &Error{Op: "Submit", Owner: slot.OwnerID(5), FD: -1, Code: ErrCodeClosed}
	require.Contains(t, err.Error(), "owner=5")
}
