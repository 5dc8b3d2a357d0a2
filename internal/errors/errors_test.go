package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/thrud/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInvalidInterval)
	assert.Equal(t, "Invalid interval value", err.Error())

	err = errFactory.WithMessage(errors.ErrInvalidInterval, "interval must be positive")
	assert.Equal(t, "interval must be positive", err.Error())

	unknown := errFactory.New(errors.ErrorCode("something_else"))
	assert.Equal(t, "something_else", unknown.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := errors.New().Wrap(errors.ErrStoreRound, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to store collection round: disk full", err.Error())
	assert.Equal(t, errors.ErrStoreRound, err.Code())
}

func TestWithDataKeepsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.New().Wrap(errors.ErrCollect, cause).WithData(struct{ Source string }{Source: "cpu"})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cpu")
	assert.Contains(t, err.Error(), "boom")
}

func TestCodeOf(t *testing.T) {
	inner := errors.New().New(errors.ErrTimeout)
	outer := fmt.Errorf("context: %w", errors.New().Wrap(errors.ErrMainLoop, inner))

	assert.Equal(t, errors.ErrMainLoop, errors.CodeOf(outer))
	assert.True(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(outer, errors.ErrInitApp))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}

func TestIsMatchesByCode(t *testing.T) {
	err := errors.New().Wrap(errors.ErrAlreadyRunning, stderrors.New("pid 42"))
	require.True(t, errors.Is(err, errors.New().New(errors.ErrAlreadyRunning)))
	assert.False(t, errors.Is(err, errors.New().New(errors.ErrInternal)))
}
