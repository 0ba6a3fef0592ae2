package errors_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/upsguard/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	assert.Equal(t, "Missing configuration", errFactory.New(errors.ErrMissingConfig).Error())
	assert.Equal(t, "custom", errFactory.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "unknown_code", errFactory.New("unknown_code").Error())

	wrapped := errFactory.Wrap(errors.ErrReadConfig, stderrors.New("boom"))
	assert.Equal(t, "Failed to read configuration: boom", wrapped.Error())

	withData := errFactory.WithData(errors.ErrInvalidInterval, 0)
	assert.Equal(t, "Invalid interval value: 0", withData.Error())
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()
	inner := errFactory.New(errors.ErrTimeout)
	outer := errFactory.Wrap(errors.ErrOperationFailed, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrOperationFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(outer, errors.ErrInternal))
	assert.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrInternal))
	assert.False(t, errors.HasCode(nil, errors.ErrInternal))

	assert.Equal(t, errors.ErrOperationFailed, errors.CodeOf(outer))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(stderrors.New("plain")))
}

func TestWithMessageKeepsCause(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := errors.New().Wrap(errors.ErrOperationFailed, cause).WithMessage("request failed")

	assert.Equal(t, errors.ErrOperationFailed, err.Code())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "request failed: dial tcp: refused", err.Error())
}

func TestWithMethodsReturnCopies(t *testing.T) {
	base := errors.New().New(errors.ErrTimeout)

	withMsg := base.WithMessage("poll timed out")
	withData := base.WithData(30)

	assert.Equal(t, "Operation timed out", base.Error())
	assert.Nil(t, base.GetData())
	assert.Equal(t, "poll timed out", withMsg.Error())
	assert.Equal(t, 30, withData.GetData())
	assert.Equal(t, errors.ErrTimeout, withData.Code())
}
