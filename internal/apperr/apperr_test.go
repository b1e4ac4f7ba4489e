package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("place order: %w", Validation("quantity %s below min lot", "0.001"))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "below min lot")
}

func TestExternalBridgeKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExternalBridge(cause, "send intent %s", "abc")

	assert.True(t, errors.Is(err, ErrExternalBridge))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "send intent abc: connection refused", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}
