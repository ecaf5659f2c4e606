package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContractErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("deposit: %w", ErrBadAmount)
	assert.True(t, stderrors.Is(wrapped, ErrBadAmount))
	assert.False(t, stderrors.Is(wrapped, ErrNotAuthorized))

	custom := NewError(ErrCodeInsufficientBalance, "balance 3 < 5")
	assert.True(t, stderrors.Is(custom, ErrInsufficientBalance))
	assert.Equal(t, ErrCodeInsufficientBalance, CodeOf(fmt.Errorf("transfer: %w", custom)))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ContractErrorCode(""), CodeOf(nil))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("disk full")))
	assert.Equal(t, ErrCodeBadSignature, CodeOf(ErrBadSignature))
}

func TestContractErrorString(t *testing.T) {
	assert.JSONEq(t, `{"code":"bad_amount","message":"Amount must be greater than zero"}`, ErrBadAmount.Error())
}
