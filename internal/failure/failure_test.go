package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := New(Timeout, "PETR4.SA", "deadline %s exceeded", "30s")

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrRetryExhausted))

	wrapped := fmt.Errorf("analyze: %w", err)
	assert.True(t, errors.Is(wrapped, ErrTimeout))
	assert.Equal(t, Timeout, KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(RetryExhausted, "VALE3.SA", cause, "3 attempts")

	assert.Equal(t, "VALE3.SA: 3 attempts: connection reset", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))

	bare := &Error{Kind: NoEligibleAssets}
	assert.Equal(t, "no_eligible_assets", bare.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestIsSymbolLocal(t *testing.T) {
	assert.True(t, IsSymbolLocal(New(InvalidYield, "X", "too high")))
	assert.True(t, IsSymbolLocal(New(Illiquid, "X", "thin")))
	assert.False(t, IsSymbolLocal(New(InsufficientCapital, "", "too small")))
	assert.False(t, IsSymbolLocal(New(NoEligibleAssets, "", "none")))
	assert.False(t, IsSymbolLocal(errors.New("other")))
}
