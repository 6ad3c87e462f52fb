// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST", Message: "something broke"}
	if err.Error() != "[TEST] something broke" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := WrapError(ErrNoData, cause)

	if err.Code != ErrNoData.Code {
		t.Errorf("expected code %s, got %s", ErrNoData.Code, err.Code)
	}
	if !errors.Is(err, ErrNoData) {
		t.Error("wrapped error should match base via errors.Is")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	if errors.Is(ErrTradeRejected, ErrNoData) {
		t.Error("different codes should not match")
	}

	wrapped := WrapError(ErrTradeRejected, ErrInsufficientCash)
	if !errors.Is(wrapped, ErrTradeRejected) {
		t.Error("expected match on TRADE_REJECTED")
	}
}
