// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data errors
	ErrNoData         = &Error{Code: "NO_DATA", Message: "no historical data available"}
	ErrProviderFailed = &Error{Code: "PROVIDER_FAILED", Message: "historical data provider failed"}

	// Portfolio errors
	ErrTradeRejected        = &Error{Code: "TRADE_REJECTED", Message: "trade rejected"}
	ErrInsufficientCash     = &Error{Code: "INSUFFICIENT_CASH", Message: "insufficient cash for trade"}
	ErrInsufficientPosition = &Error{Code: "INSUFFICIENT_POSITION", Message: "position smaller than sell quantity"}

	// Registry errors
	ErrRunNotFound    = &Error{Code: "RUN_NOT_FOUND", Message: "backtest run not found"}
	ErrAlreadyStarted = &Error{Code: "ALREADY_STARTED", Message: "backtest run already started"}
	ErrNotCompleted   = &Error{Code: "NOT_COMPLETED", Message: "backtest run has not completed"}
	ErrRunFinished    = &Error{Code: "RUN_FINISHED", Message: "backtest run already finished"}

	// Strategy errors
	ErrStrategyUnknown  = &Error{Code: "STRATEGY_UNKNOWN", Message: "strategy not registered"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// API errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// LLM errors
	ErrLLMFailed = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
)
