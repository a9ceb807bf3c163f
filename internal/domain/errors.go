package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoSuchPosition is returned when removing liquidity that was never provided.
	ErrNoSuchPosition = errors.New("no liquidity provided for this pool")

	// ErrInvalidSide is returned for an order side other than "buy" or "sell".
	ErrInvalidSide = errors.New("invalid order type")

	// ErrInvalidPair is returned when a pair is not of the form "TOKENA-TOKENB".
	ErrInvalidPair = errors.New("invalid pair")

	// ErrDivideByZero is returned by rate queries when the reverse reserve is empty.
	ErrDivideByZero = errors.New("divide by zero")

	// ErrInvalidAmount is returned when an amount or price is out of range.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMissingUser is returned for a command that names no user.
	ErrMissingUser = errors.New("user is required")
)

// BalanceError carries the numbers behind an ErrInsufficientBalance.
type BalanceError struct {
	User      string
	Token     string
	Need      decimal.Decimal
	Available decimal.Decimal
}

func (e *BalanceError) Error() string {
	return "insufficient balance: " + e.User + " needs " + e.Need.String() + " " + e.Token +
		", available " + e.Available.String()
}

func (e *BalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ValidationError reports a rejected command input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "validation error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err for the given input field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was caused by caller input rather than state.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrInvalidPair) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingUser)
}
