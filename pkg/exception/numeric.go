package exception

import "errors"

// Fixed-point errors
var (
	ErrOverflow          = errors.New("fixed: overflow")
	ErrUnderflow         = errors.New("fixed: underflow")
	ErrPrecisionMismatch = errors.New("fixed: precision mismatch")
	ErrInvalidPrecision  = errors.New("fixed: invalid precision")
	ErrCurrencyMismatch  = errors.New("money: currency mismatch")
	ErrNegativeQuantity  = errors.New("quantity: negative value")
	ErrParseNumber       = errors.New("fixed: parse number")
)
