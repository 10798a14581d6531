package exception

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrderEvent       = errors.New("order: invalid order event")
	ErrStatusTransitionInvalid = errors.New("order: status transition invalid")
	ErrDuplicateEvent          = errors.New("order: duplicate event")
	ErrOrderNotFound           = fmt.Errorf("order: %w", ErrNotFound)
	ErrOrderTerminal           = fmt.Errorf("order: terminal status: %w", ErrStatusTransitionInvalid)
	ErrInvalidFill             = errors.New("order: invalid fill")
)

// Matching core errors
var (
	ErrMatchingInstrument = errors.New("matching: instrument mismatch")
	ErrUnsupportedPassive = errors.New("matching: unsupported passive order")
)
