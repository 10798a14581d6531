package exception

import "errors"

var (
	ErrClockNotStatic = errors.New("clock: operation requires static mode")
)
