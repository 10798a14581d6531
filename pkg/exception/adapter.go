package exception

import "errors"

// Adapter error classes. Typed adapter errors match one of these with errors.Is.
var (
	ErrRetryable    = errors.New("adapter: retryable")
	ErrNonRetryable = errors.New("adapter: non-retryable")
	ErrFatal        = errors.New("adapter: fatal")
)

var (
	ErrUnknownTimeInForce     = errors.New("adapter: unknown time in force")
	ErrUnsupportedTimeInForce = errors.New("adapter: unsupported time in force")
	ErrSessionState           = errors.New("adapter: invalid session state")
	ErrSessionStopped         = errors.New("adapter: session stopped")
	ErrFeedMessage            = errors.New("adapter: malformed feed message")
)
