package exception

import "errors"

var (
	ErrConnectionClose = errors.New("connection closed")
	ErrNotConnected    = errors.New("connection: not connected")
	ErrInResponseError = errors.New("there is an error in response error field")
)
