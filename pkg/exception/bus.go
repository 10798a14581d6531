package exception

import (
	"errors"
	"fmt"
)

// Message bus errors
var (
	ErrEndpointExists       = errors.New("bus: endpoint already registered")
	ErrEndpointNotFound     = fmt.Errorf("bus: endpoint %w", ErrNotFound)
	ErrCorrelationExists    = errors.New("bus: correlation id already pending")
	ErrCorrelationNotFound  = fmt.Errorf("bus: correlation id %w", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("bus: subscription %w", ErrNotFound)
	ErrNilHandler           = errors.New("bus: nil handler")
	ErrEmptyTopic           = errors.New("bus: empty topic")
	ErrQueueFull            = errors.New("bus: inbound queue full")
	ErrQueueClosed          = errors.New("bus: inbound queue closed")
)
