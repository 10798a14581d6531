package bus

// HandlerFunc receives a message and the topic or endpoint it was delivered on.
type HandlerFunc func(topic string, msg any)

// Handler is a named callback. Handlers with the same ID are the same subscriber, so
// one handler may be shared across many patterns.
type Handler struct {
	ID string
	fn HandlerFunc
}

func NewHandler(id string, fn HandlerFunc) *Handler {
	return &Handler{ID: id, fn: fn}
}

func (h *Handler) Handle(topic string, msg any) {
	h.fn(topic, msg)
}

// Subscription binds a handler to a topic pattern.
type Subscription struct {
	Pattern  string
	Handler  *Handler
	Priority int

	seq      uint64
	wildcard bool
}

// IsWildcard reports whether the pattern contains '*' or '?'.
func (s *Subscription) IsWildcard() bool {
	return s.wildcard
}

// less orders subscriptions for delivery: higher priority first, then exact patterns
// before wildcards, then registration order.
func (s *Subscription) less(o *Subscription) bool {
	if s.Priority != o.Priority {
		return s.Priority > o.Priority
	}
	if s.wildcard != o.wildcard {
		return !s.wildcard
	}
	return s.seq < o.seq
}
