package bus

import (
	"slices"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"
)

const defaultMatchCacheSize = 4096

// Backing receives every published message after local delivery, e.g. to mirror the
// bus into an external stream. Publish must not block.
type Backing interface {
	Publish(topic string, msg any)
	Close() error
}

// Option configures a MessageBus.
type Option func(*MessageBus)

func WithMetrics(m *obs.Metrics) Option {
	return func(b *MessageBus) { b.metrics = m }
}

func WithBacking(backing Backing) Option {
	return func(b *MessageBus) { b.backing = backing }
}

// WithMatchCacheSize bounds the (topic, pattern) memo and the per-topic
// delivery lists.
func WithMatchCacheSize(size int) Option {
	return func(b *MessageBus) { b.cacheSize = size }
}

// MessageBus is a synchronous broker. Handlers run on the publishing goroutine in
// delivery order; a nested Publish completes before the outer one moves on. It is not
// safe for concurrent use: all calls must come from the engine goroutine.
type MessageBus struct {
	TraderID   model.TraderID
	Name       string
	InstanceID model.UUID4

	endpoints    map[string]*Handler
	correlations map[model.UUID4]*Handler
	subs         []*Subscription
	resolved     *lru.Cache[string, []*Subscription]
	matcher      *matcher
	cacheSize    int
	seq          uint64
	disposed     bool

	metrics *obs.Metrics
	backing Backing
}

func New(traderID model.TraderID, name string, opts ...Option) *MessageBus {
	b := &MessageBus{
		TraderID:     traderID,
		Name:         name,
		InstanceID:   model.NewUUID4(),
		endpoints:    make(map[string]*Handler),
		correlations: make(map[model.UUID4]*Handler),
		cacheSize:    defaultMatchCacheSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.matcher = newMatcher(b.cacheSize)
	b.resolved = newCache[string, []*Subscription](b.cacheSize)
	return b
}

// RegisterEndpoint binds name to handler. Names are unique.
func (b *MessageBus) RegisterEndpoint(name string, handler *Handler) error {
	if handler == nil {
		return exception.ErrNilHandler
	}
	if _, ok := b.endpoints[name]; ok {
		return errors.Wrap(exception.ErrEndpointExists, "register endpoint").With("endpoint", name)
	}
	b.endpoints[name] = handler
	return nil
}

func (b *MessageBus) DeregisterEndpoint(name string) error {
	if _, ok := b.endpoints[name]; !ok {
		return errors.Wrap(exception.ErrEndpointNotFound, "deregister endpoint").With("endpoint", name)
	}
	delete(b.endpoints, name)
	return nil
}

func (b *MessageBus) HasEndpoint(name string) bool {
	_, ok := b.endpoints[name]
	return ok
}

// Endpoints returns the registered endpoint names, sorted.
func (b *MessageBus) Endpoints() []string {
	names := make([]string, 0, len(b.endpoints))
	for name := range b.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send delivers msg to a single endpoint. A missing endpoint is logged and returned.
func (b *MessageBus) Send(endpoint string, msg any) error {
	h, ok := b.endpoints[endpoint]
	if !ok {
		b.metrics.IncSendFailure()
		logs.Errorf("bus: send to unknown endpoint %s, msg %T", endpoint, msg)
		return errors.Wrap(exception.ErrEndpointNotFound, "send").With("endpoint", endpoint)
	}
	b.invoke(h, endpoint, msg)
	return nil
}

// Request records onResponse under correlationID and forwards msg to endpoint.
func (b *MessageBus) Request(endpoint string, correlationID model.UUID4, msg any, onResponse *Handler) error {
	if onResponse == nil {
		return exception.ErrNilHandler
	}
	if _, ok := b.correlations[correlationID]; ok {
		return errors.Wrap(exception.ErrCorrelationExists, "request").With("correlation_id", correlationID.String())
	}
	if _, ok := b.endpoints[endpoint]; !ok {
		b.metrics.IncSendFailure()
		logs.Errorf("bus: request to unknown endpoint %s, correlation %s", endpoint, correlationID)
		return errors.Wrap(exception.ErrEndpointNotFound, "request").With("endpoint", endpoint)
	}
	b.correlations[correlationID] = onResponse
	return b.Send(endpoint, msg)
}

// Response invokes and removes the handler recorded for correlationID.
func (b *MessageBus) Response(correlationID model.UUID4, msg any) error {
	h, ok := b.correlations[correlationID]
	if !ok {
		logs.Errorf("bus: response for unknown correlation %s, msg %T", correlationID, msg)
		return errors.Wrap(exception.ErrCorrelationNotFound, "response").With("correlation_id", correlationID.String())
	}
	delete(b.correlations, correlationID)
	b.invoke(h, correlationID.String(), msg)
	return nil
}

func (b *MessageBus) IsPendingRequest(correlationID model.UUID4) bool {
	_, ok := b.correlations[correlationID]
	return ok
}

// Subscribe registers handler on pattern. Re-subscribing the same (pattern, handler)
// pair is a no-op; higher priority handlers run first.
func (b *MessageBus) Subscribe(pattern string, handler *Handler, priority int) error {
	if handler == nil {
		return exception.ErrNilHandler
	}
	if pattern == "" {
		return exception.ErrEmptyTopic
	}
	if b.indexOf(pattern, handler.ID) >= 0 {
		return nil
	}
	b.seq++
	s := &Subscription{
		Pattern:  pattern,
		Handler:  handler,
		Priority: priority,
		seq:      b.seq,
		wildcard: HasWildcard(pattern),
	}
	b.subs = append(b.subs, s)
	b.invalidate(s)
	return nil
}

func (b *MessageBus) Unsubscribe(pattern string, handler *Handler) error {
	if handler == nil {
		return exception.ErrNilHandler
	}
	i := b.indexOf(pattern, handler.ID)
	if i < 0 {
		return errors.Wrap(exception.ErrSubscriptionNotFound, "unsubscribe").
			With("pattern", pattern).With("handler", handler.ID)
	}
	s := b.subs[i]
	b.subs = slices.Delete(b.subs, i, i+1)
	b.invalidate(s)
	return nil
}

func (b *MessageBus) IsSubscribed(pattern string, handler *Handler) bool {
	return handler != nil && b.indexOf(pattern, handler.ID) >= 0
}

// Subscriptions returns the subscriptions matching topic in delivery order.
func (b *MessageBus) Subscriptions(topic string) []*Subscription {
	return slices.Clone(b.matching(topic))
}

func (b *MessageBus) SubscriptionsCount(topic string) int {
	return len(b.matching(topic))
}

func (b *MessageBus) HasSubscribers(topic string) bool {
	return len(b.matching(topic)) > 0
}

// Patterns returns every subscribed pattern once, in registration order.
func (b *MessageBus) Patterns() []string {
	out := make([]string, 0, len(b.subs))
	seen := make(map[string]struct{}, len(b.subs))
	for _, s := range b.subs {
		if _, ok := seen[s.Pattern]; ok {
			continue
		}
		seen[s.Pattern] = struct{}{}
		out = append(out, s.Pattern)
	}
	return out
}

// Publish delivers msg to every subscription matching topic and returns how many
// handlers ran. Panics in handlers are logged and do not stop delivery.
func (b *MessageBus) Publish(topic string, msg any) int {
	if b.disposed {
		return 0
	}
	start := time.Now()
	subs := b.matching(topic)
	for _, s := range subs {
		b.invoke(s.Handler, topic, msg)
	}
	b.metrics.ObservePublish(len(subs), time.Since(start))
	if b.backing != nil {
		b.backing.Publish(topic, msg)
	}
	return len(subs)
}

// Dispose drops every endpoint and subscription and closes the backing.
func (b *MessageBus) Dispose() error {
	if b.disposed {
		return nil
	}
	b.disposed = true
	clear(b.endpoints)
	clear(b.correlations)
	b.resolved.Purge()
	b.subs = nil
	b.matcher.purge()
	if b.backing != nil {
		return b.backing.Close()
	}
	return nil
}

func (b *MessageBus) IsDisposed() bool {
	return b.disposed
}

// matching resolves and caches the delivery list for topic. The returned slice is
// never mutated, so handlers may subscribe or unsubscribe while it is being walked.
func (b *MessageBus) matching(topic string) []*Subscription {
	if subs, ok := b.resolved.Get(topic); ok {
		return subs
	}
	var subs []*Subscription
	for _, s := range b.subs {
		if b.matcher.match(topic, s.Pattern) {
			subs = append(subs, s)
		}
	}
	slices.SortStableFunc(subs, func(x, y *Subscription) int {
		switch {
		case x.less(y):
			return -1
		case y.less(x):
			return 1
		default:
			return 0
		}
	})
	b.resolved.Add(topic, subs)
	return subs
}

func (b *MessageBus) invalidate(s *Subscription) {
	b.resolved.Purge()
	if s.wildcard {
		b.matcher.purge()
	}
}

func (b *MessageBus) indexOf(pattern, handlerID string) int {
	for i, s := range b.subs {
		if s.Pattern == pattern && s.Handler.ID == handlerID {
			return i
		}
	}
	return -1
}

func (b *MessageBus) invoke(h *Handler, topic string, msg any) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.IncHandlerPanic()
			logs.Errorf("bus: handler %s panicked on %s: %v", h.ID, topic, r)
		}
	}()
	h.Handle(topic, msg)
}
