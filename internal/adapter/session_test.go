package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/switchboard"
	"tradecore/pkg/exception"
)

type step struct {
	connect error
	logon   error
	run     error
}

type fakeClient struct {
	mu          sync.Mutex
	steps       []step
	calls       int
	disconnects int
	running     chan struct{}
	mass        *model.ExecutionMassStatus
}

func (c *fakeClient) current() step {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls < len(c.steps) {
		return c.steps[c.calls]
	}
	return step{}
}

func (c *fakeClient) Connect(context.Context) error {
	s := c.current()
	if s.connect != nil {
		c.advance()
	}
	return s.connect
}

func (c *fakeClient) Logon(context.Context) error {
	s := c.current()
	if s.logon != nil {
		c.advance()
	}
	return s.logon
}

func (c *fakeClient) Run(ctx context.Context, _ *Inbound) error {
	s := c.current()
	c.advance()
	if c.running != nil {
		c.running <- struct{}{}
	}
	if s.run != nil {
		return s.run
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeClient) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

type massClient struct {
	*fakeClient
}

func (c massClient) MassStatus(context.Context) (*model.ExecutionMassStatus, error) {
	return c.mass, nil
}

type recordSleeper struct {
	waits []time.Duration
}

func (s *recordSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func drain(q *bus.Queue) []bus.Envelope {
	var out []bus.Envelope
	for q.Len() > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		q.Run(ctx, func(e bus.Envelope) {
			out = append(out, e)
			if q.Len() == 0 {
				cancel()
			}
		})
		cancel()
	}
	return out
}

func statuses(envs []bus.Envelope) []SessionState {
	var out []SessionState
	for _, e := range envs {
		if s, ok := e.Msg.(Status); ok {
			out = append(out, s.State)
		}
	}
	return out
}

func newTestSession(t *testing.T, client Client) (*Session, *bus.Queue, *recordSleeper) {
	t.Helper()
	q := bus.NewQueue(64)
	in := NewInbound(q, clock.NewStatic(1_000))
	sl := &recordSleeper{}
	s := NewSession(model.NewClientID("BINANCE"), client, in,
		WithBackoff(Backoff{Initial: 10 * time.Millisecond, Max: time.Second, Factor: 2}),
		WithSessionSleeper(sl),
	)
	return s, q, sl
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(SessionDisconnected, SessionConnected))
	assert.True(t, CanTransition(SessionConnected, SessionLoggedOn))
	assert.True(t, CanTransition(SessionLoggedOn, SessionRunning))
	assert.True(t, CanTransition(SessionRunning, SessionDisconnected))
	assert.True(t, CanTransition(SessionDisconnected, SessionStopped))
	assert.False(t, CanTransition(SessionDisconnected, SessionRunning))
	assert.False(t, CanTransition(SessionRunning, SessionLoggedOn))
	assert.False(t, CanTransition(SessionStopped, SessionConnected))
}

func TestSessionRetriesThenStopsOnFatal(t *testing.T) {
	client := &fakeClient{steps: []step{
		{connect: ServerError(503)},
		{connect: Timeout(time.Second)},
		{run: NewError(KindAuthenticationFailed, "key revoked", nil)},
	}}
	s, q, sl := newTestSession(t, client)

	err := s.Run(t.Context())
	require.ErrorIs(t, err, exception.ErrFatal)
	assert.Equal(t, SessionStopped, s.State())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sl.waits)
	assert.Equal(t, 3, client.disconnects)

	envs := drain(q)
	assert.Equal(t, []SessionState{
		SessionConnected, SessionLoggedOn, SessionRunning, SessionDisconnected, SessionStopped,
	}, statuses(envs))

	topic := switchboard.New().AdapterStatusTopic(model.NewClientID("BINANCE"))
	last := envs[len(envs)-1]
	assert.Equal(t, topic, last.Topic)
	assert.Equal(t, ClassFatal, last.Msg.(Status).Class)

	require.ErrorIs(t, s.Run(t.Context()), exception.ErrSessionStopped)
}

func TestSessionStopsOnNonRetryable(t *testing.T) {
	client := &fakeClient{steps: []step{{logon: Validation("symbols", "unknown symbol")}}}
	s, q, sl := newTestSession(t, client)

	err := s.Run(t.Context())
	require.ErrorIs(t, err, exception.ErrNonRetryable)
	assert.Equal(t, SessionStopped, s.State())
	assert.Empty(t, sl.waits)
	assert.Equal(t, []SessionState{SessionConnected, SessionDisconnected, SessionStopped}, statuses(drain(q)))
}

func TestSessionResetsAttemptAfterRunning(t *testing.T) {
	client := &fakeClient{steps: []step{
		{connect: ServerError(500)},
		{connect: ServerError(500)},
		{run: ConnectionLost(exception.ErrConnectionClose)},
		{run: NewError(KindForbidden, "", nil)},
	}}
	s, _, sl := newTestSession(t, client)

	require.ErrorIs(t, s.Run(t.Context()), exception.ErrFatal)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 10 * time.Millisecond}, sl.waits)
}

func TestSessionCancel(t *testing.T) {
	client := &fakeClient{running: make(chan struct{}, 1)}
	s, q, _ := newTestSession(t, client)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-client.running
	assert.Equal(t, SessionRunning, s.State())
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, SessionDisconnected, s.State())
	assert.Equal(t, []SessionState{SessionConnected, SessionLoggedOn, SessionRunning, SessionDisconnected}, statuses(drain(q)))
}

func TestSessionSendsMassStatus(t *testing.T) {
	mass := &model.ExecutionMassStatus{ClientID: model.NewClientID("BINANCE"), ReportID: model.NewUUID4()}
	client := massClient{&fakeClient{
		steps: []step{{run: NewError(KindAccountSuspended, "", nil)}},
		mass:  mass,
	}}
	s, q, _ := newTestSession(t, client)

	require.ErrorIs(t, s.Run(t.Context()), exception.ErrFatal)

	var found bool
	for _, e := range drain(q) {
		if e.Endpoint == switchboard.EndpointReconcile {
			found = true
			assert.Same(t, mass, e.Msg)
		}
	}
	assert.True(t, found)
	assert.Equal(t, model.UnixNanos(1_000), mass.TsInit)
}
