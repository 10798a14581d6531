package adapter

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// SessionState is the lifecycle of an adapter connection.
type SessionState uint32

const (
	SessionDisconnected SessionState = iota
	SessionConnected
	SessionLoggedOn
	SessionRunning
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "DISCONNECTED"
	case SessionConnected:
		return "CONNECTED"
	case SessionLoggedOn:
		return "LOGGED_ON"
	case SessionRunning:
		return "RUNNING"
	case SessionStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

var sessionTransitions = map[SessionState][]SessionState{
	SessionDisconnected: {SessionConnected, SessionStopped},
	SessionConnected:    {SessionLoggedOn, SessionDisconnected},
	SessionLoggedOn:     {SessionRunning, SessionDisconnected},
	SessionRunning:      {SessionDisconnected},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to SessionState) bool {
	return slices.Contains(sessionTransitions[from], to)
}

// Client is the venue side of a session. Run blocks while the connection is
// healthy and returns the error that ended it.
type Client interface {
	Connect(ctx context.Context) error
	Logon(ctx context.Context) error
	Run(ctx context.Context, in *Inbound) error
	Disconnect() error
}

// MassStatusProvider is implemented by clients that can snapshot venue
// execution state after logon.
type MassStatusProvider interface {
	MassStatus(ctx context.Context) (*model.ExecutionMassStatus, error)
}

// Sleeper waits between reconnect attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status is published on events.adapter.<client_id> on every state change.
type Status struct {
	ClientID model.ClientID
	State    SessionState
	Attempt  int
	Class    Class
	Reason   string
	TsEvent  model.UnixNanos
	TsInit   model.UnixNanos
}

// Session drives a client through
// Disconnected -> Connected -> LoggedOn -> Running -> Disconnected and
// reconnects at Connected. Retryable and unclassified errors are retried with
// backoff; fatal and non-retryable errors stop the session.
type Session struct {
	id      model.ClientID
	client  Client
	inbound *Inbound
	backoff Backoff
	sleeper Sleeper
	state   atomic.Uint32
}

type SessionOption func(*Session)

func WithBackoff(b Backoff) SessionOption {
	return func(s *Session) { s.backoff = b }
}

func WithSessionSleeper(sl Sleeper) SessionOption {
	return func(s *Session) { s.sleeper = sl }
}

func NewSession(id model.ClientID, client Client, inbound *Inbound, opts ...SessionOption) *Session {
	s := &Session{
		id:      id,
		client:  client,
		inbound: inbound,
		backoff: DefaultBackoff(),
		sleeper: timerSleeper{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() model.ClientID { return s.id }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Run blocks until ctx is done or the session stops on a terminal error.
func (s *Session) Run(ctx context.Context) error {
	if s.State() == SessionStopped {
		return errors.Wrap(exception.ErrSessionStopped, "run").With("client", s.id.String())
	}
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		reached, err := s.runOnce(ctx)
		if derr := s.client.Disconnect(); derr != nil {
			logs.Warnf("adapter %s: disconnect, err: %+v", s.id, derr)
		}
		if s.State() != SessionDisconnected {
			s.transition(SessionDisconnected, attempt, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if reached == SessionRunning {
			attempt = 0
		}
		attempt++

		if err != nil && (Fatal(err) || errors.Is(err, exception.ErrNonRetryable)) {
			logs.Errorf("adapter %s: stopped, err: %+v", s.id, err)
			s.transition(SessionStopped, attempt, err)
			return errors.Wrap(err, "session stopped").With("client", s.id.String())
		}

		wait := s.backoff.Next(attempt, err)
		logs.Warnf("adapter %s: reconnect attempt %d in %s, err: %+v", s.id, attempt, wait, err)
		if err := s.sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// runOnce performs one connection lifecycle and returns the furthest state it
// reached.
func (s *Session) runOnce(ctx context.Context) (SessionState, error) {
	if err := s.client.Connect(ctx); err != nil {
		return SessionDisconnected, err
	}
	s.transition(SessionConnected, 0, nil)

	if err := s.client.Logon(ctx); err != nil {
		return SessionConnected, err
	}
	s.transition(SessionLoggedOn, 0, nil)

	if p, ok := s.client.(MassStatusProvider); ok {
		mass, err := p.MassStatus(ctx)
		if err != nil {
			return SessionLoggedOn, err
		}
		if mass != nil {
			if err := s.inbound.SendMassStatus(ctx, mass); err != nil {
				return SessionLoggedOn, err
			}
		}
	}

	s.transition(SessionRunning, 0, nil)
	return SessionRunning, s.client.Run(ctx, s.inbound)
}

func (s *Session) transition(to SessionState, attempt int, cause error) {
	from := s.State()
	if !CanTransition(from, to) {
		logs.Errorf("adapter %s: %+v", s.id, errors.Wrap(exception.ErrSessionState, "transition").
			With("from", from.String()).With("to", to.String()))
		return
	}
	s.state.Store(uint32(to))
	logs.Infof("adapter %s: %s -> %s", s.id, from, to)

	status := Status{ClientID: s.id, State: to, Attempt: attempt}
	if cause != nil {
		status.Reason = cause.Error()
		if ae, ok := AsError(cause); ok {
			status.Class = ae.Class()
		}
	}
	if s.inbound == nil {
		return
	}
	if err := s.inbound.PublishStatus(status); err != nil {
		logs.Warnf("adapter %s: publish status %s, err: %+v", s.id, to, err)
	}
}
