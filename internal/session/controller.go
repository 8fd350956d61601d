// Package session keeps a messaging session alive and runs work on it.
//
// A Controller dials a session, hands it to a Handler, and dials again after
// a fixed delay whenever the session drops. It refuses to start a second
// connection attempt while one is in progress, and it stops for good when
// the account is logged out.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mdmestre/enroller/internal/pacing"
	"github.com/mdmestre/enroller/pkg/api"
)

var (
	// ErrLoggedOut means the account credentials were revoked. Reconnecting
	// cannot help; a new login is required.
	ErrLoggedOut = errors.New("session logged out")

	// ErrAlreadyConnecting is returned by Run while another Run is active.
	ErrAlreadyConnecting = errors.New("session connection already in progress")

	// ErrClosed reports that an established session dropped.
	ErrClosed = errors.New("session closed")
)

// State is the connection state of a Controller.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session is one live connection to the messaging platform.
type Session interface {
	// Services returns the collaborators bound to this connection.
	Services() api.Services
	// Done is closed when the connection drops.
	Done() <-chan struct{}
	// Err reports why Done was closed.
	Err() error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Handler runs on a connected session. Its context is cancelled when the
// session drops. Returning nil ends Controller.Run.
type Handler func(ctx context.Context, s Session) error

// Controller owns the connection lifecycle.
type Controller struct {
	dialer         Dialer
	reconnectDelay time.Duration
	startDelay     time.Duration
	logger         *slog.Logger
	wait           pacing.WaitFunc

	state   atomic.Int32
	running atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Controller) { c.reconnectDelay = d }
}

// WithStartDelay sets the pause before the first connection attempt.
func WithStartDelay(d time.Duration) Option {
	return func(c *Controller) { c.startDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWaitFunc replaces the start delay sleep; used by tests.
func WithWaitFunc(fn pacing.WaitFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.wait = fn
		}
	}
}

// NewController returns a Controller using d.
func NewController(d Dialer, opts ...Option) *Controller {
	c := &Controller{
		dialer:         d,
		reconnectDelay: 10 * time.Second,
		logger:         slog.Default(),
		wait:           pacing.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Run connects and invokes h until h returns nil, h fails for a reason other
// than a dropped session, the account is logged out, or ctx ends.
func (c *Controller) Run(ctx context.Context, h Handler) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyConnecting
	}
	defer c.running.Store(false)
	defer c.state.Store(int32(Disconnected))

	if c.startDelay > 0 {
		if err := c.wait(ctx, c.startDelay); err != nil {
			return err
		}
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.connectOnce(ctx, h, attempt)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.reconnectDelay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("session_reconnect",
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", next),
				slog.Any("error", err),
			)
		}),
	)
	return err
}

func (c *Controller) connectOnce(ctx context.Context, h Handler, attempt int) error {
	c.state.Store(int32(Connecting))
	c.logger.Info("session_connecting", slog.Int("attempt", attempt))

	sess, err := c.dialer.Dial(ctx)
	if err != nil {
		c.state.Store(int32(Disconnected))
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrLoggedOut) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer sess.Close()

	c.state.Store(int32(Connected))
	c.logger.Info("session_connected", slog.Int("attempt", attempt))

	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-sess.Done():
			cancel(dropCause(sess))
		case <-connCtx.Done():
		}
	}()

	herr := h(connCtx, sess)
	c.state.Store(int32(Disconnected))

	switch {
	case herr == nil:
		return nil
	case ctx.Err() != nil:
		return backoff.Permanent(ctx.Err())
	}

	select {
	case <-sess.Done():
		cause := dropCause(sess)
		c.logger.Warn("session_closed", slog.Any("error", cause))
		if errors.Is(cause, ErrLoggedOut) {
			return backoff.Permanent(cause)
		}
		return cause
	default:
	}
	if errors.Is(herr, ErrClosed) {
		return herr
	}
	return backoff.Permanent(herr)
}

func dropCause(sess Session) error {
	err := sess.Err()
	if err == nil {
		return ErrClosed
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrLoggedOut) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}
