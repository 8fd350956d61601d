package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mdmestre/enroller/internal/testutil"
	"github.com/mdmestre/enroller/pkg/api"
)

type fakeSession struct {
	done   chan struct{}
	once   sync.Once
	err    error
	closed bool
	mu     sync.Mutex
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Services() api.Services {
	f := &testutil.FakeServices{}
	return f.Services()
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) drop(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// scriptedDialer returns the queued results in order and then fails.
type scriptedDialer struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
}

type dialResult struct {
	sess *fakeSession
	err  error
}

func (d *scriptedDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.results) == 0 {
		return nil, errors.New("no more sessions")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.sess, nil
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(d Dialer, waits *testutil.Waits) *Controller {
	return NewController(d,
		WithReconnectDelay(time.Millisecond),
		WithStartDelay(10*time.Second),
		WithWaitFunc(waits.Wait),
		WithLogger(quietLogger()),
	)
}

func TestController_HandlerSuccessEndsRun(t *testing.T) {
	sess := newFakeSession()
	d := &scriptedDialer{results: []dialResult{{sess: sess}}}
	waits := &testutil.Waits{}
	c := newTestController(d, waits)

	var seen State
	err := c.Run(context.Background(), func(ctx context.Context, s Session) error {
		seen = c.State()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, Connected, seen)
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []time.Duration{10 * time.Second}, waits.Durations())
	require.True(t, sess.closed)
}

func TestController_ReconnectsAfterDrop(t *testing.T) {
	first, second := newFakeSession(), newFakeSession()
	d := &scriptedDialer{results: []dialResult{
		{err: errors.New("network unreachable")},
		{sess: first},
		{sess: second},
	}}
	c := newTestController(d, &testutil.Waits{})

	runs := 0
	err := c.Run(context.Background(), func(ctx context.Context, s Session) error {
		runs++
		if runs == 1 {
			first.drop(errors.New("stream reset"))
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	require.Equal(t, 3, d.Calls())
}

func TestController_LoggedOutIsPermanent(t *testing.T) {
	t.Run("on dial", func(t *testing.T) {
		d := &scriptedDialer{results: []dialResult{{err: ErrLoggedOut}}}
		c := newTestController(d, &testutil.Waits{})

		err := c.Run(context.Background(), func(ctx context.Context, s Session) error { return nil })
		require.ErrorIs(t, err, ErrLoggedOut)
		require.Equal(t, 1, d.Calls())
	})

	t.Run("while connected", func(t *testing.T) {
		sess := newFakeSession()
		d := &scriptedDialer{results: []dialResult{{sess: sess}, {sess: newFakeSession()}}}
		c := newTestController(d, &testutil.Waits{})

		err := c.Run(context.Background(), func(ctx context.Context, s Session) error {
			sess.drop(ErrLoggedOut)
			<-ctx.Done()
			return ctx.Err()
		})
		require.ErrorIs(t, err, ErrLoggedOut)
		require.Equal(t, 1, d.Calls())
	})
}

func TestController_HandlerErrorIsNotRetried(t *testing.T) {
	d := &scriptedDialer{results: []dialResult{{sess: newFakeSession()}, {sess: newFakeSession()}}}
	c := newTestController(d, &testutil.Waits{})

	boom := errors.New("ledger write failed")
	err := c.Run(context.Background(), func(ctx context.Context, s Session) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, d.Calls())
}

func TestController_RejectsConcurrentRun(t *testing.T) {
	sess := newFakeSession()
	d := &scriptedDialer{results: []dialResult{{sess: sess}}}
	c := newTestController(d, &testutil.Waits{})

	entered := make(chan struct{})
	release := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- c.Run(context.Background(), func(ctx context.Context, s Session) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	err := c.Run(context.Background(), func(ctx context.Context, s Session) error { return nil })
	require.ErrorIs(t, err, ErrAlreadyConnecting)

	close(release)
	require.NoError(t, <-errc)
}

func TestController_CancelStopsRun(t *testing.T) {
	d := &scriptedDialer{results: []dialResult{{sess: newFakeSession()}}}
	c := newTestController(d, &testutil.Waits{})

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Run(ctx, func(ctx context.Context, s Session) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, d.Calls())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "disconnected", Disconnected.String())
	require.Equal(t, "connecting", Connecting.String())
	require.Equal(t, "connected", Connected.String())
	require.Equal(t, "State(7)", State(7).String())
}
