package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/mdmestre/enroller/internal/session"
	"github.com/mdmestre/enroller/pkg/api"
)

// gatewaySession polls /session and closes Done on the first failure.
type gatewaySession struct {
	client *Client

	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newGatewaySession(c *Client) *gatewaySession {
	ctx, cancel := context.WithCancel(context.Background())
	return &gatewaySession{client: c, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

func (s *gatewaySession) Services() api.Services {
	return api.Services{Membership: s.client, Invites: s.client, Delivery: s.client}
}

func (s *gatewaySession) Done() <-chan struct{} { return s.done }

func (s *gatewaySession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *gatewaySession) Close() error {
	s.cancel()
	s.finish(session.ErrClosed)
	return nil
}

func (s *gatewaySession) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *gatewaySession) watch() {
	t := time.NewTicker(s.client.heartbeat)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			if err := s.client.health(s.ctx); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.finish(err)
				return
			}
		}
	}
}
