// Package testutil holds in-process fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdmestre/enroller/internal/persistence"
	"github.com/mdmestre/enroller/pkg/api"
)

// StaticSource is a ContactSource returning a fixed list.
type StaticSource struct {
	IDs []string
	Err error

	calls atomic.Int64
}

func (s *StaticSource) List(ctx context.Context) ([]string, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]string, len(s.IDs))
	copy(out, s.IDs)
	return out, nil
}

// Calls returns how many times List was called.
func (s *StaticSource) Calls() int {
	return int(s.calls.Load())
}

// FakeServices implements the membership, invite and delivery services in
// memory. Failures are configured per contact. It also tracks how many actions
// were in flight at once.
type FakeServices struct {
	mu sync.Mutex

	// AddErr and SendErr fail the named contacts.
	AddErr  map[string]error
	SendErr map[string]error

	// Link is returned by InviteLink unless LinkErr is set.
	Link    string
	LinkErr error

	// OnAction, if set, runs inside every Add and Send call.
	OnAction func(kind api.ActionKind, contact string)

	adds        []string
	sends       []string
	payloads    []string
	inviteCalls int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// Services binds f to every service slot.
func (f *FakeServices) Services() api.Services {
	return api.Services{Membership: f, Invites: f, Delivery: f}
}

func (f *FakeServices) enter() func() {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *FakeServices) Add(ctx context.Context, groupID, contactID string) error {
	defer f.enter()()

	f.mu.Lock()
	f.adds = append(f.adds, contactID)
	err := f.AddErr[contactID]
	hook := f.OnAction
	f.mu.Unlock()

	if hook != nil {
		hook(api.ActionAdd, contactID)
	}
	return err
}

func (f *FakeServices) InviteLink(ctx context.Context, groupID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inviteCalls++
	if f.LinkErr != nil {
		return "", f.LinkErr
	}
	return f.Link, nil
}

func (f *FakeServices) Send(ctx context.Context, contactID, payload string) error {
	defer f.enter()()

	f.mu.Lock()
	f.sends = append(f.sends, contactID)
	f.payloads = append(f.payloads, payload)
	err := f.SendErr[contactID]
	hook := f.OnAction
	f.mu.Unlock()

	if hook != nil {
		hook(api.ActionLink, contactID)
	}
	return err
}

// Adds returns the contacts passed to Add, in call order.
func (f *FakeServices) Adds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.adds...)
}

// Sends returns the contacts passed to Send, in call order.
func (f *FakeServices) Sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

// Payloads returns the messages passed to Send, in call order.
func (f *FakeServices) Payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

// InviteCalls returns how many times InviteLink was called.
func (f *FakeServices) InviteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inviteCalls
}

// MaxInFlight returns the highest number of concurrent Add/Send calls seen.
func (f *FakeServices) MaxInFlight() int {
	return int(f.maxInFlight.Load())
}

// Waits records pauses instead of sleeping.
type Waits struct {
	mu        sync.Mutex
	durations []time.Duration
}

// Wait records d and returns ctx.Err().
func (w *Waits) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.durations = append(w.durations, d)
	w.mu.Unlock()
	return ctx.Err()
}

// Durations returns every recorded pause in order.
func (w *Waits) Durations() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.durations...)
}

// ErrSaveFailed is returned by JournalLedger once FailAfter saves happened.
var ErrSaveFailed = errors.New("save failed")

// JournalLedger wraps an InMemoryLedger and keeps a copy of the record after
// every successful Save.
type JournalLedger struct {
	*persistence.InMemoryLedger

	// FailAfter makes every Save after the first FailAfter saves fail.
	// Zero never fails.
	FailAfter int

	// AfterSave runs after every successful Save with the 1-based save count.
	AfterSave func(n int)

	mu        sync.Mutex
	snapshots []*api.Record
}

// NewJournalLedger returns a JournalLedger backed by a fresh InMemoryLedger.
func NewJournalLedger() *JournalLedger {
	return &JournalLedger{InMemoryLedger: persistence.NewInMemoryLedger()}
}

func (l *JournalLedger) Save(ctx context.Context, rec *api.Record) error {
	l.mu.Lock()
	if l.FailAfter > 0 && len(l.snapshots) >= l.FailAfter {
		l.mu.Unlock()
		return ErrSaveFailed
	}
	l.mu.Unlock()

	if err := l.InMemoryLedger.Save(ctx, rec); err != nil {
		return err
	}

	l.mu.Lock()
	l.snapshots = append(l.snapshots, rec.Clone())
	n := len(l.snapshots)
	hook := l.AfterSave
	l.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Snapshots returns the record as persisted by each successful Save.
func (l *JournalLedger) Snapshots() []*api.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*api.Record(nil), l.snapshots...)
}
