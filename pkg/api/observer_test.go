package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts      int
	stages      []Stage
	actions     []ActionResult
	unavailable int
	ends        int
	lastErr     error
}

func (o *testObserver) OnCycleStart(ctx context.Context, cycleID string, number int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
}

func (o *testObserver) OnStage(ctx context.Context, cycleID string, stage Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *testObserver) OnAction(ctx context.Context, res ActionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, res)
}

func (o *testObserver) OnLinkUnavailable(ctx context.Context, cycleID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable++
}

func (o *testObserver) OnCycleEnd(ctx context.Context, report CycleReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends++
	o.lastErr = err
}

func TestNewCompositeObserver_FiltersNil(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver for no observers")
	}
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver when all observers are nil")
	}

	single := &testObserver{}
	if got := NewCompositeObserver(nil, single); got != single {
		t.Fatalf("expected the single non-nil observer to be returned as-is")
	}
}

func TestCompositeObserver_FansOut(t *testing.T) {
	ctx := context.Background()
	a, b := &testObserver{}, &testObserver{}
	obs := NewCompositeObserver(a, b)

	boom := errors.New("boom")
	obs.OnCycleStart(ctx, "c1", 1)
	obs.OnStage(ctx, "c1", StageAdding)
	obs.OnAction(ctx, ActionResult{CycleID: "c1", Kind: ActionAdd, Contact: "5511999990000", Outcome: OutcomeSucceeded})
	obs.OnLinkUnavailable(ctx, "c1", boom)
	obs.OnCycleEnd(ctx, CycleReport{ID: "c1"}, boom)

	for name, o := range map[string]*testObserver{"a": a, "b": b} {
		if o.starts != 1 || o.ends != 1 || o.unavailable != 1 {
			t.Fatalf("%s: unexpected counts starts=%d ends=%d unavailable=%d", name, o.starts, o.ends, o.unavailable)
		}
		if len(o.stages) != 1 || o.stages[0] != StageAdding {
			t.Fatalf("%s: unexpected stages %v", name, o.stages)
		}
		if len(o.actions) != 1 || o.actions[0].Contact != "5511999990000" {
			t.Fatalf("%s: unexpected actions %+v", name, o.actions)
		}
		if !errors.Is(o.lastErr, boom) {
			t.Fatalf("%s: expected cycle error to be forwarded, got %v", name, o.lastErr)
		}
	}
}

func TestLoggingObserver_WritesStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewLoggingObserver(logger)
	ctx := context.Background()

	obs.OnCycleStart(ctx, "c1", 1)
	obs.OnAction(ctx, ActionResult{
		CycleID: "c1",
		Kind:    ActionAdd,
		Contact: "5511999990000",
		Outcome: OutcomeFailed,
		Err:     errors.New("not allowed"),
	})
	obs.OnCycleEnd(ctx, CycleReport{ID: "c1", Number: 1, Added: 2, Remaining: 3}, nil)

	out := buf.String()
	for _, want := range []string{
		"msg=cycle_start",
		"msg=action",
		"level=WARN",
		"outcome=failed",
		`error="not allowed"`,
		"msg=cycle_end",
		"added=2",
		"remaining=3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	obs := NewLoggingObserver(nil)
	lo, ok := obs.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", obs)
	}
	if lo.Logger == nil {
		t.Fatalf("expected default logger to be set")
	}
}

func TestBasicMetrics_Snapshot(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetrics{}

	m.OnAction(ctx, ActionResult{Kind: ActionAdd, Outcome: OutcomeSucceeded})
	m.OnAction(ctx, ActionResult{Kind: ActionAdd, Outcome: OutcomeFailed})
	m.OnAction(ctx, ActionResult{Kind: ActionLink, Outcome: OutcomeSucceeded})
	m.OnAction(ctx, ActionResult{Kind: ActionLink, Outcome: OutcomeSucceeded})
	m.OnAction(ctx, ActionResult{Kind: ActionLink, Outcome: OutcomeFailed})
	m.OnAction(ctx, ActionResult{Kind: ActionLink, Outcome: OutcomeSkipped})
	m.OnCycleEnd(ctx, CycleReport{Remaining: 7}, nil)
	m.OnCycleEnd(ctx, CycleReport{Remaining: 1}, errors.New("disk full"))

	snap := m.Snapshot()
	want := BasicMetricsSnapshot{
		CyclesCompleted: 1,
		CyclesFailed:    1,
		Added:           1,
		AddFailed:       1,
		Linked:          2,
		LinkFailed:      1,
		LinkSkipped:     1,
		Remaining:       7,
	}
	if snap != want {
		t.Fatalf("unexpected snapshot:\n got %+v\nwant %+v", snap, want)
	}
}
