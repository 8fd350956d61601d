package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the orchestrator for logging and metrics.
//
// Callbacks run on the orchestrator's goroutine between actions, so
// implementations should be fast and must not block.
type Observer interface {
	// OnCycleStart is called before the contact source is read.
	OnCycleStart(ctx context.Context, cycleID string, number int)

	// OnStage is called on every state transition inside a cycle.
	OnStage(ctx context.Context, cycleID string, stage Stage)

	// OnAction is called once per contact handled in ADDING or LINKING, after
	// the ledger was persisted and before the pause.
	OnAction(ctx context.Context, res ActionResult)

	// OnLinkUnavailable is called when the invite link could not be fetched.
	OnLinkUnavailable(ctx context.Context, cycleID string, err error)

	// OnCycleEnd is called when a cycle finishes. err is non-nil when the
	// cycle was aborted.
	OnCycleEnd(ctx context.Context, report CycleReport, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnCycleStart(ctx context.Context, cycleID string, number int)     {}
func (NoopObserver) OnStage(ctx context.Context, cycleID string, stage Stage)         {}
func (NoopObserver) OnAction(ctx context.Context, res ActionResult)                   {}
func (NoopObserver) OnLinkUnavailable(ctx context.Context, cycleID string, err error) {}
func (NoopObserver) OnCycleEnd(ctx context.Context, report CycleReport, err error)    {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnCycleStart(ctx context.Context, cycleID string, number int) {
	for _, o := range c.observers {
		o.OnCycleStart(ctx, cycleID, number)
	}
}

func (c *CompositeObserver) OnStage(ctx context.Context, cycleID string, stage Stage) {
	for _, o := range c.observers {
		o.OnStage(ctx, cycleID, stage)
	}
}

func (c *CompositeObserver) OnAction(ctx context.Context, res ActionResult) {
	for _, o := range c.observers {
		o.OnAction(ctx, res)
	}
}

func (c *CompositeObserver) OnLinkUnavailable(ctx context.Context, cycleID string, err error) {
	for _, o := range c.observers {
		o.OnLinkUnavailable(ctx, cycleID, err)
	}
}

func (c *CompositeObserver) OnCycleEnd(ctx context.Context, report CycleReport, err error) {
	for _, o := range c.observers {
		o.OnCycleEnd(ctx, report, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs cycle and action events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnCycleStart(ctx context.Context, cycleID string, number int) {
	o.Logger.InfoContext(ctx, "cycle_start",
		slog.String("cycle_id", cycleID),
		slog.Int("cycle", number),
	)
}

func (o *LoggingObserver) OnStage(ctx context.Context, cycleID string, stage Stage) {
	o.Logger.DebugContext(ctx, "stage",
		slog.String("cycle_id", cycleID),
		slog.String("stage", string(stage)),
	)
}

func (o *LoggingObserver) OnAction(ctx context.Context, res ActionResult) {
	level := slog.LevelInfo
	if res.Outcome != OutcomeSucceeded {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("cycle_id", res.CycleID),
		slog.String("kind", string(res.Kind)),
		slog.String("contact", res.Contact),
		slog.String("outcome", string(res.Outcome)),
		slog.Duration("next_delay", res.Delay),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.Any("error", res.Err))
	}
	o.Logger.LogAttrs(ctx, level, "action", attrs...)
}

func (o *LoggingObserver) OnLinkUnavailable(ctx context.Context, cycleID string, err error) {
	o.Logger.WarnContext(ctx, "link_unavailable",
		slog.String("cycle_id", cycleID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnCycleEnd(ctx context.Context, report CycleReport, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "cycle_end",
		slog.String("cycle_id", report.ID),
		slog.Int("cycle", report.Number),
		slog.Int("pending", report.Pending),
		slog.Int("added", report.Added),
		slog.Int("add_failed", report.AddFailed),
		slog.Int("linked", report.Linked),
		slog.Int("link_failed", report.LinkFailed),
		slog.Int("link_skipped", report.LinkSkipped),
		slog.Int("remaining", report.Remaining),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple in-process counters.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	cyclesCompleted atomic.Int64
	cyclesFailed    atomic.Int64
	added           atomic.Int64
	addFailed       atomic.Int64
	linked          atomic.Int64
	linkFailed      atomic.Int64
	linkSkipped     atomic.Int64
	remaining       atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	CyclesCompleted int64
	CyclesFailed    int64

	Added       int64
	AddFailed   int64
	Linked      int64
	LinkFailed  int64
	LinkSkipped int64

	// Remaining is the value reported by the most recent cycle.
	Remaining int64
}

func (m *BasicMetrics) OnAction(ctx context.Context, res ActionResult) {
	switch {
	case res.Kind == ActionAdd && res.Outcome == OutcomeSucceeded:
		m.added.Add(1)
	case res.Kind == ActionAdd:
		m.addFailed.Add(1)
	case res.Outcome == OutcomeSucceeded:
		m.linked.Add(1)
	case res.Outcome == OutcomeSkipped:
		m.linkSkipped.Add(1)
	default:
		m.linkFailed.Add(1)
	}
}

func (m *BasicMetrics) OnCycleEnd(ctx context.Context, report CycleReport, err error) {
	if err != nil {
		m.cyclesFailed.Add(1)
		return
	}
	m.cyclesCompleted.Add(1)
	m.remaining.Store(int64(report.Remaining))
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		CyclesCompleted: m.cyclesCompleted.Load(),
		CyclesFailed:    m.cyclesFailed.Load(),
		Added:           m.added.Load(),
		AddFailed:       m.addFailed.Load(),
		Linked:          m.linked.Load(),
		LinkFailed:      m.linkFailed.Load(),
		LinkSkipped:     m.linkSkipped.Load(),
		Remaining:       m.remaining.Load(),
	}
}
