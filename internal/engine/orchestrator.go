package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mdmestre/enroller/internal/pacing"
	"github.com/mdmestre/enroller/pkg/api"
)

var (
	// ErrInput is returned when the contact source cannot be read. The cycle
	// is aborted before the ledger is touched.
	ErrInput = errors.New("contact source unavailable")

	// ErrPersistence is returned when the ledger cannot be loaded or saved.
	// The cycle halts immediately, since continuing could repeat or lose work.
	ErrPersistence = errors.New("ledger persistence failed")

	// ErrNoInviteLink is attached to link actions skipped because the invite
	// link could not be fetched.
	ErrNoInviteLink = errors.New("invite link unavailable")
)

// Config holds the campaign policy.
type Config struct {
	GroupID string

	// AddQuota and LinkQuota bound the actions of each kind per cycle.
	AddQuota  int
	LinkQuota int

	AddDelay  pacing.Range
	LinkDelay pacing.Range
	Cooldown  time.Duration

	// Message renders the link delivery payload. Nil uses DefaultMessageTemplate.
	Message MessageFunc
}

// Validate checks that the policy is usable.
func (c Config) Validate() error {
	if c.GroupID == "" {
		return errors.New("group id is required")
	}
	if c.AddQuota < 0 || c.LinkQuota < 0 {
		return fmt.Errorf("quotas must not be negative (add=%d, link=%d)", c.AddQuota, c.LinkQuota)
	}
	if c.AddQuota+c.LinkQuota == 0 {
		return errors.New("at least one quota must be positive")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative: %s", c.Cooldown)
	}
	if err := c.AddDelay.Validate(); err != nil {
		return fmt.Errorf("add delay: %w", err)
	}
	if err := c.LinkDelay.Validate(); err != nil {
		return fmt.Errorf("link delay: %w", err)
	}
	return nil
}

// Orchestrator runs enrollment cycles. It issues exactly one action at a time
// and persists the ledger after every action. An Orchestrator is not safe for
// concurrent use.
type Orchestrator struct {
	cfg      Config
	source   api.ContactSource
	ledger   api.Ledger
	services api.Services
	pacer    *pacing.Pacer
	observer api.Observer
	newID    func() string
	now      func() time.Time

	cycles int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the Observer. The default is api.NoopObserver.
func WithObserver(obs api.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithPacer replaces the default real-time Pacer.
func WithPacer(p *pacing.Pacer) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.pacer = p
		}
	}
}

// WithIDFunc replaces the cycle ID generator.
func WithIDFunc(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New creates an Orchestrator. Every service in svc must be set.
func New(cfg Config, source api.ContactSource, ledger api.Ledger, svc api.Services, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || ledger == nil {
		return nil, errors.New("contact source and ledger are required")
	}
	if svc.Membership == nil || svc.Invites == nil || svc.Delivery == nil {
		return nil, errors.New("membership, invite and delivery services are required")
	}
	if cfg.Message == nil {
		msg, err := TemplateMessage(DefaultMessageTemplate)
		if err != nil {
			return nil, err
		}
		cfg.Message = msg
	}

	o := &Orchestrator{
		cfg:      cfg,
		source:   source,
		ledger:   ledger,
		services: svc,
		pacer:    pacing.New(),
		observer: api.NoopObserver{},
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes cycles until every contact is processed, ctx ends, or a cycle
// fails with ErrInput or ErrPersistence. It returns nil only when nothing is
// left to process.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		report, err := o.RunCycle(ctx)
		if err != nil {
			return err
		}
		if report.Done() {
			return nil
		}

		o.observer.OnStage(ctx, report.ID, api.StageCoolingDown)
		if err := o.pacer.Wait(ctx, o.cfg.Cooldown); err != nil {
			return err
		}
	}
}

// RunCycle executes a single cycle without the trailing cooldown.
func (o *Orchestrator) RunCycle(ctx context.Context) (report api.CycleReport, err error) {
	o.cycles++
	report = api.CycleReport{
		ID:        o.newID(),
		Number:    o.cycles,
		StartedAt: o.now(),
	}
	o.observer.OnCycleStart(ctx, report.ID, report.Number)
	defer func() {
		report.FinishedAt = o.now()
		o.observer.OnCycleEnd(ctx, report, err)
	}()

	o.observer.OnStage(ctx, report.ID, api.StageLoadingInput)
	contacts, err := o.source.List(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrInput, err)
	}

	o.observer.OnStage(ctx, report.ID, api.StageComputingBatch)
	rec, err := o.ledger.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	b := planBatch(contacts, rec, o.cfg.AddQuota)
	report.Pending = len(b.pending)
	if len(b.pending) == 0 {
		return report, nil
	}

	o.observer.OnStage(ctx, report.ID, api.StageAdding)
	for _, id := range b.toAdd {
		if err := o.add(ctx, &report, rec, id); err != nil {
			report.Remaining = remaining(b.pending, rec)
			return report, err
		}
	}

	o.observer.OnStage(ctx, report.ID, api.StageFetchingLink)
	link := o.fetchLink(ctx, report.ID)
	report.LinkAvailable = link != ""

	o.observer.OnStage(ctx, report.ID, api.StageLinking)
	toLink := linkCandidates(b.pending, rec, o.cfg.LinkQuota)
	if link == "" {
		for _, id := range toLink {
			report.LinkSkipped++
			o.observer.OnAction(ctx, api.ActionResult{
				CycleID: report.ID,
				Kind:    api.ActionLink,
				Contact: id,
				Outcome: api.OutcomeSkipped,
				Err:     ErrNoInviteLink,
			})
		}
	} else {
		payload := o.cfg.Message(link)
		for _, id := range toLink {
			if err := o.deliver(ctx, &report, rec, id, payload); err != nil {
				report.Remaining = remaining(b.pending, rec)
				return report, err
			}
		}
	}

	report.Remaining = remaining(b.pending, rec)
	return report, nil
}

// add attempts a direct addition. A failed addition moves the contact to the
// link path for good; it is never retried as an addition.
func (o *Orchestrator) add(ctx context.Context, report *api.CycleReport, rec *api.Record, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := api.ActionResult{CycleID: report.ID, Kind: api.ActionAdd, Contact: id}
	if err := o.services.Membership.Add(ctx, o.cfg.GroupID, id); err != nil {
		if ctx.Err() != nil {
			// Interrupted, not refused: leave the contact pending.
			return ctx.Err()
		}
		res.Outcome = api.OutcomeFailed
		res.Err = err
		rec.MarkLinked(id)
		report.AddFailed++
	} else {
		res.Outcome = api.OutcomeSucceeded
		rec.MarkAdded(id)
		report.Added++
	}

	if err := o.save(ctx, rec); err != nil {
		return err
	}

	res.Delay = o.pacer.Jitter(o.cfg.AddDelay)
	o.observer.OnAction(ctx, res)
	return o.pacer.Wait(ctx, res.Delay)
}

// deliver sends the invite message. A failed delivery leaves the ledger
// untouched so the contact is retried in a later cycle.
func (o *Orchestrator) deliver(ctx context.Context, report *api.CycleReport, rec *api.Record, id, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := api.ActionResult{CycleID: report.ID, Kind: api.ActionLink, Contact: id}
	if err := o.services.Delivery.Send(ctx, id, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Outcome = api.OutcomeFailed
		res.Err = err
		report.LinkFailed++
	} else {
		res.Outcome = api.OutcomeSucceeded
		rec.MarkLinked(id)
		report.Linked++
		if err := o.save(ctx, rec); err != nil {
			return err
		}
	}

	res.Delay = o.pacer.Jitter(o.cfg.LinkDelay)
	o.observer.OnAction(ctx, res)
	return o.pacer.Wait(ctx, res.Delay)
}

func (o *Orchestrator) fetchLink(ctx context.Context, cycleID string) string {
	link, err := o.services.Invites.InviteLink(ctx, o.cfg.GroupID)
	if err == nil && link == "" {
		err = errors.New("empty invite link")
	}
	if err != nil {
		o.observer.OnLinkUnavailable(ctx, cycleID, err)
		return ""
	}
	return link
}

// save persists rec even if ctx was cancelled after the action completed.
func (o *Orchestrator) save(ctx context.Context, rec *api.Record) error {
	if err := o.ledger.Save(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("%w: save: %w", ErrPersistence, err)
	}
	return nil
}

// Pending returns the contacts the next cycle would consider, in order,
// without issuing any action.
func (o *Orchestrator) Pending(ctx context.Context) ([]string, error) {
	contacts, err := o.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	rec, err := o.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	return rec.Pending(contacts), nil
}
