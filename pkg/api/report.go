package api

import "time"

// Stage is a state of the enrollment cycle.
type Stage string

const (
	StageLoadingInput   Stage = "LOADING_INPUT"
	StageComputingBatch Stage = "COMPUTING_BATCH"
	StageAdding         Stage = "ADDING"
	StageFetchingLink   Stage = "FETCHING_LINK"
	StageLinking        Stage = "LINKING"
	StageCoolingDown    Stage = "COOLING_DOWN"
)

// ActionKind identifies the outreach path of a single action.
type ActionKind string

const (
	ActionAdd  ActionKind = "add"
	ActionLink ActionKind = "link"
)

// Outcome is the result of a single action.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped means the action was never issued (no invite link).
	OutcomeSkipped Outcome = "skipped"
)

// ActionResult describes one addition or link delivery.
type ActionResult struct {
	CycleID string
	Kind    ActionKind
	Contact string
	Outcome Outcome
	Err     error

	// Delay is the pause taken after the action.
	Delay time.Duration
}

// CycleReport summarises one enrollment cycle.
type CycleReport struct {
	ID     string
	Number int

	StartedAt  time.Time
	FinishedAt time.Time

	// Pending is the number of unprocessed contacts when the cycle started.
	Pending int

	Added       int
	AddFailed   int
	Linked      int
	LinkFailed  int
	LinkSkipped int

	LinkAvailable bool

	// Remaining is the number of contacts still unprocessed when the cycle ended.
	Remaining int
}

// AddAttempts returns the number of addition actions issued.
func (r CycleReport) AddAttempts() int {
	return r.Added + r.AddFailed
}

// LinkAttempts returns the number of link deliveries issued.
func (r CycleReport) LinkAttempts() int {
	return r.Linked + r.LinkFailed
}

// Done reports whether no contact is left to process.
func (r CycleReport) Done() bool {
	return r.Remaining == 0
}
