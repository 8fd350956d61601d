package enroller

import (
	"database/sql"

	"github.com/mdmestre/enroller/internal/engine"
	"github.com/mdmestre/enroller/internal/pacing"
	"github.com/mdmestre/enroller/internal/persistence"
	"github.com/mdmestre/enroller/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Record               = api.Record
	ContactSource        = api.ContactSource
	Ledger               = api.Ledger
	GroupMembership      = api.GroupMembership
	InviteService        = api.InviteService
	MessageDelivery      = api.MessageDelivery
	Services             = api.Services
	CycleReport          = api.CycleReport
	ActionResult         = api.ActionResult
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	Orchestrator = engine.Orchestrator
	Config       = engine.Config
	Option       = engine.Option
	DelayRange   = pacing.Range
)

// Re-export common helpers.

var (
	NewRecord            = api.NewRecord
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	TemplateMessage      = engine.TemplateMessage

	WithObserver = engine.WithObserver
)

// Errors returned by Orchestrator.Run.
var (
	ErrInput       = engine.ErrInput
	ErrPersistence = engine.ErrPersistence
)

// New returns an Orchestrator for one messaging session.
func New(cfg Config, source ContactSource, ledger Ledger, svc Services, opts ...Option) (*Orchestrator, error) {
	return engine.New(cfg, source, ledger, svc, opts...)
}

// Ledger constructors.
// These wrap internal/persistence so external callers never need to import
// internal packages.

// NewInMemoryLedger returns a non-durable Ledger for tests.
func NewInMemoryLedger() Ledger {
	return persistence.NewInMemoryLedger()
}

// NewFileLedger returns a JSON file Ledger. It holds an exclusive lock on the
// file until Close is called.
func NewFileLedger(path string) (*persistence.FileLedger, error) {
	return persistence.NewFileLedger(path)
}

// NewSQLiteLedger stores the Record in db. The caller registers the driver.
func NewSQLiteLedger(db *sql.DB) (Ledger, error) {
	l, err := persistence.NewSQLiteLedger(db)
	if err != nil {
		return nil, err
	}
	return l, nil
}
