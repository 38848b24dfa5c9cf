package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
)

var (
	// ErrNotFound is returned when no row matched the lookup or the write.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// AccessStore resolves a (ledger, user) pair to the level granted.
// A missing grant is capability.LevelNone with a nil error.
type AccessStore interface {
	GetAccessLevel(ctx context.Context, ledgerID, userID string) (capability.Level, error)
}

// Repository interface defines the methods that any repository implementation must satisfy.
// Every template and entry mutation appends its change record in the same transaction.
type Repository interface {
	AccessStore

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	// GetUserByEmail matches emails without regard to case, as CreateUser
	// does when rejecting duplicates.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Ledger operations
	CreateLedger(ctx context.Context, ledger *models.Ledger) error
	GetLedger(ctx context.Context, ledgerID string) (*models.Ledger, error)
	UpdateLedger(ctx context.Context, ledgerID string, patch models.LedgerPatch) (*models.Ledger, error)
	DeleteLedger(ctx context.Context, ledgerID string) (purgedChanges bool, err error)
	GetUserLedgers(ctx context.Context, userID string) ([]models.LedgerSummary, error)

	// Ledger sharing operations
	SetLedgerAccess(ctx context.Context, access *models.LedgerAccess) error
	RemoveLedgerAccess(ctx context.Context, ledgerID, userID string) error
	GetLedgerShares(ctx context.Context, ledgerID string) ([]models.LedgerShare, error)

	// Template operations
	CreateTemplate(ctx context.Context, template *models.Template, userID string) (*models.Change, error)
	GetTemplate(ctx context.Context, ledgerID, templateID string) (*models.Template, error)
	UpdateTemplate(ctx context.Context, ledgerID, templateID string, patch models.TemplatePatch, userID string) (*models.Template, *models.Change, error)
	DeleteTemplate(ctx context.Context, ledgerID, templateID, userID string) (*models.Change, error)
	GetLedgerTemplates(ctx context.Context, ledgerID string) ([]models.Template, error)

	// Entry operations
	CreateEntry(ctx context.Context, entry *models.Entry) (*models.Change, error)
	UpdateEntry(ctx context.Context, ledgerID, entryID string, patch models.EntryPatch, userID string) (*models.Entry, *models.Change, error)
	DeleteEntry(ctx context.Context, ledgerID, entryID, userID string) (*models.Change, error)
	GetLedgerEntries(ctx context.Context, ledgerID string) ([]models.Entry, error)

	// Change log operations
	GetChangesSince(ctx context.Context, ledgerID string, since time.Time) ([]models.ChangeWithEntity, error)
}

// Option configures a repository implementation
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the clock used for server-assigned timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// nextTimestamp returns the server time for a new change, forced strictly
// after the ledger's previous change. Postgres keeps microseconds, so the
// timestamp is truncated to round-trip exactly.
func nextTimestamp(now time.Time, last time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if !ts.After(last) {
		ts = last.UTC().Add(time.Microsecond)
	}
	return ts
}
