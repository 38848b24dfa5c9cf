package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/changefeed"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
	"github.com/rongwang/tally-server/internal/repository"
)

// Service defines all the business logic operations. Ledger-scoped handlers
// run after the procedure pipeline has authenticated the caller and resolved
// their level; they do not check access themselves.
type Service interface {
	// Identity
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)

	// Ledger operations
	ListLedgers(ctx context.Context, call *procedure.Call, req models.ListLedgersRequest) ([]models.LedgerSummary, error)
	GetLedger(ctx context.Context, call *procedure.Call, req models.LedgerRef) (*models.LedgerSummary, error)
	CreateLedger(ctx context.Context, call *procedure.Call, req models.CreateLedgerRequest) (*models.Ledger, error)
	UpdateLedger(ctx context.Context, call *procedure.Call, req models.UpdateLedgerRequest) (*models.Ledger, error)
	DeleteLedger(ctx context.Context, call *procedure.Call, req models.LedgerRef) (*models.DeleteLedgerResponse, error)

	// Ledger sharing
	ShareLedger(ctx context.Context, call *procedure.Call, req models.ShareLedgerRequest) (*models.ShareLedgerResponse, error)

	// Template operations
	CreateTemplate(ctx context.Context, call *procedure.Call, req models.CreateTemplateRequest) (*models.Template, error)
	GetTemplates(ctx context.Context, call *procedure.Call, req models.LedgerRef) ([]models.Template, error)
	UpdateTemplate(ctx context.Context, call *procedure.Call, req models.UpdateTemplateRequest) (*models.Template, error)
	DeleteTemplate(ctx context.Context, call *procedure.Call, req models.EntityRef) (*models.DeleteResponse, error)

	// Entry operations
	CreateEntry(ctx context.Context, call *procedure.Call, req models.CreateEntryRequest) (*models.Entry, error)
	GetEntries(ctx context.Context, call *procedure.Call, req models.LedgerRef) ([]models.Entry, error)
	UpdateEntry(ctx context.Context, call *procedure.Call, req models.UpdateEntryRequest) (*models.Entry, error)
	DeleteEntry(ctx context.Context, call *procedure.Call, req models.EntityRef) (*models.DeleteResponse, error)

	// Change log
	GetUpdatesSince(ctx context.Context, call *procedure.Call, req models.UpdatesSinceRequest) (*models.UpdatesSinceResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo   repository.Repository
	tokens *auth.Tokens
	feed   changefeed.Publisher
	logger *slog.Logger
}

// NewDefaultService creates a new DefaultService. A nil feed disables change publication.
func NewDefaultService(
	repo repository.Repository,
	tokens *auth.Tokens,
	feed changefeed.Publisher,
	logger *slog.Logger,
) *DefaultService {
	if feed == nil {
		feed = changefeed.Nop{}
	}
	return &DefaultService{
		repo:   repo,
		tokens: tokens,
		feed:   feed,
		logger: logger,
	}
}

var _ Service = (*DefaultService)(nil)

// notFoundOr translates a repository miss into NotFound and wraps anything
// else as an internal failure.
func notFoundOr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("error accessing %s: %w", what, err)
}

// publishTimeout bounds how long a committed write waits on the feed
const publishTimeout = 5 * time.Second

// publish hands a committed change to the feed. The change is already in the
// log, so the request being canceled must not drop it. Failures are logged
// only: clients read the change log, not the feed.
func (s *DefaultService) publish(ctx context.Context, change *models.Change) {
	if change == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.feed.Publish(ctx, *change); err != nil {
		s.logger.Warn("failed to publish change",
			"ledger", change.LedgerID, "change", change.ID, "error", err)
	}
}
