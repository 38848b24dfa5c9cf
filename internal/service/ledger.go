package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
	"github.com/rongwang/tally-server/internal/repository"
)

// ListLedgers returns every ledger the caller has access to
func (s *DefaultService) ListLedgers(ctx context.Context, call *procedure.Call, _ models.ListLedgersRequest) ([]models.LedgerSummary, error) {
	ledgers, err := s.repo.GetUserLedgers(ctx, call.UserID())
	if err != nil {
		return nil, fmt.Errorf("error getting user ledgers: %w", err)
	}
	return ledgers, nil
}

// GetLedger returns the ledger with the caller's level and everyone it is
// shared with
func (s *DefaultService) GetLedger(ctx context.Context, call *procedure.Call, _ models.LedgerRef) (*models.LedgerSummary, error) {
	ledger, err := s.repo.GetLedger(ctx, call.LedgerID)
	if err != nil {
		return nil, notFoundOr(err, "ledger")
	}

	shares, err := s.repo.GetLedgerShares(ctx, call.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("error getting ledger shares: %w", err)
	}

	return &models.LedgerSummary{Ledger: *ledger, Level: call.Level, Access: shares}, nil
}

// CreateLedger creates a new ledger and grants the caller admin access in the same transaction
func (s *DefaultService) CreateLedger(ctx context.Context, call *procedure.Call, req models.CreateLedgerRequest) (*models.Ledger, error) {
	// The session may outlive the user it names
	if _, err := s.repo.GetUserByID(ctx, call.UserID()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated("user not found")
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	ledger := &models.Ledger{
		Name:      req.Name,
		StartDate: req.StartDate.UTC(),
		EndDate:   req.EndDate.UTC(),
		CreatedBy: call.UserID(),
	}

	if err := s.repo.CreateLedger(ctx, ledger); err != nil {
		return nil, fmt.Errorf("error creating ledger: %w", err)
	}

	s.logger.Info("ledger created", "ledger", ledger.ID, "user", call.UserID())
	return ledger, nil
}

// UpdateLedger changes the name or date range of a ledger
func (s *DefaultService) UpdateLedger(ctx context.Context, call *procedure.Call, req models.UpdateLedgerRequest) (*models.Ledger, error) {
	current, err := s.repo.GetLedger(ctx, call.LedgerID)
	if err != nil {
		return nil, notFoundOr(err, "ledger")
	}

	// Check the resulting range, not only the fields sent
	patch := req.Patch()
	merged := *current
	patch.Apply(&merged)
	if merged.EndDate.Before(merged.StartDate) {
		return nil, apperr.BadRequest("endDate must not be before startDate")
	}

	ledger, err := s.repo.UpdateLedger(ctx, call.LedgerID, patch)
	if err != nil {
		return nil, notFoundOr(err, "ledger")
	}
	return ledger, nil
}

// DeleteLedger removes a ledger with everything in it. The change log is
// purged only when the ledger held no templates or entries.
func (s *DefaultService) DeleteLedger(ctx context.Context, call *procedure.Call, _ models.LedgerRef) (*models.DeleteLedgerResponse, error) {
	purged, err := s.repo.DeleteLedger(ctx, call.LedgerID)
	if err != nil {
		return nil, notFoundOr(err, "ledger")
	}

	s.logger.Info("ledger deleted",
		"ledger", call.LedgerID, "user", call.UserID(), "purgedChanges", purged)

	return &models.DeleteLedgerResponse{
		LedgerID:      call.LedgerID,
		PurgedChanges: purged,
	}, nil
}

// ShareLedger grants, changes or revokes another user's access to a ledger
func (s *DefaultService) ShareLedger(ctx context.Context, call *procedure.Call, req models.ShareLedgerRequest) (*models.ShareLedgerResponse, error) {
	target, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}

	if target.ID == call.UserID() {
		return nil, apperr.BadRequest("cannot change your own access")
	}

	resp := &models.ShareLedgerResponse{
		LedgerID: call.LedgerID,
		UserID:   target.ID,
		Email:    target.Email,
		Level:    req.Level,
	}

	if req.Level == nil {
		if err := s.repo.RemoveLedgerAccess(ctx, call.LedgerID, target.ID); err != nil {
			return nil, fmt.Errorf("error removing ledger access: %w", err)
		}
		resp.Message = "access removed"
		return resp, nil
	}

	access := &models.LedgerAccess{
		LedgerID: call.LedgerID,
		UserID:   target.ID,
		Level:    *req.Level,
	}
	if err := s.repo.SetLedgerAccess(ctx, access); err != nil {
		return nil, notFoundOr(err, "ledger")
	}

	resp.Message = fmt.Sprintf("access set to %s", req.Level.Label())
	return resp, nil
}
