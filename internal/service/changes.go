package service

import (
	"context"
	"fmt"

	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
)

// GetUpdatesSince returns the ledger's change records newer than req.Since,
// oldest first. LatestTimestamp is the cursor for the next poll.
func (s *DefaultService) GetUpdatesSince(ctx context.Context, call *procedure.Call, req models.UpdatesSinceRequest) (*models.UpdatesSinceResponse, error) {
	changes, err := s.repo.GetChangesSince(ctx, call.LedgerID, req.Since)
	if err != nil {
		return nil, fmt.Errorf("error getting changes: %w", err)
	}

	if changes == nil {
		changes = []models.ChangeWithEntity{}
	}

	latest := req.Since
	if n := len(changes); n > 0 {
		latest = changes[n-1].Timestamp
	}

	return &models.UpdatesSinceResponse{
		LedgerID:        call.LedgerID,
		Changes:         changes,
		LatestTimestamp: latest,
	}, nil
}
