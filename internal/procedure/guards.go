package procedure

import (
	"context"
	"fmt"
	"time"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/repository"
)

// Authenticated fails calls without a live session
func Authenticated[In any](now func() time.Time) Guard[In] {
	return func(ctx context.Context, call *Call, in In) error {
		if call.Session == nil || call.Session.UserID == "" {
			return apperr.Unauthenticated("authentication required")
		}
		if call.Session.Expired(now()) {
			return apperr.Unauthenticated("session expired")
		}
		return nil
	}
}

// LedgerScope resolves the caller's level on the input's ledger. A caller
// with no access record is forbidden.
func LedgerScope[In LedgerInput](access repository.AccessStore) Guard[In] {
	return func(ctx context.Context, call *Call, in In) error {
		ledgerID := in.GetLedgerID()
		level, err := access.GetAccessLevel(ctx, ledgerID, call.UserID())
		if err != nil {
			return apperr.Internal(fmt.Errorf("error checking ledger access: %w", err))
		}
		if level == capability.LevelNone {
			return apperr.Forbidden("you don't have access to this ledger")
		}
		call.LedgerID = ledgerID
		call.Level = level
		return nil
	}
}

// RequireLevel fails calls whose resolved level does not satisfy req
func RequireLevel[In any](req capability.Requirement) Guard[In] {
	return func(ctx context.Context, call *Call, in In) error {
		if !req.Allows(call.Level) {
			return apperr.Forbidden("this operation requires %s access, you have %s", req, call.Level)
		}
		return nil
	}
}
