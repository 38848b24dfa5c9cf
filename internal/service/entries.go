package service

import (
	"context"
	"fmt"

	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
)

// CreateEntry records an activity from a template. The template's fields
// are copied, so the entry does not follow later template edits.
func (s *DefaultService) CreateEntry(ctx context.Context, call *procedure.Call, req models.CreateEntryRequest) (*models.Entry, error) {
	template, err := s.repo.GetTemplate(ctx, call.LedgerID, req.TemplateID)
	if err != nil {
		return nil, notFoundOr(err, "template")
	}

	templateID := template.ID
	entry := &models.Entry{
		LedgerID:   call.LedgerID,
		TemplateID: &templateID,
		Title:      template.Title,
		BaseValue:  template.Value,
		Unit:       template.Unit,
		Group:      template.Group,
		Color:      template.Color,
		Notes:      template.Notes,
		Multiplier: *req.Multiplier,
		Author:     call.UserID(),
	}
	if req.Notes != nil {
		entry.Notes = req.Notes
	}
	if req.Timestamp != nil {
		entry.Timestamp = req.Timestamp.UTC()
	}
	entry.Recompute()

	change, err := s.repo.CreateEntry(ctx, entry)
	if err != nil {
		return nil, notFoundOr(err, "ledger")
	}

	s.publish(ctx, change)
	return entry, nil
}

// GetEntries lists the ledger's entries by timestamp
func (s *DefaultService) GetEntries(ctx context.Context, call *procedure.Call, _ models.LedgerRef) ([]models.Entry, error) {
	entries, err := s.repo.GetLedgerEntries(ctx, call.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("error getting entries: %w", err)
	}
	return entries, nil
}

// UpdateEntry applies a partial update; a new multiplier rescales the
// entry's own base value.
func (s *DefaultService) UpdateEntry(ctx context.Context, call *procedure.Call, req models.UpdateEntryRequest) (*models.Entry, error) {
	entry, change, err := s.repo.UpdateEntry(ctx, call.LedgerID, req.ID, req.Patch(), call.UserID())
	if err != nil {
		return nil, notFoundOr(err, "entry")
	}

	s.publish(ctx, change)
	return entry, nil
}

// DeleteEntry removes an entry
func (s *DefaultService) DeleteEntry(ctx context.Context, call *procedure.Call, req models.EntityRef) (*models.DeleteResponse, error) {
	change, err := s.repo.DeleteEntry(ctx, call.LedgerID, req.ID, call.UserID())
	if err != nil {
		return nil, notFoundOr(err, "entry")
	}

	s.publish(ctx, change)
	return &models.DeleteResponse{ID: req.ID}, nil
}
