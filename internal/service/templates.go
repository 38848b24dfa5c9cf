package service

import (
	"context"
	"fmt"

	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/procedure"
)

// CreateTemplate adds a reusable activity definition to the ledger
func (s *DefaultService) CreateTemplate(ctx context.Context, call *procedure.Call, req models.CreateTemplateRequest) (*models.Template, error) {
	template := &models.Template{
		LedgerID: call.LedgerID,
		Title:    req.Title,
		Value:    req.Value,
		Unit:     req.Unit,
		Group:    req.Group,
		Color:    req.Color,
		Notes:    req.Notes,
	}

	change, err := s.repo.CreateTemplate(ctx, template, call.UserID())
	if err != nil {
		return nil, notFoundOr(err, "ledger")
	}

	s.publish(ctx, change)
	return template, nil
}

// GetTemplates lists the ledger's templates in creation order
func (s *DefaultService) GetTemplates(ctx context.Context, call *procedure.Call, _ models.LedgerRef) ([]models.Template, error) {
	templates, err := s.repo.GetLedgerTemplates(ctx, call.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("error getting templates: %w", err)
	}
	return templates, nil
}

// UpdateTemplate applies a partial update. Entries already recorded from the
// template keep their values.
func (s *DefaultService) UpdateTemplate(ctx context.Context, call *procedure.Call, req models.UpdateTemplateRequest) (*models.Template, error) {
	template, change, err := s.repo.UpdateTemplate(ctx, call.LedgerID, req.ID, req.Patch(), call.UserID())
	if err != nil {
		return nil, notFoundOr(err, "template")
	}

	s.publish(ctx, change)
	return template, nil
}

// DeleteTemplate removes a template. Entries recorded from it are untouched
// and keep its id.
func (s *DefaultService) DeleteTemplate(ctx context.Context, call *procedure.Call, req models.EntityRef) (*models.DeleteResponse, error) {
	change, err := s.repo.DeleteTemplate(ctx, call.LedgerID, req.ID, call.UserID())
	if err != nil {
		return nil, notFoundOr(err, "template")
	}

	s.publish(ctx, change)
	return &models.DeleteResponse{ID: req.ID}, nil
}
