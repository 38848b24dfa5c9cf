package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rongwang/tally-server/internal/models"
)

// Template repository methods
func (r *PostgresRepository) CreateTemplate(ctx context.Context, template *models.Template, userID string) (*models.Change, error) {
	if template.ID == "" {
		template.ID = uuid.New().String()
	}

	now := r.now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now

	change := &models.Change{
		LedgerID:   template.LedgerID,
		EntityKind: models.KindTemplate,
		EntityID:   template.ID,
		Action:     models.ActionCreate,
		UserID:     userID,
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO templates (id, ledger_id, title, value, unit, group_name, color, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, template.ID, template.LedgerID, template.Title, template.Value, template.Unit,
			template.Group, template.Color, template.Notes, template.CreatedAt, template.UpdatedAt)
		if err != nil {
			return translate(err)
		}

		return r.appendChangeTx(ctx, tx, change)
	})
	if err != nil {
		return nil, err
	}

	return change, nil
}

func (r *PostgresRepository) GetTemplate(ctx context.Context, ledgerID, templateID string) (*models.Template, error) {
	var template models.Template
	err := r.db.GetContext(ctx, &template,
		`SELECT * FROM templates WHERE id = $1 AND ledger_id = $2`, templateID, ledgerID)
	if err != nil {
		return nil, translate(err)
	}

	return &template, nil
}

func (r *PostgresRepository) UpdateTemplate(
	ctx context.Context,
	ledgerID string,
	templateID string,
	patch models.TemplatePatch,
	userID string,
) (*models.Template, *models.Change, error) {
	query := `
		UPDATE templates SET
			title = COALESCE($3, title),
			value = COALESCE($4, value),
			unit = COALESCE($5, unit),
			group_name = COALESCE($6, group_name),
			color = CASE WHEN $7 THEN $8 ELSE color END,
			notes = CASE WHEN $9 THEN $10 ELSE notes END,
			updated_at = $11
		WHERE id = $1 AND ledger_id = $2
		RETURNING *
	`

	var template models.Template
	change := &models.Change{
		LedgerID:   ledgerID,
		EntityKind: models.KindTemplate,
		EntityID:   templateID,
		Action:     models.ActionUpdate,
		UserID:     userID,
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &template, query,
			templateID, ledgerID, patch.Title, patch.Value, patch.Unit,
			patch.Group, patch.Color.IsSpecified(), models.TextOrNil(patch.Color),
			patch.Notes.IsSpecified(), models.TextOrNil(patch.Notes), r.now().UTC())
		if err != nil {
			return translate(err)
		}

		return r.appendChangeTx(ctx, tx, change)
	})
	if err != nil {
		return nil, nil, err
	}

	return &template, change, nil
}

func (r *PostgresRepository) DeleteTemplate(ctx context.Context, ledgerID, templateID, userID string) (*models.Change, error) {
	change := &models.Change{
		LedgerID:   ledgerID,
		EntityKind: models.KindTemplate,
		EntityID:   templateID,
		Action:     models.ActionDelete,
		UserID:     userID,
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM templates WHERE id = $1 AND ledger_id = $2`, templateID, ledgerID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		return r.appendChangeTx(ctx, tx, change)
	})
	if err != nil {
		return nil, err
	}

	return change, nil
}

func (r *PostgresRepository) GetLedgerTemplates(ctx context.Context, ledgerID string) ([]models.Template, error) {
	templates := []models.Template{}
	err := r.db.SelectContext(ctx, &templates,
		`SELECT * FROM templates WHERE ledger_id = $1 ORDER BY created_at ASC, id ASC`, ledgerID)
	if err != nil {
		return nil, err
	}

	return templates, nil
}

// Entry repository methods
func (r *PostgresRepository) CreateEntry(ctx context.Context, entry *models.Entry) (*models.Change, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	now := r.now().UTC()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.UpdatedAt = now

	change := &models.Change{
		LedgerID:   entry.LedgerID,
		EntityKind: models.KindEntry,
		EntityID:   entry.ID,
		Action:     models.ActionCreate,
		UserID:     entry.Author,
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entries (id, ledger_id, template_id, title, base_value, value, unit, group_name,
				color, notes, multiplier, author, timestamp, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, entry.ID, entry.LedgerID, entry.TemplateID, entry.Title, entry.BaseValue, entry.Value,
			entry.Unit, entry.Group, entry.Color, entry.Notes, entry.Multiplier, entry.Author,
			entry.Timestamp, entry.UpdatedAt)
		if err != nil {
			return translate(err)
		}

		return r.appendChangeTx(ctx, tx, change)
	})
	if err != nil {
		return nil, err
	}

	return change, nil
}

// UpdateEntry applies the patch in a single statement. A new multiplier
// rescales the entry's own base value; the source template is not read.
func (r *PostgresRepository) UpdateEntry(
	ctx context.Context,
	ledgerID string,
	entryID string,
	patch models.EntryPatch,
	userID string,
) (*models.Entry, *models.Change, error) {
	query := `
		UPDATE entries SET
			title = COALESCE($3, title),
			unit = COALESCE($4, unit),
			group_name = COALESCE($5, group_name),
			color = CASE WHEN $6 THEN $7 ELSE color END,
			notes = CASE WHEN $8 THEN $9 ELSE notes END,
			multiplier = COALESCE($10, multiplier),
			value = base_value * COALESCE($10, multiplier),
			timestamp = COALESCE($11, timestamp),
			updated_at = $12
		WHERE id = $1 AND ledger_id = $2
		RETURNING *
	`

	var entry models.Entry
	change := &models.Change{
		LedgerID:   ledgerID,
		EntityKind: models.KindEntry,
		EntityID:   entryID,
		Action:     models.ActionUpdate,
		UserID:     userID,
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &entry, query,
			entryID, ledgerID, patch.Title, patch.Unit, patch.Group,
			patch.Color.IsSpecified(), models.TextOrNil(patch.Color),
			patch.Notes.IsSpecified(), models.TextOrNil(patch.Notes),
			patch.Multiplier, utcPtr(patch.Timestamp), r.now().UTC())
		if err != nil {
			return translate(err)
		}

		return r.appendChangeTx(ctx, tx, change)
	})
	if err != nil {
		return nil, nil, err
	}

	return &entry, change, nil
}

func (r *PostgresRepository) DeleteEntry(ctx context.Context, ledgerID, entryID, userID string) (*models.Change, error) {
	change := &models.Change{
		LedgerID:   ledgerID,
		EntityKind: models.KindEntry,
		EntityID:   entryID,
		Action:     models.ActionDelete,
		UserID:     userID,
	}

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM entries WHERE id = $1 AND ledger_id = $2`, entryID, ledgerID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		return r.appendChangeTx(ctx, tx, change)
	})
	if err != nil {
		return nil, err
	}

	return change, nil
}

func (r *PostgresRepository) GetLedgerEntries(ctx context.Context, ledgerID string) ([]models.Entry, error) {
	entries := []models.Entry{}
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM entries WHERE ledger_id = $1 ORDER BY timestamp ASC, id ASC`, ledgerID)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
