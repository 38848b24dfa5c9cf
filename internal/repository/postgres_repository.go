package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB, opts ...Option) *PostgresRepository {
	o := buildOptions(opts)
	return &PostgresRepository{
		db:  db,
		now: o.now,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// withTx runs fn in a transaction, rolling back when fn or the commit fails
func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// translate maps driver errors onto the repository sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return ErrDuplicate
		case "23503": // foreign_key_violation
			return ErrNotFound
		}
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, image_url, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.ImageURL, user.Password, user.CreatedAt, user.UpdatedAt)

	return translate(err)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return nil, translate(err)
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err)
	}

	return &user, nil
}

// Ledger repository methods

// CreateLedger inserts the ledger, grants its creator ADMIN and opens its
// change sequence, all in one transaction.
func (r *PostgresRepository) CreateLedger(ctx context.Context, ledger *models.Ledger) error {
	if ledger.ID == "" {
		ledger.ID = uuid.New().String()
	}

	now := r.now().UTC()
	ledger.CreatedAt = now
	ledger.UpdatedAt = now
	ledger.StartDate = ledger.StartDate.UTC()
	ledger.EndDate = ledger.EndDate.UTC()

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledgers (id, name, start_date, end_date, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ledger.ID, ledger.Name, ledger.StartDate, ledger.EndDate,
			ledger.CreatedBy, ledger.CreatedAt, ledger.UpdatedAt)
		if err != nil {
			return translate(err)
		}

		err = r.setLedgerAccessTx(ctx, tx, &models.LedgerAccess{
			LedgerID:  ledger.ID,
			UserID:    ledger.CreatedBy,
			Level:     capability.LevelAdmin,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_sequences (ledger_id, current_sequence, last_timestamp)
			VALUES ($1, 0, $2)
		`, ledger.ID, time.Unix(0, 0).UTC())
		return translate(err)
	})
}

func (r *PostgresRepository) GetLedger(ctx context.Context, ledgerID string) (*models.Ledger, error) {
	var ledger models.Ledger
	err := r.db.GetContext(ctx, &ledger, `SELECT * FROM ledgers WHERE id = $1`, ledgerID)
	if err != nil {
		return nil, translate(err)
	}

	return &ledger, nil
}

func (r *PostgresRepository) UpdateLedger(ctx context.Context, ledgerID string, patch models.LedgerPatch) (*models.Ledger, error) {
	query := `
		UPDATE ledgers SET
			name = COALESCE($2, name),
			start_date = COALESCE($3, start_date),
			end_date = COALESCE($4, end_date),
			updated_at = $5
		WHERE id = $1
		RETURNING *
	`

	var ledger models.Ledger
	err := r.db.GetContext(ctx, &ledger, query,
		ledgerID, patch.Name, utcPtr(patch.StartDate), utcPtr(patch.EndDate), r.now().UTC())
	if err != nil {
		return nil, translate(err)
	}

	return &ledger, nil
}

// DeleteLedger removes the ledger; templates, entries, access rows and the
// sequence row cascade. The change log is purged only when the ledger held
// no templates and no entries.
func (r *PostgresRepository) DeleteLedger(ctx context.Context, ledgerID string) (bool, error) {
	var purged bool

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		// Lock the ledger row so no template or entry can be added until commit
		var id string
		err := tx.GetContext(ctx, &id, `SELECT id FROM ledgers WHERE id = $1 FOR UPDATE`, ledgerID)
		if err != nil {
			return translate(err)
		}

		var hasContent bool
		err = tx.GetContext(ctx, &hasContent, `
			SELECT EXISTS(SELECT 1 FROM templates WHERE ledger_id = $1)
				OR EXISTS(SELECT 1 FROM entries WHERE ledger_id = $1)
		`, ledgerID)
		if err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM ledgers WHERE id = $1`, ledgerID); err != nil {
			return err
		}

		if hasContent {
			return nil
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM ledger_changes WHERE ledger_id = $1`, ledgerID); err != nil {
			return err
		}
		purged = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return purged, nil
}

func (r *PostgresRepository) GetUserLedgers(ctx context.Context, userID string) ([]models.LedgerSummary, error) {
	query := `
		SELECT l.*, a.level FROM ledgers l
		JOIN ledger_access a ON l.id = a.ledger_id
		WHERE a.user_id = $1
		ORDER BY l.created_at ASC, l.id ASC
	`

	var rows []struct {
		models.Ledger
		Level capability.Level `db:"level"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	ledgers := make([]models.LedgerSummary, 0, len(rows))
	if len(rows) == 0 {
		return ledgers, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	shareQuery, args, err := sqlx.In(`
		SELECT a.ledger_id, a.user_id, u.email, u.name, a.level
		FROM ledger_access a
		JOIN users u ON u.id = a.user_id
		WHERE a.ledger_id IN (?)
		ORDER BY a.created_at ASC
	`, ids)
	if err != nil {
		return nil, err
	}

	var shares []struct {
		LedgerID string `db:"ledger_id"`
		models.LedgerShare
	}
	if err := r.db.SelectContext(ctx, &shares, r.db.Rebind(shareQuery), args...); err != nil {
		return nil, err
	}

	byLedger := make(map[string][]models.LedgerShare, len(rows))
	for _, share := range shares {
		byLedger[share.LedgerID] = append(byLedger[share.LedgerID], share.LedgerShare)
	}

	for _, row := range rows {
		access := byLedger[row.ID]
		if access == nil {
			access = []models.LedgerShare{}
		}
		ledgers = append(ledgers, models.LedgerSummary{
			Ledger: row.Ledger,
			Level:  row.Level,
			Access: access,
		})
	}

	return ledgers, nil
}

// Ledger sharing repository methods

// setLedgerAccessTx upserts an access row within an existing transaction
func (r *PostgresRepository) setLedgerAccessTx(ctx context.Context, tx *sqlx.Tx, access *models.LedgerAccess) error {
	if access.CreatedAt.IsZero() {
		access.CreatedAt = r.now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_access (ledger_id, user_id, level, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ledger_id, user_id) DO UPDATE SET level = EXCLUDED.level
	`, access.LedgerID, access.UserID, access.Level, access.CreatedAt)

	return translate(err)
}

func (r *PostgresRepository) SetLedgerAccess(ctx context.Context, access *models.LedgerAccess) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return r.setLedgerAccessTx(ctx, tx, access)
	})
}

func (r *PostgresRepository) RemoveLedgerAccess(ctx context.Context, ledgerID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_access WHERE ledger_id = $1 AND user_id = $2`, ledgerID, userID)
	return err
}

func (r *PostgresRepository) GetLedgerShares(ctx context.Context, ledgerID string) ([]models.LedgerShare, error) {
	query := `
		SELECT a.user_id, u.email, u.name, a.level
		FROM ledger_access a
		JOIN users u ON u.id = a.user_id
		WHERE a.ledger_id = $1
		ORDER BY a.created_at ASC
	`

	shares := []models.LedgerShare{}
	if err := r.db.SelectContext(ctx, &shares, query, ledgerID); err != nil {
		return nil, err
	}

	return shares, nil
}

func (r *PostgresRepository) GetAccessLevel(ctx context.Context, ledgerID, userID string) (capability.Level, error) {
	query := `SELECT level FROM ledger_access WHERE ledger_id = $1 AND user_id = $2`

	var level capability.Level
	err := r.db.GetContext(ctx, &level, query, ledgerID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return capability.LevelNone, nil // No access
		}
		return capability.LevelNone, err
	}

	return level, nil
}

// Change log repository methods

// appendChangeTx assigns the next sequence number and timestamp for the
// ledger and inserts the change. The UPDATE locks the ledger's sequence row
// until commit, so concurrent writers to one ledger commit in sequence order
// and a poller never sees a later timestamp before an earlier one.
func (r *PostgresRepository) appendChangeTx(ctx context.Context, tx *sqlx.Tx, change *models.Change) error {
	var seq struct {
		Current int64     `db:"current_sequence"`
		Last    time.Time `db:"last_timestamp"`
	}
	err := tx.GetContext(ctx, &seq, `
		UPDATE ledger_sequences
		SET current_sequence = current_sequence + 1
		WHERE ledger_id = $1
		RETURNING current_sequence, last_timestamp
	`, change.LedgerID)
	if err != nil {
		return translate(err)
	}

	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	change.Sequence = seq.Current
	change.Timestamp = nextTimestamp(r.now(), seq.Last)

	_, err = tx.ExecContext(ctx,
		`UPDATE ledger_sequences SET last_timestamp = $2 WHERE ledger_id = $1`,
		change.LedgerID, change.Timestamp)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_changes (id, ledger_id, sequence_number, entity_kind, entity_id, action, user_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, change.ID, change.LedgerID, change.Sequence, change.EntityKind,
		change.EntityID, change.Action, change.UserID, change.Timestamp)

	return err
}

func (r *PostgresRepository) GetChangesSince(ctx context.Context, ledgerID string, since time.Time) ([]models.ChangeWithEntity, error) {
	query := `
		SELECT * FROM ledger_changes
		WHERE ledger_id = $1 AND timestamp > $2
		ORDER BY timestamp ASC, sequence_number ASC
	`

	var changes []models.Change
	if err := r.db.SelectContext(ctx, &changes, query, ledgerID, since.UTC()); err != nil {
		return nil, err
	}

	var templateIDs, entryIDs []string
	for _, c := range changes {
		switch c.EntityKind {
		case models.KindTemplate:
			templateIDs = append(templateIDs, c.EntityID)
		case models.KindEntry:
			entryIDs = append(entryIDs, c.EntityID)
		}
	}

	templates := make(map[string]*models.Template)
	if len(templateIDs) > 0 {
		var rows []models.Template
		if err := r.selectIn(ctx, &rows, `SELECT * FROM templates WHERE ledger_id = ? AND id IN (?)`, ledgerID, templateIDs); err != nil {
			return nil, err
		}
		for i := range rows {
			templates[rows[i].ID] = &rows[i]
		}
	}

	entries := make(map[string]*models.Entry)
	if len(entryIDs) > 0 {
		var rows []models.Entry
		if err := r.selectIn(ctx, &rows, `SELECT * FROM entries WHERE ledger_id = ? AND id IN (?)`, ledgerID, entryIDs); err != nil {
			return nil, err
		}
		for i := range rows {
			entries[rows[i].ID] = &rows[i]
		}
	}

	return enrichChanges(changes, templates, entries), nil
}

func (r *PostgresRepository) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return r.db.SelectContext(ctx, dest, r.db.Rebind(query), args...)
}

// enrichChanges joins each change with the current state of its entity.
// Delete records carry no entity; create and update records whose entity is
// gone are marked stale.
func enrichChanges(changes []models.Change, templates map[string]*models.Template, entries map[string]*models.Entry) []models.ChangeWithEntity {
	out := make([]models.ChangeWithEntity, 0, len(changes))
	for _, c := range changes {
		enriched := models.ChangeWithEntity{Change: c}
		if c.Action != models.ActionDelete {
			switch c.EntityKind {
			case models.KindTemplate:
				enriched.Template = templates[c.EntityID]
				enriched.Stale = enriched.Template == nil
			case models.KindEntry:
				enriched.Entry = entries[c.EntityID]
				enriched.Stale = enriched.Entry == nil
			}
		}
		out = append(out, enriched)
	}
	return out
}
