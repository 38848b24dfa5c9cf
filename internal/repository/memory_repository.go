package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
)

type accessKey struct {
	ledgerID string
	userID   string
}

type ledgerSequence struct {
	current int64
	last    time.Time
}

// MemoryRepository is an in-memory implementation of Repository.
// A single mutex stands in for the database transaction: every method runs
// to completion under it, so an entity write and its change record are
// observed together or not at all.
type MemoryRepository struct {
	mu        sync.Mutex
	now       func() time.Time
	users     map[string]models.User
	ledgers   map[string]models.Ledger
	access    map[accessKey]models.LedgerAccess
	templates map[string]models.Template
	entries   map[string]models.Entry
	sequences map[string]*ledgerSequence
	changes   []models.Change
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository(opts ...Option) *MemoryRepository {
	o := buildOptions(opts)
	return &MemoryRepository{
		now:       o.now,
		users:     make(map[string]models.User),
		ledgers:   make(map[string]models.Ledger),
		access:    make(map[accessKey]models.LedgerAccess),
		templates: make(map[string]models.Template),
		entries:   make(map[string]models.Entry),
		sequences: make(map[string]*ledgerSequence),
	}
}

// Compile-time checks: both stores implement Repository
var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

// User repository methods
func (m *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := m.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	m.users[user.ID] = *user
	return nil
}

func (m *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

// Ledger repository methods
func (m *MemoryRepository) CreateLedger(ctx context.Context, ledger *models.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[ledger.CreatedBy]; !ok {
		return ErrNotFound
	}
	if ledger.ID == "" {
		ledger.ID = uuid.New().String()
	}
	if _, ok := m.ledgers[ledger.ID]; ok {
		return ErrDuplicate
	}

	now := m.now().UTC()
	ledger.CreatedAt = now
	ledger.UpdatedAt = now
	ledger.StartDate = ledger.StartDate.UTC()
	ledger.EndDate = ledger.EndDate.UTC()

	m.ledgers[ledger.ID] = *ledger
	m.access[accessKey{ledger.ID, ledger.CreatedBy}] = models.LedgerAccess{
		LedgerID:  ledger.ID,
		UserID:    ledger.CreatedBy,
		Level:     capability.LevelAdmin,
		CreatedAt: now,
	}
	m.sequences[ledger.ID] = &ledgerSequence{last: time.Unix(0, 0).UTC()}
	return nil
}

func (m *MemoryRepository) GetLedger(ctx context.Context, ledgerID string) (*models.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, ok := m.ledgers[ledgerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &ledger, nil
}

func (m *MemoryRepository) UpdateLedger(ctx context.Context, ledgerID string, patch models.LedgerPatch) (*models.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, ok := m.ledgers[ledgerID]
	if !ok {
		return nil, ErrNotFound
	}

	patch.Apply(&ledger)
	ledger.StartDate = ledger.StartDate.UTC()
	ledger.EndDate = ledger.EndDate.UTC()
	ledger.UpdatedAt = m.now().UTC()
	m.ledgers[ledgerID] = ledger
	return &ledger, nil
}

func (m *MemoryRepository) DeleteLedger(ctx context.Context, ledgerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledgers[ledgerID]; !ok {
		return false, ErrNotFound
	}

	hasContent := false
	for id, t := range m.templates {
		if t.LedgerID == ledgerID {
			hasContent = true
			delete(m.templates, id)
		}
	}
	for id, e := range m.entries {
		if e.LedgerID == ledgerID {
			hasContent = true
			delete(m.entries, id)
		}
	}
	for key := range m.access {
		if key.ledgerID == ledgerID {
			delete(m.access, key)
		}
	}
	delete(m.sequences, ledgerID)
	delete(m.ledgers, ledgerID)

	if hasContent {
		return false, nil
	}

	kept := m.changes[:0]
	for _, c := range m.changes {
		if c.LedgerID != ledgerID {
			kept = append(kept, c)
		}
	}
	m.changes = kept
	return true, nil
}

func (m *MemoryRepository) GetUserLedgers(ctx context.Context, userID string) ([]models.LedgerSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledgers := []models.LedgerSummary{}
	for key, access := range m.access {
		if key.userID != userID {
			continue
		}
		ledgers = append(ledgers, models.LedgerSummary{
			Ledger: m.ledgers[key.ledgerID],
			Level:  access.Level,
			Access: m.sharesLocked(key.ledgerID),
		})
	}

	sort.Slice(ledgers, func(i, j int) bool {
		if !ledgers[i].CreatedAt.Equal(ledgers[j].CreatedAt) {
			return ledgers[i].CreatedAt.Before(ledgers[j].CreatedAt)
		}
		return ledgers[i].ID < ledgers[j].ID
	})
	return ledgers, nil
}

// Ledger sharing repository methods
func (m *MemoryRepository) SetLedgerAccess(ctx context.Context, access *models.LedgerAccess) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledgers[access.LedgerID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.users[access.UserID]; !ok {
		return ErrNotFound
	}

	key := accessKey{access.LedgerID, access.UserID}
	if existing, ok := m.access[key]; ok {
		existing.Level = access.Level
		m.access[key] = existing
		return nil
	}

	if access.CreatedAt.IsZero() {
		access.CreatedAt = m.now().UTC()
	}
	m.access[key] = *access
	return nil
}

func (m *MemoryRepository) RemoveLedgerAccess(ctx context.Context, ledgerID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.access, accessKey{ledgerID, userID})
	return nil
}

func (m *MemoryRepository) GetLedgerShares(ctx context.Context, ledgerID string) ([]models.LedgerShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sharesLocked(ledgerID), nil
}

func (m *MemoryRepository) sharesLocked(ledgerID string) []models.LedgerShare {
	var grants []models.LedgerAccess
	for key, access := range m.access {
		if key.ledgerID == ledgerID {
			grants = append(grants, access)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].UserID < grants[j].UserID
	})

	shares := make([]models.LedgerShare, 0, len(grants))
	for _, g := range grants {
		user := m.users[g.UserID]
		shares = append(shares, models.LedgerShare{
			UserID: g.UserID,
			Email:  user.Email,
			Name:   user.Name,
			Level:  g.Level,
		})
	}
	return shares
}

func (m *MemoryRepository) GetAccessLevel(ctx context.Context, ledgerID, userID string) (capability.Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	access, ok := m.access[accessKey{ledgerID, userID}]
	if !ok {
		return capability.LevelNone, nil
	}
	return access.Level, nil
}

// Template repository methods
func (m *MemoryRepository) CreateTemplate(ctx context.Context, template *models.Template, userID string) (*models.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledgers[template.LedgerID]; !ok {
		return nil, ErrNotFound
	}
	if template.ID == "" {
		template.ID = uuid.New().String()
	}
	now := m.now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now

	m.templates[template.ID] = *template
	return m.appendChangeLocked(template.LedgerID, models.KindTemplate, template.ID, models.ActionCreate, userID), nil
}

func (m *MemoryRepository) GetTemplate(ctx context.Context, ledgerID, templateID string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	template, ok := m.templates[templateID]
	if !ok || template.LedgerID != ledgerID {
		return nil, ErrNotFound
	}
	return &template, nil
}

func (m *MemoryRepository) UpdateTemplate(
	ctx context.Context,
	ledgerID string,
	templateID string,
	patch models.TemplatePatch,
	userID string,
) (*models.Template, *models.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	template, ok := m.templates[templateID]
	if !ok || template.LedgerID != ledgerID {
		return nil, nil, ErrNotFound
	}

	patch.Apply(&template)
	template.UpdatedAt = m.now().UTC()
	m.templates[templateID] = template

	change := m.appendChangeLocked(ledgerID, models.KindTemplate, templateID, models.ActionUpdate, userID)
	return &template, change, nil
}

func (m *MemoryRepository) DeleteTemplate(ctx context.Context, ledgerID, templateID, userID string) (*models.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	template, ok := m.templates[templateID]
	if !ok || template.LedgerID != ledgerID {
		return nil, ErrNotFound
	}

	delete(m.templates, templateID)

	return m.appendChangeLocked(ledgerID, models.KindTemplate, templateID, models.ActionDelete, userID), nil
}

func (m *MemoryRepository) GetLedgerTemplates(ctx context.Context, ledgerID string) ([]models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	templates := []models.Template{}
	for _, t := range m.templates {
		if t.LedgerID == ledgerID {
			templates = append(templates, t)
		}
	}
	sort.Slice(templates, func(i, j int) bool {
		if !templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].CreatedAt.Before(templates[j].CreatedAt)
		}
		return templates[i].ID < templates[j].ID
	})
	return templates, nil
}

// Entry repository methods
func (m *MemoryRepository) CreateEntry(ctx context.Context, entry *models.Entry) (*models.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledgers[entry.LedgerID]; !ok {
		return nil, ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := m.now().UTC()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.UpdatedAt = now

	m.entries[entry.ID] = *entry
	return m.appendChangeLocked(entry.LedgerID, models.KindEntry, entry.ID, models.ActionCreate, entry.Author), nil
}

func (m *MemoryRepository) UpdateEntry(
	ctx context.Context,
	ledgerID string,
	entryID string,
	patch models.EntryPatch,
	userID string,
) (*models.Entry, *models.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[entryID]
	if !ok || entry.LedgerID != ledgerID {
		return nil, nil, ErrNotFound
	}

	patch.Apply(&entry)
	entry.Timestamp = entry.Timestamp.UTC()
	entry.UpdatedAt = m.now().UTC()
	m.entries[entryID] = entry

	change := m.appendChangeLocked(ledgerID, models.KindEntry, entryID, models.ActionUpdate, userID)
	return &entry, change, nil
}

func (m *MemoryRepository) DeleteEntry(ctx context.Context, ledgerID, entryID, userID string) (*models.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[entryID]
	if !ok || entry.LedgerID != ledgerID {
		return nil, ErrNotFound
	}

	delete(m.entries, entryID)
	return m.appendChangeLocked(ledgerID, models.KindEntry, entryID, models.ActionDelete, userID), nil
}

func (m *MemoryRepository) GetLedgerEntries(ctx context.Context, ledgerID string) ([]models.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := []models.Entry{}
	for _, e := range m.entries {
		if e.LedgerID == ledgerID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Change log repository methods

// appendChangeLocked must be called with m.mu held. The ledger is known to
// exist, so its sequence is present.
func (m *MemoryRepository) appendChangeLocked(
	ledgerID string,
	kind models.EntityKind,
	entityID string,
	action models.ChangeAction,
	userID string,
) *models.Change {
	seq := m.sequences[ledgerID]
	seq.current++
	seq.last = nextTimestamp(m.now(), seq.last)

	change := models.Change{
		ID:         uuid.New().String(),
		LedgerID:   ledgerID,
		Sequence:   seq.current,
		EntityKind: kind,
		EntityID:   entityID,
		Action:     action,
		UserID:     userID,
		Timestamp:  seq.last,
	}
	m.changes = append(m.changes, change)
	return &change
}

func (m *MemoryRepository) GetChangesSince(ctx context.Context, ledgerID string, since time.Time) ([]models.ChangeWithEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changes []models.Change
	for _, c := range m.changes {
		if c.LedgerID == ledgerID && c.Timestamp.After(since) {
			changes = append(changes, c)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		if !changes[i].Timestamp.Equal(changes[j].Timestamp) {
			return changes[i].Timestamp.Before(changes[j].Timestamp)
		}
		return changes[i].Sequence < changes[j].Sequence
	})

	templates := make(map[string]*models.Template)
	entries := make(map[string]*models.Entry)
	for _, c := range changes {
		switch c.EntityKind {
		case models.KindTemplate:
			if t, ok := m.templates[c.EntityID]; ok && t.LedgerID == ledgerID {
				templates[c.EntityID] = &t
			}
		case models.KindEntry:
			if e, ok := m.entries[c.EntityID]; ok && e.LedgerID == ledgerID {
				entries[c.EntityID] = &e
			}
		}
	}

	return enrichChanges(changes, templates, entries), nil
}

// ChangeCount returns the number of change records held for a ledger,
// including orphaned ones left behind by ledger deletion.
func (m *MemoryRepository) ChangeCount(ledgerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.changes {
		if c.LedgerID == ledgerID {
			n++
		}
	}
	return n
}
