package models

import (
	"time"

	"github.com/rongwang/tally-server/internal/capability"
	"github.com/shopspring/decimal"
)

// User represents an identity known to the server
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	ImageURL  string    `db:"image_url" json:"imageUrl"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Ledger is the root aggregate: a named, date-bounded tracking space
type Ledger struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// LedgerAccess grants a user a level on a ledger. At most one per (ledger, user).
type LedgerAccess struct {
	LedgerID  string           `db:"ledger_id" json:"ledgerId"`
	UserID    string           `db:"user_id" json:"userId"`
	Level     capability.Level `db:"level" json:"level"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// LedgerShare is an access grant joined with the grantee's profile
type LedgerShare struct {
	UserID string           `db:"user_id" json:"userId"`
	Email  string           `db:"email" json:"email"`
	Name   string           `db:"name" json:"name"`
	Level  capability.Level `db:"level" json:"level"`
}

// LedgerSummary is a ledger as listed for one of its members
type LedgerSummary struct {
	Ledger
	Level  capability.Level `json:"level"`
	Access []LedgerShare    `json:"access"`
}

// Template is a reusable activity definition
type Template struct {
	ID        string          `db:"id" json:"id"`
	LedgerID  string          `db:"ledger_id" json:"ledgerId"`
	Title     string          `db:"title" json:"title"`
	Value     decimal.Decimal `db:"value" json:"value"`
	Unit      string          `db:"unit" json:"unit"`
	Group     string          `db:"group_name" json:"group"`
	Color     *string         `db:"color" json:"color"`
	Notes     *string         `db:"notes" json:"notes"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// Entry is a recorded activity. Value is BaseValue x Multiplier, fixed when
// the entry is written; later template edits never reach it.
type Entry struct {
	ID         string          `db:"id" json:"id"`
	LedgerID   string          `db:"ledger_id" json:"ledgerId"`
	TemplateID *string         `db:"template_id" json:"templateId"`
	Title      string          `db:"title" json:"title"`
	BaseValue  decimal.Decimal `db:"base_value" json:"baseValue"`
	Value      decimal.Decimal `db:"value" json:"value"`
	Unit       string          `db:"unit" json:"unit"`
	Group      string          `db:"group_name" json:"group"`
	Color      *string         `db:"color" json:"color"`
	Notes      *string         `db:"notes" json:"notes"`
	Multiplier decimal.Decimal `db:"multiplier" json:"multiplier"`
	Author     string          `db:"author" json:"author"`
	Timestamp  time.Time       `db:"timestamp" json:"timestamp"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

// Recompute sets Value from BaseValue and Multiplier
func (e *Entry) Recompute() {
	e.Value = e.BaseValue.Mul(e.Multiplier)
}

// EntityKind names the kind of entity a change refers to
type EntityKind string

const (
	KindTemplate EntityKind = "template"
	KindEntry    EntityKind = "entry"
)

// ChangeAction is the mutation a change record describes
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Change is one immutable record of the ledger's change log
type Change struct {
	ID         string       `db:"id" json:"id"`
	LedgerID   string       `db:"ledger_id" json:"ledgerId"`
	Sequence   int64        `db:"sequence_number" json:"sequence"`
	EntityKind EntityKind   `db:"entity_kind" json:"entityKind"`
	EntityID   string       `db:"entity_id" json:"entityId"`
	Action     ChangeAction `db:"action" json:"action"`
	UserID     string       `db:"user_id" json:"userId"`
	Timestamp  time.Time    `db:"timestamp" json:"timestamp"`
}

// ChangeWithEntity is a change enriched with the current state of its entity.
// Stale is set when the entity no longer exists.
type ChangeWithEntity struct {
	Change
	Template *Template `json:"template,omitempty"`
	Entry    *Entry    `json:"entry,omitempty"`
	Stale    bool      `json:"stale,omitempty"`
}
