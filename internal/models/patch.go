package models

import (
	"time"

	"github.com/oapi-codegen/nullable"
	"github.com/shopspring/decimal"
)

// Patches carry partial updates. A nil field leaves the stored value alone,
// so concurrent updates to different fields of one row both survive. Color
// and notes are nullable: unspecified keeps them, null clears them.

type LedgerPatch struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
}

type TemplatePatch struct {
	Title *string
	Value *decimal.Decimal
	Unit  *string
	Group *string
	Color nullable.Nullable[string]
	Notes nullable.Nullable[string]
}

type EntryPatch struct {
	Title      *string
	Unit       *string
	Group      *string
	Color      nullable.Nullable[string]
	Notes      nullable.Nullable[string]
	Multiplier *decimal.Decimal
	Timestamp  *time.Time
}

// Patch returns the ledger fields the request changes
func (r UpdateLedgerRequest) Patch() LedgerPatch {
	return LedgerPatch{Name: r.Name, StartDate: r.StartDate, EndDate: r.EndDate}
}

// Patch returns the template fields the request changes
func (r UpdateTemplateRequest) Patch() TemplatePatch {
	return TemplatePatch{
		Title: r.Title,
		Value: r.Value,
		Unit:  r.Unit,
		Group: r.Group,
		Color: r.Color,
		Notes: r.Notes,
	}
}

// Patch returns the entry fields the request changes
func (r UpdateEntryRequest) Patch() EntryPatch {
	return EntryPatch{
		Title:      r.Title,
		Unit:       r.Unit,
		Group:      r.Group,
		Color:      r.Color,
		Notes:      r.Notes,
		Multiplier: r.Multiplier,
		Timestamp:  r.Timestamp,
	}
}

// Apply copies the set fields onto l
func (p LedgerPatch) Apply(l *Ledger) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.StartDate != nil {
		l.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		l.EndDate = *p.EndDate
	}
}

// Apply copies the set fields onto t
func (p TemplatePatch) Apply(t *Template) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	if p.Unit != nil {
		t.Unit = *p.Unit
	}
	if p.Group != nil {
		t.Group = *p.Group
	}
	if p.Color.IsSpecified() {
		t.Color = TextOrNil(p.Color)
	}
	if p.Notes.IsSpecified() {
		t.Notes = TextOrNil(p.Notes)
	}
}

// Apply copies the set fields onto e and recomputes its value when the
// multiplier changes.
func (p EntryPatch) Apply(e *Entry) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Unit != nil {
		e.Unit = *p.Unit
	}
	if p.Group != nil {
		e.Group = *p.Group
	}
	if p.Color.IsSpecified() {
		e.Color = TextOrNil(p.Color)
	}
	if p.Notes.IsSpecified() {
		e.Notes = TextOrNil(p.Notes)
	}
	if p.Timestamp != nil {
		e.Timestamp = *p.Timestamp
	}
	if p.Multiplier != nil {
		e.Multiplier = *p.Multiplier
		e.Recompute()
	}
}

// TextOrNil returns the value of a specified field, or nil when it is null
// or unspecified.
func TextOrNil(n nullable.Nullable[string]) *string {
	if !n.IsSpecified() || n.IsNull() {
		return nil
	}
	v := n.MustGet()
	return &v
}
