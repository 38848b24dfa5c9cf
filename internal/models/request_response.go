package models

import (
	"errors"
	"strings"
	"time"

	"github.com/oapi-codegen/nullable"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/shopspring/decimal"
)

// Validator is implemented by requests with checks beyond their binding tags.
type Validator interface {
	Validate() error
}

// LedgerRef names the ledger a request is scoped to
type LedgerRef struct {
	LedgerID string `json:"ledgerId" binding:"required,len=36"`
}

func (r LedgerRef) GetLedgerID() string { return r.LedgerID }

// EntityRef names a template or entry inside a ledger
type EntityRef struct {
	LedgerRef
	ID string `json:"id" binding:"required,len=36"`
}

// Identity requests
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	ImageURL string `json:"imageUrl"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Ledger requests
type ListLedgersRequest struct{}

type CreateLedgerRequest struct {
	Name      string    `json:"name" binding:"required"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

func (r CreateLedgerRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name must not be blank")
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return errors.New("startDate and endDate are required")
	}
	if r.EndDate.Before(r.StartDate) {
		return errors.New("endDate must not be before startDate")
	}
	return nil
}

type UpdateLedgerRequest struct {
	LedgerRef
	Name      *string    `json:"name"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

func (r UpdateLedgerRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return errors.New("name must not be blank")
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return errors.New("endDate must not be before startDate")
	}
	return nil
}

// ShareLedgerRequest sets the grantee's level, or removes their access when Level is null.
type ShareLedgerRequest struct {
	LedgerRef
	Email string            `json:"email" binding:"required,email"`
	Level *capability.Level `json:"level"`
}

func (r ShareLedgerRequest) Validate() error {
	if r.Level != nil && !r.Level.Valid() {
		return errors.New("level must be one of ADMIN, WRITE, RECORD, READ")
	}
	return nil
}

// Template requests
type CreateTemplateRequest struct {
	LedgerRef
	Title string          `json:"title" binding:"required"`
	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit"`
	Group string          `json:"group"`
	Color *string         `json:"color"`
	Notes *string         `json:"notes"`
}

// UpdateTemplateRequest changes the fields present in the body. Color and
// notes may be sent as null to clear them.
type UpdateTemplateRequest struct {
	EntityRef
	Title *string                   `json:"title,omitempty"`
	Value *decimal.Decimal          `json:"value,omitempty"`
	Unit  *string                   `json:"unit,omitempty"`
	Group *string                   `json:"group,omitempty"`
	Color nullable.Nullable[string] `json:"color,omitempty"`
	Notes nullable.Nullable[string] `json:"notes,omitempty"`
}

func (r UpdateTemplateRequest) Validate() error {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return errors.New("title must not be blank")
	}
	return nil
}

// Entry requests

// CreateEntryRequest records an entry from a template. Any multiplier is
// accepted, zero and negative included, but it must be sent.
type CreateEntryRequest struct {
	LedgerRef
	TemplateID string           `json:"templateId" binding:"required,len=36"`
	Multiplier *decimal.Decimal `json:"multiplier" binding:"required"`
	Timestamp  *time.Time       `json:"timestamp"`
	Notes      *string          `json:"notes"`
}

func (r CreateEntryRequest) Validate() error {
	if r.Multiplier == nil {
		return errors.New("multiplier is required")
	}
	return nil
}

// UpdateEntryRequest changes the fields present in the body. Color and
// notes may be sent as null to clear them.
type UpdateEntryRequest struct {
	EntityRef
	Title      *string                   `json:"title,omitempty"`
	Unit       *string                   `json:"unit,omitempty"`
	Group      *string                   `json:"group,omitempty"`
	Color      nullable.Nullable[string] `json:"color,omitempty"`
	Notes      nullable.Nullable[string] `json:"notes,omitempty"`
	Multiplier *decimal.Decimal          `json:"multiplier,omitempty"`
	Timestamp  *time.Time                `json:"timestamp,omitempty"`
}

func (r UpdateEntryRequest) Validate() error {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return errors.New("title must not be blank")
	}
	return nil
}

// Change log requests
type UpdatesSinceRequest struct {
	LedgerRef
	Since time.Time `json:"since"`
}

// Response models
type Response struct {
	Status string      `json:"status"`
	Result interface{} `json:"result"`
}

type AuthResponse struct {
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type SessionResponse struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	ImageURL string    `json:"imageUrl"`
	Expires  time.Time `json:"expires"`
}

type ShareLedgerResponse struct {
	LedgerID string            `json:"ledgerId"`
	UserID   string            `json:"userId"`
	Email    string            `json:"email"`
	Level    *capability.Level `json:"level"`
	Message  string            `json:"message"`
}

type DeleteLedgerResponse struct {
	LedgerID      string `json:"ledgerId"`
	PurgedChanges bool   `json:"purgedChanges"`
}

type DeleteResponse struct {
	ID string `json:"id"`
}

type UpdatesSinceResponse struct {
	LedgerID        string             `json:"ledgerId"`
	Changes         []ChangeWithEntity `json:"changes"`
	LatestTimestamp time.Time          `json:"latestTimestamp"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
