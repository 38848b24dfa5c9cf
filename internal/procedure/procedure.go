// Package procedure composes the guards every RPC operation runs through:
// input validation, then authentication, then ledger scope, then level, then
// the domain handler. Guard sets are built once per procedure at startup.
package procedure

import (
	"context"
	"log/slog"
	"time"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/capability"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/rongwang/tally-server/internal/repository"
)

// Call is the context guards enrich as a request moves down the pipeline.
// Handlers may rely on Session being set; LedgerID and Level are set for
// ledger-scoped procedures.
type Call struct {
	Procedure string
	Session   *auth.Session
	LedgerID  string
	Level     capability.Level
}

// UserID returns the caller's user id
func (c *Call) UserID() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.UserID
}

// LedgerInput is implemented by inputs of ledger-scoped procedures
type LedgerInput interface {
	GetLedgerID() string
}

// Guard inspects a call and its input, failing it or enriching the call
type Guard[In any] func(ctx context.Context, call *Call, in In) error

// Handler executes a procedure once every guard has passed
type Handler[In, Out any] func(ctx context.Context, call *Call, in In) (Out, error)

// Procedure is one RPC operation with its fixed guard chain
type Procedure[In, Out any] struct {
	name    string
	guards  []Guard[In]
	handler Handler[In, Out]
	logger  *slog.Logger
}

// Builder holds the collaborators guards are built from
type Builder struct {
	access repository.AccessStore
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a builder resolving ledger access through access
func NewBuilder(access repository.AccessStore, logger *slog.Logger) *Builder {
	return &Builder{
		access: access,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to check session expiry
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Authed builds a procedure that only requires a caller
func Authed[In, Out any](b *Builder, name string, h func(ctx context.Context, call *Call, in In) (Out, error)) *Procedure[In, Out] {
	return &Procedure[In, Out]{
		name:    name,
		guards:  []Guard[In]{Authenticated[In](b.now)},
		handler: h,
		logger:  b.logger,
	}
}

// Scoped builds a ledger-scoped procedure demanding req of the caller
func Scoped[In LedgerInput, Out any](
	b *Builder,
	name string,
	req capability.Requirement,
	h func(ctx context.Context, call *Call, in In) (Out, error),
) *Procedure[In, Out] {
	return &Procedure[In, Out]{
		name: name,
		guards: []Guard[In]{
			Authenticated[In](b.now),
			LedgerScope[In](b.access),
			RequireLevel[In](req),
		},
		handler: h,
		logger:  b.logger,
	}
}

// Name returns the RPC name of the procedure
func (p *Procedure[In, Out]) Name() string {
	return p.name
}

// Call runs the input through validation, every guard in order and then the
// handler. The first failure ends the request; nothing is retried.
func (p *Procedure[In, Out]) Call(ctx context.Context, session *auth.Session, in In) (Out, error) {
	var zero Out
	call := &Call{Procedure: p.name, Session: session}

	if err := validate(in); err != nil {
		return zero, p.fail(call, err)
	}

	for _, guard := range p.guards {
		if err := guard(ctx, call, in); err != nil {
			return zero, p.fail(call, err)
		}
	}

	out, err := p.handler(ctx, call, in)
	if err != nil {
		return zero, p.fail(call, err)
	}

	p.logger.Debug("procedure succeeded",
		"procedure", p.name, "user", call.UserID(), "ledger", call.LedgerID)
	return out, nil
}

func (p *Procedure[In, Out]) fail(call *Call, err error) error {
	tagged := apperr.From(err)
	if tagged.Code == apperr.CodeInternal {
		p.logger.Error("procedure failed",
			"procedure", p.name, "user", call.UserID(), "ledger", call.LedgerID, "error", err)
	} else {
		p.logger.Debug("procedure rejected",
			"procedure", p.name, "user", call.UserID(), "ledger", call.LedgerID, "code", tagged.Code)
	}
	return tagged
}

func validate(in interface{}) error {
	v, ok := in.(models.Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return apperr.BadRequest("%s", err.Error())
	}
	return nil
}
