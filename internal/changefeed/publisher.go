// Package changefeed publishes committed change records to downstream
// consumers. Publication happens after the write transaction commits and is
// best effort: the change log in the database stays the source of truth.
package changefeed

import (
	"context"

	"github.com/rongwang/tally-server/internal/models"
)

// Publisher delivers committed change records
type Publisher interface {
	Publish(ctx context.Context, change models.Change) error
	Close() error
}

// Nop drops every change. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, change models.Change) error { return nil }

func (Nop) Close() error { return nil }
