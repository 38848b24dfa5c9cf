package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rongwang/tally-server/internal/apperr"
)

// Syncer keeps a Cache in step with one ledger on the server
type Syncer struct {
	client   *Client
	ledgerID string
	cache    *Cache
	logger   *slog.Logger
}

// NewSyncer creates a syncer for ledgerID with an empty cache
func NewSyncer(client *Client, ledgerID string, logger *slog.Logger) *Syncer {
	return &Syncer{
		client:   client,
		ledgerID: ledgerID,
		cache:    NewCache(),
		logger:   logger,
	}
}

// Cache returns the local copy
func (s *Syncer) Cache() *Cache {
	return s.cache
}

// Bootstrap loads the full template and entry lists. The cursor is read
// before the lists, so a write landing in between is pulled again rather
// than missed.
func (s *Syncer) Bootstrap(ctx context.Context) error {
	head, err := s.client.UpdatesSince(ctx, s.ledgerID, s.cache.Cursor())
	if err != nil {
		return fmt.Errorf("error reading change log: %w", err)
	}

	templates, err := s.client.Templates(ctx, s.ledgerID)
	if err != nil {
		return fmt.Errorf("error loading templates: %w", err)
	}
	entries, err := s.client.Entries(ctx, s.ledgerID)
	if err != nil {
		return fmt.Errorf("error loading entries: %w", err)
	}

	s.cache.Reset(templates, entries, head.LatestTimestamp)
	s.logger.Debug("cache bootstrapped",
		"ledger", s.ledgerID, "templates", len(templates), "entries", len(entries))
	return nil
}

// Pull applies every change newer than the cursor and returns how many
// records were applied
func (s *Syncer) Pull(ctx context.Context) (int, error) {
	resp, err := s.client.UpdatesSince(ctx, s.ledgerID, s.cache.Cursor())
	if err != nil {
		return 0, err
	}

	s.cache.Apply(resp.Changes, resp.LatestTimestamp)
	if len(resp.Changes) > 0 {
		s.logger.Debug("pulled changes", "ledger", s.ledgerID, "count", len(resp.Changes))
	}
	return len(resp.Changes), nil
}

// Run pulls every interval until ctx ends. Pulls that still fail after
// retrying are logged and tried again on the next tick; a terminal failure,
// such as lost access, stops the loop.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Pull(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !apperr.Retryable(apperr.CodeOf(err)) {
				return err
			}
			s.logger.Warn("pull failed", "ledger", s.ledgerID, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
