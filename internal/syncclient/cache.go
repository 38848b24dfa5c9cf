package syncclient

import (
	"sort"
	"sync"
	"time"

	"github.com/rongwang/tally-server/internal/models"
)

// Cache is the local copy of one ledger's templates and entries
type Cache struct {
	mu        sync.RWMutex
	templates map[string]models.Template
	entries   map[string]models.Entry
	cursor    time.Time
}

// NewCache creates an empty cache whose cursor is the Unix epoch
func NewCache() *Cache {
	return &Cache{
		templates: make(map[string]models.Template),
		entries:   make(map[string]models.Entry),
		cursor:    time.Unix(0, 0).UTC(),
	}
}

// Reset replaces the cache contents
func (c *Cache) Reset(templates []models.Template, entries []models.Entry, cursor time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = make(map[string]models.Template, len(templates))
	for _, t := range templates {
		c.templates[t.ID] = t
	}
	c.entries = make(map[string]models.Entry, len(entries))
	for _, e := range entries {
		c.entries[e.ID] = e
	}
	c.cursor = cursor
}

// Apply merges change records in log order and moves the cursor to latest.
// A record carrying its entity upserts it; a delete or a stale record
// removes it.
func (c *Cache) Apply(changes []models.ChangeWithEntity, latest time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, change := range changes {
		remove := change.Action == models.ActionDelete || change.Stale
		switch change.EntityKind {
		case models.KindTemplate:
			if remove || change.Template == nil {
				delete(c.templates, change.EntityID)
			} else {
				c.templates[change.EntityID] = *change.Template
			}
		case models.KindEntry:
			if remove || change.Entry == nil {
				delete(c.entries, change.EntityID)
			} else {
				c.entries[change.EntityID] = *change.Entry
			}
		}
	}
	if latest.After(c.cursor) {
		c.cursor = latest
	}
}

// Cursor returns the timestamp of the newest record applied
func (c *Cache) Cursor() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// Templates returns the cached templates in creation order
func (c *Cache) Templates() []models.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Entries returns the cached entries by timestamp
func (c *Cache) Entries() []models.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
