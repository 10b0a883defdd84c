package connection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Table tracks the controllers owned by an entry point, keyed by a random
// UUID. It replaces process-wide registries: whoever creates controllers
// inserts them here and removes them when done.
type Table struct {
	mu      sync.Mutex
	entries map[uuid.UUID]tableEntry
}

type tableEntry struct {
	ctrl  *Controller
	added time.Time
}

// TableEntry describes one tracked controller.
type TableEntry struct {
	ID    uuid.UUID
	URL   string
	State State
	Added time.Time
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[uuid.UUID]tableEntry),
	}
}

// Insert registers a controller and returns its key.
func (t *Table) Insert(c *Controller) uuid.UUID {
	id := uuid.New()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = tableEntry{ctrl: c, added: time.Now()}
	return id
}

// Get returns the controller stored under id.
func (t *Table) Get(id uuid.UUID) (*Controller, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e.ctrl, ok
}

// Lookup resolves a key given in string form, as typed by a user.
func (t *Table) Lookup(id string) (*Controller, bool) {
	key, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	return t.Get(key)
}

// Remove deregisters a controller. Safe to call on absent keys.
func (t *Table) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// List returns a snapshot of all entries, oldest first.
func (t *Table) List() []TableEntry {
	t.mu.Lock()
	out := make([]TableEntry, 0, len(t.entries))
	for id, e := range t.entries {
		out = append(out, TableEntry{ID: id, URL: e.ctrl.URL(), State: e.ctrl.State(), Added: e.added})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Added.Before(out[j].Added) })
	return out
}

// CloseAll closes and removes every tracked controller. Errors are joined.
func (t *Table) CloseAll(ctx context.Context) error {
	t.mu.Lock()
	ctrls := make([]*Controller, 0, len(t.entries))
	for id, e := range t.entries {
		ctrls = append(ctrls, e.ctrl)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range ctrls {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of tracked controllers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
