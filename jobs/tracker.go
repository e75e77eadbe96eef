// Package jobs tracks job applications through a single create-or-edit form.
package jobs

import (
	"errors"
	"strings"
	"sync"

	"recordbook/record"

	"go.uber.org/zap"
)

// StoreName is the persistence key of the application store.
const StoreName = "applications"

// Options configures a Tracker.
type Options struct {
	Persister record.Persister[JobApplication]
	Logger    *zap.Logger
}

// Tracker wraps the application store and remembers which record, if any,
// the form is currently editing. Newest applications are listed first.
type Tracker struct {
	mu        sync.Mutex
	store     *record.Store[JobApplication]
	editingID int64
	editing   bool
	logger    *zap.Logger
}

// NewTracker creates a tracker, loading existing applications from
// opts.Persister when set.
func NewTracker(opts Options) (*Tracker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := record.NewStore[JobApplication](StoreName, record.Options[JobApplication]{
		Kind:      "application",
		Order:     record.Prepend,
		Persister: opts.Persister,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Tracker{store: store, logger: logger}, nil
}

// Submit creates a new application, or updates the one being edited and
// leaves edit mode.
func (t *Tracker) Submit(f Fields) (JobApplication, error) {
	f = f.trimmed()
	if f.Company == "" || f.Role == "" {
		return JobApplication{}, record.Invalid("", "Company and Role are required")
	}
	status, err := ParseStatus(f.Status)
	if err != nil {
		return JobApplication{}, record.Invalid("Status", err.Error())
	}
	app := JobApplication{
		Company:  f.Company,
		Role:     f.Role,
		Location: f.Location,
		Status:   status,
		Date:     f.Date,
		Notes:    f.Notes,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.editing {
		created, err := t.store.Create(app)
		if err != nil {
			return JobApplication{}, err
		}
		t.logger.Debug("application added", zap.Int64("id", created.ID), zap.String("company", created.Company))
		return created, nil
	}

	id := t.editingID
	updated, err := t.store.Update(id, app)
	if errors.Is(err, record.ErrNotFound) {
		// Edited record was deleted underneath us.
		t.clearEdit()
		return JobApplication{}, err
	}
	if err != nil {
		return JobApplication{}, err
	}
	t.clearEdit()
	t.logger.Debug("application updated", zap.Int64("id", id))
	return updated, nil
}

// BeginEdit enters edit mode for id and returns its current values.
func (t *Tracker) BeginEdit(id int64) (Fields, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	app, ok := t.store.Find(id)
	if !ok {
		return Fields{}, record.NotFound("application", id)
	}
	t.editingID, t.editing = id, true
	return fieldsOf(app), nil
}

// CancelEdit leaves edit mode. It is safe to call when not editing.
func (t *Tracker) CancelEdit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearEdit()
}

// Editing reports the id being edited.
func (t *Tracker) Editing() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.editingID, t.editing
}

// Remove deletes id. Removing the record under edit also leaves edit mode.
func (t *Tracker) Remove(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.store.Delete(id)
	if t.editing && t.editingID == id && (err == nil || errors.Is(err, record.ErrNotFound)) {
		t.clearEdit()
	}
	if err != nil {
		return err
	}
	t.logger.Debug("application removed", zap.Int64("id", id))
	return nil
}

// Find returns the application with the given id.
func (t *Tracker) Find(id int64) (JobApplication, bool) {
	return t.store.Find(id)
}

// List returns all applications, newest first.
func (t *Tracker) List() []JobApplication {
	return t.store.List()
}

// Search matches query case-insensitively against company and role. An
// empty query returns everything.
func (t *Tracker) Search(query string) []JobApplication {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return t.store.List()
	}
	return t.store.Search(func(a JobApplication) bool {
		return strings.Contains(strings.ToLower(a.Company+" "+a.Role), q)
	})
}

// CountByStatus tallies applications per status.
func (t *Tracker) CountByStatus() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, a := range t.store.List() {
		counts[a.Status]++
	}
	return counts
}

func (t *Tracker) clearEdit() {
	t.editingID, t.editing = 0, false
}
