// Package record provides the generic, uniquely keyed record collection that
// the job tracker and the library ledger are built on, together with the
// error kinds and validation they share.
package record

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Keyed is implemented by record types stored in a Store. WithKey returns a
// copy of the record carrying id.
type Keyed[T any] interface {
	Key() int64
	WithKey(id int64) T
}

// Order controls where Create places new records in List.
type Order int

const (
	// Append keeps records oldest first.
	Append Order = iota
	// Prepend keeps records newest first.
	Prepend
)

// Persister loads and saves the full ordered collection of a store.
type Persister[T any] interface {
	Load() ([]T, error)
	Save(records []T) error
}

// Sequencer is implemented by persisters that also keep the id counter, so
// ids of deleted records are never handed out again after a reload.
// LoadNextID returns 0 when no counter has been saved yet.
type Sequencer interface {
	LoadNextID() (int64, error)
	SaveNextID(id int64) error
}

// Options configures a Store. The zero value is an unpersisted,
// append-ordered store with tag-based validation.
type Options[T any] struct {
	// Kind names one record in NotFoundError; it defaults to the store name.
	Kind      string
	Order     Order
	Persister Persister[T]
	// Validate overrides the default struct-tag validation.
	Validate func(T) error
	Logger   *zap.Logger
}

// Store is an ordered collection of records with unique, monotonically
// assigned ids. Every successful mutation is saved through the Persister;
// a failed save leaves the store unchanged.
type Store[T Keyed[T]] struct {
	mu        sync.Mutex
	name      string
	kind      string
	order     Order
	records   []T
	nextID    int64
	savedNext int64
	persister Persister[T]
	sequencer Sequencer
	validate  func(T) error
	logger    *zap.Logger
}

// NewStore creates a store and hydrates it from opts.Persister when set.
func NewStore[T Keyed[T]](name string, opts Options[T]) (*Store[T], error) {
	s := &Store[T]{
		name:      name,
		kind:      opts.Kind,
		order:     opts.Order,
		nextID:    1,
		persister: opts.Persister,
		validate:  opts.Validate,
		logger:    opts.Logger,
	}
	if s.kind == "" {
		s.kind = name
	}
	if s.validate == nil {
		s.validate = func(rec T) error { return Validate(rec) }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.persister == nil {
		return s, nil
	}

	loaded, err := s.persister.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	seen := make(map[int64]struct{}, len(loaded))
	for _, rec := range loaded {
		id := rec.Key()
		if id <= 0 {
			return nil, fmt.Errorf("load %s: invalid id %d", name, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("load %s: duplicate id %d", name, id)
		}
		if err := s.validate(rec); err != nil {
			return nil, fmt.Errorf("load %s: record %d: %w", name, id, err)
		}
		seen[id] = struct{}{}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	if seq, ok := s.persister.(Sequencer); ok {
		saved, err := seq.LoadNextID()
		if err != nil {
			return nil, fmt.Errorf("load %s counter: %w", name, err)
		}
		s.sequencer = seq
		s.savedNext = saved
		s.nextID = max(s.nextID, saved)
	}
	s.records = loaded
	s.logger.Debug("store loaded", zap.String("store", name), zap.Int("records", len(loaded)))
	return s, nil
}

// Name returns the store name, also used as its persistence key.
func (s *Store[T]) Name() string { return s.name }

// Create validates rec, assigns it the next id and stores it.
func (s *Store[T]) Create(rec T) (T, error) {
	var zero T
	if err := s.validate(rec); err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.WithKey(s.nextID)
	next := make([]T, 0, len(s.records)+1)
	if s.order == Prepend {
		next = append(next, rec)
		next = append(next, s.records...)
	} else {
		next = append(next, s.records...)
		next = append(next, rec)
	}
	if err := s.commit(next, s.nextID+1); err != nil {
		return zero, err
	}
	s.logger.Debug("record created", zap.String("store", s.name), zap.Int64("id", rec.Key()))
	return rec, nil
}

// Update replaces every field of the record with the given id, keeping the id.
func (s *Store[T]) Update(id int64, rec T) (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return zero, NotFound(s.kind, id)
	}
	rec = rec.WithKey(id)
	if err := s.validate(rec); err != nil {
		return zero, err
	}
	next := slices.Clone(s.records)
	next[idx] = rec
	if err := s.commit(next, s.nextID); err != nil {
		return zero, err
	}
	s.logger.Debug("record updated", zap.String("store", s.name), zap.Int64("id", id))
	return rec, nil
}

// Delete removes the record with the given id.
func (s *Store[T]) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return NotFound(s.kind, id)
	}
	next := slices.Delete(slices.Clone(s.records), idx, idx+1)
	if err := s.commit(next, s.nextID); err != nil {
		return err
	}
	s.logger.Debug("record deleted", zap.String("store", s.name), zap.Int64("id", id))
	return nil
}

// Find returns the record with the given id.
func (s *Store[T]) Find(id int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.index(id); idx >= 0 {
		return s.records[idx], true
	}
	var zero T
	return zero, false
}

// List returns a copy of all records in store order.
func (s *Store[T]) List() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Search returns the records matching pred, in store order.
func (s *Store[T]) Search(pred func(T) bool) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []T{}
	for _, rec := range s.records {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of records.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store[T]) index(id int64) int {
	return slices.IndexFunc(s.records, func(rec T) bool { return rec.Key() == id })
}

// commit saves next and swaps it in along with the id counter nextID.
// The counter is saved before the records. Callers hold s.mu.
func (s *Store[T]) commit(next []T, nextID int64) error {
	if s.sequencer != nil && nextID != s.savedNext {
		if err := s.sequencer.SaveNextID(nextID); err != nil {
			s.logger.Warn("counter save failed, mutation discarded", zap.String("store", s.name), zap.Error(err))
			return fmt.Errorf("save %s counter: %w", s.name, err)
		}
		s.savedNext = nextID
	}
	if s.persister != nil {
		if err := s.persister.Save(slices.Clone(next)); err != nil {
			s.logger.Warn("save failed, mutation discarded", zap.String("store", s.name), zap.Error(err))
			return fmt.Errorf("save %s: %w", s.name, err)
		}
	}
	s.records = next
	s.nextID = nextID
	return nil
}
