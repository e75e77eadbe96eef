// Package storage holds the key-value backends that persist record stores.
// Each store is written as one JSON array under its own bucket name, with
// its id counter kept next to it under CounterKey(name).
package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const counterSuffix = ".next_id"

// CounterKey names the bucket holding the id counter of collection name.
func CounterKey(name string) string { return name + counterSuffix }

// IsCounterKey reports whether bucket holds an id counter.
func IsCounterKey(bucket string) bool { return strings.HasSuffix(bucket, counterSuffix) }

// KV is a flat bucket -> payload store. Get reports ok=false for a bucket
// that has never been written.
type KV interface {
	Get(bucket string) (payload []byte, ok bool, err error)
	Put(bucket string, payload []byte) error
}

// Memory is a process-local KV.
type Memory struct {
	mu      sync.Mutex
	buckets map[string][]byte
}

// NewMemory returns an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{buckets: map[string][]byte{}}
}

func (m *Memory) Get(bucket string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), p...), true, nil
}

func (m *Memory) Put(bucket string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = append([]byte(nil), payload...)
	return nil
}

// Bucket persists a collection of T as a JSON array in one KV bucket.
// It satisfies record.Persister[T] and record.Sequencer.
type Bucket[T any] struct {
	kv   KV
	name string
}

// NewBucket binds the collection named name to kv.
func NewBucket[T any](kv KV, name string) *Bucket[T] {
	return &Bucket[T]{kv: kv, name: name}
}

// Load decodes the stored array. A bucket that was never written loads as
// an empty collection.
func (b *Bucket[T]) Load() ([]T, error) {
	payload, ok, err := b.kv.Get(b.name)
	if err != nil {
		return nil, err
	}
	if !ok || len(payload) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.name, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Save overwrites the bucket with records.
func (b *Bucket[T]) Save(records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", b.name, err)
	}
	return b.kv.Put(b.name, data)
}

// LoadNextID returns the saved id counter, or 0 if none was saved.
func (b *Bucket[T]) LoadNextID() (int64, error) {
	key := CounterKey(b.name)
	payload, ok, err := b.kv.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok || len(payload) == 0 {
		return 0, nil
	}
	var id int64
	if err := json.Unmarshal(payload, &id); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("decode %s: negative counter %d", key, id)
	}
	return id, nil
}

// SaveNextID stores the id counter.
func (b *Bucket[T]) SaveNextID(id int64) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CounterKey(b.name), err)
	}
	return b.kv.Put(CounterKey(b.name), data)
}
