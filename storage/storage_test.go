package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCopiesPayloads(t *testing.T) {
	m := NewMemory()
	payload := []byte(`[1]`)
	require.NoError(t, m.Put("a", payload))
	payload[1] = '9'

	got, ok, err := m.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1]", string(got))

	_, ok, _ = m.Get("b")
	assert.False(t, ok)
}

func TestBucketLoadsMissingAsEmpty(t *testing.T) {
	b := NewBucket[item](NewMemory(), "items")

	got, err := b.Load()
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestBucketRoundTripAndNull(t *testing.T) {
	m := NewMemory()
	b := NewBucket[item](m, "items")

	require.NoError(t, b.Save(nil))
	raw, _, _ := m.Get("items")
	assert.Equal(t, "[]", string(raw))

	require.NoError(t, m.Put("items", []byte("null")))
	got, err := b.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, b.Save([]item{{ID: 2, Name: "x"}}))
	got, err = b.Load()
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: 2, Name: "x"}}, got)
}

func TestBucketRejectsGarbage(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put("items", []byte(`{"not":"an array"}`)))

	_, err := NewBucket[item](m, "items").Load()
	assert.ErrorContains(t, err, "decode items")
}

func TestBucketCounter(t *testing.T) {
	m := NewMemory()
	b := NewBucket[item](m, "items")

	next, err := b.LoadNextID()
	require.NoError(t, err)
	assert.Zero(t, next)

	require.NoError(t, b.SaveNextID(5))
	raw, ok, _ := m.Get("items.next_id")
	assert.True(t, ok)
	assert.Equal(t, "5", string(raw))
	next, err = b.LoadNextID()
	require.NoError(t, err)
	assert.Equal(t, int64(5), next)

	require.NoError(t, m.Put("items.next_id", []byte(`"five"`)))
	_, err = b.LoadNextID()
	assert.ErrorContains(t, err, "decode items.next_id")

	require.NoError(t, m.Put("items.next_id", []byte(`-1`)))
	_, err = b.LoadNextID()
	assert.ErrorContains(t, err, "negative counter")
}

func TestCounterKey(t *testing.T) {
	assert.Equal(t, "books.next_id", CounterKey("books"))
	assert.True(t, IsCounterKey(CounterKey("books")))
	assert.False(t, IsCounterKey("books"))
}
