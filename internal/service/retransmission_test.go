package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetransmissionStorePutAndGet(t *testing.T) {
	store := NewRetransmissionStore(10)

	store.Put("chat1", "msg1", []byte("hello"))

	payload, ok := store.Content("chat1", "msg1")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), payload)

	_, ok = store.Content("chat1", "unknown")
	assert.False(t, ok)

	_, ok = store.Content("chat2", "msg1")
	assert.False(t, ok)
}

func TestRetransmissionStoreIgnoresEmptyPayload(t *testing.T) {
	store := NewRetransmissionStore(10)

	store.Put("chat1", "msg1", nil)
	store.Put("chat1", "msg2", []byte{})

	assert.Equal(t, 0, store.Len())
}

func TestRetransmissionStoreFIFOEviction(t *testing.T) {
	const capacity = 5
	store := NewRetransmissionStore(capacity)

	for i := 0; i < capacity; i++ {
		store.Put("chat", fmt.Sprintf("msg%d", i), []byte{byte(i)})
	}
	assert.Equal(t, capacity, store.Len())

	// One past capacity evicts the oldest entry only.
	store.Put("chat", "overflow", []byte("new"))

	assert.Equal(t, capacity, store.Len())
	_, ok := store.Content("chat", "msg0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = store.Content("chat", "msg1")
	assert.True(t, ok)
	_, ok = store.Content("chat", "overflow")
	assert.True(t, ok)
}

func TestRetransmissionStoreOverwriteKeepsPosition(t *testing.T) {
	store := NewRetransmissionStore(3)

	store.Put("chat", "a", []byte("1"))
	store.Put("chat", "b", []byte("2"))
	store.Put("chat", "c", []byte("3"))

	// Overwriting the oldest key must not refresh its eviction position.
	store.Put("chat", "a", []byte("updated"))

	payload, ok := store.Content("chat", "a")
	require.True(t, ok)
	assert.Equal(t, []byte("updated"), payload)

	// The next insert still evicts "a" as the oldest entry.
	store.Put("chat", "d", []byte("4"))

	_, ok = store.Content("chat", "a")
	assert.False(t, ok)
	_, ok = store.Content("chat", "b")
	assert.True(t, ok)
	_, ok = store.Content("chat", "d")
	assert.True(t, ok)
}

func TestRetransmissionStoreDefaultCapacity(t *testing.T) {
	store := NewRetransmissionStore(0)
	assert.Equal(t, 5000, store.capacity)
}
