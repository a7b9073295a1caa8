package service

import (
	"sync"

	"wabridge/internal/constants"
)

type contentKey struct {
	chatID    string
	messageID string
}

// RetransmissionStore is a bounded cache of message content keyed by
// (chat, message-id). The protocol library calls back into it when a peer
// requests a resend after a session desync, so every observed message,
// inbound or outbound, is recorded here. Eviction is strict FIFO by
// insertion order; a miss is a normal outcome the library handles itself.
type RetransmissionStore struct {
	mu       sync.Mutex
	capacity int
	entries  map[contentKey][]byte
	order    []contentKey
}

// NewRetransmissionStore creates a store holding at most capacity entries.
func NewRetransmissionStore(capacity int) *RetransmissionStore {
	if capacity <= 0 {
		capacity = constants.DefaultRetransmissionCacheSize
	}
	return &RetransmissionStore{
		capacity: capacity,
		entries:  make(map[contentKey][]byte, capacity),
	}
}

// Put records content, overwriting any previous entry for the same key. An
// overwrite keeps the key's original insertion position; only new keys can
// trigger eviction of the oldest entry.
func (s *RetransmissionStore) Put(chatID, messageID string, payload []byte) {
	if len(payload) == 0 {
		return
	}

	key := contentKey{chatID: chatID, messageID: messageID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		s.entries[key] = payload
		return
	}

	s.entries[key] = payload
	s.order = append(s.order, key)

	if len(s.entries) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
}

// Content returns the stored payload for a key, if still present. It
// satisfies the protocol adapter's ContentSource contract.
func (s *RetransmissionStore) Content(chatID, messageID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.entries[contentKey{chatID: chatID, messageID: messageID}]
	return payload, ok
}

// Len reports the number of live entries.
func (s *RetransmissionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
