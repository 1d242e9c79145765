// Package dm stores direct messages per user pair. Content and nonce are
// opaque ciphertext; the server relays and replays them without ever
// decrypting. History is bounded per pair.
package dm

import (
	"sort"
	"sync"
	"time"

	"github.com/darkrelay/darkrelay/internal/buffer"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// Cap bounds the retained DMs per user pair; the oldest is dropped first.
const Cap = 100

// pairKey orders the two user ids so both directions share one history.
type pairKey struct {
	low, high protocol.UserID
}

func keyFor(a, b protocol.UserID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{low: a, high: b}
}

// Store is the DM table.
type Store struct {
	mu     sync.Mutex
	pairs  map[pairKey]*buffer.Ring[protocol.StoredDM]
	nextID uint64
}

// NewStore returns an empty DM table.
func NewStore() *Store {
	return &Store{pairs: make(map[pairKey]*buffer.Ring[protocol.StoredDM])}
}

// Add stores one DM and returns it stamped with id and timestamp. The DM
// starts unread; delivery to a live connection does not mark it read, only
// an explicit MarkDMRead from the recipient does.
func (s *Store) Add(senderID, recipientID protocol.UserID, content, nonce []byte) protocol.StoredDM {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyFor(senderID, recipientID)
	ring, ok := s.pairs[key]
	if !ok {
		ring = buffer.New[protocol.StoredDM](Cap)
		s.pairs[key] = ring
	}

	s.nextID++
	stored := protocol.StoredDM{
		DMID:        s.nextID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Nonce:       nonce,
		Timestamp:   time.Now().UTC(),
	}
	ring.Push(stored)
	return stored
}

// History returns up to limit DMs between two users, newest first. Both
// directions share the same history.
func (s *Store) History(userID, otherID protocol.UserID, limit int) []protocol.StoredDM {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.pairs[keyFor(userID, otherID)]
	if !ok {
		return nil
	}
	return ring.Newest(limit)
}

// Undelivered returns every retained unread DM addressed to a user, oldest
// first, for replay on login.
func (s *Store) Undelivered(userID protocol.UserID) []protocol.StoredDM {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unread []protocol.StoredDM
	for key, ring := range s.pairs {
		if key.low != userID && key.high != userID {
			continue
		}
		ring.Each(func(dm *protocol.StoredDM) bool {
			if dm.RecipientID == userID && !dm.IsRead {
				unread = append(unread, *dm)
			}
			return true
		})
	}
	sort.Slice(unread, func(i, j int) bool { return unread[i].DMID < unread[j].DMID })
	return unread
}

// MarkRead flips a DM to read. Only the recipient may mark; anyone else,
// or an unknown id, reports false.
func (s *Store) MarkRead(dmID uint64, userID protocol.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ring := range s.pairs {
		if key.low != userID && key.high != userID {
			continue
		}
		marked := false
		ring.Each(func(dm *protocol.StoredDM) bool {
			if dm.DMID == dmID {
				if dm.RecipientID == userID {
					dm.IsRead = true
					marked = true
				}
				return false
			}
			return true
		})
		if marked {
			return true
		}
	}
	return false
}
