// Package channels owns the named channel table: membership, per-channel
// message history, and the creation policy. Channels are keyed by name and
// never expire; history is bounded per channel.
package channels

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/darkrelay/darkrelay/internal/auth"
	"github.com/darkrelay/darkrelay/internal/buffer"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// MessageCap bounds the stored history per channel; the oldest message is
// dropped first.
const MessageCap = 100

// Join and policy failures, surfaced verbatim in JoinFailure reasons.
var (
	ErrNotFound        = errors.New("channel not found")
	ErrInvalidPassword = errors.New("invalid channel password")
	ErrNameNotAllowed  = errors.New("channel name not allowed")
	ErrMessageNotFound = errors.New("message not found")
)

type channel struct {
	id           protocol.ChannelID
	name         string
	isPublic     bool
	passwordHash string
	createdAt    time.Time
	messages     *buffer.Ring[protocol.ChatMessage]
	members      map[uint64]struct{}
}

func (c *channel) info() protocol.ChannelInfo {
	return protocol.ChannelInfo{ID: c.id, Name: c.name, IsPublic: c.isPublic}
}

// Store is the channel table. Connection ids in member sets refer to live
// connections tracked by the registry, not user ids.
type Store struct {
	mu      sync.RWMutex
	byName  map[string]*channel
	pattern string

	nextChannelID protocol.ChannelID
	nextMessageID protocol.MessageID
}

// NewStore returns an empty channel table. pattern is the wildcard
// allowlist applied to client-created channel names.
func NewStore(pattern string) *Store {
	if pattern == "" {
		pattern = "*"
	}
	return &Store{
		byName:  make(map[string]*channel),
		pattern: pattern,
	}
}

// Ensure creates a public channel if absent, bypassing the name pattern.
// Used for operator-provisioned channels at startup.
func (s *Store) Ensure(name string) protocol.ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.byName[name]; ok {
		return ch.info()
	}
	ch := s.createLocked(name, "")
	return ch.info()
}

// Join adds a connection to a channel's member set, creating the channel on
// first join. The created flag reports auto-creation so the caller can seed
// the creator's role. A non-empty password at creation makes the channel
// private; joining an existing private channel requires the matching
// password.
func (s *Store) Join(connID uint64, name string, password *string) (protocol.ChannelInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byName[name]
	if !ok {
		if strings.TrimSpace(name) == "" || !wildcard.Match(s.pattern, name) {
			return protocol.ChannelInfo{}, false, ErrNameNotAllowed
		}
		supplied := ""
		if password != nil {
			supplied = *password
		}
		ch = s.createLocked(name, supplied)
		ch.members[connID] = struct{}{}
		return ch.info(), true, nil
	}

	if ch.passwordHash != "" {
		if password == nil || !auth.CheckPasswordHash(*password, ch.passwordHash) {
			return protocol.ChannelInfo{}, false, ErrInvalidPassword
		}
	}
	ch.members[connID] = struct{}{}
	return ch.info(), false, nil
}

// createLocked allocates a channel. A non-empty password is hashed and the
// channel hidden from the public list.
func (s *Store) createLocked(name, password string) *channel {
	s.nextChannelID++
	ch := &channel{
		id:        s.nextChannelID,
		name:      name,
		isPublic:  password == "",
		createdAt: time.Now().UTC(),
		messages:  buffer.New[protocol.ChatMessage](MessageCap),
		members:   make(map[uint64]struct{}),
	}
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			// Salt generation only fails when the OS entropy source is
			// broken; fail closed by keeping the channel private with an
			// unmatchable hash.
			hash = "$argon2id$unusable"
		}
		ch.passwordHash = hash
	}
	s.byName[name] = ch
	return ch
}

// Leave removes a connection from a channel's member set. Empty channels
// are kept; history and roles outlive membership.
func (s *Store) Leave(connID uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.byName[name]; ok {
		delete(ch.members, connID)
	}
}

// Members returns a snapshot of the connection ids joined to a channel.
func (s *Store) Members(name string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.byName[name]
	if !ok {
		return nil
	}
	members := make([]uint64, 0, len(ch.members))
	for id := range ch.members {
		members = append(members, id)
	}
	return members
}

// Info returns the public view of a channel.
func (s *Store) Info(name string) (protocol.ChannelInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.byName[name]
	if !ok {
		return protocol.ChannelInfo{}, false
	}
	return ch.info(), true
}

// ListPublic returns the public channels sorted by name.
func (s *Store) ListPublic() []protocol.ChannelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]protocol.ChannelInfo, 0, len(s.byName))
	for _, ch := range s.byName {
		if ch.isPublic {
			list = append(list, ch.info())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// AddMessage stamps msg with a store-wide id and timestamp and appends it
// to the channel history, dropping the oldest message past the cap.
func (s *Store) AddMessage(name string, msg protocol.ChatMessage) (protocol.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byName[name]
	if !ok {
		return protocol.ChatMessage{}, ErrNotFound
	}
	s.nextMessageID++
	msg.ID = s.nextMessageID
	msg.Timestamp = time.Now().UTC()
	ch.messages.Push(msg)
	return msg, nil
}

// History returns up to limit most recent messages, oldest first. Unknown
// channels yield an empty history.
func (s *Store) History(name string, limit int) []protocol.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.byName[name]
	if !ok {
		return nil
	}
	return ch.messages.Last(limit)
}

// DeleteMessage removes one stored message by id.
func (s *Store) DeleteMessage(name string, id protocol.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byName[name]
	if !ok {
		return ErrNotFound
	}
	if !ch.messages.RemoveFirst(func(m protocol.ChatMessage) bool { return m.ID == id }) {
		return ErrMessageNotFound
	}
	return nil
}

// Delete drops a channel and returns the member snapshot that was joined
// to it.
func (s *Store) Delete(name string) ([]uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	members := make([]uint64, 0, len(ch.members))
	for id := range ch.members {
		members = append(members, id)
	}
	delete(s.byName, name)
	return members, true
}

// Len returns the number of channels, public and private.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}
