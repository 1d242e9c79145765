// Package admin tracks channel-scoped moderation state: per-user roles,
// the channel posting policy, and a bounded audit log per channel. All
// state is keyed by channel id and dropped with the channel.
package admin

import (
	"sort"
	"sync"
	"time"

	"github.com/darkrelay/darkrelay/internal/buffer"
	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// LogCap bounds the audit log per channel; the oldest entry is dropped
// first.
const LogCap = 1000

type channelState struct {
	roles       map[protocol.UserID]protocol.Role
	channelType protocol.ChannelType
	logs        *buffer.Ring[protocol.LogEntry]
}

// Store holds moderation state for every channel.
type Store struct {
	mu       sync.RWMutex
	channels map[protocol.ChannelID]*channelState
}

// NewStore returns an empty moderation store.
func NewStore() *Store {
	return &Store{channels: make(map[protocol.ChannelID]*channelState)}
}

func (s *Store) stateLocked(id protocol.ChannelID) *channelState {
	st, ok := s.channels[id]
	if !ok {
		st = &channelState{
			roles: make(map[protocol.UserID]protocol.Role),
			logs:  buffer.New[protocol.LogEntry](LogCap),
		}
		s.channels[id] = st
	}
	return st
}

// SeedCreator grants the channel creator the Admin role. Later promotions
// and demotions go through SetRole.
func (s *Store) SeedCreator(channelID protocol.ChannelID, userID protocol.UserID) {
	s.SetRole(channelID, userID, protocol.RoleAdmin)
}

// Role returns a user's role in a channel; users without an assignment
// hold User.
func (s *Store) Role(channelID protocol.ChannelID, userID protocol.UserID) protocol.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.channels[channelID]; ok {
		return st.roles[userID]
	}
	return protocol.RoleUser
}

// SetRole assigns a role. Assigning User removes the explicit entry.
func (s *Store) SetRole(channelID protocol.ChannelID, userID protocol.UserID, role protocol.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(channelID)
	if role == protocol.RoleUser {
		delete(st.roles, userID)
		return
	}
	st.roles[userID] = role
}

// HasPermission reports whether a user's channel role grants perm under
// the default permission table.
func (s *Store) HasPermission(channelID protocol.ChannelID, userID protocol.UserID, perm protocol.Permission) bool {
	return protocol.HasPermission(s.Role(channelID, userID), perm)
}

// CanSend reports whether a user may post given the channel's type.
func (s *Store) CanSend(channelID protocol.ChannelID, userID protocol.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role := protocol.RoleUser
	channelType := protocol.ChannelPublic
	if st, ok := s.channels[channelID]; ok {
		role = st.roles[userID]
		channelType = st.channelType
	}
	return protocol.CanSend(role, channelType)
}

// ChannelType returns the posting policy; unconfigured channels are Public.
func (s *Store) ChannelType(channelID protocol.ChannelID) protocol.ChannelType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.channels[channelID]; ok {
		return st.channelType
	}
	return protocol.ChannelPublic
}

// SetChannelType switches the posting policy.
func (s *Store) SetChannelType(channelID protocol.ChannelID, t protocol.ChannelType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(channelID).channelType = t
}

// ListAdmins returns the users holding Moderator or above, sorted by user
// id. resolve maps ids to usernames; unresolvable ids are listed with an
// empty name rather than dropped.
func (s *Store) ListAdmins(channelID protocol.ChannelID, resolve func(protocol.UserID) (string, bool)) []protocol.AdminInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	admins := make([]protocol.AdminInfo, 0, len(st.roles))
	for userID, role := range st.roles {
		if role < protocol.RoleModerator {
			continue
		}
		name, _ := resolve(userID)
		admins = append(admins, protocol.AdminInfo{UserID: userID, Username: name, Role: role})
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].UserID < admins[j].UserID })
	return admins
}

// Log appends an audit entry for a moderation action.
func (s *Store) Log(channelID protocol.ChannelID, userID protocol.UserID, username, action, target, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateLocked(channelID).logs.Push(protocol.LogEntry{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Username:  username,
		Action:    action,
		Target:    target,
		Details:   details,
	})
}

// Logs returns up to limit audit entries, newest first.
func (s *Store) Logs(channelID protocol.ChannelID, limit int) []protocol.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	return st.logs.Newest(limit)
}

// RemoveChannel drops all moderation state for a deleted channel.
func (s *Store) RemoveChannel(channelID protocol.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
}
