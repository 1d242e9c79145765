// Package bans holds channel-scoped bans. A ban carries an optional expiry;
// expired entries stop matching immediately and are reaped by a background
// sweep.
package bans

import (
	"sort"
	"sync"
	"time"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// Ban is one active or expired ban record.
type Ban struct {
	UserID      protocol.UserID
	Username    string
	BannedBy    string
	BannedAt    time.Time
	BannedUntil *time.Time // nil means permanent
	Reason      *string
}

// DenyReason renders the JoinFailure text shown to a banned user.
func (b Ban) DenyReason() string {
	text := "Permanently banned"
	if b.BannedUntil != nil {
		text = "Banned until " + b.BannedUntil.Format(time.RFC3339)
	}
	if b.Reason != nil && *b.Reason != "" {
		text += ": " + *b.Reason
	}
	return text
}

func (b Ban) activeAt(now time.Time) bool {
	return b.BannedUntil == nil || now.Before(*b.BannedUntil)
}

// Store is the ban table, keyed by channel id.
type Store struct {
	mu   sync.RWMutex
	bans map[protocol.ChannelID]map[protocol.UserID]Ban
}

// NewStore returns an empty ban table.
func NewStore() *Store {
	return &Store{bans: make(map[protocol.ChannelID]map[protocol.UserID]Ban)}
}

// Ban records a ban, replacing any existing one for the same user. A nil
// duration makes the ban permanent. Returns the computed expiry.
func (s *Store) Ban(channelID protocol.ChannelID, userID protocol.UserID, username, bannedBy string, duration *time.Duration, reason *string) *time.Time {
	now := time.Now().UTC()
	var until *time.Time
	if duration != nil {
		t := now.Add(*duration)
		until = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.bans[channelID]
	if !ok {
		channel = make(map[protocol.UserID]Ban)
		s.bans[channelID] = channel
	}
	channel[userID] = Ban{
		UserID:      userID,
		Username:    username,
		BannedBy:    bannedBy,
		BannedAt:    now,
		BannedUntil: until,
		Reason:      reason,
	}
	return until
}

// Unban lifts a ban and reports whether one existed.
func (s *Store) Unban(channelID protocol.ChannelID, userID protocol.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.bans[channelID]
	if !ok {
		return false
	}
	if _, ok := channel[userID]; !ok {
		return false
	}
	delete(channel, userID)
	if len(channel) == 0 {
		delete(s.bans, channelID)
	}
	return true
}

// Get returns the ban for a user if it is still active.
func (s *Store) Get(channelID protocol.ChannelID, userID protocol.UserID) (Ban, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ban, ok := s.bans[channelID][userID]
	if !ok || !ban.activeAt(time.Now().UTC()) {
		return Ban{}, false
	}
	return ban, true
}

// IsBanned reports whether a user is actively banned from a channel.
func (s *Store) IsBanned(channelID protocol.ChannelID, userID protocol.UserID) bool {
	_, banned := s.Get(channelID, userID)
	return banned
}

// List returns the active bans for a channel, sorted by user id. Expired
// entries are skipped even before the sweep removes them.
func (s *Store) List(channelID protocol.ChannelID) []protocol.BanInfo {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.bans[channelID]
	if !ok {
		return nil
	}
	list := make([]protocol.BanInfo, 0, len(channel))
	for _, ban := range channel {
		if !ban.activeAt(now) {
			continue
		}
		list = append(list, protocol.BanInfo{
			UserID:      ban.UserID,
			Username:    ban.Username,
			BannedUntil: ban.BannedUntil,
			BannedBy:    ban.BannedBy,
			Reason:      ban.Reason,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}

// SweepExpired removes expired bans across all channels and returns how
// many were reaped.
func (s *Store) SweepExpired() int {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for channelID, channel := range s.bans {
		for userID, ban := range channel {
			if !ban.activeAt(now) {
				delete(channel, userID)
				reaped++
			}
		}
		if len(channel) == 0 {
			delete(s.bans, channelID)
		}
	}
	return reaped
}

// RemoveChannel drops all bans for a deleted channel.
func (s *Store) RemoveChannel(channelID protocol.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bans, channelID)
}
