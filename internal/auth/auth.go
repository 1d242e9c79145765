// Package auth holds the deployment gate key check and the in-memory user
// store. Users survive disconnects but not restarts; there is no persistence
// layer behind this process.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// Registration and login failures, surfaced verbatim as AuthFailure reasons.
var (
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrUsernameTaken = errors.New("username already exists")
	ErrUnknownUser   = errors.New("user not found")
	ErrBadPassword   = errors.New("invalid password")
)

// VerifyGateKey compares a presented gate key against the configured one in
// constant time, so the comparison leaks nothing about the expected key.
func VerifyGateKey(configured, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

type record struct {
	user     protocol.UserInfo
	password string
}

// Store is the in-memory user registry.
type Store struct {
	mu     sync.RWMutex
	byName map[string]*record
	byID   map[protocol.UserID]*record
	nextID protocol.UserID
}

// NewStore returns an empty user store.
func NewStore() *Store {
	return &Store{
		byName: make(map[string]*record),
		byID:   make(map[protocol.UserID]*record),
	}
}

// Register creates a user with a server-generated password and returns the
// user plus the plaintext password. The password is shown to the client
// exactly once and stored only here.
func (s *Store) Register(username string) (protocol.UserInfo, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return protocol.UserInfo{}, "", ErrEmptyUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[username]; ok {
		return protocol.UserInfo{}, "", ErrUsernameTaken
	}

	s.nextID++
	user := protocol.UserInfo{
		ID:       s.nextID,
		Username: username,
		JoinedAt: time.Now().UTC(),
	}
	password := fmt.Sprintf("dr-%d-%d", time.Now().UnixNano(), user.ID)

	rec := &record{user: user, password: password}
	s.byName[username] = rec
	s.byID[user.ID] = rec
	return user, password, nil
}

// Login checks credentials and returns the stored user.
func (s *Store) Login(username, password string) (protocol.UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byName[username]
	if !ok {
		return protocol.UserInfo{}, ErrUnknownUser
	}
	if subtle.ConstantTimeCompare([]byte(rec.password), []byte(password)) != 1 {
		return protocol.UserInfo{}, ErrBadPassword
	}
	return rec.user, nil
}

// User returns the registered user with the given id.
func (s *Store) User(id protocol.UserID) (protocol.UserInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return protocol.UserInfo{}, false
	}
	return rec.user, true
}

// Username resolves a user id for display; missing users resolve to false.
func (s *Store) Username(id protocol.UserID) (string, bool) {
	user, ok := s.User(id)
	return user.Username, ok
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}
