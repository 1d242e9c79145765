// Package ecdh performs the X25519 exchange that gives each connection a
// shared secret for client-side message encryption. The server never uses
// the secret to decrypt anything; message content stays opaque ciphertext
// end to end. Secrets die with the connection.
package ecdh

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
)

// KeySize is the X25519 public key and shared secret length.
const KeySize = 32

// ErrInvalidPublicKey rejects client keys that are not exactly 32 bytes.
var ErrInvalidPublicKey = errors.New("invalid public key length")

// Manager holds one shared secret per connection.
type Manager struct {
	mu      sync.Mutex
	secrets map[uint64][]byte
}

// NewManager returns an empty secret table.
func NewManager() *Manager {
	return &Manager{secrets: make(map[uint64][]byte)}
}

// Exchange derives a shared secret from the client's public key under a
// fresh ephemeral server keypair and returns the server's public key. A
// repeated exchange replaces the stored secret.
func (m *Manager) Exchange(connID uint64, clientPublic []byte) ([]byte, error) {
	if len(clientPublic) != KeySize {
		return nil, ErrInvalidPublicKey
	}

	curve := ecdh.X25519()
	remote, err := curve.NewPublicKey(clientPublic)
	if err != nil {
		return nil, fmt.Errorf("parse client public key: %w", err)
	}
	private, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate server keypair: %w", err)
	}
	secret, err := private.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}

	m.mu.Lock()
	m.secrets[connID] = secret
	m.mu.Unlock()

	return private.PublicKey().Bytes(), nil
}

// Secret returns the shared secret for a connection, if one was derived.
func (m *Manager) Secret(connID uint64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[connID]
	return secret, ok
}

// Remove forgets a connection's secret on disconnect.
func (m *Manager) Remove(connID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, connID)
}
