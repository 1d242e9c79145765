package client

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"
)

const (
	gcmNonceSize  = 12
	sessionKeyLen = 32

	// channelKDFIterations matches both ends of the channel layer; the
	// derived key never leaves the client.
	channelKDFIterations = 100_000
	channelSaltPrefix    = "darkrelay-channel-"

	// maxPadTail bounds the random padding appended to a plaintext before
	// sealing, hiding its exact length.
	maxPadTail = 256
)

// sessionCipher seals message bodies under the X25519 shared secret with
// AES-256-GCM. Nonces are 12 bytes, 4 zero bytes then a big-endian send
// counter starting at 0, unique per sealed message within a session.
type sessionCipher struct {
	aead    cipher.AEAD
	counter atomic.Uint64
}

func newSessionCipher(secret []byte) (*sessionCipher, error) {
	if len(secret) != sessionKeyLen {
		return nil, fmt.Errorf("session secret must be %d bytes, got %d", sessionKeyLen, len(secret))
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sessionCipher{aead: aead}, nil
}

// Seal pads and encrypts plaintext, returning the ciphertext and the nonce
// it was sealed under.
func (c *sessionCipher) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	padded, err := pad(plaintext)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcmNonceSize)
	binary.BigEndian.PutUint64(nonce[4:], c.counter.Add(1)-1)
	return c.aead.Seal(nil, nonce, padded, nil), nonce, nil
}

// Open decrypts and unpads a sealed payload.
func (c *sessionCipher) Open(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != gcmNonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", gcmNonceSize, len(nonce))
	}
	padded, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	return unpad(padded)
}

// pad frames plaintext as [u32 BE length][plaintext][random tail] with a
// tail of 0 to 256 bytes, so ciphertext sizes leak less.
func pad(plaintext []byte) ([]byte, error) {
	if len(plaintext) > math.MaxUint32 {
		return nil, errors.New("plaintext too large")
	}
	var pick [2]byte
	if _, err := rand.Read(pick[:]); err != nil {
		return nil, err
	}
	tail := int(binary.BigEndian.Uint16(pick[:]) % (maxPadTail + 1))

	padded := make([]byte, 4+len(plaintext)+tail)
	binary.BigEndian.PutUint32(padded, uint32(len(plaintext)))
	copy(padded[4:], plaintext)
	if _, err := rand.Read(padded[4+len(plaintext):]); err != nil {
		return nil, err
	}
	return padded, nil
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 4 {
		return nil, errors.New("padded payload too short")
	}
	n := binary.BigEndian.Uint32(padded)
	if uint64(n) > uint64(len(padded)-4) {
		return nil, errors.New("padded length out of range")
	}
	return padded[4 : 4+n], nil
}

// ChannelCipher is the optional second encryption layer scoped to one
// channel, keyed from the channel password. Its nonce is prefixed to the
// ciphertext so any member holding the password can open it without side
// channels.
type ChannelCipher struct {
	aead cipher.AEAD
}

// NewChannelCipher derives the channel key with PBKDF2-HMAC-SHA256 over
// the channel password, salted by the channel name.
func NewChannelCipher(channel, password string) (*ChannelCipher, error) {
	key := pbkdf2.Key([]byte(password), []byte(channelSaltPrefix+channel), channelKDFIterations, sessionKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &ChannelCipher{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce and returns
// nonce||ciphertext.
func (c *ChannelCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open splits nonce||ciphertext and decrypts.
func (c *ChannelCipher) Open(payload []byte) ([]byte, error) {
	if len(payload) < c.aead.NonceSize() {
		return nil, errors.New("channel payload too short")
	}
	nonce, ciphertext := payload[:c.aead.NonceSize()], payload[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
