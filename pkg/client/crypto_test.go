package client

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func testSecret() []byte {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i * 7)
	}
	return secret
}

func TestSessionCipherRoundTrip(t *testing.T) {
	sealer, err := newSessionCipher(testSecret())
	if err != nil {
		t.Fatal(err)
	}
	opener, err := newSessionCipher(testSecret())
	if err != nil {
		t.Fatal(err)
	}

	for _, plaintext := range [][]byte{nil, []byte("x"), []byte("hello channel"), bytes.Repeat([]byte("p"), 4096)} {
		ciphertext, nonce, err := sealer.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal(%d bytes): %v", len(plaintext), err)
		}
		got, err := opener.Open(ciphertext, nonce)
		if err != nil {
			t.Fatalf("Open(%d bytes): %v", len(plaintext), err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round trip of %d bytes: got %d bytes back", len(plaintext), len(got))
		}
	}
}

func TestSessionCipherNonceCounter(t *testing.T) {
	sealer, err := newSessionCipher(testSecret())
	if err != nil {
		t.Fatal(err)
	}

	for want := uint64(0); want < 4; want++ {
		_, nonce, err := sealer.Seal([]byte("tick"))
		if err != nil {
			t.Fatal(err)
		}
		if len(nonce) != gcmNonceSize {
			t.Fatalf("nonce length = %d, want %d", len(nonce), gcmNonceSize)
		}
		for _, b := range nonce[:4] {
			if b != 0 {
				t.Errorf("nonce prefix not zero: % x", nonce[:4])
			}
		}
		if got := binary.BigEndian.Uint64(nonce[4:]); got != want {
			t.Errorf("nonce counter = %d, want %d", got, want)
		}
	}
}

func TestSessionCipherRejectsTamper(t *testing.T) {
	sealer, err := newSessionCipher(testSecret())
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, nonce, err := sealer.Seal([]byte("integrity"))
	if err != nil {
		t.Fatal(err)
	}

	ciphertext[0] ^= 0xff
	if _, err := sealer.Open(ciphertext, nonce); err == nil {
		t.Error("Open accepted tampered ciphertext")
	}
}

func TestSessionCipherSecretLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, err := newSessionCipher(make([]byte, n)); err == nil {
			t.Errorf("newSessionCipher accepted %d-byte secret", n)
		}
	}
}

func TestPadHidesLength(t *testing.T) {
	plaintext := []byte("short")
	padded, err := pad(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if len(padded) < 4+len(plaintext) || len(padded) > 4+len(plaintext)+maxPadTail {
		t.Errorf("padded length = %d, want within [%d, %d]",
			len(padded), 4+len(plaintext), 4+len(plaintext)+maxPadTail)
	}
	got, err := unpad(padded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("unpad = %q, want %q", got, plaintext)
	}
}

func TestUnpadRejectsMalformed(t *testing.T) {
	if _, err := unpad([]byte{0, 0}); err == nil {
		t.Error("unpad accepted a truncated header")
	}
	// Declared length exceeds what follows.
	bad := []byte{0, 0, 0, 10, 'x', 'y'}
	if _, err := unpad(bad); err == nil {
		t.Error("unpad accepted an out-of-range length")
	}
}

func TestChannelCipherRoundTrip(t *testing.T) {
	alice, err := NewChannelCipher("secret-ops", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := NewChannelCipher("secret-ops", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	payload, err := alice.Seal([]byte("rendezvous at dawn"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := bob.Open(payload)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "rendezvous at dawn" {
		t.Errorf("Open = %q", got)
	}
}

func TestChannelCipherWrongPassword(t *testing.T) {
	sealer, err := NewChannelCipher("secret-ops", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	opener, err := NewChannelCipher("secret-ops", "letmein")
	if err != nil {
		t.Fatal(err)
	}

	payload, err := sealer.Seal([]byte("rendezvous at dawn"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := opener.Open(payload); err == nil {
		t.Error("Open succeeded with the wrong password")
	}
	if _, err := opener.Open([]byte("tiny")); err == nil {
		t.Error("Open accepted a payload shorter than the nonce")
	}
}
