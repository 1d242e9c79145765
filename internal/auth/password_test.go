package auth

import (
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$") {
		t.Errorf("hash %q missing expected PHC prefix", hash)
	}
	if !CheckPasswordHash("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("hunter3", hash) {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	first, err := HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	second, err := HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("two hashes of the same password are identical; salt not random")
	}
	if !CheckPasswordHash("same", first) || !CheckPasswordHash("same", second) {
		t.Error("hash verification failed for one of the salted hashes")
	}
}

func TestCheckPasswordHashMalformed(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=banana,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA",
	}
	for _, encoded := range cases {
		if CheckPasswordHash("whatever", encoded) {
			t.Errorf("malformed hash %q verified", encoded)
		}
	}
}
