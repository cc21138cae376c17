package crypto

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if hash == "secret" {
		t.Fatalf("hash must not be the plaintext")
	}
	if err := CheckPassword(hash, "secret"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestPasswordHashingIsSalted(t *testing.T) {
	first, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	second, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
}
