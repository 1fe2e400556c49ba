package security

import "testing"

func TestSealer_SealOpen(t *testing.T) {
	s, err := NewSealer("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := s.Seal("eyJhbGciOi.token")
	if err != nil {
		t.Fatal(err)
	}
	if !IsSealed(sealed) || sealed == "eyJhbGciOi.token" {
		t.Fatalf("value not sealed: %q", sealed)
	}
	again, _ := s.Seal("eyJhbGciOi.token")
	if again == sealed {
		t.Error("nonce reuse: identical ciphertexts")
	}
	got, err := s.Open(sealed)
	if err != nil || got != "eyJhbGciOi.token" {
		t.Fatalf("Open = %q, %v", got, err)
	}
}

func TestSealer_OpenPlaintextAndWrongKey(t *testing.T) {
	s, _ := NewSealer("k1")
	if got, err := s.Open("plain-token"); err != nil || got != "plain-token" {
		t.Errorf("plain passthrough = %q, %v", got, err)
	}
	sealed, _ := s.Seal("secret")
	other, _ := NewSealer("k2")
	if _, err := other.Open(sealed); err == nil {
		t.Error("expected wrong key to fail")
	}
	if _, err := NewSealer(""); err == nil {
		t.Error("expected empty passphrase to be rejected")
	}
}
