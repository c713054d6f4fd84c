package internal

import (
	"testing"
)

func TestSessionHashDigestRoundTrip(t *testing.T) {
	hash, digest, err := NewSessionHash()
	if err != nil {
		t.Fatalf("NewSessionHash: %v", err)
	}
	if len(hash) != 2*sessionHashSize {
		t.Fatalf("unexpected hash length %d", len(hash))
	}

	got, err := DigestSessionHash(hash)
	if err != nil {
		t.Fatalf("DigestSessionHash: %v", err)
	}
	if got != digest {
		t.Fatal("digest mismatch")
	}
}

func TestDigestSessionHashRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "zz", "abcd", string(make([]byte, 64))} {
		if _, err := DigestSessionHash(in); err != ErrInvalidSessionHash {
			t.Fatalf("input %q: expected ErrInvalidSessionHash, got %v", in, err)
		}
	}
}

func TestNewOTPDigits(t *testing.T) {
	for _, n := range []int{4, 6, 10} {
		code, err := NewOTP(n)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", n, err)
		}
		if len(code) != n {
			t.Fatalf("expected %d digits, got %q", n, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}

	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for 3 digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}
}

func FuzzDigestSessionHash(f *testing.F) {
	hash, _, _ := NewSessionHash()
	f.Add(hash)
	f.Add("")
	f.Add("00")
	f.Fuzz(func(t *testing.T, in string) {
		_, _ = DigestSessionHash(in)
	})
}
