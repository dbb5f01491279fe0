package security

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

func TestNewPKCEPairChallengeIsS256OfVerifier(t *testing.T) {
	p := NewPKCEPair()
	raw, err := base64.RawURLEncoding.DecodeString(p.Verifier)
	if err != nil {
		t.Fatalf("verifier must be unpadded base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 verifier bytes, got %d", len(raw))
	}
	sum := sha256.Sum256([]byte(p.Verifier))
	if want := base64.RawURLEncoding.EncodeToString(sum[:]); p.Challenge != want {
		t.Fatalf("challenge mismatch: got %s want %s", p.Challenge, want)
	}
	if strings.ContainsAny(p.Challenge, "+/=") || p.Method != "S256" {
		t.Fatalf("unexpected challenge encoding %+v", p)
	}
}

func TestNewStateIsIndependentHex(t *testing.T) {
	a, err := NewState()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	b, _ := NewState()
	if a == b {
		t.Fatal("expected unique states")
	}
	raw, err := hex.DecodeString(a)
	if err != nil || len(raw) != 16 {
		t.Fatalf("state must be 16 hex-encoded bytes, got %q", a)
	}
	nonce, _ := NewNonce()
	if len(nonce) != 64 {
		t.Fatalf("nonce must be 32 hex-encoded bytes, got %d chars", len(nonce))
	}
}

func TestRandomHexPropagatesReaderFailure(t *testing.T) {
	boom := errors.New("entropy exhausted")
	if _, err := randomHex(iotest.ErrReader(boom), 16); !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
}
