package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

type PKCEPair struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCEPair returns a 32-byte base64url (unpadded) verifier and its S256
// challenge.
func NewPKCEPair() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    "S256",
	}
}

// NewState returns 16 random bytes hex-encoded. It is drawn independently of
// the PKCE verifier.
func NewState() (string, error) {
	return randomHex(rand.Reader, 16)
}

// NewNonce returns the 32-byte hex nonce used for OAuth1.0a requests.
func NewNonce() (string, error) {
	return randomHex(rand.Reader, 32)
}

func randomHex(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
