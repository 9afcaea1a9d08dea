package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

// CSRFIssuer mints and checks stateless CSRF tokens bound to a session id.
// Token format: base64(nonce) + "." + base64(HMAC(key, nonce||sessionID)).
type CSRFIssuer struct {
	key []byte
}

// NewCSRFIssuer builds an issuer from a secret of at least 32 bytes.
func NewCSRFIssuer(key []byte) (*CSRFIssuer, error) {
	if len(key) < 32 {
		return nil, errors.New("csrf key must be >= 32 bytes")
	}
	return &CSRFIssuer{key: key}, nil
}

// Issue mints a token for the session.
func (c *CSRFIssuer) Issue(sessionID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(nonce) + "." +
		base64.RawURLEncoding.EncodeToString(c.sign(nonce, sessionID)), nil
}

// Verify checks a token against the session in constant time.
func (c *CSRFIssuer) Verify(token, sessionID string) bool {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(mac, c.sign(nonce, sessionID)) == 1
}

func (c *CSRFIssuer) sign(nonce []byte, sessionID string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(nonce)
	mac.Write([]byte(sessionID))
	return mac.Sum(nil)
}
