package password

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const (
	generateUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	generateLower   = "abcdefghijkmnopqrstuvwxyz"
	generateDigits  = "23456789"
	generateSymbols = "!@#$%^&*-_=+"
	resetTokenBytes = 32
)

// Generate produces a cryptographically random password of length n that is
// guaranteed to satisfy the four character-class requirements. n below 12 is
// raised to 12.
func Generate(n int) (string, error) {
	if n < 12 {
		n = 12
	}

	all := generateUpper + generateLower + generateDigits + generateSymbols
	out := make([]byte, n)

	// One pick per class first, the rest from the full alphabet.
	classes := []string{generateUpper, generateLower, generateDigits, generateSymbols}
	for i := range out {
		alphabet := all
		if i < len(classes) {
			alphabet = classes[i]
		}
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}

	// Fisher-Yates so the class-guaranteed picks do not sit at fixed offsets.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}

	return string(out), nil
}

// GenerateResetToken returns a 256-bit hex token for password-reset links.
func GenerateResetToken() (string, error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
