package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultBackupCodeCount is the batch size issued at enrollment.
	DefaultBackupCodeCount = 10
	// RegenerateThreshold is the unused-code count at which a fresh batch
	// should be issued.
	RegenerateThreshold = 3

	backupCodeBytes = 5 // 10 hex characters, shown as xxxxx-xxxxx
)

// BackupCode is the stored form of one code: a digest plus a consumed flag.
// The plaintext code exists only in the enrollment response.
type BackupCode struct {
	Hash string
	Used bool
}

// GenerateBackupCodes returns n plaintext codes for display and the matching
// digest records for storage.
func GenerateBackupCodes(n int) ([]string, []BackupCode, error) {
	if n <= 0 {
		n = DefaultBackupCodeCount
	}
	codes := make([]string, 0, n)
	records := make([]BackupCode, 0, n)
	for i := 0; i < n; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		plain := hex.EncodeToString(raw)
		display := plain[:5] + "-" + plain[5:]
		codes = append(codes, display)
		records = append(records, BackupCode{Hash: hashBackupCode(display)})
	}
	return codes, records, nil
}

// VerifyBackupCode matches candidate against the unused records. On success
// it returns true and an updated slice with the matched entry irrevocably
// marked used; the input slice is not modified. A consumed code never
// verifies again.
func VerifyBackupCode(candidate string, records []BackupCode) (bool, []BackupCode) {
	digest := hashBackupCode(candidate)

	matched := -1
	for i, rec := range records {
		// Constant-time digest comparison across the whole list.
		if subtle.ConstantTimeCompare([]byte(digest), []byte(rec.Hash)) == 1 && !rec.Used && matched < 0 {
			matched = i
		}
	}
	if matched < 0 {
		return false, records
	}

	updated := make([]BackupCode, len(records))
	copy(updated, records)
	updated[matched].Used = true
	return true, updated
}

// ShouldRegenerate reports whether unused codes have dropped to the
// regeneration threshold.
func ShouldRegenerate(records []BackupCode) bool {
	unused := 0
	for _, rec := range records {
		if !rec.Used {
			unused++
		}
	}
	return unused <= RegenerateThreshold
}

// hashBackupCode digests the case/space/hyphen-normalized code.
func hashBackupCode(code string) string {
	normalized := strings.ToLower(code)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
