package mfa

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) *Service {
	t.Helper()
	sealer, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	svc, err := NewService("MaintainPro", sealer)
	require.NoError(t, err)
	return svc
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestGenerateTOTPEnrollment(t *testing.T) {
	svc := testService(t)

	enrollment, cfg, err := svc.GenerateTOTP("u-1", "technician@maintainpro.com")
	require.NoError(t, err)

	require.NotEmpty(t, enrollment.Secret)
	require.True(t, strings.HasPrefix(enrollment.OTPAuthURI, "otpauth://totp/"))
	require.Contains(t, enrollment.QRCodeURL, "qr")
	require.Len(t, enrollment.BackupCodes, DefaultBackupCodeCount)

	require.False(t, cfg.Enabled, "enrollment must start disabled")
	require.Equal(t, TypeTOTP, cfg.Type)
	require.NotEqual(t, enrollment.Secret, cfg.SealedSecret, "stored secret must be sealed")
}

func TestVerifyTOTPWindow(t *testing.T) {
	svc := testService(t)
	enrollment, cfg, err := svc.GenerateTOTP("u-1", "technician@maintainpro.com")
	require.NoError(t, err)

	now := time.Now()

	current := codeAt(t, enrollment.Secret, now)
	ok, err := svc.VerifyTOTP(current, cfg.SealedSecret)
	require.NoError(t, err)
	require.True(t, ok, "current-step code must verify")

	// One step behind still falls inside the ±1 window.
	previous := codeAt(t, enrollment.Secret, now.Add(-30*time.Second))
	ok, err = svc.VerifyTOTP(previous, cfg.SealedSecret)
	require.NoError(t, err)
	require.True(t, ok, "previous-step code must verify inside the window")

	// Three steps out is always outside ±1.
	stale := codeAt(t, enrollment.Secret, now.Add(-90*time.Second))
	ok, err = svc.VerifyTOTP(stale, cfg.SealedSecret)
	require.NoError(t, err)
	require.False(t, ok, "code outside the window must fail")

	ok, err = svc.VerifyTOTP("000000", cfg.SealedSecret)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackupCodeSingleUse(t *testing.T) {
	codes, records, err := GenerateBackupCodes(DefaultBackupCodeCount)
	require.NoError(t, err)
	require.Len(t, codes, DefaultBackupCodeCount)

	ok, updated := VerifyBackupCode(codes[3], records)
	require.True(t, ok, "fresh code must verify")

	ok, _ = VerifyBackupCode(codes[3], updated)
	require.False(t, ok, "consumed code must never verify again")

	// The original slice was not mutated.
	ok, _ = VerifyBackupCode(codes[3], records)
	require.True(t, ok)
}

func TestBackupCodeNormalization(t *testing.T) {
	codes, records, err := GenerateBackupCodes(1)
	require.NoError(t, err)

	sloppy := " " + strings.ToUpper(strings.ReplaceAll(codes[0], "-", " ")) + " "
	sloppy = strings.TrimSpace(sloppy)
	ok, _ := VerifyBackupCode(sloppy, records)
	require.True(t, ok, "case and spacing must not matter")

	ok, _ = VerifyBackupCode("zzzzz-zzzzz", records)
	require.False(t, ok)
}

func TestShouldRegenerate(t *testing.T) {
	_, records, err := GenerateBackupCodes(DefaultBackupCodeCount)
	require.NoError(t, err)
	require.False(t, ShouldRegenerate(records))

	for i := 0; i < DefaultBackupCodeCount-RegenerateThreshold; i++ {
		records[i].Used = true
	}
	require.True(t, ShouldRegenerate(records))
}

func TestSealerRoundTripAndTamper(t *testing.T) {
	sealer, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", string(plain))

	_, err = sealer.Open("AAAA" + sealed[4:])
	require.Error(t, err, "tampered ciphertext must fail authentication")

	_, err = NewSealer([]byte("short"))
	require.Error(t, err)
}

func TestChallengeLifecycle(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	code, err := store.Issue("u-1", TypeSMS)
	require.NoError(t, err)
	require.Len(t, code, 6)

	ok, err := store.Verify("u-1", TypeSMS, "999999")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.Verify("u-1", TypeSMS, code)
	require.NoError(t, err)
	require.True(t, ok)

	// Consumed on success.
	_, err = store.Verify("u-1", TypeSMS, code)
	require.True(t, errors.Is(err, ErrChallengeNotFound))
}

func TestChallengeExpiry(t *testing.T) {
	store := NewChallengeStore(time.Millisecond)
	code, err := store.Issue("u-1", TypeEmail)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = store.Verify("u-1", TypeEmail, code)
	require.True(t, errors.Is(err, ErrChallengeNotFound))

	_, err = store.Issue("u-2", TypeEmail)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, store.Sweep())
}
