package mfa

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Type discriminates the MFA channel configured for a user.
type Type string

const (
	// TypeTOTP is authenticator-app time-based codes.
	TypeTOTP Type = "totp"
	// TypeSMS is one-time codes delivered by text message.
	TypeSMS Type = "sms"
	// TypeEmail is one-time codes delivered by email.
	TypeEmail Type = "email"
)

// Config is a user's MFA enrollment. At most one per user; created disabled
// by setup and flipped to enabled only after a successful verification
// round-trip.
type Config struct {
	UserID       string
	Type         Type
	SealedSecret string // AEAD-sealed base32 TOTP secret
	BackupCodes  []BackupCode
	PhoneNumber  string
	Enabled      bool
}

// Enrollment is the artifact handed to the user during TOTP setup. The
// plaintext secret and backup codes appear here exactly once.
type Enrollment struct {
	Secret      string
	OTPAuthURI  string
	QRCodeURL   string
	BackupCodes []string
}

// Service generates and verifies MFA credentials. Immutable after
// construction and safe for concurrent use.
type Service struct {
	issuer string
	sealer *Sealer
}

// NewService builds a Service. issuer labels provisioning URIs; sealer
// protects secrets at rest.
func NewService(issuer string, sealer *Sealer) (*Service, error) {
	if issuer == "" {
		return nil, errors.New("mfa issuer is required")
	}
	if sealer == nil {
		return nil, errors.New("mfa sealer is required")
	}
	return &Service{issuer: issuer, sealer: sealer}, nil
}

// GenerateTOTP produces a fresh secret, provisioning URI, QR URL, and backup
// code batch for account, plus the disabled Config to persist.
func (s *Service) GenerateTOTP(userID, account string) (Enrollment, Config, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
	})
	if err != nil {
		return Enrollment{}, Config{}, fmt.Errorf("generate totp key: %w", err)
	}

	codes, records, err := GenerateBackupCodes(DefaultBackupCodeCount)
	if err != nil {
		return Enrollment{}, Config{}, err
	}

	sealed, err := s.sealer.Seal([]byte(key.Secret()))
	if err != nil {
		return Enrollment{}, Config{}, err
	}

	enrollment := Enrollment{
		Secret:      key.Secret(),
		OTPAuthURI:  key.URL(),
		QRCodeURL:   qrCodeURL(key.URL()),
		BackupCodes: codes,
	}
	cfg := Config{
		UserID:       userID,
		Type:         TypeTOTP,
		SealedSecret: sealed,
		BackupCodes:  records,
		Enabled:      false,
	}
	return enrollment, cfg, nil
}

// VerifyTOTP validates code against the sealed secret at the current
// time-step with a ±1 step window for clock drift.
func (s *Service) VerifyTOTP(code string, sealedSecret string) (bool, error) {
	return s.verifyTOTPAt(code, sealedSecret, time.Now())
}

func (s *Service) verifyTOTPAt(code, sealedSecret string, at time.Time) (bool, error) {
	secret, err := s.sealer.Open(sealedSecret)
	if err != nil {
		return false, err
	}
	ok, err := totp.ValidateCustom(code, string(secret), at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// CodeForSecret computes the current code for a plaintext base32 secret.
// Intended for enrollment confirmation UIs and tests; verification paths go
// through VerifyTOTP.
func CodeForSecret(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func qrCodeURL(otpauthURI string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data=" + url.QueryEscape(otpauthURI)
}
