package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/maintainpro/authcore/mfa"
)

// SetupMFA starts enrollment for the chosen factor. The returned secret and
// backup codes are shown exactly once; MFA stays disabled until EnableMFA
// confirms a code. SMS enrollment requires a phone number and delivers the
// confirmation code immediately.
func (e *Engine) SetupMFA(ctx context.Context, userID string, factor mfa.Type, phoneNumber string) (*MFASetup, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	if factor == "" {
		factor = mfa.TypeTOTP
	}

	var (
		setup MFASetup
		cfg   mfa.Config
	)
	switch factor {
	case mfa.TypeTOTP:
		enrollment, totpCfg, err := e.mfaSvc.GenerateTOTP(user.ID, user.Email)
		if err != nil {
			return nil, fmt.Errorf("generate totp: %w", err)
		}
		cfg = totpCfg
		setup = MFASetup{
			Secret:      enrollment.Secret,
			OTPAuthURI:  enrollment.OTPAuthURI,
			QRCodeURL:   enrollment.QRCodeURL,
			BackupCodes: enrollment.BackupCodes,
		}
	case mfa.TypeSMS, mfa.TypeEmail:
		if factor == mfa.TypeSMS && phoneNumber == "" {
			return nil, fmt.Errorf("%w: phone number required for sms enrollment", ErrInvalidRequest)
		}
		codes, records, err := mfa.GenerateBackupCodes(mfa.DefaultBackupCodeCount)
		if err != nil {
			return nil, fmt.Errorf("generate backup codes: %w", err)
		}
		cfg = mfa.Config{
			UserID:      user.ID,
			Type:        factor,
			PhoneNumber: phoneNumber,
			BackupCodes: records,
		}
		setup = MFASetup{BackupCodes: codes}

		pending := user
		pending.MFA = &cfg
		if err := e.issueChallenge(ctx, pending); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown mfa type %q", ErrInvalidRequest, factor)
	}

	if err := e.users.UpdateMFA(ctx, user.ID, &cfg); err != nil {
		return nil, fmt.Errorf("persist mfa config: %w", err)
	}

	e.auditor.LogMFAEvent(ctx, user.ID, "mfa_setup_started", "", true, map[string]string{
		"method": string(factor),
	})
	return &setup, nil
}

// EnableMFA completes enrollment by proving the user controls the factor,
// either an authenticator code for the stored secret or the delivered
// challenge code.
func (e *Engine) EnableMFA(ctx context.Context, userID, code string) error {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if user.MFA == nil {
		return ErrMFANotEnabled
	}

	var ok bool
	switch user.MFA.Type {
	case mfa.TypeTOTP:
		if user.MFA.SealedSecret == "" {
			return ErrMFANotEnabled
		}
		ok, err = e.mfaSvc.VerifyTOTP(code, user.MFA.SealedSecret)
		if err != nil {
			return fmt.Errorf("verify totp: %w", err)
		}
	case mfa.TypeSMS, mfa.TypeEmail:
		ok, err = e.mfaChal.Verify(userID, user.MFA.Type, code)
		if err != nil && !errors.Is(err, mfa.ErrChallengeNotFound) {
			return fmt.Errorf("verify challenge: %w", err)
		}
	default:
		return fmt.Errorf("unknown mfa type %q", user.MFA.Type)
	}
	if !ok {
		e.countMFA(string(user.MFA.Type), "failure")
		e.auditor.LogMFAEvent(ctx, userID, "mfa_enable_failed", "", false, nil)
		return ErrInvalidMFAToken
	}

	cfg := *user.MFA
	cfg.Enabled = true
	if err := e.users.UpdateMFA(ctx, userID, &cfg); err != nil {
		return fmt.Errorf("persist mfa config: %w", err)
	}

	e.countMFA(string(user.MFA.Type), "enabled")
	e.auditor.LogMFAEvent(ctx, userID, "mfa_enabled", "", true, nil)
	return nil
}

// DisableMFA turns MFA off after the user reauthenticates with a password.
func (e *Engine) DisableMFA(ctx context.Context, userID, currentPassword string) error {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if user.MFA == nil || !user.MFA.Enabled {
		return ErrMFANotEnabled
	}

	ok, err := e.verifyPassword(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.auditor.LogMFAEvent(ctx, userID, "mfa_disable_failed", "", false, nil)
		return ErrInvalidCredentials
	}

	if err := e.users.UpdateMFA(ctx, userID, nil); err != nil {
		return fmt.Errorf("persist mfa config: %w", err)
	}
	e.auditor.LogMFAEvent(ctx, userID, "mfa_disabled", "", true, nil)
	return nil
}

// RegenerateBackupCodes replaces the user's backup codes. Requires MFA to
// be enabled already.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if user.MFA == nil || !user.MFA.Enabled {
		return nil, ErrMFANotEnabled
	}

	codes, records, err := mfa.GenerateBackupCodes(mfa.DefaultBackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	cfg := *user.MFA
	cfg.BackupCodes = records
	if err := e.users.UpdateMFA(ctx, userID, &cfg); err != nil {
		return nil, fmt.Errorf("persist mfa config: %w", err)
	}

	e.auditor.LogMFAEvent(ctx, userID, "mfa_backup_codes_regenerated", "", true, nil)
	return codes, nil
}
