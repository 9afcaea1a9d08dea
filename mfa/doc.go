// Package mfa implements multi-factor authentication for the MaintainPro auth
// core: TOTP enrollment and verification, single-use backup codes, and
// SMS/email one-time codes.
//
// Secrets at rest are sealed with AES-256-GCM; backup codes are stored as
// SHA-256 digests of the normalized code and a consumed code can never verify
// again. Delivery of SMS/email codes goes through the Sender seam; the
// package never talks to a carrier or mail server itself.
package mfa
