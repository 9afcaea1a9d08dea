// Package jwt issues and verifies the access/refresh token pair used by the
// MaintainPro auth core.
//
// Access and refresh tokens are signed with independent HMAC secrets and carry
// an explicit "typ" claim, so a refresh token can never be replayed where an
// access token is expected (or the reverse) even if one secret leaks into the
// other verifier. Expired tokens and malformed tokens surface as distinct
// error kinds: callers use expiry to trigger a silent refresh and anything
// else to force a re-login.
package jwt
