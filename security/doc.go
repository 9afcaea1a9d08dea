// Package security implements brute-force and threat defense for the
// MaintainPro auth core: failed-login lockouts, IP and payload threat
// heuristics, keyed sliding-window rate limiting, CSRF tokens, and the
// standard security response headers.
//
// The lockout tracker and the rate limiter are deliberately independent
// mechanisms: lockouts protect one account identifier across sources, rate
// limits protect the service from one source across accounts.
package security
