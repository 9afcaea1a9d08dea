// Package password implements credential hashing and password policy
// enforcement for the MaintainPro auth core.
//
// Hashing uses argon2id with a per-password random salt and a process-wide
// pepper mixed in through HMAC-SHA256 before the KDF runs. Hashes are stored
// in PHC string format so cost parameters travel with the hash and can be
// upgraded transparently on login.
//
// Policy validation never returns an error: callers always receive a
// structured Result listing every violation, plus a strength score, so a
// policy-compliant but guessable password can still be rejected.
package password
