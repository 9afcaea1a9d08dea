// Package audit records security-relevant events for the MaintainPro auth
// core in an append-only, retention-bounded log.
//
// Logging is asynchronous: the caller hands an entry to a buffered dispatcher
// and continues; a saturated buffer drops the entry, counts the drop, and
// reports it on a fallback channel so audit failure never fails the guarded
// action. Sensitive detail fields are redacted before an entry is accepted.
package audit
