// Package session manages the server-side session lifecycle for the
// MaintainPro auth core: creation with device fingerprinting, validation,
// sliding refresh, explicit termination, and expiry sweeps.
//
// Storage goes through the Store interface with memory and Redis
// implementations. The Manager layers policy on top: a per-user concurrent
// session cap with least-recently-accessed eviction, and a suspicious-location
// heuristic that flags (never blocks) logins arriving from an unusual spread
// of source addresses.
package session
