package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound reports a session id with no row.
	ErrNotFound = errors.New("session not found")
	// ErrInactive reports a session that was explicitly terminated.
	ErrInactive = errors.New("session inactive")
	// ErrExpired reports a session past its expiry. Validation tears the row
	// down as a side effect before returning this.
	ErrExpired = errors.New("session expired")
)

// DeviceInfo describes the client behind a request: the network context the
// transport supplies plus the fingerprint parsed from the user agent.
// ParseUserAgent fills only the fingerprint fields.
type DeviceInfo struct {
	IPAddress string `json:"ipAddress,omitempty"`
	Location  string `json:"location,omitempty"`
	UserAgent string `json:"userAgent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	Device    string `json:"device"`
	Mobile    bool   `json:"mobile"`
}

// Session is one authenticated presence of a user.
type Session struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Device         DeviceInfo `json:"device"`
	IPAddress      string     `json:"ipAddress"`
	Location       string     `json:"location,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
