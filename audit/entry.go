package audit

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RiskLevel classifies entry severity for alerting and compliance scoring.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Category groups entries by the kind of activity they record.
type Category string

const (
	CategoryAuth     Category = "authentication"
	CategoryMFA      Category = "mfa"
	CategoryAccess   Category = "data_access"
	CategoryAdmin    Category = "administration"
	CategorySecurity Category = "security"
)

// Entry is one immutable audit record. IDs are ULIDs so the log sorts by
// creation time.
type Entry struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource,omitempty"`
	ResourceID string            `json:"resourceId,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Success    bool              `json:"success"`
	RiskLevel  RiskLevel         `json:"riskLevel"`
	Category   Category          `json:"category"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewID mints a time-ordered entry id.
func NewID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}

// sensitiveTerms marks detail keys whose values must never be stored.
var sensitiveTerms = []string{"password", "token", "secret", "key", "credential"}

// Redact replaces the values of sensitive detail keys. The input map is not
// modified.
func Redact(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = v
		lower := strings.ToLower(k)
		for _, term := range sensitiveTerms {
			if strings.Contains(lower, term) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

// InferRisk assigns a risk level from the action and outcome when the caller
// did not set one explicitly.
func InferRisk(action string, success bool) RiskLevel {
	a := strings.ToLower(action)
	switch {
	case strings.Contains(a, "threat"), strings.Contains(a, "blocked"),
		strings.Contains(a, "lockout"), strings.Contains(a, "locked"):
		return RiskCritical
	case strings.Contains(a, "delete"), strings.Contains(a, "admin"),
		strings.Contains(a, "role"), strings.Contains(a, "reset"):
		return RiskHigh
	case !success:
		return RiskMedium
	default:
		return RiskLow
	}
}
