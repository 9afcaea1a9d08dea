package security

import (
	"strings"
	"sync"
	"time"
)

// ThreatLevel classifies the aggregate finding of a threat scan.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// ThreatConfig tunes the detector heuristics. Thresholds are deployment
// configuration, not behavioral contract.
type ThreatConfig struct {
	BlacklistedIPs []string
	SuspiciousIPs  []string
	RateWindow     time.Duration
	RateThreshold  int // requests per IP inside the window before flagging
}

// DefaultThreatConfig mirrors the production MaintainPro deployment.
func DefaultThreatConfig() ThreatConfig {
	return ThreatConfig{
		RateWindow:    time.Minute,
		RateThreshold: 120,
	}
}

// ThreatAssessment is the outcome of one scan. Reasons are itemized for the
// audit trail.
type ThreatAssessment struct {
	Level       ThreatLevel
	ShouldBlock bool
	Suspicious  bool // requires extra verification, non-blocking
	Reasons     []string
}

// Bot and attack-tool user-agent markers. Lowercase substring matches.
var botAgentMarkers = []string{
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"hydra", "curl/", "wget/", "python-requests", "go-http-client",
	"scrapy", "bot", "crawler", "spider",
}

// Script-injection markers scanned for in request payloads.
var injectionMarkers = []string{
	"<script", "javascript:", "onerror=", "onload=", "eval(",
	"union select", "' or '1'='1", "; drop table", "../..",
}

// ThreatDetector composes independent heuristics into one assessment. Safe
// for concurrent use.
type ThreatDetector struct {
	config ThreatConfig

	mu          sync.RWMutex
	blacklisted map[string]struct{}
	suspicious  map[string]struct{}
	requests    map[string][]time.Time // per-IP sliding window
}

// NewThreatDetector builds a detector from config.
func NewThreatDetector(cfg ThreatConfig) *ThreatDetector {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.RateThreshold <= 0 {
		cfg.RateThreshold = 120
	}
	d := &ThreatDetector{
		config:      cfg,
		blacklisted: make(map[string]struct{}, len(cfg.BlacklistedIPs)),
		suspicious:  make(map[string]struct{}, len(cfg.SuspiciousIPs)),
		requests:    make(map[string][]time.Time),
	}
	for _, ip := range cfg.BlacklistedIPs {
		d.blacklisted[ip] = struct{}{}
	}
	for _, ip := range cfg.SuspiciousIPs {
		d.suspicious[ip] = struct{}{}
	}
	return d
}

// IsBlacklisted reports blacklist membership without running a full scan.
func (d *ThreatDetector) IsBlacklisted(ip string) bool {
	d.mu.RLock()
	_, ok := d.blacklisted[ip]
	d.mu.RUnlock()
	return ok
}

// BlacklistIP adds an address at runtime (admin action).
func (d *ThreatDetector) BlacklistIP(ip string) {
	d.mu.Lock()
	d.blacklisted[ip] = struct{}{}
	d.mu.Unlock()
}

// Detect scans one request. requestData is the flattened request payload to
// check for injection markers; pass "" when there is no body.
func (d *ThreatDetector) Detect(ip, userAgent, requestData string) ThreatAssessment {
	a := ThreatAssessment{Level: ThreatNone}
	score := 0

	if d.IsBlacklisted(ip) {
		a.Reasons = append(a.Reasons, "ip blacklisted")
		a.ShouldBlock = true
		score += 100
	}
	d.mu.RLock()
	_, suspect := d.suspicious[ip]
	d.mu.RUnlock()
	if suspect {
		a.Reasons = append(a.Reasons, "ip marked suspicious")
		a.Suspicious = true
		score += 20
	}

	ua := strings.ToLower(userAgent)
	for _, marker := range botAgentMarkers {
		if strings.Contains(ua, marker) {
			a.Reasons = append(a.Reasons, "automated user agent: "+marker)
			score += 30
			break
		}
	}

	if d.recordRequest(ip) {
		a.Reasons = append(a.Reasons, "request rate exceeded")
		score += 40
	}

	payload := strings.ToLower(requestData)
	for _, marker := range injectionMarkers {
		if strings.Contains(payload, marker) {
			a.Reasons = append(a.Reasons, "injection pattern: "+marker)
			a.ShouldBlock = true
			score += 60
			break
		}
	}

	switch {
	case score >= 100:
		a.Level = ThreatCritical
	case score >= 60:
		a.Level = ThreatHigh
	case score >= 40:
		a.Level = ThreatMedium
	case score > 0:
		a.Level = ThreatLow
	}
	if a.Level == ThreatCritical {
		a.ShouldBlock = true
	}
	return a
}

// recordRequest appends to the per-IP sliding window and reports whether the
// rate threshold is exceeded.
func (d *ThreatDetector) recordRequest(ip string) bool {
	if ip == "" {
		return false
	}
	now := time.Now()
	cutoff := now.Add(-d.config.RateWindow)

	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.requests[ip]
	keep := window[:0]
	for _, at := range window {
		if at.After(cutoff) {
			keep = append(keep, at)
		}
	}
	keep = append(keep, now)
	d.requests[ip] = keep
	return len(keep) > d.config.RateThreshold
}

// Sweep drops idle per-IP windows. Run from the periodic cleanup job.
func (d *ThreatDetector) Sweep() int {
	cutoff := time.Now().Add(-d.config.RateWindow)
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for ip, window := range d.requests {
		live := window[:0]
		for _, at := range window {
			if at.After(cutoff) {
				live = append(live, at)
			}
		}
		if len(live) == 0 {
			delete(d.requests, ip)
			removed++
		} else {
			d.requests[ip] = live
		}
	}
	return removed
}
