package password

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Policy bounds what a password must look like before strength scoring runs.
type Policy struct {
	MinLength           int
	MaxLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireDigit        bool
	RequireSymbol       bool
	MaxRepeatRun        int // longest allowed run of one repeated character
	MinScore            int // 0..100, entropy-derived
	PreviousHashCount   int // size of the reuse ring, informational
	ForbidUserSubstring bool
}

// DefaultPolicy mirrors the production MaintainPro deployment settings.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:           8,
		MaxLength:           128,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireDigit:        true,
		RequireSymbol:       true,
		MaxRepeatRun:        3,
		MinScore:            50,
		PreviousHashCount:   5,
		ForbidUserSubstring: true,
	}
}

// UserInfo carries the identity attributes a password may not contain.
type UserInfo struct {
	Email     string
	FirstName string
	LastName  string
}

// Result is the outcome of Validate. Valid requires an empty Errors list and
// Score >= Policy.MinScore.
type Result struct {
	Valid    bool
	Score    int
	Errors   []string
	Feedback []string
}

// Validate checks password against the policy, the user's identity attributes,
// and the previous-hash reuse ring. It never returns an error: all violations
// are reported through the Result.
//
// Reuse detection runs the full KDF against each ring entry, so callers should
// treat Validate as roughly as expensive as ring-size password verifications.
func Validate(password string, info UserInfo, previousHashes []string, hasher *Hasher, policy Policy) Result {
	res := Result{}

	if policy.MinLength > 0 && len(password) < policy.MinLength {
		res.Errors = append(res.Errors, fmt.Sprintf("password must be at least %d characters", policy.MinLength))
	}
	if policy.MaxLength > 0 && len(password) > policy.MaxLength {
		res.Errors = append(res.Errors, fmt.Sprintf("password must be at most %d characters", policy.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if policy.RequireUppercase && !hasUpper {
		res.Errors = append(res.Errors, "password must contain an uppercase letter")
	}
	if policy.RequireLowercase && !hasLower {
		res.Errors = append(res.Errors, "password must contain a lowercase letter")
	}
	if policy.RequireDigit && !hasDigit {
		res.Errors = append(res.Errors, "password must contain a digit")
	}
	if policy.RequireSymbol && !hasSymbol {
		res.Errors = append(res.Errors, "password must contain a symbol")
	}

	if policy.MaxRepeatRun > 0 && longestRepeatRun(password) > policy.MaxRepeatRun {
		res.Errors = append(res.Errors, fmt.Sprintf("password may not repeat one character more than %d times in a row", policy.MaxRepeatRun))
	}

	if policy.ForbidUserSubstring {
		for _, fragment := range identityFragments(info) {
			if strings.Contains(strings.ToLower(password), fragment) {
				res.Errors = append(res.Errors, "password may not contain your name or email")
				break
			}
		}
	}

	if hasher != nil {
		for _, prev := range previousHashes {
			if hasher.Verify(password, prev) {
				res.Errors = append(res.Errors, fmt.Sprintf("password matches one of your last %d passwords", policy.PreviousHashCount))
				break
			}
		}
	}

	res.Score = Score(password)
	if res.Score < policy.MinScore {
		res.Errors = append(res.Errors, "password is too predictable")
		res.Feedback = append(res.Feedback, "use a longer passphrase with unrelated words")
	}
	if res.Score < 80 && len(res.Feedback) == 0 {
		res.Feedback = append(res.Feedback, "adding length improves strength more than substitutions")
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// Score estimates password strength on a 0..100 scale from the effective
// charset and the length of the non-repetitive portion.
func Score(password string) int {
	if password == "" {
		return 0
	}

	var charset float64
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if hasUpper {
		charset += 26
	}
	if hasLower {
		charset += 26
	}
	if hasDigit {
		charset += 10
	}
	if hasSymbol {
		charset += 33
	}

	// Repeated blocks buy almost no entropy: "Aa1!Aa1!Aa1!" is as weak as
	// its 4-character seed, so length is discounted to the distinct prefix
	// when the password is a cycle of it.
	effectiveLen := float64(cycleLength(password))
	bits := effectiveLen * math.Log2(charset)

	// 72 bits and beyond maps to 100.
	score := int(bits * 100 / 72)
	if score > 100 {
		score = 100
	}
	return score
}

func longestRepeatRun(s string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// cycleLength returns the length of the shortest prefix that reproduces s by
// repetition, or len(s) when s is not cyclic.
func cycleLength(s string) int {
	n := len(s)
	for p := 1; p <= n/2; p++ {
		if n%p != 0 {
			continue
		}
		if strings.Repeat(s[:p], n/p) == s {
			return p
		}
	}
	return n
}

func identityFragments(info UserInfo) []string {
	var fragments []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if len(v) >= 3 {
			fragments = append(fragments, v)
		}
	}
	if at := strings.IndexByte(info.Email, '@'); at > 0 {
		add(info.Email[:at])
	}
	add(info.FirstName)
	add(info.LastName)
	return fragments
}
