package audit

import (
	"context"
	"time"
)

// Stats aggregates a time window of the log for dashboards.
type Stats struct {
	TotalEvents   int               `json:"totalEvents"`
	FailedLogins  int               `json:"failedLogins"`
	HighRiskCount int               `json:"highRiskCount"`
	ByCategory    map[Category]int  `json:"byCategory"`
	ByRiskLevel   map[RiskLevel]int `json:"byRiskLevel"`
	TopActions    []ActionCount     `json:"topActions"`
	UniqueUsers   int               `json:"uniqueUsers"`
	UniqueIPs     int               `json:"uniqueIPs"`
}

type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// ComputeStats scans the window [since, now] and aggregates counters.
func ComputeStats(ctx context.Context, st Store, since time.Time) (Stats, error) {
	entries, _, err := st.Query(ctx, Filter{Since: since, PageSize: 1 << 30})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		ByCategory:  make(map[Category]int),
		ByRiskLevel: make(map[RiskLevel]int),
	}
	users := make(map[string]struct{})
	ips := make(map[string]struct{})
	actions := make(map[string]int)

	for _, e := range entries {
		stats.TotalEvents++
		stats.ByCategory[e.Category]++
		stats.ByRiskLevel[e.RiskLevel]++
		actions[e.Action]++
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
		if e.IPAddress != "" {
			ips[e.IPAddress] = struct{}{}
		}
		if !e.Success && e.Category == CategoryAuth {
			stats.FailedLogins++
		}
		if e.RiskLevel == RiskHigh || e.RiskLevel == RiskCritical {
			stats.HighRiskCount++
		}
	}
	stats.UniqueUsers = len(users)
	stats.UniqueIPs = len(ips)

	for a, c := range actions {
		stats.TopActions = append(stats.TopActions, ActionCount{Action: a, Count: c})
	}
	sortActionCounts(stats.TopActions)
	if len(stats.TopActions) > 10 {
		stats.TopActions = stats.TopActions[:10]
	}
	return stats, nil
}

func sortActionCounts(acs []ActionCount) {
	for i := 1; i < len(acs); i++ {
		for j := i; j > 0; j-- {
			if acs[j].Count > acs[j-1].Count ||
				(acs[j].Count == acs[j-1].Count && acs[j].Action < acs[j-1].Action) {
				acs[j], acs[j-1] = acs[j-1], acs[j]
			} else {
				break
			}
		}
	}
}

// SecurityAlerts returns the recent high and critical risk entries,
// newest first, capped at limit.
func SecurityAlerts(ctx context.Context, st Store, since time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	high, _, err := st.Query(ctx, Filter{Since: since, RiskLevel: RiskHigh, PageSize: limit})
	if err != nil {
		return nil, err
	}
	crit, _, err := st.Query(ctx, Filter{Since: since, RiskLevel: RiskCritical, PageSize: limit})
	if err != nil {
		return nil, err
	}
	merged := append(crit, high...)
	// Both inputs are newest first; one pass keeps the merge ordered.
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].Timestamp.After(merged[j-1].Timestamp); j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
