package engine

import "fmt"

// GrowthNotAvailable is reported when a participant's history is too short
// to attribute metric growth. Never a guessed number.
const GrowthNotAvailable = "N/A"

// ParticipantStats is the per-participant aggregate over one window.
type ParticipantStats struct {
	Identity        string `json:"identity"`
	Name            string `json:"name,omitempty"`
	ShareCount      int    `json:"share_count"`
	ShareCredits    int64  `json:"share_credits"`
	PresenceCount   int    `json:"presence_count"`
	PresenceCredits int64  `json:"presence_credits"`
	GrowthPercent   string `json:"growth_percent"`
}

// Aggregate folds items and profiles into per-participant totals for the
// window. Pure read-side projection: inputs are not mutated.
//
// Share credit goes to the accepting participant; presence credit is the
// full item reward for every present participant, not divided.
func Aggregate(items []Item, profiles map[string]Profile, w Window) map[string]*ParticipantStats {
	out := make(map[string]*ParticipantStats)
	get := func(identity string) *ParticipantStats {
		s, ok := out[identity]
		if !ok {
			s = &ParticipantStats{Identity: identity, GrowthPercent: GrowthNotAvailable}
			if p, ok := profiles[identity]; ok {
				s.Name = p.Name
			}
			out[identity] = s
		}
		return s
	}

	for i := range items {
		it := &items[i]
		if !w.Contains(it.DiscoveredAt) {
			continue
		}
		if it.AcceptedBy != "" {
			s := get(it.AcceptedBy)
			s.ShareCount++
			s.ShareCredits += int64(it.Reward)
		}
		for _, identity := range it.Participants {
			s := get(identity)
			s.PresenceCount++
			s.PresenceCredits += int64(it.Reward)
		}
	}

	for identity, s := range out {
		p, ok := profiles[identity]
		if !ok || len(p.History) < 2 {
			continue
		}
		s.GrowthPercent = growthPercent(p, s.PresenceCredits, w)
	}
	return out
}

// growthPercent attributes presence credits to the participant's metric
// growth since the window start. Baseline is the latest snapshot at or
// before w.Start; if none precede the window the current metric is used,
// which yields zero growth.
func growthPercent(p Profile, presenceCredits int64, w Window) string {
	baseline := p.CurrentMetric
	for i := len(p.History) - 1; i >= 0; i-- {
		if !p.History[i].At.After(w.Start) {
			baseline = p.History[i].Value
			break
		}
	}
	totalGrowth := p.CurrentMetric - baseline
	if totalGrowth <= 0 {
		return "0%"
	}
	pct := float64(presenceCredits) / float64(totalGrowth) * 100
	return fmt.Sprintf("%.1f%%", pct)
}
