package engine

import "time"

// LifecycleState is an item's tracking state. Completed items are immutable
// except for retention deletion and are never rescanned.
type LifecycleState string

const (
	StateActive    LifecycleState = "active"
	StateCompleted LifecycleState = "completed"
)

// Completion reasons recorded on the transition to StateCompleted.
const (
	ReasonCompletedAtIngest    = "completed at first sight"
	ReasonDetectedDuringRescan = "detected during rescan"
	ReasonNetworkError         = "network error, presumed completed"
)

// Item is one unit of trackable remote work.
type Item struct {
	ID               string         `json:"id"`
	URL              string         `json:"url,omitempty"`
	Title            string         `json:"title,omitempty"`
	Address          string         `json:"address,omitempty"`
	DiscoveredAt     time.Time      `json:"discovered_at"`
	State            LifecycleState `json:"state"`
	CompletedAt      time.Time      `json:"completed_at,omitzero"`
	CompletionReason string         `json:"completion_reason,omitempty"`
	AcceptedBy       string         `json:"accepted_by,omitempty"`
	Participants     []string       `json:"participants,omitempty"`
	Reward           int            `json:"reward"`
	LastRescanAt     time.Time      `json:"last_rescan_at,omitzero"`
}

func (it *Item) clone() Item {
	cp := *it
	cp.Participants = append([]string(nil), it.Participants...)
	return cp
}

// MetricSnapshot is one (timestamp, value) observation of a participant's
// cumulative metric.
type MetricSnapshot struct {
	At    time.Time `json:"at"`
	Value int64     `json:"value"`
}

// Profile is the cached metric series for one participant. History is
// append-only, capped, and only grows when the metric actually changes.
type Profile struct {
	Identity        string           `json:"identity"`
	Name            string           `json:"name,omitempty"`
	CurrentMetric   int64            `json:"current_metric"`
	LastRefreshedAt time.Time        `json:"last_refreshed_at"`
	History         []MetricSnapshot `json:"history,omitempty"`
}

func (p *Profile) clone() Profile {
	cp := *p
	cp.History = append([]MetricSnapshot(nil), p.History...)
	return cp
}
