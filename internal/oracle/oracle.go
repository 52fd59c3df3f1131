// Package oracle turns raw fetched documents into typed facts.
//
// The engine never inspects document bytes itself; it depends only on the
// small capability interfaces below. HTMLOracle is the production
// implementation; tests plug in synthetic oracles.
package oracle

import (
	"missiontracker/internal/fetch"
)

// UnknownActor is the sentinel "accepting actor could not be determined"
// value. An extraction whose AcceptedBy is empty or equals this sentinel
// never produces an Active record.
const UnknownActor = "unknown"

// Extraction is the partial record pulled from one item detail document.
type Extraction struct {
	Title        string
	Address      string
	AcceptedBy   string
	Participants []string
	Reward       int
	Completed    bool
}

// ProfileFields is the record pulled from one participant profile document.
type ProfileFields struct {
	Name         string
	TotalCredits int64
}

// CompletionOracle classifies a detail document as done or not.
type CompletionOracle interface {
	Completed(doc *fetch.Document) bool
}

// ExtractionOracle produces structured fields from a detail document.
type ExtractionOracle interface {
	Extract(doc *fetch.Document) (Extraction, error)
}

// ListingOracle finds candidate item identifiers on a listing document.
type ListingOracle interface {
	ScanIdentifiers(doc *fetch.Document) []string
}

// RewardOracle reads the refined reward value from a secondary document.
type RewardOracle interface {
	ExtractReward(doc *fetch.Document) (int, bool)
}

// ProfileOracle reads a participant's cumulative metric from a profile
// document.
type ProfileOracle interface {
	ExtractProfile(doc *fetch.Document) (ProfileFields, error)
}
