// Package notify implements the informational notification collaborator.
// The engine calls it on state transitions; nothing depends on delivery.
package notify

import (
	"log/slog"

	"missiontracker/internal/engine"
)

// Log writes every event as a structured log line.
type Log struct {
	log *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger}
}

func (n *Log) Discovered(count int) {
	n.log.Info("new items found", "count", count)
}

func (n *Log) ItemIngested(item engine.Item) {
	n.log.Info("item ingested",
		"id", item.ID,
		"title", item.Title,
		"accepted_by", item.AcceptedBy,
		"participants", len(item.Participants),
		"reward", item.Reward)
}

func (n *Log) ItemCompleted(item engine.Item, reason string) {
	n.log.Info("item completed", "id", item.ID, "title", item.Title, "reason", reason)
}

func (n *Log) ParticipantsAdded(item engine.Item, added []string) {
	n.log.Info("participants joined", "id", item.ID, "added", added)
}

func (n *Log) RescanSummary(queued, swept int) {
	n.log.Info("rescan cycle", "queued", queued, "swept", swept)
}

func (n *Log) TrackingChanged(active bool) {
	if active {
		n.log.Info("tracking active")
		return
	}
	n.log.Info("tracking stopped")
}
