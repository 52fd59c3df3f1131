package engine

// Notifier receives informational state-transition events. No engine logic
// depends on what an implementation does with them; a failing or absent
// notifier is ignored.
type Notifier interface {
	Discovered(count int)
	ItemIngested(item Item)
	ItemCompleted(item Item, reason string)
	ParticipantsAdded(item Item, added []string)
	RescanSummary(queued, swept int)
	TrackingChanged(active bool)
}

type nopNotifier struct{}

func (nopNotifier) Discovered(int)                   {}
func (nopNotifier) ItemIngested(Item)                {}
func (nopNotifier) ItemCompleted(Item, string)       {}
func (nopNotifier) ParticipantsAdded(Item, []string) {}
func (nopNotifier) RescanSummary(int, int)           {}
func (nopNotifier) TrackingChanged(bool)             {}
