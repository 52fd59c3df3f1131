package engine

import (
	"context"
	"time"
)

func (e *Engine) rescanLoop(stop <-chan struct{}) {
	defer e.loops.Done()
	t := time.NewTicker(e.cfg.RescanInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.rescanOnce()
		case <-stop:
			return
		}
	}
}

// rescanOnce enqueues every Active item inside the recency window that is
// not already in flight, then occasionally sweeps retention. Active items
// past the window are left alone indefinitely.
func (e *Engine) rescanOnce() {
	queued := 0
	for _, id := range e.session.RescanCandidates(e.cfg.RecencyWindow) {
		if !e.session.EnqueueRescan(id) {
			continue
		}
		queued++
		id := id
		e.rescanGate.Submit(func() { e.rescanItem(id) })
	}
	e.session.SetLastRescan(e.nowFn())

	swept := 0
	if e.randF() < e.cfg.SweepProbability {
		removed := e.session.SweepRetention(e.cfg.RetentionAge)
		swept = len(removed)
		if swept > 0 {
			e.metrics.AddSwept(swept)
			e.log.Info("retention sweep", "removed", swept)
		}
	}

	if queued > 0 || swept > 0 {
		e.notifier.RescanSummary(queued, swept)
	}
}

// rescanItem re-fetches one Active item. A fetch failure is the strongest
// completion signal the source offers: the item is presumed gone and marked
// Completed, never retried. Transient network errors therefore produce
// false positives; accepted, not corrected.
func (e *Engine) rescanItem(id string) {
	defer e.session.DequeueRescan(id)
	e.metrics.IncRescans()

	doc, err := e.fetcher.Fetch(context.Background(), e.itemURL(id))
	if err != nil {
		if e.session.CompleteItem(id, ReasonNetworkError) {
			e.metrics.IncCompletedByNetwork()
			if it, ok := e.session.Item(id); ok {
				e.notifier.ItemCompleted(it, ReasonNetworkError)
			}
			e.log.Info("item presumed completed", "id", id, "err", err)
		}
		return
	}

	// Completion check runs first; a completed item gets no participant diff.
	if e.oracles.Completion.Completed(doc) {
		if e.session.CompleteItem(id, ReasonDetectedDuringRescan) {
			e.metrics.IncCompletedByRescan()
			if it, ok := e.session.Item(id); ok {
				e.notifier.ItemCompleted(it, ReasonDetectedDuringRescan)
			}
		}
		return
	}

	ext, err := e.oracles.Extraction.Extract(doc)
	if err != nil {
		// oracle returned nothing; only the rescan timestamp moves
		e.log.Debug("rescan extraction failed", "id", id, "err", err)
	}
	added, removed, ok := e.session.ApplyRescan(id, ext.Participants)
	if !ok {
		return
	}
	if len(removed) > 0 {
		e.log.Debug("rescan reported absent participants, keeping them", "id", id, "absent", removed)
	}
	if len(added) > 0 {
		e.metrics.AddParticipants(len(added))
		if it, okItem := e.session.Item(id); okItem {
			e.notifier.ParticipantsAdded(it, added)
		}
		e.maybeRefreshProfiles(added)
	}
}
