package engine

import (
	"context"
	"time"
)

// maybeRefreshProfiles opportunistically refreshes every identity observed
// in an extracted record whose cached profile is missing or stale. Refreshes
// are best effort and deduplicated while in flight; they run outside the
// item fetch channels.
func (e *Engine) maybeRefreshProfiles(identities []string) {
	for _, identity := range identities {
		if !usableActor(identity) {
			continue
		}
		if e.session.ProfileFresh(identity, e.cfg.ProfileRefreshInterval) {
			continue
		}
		e.refreshProfileAsync(identity)
	}
}

func (e *Engine) refreshProfileAsync(identity string) {
	e.mu.Lock()
	if _, busy := e.profileInFlight[identity]; busy {
		e.mu.Unlock()
		return
	}
	e.profileInFlight[identity] = struct{}{}
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.profileInFlight, identity)
			e.mu.Unlock()
		}()
		e.refreshProfile(identity)
	}()
}

func (e *Engine) refreshProfile(identity string) {
	doc, err := e.fetcher.Fetch(context.Background(), e.profileURL(identity))
	if err != nil {
		e.log.Debug("profile fetch failed", "identity", identity, "err", err)
		return
	}
	pf, err := e.oracles.Profile.ExtractProfile(doc)
	if err != nil {
		e.log.Debug("profile extraction failed", "identity", identity, "err", err)
		return
	}
	e.session.RecordProfile(identity, pf.Name, pf.TotalCredits)
	e.metrics.IncProfileRefreshes()
}

// ForceRefreshProfiles re-fetches every cached profile, bypassing the
// refresh interval, paced one per second. Returns the number scheduled.
func (e *Engine) ForceRefreshProfiles() int {
	identities := e.session.ProfileIdentities()
	go func() {
		for _, identity := range identities {
			e.refreshProfile(identity)
			time.Sleep(time.Second)
		}
	}()
	return len(identities)
}
