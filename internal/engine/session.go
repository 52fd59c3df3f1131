package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"missiontracker/internal/store"
)

// Persisted collection keys. Each is one independently written JSON blob.
const (
	keyItems    = "tracker:items"
	keyProfiles = "tracker:profiles"
	keyKnown    = "tracker:known_ids"
	keyState    = "tracker:state"
)

// sessionState holds the persisted scalars.
type sessionState struct {
	Tracking        bool      `json:"tracking"`
	LastDiscoveryAt time.Time `json:"last_discovery_at,omitzero"`
	LastRescanAt    time.Time `json:"last_rescan_at,omitzero"`
	TimeFilter      string    `json:"time_filter,omitempty"`
}

// Session owns all mutable tracking state: the ordered item store, the
// known-identifier set, the profile cache, the pending rescan queue and the
// persisted scalars. Every mutation happens under one mutex and is written
// through to the store, so concurrent fetch callbacks stay race-free.
//
// The known set is a superset of item ids: identifiers are marked known at
// enqueue time so a slow or failed fetch is never rediscovered. It only
// shrinks through retention cleanup.
type Session struct {
	mu  sync.Mutex
	st  store.Store
	log *slog.Logger

	nowFn func() time.Time

	id            string
	items         []*Item
	byID          map[string]*Item
	known         map[string]struct{}
	profiles      map[string]*Profile
	pendingRescan map[string]struct{}
	state         sessionState

	maxItems   int
	historyCap int
}

// NewSession loads persisted state from st. A collection that fails to
// parse is reset to empty and logged; corruption is never fatal.
func NewSession(st store.Store, logger *slog.Logger, maxItems, historyCap int) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxItems <= 0 {
		maxItems = 10000
	}
	if historyCap <= 0 {
		historyCap = 50
	}
	s := &Session{
		st:            st,
		log:           logger,
		nowFn:         time.Now,
		id:            uuid.NewString(),
		byID:          make(map[string]*Item),
		known:         make(map[string]struct{}),
		profiles:      make(map[string]*Profile),
		pendingRescan: make(map[string]struct{}),
		maxItems:      maxItems,
		historyCap:    historyCap,
	}
	s.load()
	return s, nil
}

// ID is the per-process session identifier stamped on exports.
func (s *Session) ID() string { return s.id }

func (s *Session) load() {
	ctx := context.Background()

	var items []*Item
	if s.loadBlob(ctx, keyItems, &items) {
		for _, it := range items {
			if it.ID == "" || s.byID[it.ID] != nil {
				continue
			}
			s.items = append(s.items, it)
			s.byID[it.ID] = it
			s.known[it.ID] = struct{}{}
		}
	}

	var known []string
	if s.loadBlob(ctx, keyKnown, &known) {
		for _, id := range known {
			s.known[id] = struct{}{}
		}
	}

	var profiles map[string]*Profile
	if s.loadBlob(ctx, keyProfiles, &profiles) {
		for identity, p := range profiles {
			if p != nil {
				s.profiles[identity] = p
			}
		}
	}

	s.loadBlob(ctx, keyState, &s.state)
}

// loadBlob returns true when the key existed and parsed. A parse failure
// logs and leaves the destination zero, resetting that collection.
func (s *Session) loadBlob(ctx context.Context, key string, dst any) bool {
	raw, ok, err := s.st.Get(ctx, key)
	if err != nil {
		s.log.Warn("store read failed", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn("persisted collection corrupt, resetting", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Session) flush(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal failed", "key", key, "err", err)
		return
	}
	if err := s.st.Set(context.Background(), key, raw); err != nil {
		s.log.Warn("store write failed", "key", key, "err", err)
	}
}

func (s *Session) flushItems()    { s.flush(keyItems, s.items) }
func (s *Session) flushProfiles() { s.flush(keyProfiles, s.profiles) }
func (s *Session) flushState()    { s.flush(keyState, s.state) }

func (s *Session) flushKnown() {
	ids := make([]string, 0, len(s.known))
	for id := range s.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.flush(keyKnown, ids)
}

// Flush writes every collection through. Called on engine stop.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushItems()
	s.flushProfiles()
	s.flushKnown()
	s.flushState()
}

// ───────── discovery dedup ─────────

// Discover returns the subset of candidates not yet known, marking every
// returned identifier known immediately (at enqueue time, not at
// ingestion-success time).
func (s *Session) Discover(candidates []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []string
	for _, id := range candidates {
		if id == "" {
			continue
		}
		if _, ok := s.known[id]; ok {
			continue
		}
		s.known[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) > 0 {
		s.flushKnown()
	}
	return fresh
}

// IsKnown reports whether id has been seen before.
func (s *Session) IsKnown(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[id]
	return ok
}

// Forget drops id from the known set, permitting rediscovery.
func (s *Session) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.known[id]; !ok {
		return
	}
	delete(s.known, id)
	s.flushKnown()
}

// ───────── item store ─────────

// InsertItem adds it to the store. Returns false when the id is already
// present; an id appears at most once. Beyond the retained maximum the
// oldest item is evicted first (its identifier stays known).
func (s *Session) InsertItem(it *Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == "" || s.byID[it.ID] != nil {
		return false
	}
	s.items = append(s.items, it)
	s.byID[it.ID] = it
	s.known[it.ID] = struct{}{}
	for len(s.items) > s.maxItems {
		oldest := s.items[0]
		s.items = s.items[1:]
		delete(s.byID, oldest.ID)
		delete(s.pendingRescan, oldest.ID)
	}
	s.flushItems()
	return true
}

// Item returns a copy of the stored item.
func (s *Session) Item(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// ItemCount returns the number of retained items.
func (s *Session) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// CompleteItem transitions an Active item to Completed. Returns false when
// the item is missing or already Completed; the record is immutable after
// the first transition.
func (s *Session) CompleteItem(id, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok || it.State != StateActive {
		return false
	}
	it.State = StateCompleted
	it.CompletedAt = s.nowFn()
	it.CompletionReason = reason
	delete(s.pendingRescan, id)
	s.flushItems()
	return true
}

// PatchReward applies the refined reward from the secondary fetch. The
// patch is silently dropped when the record is gone or already Completed.
func (s *Session) PatchReward(id string, reward int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok || it.State != StateActive {
		return false
	}
	it.Reward = reward
	s.flushItems()
	return true
}

// ApplyRescan merges an observed participant set into an Active item.
// Growth is monotonic: observed removals are reported but never applied.
// LastRescanAt is updated even when nothing changed.
func (s *Session) ApplyRescan(id string, observed []string) (added, removed []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, okItem := s.byID[id]
	if !okItem || it.State != StateActive {
		return nil, nil, false
	}

	current := make(map[string]struct{}, len(it.Participants))
	for _, p := range it.Participants {
		current[p] = struct{}{}
	}
	observedSet := make(map[string]struct{}, len(observed))
	for _, p := range observed {
		if p == "" {
			continue
		}
		observedSet[p] = struct{}{}
		if _, have := current[p]; !have {
			added = append(added, p)
		}
	}
	for _, p := range it.Participants {
		if _, still := observedSet[p]; !still {
			removed = append(removed, p)
		}
	}

	if len(added) > 0 {
		it.Participants = append(it.Participants, added...)
		sort.Strings(it.Participants)
	}
	it.LastRescanAt = s.nowFn()
	s.flushItems()
	return added, removed, true
}

// RescanCandidates lists Active items still inside the recency window.
// Older Active items are left alone indefinitely.
func (s *Session) RescanCandidates(recency time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	var out []string
	for _, it := range s.items {
		if it.State != StateActive {
			continue
		}
		if now.Sub(it.DiscoveredAt) > recency {
			continue
		}
		out = append(out, it.ID)
	}
	return out
}

// EnqueueRescan marks id as queued for rescan. It is a no-op (false) for
// Completed or unknown items and for items already in flight.
func (s *Session) EnqueueRescan(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok || it.State != StateActive {
		return false
	}
	if _, queued := s.pendingRescan[id]; queued {
		return false
	}
	s.pendingRescan[id] = struct{}{}
	return true
}

// DequeueRescan clears the in-flight mark once a rescan finished.
func (s *Session) DequeueRescan(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingRescan, id)
}

// PendingRescans returns the in-flight rescan queue length.
func (s *Session) PendingRescans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingRescan)
}

// SweepRetention deletes Completed items older than the retention age and
// forgets their identifiers, intentionally permitting rediscovery.
func (s *Session) SweepRetention(age time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.nowFn().Add(-age)
	var removed []string
	kept := s.items[:0]
	for _, it := range s.items {
		if it.State == StateCompleted && !it.CompletedAt.IsZero() && it.CompletedAt.Before(cutoff) {
			removed = append(removed, it.ID)
			delete(s.byID, it.ID)
			delete(s.known, it.ID)
			delete(s.pendingRescan, it.ID)
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	if len(removed) > 0 {
		s.flushItems()
		s.flushKnown()
	}
	return removed
}

// ItemsSnapshot returns copies of all items in insertion order.
func (s *Session) ItemsSnapshot() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.clone())
	}
	return out
}

// ───────── profile cache ─────────

// ProfileFresh reports whether identity has a profile refreshed within
// interval.
func (s *Session) ProfileFresh(identity string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity]
	return ok && s.nowFn().Sub(p.LastRefreshedAt) < interval
}

// RecordProfile stores a refreshed metric observation. A snapshot is
// appended only when the metric changed (or on first sight); history is
// trimmed oldest-first at the cap.
func (s *Session) RecordProfile(identity, name string, metric int64) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	p, ok := s.profiles[identity]
	if !ok {
		p = &Profile{Identity: identity}
		s.profiles[identity] = p
	}
	if name != "" {
		p.Name = name
	}
	changed := !ok || p.CurrentMetric != metric
	p.CurrentMetric = metric
	p.LastRefreshedAt = now
	if changed {
		p.History = append(p.History, MetricSnapshot{At: now, Value: metric})
		if over := len(p.History) - s.historyCap; over > 0 {
			p.History = append([]MetricSnapshot(nil), p.History[over:]...)
		}
	}
	s.flushProfiles()
	return p.clone()
}

// Profile returns a copy of the cached profile.
func (s *Session) Profile(identity string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity]
	if !ok {
		return Profile{}, false
	}
	return p.clone(), true
}

// ProfileIdentities lists every cached participant identity.
func (s *Session) ProfileIdentities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.profiles))
	for identity := range s.profiles {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

// ProfilesSnapshot returns copies of all cached profiles.
func (s *Session) ProfilesSnapshot() map[string]Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Profile, len(s.profiles))
	for identity, p := range s.profiles {
		out[identity] = p.clone()
	}
	return out
}

// ───────── persisted scalars ─────────

func (s *Session) SetTracking(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tracking = on
	s.flushState()
}

func (s *Session) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Tracking
}

func (s *Session) SetTimeFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TimeFilter = filter
	s.flushState()
}

func (s *Session) TimeFilter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.TimeFilter == "" {
		return FilterWeek
	}
	return s.state.TimeFilter
}

func (s *Session) SetLastDiscovery(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastDiscoveryAt = t
	s.flushState()
}

func (s *Session) SetLastRescan(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastRescanAt = t
	s.flushState()
}

// ClearAll wipes every collection, persisted and in memory.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.byID = make(map[string]*Item)
	s.known = make(map[string]struct{})
	s.profiles = make(map[string]*Profile)
	s.pendingRescan = make(map[string]struct{})
	s.state = sessionState{TimeFilter: s.state.TimeFilter}
	s.flushItems()
	s.flushProfiles()
	s.flushKnown()
	s.flushState()
}
