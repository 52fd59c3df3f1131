package engine

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"missiontracker/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, st store.Store) *Session {
	t.Helper()
	s, err := NewSession(st, discardLogger(), 0, 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func activeItem(id string, at time.Time) *Item {
	return &Item{ID: id, DiscoveredAt: at, State: StateActive, AcceptedBy: "alice"}
}

func TestDiscoverMarksKnownAtEnqueueTime(t *testing.T) {
	s := newTestSession(t, store.NewMemory())

	fresh := s.Discover([]string{"1", "2", "", "1"})
	if want := []string{"1", "2"}; !reflect.DeepEqual(fresh, want) {
		t.Fatalf("fresh = %v, want %v", fresh, want)
	}

	// Known immediately, before any item record exists.
	if !s.IsKnown("1") || !s.IsKnown("2") {
		t.Fatal("discovered identifiers not marked known")
	}
	if got := s.Discover([]string{"1", "2", "3"}); !reflect.DeepEqual(got, []string{"3"}) {
		t.Fatalf("second discover = %v, want [3]", got)
	}
}

func TestKnownSetSurvivesRestart(t *testing.T) {
	mem := store.NewMemory()

	s1 := newTestSession(t, mem)
	s1.Discover([]string{"7", "8"})

	// Same store, fresh process.
	s2 := newTestSession(t, mem)
	if !s2.IsKnown("7") || !s2.IsKnown("8") {
		t.Fatal("known set lost across restart")
	}
	if got := s2.Discover([]string{"7", "9"}); !reflect.DeepEqual(got, []string{"9"}) {
		t.Fatalf("discover after restart = %v, want [9]", got)
	}
}

func TestInsertItemRejectsDuplicates(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	now := time.Now()

	if !s.InsertItem(activeItem("a", now)) {
		t.Fatal("first insert rejected")
	}
	if s.InsertItem(activeItem("a", now)) {
		t.Fatal("duplicate id accepted")
	}
	if s.ItemCount() != 1 {
		t.Fatalf("count = %d, want 1", s.ItemCount())
	}
}

func TestInsertItemEvictsOldest(t *testing.T) {
	s, err := NewSession(store.NewMemory(), discardLogger(), 2, 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	now := time.Now()
	s.InsertItem(activeItem("a", now))
	s.InsertItem(activeItem("b", now))
	s.InsertItem(activeItem("c", now))

	if s.ItemCount() != 2 {
		t.Fatalf("count = %d, want 2", s.ItemCount())
	}
	if _, ok := s.Item("a"); ok {
		t.Fatal("oldest item not evicted")
	}
	// Eviction is not retention cleanup: the identifier stays known.
	if !s.IsKnown("a") {
		t.Fatal("evicted identifier forgotten")
	}
}

func TestCompleteItemIsTerminal(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	s.InsertItem(activeItem("a", time.Now()))

	if !s.CompleteItem("a", ReasonDetectedDuringRescan) {
		t.Fatal("completion rejected")
	}
	it, _ := s.Item("a")
	if it.State != StateCompleted || it.CompletionReason != ReasonDetectedDuringRescan {
		t.Fatalf("item = %+v", it)
	}
	if it.CompletedAt.IsZero() {
		t.Fatal("CompletedAt not stamped")
	}

	if s.CompleteItem("a", ReasonNetworkError) {
		t.Fatal("second completion accepted")
	}
	it2, _ := s.Item("a")
	if it2.CompletionReason != ReasonDetectedDuringRescan {
		t.Fatal("completion reason overwritten")
	}
	if s.PatchReward("a", 999) {
		t.Fatal("reward patch applied to completed item")
	}
	if s.CompleteItem("missing", ReasonNetworkError) {
		t.Fatal("completion of missing item accepted")
	}
}

func TestApplyRescanGrowsMonotonically(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	it := activeItem("a", time.Now())
	it.Participants = []string{"bob", "carol"}
	s.InsertItem(it)

	// Carol vanished, Dave appeared: only the addition applies.
	added, removed, ok := s.ApplyRescan("a", []string{"bob", "dave"})
	if !ok {
		t.Fatal("rescan rejected")
	}
	if !reflect.DeepEqual(added, []string{"dave"}) {
		t.Fatalf("added = %v, want [dave]", added)
	}
	if !reflect.DeepEqual(removed, []string{"carol"}) {
		t.Fatalf("removed = %v, want [carol]", removed)
	}
	got, _ := s.Item("a")
	if want := []string{"bob", "carol", "dave"}; !reflect.DeepEqual(got.Participants, want) {
		t.Fatalf("participants = %v, want %v", got.Participants, want)
	}

	// A no-change rescan still moves the timestamp.
	before := got.LastRescanAt
	time.Sleep(2 * time.Millisecond)
	if _, _, ok := s.ApplyRescan("a", nil); !ok {
		t.Fatal("empty rescan rejected")
	}
	got, _ = s.Item("a")
	if !got.LastRescanAt.After(before) {
		t.Fatal("LastRescanAt did not advance on a no-change rescan")
	}
}

func TestRescanCandidatesRespectRecency(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	now := time.Now()
	s.nowFn = func() time.Time { return now }

	s.InsertItem(activeItem("fresh", now.Add(-time.Hour)))
	s.InsertItem(activeItem("stale", now.Add(-25*time.Hour)))
	s.InsertItem(activeItem("done", now.Add(-time.Hour)))
	s.CompleteItem("done", ReasonCompletedAtIngest)

	got := s.RescanCandidates(24 * time.Hour)
	if !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Fatalf("candidates = %v, want [fresh]", got)
	}
}

func TestEnqueueRescanDedupes(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	s.InsertItem(activeItem("a", time.Now()))
	s.InsertItem(activeItem("b", time.Now()))
	s.CompleteItem("b", ReasonCompletedAtIngest)

	if !s.EnqueueRescan("a") {
		t.Fatal("first enqueue rejected")
	}
	if s.EnqueueRescan("a") {
		t.Fatal("in-flight item enqueued twice")
	}
	if s.EnqueueRescan("b") {
		t.Fatal("completed item enqueued")
	}
	if s.EnqueueRescan("missing") {
		t.Fatal("missing item enqueued")
	}
	s.DequeueRescan("a")
	if !s.EnqueueRescan("a") {
		t.Fatal("enqueue after dequeue rejected")
	}
}

func TestSweepRetentionFreesIdentifier(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	now := time.Now()
	s.nowFn = func() time.Time { return now }

	old := activeItem("old", now.Add(-40*24*time.Hour))
	old.State = StateCompleted
	old.CompletedAt = now.Add(-31 * 24 * time.Hour)
	recent := activeItem("recent", now.Add(-30*24*time.Hour))
	recent.State = StateCompleted
	recent.CompletedAt = now.Add(-29 * 24 * time.Hour)
	active := activeItem("active", now.Add(-40*24*time.Hour))
	s.InsertItem(old)
	s.InsertItem(recent)
	s.InsertItem(active)

	removed := s.SweepRetention(30 * 24 * time.Hour)
	if !reflect.DeepEqual(removed, []string{"old"}) {
		t.Fatalf("removed = %v, want [old]", removed)
	}
	if _, ok := s.Item("old"); ok {
		t.Fatal("swept item still stored")
	}
	if _, ok := s.Item("recent"); !ok {
		t.Fatal("recent completed item swept")
	}
	if _, ok := s.Item("active"); !ok {
		t.Fatal("active item swept")
	}

	// Sweeping frees the identifier for rediscovery.
	if s.IsKnown("old") {
		t.Fatal("swept identifier still known")
	}
	if got := s.Discover([]string{"old"}); !reflect.DeepEqual(got, []string{"old"}) {
		t.Fatalf("rediscovery = %v, want [old]", got)
	}
}

func TestRecordProfileHistoryOnChangeOnly(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	now := time.Now()
	s.nowFn = func() time.Time { return now }

	p := s.RecordProfile("alice", "Alice", 100)
	if len(p.History) != 1 {
		t.Fatalf("history after first sight = %d, want 1", len(p.History))
	}

	now = now.Add(time.Hour)
	p = s.RecordProfile("alice", "Alice", 100)
	if len(p.History) != 1 {
		t.Fatalf("history grew without metric change: %d", len(p.History))
	}
	if !p.LastRefreshedAt.Equal(now) {
		t.Fatal("LastRefreshedAt not updated on unchanged refresh")
	}

	now = now.Add(time.Hour)
	p = s.RecordProfile("alice", "", 250)
	if len(p.History) != 2 || p.History[1].Value != 250 {
		t.Fatalf("history = %+v", p.History)
	}
	if p.Name != "Alice" {
		t.Fatalf("name = %q, empty refresh cleared it", p.Name)
	}
}

func TestRecordProfileHistoryCap(t *testing.T) {
	s, err := NewSession(store.NewMemory(), discardLogger(), 0, 3)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	for v := int64(1); v <= 5; v++ {
		s.RecordProfile("alice", "Alice", v*10)
	}
	p, _ := s.Profile("alice")
	if len(p.History) != 3 {
		t.Fatalf("history len = %d, want 3", len(p.History))
	}
	// Oldest entries dropped first.
	if p.History[0].Value != 30 || p.History[2].Value != 50 {
		t.Fatalf("history = %+v", p.History)
	}
}

func TestCorruptCollectionResets(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	mem.Set(ctx, keyItems, []byte("{not json"))
	mem.Set(ctx, keyKnown, []byte(`["kept"]`))

	s := newTestSession(t, mem)
	if s.ItemCount() != 0 {
		t.Fatalf("items from corrupt blob: %d", s.ItemCount())
	}
	if !s.IsKnown("kept") {
		t.Fatal("intact collection discarded alongside the corrupt one")
	}
}

func TestClearAllKeepsTimeFilter(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	s.InsertItem(activeItem("a", time.Now()))
	s.RecordProfile("alice", "Alice", 1)
	s.SetTimeFilter(FilterMonth)

	s.ClearAll()
	if s.ItemCount() != 0 || s.IsKnown("a") || len(s.ProfileIdentities()) != 0 {
		t.Fatal("state survived ClearAll")
	}
	if s.TimeFilter() != FilterMonth {
		t.Fatalf("filter = %q, want month", s.TimeFilter())
	}
}

func TestTimeFilterDefaultsToWeek(t *testing.T) {
	s := newTestSession(t, store.NewMemory())
	if got := s.TimeFilter(); got != FilterWeek {
		t.Fatalf("default filter = %q, want week", got)
	}
}
