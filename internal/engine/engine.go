// Package engine is the item tracking and rescan core: discovery dedup, a
// bounded-concurrency ingestion pipeline, a slower rescan scheduler with
// heuristic completion detection, a lazily refreshed profile cache and a
// windowed statistics projection.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"missiontracker/internal/fetch"
	"missiontracker/internal/gate"
	"missiontracker/internal/oracle"
)

// Config holds the engine cadences and bounds. Zero values take defaults.
type Config struct {
	BaseURL        string
	ListingPath    string
	ItemPathFmt    string
	RewardPathFmt  string
	ProfilePathFmt string

	CheckInterval          time.Duration // discovery cadence
	RescanInterval         time.Duration // rescan cadence, much slower
	SettleDelay            time.Duration
	MaxConcurrent          int // per channel
	RecencyWindow          time.Duration
	ProfileRefreshInterval time.Duration
	RetentionAge           time.Duration
	SweepProbability       float64
	MaxItems               int
	HistoryCap             int
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://example-dispatch.invalid"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ListingPath == "" {
		c.ListingPath = "/missions"
	}
	if c.ItemPathFmt == "" {
		c.ItemPathFmt = "/missions/%s"
	}
	if c.RewardPathFmt == "" {
		c.RewardPathFmt = "/missions/%s/credits"
	}
	if c.ProfilePathFmt == "" {
		c.ProfilePathFmt = "/profile/%s"
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.RescanInterval <= 0 {
		// deliberately much slower than discovery
		c.RescanInterval = 40 * c.CheckInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	} else if c.SettleDelay == 0 {
		c.SettleDelay = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = 24 * time.Hour
	}
	if c.ProfileRefreshInterval <= 0 {
		c.ProfileRefreshInterval = 24 * time.Hour
	}
	if c.RetentionAge <= 0 {
		c.RetentionAge = 30 * 24 * time.Hour
	}
	if c.SweepProbability <= 0 {
		c.SweepProbability = 0.05
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 10000
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 50
	}
}

// Oracles bundles the pluggable document capabilities.
type Oracles struct {
	Completion oracle.CompletionOracle
	Extraction oracle.ExtractionOracle
	Listing    oracle.ListingOracle
	Reward     oracle.RewardOracle
	Profile    oracle.ProfileOracle
}

// Engine wires the session, transport, gates and oracles together and owns
// the discovery and rescan timer loops.
type Engine struct {
	cfg      Config
	session  *Session
	fetcher  fetch.Fetcher
	oracles  Oracles
	notifier Notifier
	metrics  *Metrics
	log      *slog.Logger

	ingestGate *gate.Gate
	rescanGate *gate.Gate

	nowFn func() time.Time
	randF func() float64

	mu              sync.Mutex
	running         bool
	stop            chan struct{}
	loops           sync.WaitGroup
	profileInFlight map[string]struct{}
}

// New builds an Engine. notifier and logger may be nil.
func New(cfg Config, session *Session, fetcher fetch.Fetcher, oracles Oracles, notifier Notifier, logger *slog.Logger) *Engine {
	cfg.defaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:             cfg,
		session:         session,
		fetcher:         fetcher,
		oracles:         oracles,
		notifier:        notifier,
		metrics:         NewMetrics(),
		log:             logger,
		ingestGate:      gate.New(cfg.MaxConcurrent, cfg.SettleDelay),
		rescanGate:      gate.New(cfg.MaxConcurrent, cfg.SettleDelay),
		nowFn:           time.Now,
		randF:           rand.Float64,
		profileInFlight: make(map[string]struct{}),
	}
}

// Session exposes the owned tracking session.
func (e *Engine) Session() *Session { return e.session }

// Metrics exposes the engine counter set.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Gauges returns live queue state for the metrics endpoint.
func (e *Engine) Gauges() map[string]int {
	return map[string]int{
		"tracker_items":           e.session.ItemCount(),
		"tracker_ingest_inflight": e.ingestGate.Inflight(),
		"tracker_ingest_pending":  e.ingestGate.Pending(),
		"tracker_rescan_inflight": e.rescanGate.Inflight(),
		"tracker_rescan_pending":  e.session.PendingRescans(),
	}
}

// Start begins the discovery and rescan timer loops. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	e.session.SetTracking(true)
	e.notifier.TrackingChanged(true)
	e.log.Info("tracking started",
		"check_interval", e.cfg.CheckInterval,
		"rescan_interval", e.cfg.RescanInterval,
		"max_concurrent", e.cfg.MaxConcurrent)

	e.loops.Add(2)
	go e.discoveryLoop(stop)
	go e.rescanLoop(stop)
}

// Stop halts the timer loops. In-flight fetches are allowed to complete and
// still apply their effects; only new cycles stop being scheduled.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	e.mu.Unlock()

	e.loops.Wait()
	e.session.SetTracking(false)
	e.session.Flush()
	e.notifier.TrackingChanged(false)
	e.log.Info("tracking stopped")
}

// Running reports whether the timer loops are active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) discoveryLoop(stop <-chan struct{}) {
	defer e.loops.Done()
	t := time.NewTicker(e.cfg.CheckInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.discoverOnce()
		case <-stop:
			return
		}
	}
}

// discoverOnce polls the listing page and feeds found identifiers through
// discovery dedup. Failures skip the cycle.
func (e *Engine) discoverOnce() {
	doc, err := e.fetcher.Fetch(context.Background(), e.listingURL())
	if err != nil {
		e.log.Warn("listing fetch failed", "err", err)
		return
	}
	candidates := e.oracles.Listing.ScanIdentifiers(doc)
	e.session.SetLastDiscovery(e.nowFn())
	if n := e.DiscoveredIdentifiers(candidates); n > 0 {
		e.log.Info("discovered new items", "count", n)
	}
}

// DiscoveredIdentifiers is the inbound discovery entry point: candidates
// observed externally (listing poller or control API) are deduplicated
// against the known set and the fresh ones queued for ingestion.
func (e *Engine) DiscoveredIdentifiers(candidates []string) int {
	fresh := e.session.Discover(candidates)
	if len(fresh) == 0 {
		return 0
	}
	e.metrics.AddDiscovered(len(fresh))
	e.notifier.Discovered(len(fresh))
	for _, id := range fresh {
		id := id
		e.ingestGate.Submit(func() { e.ingest(id) })
	}
	return len(fresh)
}

// ingest runs the single-identifier pipeline: fetch, classify, insert.
// A failed fetch yields no record and no retry; the identifier stays known.
func (e *Engine) ingest(id string) {
	itemURL := e.itemURL(id)
	doc, err := e.fetcher.Fetch(context.Background(), itemURL)
	if err != nil {
		e.metrics.IncIngestFailed()
		e.log.Warn("ingest fetch failed", "id", id, "err", err)
		return
	}

	completed := e.oracles.Completion.Completed(doc)
	ext, err := e.oracles.Extraction.Extract(doc)
	if err != nil {
		// oracle returned nothing for the broken fields
		e.log.Warn("extraction failed", "id", id, "err", err)
		ext = oracle.Extraction{}
	}
	now := e.nowFn()
	it := &Item{
		ID:           id,
		URL:          itemURL,
		Title:        ext.Title,
		Address:      ext.Address,
		DiscoveredAt: now,
		State:        StateActive,
		AcceptedBy:   ext.AcceptedBy,
		Participants: append([]string(nil), ext.Participants...),
		Reward:       ext.Reward,
	}

	// Completion wins over a valid accepting actor: such an item is never
	// stored as Active and never rescanned.
	if completed {
		it.State = StateCompleted
		it.CompletedAt = now
		it.CompletionReason = ReasonCompletedAtIngest
		if e.session.InsertItem(it) {
			e.metrics.IncCompletedAtIngest()
			e.notifier.ItemCompleted(it.clone(), it.CompletionReason)
		}
		return
	}

	if !usableActor(ext.AcceptedBy) {
		e.metrics.IncIncomplete()
		return
	}

	if !e.session.InsertItem(it) {
		return
	}
	e.metrics.IncIngested()
	e.notifier.ItemIngested(it.clone())

	// Secondary fire-and-forget fetch to refine the reward.
	e.ingestGate.Submit(func() { e.refineReward(id) })

	e.maybeRefreshProfiles(append([]string{ext.AcceptedBy}, ext.Participants...))
}

func (e *Engine) refineReward(id string) {
	doc, err := e.fetcher.Fetch(context.Background(), e.rewardURL(id))
	if err != nil {
		e.log.Debug("reward fetch failed", "id", id, "err", err)
		return
	}
	reward, ok := e.oracles.Reward.ExtractReward(doc)
	if !ok {
		return
	}
	if e.session.PatchReward(id, reward) {
		e.metrics.IncRewardPatches()
	}
}

func usableActor(actor string) bool {
	return actor != "" && !strings.EqualFold(actor, oracle.UnknownActor)
}

// ───────── URLs ─────────

func (e *Engine) listingURL() string {
	return e.cfg.BaseURL + e.cfg.ListingPath
}

func (e *Engine) itemURL(id string) string {
	return e.cfg.BaseURL + fmt.Sprintf(e.cfg.ItemPathFmt, url.PathEscape(id))
}

func (e *Engine) rewardURL(id string) string {
	return e.cfg.BaseURL + fmt.Sprintf(e.cfg.RewardPathFmt, url.PathEscape(id))
}

func (e *Engine) profileURL(identity string) string {
	return e.cfg.BaseURL + fmt.Sprintf(e.cfg.ProfilePathFmt, url.PathEscape(identity))
}

// ───────── read side ─────────

// SnapshotVersion tags exported snapshots.
const SnapshotVersion = "1"

// Snapshot is the flat export object served to external serializers.
type Snapshot struct {
	Version    string                       `json:"version"`
	SessionID  string                       `json:"session_id"`
	ExportedAt time.Time                    `json:"exported_at"`
	TimeFilter string                       `json:"time_filter"`
	Items      []Item                       `json:"items"`
	Profiles   map[string]Profile           `json:"profiles"`
	Stats      map[string]*ParticipantStats `json:"stats"`
}

// ExportSnapshot folds the current state and the active time filter into
// one serializable object.
func (e *Engine) ExportSnapshot() Snapshot {
	now := e.nowFn()
	filter := e.session.TimeFilter()
	items := e.session.ItemsSnapshot()
	profiles := e.session.ProfilesSnapshot()
	return Snapshot{
		Version:    SnapshotVersion,
		SessionID:  e.session.ID(),
		ExportedAt: now,
		TimeFilter: filter,
		Items:      items,
		Profiles:   profiles,
		Stats:      Aggregate(items, profiles, WindowForFilter(filter, now)),
	}
}

// StatsFor aggregates over an explicit window.
func (e *Engine) StatsFor(w Window) map[string]*ParticipantStats {
	return Aggregate(e.session.ItemsSnapshot(), e.session.ProfilesSnapshot(), w)
}

// SetTimeFilter stores the active preset.
func (e *Engine) SetTimeFilter(filter string) {
	e.session.SetTimeFilter(filter)
}
