package engine

import (
	"fmt"
	"io"
	"sync"
)

// Metrics is a mutex-guarded counter set exposed as Prometheus text.
type Metrics struct {
	mu sync.Mutex

	discovered      uint64
	ingested        uint64
	ingestFailed    uint64
	incomplete      uint64
	completedIngest uint64
	completedRescan uint64
	completedNet    uint64
	rescans         uint64
	participantAdds uint64
	rewardPatches   uint64
	profileRefresh  uint64
	sweptItems      uint64
}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) inc(field *uint64, n uint64) {
	m.mu.Lock()
	*field += n
	m.mu.Unlock()
}

func (m *Metrics) AddDiscovered(n int)    { m.inc(&m.discovered, uint64(n)) }
func (m *Metrics) IncIngested()           { m.inc(&m.ingested, 1) }
func (m *Metrics) IncIngestFailed()       { m.inc(&m.ingestFailed, 1) }
func (m *Metrics) IncIncomplete()         { m.inc(&m.incomplete, 1) }
func (m *Metrics) IncCompletedAtIngest()  { m.inc(&m.completedIngest, 1) }
func (m *Metrics) IncCompletedByRescan()  { m.inc(&m.completedRescan, 1) }
func (m *Metrics) IncCompletedByNetwork() { m.inc(&m.completedNet, 1) }
func (m *Metrics) IncRescans()            { m.inc(&m.rescans, 1) }
func (m *Metrics) AddParticipants(n int)  { m.inc(&m.participantAdds, uint64(n)) }
func (m *Metrics) IncRewardPatches()      { m.inc(&m.rewardPatches, 1) }
func (m *Metrics) IncProfileRefreshes()   { m.inc(&m.profileRefresh, 1) }
func (m *Metrics) AddSwept(n int)         { m.inc(&m.sweptItems, uint64(n)) }

// Write emits Prometheus exposition text. Gauges for live queue state are
// supplied by the caller.
func (m *Metrics) Write(w io.Writer, gauges map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	counter("tracker_discovered_total", "Identifiers newly discovered", m.discovered)
	counter("tracker_ingested_total", "Items ingested as Active", m.ingested)
	counter("tracker_ingest_failures_total", "Ingestion fetches that failed", m.ingestFailed)
	counter("tracker_extraction_incomplete_total", "Detail pages with no usable accepting actor", m.incomplete)
	counter("tracker_completed_total_ingest", "Items completed at first sight", m.completedIngest)
	counter("tracker_completed_total_rescan", "Completions detected during rescan", m.completedRescan)
	counter("tracker_completed_total_network", "Completions presumed from network failure", m.completedNet)
	counter("tracker_rescans_total", "Rescan fetches performed", m.rescans)
	counter("tracker_participants_added_total", "Participants added via rescan diffs", m.participantAdds)
	counter("tracker_reward_patches_total", "Reward refinements applied", m.rewardPatches)
	counter("tracker_profile_refreshes_total", "Profile refreshes performed", m.profileRefresh)
	counter("tracker_retention_swept_total", "Completed items removed by retention", m.sweptItems)
	for name, v := range gauges {
		fmt.Fprintf(w, "# TYPE %s gauge\n%s %d\n", name, name, v)
	}
}
