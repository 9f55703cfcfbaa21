package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	scans        ScanStats
}

// ScanStats aggregates breach scanner runs.
type ScanStats struct {
	Runs                  int64     `json:"runs"`
	DryRuns               int64     `json:"dry_runs"`
	FailedRuns            int64     `json:"failed_runs"`
	SkippedTicks          int64     `json:"skipped_ticks"`
	FirstResponseBreaches int64     `json:"first_response_breaches"`
	ResolutionBreaches    int64     `json:"resolution_breaches"`
	LastRunAt             time.Time `json:"last_run_at,omitempty"`
	LastRunDurationMillis int64     `json:"last_run_duration_ms"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
	Scans    ScanStats        `json:"sla_scans"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordScan accumulates the outcome of one breach scan. Dry runs do not add
// to the breach totals.
func (m *Metrics) RecordScan(firstResponse, resolution int, dryRun, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans.Runs++
	if dryRun {
		m.scans.DryRuns++
	} else {
		m.scans.FirstResponseBreaches += int64(firstResponse)
		m.scans.ResolutionBreaches += int64(resolution)
	}
	if failed {
		m.scans.FailedRuns++
	}
	m.scans.LastRunAt = time.Now().UTC()
	m.scans.LastRunDurationMillis = duration.Milliseconds()
}

// RecordSkippedScan counts a scheduler tick dropped because a run was active.
func (m *Metrics) RecordSkippedScan() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans.SkippedTicks++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: map[string]int64{}, Errors: map[string]int64{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{
		Requests: make(map[string]int64, len(m.requestCount)),
		Errors:   make(map[string]int64, len(m.errorCount)),
		Scans:    m.scans,
	}
	for k, v := range m.requestCount {
		out.Requests[k] = v
	}
	for k, v := range m.errorCount {
		out.Errors[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
