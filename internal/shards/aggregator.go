// ABOUTME: Tracks per-shard ready reports and detects the all-shards-ready barrier.
// ABOUTME: The barrier transition fires exactly once even under concurrent reports.

package shards

import (
	"errors"
	"sync"
)

// ErrDuplicateReport indicates a ready report for a shard index that has
// already reported. Duplicates leave all counters untouched; they occur
// when the transport replays a ready event after reconnect.
var ErrDuplicateReport = errors.New("shard already reported ready")

// Record holds the ready report of a single shard. GroupCount is immutable
// once set; records are never deleted.
type Record struct {
	Index      int
	GroupCount uint64
	Reported   bool
}

// Snapshot is the aggregate state returned from a report. JustBecameReady
// is true for exactly one report: the one that completed the barrier.
type Snapshot struct {
	ReportsReceived  int
	ExpectedTotal    int
	CumulativeGroups uint64
	AllReady         bool
	JustBecameReady  bool
}

// Aggregator counts shard ready reports and the running sum of groups seen
// per shard. The transition check and the counter increment share one
// critical section, so concurrent reporters at the barrier cannot observe
// JustBecameReady twice.
type Aggregator struct {
	mu       sync.Mutex
	expected int
	records  map[int]*Record
	groups   uint64
	allReady bool
}

// New creates an Aggregator expecting the given number of shards.
func New(expectedTotal int) *Aggregator {
	return &Aggregator{
		expected: expectedTotal,
		records:  make(map[int]*Record),
	}
}

// Report records that a shard has come up with the given group count and
// returns the aggregate snapshot. A second report for the same index
// returns ErrDuplicateReport along with the current snapshot.
func (a *Aggregator) Report(index int, groupCount uint64) (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.records[index]; exists {
		return a.snapshotLocked(false), ErrDuplicateReport
	}

	a.records[index] = &Record{Index: index, GroupCount: groupCount, Reported: true}
	a.groups += groupCount

	justBecameReady := false
	if !a.allReady && len(a.records) == a.expected {
		a.allReady = true
		justBecameReady = true
	}

	return a.snapshotLocked(justBecameReady), nil
}

// State returns the current aggregate snapshot without reporting.
func (a *Aggregator) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(false)
}

// CumulativeGroups returns the running sum of groups across all reported
// shards.
func (a *Aggregator) CumulativeGroups() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.groups
}

// ShardCount returns the number of shards that have reported ready.
func (a *Aggregator) ShardCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// snapshotLocked builds a Snapshot. Must be called with mu held.
func (a *Aggregator) snapshotLocked(justBecameReady bool) Snapshot {
	return Snapshot{
		ReportsReceived:  len(a.records),
		ExpectedTotal:    a.expected,
		CumulativeGroups: a.groups,
		AllReady:         a.allReady,
		JustBecameReady:  justBecameReady,
	}
}
