// ABOUTME: Tests for the shard readiness barrier and group-count aggregation.
// ABOUTME: Covers exactly-once transition, duplicate rejection, and concurrent reports.

package shards

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_SingleShard(t *testing.T) {
	a := New(1)

	snap, err := a.Report(0, 42)
	require.NoError(t, err)

	assert.True(t, snap.AllReady)
	assert.True(t, snap.JustBecameReady)
	assert.Equal(t, uint64(42), snap.CumulativeGroups)
	assert.Equal(t, 1, snap.ReportsReceived)
}

func TestAggregator_BarrierFiresOnLastReport(t *testing.T) {
	a := New(3)

	snap, err := a.Report(0, 10)
	require.NoError(t, err)
	assert.False(t, snap.AllReady)
	assert.False(t, snap.JustBecameReady)

	snap, err = a.Report(1, 5)
	require.NoError(t, err)
	assert.False(t, snap.JustBecameReady)

	snap, err = a.Report(2, 7)
	require.NoError(t, err)
	assert.True(t, snap.AllReady)
	assert.True(t, snap.JustBecameReady, "third distinct report completes the barrier")
	assert.Equal(t, uint64(22), snap.CumulativeGroups)
}

func TestAggregator_DuplicateReport(t *testing.T) {
	a := New(2)

	_, err := a.Report(0, 10)
	require.NoError(t, err)

	// Duplicate index: rejected, counters untouched
	snap, err := a.Report(0, 999)
	assert.ErrorIs(t, err, ErrDuplicateReport)
	assert.Equal(t, uint64(10), snap.CumulativeGroups)
	assert.Equal(t, 1, snap.ReportsReceived)
	assert.False(t, snap.AllReady)
}

func TestAggregator_DuplicateAfterBarrier(t *testing.T) {
	a := New(2)

	_, err := a.Report(0, 1)
	require.NoError(t, err)
	snap, err := a.Report(1, 2)
	require.NoError(t, err)
	require.True(t, snap.JustBecameReady)

	// A replayed ready event past the barrier must not re-trigger it
	snap, err = a.Report(1, 2)
	assert.ErrorIs(t, err, ErrDuplicateReport)
	assert.False(t, snap.JustBecameReady)
	assert.True(t, snap.AllReady)
	assert.Equal(t, uint64(3), snap.CumulativeGroups)
}

func TestAggregator_State(t *testing.T) {
	a := New(2)

	_, err := a.Report(0, 4)
	require.NoError(t, err)

	snap := a.State()
	assert.Equal(t, 1, snap.ReportsReceived)
	assert.Equal(t, 2, snap.ExpectedTotal)
	assert.False(t, snap.JustBecameReady, "State never reports the transition")

	assert.Equal(t, uint64(4), a.CumulativeGroups())
	assert.Equal(t, 1, a.ShardCount())
}

func TestAggregator_ConcurrentReports_ExactlyOneTransition(t *testing.T) {
	const shardTotal = 64
	a := New(shardTotal)

	var transitions int32
	var wg sync.WaitGroup
	wg.Add(shardTotal)

	for i := 0; i < shardTotal; i++ {
		go func(idx int) {
			defer wg.Done()
			snap, err := a.Report(idx, uint64(idx))
			require.NoError(t, err)
			if snap.JustBecameReady {
				atomic.AddInt32(&transitions, 1)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), transitions,
		"exactly one reporter should observe the barrier transition")

	// Sum of 0..63
	assert.Equal(t, uint64(shardTotal*(shardTotal-1)/2), a.CumulativeGroups())
}

func TestAggregator_ConcurrentDuplicates(t *testing.T) {
	a := New(1)

	const attempts = 100
	var successes int32
	var transitions int32
	var wg sync.WaitGroup
	wg.Add(attempts)

	// All goroutines race to report the same shard index
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			snap, err := a.Report(0, 10)
			if err == nil {
				atomic.AddInt32(&successes, 1)
			}
			if snap.JustBecameReady {
				atomic.AddInt32(&transitions, 1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successes, "only one report for an index may succeed")
	assert.Equal(t, int32(1), transitions)
	assert.Equal(t, uint64(10), a.CumulativeGroups(), "duplicates must not inflate the group sum")
}
