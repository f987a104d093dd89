package actorstats

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordAndFlush(t *testing.T) {
	_, client := setupTestClient(t)
	col := NewCollector(client, time.Hour, nil)
	defer col.Stop()

	col.Record("A", ActivityReceived, net.ParseIP("10.0.0.1"))
	col.Record("A", ActivityAccepted, net.ParseIP("10.0.0.1"))
	col.Record("B", ActivityPeeked, nil)

	assert.Equal(t, map[string]int64{"A": 1, "B": 1}, col.Pending())

	col.FlushNow()
	assert.Empty(t, col.Pending())

	stats, err := col.GetStats(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Totals[ActivityReceived])
	assert.Equal(t, int64(1), stats.Totals[ActivityAccepted])
	assert.Equal(t, "10.0.0.1", stats.LastSeenIP)
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	_, client := setupTestClient(t)
	col := NewCollector(client, time.Hour, nil)
	defer col.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				col.Record("A", ActivityDequeued, nil)
			}
		}()
	}
	wg.Wait()
	col.FlushNow()

	stats, err := col.GetStats(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stats.Totals[ActivityDequeued])
}

func TestCollector_StopFlushesRemaining(t *testing.T) {
	_, client := setupTestClient(t)
	col := NewCollector(client, time.Hour, nil)

	col.Record("A", ActivityPeeked, nil)
	col.Stop()
	col.Stop()

	stats, err := client.GetStats(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Totals[ActivityPeeked])
}

func TestCollector_PeriodicFlush(t *testing.T) {
	_, client := setupTestClient(t)
	col := NewCollector(client, 20*time.Millisecond, nil)
	defer col.Stop()

	col.Record("A", ActivityReceived, nil)

	assert.Eventually(t, func() bool {
		stats, err := client.GetStats(context.Background(), "A")
		return err == nil && stats.Totals[ActivityReceived] == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCollector_FailedFlushIsRetained(t *testing.T) {
	mr, client := setupTestClient(t)
	col := NewCollector(client, time.Hour, nil)

	col.Record("A", ActivityReceived, nil)
	mr.Close()
	col.FlushNow()
	col.Record("A", ActivityPeeked, nil)

	assert.Equal(t, map[string]int64{"A": 2}, col.Pending())

	col.mu.Lock()
	col.batches = make(map[string]*Batch)
	col.mu.Unlock()
	col.Stop()
}
