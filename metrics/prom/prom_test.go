package prom

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/IvanBrykalov/querycache/cache"
	"github.com/IvanBrykalov/querycache/internal/clocktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Counters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "qc", "test", prometheus.Labels{"app": "unit"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Dedup()
	a.Invalidate()
	a.Fetch(cache.FetchApplied, 10*time.Millisecond)
	a.Fetch(cache.FetchDiscarded, time.Millisecond)
	a.Evict(cache.EvictIdle)
	a.Evict(cache.EvictClosed)
	a.Size(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.dedups))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.invalidations))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fetches.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fetches.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues("closed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(a.sizeEnt))

	n, err := testutil.GatherAndCount(reg, "qc_test_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// End to end: a Client wired to the adapter exports query events.
func TestAdapter_WithClient(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "qc", "client", nil)

	clk := clocktest.New(time.Time{})
	c := cache.New(cache.Options{Clock: clk, Metrics: a})

	fetch := func(_ context.Context, k string) string { return "v:" + k }
	q := cache.FetchQuery(c, "k", fetch, cache.QueryOptions[string]{CacheTime: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := q.Await(ctx)
	require.NoError(t, err)
	q.Close()

	cache.InvalidateQuery[string, string](c, "k")
	clk.Advance(2 * time.Second)
	require.NoError(t, c.Close())

	expected := `
# HELP qc_client_evictions_total Entry evictions by reason
# TYPE qc_client_evictions_total counter
qc_client_evictions_total{reason="idle"} 1
# HELP qc_client_invalidations_total Query invalidations
# TYPE qc_client_invalidations_total counter
qc_client_invalidations_total 1
# HELP qc_client_misses_total Observations that started a fetch
# TYPE qc_client_misses_total counter
qc_client_misses_total 1
# HELP qc_client_size_entries Number of resident entries
# TYPE qc_client_size_entries gauge
qc_client_size_entries 0
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"qc_client_evictions_total", "qc_client_invalidations_total",
		"qc_client_misses_total", "qc_client_size_entries")
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.fetches.WithLabelValues("applied")))
}
