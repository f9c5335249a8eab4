package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/querycache/internal/clocktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Every fetch goroutine and timer must be gone once the clients are closed.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

type testEnv struct {
	c   *Client
	clk *clocktest.Clock
	m   *recMetrics
}

// newEnv returns a Client on a fake clock with recording metrics. The Client
// is closed on test cleanup, after any cleanup registered later.
func newEnv(t testing.TB) testEnv {
	t.Helper()
	clk := clocktest.New(time.Time{})
	m := &recMetrics{}
	c := New(Options{Shards: 4, Clock: clk, Metrics: m})
	t.Cleanup(func() { _ = c.Close() })
	return testEnv{c: c, clk: clk, m: m}
}

// countingFetcher returns "<key>#<call number>" right away.
type countingFetcher struct{ calls atomic.Int64 }

func (f *countingFetcher) fetch(_ context.Context, k string) string {
	return fmt.Sprintf("%s#%d", k, f.calls.Add(1))
}

func (f *countingFetcher) count() int { return int(f.calls.Load()) }

// stepFetcher blocks every call until the test resolves it by index. Calls
// are numbered in arrival order across all keys, so use it for one key only;
// keyedFetcher covers tests that fetch several keys at once.
type stepFetcher struct {
	mu    sync.Mutex
	calls []chan string
}

func (f *stepFetcher) fetch(ctx context.Context, _ string) string {
	ch := make(chan string, 1)
	f.mu.Lock()
	f.calls = append(f.calls, ch)
	f.mu.Unlock()
	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		return ""
	}
}

func (f *stepFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// resolve completes call i (0-based) with v, waiting for the call to start.
func (f *stepFetcher) resolve(t *testing.T, i int, v string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > i }, waitFor, time.Millisecond, "fetch #%d never started", i)
	f.mu.Lock()
	ch := f.calls[i]
	f.mu.Unlock()
	ch <- v
}

// keyedFetcher blocks every call until the test resolves its key. Each key
// has at most one pending call.
type keyedFetcher struct {
	mu      sync.Mutex
	pending map[string]chan string
	calls   map[string]int
}

func newKeyedFetcher() *keyedFetcher {
	return &keyedFetcher{pending: make(map[string]chan string), calls: make(map[string]int)}
}

func (f *keyedFetcher) fetch(ctx context.Context, k string) string {
	ch := make(chan string, 1)
	f.mu.Lock()
	f.pending[k] = ch
	f.calls[k]++
	f.mu.Unlock()
	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		return ""
	}
}

func (f *keyedFetcher) count(k string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[k]
}

// resolve completes the pending call for k with v, waiting for it to start.
func (f *keyedFetcher) resolve(t *testing.T, k, v string) {
	t.Helper()
	var ch chan string
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		ch = f.pending[k]
		return ch != nil
	}, waitFor, time.Millisecond, "fetch of %q never started", k)
	f.mu.Lock()
	delete(f.pending, k)
	f.mu.Unlock()
	ch <- v
}

type recMetrics struct {
	hits, misses, dedups atomic.Int64
	invalidations        atomic.Int64
	applied, discarded   atomic.Int64
	idle, closed         atomic.Int64
	size                 atomic.Int64
}

func (m *recMetrics) Hit()        { m.hits.Add(1) }
func (m *recMetrics) Miss()       { m.misses.Add(1) }
func (m *recMetrics) Dedup()      { m.dedups.Add(1) }
func (m *recMetrics) Invalidate() { m.invalidations.Add(1) }
func (m *recMetrics) Size(n int)  { m.size.Store(int64(n)) }

func (m *recMetrics) Fetch(o FetchOutcome, _ time.Duration) {
	if o == FetchApplied {
		m.applied.Add(1)
		return
	}
	m.discarded.Add(1)
}

func (m *recMetrics) Evict(r EvictReason) {
	if r == EvictIdle {
		m.idle.Add(1)
		return
	}
	m.closed.Add(1)
}

var _ Metrics = (*recMetrics)(nil)

// await blocks until r has loaded data.
func await[V any](t *testing.T, r Result[V]) V {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := r.Await(ctx)
	require.NoError(t, err)
	return v
}

// eventuallyData waits until r shows want as Loaded data.
func eventuallyData[V comparable](t *testing.T, r Result[V], want V) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := r.Status()
		return st.Phase == Loaded && st.Data == want
	}, waitFor, time.Millisecond, "want loaded %v", want)
}
