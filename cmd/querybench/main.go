// Command querybench runs a synthetic observer workload against the query
// cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/querycache/cache"
	pmet "github.com/IvanBrykalov/querycache/metrics/prom"
	"github.com/IvanBrykalov/querycache/reactive"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// ---- Flags ----
	var (
		shards = flag.Int("shards", 0, "number of shards per typed store (0=auto)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of observer goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		switchP  = flag.Int("switch", 20, "percentage of ops that switch the worker's key")
		invP     = flag.Int("invalidate", 2, "percentage of ops that invalidate a key")
		peekP    = flag.Int("observe", 10, "percentage of ops that open and close a short observer")

		keys    = flag.Int("keys", 100_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		latency = flag.Duration("latency", time.Millisecond, "simulated fetch latency")
		stale   = flag.Duration("stale", time.Second, "query stale time")
		cacheT  = flag.Duration("cache", 5*time.Second, "query cache time")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info().Str("addr", *pprofAddr).Msg("pprof: serving")
			logger.Error().Err(http.ListenAndServe(*pprofAddr, nil)).Msg("pprof server stopped")
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "querycache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info().Str("addr", *metricsAddr).Msg("metrics: serving")
		logger.Error().Err(http.ListenAndServe(*metricsAddr, nil)).Msg("metrics server stopped")
	}()

	// ---- Build client ----
	c := cache.New(cache.Options{
		Shards:  *shards,
		Metrics: metrics,
		Logger:  &logger,
	})
	defer func() { _ = c.Close() }()

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	lat := *latency
	switchPct, invPct, peekPct := *switchP, *invP, *peekP
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}
	opts := cache.QueryOptions[string]{StaleTime: *stale, CacheTime: *cacheT}

	var fetches, total, switches, invalidations, peeks uint64
	fetch := func(ctx context.Context, k string) string {
		atomic.AddUint64(&fetches, 1)
		select {
		case <-time.After(lat):
		case <-ctx.Done():
		}
		return "v:" + k
	}

	// ---- Load generation ----
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(w)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)
			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			key := reactive.NewCell(keyByZipf())
			q := cache.FetchQuerySignal[string, string](c, key, fetch, opts)
			defer q.Close()

			for ctx.Err() == nil {
				atomic.AddUint64(&total, 1)
				p := int(localR.Int31n(100))
				switch {
				case p < switchPct:
					atomic.AddUint64(&switches, 1)
					key.Set(keyByZipf())
				case p < switchPct+invPct:
					atomic.AddUint64(&invalidations, 1)
					cache.InvalidateQuery[string, string](c, keyByZipf())
				case p < switchPct+invPct+peekPct:
					atomic.AddUint64(&peeks, 1)
					o := cache.FetchQuery(c, keyByZipf(), fetch, opts)
					o.Data()
					o.Close()
				default:
					q.Data()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	fetchN := atomic.LoadUint64(&fetches)
	observations := atomic.LoadUint64(&switches) + atomic.LoadUint64(&peeks) + uint64(workersN)
	ratio := 0.0
	if observations > 0 {
		ratio = float64(fetchN) / float64(observations) * 100
	}
	st := c.Stats()

	logger.Info().
		Int("shards", *shards).
		Int("workers", workersN).
		Int("keys", *keys).
		Dur("dur", elapsed).
		Int64("seed", seedBase).
		Msg("querybench done")
	logger.Info().
		Str("ops", humanize.Comma(int64(ops))).
		Str("ops_per_sec", humanize.CommafWithDigits(float64(ops)/elapsed.Seconds(), 0)).
		Str("invalidations", humanize.Comma(int64(atomic.LoadUint64(&invalidations)))).
		Msg("throughput")
	logger.Info().
		Str("observations", humanize.Comma(int64(observations))).
		Str("fetches", humanize.Comma(int64(fetchN))).
		Str("fetch_ratio", humanize.FtoaWithDigits(ratio, 2)+"%").
		Msg("dedup")
	logger.Info().
		Str("entries", humanize.Comma(int64(st.Entries))).
		Str("created", humanize.Comma(int64(st.Created))).
		Str("evicted", humanize.Comma(int64(st.Evicted))).
		Msg("store")
}
