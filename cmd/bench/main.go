// Command bench runs a synthetic disk workload against the buffer cache and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/bufcache/bufcache"
	"github.com/IvanBrykalov/bufcache/device"
	pmet "github.com/IvanBrykalov/bufcache/metrics/prom"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var (
		slots     = flag.Int("slots", 1024, "pool size (buffers)")
		shards    = flag.Int("shards", 0, "number of shards (0=default)")
		blockSize = flag.Int("bsize", 1024, "block size in bytes")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		blocks = flag.Uint64("blocks", 1<<16, "keyspace size (block numbers)")
		zipfS  = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV  = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed   = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "bufcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache over a RAM device ----
	c := bufcache.New(bufcache.Options{
		Slots:     *slots,
		Shards:    *shards,
		BlockSize: *blockSize,
		Device:    device.NewMem(*blockSize),
		Metrics:   metrics,
	})

	log.Printf("bench: slots=%d shards=%d bsize=%d workers=%d reads=%d%% blocks=%d dur=%s",
		*slots, *shards, *blockSize, *workers, *readPct, *blocks, *duration)

	// ---- Run workload ----
	var (
		ops      atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	deadline := time.Now().Add(*duration)

	wg.Add(*workers)
	for w := 0; w < *workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(*seed + int64(id)*104729))
			z := rand.NewZipf(r, *zipfS, *zipfV, *blocks-1)
			for time.Now().Before(deadline) {
				blk := uint32(z.Uint64())
				b, err := c.Read(0, blk)
				if err != nil {
					failures.Add(1)
					continue
				}
				if r.Intn(100) >= *readPct {
					b.Data()[0]++
					if err := c.Write(b); err != nil {
						failures.Add(1)
					}
				}
				if err := c.Release(b); err != nil {
					failures.Add(1)
				}
				ops.Add(1)
			}
		}(w)
	}
	wg.Wait()

	// ---- Report ----
	st := c.Stats()
	total := ops.Load()
	fmt.Printf("ops: %d (%.0f ops/sec), failures: %d\n",
		total, float64(total)/duration.Seconds(), failures.Load())
	fmt.Printf("hits: %d, misses: %d (%.1f%% hit rate)\n",
		st.Hits, st.Misses, 100*float64(st.Hits)/float64(st.Hits+st.Misses))
	fmt.Printf("admissions: %d local, %d stolen; exhausted: %d; resident: %d\n",
		st.AdmitLocal, st.AdmitSteal, st.Exhausted, c.Len())
}
