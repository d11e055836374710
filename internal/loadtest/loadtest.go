// Package loadtest drives one REST endpoint at a constant arrival rate and
// summarises the status codes and latencies it sees.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	URL      string
	Rate     float64 // requests per second
	Duration time.Duration
	Workers  int // 0 means one more than the per-second rate

	Logger *zap.Logger
}

// Result summarises a run. Transport failures are counted under status 0.
type Result struct {
	Sent     int
	Failed   int
	Dropped  int // arrivals with no idle worker
	ByStatus map[int]int
	P50      time.Duration
	P95      time.Duration
	Max      time.Duration
	Elapsed  time.Duration
}

// Statuses returns the observed status codes in ascending order.
func (r Result) Statuses() []int {
	out := make([]int, 0, len(r.ByStatus))
	for code := range r.ByStatus {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

func (o *Options) validate() error {
	switch {
	case o.URL == "":
		return errors.New("loadtest: URL is required")
	case o.Rate <= 0:
		return fmt.Errorf("loadtest: rate must be positive, got %v", o.Rate)
	case o.Duration <= 0:
		return fmt.Errorf("loadtest: duration must be positive, got %s", o.Duration)
	}
	if o.Workers <= 0 {
		o.Workers = int(math.Ceil(o.Rate)) + 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

type sample struct {
	status  int
	latency time.Duration
}

// Run issues GET requests to opts.URL at opts.Rate for opts.Duration. An
// arrival that finds every worker busy is dropped rather than queued, so the
// offered rate never exceeds the configured one.
func Run(ctx context.Context, client *http.Client, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	jobs := make(chan struct{})
	samples := make(chan sample, opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				samples <- fire(ctx, client, opts.URL)
			}
		}()
	}

	res := Result{ByStatus: make(map[int]int)}
	var latencies []time.Duration
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for s := range samples {
			res.ByStatus[s.status]++
			if s.status == 0 || s.status >= http.StatusBadRequest {
				res.Failed++
			}
			latencies = append(latencies, s.latency)
		}
	}()

	logger.Info("load test started",
		zap.String("url", opts.URL),
		zap.Float64("rate", opts.Rate),
		zap.Duration("duration", opts.Duration),
		zap.Int("workers", opts.Workers))

	start := time.Now()
	limiter := rate.NewLimiter(rate.Limit(opts.Rate), 1)
	for {
		// Wait refuses once the next slot falls past the deadline
		if err := limiter.Wait(runCtx); err != nil {
			break
		}
		select {
		case jobs <- struct{}{}:
			res.Sent++
		default:
			res.Dropped++
		}
	}
	close(jobs)
	wg.Wait()
	close(samples)
	<-collected
	res.Elapsed = time.Since(start)

	slices.Sort(latencies)
	res.P50 = percentile(latencies, 0.50)
	res.P95 = percentile(latencies, 0.95)
	if n := len(latencies); n > 0 {
		res.Max = latencies[n-1]
	}

	logger.Info("load test finished",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("dropped", res.Dropped),
		zap.Duration("p95", res.P95),
		zap.Duration("elapsed", res.Elapsed))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func fire(ctx context.Context, client *http.Client, url string) sample {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sample{latency: time.Since(start)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return sample{status: resp.StatusCode, latency: time.Since(start)}
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(rank, 0)]
}
