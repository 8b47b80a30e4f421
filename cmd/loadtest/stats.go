package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// Stats aggregates request outcomes per endpoint.
type Stats struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

type endpointStats struct {
	total, errors int64
	latencies     []time.Duration
	statusCodes   map[int]int64
}

func NewStats() *Stats {
	return &Stats{endpoints: make(map[string]*endpointStats)}
}

// Record adds one request. status 0 with a non-nil err is a transport
// failure and contributes no latency sample.
func (s *Stats) Record(endpoint string, d time.Duration, status int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[endpoint]
	if !ok {
		ep = &endpointStats{statusCodes: make(map[int]int64)}
		s.endpoints[endpoint] = ep
	}
	ep.total++
	if err != nil {
		ep.errors++
		return
	}
	if status < 200 || status >= 300 {
		ep.errors++
	}
	ep.latencies = append(ep.latencies, d)
	ep.statusCodes[status]++
}

func (s *Stats) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ep := range s.endpoints {
		n += ep.total
	}
	return n
}

// Summary is the latency digest of one endpoint.
type Summary struct {
	Endpoint      string
	Total, Errors int64
	Min, Avg, Max time.Duration
	P50, P90, P99 time.Duration
	StdDev        time.Duration
	StatusCodes   map[int]int64
}

func (s *Stats) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.endpoints))
	for name, ep := range s.endpoints {
		sum := Summary{
			Endpoint:    name,
			Total:       ep.total,
			Errors:      ep.errors,
			StatusCodes: make(map[int]int64, len(ep.statusCodes)),
		}
		for code, n := range ep.statusCodes {
			sum.StatusCodes[code] = n
		}
		if lat := slices.Clone(ep.latencies); len(lat) > 0 {
			slices.Sort(lat)
			var total time.Duration
			for _, l := range lat {
				total += l
			}
			sum.Min, sum.Max = lat[0], lat[len(lat)-1]
			sum.Avg = total / time.Duration(len(lat))
			sum.P50 = percentile(lat, 50)
			sum.P90 = percentile(lat, 90)
			sum.P99 = percentile(lat, 99)
			var sq float64
			for _, l := range lat {
				diff := float64(l - sum.Avg)
				sq += diff * diff
			}
			sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(lat))))
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func (s *Stats) Report(w io.Writer, elapsed time.Duration) {
	for _, sum := range s.Summaries() {
		fmt.Fprintf(w, "=== %s ===\n", sum.Endpoint)
		fmt.Fprintf(w, "Requests:     %d (%.2f/s)\n", sum.Total, float64(sum.Total)/elapsed.Seconds())
		fmt.Fprintf(w, "Errors:       %d (%.2f%%)\n", sum.Errors, float64(sum.Errors)/float64(max(sum.Total, 1))*100)
		fmt.Fprintf(w, "Latency:      min %s  avg %s  max %s  stddev %s\n", sum.Min, sum.Avg, sum.Max, sum.StdDev)
		fmt.Fprintf(w, "Percentiles:  p50 %s  p90 %s  p99 %s\n", sum.P50, sum.P90, sum.P99)
		codes := make([]int, 0, len(sum.StatusCodes))
		for code := range sum.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, sum.StatusCodes[code])
		}
		fmt.Fprintln(w)
	}
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
