package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

var defaultQueries = []string{
	"the",
	"search engine",
	"inverted index",
	"skip list",
	"document ranking",
	"context window",
	"query processing",
	"搜索 引擎",
}

type Config struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	QPS          float64
	SuggestRatio int
	Queries      []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	qps := flag.Float64("qps", 0, "overall request rate limit (0 = unlimited)")
	suggestRatio := flag.Int("suggest-every", 5, "send a suggest request every n-th request (0 = never)")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	logger.Setup("info", "text")

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			slog.Error("failed to read queries", "error", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		Concurrency:  *concurrency,
		Duration:     *duration,
		QPS:          *qps,
		SuggestRatio: *suggestRatio,
		Queries:      queries,
	}
	slog.Info("load test starting",
		"target", cfg.BaseURL,
		"concurrency", cfg.Concurrency,
		"duration", cfg.Duration,
		"qps", cfg.QPS,
		"queries", len(cfg.Queries),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	stats := run(ctx, cfg)
	stats.Report(os.Stdout, time.Since(start))

	if stats.Total() == 0 {
		slog.Error("no requests completed; is the service running?")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	limiter := rate.NewLimiter(limit, max(cfg.Concurrency, 1))

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				endpoint, target := requestFor(cfg, i)
				begin := time.Now()
				status, err := get(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(endpoint, time.Since(begin), status, err)
			}
		})
	}
	_ = g.Wait()
	return stats
}

// requestFor picks the i-th request of a worker. Every SuggestRatio-th
// request asks for suggestions on the first three letters of the query.
func requestFor(cfg Config, i int) (endpoint, target string) {
	q := cfg.Queries[i%len(cfg.Queries)]
	if cfg.SuggestRatio > 0 && i%cfg.SuggestRatio == cfg.SuggestRatio-1 {
		prefix := []rune(strings.Fields(q + " x")[0])
		prefix = prefix[:min(3, len(prefix))]
		return "suggest", fmt.Sprintf("%s/api/v1/suggest?prefix=%s&limit=10", cfg.BaseURL, url.QueryEscape(string(prefix)))
	}
	return "search", fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", cfg.BaseURL, url.QueryEscape(q))
}

func get(ctx context.Context, client *http.Client, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}
