package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

const appName = "docsearch-query"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	if err := makeApp().Run(os.Args); err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "build an in-memory index once and query it"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Value:  "",
			EnvVar: "DS_CONFIG",
			Usage:  "path to a YAML config file",
		},
		cli.StringSliceFlag{
			Name:  "file",
			Usage: "index this local file instead of the PostgreSQL table (repeatable)",
		},
		cli.StringFlag{
			Name:   "backend",
			EnvVar: "DS_INDEX_BACKEND",
			Usage:  "skiplist or trie",
		},
		cli.BoolFlag{
			Name:  "progress",
			Usage: "log build progress to stderr",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "stats",
			Usage:  "build the index and print its statistics",
			Action: runStats,
		},
		{
			Name:      "search",
			Usage:     "build the index and run a query",
			ArgsUsage: "<query>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit", Usage: "maximum number of results (0 = search.maxResults)"},
			},
			Action: runSearch,
		},
		{
			Name:      "suggest",
			Usage:     "build the index and list tokens starting with a prefix",
			ArgsUsage: "<prefix>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit", Value: 10, Usage: "maximum number of tokens"},
			},
			Action: runSuggest,
		},
	}
	return app
}

func runStats(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	engine, report, err := buildIndex(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"build": report, "index": engine.Stats()})
}

func runSearch(c *cli.Context) error {
	query := strings.Join(c.Args(), " ")
	if query == "" {
		return cli.NewExitError("a query is required", 2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	engine, _, err := buildIndex(ctx, c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	result, err := executor.New(engine, cfg.Search.MaxResults).Execute(ctx, query, c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runSuggest(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	engine, _, err := buildIndex(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(engine.Suggest(c.Args().First(), c.Int("limit")))
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if b := c.GlobalString("backend"); b != "" {
		cfg.Index.Backend = b
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildIndex(ctx context.Context, c *cli.Context) (*indexer.Engine, indexer.BuildReport, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, indexer.BuildReport{}, err
	}
	level := "warn"
	if c.GlobalBool("progress") {
		level = "info"
	}
	logger.SetupTo(os.Stderr, level, "text")

	var sink progress.Sink
	if c.GlobalBool("progress") {
		sink = progress.NewLog(slog.Default().With("component", "build-progress"), 100)
	}
	engine, err := indexer.NewEngine(cfg.Index, nil, sink)
	if err != nil {
		return nil, indexer.BuildReport{}, err
	}

	var src source.Source
	if files := c.GlobalStringSlice("file"); len(files) > 0 {
		docs, err := readFiles(files)
		if err != nil {
			return nil, indexer.BuildReport{}, err
		}
		src = docs
	} else {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, indexer.BuildReport{}, fmt.Errorf("no --file given and postgres unavailable: %w", err)
		}
		defer db.Close()
		src = source.NewPostgres(db, cfg.Postgres.Table)
	}

	report, err := engine.Rebuild(ctx, src)
	if err != nil {
		return nil, report, err
	}
	return engine, report, nil
}

func readFiles(paths []string) (source.Static, error) {
	docs := make(source.Static, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		docs = append(docs, index.RawDocument{Path: p, Content: string(data)})
	}
	return docs, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
