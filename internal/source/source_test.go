package source

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func TestStaticLoad(t *testing.T) {
	src := Static{{Path: "a", Content: "x"}, {Path: "b", Content: "y"}}
	var events []progress.Event
	docs, err := src.Load(context.Background(), progress.Func(func(ev progress.Event) {
		events = append(events, ev)
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[1].Path != "b" {
		t.Fatalf("docs = %+v", docs)
	}
	if len(events) != 2 || events[1].Current != 2 || events[1].Total != 2 || events[1].Phase != progress.PhaseLoad {
		t.Errorf("events = %+v", events)
	}
}

func TestStaticLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Static{{Path: "a"}}).Load(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestPostgresQueriesQuoteTable(t *testing.T) {
	p := NewPostgres(nil, `docs"; drop table x; --`)
	want := `SELECT path, content FROM "docs""; drop table x; --" ORDER BY id`
	if got := p.selectQuery(); got != want {
		t.Errorf("selectQuery() = %s", got)
	}
	if p.Name() != `postgres:docs"; drop table x; --` {
		t.Errorf("Name() = %s", p.Name())
	}
}

// Runs against a live database when DS_TEST_POSTGRES_HOST is set. The table
// is created and dropped by the test.
func TestPostgresLoad(t *testing.T) {
	host := os.Getenv("DS_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("DS_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	client, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer client.Close()

	client.DB.SetMaxOpenConns(1)
	ctx := context.Background()
	if _, err := client.DB.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS src_test (id serial, path text, content text)`); err != nil {
		t.Fatal(err)
	}
	for _, d := range []index.RawDocument{{Path: "b.txt", Content: "the dog"}, {Path: "a.txt", Content: "the cat"}} {
		if _, err := client.DB.ExecContext(ctx, `INSERT INTO src_test (path, content) VALUES ($1, $2)`, d.Path, d.Content); err != nil {
			t.Fatal(err)
		}
	}
	docs, err := NewPostgres(client, "src_test").Load(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Path != "b.txt" {
		t.Errorf("docs = %+v, want insertion order", docs)
	}
}
