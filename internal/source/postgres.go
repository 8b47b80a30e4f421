package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// TxRunner runs fn in a read-only transaction. *postgres.Client satisfies it.
type TxRunner interface {
	ReadOnly(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Postgres loads every row of a table with path and content columns,
// ordered by id. Count and rows are read from the same snapshot.
type Postgres struct {
	db     TxRunner
	table  string
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewPostgres(db TxRunner, table string) *Postgres {
	return &Postgres{
		db:     db,
		table:  table,
		logger: slog.Default().With("component", "postgres-source", "table", table),
	}
}

func (p *Postgres) Name() string { return "postgres:" + p.table }

func (p *Postgres) countQuery() string {
	return "SELECT count(*) FROM " + pq.QuoteIdentifier(p.table)
}

func (p *Postgres) selectQuery() string {
	return "SELECT path, content FROM " + pq.QuoteIdentifier(p.table) + " ORDER BY id"
}

func (p *Postgres) Load(ctx context.Context, sink progress.Sink) ([]index.RawDocument, error) {
	sink = progress.OrDiscard(sink)
	var docs []index.RawDocument
	err := resilience.Retry(ctx, "load documents", p.retry, func(ctx context.Context) error {
		var err error
		docs, err = p.load(ctx, sink)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading documents from %s: %w", p.table, err)
	}
	p.logger.Info("documents loaded", "doc_count", len(docs))
	return docs, nil
}

func (p *Postgres) load(ctx context.Context, sink progress.Sink) ([]index.RawDocument, error) {
	var docs []index.RawDocument
	err := p.db.ReadOnly(ctx, func(tx *sql.Tx) error {
		var total int
		if err := tx.QueryRowContext(ctx, p.countQuery()).Scan(&total); err != nil {
			return fmt.Errorf("counting documents: %w", err)
		}
		rows, err := tx.QueryContext(ctx, p.selectQuery())
		if err != nil {
			return fmt.Errorf("querying documents: %w", err)
		}
		defer rows.Close()

		docs = make([]index.RawDocument, 0, total)
		for rows.Next() {
			var d index.RawDocument
			if err := rows.Scan(&d.Path, &d.Content); err != nil {
				return fmt.Errorf("scanning document row: %w", err)
			}
			docs = append(docs, d)
			sink.Report(progress.Event{
				Phase:   progress.PhaseLoad,
				Current: len(docs),
				Total:   total,
				Message: d.Path,
			})
		}
		return rows.Err()
	})
	return docs, err
}
