package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// IndexCompleteEvent is published to the index-complete topic after every
// build.
type IndexCompleteEvent struct {
	BuildID     string      `json:"build_id"`
	Status      BuildStatus `json:"status"`
	Generation  uint64      `json:"generation,omitempty"`
	Documents   int         `json:"documents"`
	Entries     int         `json:"entries"`
	Postings    int         `json:"postings"`
	Batches     int         `json:"batches"`
	DurationMs  int64       `json:"duration_ms"`
	Error       string      `json:"error,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}

func newIndexCompleteEvent(r BuildReport) IndexCompleteEvent {
	return IndexCompleteEvent{
		BuildID:     r.BuildID.String(),
		Status:      r.Status,
		Generation:  r.Generation,
		Documents:   r.Documents,
		Entries:     r.Entries,
		Postings:    r.Postings,
		Batches:     r.Batches,
		DurationMs:  r.Duration.Milliseconds(),
		Error:       r.Error,
		CompletedAt: time.Now().UTC(),
	}
}

// Publisher is the part of *kafka.Producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// PublishBuilds returns an OnBuild hook that publishes every report as an
// IndexCompleteEvent keyed by build id. Publishing is retried briefly and
// failures are only logged.
func PublishBuilds(pub Publisher) func(BuildReport) {
	logger := slog.Default().With("component", "index-notifier")
	return func(r BuildReport) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ev := kafka.Event{
			Key:     r.BuildID.String(),
			Value:   newIndexCompleteEvent(r),
			Headers: map[string]string{"event": "index.complete", "status": string(r.Status)},
		}
		err := resilience.Retry(ctx, "publish index.complete", resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
			return pub.Publish(ctx, ev)
		})
		if err != nil {
			logger.Error("failed to publish build report", "build_id", r.BuildID, "error", err)
		}
	}
}
