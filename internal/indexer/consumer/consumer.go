// Package consumer reads reindex requests from Kafka and drives full index
// rebuilds through the indexer engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// ReindexRequest is the payload of a reindex message. Every field is
// informational; any well-formed message triggers a full rebuild.
type ReindexRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// Rebuilder is the part of *indexer.Engine the consumer needs.
type Rebuilder interface {
	Rebuild(ctx context.Context, src source.Source) (indexer.BuildReport, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleReindex returns a Kafka MessageHandler that rebuilds the index from
// src for each reindex request. Malformed messages and requests that arrive
// while a build is already running are acknowledged without a rebuild, as are
// builds cancelled through the engine. A failed build is not retried.
func HandleReindex(engine Rebuilder, src source.Source) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ReindexRequest](value)
		if err != nil {
			logger.Error("failed to decode reindex request",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Info("reindex requested",
			"reason", req.Reason,
			"requested_by", req.RequestedBy,
		)

		report, err := engine.Rebuild(ctx, src)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return fmt.Errorf("rebuild interrupted: %w", err)
		case errors.Is(err, apperrors.ErrBuildInProgress):
			logger.Info("reindex skipped, build already running")
			return nil
		case errors.Is(err, apperrors.ErrBuildCancelled):
			logger.Info("reindex cancelled", "build_id", report.BuildID, "error", err)
			return nil
		case errors.Is(err, apperrors.ErrBuildFailed):
			// The source already retried its own loading.
			return resilience.Permanent(fmt.Errorf("rebuilding index: %w", err))
		default:
			return fmt.Errorf("rebuilding index: %w", err)
		}
		logger.Info("reindex complete",
			"build_id", report.BuildID,
			"generation", report.Generation,
			"doc_count", report.Documents,
		)
		return nil
	}
}
