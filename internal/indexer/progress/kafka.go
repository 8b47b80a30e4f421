package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Publisher is the part of *kafka.Producer the Kafka sink needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Kafka buffers progress events and flushes them to a topic either when the
// buffer reaches batchSize or every flushInterval. Flushing happens only on
// the loop started by Start. Events that cannot be
// buffered are dropped so the pipeline never waits on the broker.
type Kafka struct {
	publisher     Publisher
	key           string
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	logger        *slog.Logger
	kick          chan struct{}
	done          chan struct{}
	dropped       int64
}

// NewKafka creates a sink that publishes under the given message key.
func NewKafka(publisher Publisher, key string, batchSize int, flushInterval time.Duration) *Kafka {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Kafka{
		publisher:     publisher,
		key:           key,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 4,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "progress-kafka"),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. It returns immediately; the loop
// runs until ctx is cancelled and then performs a final flush.
func (k *Kafka) Start(ctx context.Context) {
	go func() {
		defer close(k.done)
		ticker := time.NewTicker(k.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.flush(ctx)
			case <-k.kick:
				k.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				k.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
}

func (k *Kafka) Report(ev Event) {
	k.mu.Lock()
	if len(k.buffer) >= k.maxBuffered {
		k.dropped++
		k.mu.Unlock()
		return
	}
	k.buffer = append(k.buffer, kafka.Event{Key: k.key, Value: ev})
	full := len(k.buffer) >= k.batchSize
	k.mu.Unlock()

	if full {
		select {
		case k.kick <- struct{}{}:
		default:
		}
	}
}

// Close waits for the flush loop started by Start to exit.
func (k *Kafka) Close() {
	<-k.done
}

// Buffered returns the number of events waiting to be flushed.
func (k *Kafka) Buffered() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buffer)
}

// Dropped returns how many events were discarded because the buffer was full.
func (k *Kafka) Dropped() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dropped
}

func (k *Kafka) flush(ctx context.Context) {
	k.mu.Lock()
	if len(k.buffer) == 0 {
		k.mu.Unlock()
		return
	}
	batch := k.buffer
	k.buffer = make([]kafka.Event, 0, k.batchSize)
	k.mu.Unlock()

	if err := k.publisher.PublishBatch(ctx, batch); err != nil {
		// Progress is best-effort; a failed batch is not retried.
		k.logger.Warn("progress flush failed", "events", len(batch), "error", err)
		return
	}
	k.logger.Debug("progress flushed", "events", len(batch))
}
