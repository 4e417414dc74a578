// Package audit provides asynchronous delivery of execution records.
//
// The engine's evaluation pass is latency-sensitive (it sits inside save
// paths of the host application), so durable audit writes are moved off the
// hot path: QueuedSink accepts records into a bounded in-memory queue and a
// background drainer persists them with exponential-backoff retries.
// Delivery intent is at-least-once; a record the drainer exhausts retries on
// is logged and dropped, never blocking evaluation.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/types"
)

// Sink persists a single execution record durably.
type Sink interface {
	Record(ctx context.Context, rec *types.ExecutionRecord) error
}

// DefaultQueueSize bounds the in-flight record queue when the caller does
// not configure one.
const DefaultQueueSize = 256

// maxRetryElapsed caps how long the drainer retries one record before
// dropping it.
const maxRetryElapsed = 30 * time.Second

// QueuedSink decouples record acceptance from durable persistence.
type QueuedSink struct {
	sink Sink
	log  *zap.Logger

	queue chan *types.ExecutionRecord

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewQueuedSink starts a queued sink draining into the underlying sink.
// size <= 0 selects DefaultQueueSize.
func NewQueuedSink(sink Sink, size int, log *zap.Logger) *QueuedSink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	q := &QueuedSink{
		sink:  sink,
		log:   log,
		queue: make(chan *types.ExecutionRecord, size),
		done:  make(chan struct{}),
	}
	go q.drain()
	return q
}

// Record enqueues without blocking. A full queue drops the record with a log
// line; evaluation latency is never held hostage to audit throughput.
// Records arriving after Close are dropped, never a panic in the caller.
func (q *QueuedSink) Record(_ context.Context, rec *types.ExecutionRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warn("audit sink closed, dropping record",
			zap.String("execution_id", string(rec.ID)),
			zap.String("trigger", rec.Trigger))
		return nil
	}

	select {
	case q.queue <- rec:
		return nil
	default:
		q.log.Error("audit queue full, dropping record",
			zap.String("execution_id", string(rec.ID)),
			zap.String("trigger", rec.Trigger))
		return nil
	}
}

// Close stops accepting records and drains the queue before returning.
// The closed flag is flipped under the same lock Record holds while sending,
// so the channel close cannot race an in-flight send.
func (q *QueuedSink) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.queue)
		q.mu.Unlock()
		<-q.done
	})
}

func (q *QueuedSink) drain() {
	defer close(q.done)
	for rec := range q.queue {
		q.persist(rec)
	}
}

// persist writes one record with exponential backoff. Exhausted retries drop
// the record with an error log; the queue keeps moving.
func (q *QueuedSink) persist(rec *types.ExecutionRecord) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxRetryElapsed

	op := func() error {
		return q.sink.Record(context.Background(), rec)
	}
	if err := backoff.Retry(op, policy); err != nil {
		q.log.Error("audit record dropped after retries",
			zap.String("execution_id", string(rec.ID)),
			zap.Error(err))
	}
}
