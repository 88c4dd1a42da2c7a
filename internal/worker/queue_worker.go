package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// queueWorker drains a Redis list into a store in batches: a bulk write
// first, then row by row, and whatever still fails goes back on the queue.
type queueWorker[T any] struct {
	queue  string
	rdb    *redis.Client
	bulk   func(ctx context.Context, batch []T) error
	single func(ctx context.Context, item T) error
	log    zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	errorBackoff time.Duration
	requeueDelay time.Duration
}

func newQueueWorker[T any](queue string, rdb *redis.Client, bulk func(context.Context, []T) error, single func(context.Context, T) error, log zerolog.Logger) *queueWorker[T] {
	return &queueWorker[T]{
		queue:        queue,
		rdb:          rdb,
		bulk:         bulk,
		single:       single,
		log:          log,
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		errorBackoff: 3 * time.Second,
		requeueDelay: 2 * time.Second,
	}
}

func (w *queueWorker[T]) run(ctx context.Context) {
	buffer := make([]T, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop blocks for pollTimeout. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, w.pollTimeout, w.queue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Dur("backoff", w.errorBackoff).Msg("Redis connection error")
			sleep(ctx, w.errorBackoff)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed JSON can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (w *queueWorker[T]) flushSafe(ctx context.Context, batch []T) {
	if len(batch) == 0 {
		return
	}
	err := w.bulk(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk write failed, attempting row-by-row recovery")

	failed := make([]T, 0)
	for _, item := range batch {
		if err := w.single(ctx, item); err != nil {
			w.log.Error().Err(err).Msg("Insert failed, requeueing")
			failed = append(failed, item)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *queueWorker[T]) requeue(ctx context.Context, items []T) {
	pipe := w.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	sleep(ctx, w.requeueDelay)
}

func (w *queueWorker[T]) shutdown(buffer []T) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
