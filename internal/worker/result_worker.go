package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResultStore persists attempt results. Writes are upserts keyed by session.
type ResultStore interface {
	UpsertResults(ctx context.Context, results []model.Result) error
	UpsertResult(ctx context.Context, r model.Result) error
}

// ResultWorker moves queued attempt results into the journal database.
type ResultWorker struct {
	*queueWorker[model.Result]
}

func NewResultWorker(store ResultStore, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{newQueueWorker(
		config.WorkerKey.PersistResultsQueue, rdb,
		store.UpsertResults, store.UpsertResult,
		log.With().Str("component", "result_worker").Logger(),
	)}
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")
	w.run(ctx)
}
