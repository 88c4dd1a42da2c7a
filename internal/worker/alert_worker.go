package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AlertStore persists proctoring alerts.
type AlertStore interface {
	CopyAlerts(ctx context.Context, alerts []model.Alert) error
	InsertAlert(ctx context.Context, a model.Alert) error
}

// AlertWorker moves queued alerts into the journal database.
type AlertWorker struct {
	*queueWorker[model.Alert]
}

func NewAlertWorker(store AlertStore, rdb *redis.Client, log zerolog.Logger) *AlertWorker {
	return &AlertWorker{newQueueWorker(
		config.WorkerKey.PersistAlertsQueue, rdb,
		store.CopyAlerts, store.InsertAlert,
		log.With().Str("component", "alert_worker").Logger(),
	)}
}

func (w *AlertWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AlertWorker started")
	w.run(ctx)
}
