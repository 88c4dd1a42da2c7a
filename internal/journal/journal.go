// Package journal queues proctoring alerts and attempt results on Redis for
// the persistence workers.
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Publisher pushes JSON records onto the persistence queues.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a Publisher on rdb.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// RecordAlert queues an alert shown to a candidate.
func (p *Publisher) RecordAlert(ctx context.Context, a model.Alert) error {
	return p.push(ctx, config.WorkerKey.PersistAlertsQueue, a)
}

// RecordResult queues the result of a submitted attempt.
func (p *Publisher) RecordResult(ctx context.Context, r model.Result) error {
	return p.push(ctx, config.WorkerKey.PersistResultsQueue, r)
}

func (p *Publisher) push(ctx context.Context, queue string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", queue, err)
	}
	if err := p.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", queue, err)
	}
	return nil
}

// Nop discards records when no Redis is configured.
type Nop struct{}

func (Nop) RecordAlert(context.Context, model.Alert) error   { return nil }
func (Nop) RecordResult(context.Context, model.Result) error { return nil }
