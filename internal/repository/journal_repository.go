package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// JournalRepository persists proctoring alerts and attempt results.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

var alertColumns = []string{"session_id", "exam_id", "seq", "severity", "event", "message", "issued_at"}

// CopyAlerts bulk-inserts alerts with COPY.
func (r *JournalRepository) CopyAlerts(ctx context.Context, alerts []model.Alert) error {
	rows := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []any{
			a.SessionID, a.ExamID, int64(a.Seq), string(a.Severity), a.Event, a.Message, a.IssuedAt,
		})
	}

	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"proctor_alerts"}, alertColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy alerts: %w", err)
	}
	return nil
}

// InsertAlert inserts a single alert.
func (r *JournalRepository) InsertAlert(ctx context.Context, a model.Alert) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctor_alerts (session_id, exam_id, seq, severity, event, message, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.SessionID, a.ExamID, int64(a.Seq), string(a.Severity), a.Event, a.Message, a.IssuedAt,
	)
	return err
}

const upsertResultSQL = `
	INSERT INTO attempt_results (
		session_id, exam_id, exam_title, score, total_questions, answered, percentage,
		passed, server_score, end_reason, submit_error, duration_seconds, alert_count, submitted_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (session_id) DO UPDATE SET
		score = EXCLUDED.score,
		answered = EXCLUDED.answered,
		percentage = EXCLUDED.percentage,
		passed = EXCLUDED.passed,
		server_score = EXCLUDED.server_score,
		submit_error = EXCLUDED.submit_error,
		alert_count = EXCLUDED.alert_count,
		submitted_at = EXCLUDED.submitted_at`

func resultArgs(res model.Result) []any {
	return []any{
		res.SessionID, res.ExamID, res.ExamTitle, res.Score, res.TotalQuestions, res.Answered,
		res.Percentage, res.Passed, res.ServerScore, string(res.EndReason), res.SubmitError,
		res.DurationSecs, res.AlertCount, res.SubmittedAt,
	}
}

// UpsertResults writes a batch of results in one round trip.
func (r *JournalRepository) UpsertResults(ctx context.Context, results []model.Result) error {
	batch := &pgx.Batch{}
	for _, res := range results {
		batch.Queue(upsertResultSQL, resultArgs(res)...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert results: %w", err)
	}
	return nil
}

// UpsertResult writes a single result.
func (r *JournalRepository) UpsertResult(ctx context.Context, res model.Result) error {
	_, err := r.pool.Exec(ctx, upsertResultSQL, resultArgs(res)...)
	return err
}

// ListRecent returns a page of submitted attempts, newest first, and the
// total number of attempts.
func (r *JournalRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.Result, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attempt_results`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, exam_id, exam_title, score, total_questions, answered, percentage,
		        passed, server_score, end_reason, submit_error, duration_seconds, alert_count, submitted_at
		 FROM attempt_results
		 ORDER BY submitted_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]model.Result, 0)
	for rows.Next() {
		var res model.Result
		var reason string
		if err := rows.Scan(
			&res.SessionID, &res.ExamID, &res.ExamTitle, &res.Score, &res.TotalQuestions, &res.Answered,
			&res.Percentage, &res.Passed, &res.ServerScore, &reason, &res.SubmitError,
			&res.DurationSecs, &res.AlertCount, &res.SubmittedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		res.EndReason = model.EndReason(reason)
		results = append(results, res)
	}
	return results, total, rows.Err()
}
