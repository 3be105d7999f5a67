package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiln-run/runner/internal/domain"
)

// Record is one persisted row: a finished run's outcome plus the
// identifying fields the dispatcher used to route the task.
type Record struct {
	ID        uuid.UUID
	RunnerID  string
	TaskID    string
	SpecName  string
	Result    domain.RunnerResult
	CreatedAt time.Time
}

// Recorder is the audit-log repository for finished runs. A Recorder
// built around a nil pool degrades every method to a no-op, so callers
// that never configured history_db_url don't need to branch on it.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder wraps pool. pool may be nil.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record inserts one completed run's result.
func (r *Recorder) Record(ctx context.Context, runnerID, specName string, result domain.RunnerResult) error {
	if r.pool == nil {
		return nil
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO runner_results (id, runner_id, task_id, spec_name, success, error, error_kind, duration_seconds, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		uuid.New(),
		runnerID,
		result.TaskID,
		specName,
		result.Success,
		nullString(result.Error),
		nullString(string(result.ErrorKind)),
		result.DurationSeconds,
		resultJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert runner result: %w", err)
	}
	return nil
}

// GetByTaskID returns the most recent recorded result for taskID.
func (r *Recorder) GetByTaskID(ctx context.Context, taskID string) (*Record, error) {
	if r.pool == nil {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, runner_id, task_id, spec_name, result, created_at
		FROM runner_results
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanRow(r.pool.QueryRow(ctx, query, taskID))
}

// ListRecent returns the most recent limit records, newest first.
func (r *Recorder) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if r.pool == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, runner_id, task_id, spec_name, result, created_at
		FROM runner_results
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runner results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var resultJSON []byte
		if err := rows.Scan(&rec.ID, &rec.RunnerID, &rec.TaskID, &rec.SpecName, &resultJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan runner result: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Recorder) scanRow(row pgx.Row) (*Record, error) {
	var rec Record
	var resultJSON []byte

	err := row.Scan(&rec.ID, &rec.RunnerID, &rec.TaskID, &rec.SpecName, &resultJSON, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan runner result: %w", err)
	}

	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &rec, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
