package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/disputekit/disputekit/internal/core"
)

// SaveBatch upserts the batch header. Items are written by SaveBatchItem.
// Stored counts never decrease, so headers saved out of order by concurrent
// workers cannot roll progress back.
func (s *Store) SaveBatch(ctx context.Context, result *core.BatchResult) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if result == nil {
		return errors.New("batch result is required")
	}

	var finished sql.NullInt64
	if result.FinishedAt != nil {
		finished = sql.NullInt64{Int64: result.FinishedAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO batch_runs (id, template_id, status, total, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			succeeded = MAX(batch_runs.succeeded, excluded.succeeded),
			failed = MAX(batch_runs.failed, excluded.failed),
			finished_at = excluded.finished_at
	`, result.BatchID, result.TemplateID, string(result.Status), result.Total,
		result.SucceededCount, result.FailedCount, result.StartedAt.UTC().Unix(), finished)
	if err != nil {
		return fmt.Errorf("store batch: %w", err)
	}
	return nil
}

// SaveBatchItem upserts one client outcome.
func (s *Store) SaveBatchItem(ctx context.Context, batchID string, item core.JobItemResult) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ids, err := json.Marshal(nonNil(item.DisputeIDs))
	if err != nil {
		return fmt.Errorf("encode dispute ids: %w", err)
	}
	bureaus := make([]string, 0, len(item.Bureaus))
	for _, b := range item.Bureaus {
		bureaus = append(bureaus, string(b))
	}
	bureauJSON, err := json.Marshal(bureaus)
	if err != nil {
		return fmt.Errorf("encode bureaus: %w", err)
	}
	var warnings sql.NullString
	if len(item.Warnings) > 0 {
		encoded, err := json.Marshal(item.Warnings)
		if err != nil {
			return fmt.Errorf("encode warnings: %w", err)
		}
		warnings = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO batch_items (batch_id, client_id, status, dispute_ids, bureaus, duplicate, attempts, error, error_code, warnings, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, client_id) DO UPDATE SET
			status = excluded.status,
			dispute_ids = excluded.dispute_ids,
			bureaus = excluded.bureaus,
			duplicate = excluded.duplicate,
			attempts = excluded.attempts,
			error = excluded.error,
			error_code = excluded.error_code,
			warnings = excluded.warnings,
			completed_at = excluded.completed_at
	`, batchID, item.ClientID, string(item.Status), string(ids), string(bureauJSON),
		boolToInt(item.Duplicate), item.Attempts, nullString(item.Error), nullString(item.ErrorCode),
		warnings, item.CompletedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store batch item: %w", err)
	}
	return nil
}

// GetBatch loads a stored batch with its items in completion order.
func (s *Store) GetBatch(ctx context.Context, id string) (*core.BatchResult, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		result   core.BatchResult
		status   string
		started  int64
		finished sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, template_id, status, total, succeeded, failed, started_at, finished_at
		FROM batch_runs WHERE id = ?
	`, id).Scan(&result.BatchID, &result.TemplateID, &status, &result.Total,
		&result.SucceededCount, &result.FailedCount, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "batch", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	result.Status = core.BatchStatus(status)
	result.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		at := time.Unix(finished.Int64, 0).UTC()
		result.FinishedAt = &at
	}

	items, err := s.listBatchItems(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Items = items
	return &result, nil
}

// ListBatches returns the most recent batch headers, newest first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]core.BatchResult, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, template_id, status, total, succeeded, failed, started_at, finished_at
		FROM batch_runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	batches := make([]core.BatchResult, 0)
	for rows.Next() {
		var (
			result   core.BatchResult
			status   string
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&result.BatchID, &result.TemplateID, &status, &result.Total,
			&result.SucceededCount, &result.FailedCount, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		result.Status = core.BatchStatus(status)
		result.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			at := time.Unix(finished.Int64, 0).UTC()
			result.FinishedAt = &at
		}
		batches = append(batches, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

func (s *Store) listBatchItems(ctx context.Context, batchID string) ([]core.JobItemResult, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT client_id, status, dispute_ids, bureaus, duplicate, attempts, error, error_code, warnings, completed_at
		FROM batch_items
		WHERE batch_id = ?
		ORDER BY completed_at, rowid
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch items: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	items := make([]core.JobItemResult, 0)
	for rows.Next() {
		var (
			item         core.JobItemResult
			status       string
			ids, bureaus string
			duplicate    int
			errMsg, code sql.NullString
			warnings     sql.NullString
			completedAt  int64
		)
		if err := rows.Scan(&item.ClientID, &status, &ids, &bureaus, &duplicate, &item.Attempts,
			&errMsg, &code, &warnings, &completedAt); err != nil {
			return nil, fmt.Errorf("scan batch item: %w", err)
		}
		item.Status = core.ItemStatus(status)
		item.Duplicate = duplicate != 0
		item.Error = errMsg.String
		item.ErrorCode = code.String
		item.CompletedAt = time.Unix(completedAt, 0).UTC()
		if err := json.Unmarshal([]byte(ids), &item.DisputeIDs); err != nil {
			return nil, fmt.Errorf("decode dispute ids: %w", err)
		}
		var names []string
		if err := json.Unmarshal([]byte(bureaus), &names); err != nil {
			return nil, fmt.Errorf("decode bureaus: %w", err)
		}
		for _, name := range names {
			item.Bureaus = append(item.Bureaus, core.Bureau(name))
		}
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &item.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load batch items: %w", err)
	}
	return items, nil
}
