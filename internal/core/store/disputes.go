package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/disputekit/disputekit/internal/core"
)

// CreateDispute inserts a draft dispute. An existing dispute for the same
// client, bureau, type and accounts is reported as DuplicateDetectedError.
func (s *Store) CreateDispute(ctx context.Context, req core.DisputeRequest) (*core.Dispute, error) {
	if s == nil || s.DB == nil {
		return nil, &core.TransientUnavailableError{Err: errors.New("store is not initialized")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := accountKey(req)
	if existing, err := s.findDispute(ctx, req.ClientID, req.Bureau, key); err != nil {
		return nil, err
	} else if existing != "" {
		return nil, &core.DuplicateDetectedError{ExistingID: existing, ClientID: req.ClientID, Bureau: req.Bureau}
	}

	accounts, err := json.Marshal(nonNil(req.AccountNumbers))
	if err != nil {
		return nil, &core.ValidationRejectedError{Field: "account_numbers", Reason: err.Error()}
	}

	dispute := &core.Dispute{
		DisputeRequest: req,
		ID:             uuid.NewString(),
		Status:         core.DisputeStatusDraft,
		CreatedAt:      time.Now().UTC(),
	}

	var dueDate sql.NullInt64
	if !req.DueDate.IsZero() {
		dueDate = sql.NullInt64{Int64: req.DueDate.UTC().Unix(), Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO disputes (
			id, reference, batch_id, client_id, template_id, type, priority, bureau,
			reason, description, due_date, subject, letter_content, account_numbers,
			account_key, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, dispute.ID, nullString(req.Reference), nullString(req.BatchID), req.ClientID, req.TemplateID,
		string(req.Type), string(req.Priority), string(req.Bureau), req.Reason, req.Description,
		dueDate, req.Subject, req.LetterContent, string(accounts), key,
		string(dispute.Status), dispute.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			existing, findErr := s.findDispute(ctx, req.ClientID, req.Bureau, key)
			if findErr == nil && existing != "" {
				return nil, &core.DuplicateDetectedError{ExistingID: existing, ClientID: req.ClientID, Bureau: req.Bureau}
			}
		}
		return nil, classifyWriteError("store dispute", err)
	}
	return dispute, nil
}

// DisputeFilter narrows ListDisputes. Empty fields match everything.
type DisputeFilter struct {
	BatchID  string
	ClientID string
}

// ListDisputes returns disputes ordered by creation time.
func (s *Store) ListDisputes(ctx context.Context, filter DisputeFilter) ([]core.Dispute, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT id, reference, batch_id, client_id, template_id, type, priority, bureau,
			reason, description, due_date, subject, letter_content, account_numbers, status, created_at
		FROM disputes
		WHERE 1 = 1`
	args := make([]any, 0, 2)
	if id := strings.TrimSpace(filter.BatchID); id != "" {
		query += ` AND batch_id = ?`
		args = append(args, id)
	}
	if id := strings.TrimSpace(filter.ClientID); id != "" {
		query += ` AND client_id = ?`
		args = append(args, id)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	disputes := make([]core.Dispute, 0)
	for rows.Next() {
		var (
			d                               core.Dispute
			reference, batchID              sql.NullString
			reason, description             sql.NullString
			dueDate                         sql.NullInt64
			dtype, priority, bureau, status string
			accounts                        string
			createdAt                       int64
		)
		if err := rows.Scan(&d.ID, &reference, &batchID, &d.ClientID, &d.TemplateID, &dtype, &priority, &bureau,
			&reason, &description, &dueDate, &d.Subject, &d.LetterContent, &accounts, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		d.Reference = reference.String
		d.BatchID = batchID.String
		d.Reason = reason.String
		d.Description = description.String
		d.Type = core.DisputeType(dtype)
		d.Priority = core.Priority(priority)
		d.Bureau = core.Bureau(bureau)
		d.Status = core.DisputeStatus(status)
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		if dueDate.Valid {
			d.DueDate = time.Unix(dueDate.Int64, 0).UTC()
		}
		if err := json.Unmarshal([]byte(accounts), &d.AccountNumbers); err != nil {
			return nil, fmt.Errorf("decode dispute accounts: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	return disputes, nil
}

// LastReferenceSeq returns the highest DSP-<year>-NNNNNN sequence stored for year.
func (s *Store) LastReferenceSeq(ctx context.Context, year int) (uint64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prefix := fmt.Sprintf("DSP-%d-", year)
	var last sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT MAX(reference) FROM disputes WHERE reference LIKE ?
	`, prefix+"%").Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("load last reference: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	seq, err := strconv.ParseUint(strings.TrimPrefix(last.String, prefix), 10, 64)
	if err != nil {
		return 0, nil
	}
	return seq, nil
}

func (s *Store) findDispute(ctx context.Context, clientID string, bureau core.Bureau, key string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id FROM disputes WHERE client_id = ? AND bureau = ? AND account_key = ?
	`, clientID, string(bureau), key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classifyWriteError("check duplicate dispute", err)
	}
	return id, nil
}

// accountKey identifies equivalent disputes regardless of account order.
func accountKey(req core.DisputeRequest) string {
	accounts := make([]string, 0, len(req.AccountNumbers))
	for _, acct := range req.AccountNumbers {
		acct = strings.ToUpper(strings.TrimSpace(acct))
		if acct != "" {
			accounts = append(accounts, acct)
		}
	}
	sort.Strings(accounts)
	return string(req.Type) + ":" + strings.Join(accounts, "|")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// classifyWriteError marks lock contention and timeouts as retryable.
func classifyWriteError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "busy"),
		strings.Contains(msg, "connection"):
		return &core.TransientUnavailableError{Err: fmt.Errorf("%s: %w", op, err)}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
