package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/disputekit/disputekit/internal/core"
)

// UpsertTemplate creates or updates a template. An empty ID is assigned.
func (s *Store) UpsertTemplate(ctx context.Context, tpl *core.Template) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if tpl == nil {
		return errors.New("template is required")
	}

	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return &core.ValidationRejectedError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(tpl.Body) == "" {
		return &core.ValidationRejectedError{Field: "body", Reason: "is required"}
	}
	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.Bureau != "" {
		tpl.Bureau = core.NormalizeBureau(string(tpl.Bureau))
		if !tpl.Bureau.Known() {
			return &core.ValidationRejectedError{Field: "bureau", Reason: fmt.Sprintf("unknown bureau %q", tpl.Bureau)}
		}
	}
	if tpl.Type == "" {
		tpl.Type = core.DisputeTypeAccount
	}

	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO templates (id, name, type, bureau, subject, body, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			bureau = excluded.bureau,
			subject = excluded.subject,
			body = excluded.body,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, tpl.ID, tpl.Name, string(tpl.Type), nullString(string(tpl.Bureau)), tpl.Subject, tpl.Body,
		boolToInt(tpl.IsActive), tpl.CreatedAt.Unix(), tpl.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store template: %w", err)
	}
	return nil
}

// GetTemplate returns a template by ID, or a NotFoundError.
func (s *Store) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, type, bureau, subject, body, is_active, created_at, updated_at
		FROM templates
		WHERE id = ?
	`, strings.TrimSpace(id))

	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "template", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return tpl, nil
}

// ListTemplates returns templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context, activeOnly bool) ([]core.Template, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `SELECT id, name, type, bureau, subject, body, is_active, created_at, updated_at FROM templates`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	templates := make([]core.Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*core.Template, error) {
	var (
		tpl       core.Template
		tplType   string
		bureau    sql.NullString
		active    int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &tplType, &bureau, &tpl.Subject, &tpl.Body, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tpl.Type = core.DisputeType(tplType)
	tpl.Bureau = core.Bureau(bureau.String)
	tpl.IsActive = active != 0
	tpl.CreatedAt = time.Unix(createdAt, 0).UTC()
	tpl.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &tpl, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
