package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disputekit/disputekit/internal/core"
)

// UpsertClient creates or updates a client record.
func (s *Store) UpsertClient(ctx context.Context, client core.ClientContext) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id := strings.TrimSpace(client.ClientID)
	if id == "" {
		return &core.ValidationRejectedError{Field: "client_id", Reason: "is required"}
	}
	if strings.TrimSpace(client.FirstName) == "" && strings.TrimSpace(client.LastName) == "" {
		return &core.ValidationRejectedError{Field: "name", Reason: "first or last name is required"}
	}

	var dob sql.NullInt64
	if client.DateOfBirth != nil {
		dob = sql.NullInt64{Int64: client.DateOfBirth.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO clients (id, first_name, last_name, street, city, state, zip, phone, email, ssn, date_of_birth, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			street = excluded.street,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip,
			phone = excluded.phone,
			email = excluded.email,
			ssn = excluded.ssn,
			date_of_birth = excluded.date_of_birth,
			updated_at = excluded.updated_at
	`, id, strings.TrimSpace(client.FirstName), strings.TrimSpace(client.LastName),
		client.Address.Street, client.Address.City, client.Address.State, client.Address.Zip,
		client.Phone, client.Email, client.SSN, dob, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store client: %w", err)
	}
	return nil
}

// GetClient returns one client, or a NotFoundError.
func (s *Store) GetClient(ctx context.Context, id string) (*core.ClientContext, error) {
	clients, missing, err := s.ListSelected(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &core.NotFoundError{Kind: "client", ID: id}
	}
	client := clients[strings.TrimSpace(id)]
	return &client, nil
}

// ListSelected loads the given clients. IDs with no record are returned as
// missing rather than failing the call.
func (s *Store) ListSelected(ctx context.Context, ids []string) (map[string]core.ClientContext, []core.MissingClient, error) {
	if s == nil || s.DB == nil {
		return nil, nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	wanted := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		wanted = append(wanted, id)
	}

	found := make(map[string]core.ClientContext, len(wanted))
	if len(wanted) == 0 {
		return found, nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(wanted)), ",")
	args := make([]any, len(wanted))
	for i, id := range wanted {
		args[i] = id
	}

	// #nosec G202 -- placeholders are generated, values are bound
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, first_name, last_name, street, city, state, zip, phone, email, ssn, date_of_birth
		FROM clients
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan client: %w", err)
		}
		found[client.ClientID] = *client
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load clients: %w", err)
	}

	var missing []core.MissingClient
	for _, id := range wanted {
		if _, ok := found[id]; !ok {
			missing = append(missing, core.MissingClient{ClientID: id, Reason: "client record not found"})
		}
	}
	return found, missing, nil
}

// ListClients returns all clients ordered by last then first name.
func (s *Store) ListClients(ctx context.Context) ([]core.ClientContext, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, first_name, last_name, street, city, state, zip, phone, email, ssn, date_of_birth
		FROM clients
		ORDER BY last_name, first_name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	clients := make([]core.ClientContext, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

func scanClient(row rowScanner) (*core.ClientContext, error) {
	var (
		client                                 core.ClientContext
		street, city, state, zip, phone, email sql.NullString
		ssn                                    sql.NullString
		dob                                    sql.NullInt64
	)
	if err := row.Scan(&client.ClientID, &client.FirstName, &client.LastName,
		&street, &city, &state, &zip, &phone, &email, &ssn, &dob); err != nil {
		return nil, err
	}
	client.Address = core.Address{Street: street.String, City: city.String, State: state.String, Zip: zip.String}
	client.Phone = phone.String
	client.Email = email.String
	client.SSN = ssn.String
	if dob.Valid {
		born := time.Unix(dob.Int64, 0).UTC()
		client.DateOfBirth = &born
	}
	return &client, nil
}
