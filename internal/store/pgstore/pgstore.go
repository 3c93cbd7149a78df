// Package pgstore provides a PostgreSQL-backed implementation of driver.Store.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
)

type store struct {
	db *pgxpool.Pool
}

var _ driver.Store = (*store)(nil)

func New(db *pgxpool.Pool) driver.Store {
	return &store{db: db}
}

const endpointColumns = `id, url, secret, previous_secret, event_types, headers, retry_config, active, created_at, updated_at, rotated_at`

func (s *store) CreateEndpoint(ctx context.Context, endpoint models.Endpoint) error {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO endpoints (`+endpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, endpointArgs(endpoint)...)
	if err != nil {
		return fmt.Errorf("insert endpoint failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return driver.ErrDuplicateEndpoint
	}
	return nil
}

func (s *store) UpsertEndpoint(ctx context.Context, endpoint models.Endpoint) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO endpoints (`+endpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			previous_secret = EXCLUDED.previous_secret,
			event_types = EXCLUDED.event_types,
			headers = EXCLUDED.headers,
			retry_config = EXCLUDED.retry_config,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			rotated_at = EXCLUDED.rotated_at
	`, endpointArgs(endpoint)...)
	if err != nil {
		return fmt.Errorf("upsert endpoint failed: %w", err)
	}
	return nil
}

func endpointArgs(endpoint models.Endpoint) []any {
	return []any{
		endpoint.ID,
		endpoint.URL,
		endpoint.Secret,
		endpoint.PreviousSecret,
		[]string(endpoint.EventTypes),
		endpoint.Headers,
		endpoint.RetryConfig,
		endpoint.Active,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
		endpoint.RotatedAt,
	}
}

func (s *store) RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+endpointColumns+`
		FROM endpoints
		WHERE id = $1
	`, endpointID)

	endpoint, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driver.ErrEndpointNotFound
		}
		return nil, err
	}
	return endpoint, nil
}

func (s *store) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM endpoints
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	endpoints := []models.Endpoint{}
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *endpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return endpoints, nil
}

func (s *store) DeleteEndpoint(ctx context.Context, endpointID string) error {
	// Deliveries are left in place so history outlives the endpoint.
	ct, err := s.db.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, endpointID)
	if err != nil {
		return fmt.Errorf("delete endpoint failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return driver.ErrEndpointNotFound
	}
	return nil
}

func scanEndpoint(row pgx.Row) (*models.Endpoint, error) {
	var (
		endpoint   models.Endpoint
		eventTypes []string
	)
	if err := row.Scan(
		&endpoint.ID,
		&endpoint.URL,
		&endpoint.Secret,
		&endpoint.PreviousSecret,
		&eventTypes,
		&endpoint.Headers,
		&endpoint.RetryConfig,
		&endpoint.Active,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
		&endpoint.RotatedAt,
	); err != nil {
		return nil, err
	}
	endpoint.EventTypes = models.EventTypes(eventTypes)
	return &endpoint, nil
}

const deliveryColumns = `id, endpoint_id, event_id, event_type, event_data, event_timestamp, status, attempts, error_code, error, response, duration_ms, last_attempt_at, next_retry_at, created_at, updated_at`

func (s *store) CreateDelivery(ctx context.Context, delivery models.Delivery) error {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`,
		delivery.ID,
		delivery.EndpointID,
		delivery.Event.ID,
		delivery.Event.Type,
		delivery.Event.Data,
		delivery.Event.Timestamp,
		string(delivery.Status),
		delivery.Attempts,
		delivery.ErrorCode,
		delivery.Error,
		delivery.Response,
		delivery.DurationMS,
		delivery.LastAttemptAt,
		delivery.NextRetryAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return driver.ErrDuplicateDelivery
	}
	return nil
}

func (s *store) UpdateDelivery(ctx context.Context, delivery models.Delivery) error {
	// Event fields are immutable once the delivery exists.
	ct, err := s.db.Exec(ctx, `
		UPDATE deliveries SET
			status = $2,
			attempts = $3,
			error_code = $4,
			error = $5,
			response = $6,
			duration_ms = $7,
			last_attempt_at = $8,
			next_retry_at = $9,
			updated_at = $10
		WHERE id = $1
	`,
		delivery.ID,
		string(delivery.Status),
		delivery.Attempts,
		delivery.ErrorCode,
		delivery.Error,
		delivery.Response,
		delivery.DurationMS,
		delivery.LastAttemptAt,
		delivery.NextRetryAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return driver.ErrDeliveryNotFound
	}
	return nil
}

func (s *store) RetrieveDelivery(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id = $1
	`, deliveryID)

	delivery, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driver.ErrDeliveryNotFound
		}
		return nil, err
	}
	return delivery, nil
}

func (s *store) DeleteDelivery(ctx context.Context, deliveryID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, deliveryID)
	if err != nil {
		return fmt.Errorf("delete delivery failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return driver.ErrDeliveryNotFound
	}
	return nil
}

func (s *store) ListDeliveries(ctx context.Context, req driver.ListDeliveriesRequest) (driver.ListDeliveriesResponse, error) {
	limit := req.Limit
	if limit < 0 {
		limit = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE ($1::text = '' OR endpoint_id = $1)
		AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($3::bigint, 0) OFFSET $4
	`,
		req.EndpointID,
		string(req.Status),
		limit,
		req.Offset,
	)
	if err != nil {
		return driver.ListDeliveriesResponse{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	data := []models.Delivery{}
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return driver.ListDeliveriesResponse{}, err
		}
		data = append(data, *delivery)
	}
	if err := rows.Err(); err != nil {
		return driver.ListDeliveriesResponse{}, fmt.Errorf("rows error: %w", err)
	}

	var count int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM deliveries
		WHERE ($1::text = '' OR endpoint_id = $1)
		AND ($2::text = '' OR status = $2)
	`, req.EndpointID, string(req.Status)).Scan(&count); err != nil {
		return driver.ListDeliveriesResponse{}, fmt.Errorf("count failed: %w", err)
	}

	return driver.ListDeliveriesResponse{Data: data, Count: count}, nil
}

func scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var (
		delivery models.Delivery
		status   string
	)
	if err := row.Scan(
		&delivery.ID,
		&delivery.EndpointID,
		&delivery.Event.ID,
		&delivery.Event.Type,
		&delivery.Event.Data,
		&delivery.Event.Timestamp,
		&status,
		&delivery.Attempts,
		&delivery.ErrorCode,
		&delivery.Error,
		&delivery.Response,
		&delivery.DurationMS,
		&delivery.LastAttemptAt,
		&delivery.NextRetryAt,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	); err != nil {
		return nil, err
	}
	delivery.Status = models.DeliveryStatus(status)
	return &delivery, nil
}
