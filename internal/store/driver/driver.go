// Package driver defines the Store interface implemented by each storage backend.
package driver

import (
	"context"
	"errors"

	"github.com/wayposthq/waypost/internal/models"
)

// Store persists endpoints and deliveries. Implementations must return
// copies: mutating a returned value never affects stored state.
type Store interface {
	CreateEndpoint(ctx context.Context, endpoint models.Endpoint) error
	RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]models.Endpoint, error)
	UpsertEndpoint(ctx context.Context, endpoint models.Endpoint) error
	DeleteEndpoint(ctx context.Context, endpointID string) error

	CreateDelivery(ctx context.Context, delivery models.Delivery) error
	RetrieveDelivery(ctx context.Context, deliveryID string) (*models.Delivery, error)
	UpdateDelivery(ctx context.Context, delivery models.Delivery) error
	DeleteDelivery(ctx context.Context, deliveryID string) error
	ListDeliveries(ctx context.Context, req ListDeliveriesRequest) (ListDeliveriesResponse, error)
}

var (
	ErrEndpointNotFound  = errors.New("endpoint does not exist")
	ErrDeliveryNotFound  = errors.New("delivery does not exist")
	ErrDuplicateEndpoint = errors.New("endpoint already exists")
	ErrDuplicateDelivery = errors.New("delivery already exists")
)

// ListDeliveriesRequest contains filter and page parameters for listing
// deliveries. Results are ordered by created_at descending; Offset is applied
// to the filtered set before Limit.
type ListDeliveriesRequest struct {
	EndpointID string                // optional - filter by endpoint
	Status     models.DeliveryStatus // optional - filter by status
	Limit      int                   // 0 = no limit
	Offset     int
}

// ListDeliveriesResponse contains one page of deliveries. Count is the total
// number of matches before paging.
type ListDeliveriesResponse struct {
	Data  []models.Delivery
	Count int
}
