// Package memstore provides an in-memory implementation of driver.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
)

type memStore struct {
	mu         sync.RWMutex
	endpoints  map[string]*models.Endpoint
	deliveries map[string]*models.Delivery
}

var _ driver.Store = (*memStore)(nil)

func New() driver.Store {
	return &memStore{
		endpoints:  make(map[string]*models.Endpoint),
		deliveries: make(map[string]*models.Delivery),
	}
}

func (s *memStore) CreateEndpoint(ctx context.Context, endpoint models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[endpoint.ID]; ok {
		return driver.ErrDuplicateEndpoint
	}
	s.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

func (s *memStore) RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endpoint, ok := s.endpoints[endpointID]
	if !ok {
		return nil, driver.ErrEndpointNotFound
	}
	return endpoint.Clone(), nil
}

func (s *memStore) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endpoints := make([]models.Endpoint, 0, len(s.endpoints))
	for _, endpoint := range s.endpoints {
		endpoints = append(endpoints, *endpoint.Clone())
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if !endpoints[i].CreatedAt.Equal(endpoints[j].CreatedAt) {
			return endpoints[i].CreatedAt.Before(endpoints[j].CreatedAt)
		}
		return endpoints[i].ID < endpoints[j].ID
	})
	return endpoints, nil
}

func (s *memStore) UpsertEndpoint(ctx context.Context, endpoint models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

// DeleteEndpoint removes the endpoint but keeps its delivery history.
// Pending deliveries for a deleted endpoint fail on their next attempt.
func (s *memStore) DeleteEndpoint(ctx context.Context, endpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[endpointID]; !ok {
		return driver.ErrEndpointNotFound
	}
	delete(s.endpoints, endpointID)
	return nil
}

func (s *memStore) CreateDelivery(ctx context.Context, delivery models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[delivery.ID]; ok {
		return driver.ErrDuplicateDelivery
	}
	s.deliveries[delivery.ID] = delivery.Clone()
	return nil
}

func (s *memStore) RetrieveDelivery(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivery, ok := s.deliveries[deliveryID]
	if !ok {
		return nil, driver.ErrDeliveryNotFound
	}
	return delivery.Clone(), nil
}

func (s *memStore) UpdateDelivery(ctx context.Context, delivery models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[delivery.ID]; !ok {
		return driver.ErrDeliveryNotFound
	}
	s.deliveries[delivery.ID] = delivery.Clone()
	return nil
}

func (s *memStore) DeleteDelivery(ctx context.Context, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[deliveryID]; !ok {
		return driver.ErrDeliveryNotFound
	}
	delete(s.deliveries, deliveryID)
	return nil
}

func (s *memStore) ListDeliveries(ctx context.Context, req driver.ListDeliveriesRequest) (driver.ListDeliveriesResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Delivery, 0)
	for _, delivery := range s.deliveries {
		if req.EndpointID != "" && delivery.EndpointID != req.EndpointID {
			continue
		}
		if req.Status != "" && delivery.Status != req.Status {
			continue
		}
		matched = append(matched, delivery)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	count := len(matched)
	matched = page(matched, req.Offset, req.Limit)

	data := make([]models.Delivery, len(matched))
	for i, delivery := range matched {
		data[i] = *delivery.Clone()
	}

	return driver.ListDeliveriesResponse{Data: data, Count: count}, nil
}

func page(deliveries []*models.Delivery, offset, limit int) []*models.Delivery {
	if offset >= len(deliveries) {
		return nil
	}
	deliveries = deliveries[offset:]
	if limit > 0 && limit < len(deliveries) {
		deliveries = deliveries[:limit]
	}
	return deliveries
}
