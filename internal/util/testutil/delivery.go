package testutil

import (
	"time"

	"github.com/wayposthq/waypost/internal/idgen"
	"github.com/wayposthq/waypost/internal/models"
)

// ============================== Mock Delivery ==============================

var DeliveryFactory = &mockDeliveryFactory{}

type mockDeliveryFactory struct {
}

func (f *mockDeliveryFactory) Any(opts ...func(*models.Delivery)) models.Delivery {
	delivery := models.Delivery{
		ID:         idgen.Delivery(),
		EndpointID: idgen.Endpoint(),
		Event:      EventFactory.Any(),
		Status:     models.DeliveryStatusPending,
		Attempts:   0,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&delivery)
	}

	return delivery
}

func (f *mockDeliveryFactory) AnyPointer(opts ...func(*models.Delivery)) *models.Delivery {
	delivery := f.Any(opts...)
	return &delivery
}

func (f *mockDeliveryFactory) WithID(id string) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.ID = id
	}
}

func (f *mockDeliveryFactory) WithEndpointID(endpointID string) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.EndpointID = endpointID
	}
}

func (f *mockDeliveryFactory) WithEvent(event models.Event) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.Event = event
	}
}

func (f *mockDeliveryFactory) WithStatus(status models.DeliveryStatus) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.Status = status
	}
}

func (f *mockDeliveryFactory) WithAttempts(attempts int) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.Attempts = attempts
	}
}

func (f *mockDeliveryFactory) WithErrorCode(code string) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.ErrorCode = code
	}
}

func (f *mockDeliveryFactory) WithDurationMS(durationMS int64) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.DurationMS = durationMS
	}
}

func (f *mockDeliveryFactory) WithCreatedAt(createdAt time.Time) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.CreatedAt = createdAt
	}
}

func (f *mockDeliveryFactory) WithLastAttemptAt(lastAttemptAt time.Time) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.LastAttemptAt = &lastAttemptAt
	}
}

func (f *mockDeliveryFactory) WithNextRetryAt(nextRetryAt time.Time) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.NextRetryAt = &nextRetryAt
	}
}

func (f *mockDeliveryFactory) WithResponse(response models.DeliveryResponse) func(*models.Delivery) {
	return func(delivery *models.Delivery) {
		delivery.Response = &response
	}
}
