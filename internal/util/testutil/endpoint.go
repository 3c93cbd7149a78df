package testutil

import (
	"time"

	"github.com/wayposthq/waypost/internal/idgen"
	"github.com/wayposthq/waypost/internal/models"
)

// ============================== Mock Endpoint ==============================

var EndpointFactory = &mockEndpointFactory{}

type mockEndpointFactory struct {
}

func (f *mockEndpointFactory) Any(opts ...func(*models.Endpoint)) models.Endpoint {
	secret, err := models.NewSecret()
	if err != nil {
		panic(err)
	}

	endpoint := models.Endpoint{
		ID:         idgen.Endpoint(),
		URL:        "http://127.0.0.1:4444/webhook",
		Secret:     secret,
		EventTypes: models.EventTypes{"*"},
		Active:     true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&endpoint)
	}

	return endpoint
}

func (f *mockEndpointFactory) AnyPointer(opts ...func(*models.Endpoint)) *models.Endpoint {
	endpoint := f.Any(opts...)
	return &endpoint
}

func (f *mockEndpointFactory) WithID(id string) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.ID = id
	}
}

func (f *mockEndpointFactory) WithURL(url string) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.URL = url
	}
}

func (f *mockEndpointFactory) WithSecret(secret string) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.Secret = secret
	}
}

func (f *mockEndpointFactory) WithEventTypes(eventTypes []string) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.EventTypes = eventTypes
	}
}

func (f *mockEndpointFactory) WithHeaders(headers map[string]string) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.Headers = headers
	}
}

func (f *mockEndpointFactory) WithRetryConfig(retryConfig models.RetryConfig) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.RetryConfig = &retryConfig
	}
}

func (f *mockEndpointFactory) WithActive(active bool) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.Active = active
	}
}

func (f *mockEndpointFactory) WithCreatedAt(createdAt time.Time) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.CreatedAt = createdAt
	}
}

func (f *mockEndpointFactory) WithRotatedAt(rotatedAt time.Time) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.RotatedAt = &rotatedAt
	}
}

func (f *mockEndpointFactory) WithPreviousSecret(secret string) func(*models.Endpoint) {
	return func(endpoint *models.Endpoint) {
		endpoint.PreviousSecret = secret
	}
}
