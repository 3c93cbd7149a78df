// Package redisstore provides a Redis-backed implementation of driver.Store.
//
// Each entity lives in its own hash. Delivery IDs are indexed twice: a global
// sorted set and a per-endpoint sorted set, both scored by created_at in Unix
// milliseconds so reverse range reads give newest-first pages. Keys carry
// cluster hash tags; cross-slot operations stay on individual commands.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/redis"
	"github.com/wayposthq/waypost/internal/store/driver"
)

const defaultKeyPrefix = "waypost:"

type store struct {
	redisClient redis.Cmdable
	keyPrefix   string
}

var _ driver.Store = (*store)(nil)

// Option configures a redisstore.
type Option func(*store)

// WithKeyPrefix overrides the key namespace so multiple deployments can share
// a Redis database.
func WithKeyPrefix(prefix string) Option {
	return func(s *store) {
		s.keyPrefix = prefix
	}
}

// New creates a new Redis-backed Store.
func New(redisClient redis.Cmdable, opts ...Option) driver.Store {
	s := &store{
		redisClient: redisClient,
		keyPrefix:   defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) endpointKey(endpointID string) string {
	return fmt.Sprintf("%sendpoint:{%s}", s.keyPrefix, endpointID)
}

func (s *store) endpointDeliveriesKey(endpointID string) string {
	return fmt.Sprintf("%sendpoint:{%s}:deliveries", s.keyPrefix, endpointID)
}

func (s *store) endpointIndexKey() string {
	return s.keyPrefix + "endpoints"
}

func (s *store) deliveryKey(deliveryID string) string {
	return fmt.Sprintf("%sdelivery:{%s}", s.keyPrefix, deliveryID)
}

func (s *store) deliveryIndexKey() string {
	return s.keyPrefix + "deliveries"
}

func (s *store) CreateEndpoint(ctx context.Context, endpoint models.Endpoint) error {
	if exists, err := s.redisClient.Exists(ctx, s.endpointKey(endpoint.ID)).Result(); err != nil {
		return err
	} else if exists > 0 {
		return driver.ErrDuplicateEndpoint
	}

	if err := s.writeEndpointHash(ctx, endpoint); err != nil {
		return err
	}
	return s.redisClient.SAdd(ctx, s.endpointIndexKey(), endpoint.ID).Err()
}

func (s *store) UpsertEndpoint(ctx context.Context, endpoint models.Endpoint) error {
	if err := s.writeEndpointHash(ctx, endpoint); err != nil {
		return err
	}
	return s.redisClient.SAdd(ctx, s.endpointIndexKey(), endpoint.ID).Err()
}

func (s *store) writeEndpointHash(ctx context.Context, endpoint models.Endpoint) error {
	key := s.endpointKey(endpoint.ID)

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "id", endpoint.ID)
		pipe.HSet(ctx, key, "url", endpoint.URL)
		pipe.HSet(ctx, key, "secret", endpoint.Secret)
		pipe.HSet(ctx, key, "event_types", &endpoint.EventTypes)
		pipe.HSet(ctx, key, "active", strconv.FormatBool(endpoint.Active))
		pipe.HSet(ctx, key, "created_at", endpoint.CreatedAt.UnixMilli())
		pipe.HSet(ctx, key, "updated_at", endpoint.UpdatedAt.UnixMilli())

		if endpoint.PreviousSecret != "" {
			pipe.HSet(ctx, key, "previous_secret", endpoint.PreviousSecret)
		} else {
			pipe.HDel(ctx, key, "previous_secret")
		}

		if len(endpoint.Headers) > 0 {
			pipe.HSet(ctx, key, "headers", &endpoint.Headers)
		} else {
			pipe.HDel(ctx, key, "headers")
		}

		if endpoint.RetryConfig != nil {
			retryConfig, err := json.Marshal(endpoint.RetryConfig)
			if err != nil {
				return fmt.Errorf("invalid retry_config: %w", err)
			}
			pipe.HSet(ctx, key, "retry_config", retryConfig)
		} else {
			pipe.HDel(ctx, key, "retry_config")
		}

		if endpoint.RotatedAt != nil {
			pipe.HSet(ctx, key, "rotated_at", endpoint.RotatedAt.UnixMilli())
		} else {
			pipe.HDel(ctx, key, "rotated_at")
		}

		return nil
	})

	return err
}

func (s *store) RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error) {
	hash, err := s.redisClient.HGetAll(ctx, s.endpointKey(endpointID)).Result()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, driver.ErrEndpointNotFound
	}
	return parseEndpointHash(hash)
}

func (s *store) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	endpointIDs, err := s.redisClient.SMembers(ctx, s.endpointIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(endpointIDs) == 0 {
		return []models.Endpoint{}, nil
	}

	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(endpointIDs))
	for i, endpointID := range endpointIDs {
		cmds[i] = pipe.HGetAll(ctx, s.endpointKey(endpointID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	endpoints := make([]models.Endpoint, 0, len(endpointIDs))
	for _, cmd := range cmds {
		hash, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if len(hash) == 0 {
			// Index member without a hash: deleted concurrently.
			continue
		}
		endpoint, err := parseEndpointHash(hash)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *endpoint)
	}

	sort.Slice(endpoints, func(i, j int) bool {
		if !endpoints[i].CreatedAt.Equal(endpoints[j].CreatedAt) {
			return endpoints[i].CreatedAt.Before(endpoints[j].CreatedAt)
		}
		return endpoints[i].ID < endpoints[j].ID
	})
	return endpoints, nil
}

func (s *store) DeleteEndpoint(ctx context.Context, endpointID string) error {
	key := s.endpointKey(endpointID)
	if exists, err := s.redisClient.Exists(ctx, key).Result(); err != nil {
		return err
	} else if exists == 0 {
		return driver.ErrEndpointNotFound
	}

	// Delivery history and its index survive so past deliveries stay listable.
	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return err
	}
	return s.redisClient.SRem(ctx, s.endpointIndexKey(), endpointID).Err()
}

func (s *store) CreateDelivery(ctx context.Context, delivery models.Delivery) error {
	if exists, err := s.redisClient.Exists(ctx, s.deliveryKey(delivery.ID)).Result(); err != nil {
		return err
	} else if exists > 0 {
		return driver.ErrDuplicateDelivery
	}

	if err := s.writeDeliveryHash(ctx, delivery); err != nil {
		return err
	}

	member := redis.Z{Score: float64(delivery.CreatedAt.UnixMilli()), Member: delivery.ID}
	if err := s.redisClient.ZAdd(ctx, s.endpointDeliveriesKey(delivery.EndpointID), member).Err(); err != nil {
		return err
	}
	return s.redisClient.ZAdd(ctx, s.deliveryIndexKey(), member).Err()
}

func (s *store) UpdateDelivery(ctx context.Context, delivery models.Delivery) error {
	if exists, err := s.redisClient.Exists(ctx, s.deliveryKey(delivery.ID)).Result(); err != nil {
		return err
	} else if exists == 0 {
		return driver.ErrDeliveryNotFound
	}
	return s.writeDeliveryHash(ctx, delivery)
}

func (s *store) writeDeliveryHash(ctx context.Context, delivery models.Delivery) error {
	key := s.deliveryKey(delivery.ID)

	eventData := delivery.Event.Data
	if len(eventData) == 0 {
		eventData = json.RawMessage("null")
	}

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "id", delivery.ID)
		pipe.HSet(ctx, key, "endpoint_id", delivery.EndpointID)
		pipe.HSet(ctx, key, "status", string(delivery.Status))
		pipe.HSet(ctx, key, "attempts", delivery.Attempts)
		pipe.HSet(ctx, key, "error_code", delivery.ErrorCode)
		pipe.HSet(ctx, key, "error", delivery.Error)
		pipe.HSet(ctx, key, "duration_ms", delivery.DurationMS)
		pipe.HSet(ctx, key, "event_id", delivery.Event.ID)
		pipe.HSet(ctx, key, "event_type", delivery.Event.Type)
		pipe.HSet(ctx, key, "event_data", []byte(eventData))
		pipe.HSet(ctx, key, "event_timestamp", delivery.Event.Timestamp.UnixMilli())
		pipe.HSet(ctx, key, "created_at", delivery.CreatedAt.UnixMilli())
		pipe.HSet(ctx, key, "updated_at", delivery.UpdatedAt.UnixMilli())

		if delivery.Response != nil {
			response, err := json.Marshal(delivery.Response)
			if err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			pipe.HSet(ctx, key, "response", response)
		} else {
			pipe.HDel(ctx, key, "response")
		}

		if delivery.LastAttemptAt != nil {
			pipe.HSet(ctx, key, "last_attempt_at", delivery.LastAttemptAt.UnixMilli())
		} else {
			pipe.HDel(ctx, key, "last_attempt_at")
		}

		if delivery.NextRetryAt != nil {
			pipe.HSet(ctx, key, "next_retry_at", delivery.NextRetryAt.UnixMilli())
		} else {
			pipe.HDel(ctx, key, "next_retry_at")
		}

		return nil
	})

	return err
}

func (s *store) RetrieveDelivery(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	cmd := s.redisClient.HGetAll(ctx, s.deliveryKey(deliveryID))
	delivery, err := parseDeliveryHash(cmd)
	if err != nil {
		if err == redis.Nil {
			return nil, driver.ErrDeliveryNotFound
		}
		return nil, err
	}
	return delivery, nil
}

func (s *store) DeleteDelivery(ctx context.Context, deliveryID string) error {
	hash, err := s.redisClient.HGetAll(ctx, s.deliveryKey(deliveryID)).Result()
	if err != nil {
		return err
	}
	if len(hash) == 0 {
		return driver.ErrDeliveryNotFound
	}
	endpointID := hash["endpoint_id"]

	if err := s.redisClient.Del(ctx, s.deliveryKey(deliveryID)).Err(); err != nil {
		return err
	}
	if err := s.redisClient.ZRem(ctx, s.endpointDeliveriesKey(endpointID), deliveryID).Err(); err != nil {
		return err
	}
	return s.redisClient.ZRem(ctx, s.deliveryIndexKey(), deliveryID).Err()
}

func (s *store) ListDeliveries(ctx context.Context, req driver.ListDeliveriesRequest) (driver.ListDeliveriesResponse, error) {
	indexKey := s.deliveryIndexKey()
	if req.EndpointID != "" {
		indexKey = s.endpointDeliveriesKey(req.EndpointID)
	}

	// Without a status filter the sorted set pages directly. With one, the
	// page window is only known after filtering, so fetch everything.
	if req.Status == "" {
		return s.listDeliveriesByRange(ctx, indexKey, req)
	}
	return s.listDeliveriesFiltered(ctx, indexKey, req)
}

func (s *store) listDeliveriesByRange(ctx context.Context, indexKey string, req driver.ListDeliveriesRequest) (driver.ListDeliveriesResponse, error) {
	count, err := s.redisClient.ZCard(ctx, indexKey).Result()
	if err != nil {
		return driver.ListDeliveriesResponse{}, err
	}

	stop := int64(-1)
	if req.Limit > 0 {
		stop = int64(req.Offset + req.Limit - 1)
	}
	deliveryIDs, err := s.redisClient.ZRevRange(ctx, indexKey, int64(req.Offset), stop).Result()
	if err != nil {
		return driver.ListDeliveriesResponse{}, err
	}

	deliveries, err := s.fetchDeliveries(ctx, deliveryIDs)
	if err != nil {
		return driver.ListDeliveriesResponse{}, err
	}

	return driver.ListDeliveriesResponse{Data: deliveries, Count: int(count)}, nil
}

func (s *store) listDeliveriesFiltered(ctx context.Context, indexKey string, req driver.ListDeliveriesRequest) (driver.ListDeliveriesResponse, error) {
	deliveryIDs, err := s.redisClient.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return driver.ListDeliveriesResponse{}, err
	}

	deliveries, err := s.fetchDeliveries(ctx, deliveryIDs)
	if err != nil {
		return driver.ListDeliveriesResponse{}, err
	}

	matched := deliveries[:0]
	for _, delivery := range deliveries {
		if delivery.Status == req.Status {
			matched = append(matched, delivery)
		}
	}

	count := len(matched)
	if req.Offset >= count {
		return driver.ListDeliveriesResponse{Data: []models.Delivery{}, Count: count}, nil
	}
	matched = matched[req.Offset:]
	if req.Limit > 0 && req.Limit < len(matched) {
		matched = matched[:req.Limit]
	}

	return driver.ListDeliveriesResponse{Data: matched, Count: count}, nil
}

func (s *store) fetchDeliveries(ctx context.Context, deliveryIDs []string) ([]models.Delivery, error) {
	if len(deliveryIDs) == 0 {
		return []models.Delivery{}, nil
	}

	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(deliveryIDs))
	for i, deliveryID := range deliveryIDs {
		cmds[i] = pipe.HGetAll(ctx, s.deliveryKey(deliveryID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	deliveries := make([]models.Delivery, 0, len(deliveryIDs))
	for _, cmd := range cmds {
		delivery, err := parseDeliveryHash(cmd)
		if err != nil {
			if err == redis.Nil {
				// Index member without a hash: deleted concurrently.
				continue
			}
			return nil, err
		}
		deliveries = append(deliveries, *delivery)
	}
	return deliveries, nil
}
