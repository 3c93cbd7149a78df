package redisstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/redis"
)

// parseEndpointHash parses a Redis hash map into an Endpoint struct.
func parseEndpointHash(hash map[string]string) (*models.Endpoint, error) {
	if hash["id"] == "" {
		return nil, fmt.Errorf("missing id")
	}

	e := &models.Endpoint{}
	e.ID = hash["id"]
	e.URL = hash["url"]
	e.Secret = hash["secret"]
	e.PreviousSecret = hash["previous_secret"]

	var err error
	e.Active, err = strconv.ParseBool(hash["active"])
	if err != nil {
		return nil, fmt.Errorf("invalid active: %w", err)
	}

	if err := e.EventTypes.UnmarshalBinary([]byte(hash["event_types"])); err != nil {
		return nil, fmt.Errorf("invalid event_types: %w", err)
	}

	if headersStr, exists := hash["headers"]; exists && headersStr != "" {
		if err := e.Headers.UnmarshalBinary([]byte(headersStr)); err != nil {
			return nil, fmt.Errorf("invalid headers: %w", err)
		}
	}

	if retryConfigStr, exists := hash["retry_config"]; exists && retryConfigStr != "" {
		retryConfig := &models.RetryConfig{}
		if err := json.Unmarshal([]byte(retryConfigStr), retryConfig); err != nil {
			return nil, fmt.Errorf("invalid retry_config: %w", err)
		}
		e.RetryConfig = retryConfig
	}

	e.CreatedAt, err = parseTimestamp(hash["created_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}

	if hash["updated_at"] != "" {
		e.UpdatedAt, err = parseTimestamp(hash["updated_at"])
		if err != nil {
			e.UpdatedAt = e.CreatedAt
		}
	} else {
		e.UpdatedAt = e.CreatedAt
	}

	if hash["rotated_at"] != "" {
		rotatedAt, err := parseTimestamp(hash["rotated_at"])
		if err == nil {
			e.RotatedAt = &rotatedAt
		}
	}

	return e, nil
}

// parseDeliveryHash parses a Redis HGetAll command result into a Delivery struct.
func parseDeliveryHash(cmd *redis.MapStringStringCmd) (*models.Delivery, error) {
	hash, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}

	d := &models.Delivery{}
	d.ID = hash["id"]
	d.EndpointID = hash["endpoint_id"]
	d.Status = models.DeliveryStatus(hash["status"])
	d.ErrorCode = hash["error_code"]
	d.Error = hash["error"]

	d.Attempts, err = strconv.Atoi(hash["attempts"])
	if err != nil {
		return nil, fmt.Errorf("invalid attempts: %w", err)
	}

	if hash["duration_ms"] != "" {
		d.DurationMS, err = strconv.ParseInt(hash["duration_ms"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration_ms: %w", err)
		}
	}

	d.Event.ID = hash["event_id"]
	d.Event.Type = hash["event_type"]
	if hash["event_data"] != "" && hash["event_data"] != "null" {
		d.Event.Data = json.RawMessage(hash["event_data"])
	}
	d.Event.Timestamp, err = parseTimestamp(hash["event_timestamp"])
	if err != nil {
		return nil, fmt.Errorf("invalid event_timestamp: %w", err)
	}

	if responseStr, exists := hash["response"]; exists && responseStr != "" {
		response := &models.DeliveryResponse{}
		if err := json.Unmarshal([]byte(responseStr), response); err != nil {
			return nil, fmt.Errorf("invalid response: %w", err)
		}
		d.Response = response
	}

	if hash["last_attempt_at"] != "" {
		lastAttemptAt, err := parseTimestamp(hash["last_attempt_at"])
		if err == nil {
			d.LastAttemptAt = &lastAttemptAt
		}
	}

	if hash["next_retry_at"] != "" {
		nextRetryAt, err := parseTimestamp(hash["next_retry_at"])
		if err == nil {
			d.NextRetryAt = &nextRetryAt
		}
	}

	d.CreatedAt, err = parseTimestamp(hash["created_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}

	if hash["updated_at"] != "" {
		d.UpdatedAt, err = parseTimestamp(hash["updated_at"])
		if err != nil {
			d.UpdatedAt = d.CreatedAt
		}
	} else {
		d.UpdatedAt = d.CreatedAt
	}

	return d, nil
}

// parseTimestamp parses a timestamp from either numeric (Unix milliseconds) or RFC3339 format.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ts).UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}

	return time.Parse(time.RFC3339, value)
}
