// Package stats aggregates delivery outcomes per endpoint. It is a pure
// read path: one store snapshot in, one summary out.
package stats

import (
	"context"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
)

// DeliveryLister is the slice of the store the aggregation reads.
type DeliveryLister interface {
	ListDeliveries(ctx context.Context, req driver.ListDeliveriesRequest) (driver.ListDeliveriesResponse, error)
}

// DeliveryStats summarizes every delivery created for one endpoint.
// Pending includes deliveries parked between retries. AverageDurationMS
// averages the last observed attempt duration across deliveries that have
// been attempted at least once. SuccessRate is delivered over total as a
// percentage; both are zero when there is nothing to aggregate.
type DeliveryStats struct {
	Total             int     `json:"total"`
	Delivered         int     `json:"delivered"`
	Failed            int     `json:"failed"`
	Pending           int     `json:"pending"`
	AverageDurationMS float64 `json:"average_duration_ms"`
	SuccessRate       float64 `json:"success_rate"`
}

// Compute aggregates over a single consistent snapshot of the endpoint's
// deliveries. It does not check that the endpoint exists; an unknown id
// yields the zero value.
func Compute(ctx context.Context, deliveries DeliveryLister, endpointID string) (DeliveryStats, error) {
	resp, err := deliveries.ListDeliveries(ctx, driver.ListDeliveriesRequest{EndpointID: endpointID})
	if err != nil {
		return DeliveryStats{}, err
	}

	stats := DeliveryStats{Total: resp.Count}
	durationSum := int64(0)
	durationCount := 0
	for i := range resp.Data {
		delivery := &resp.Data[i]
		switch delivery.Status {
		case models.DeliveryStatusDelivered:
			stats.Delivered++
		case models.DeliveryStatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
		if delivery.Attempts > 0 {
			durationSum += delivery.DurationMS
			durationCount++
		}
	}

	if durationCount > 0 {
		stats.AverageDurationMS = float64(durationSum) / float64(durationCount)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Delivered) / float64(stats.Total) * 100
	}
	return stats, nil
}
