package backoff_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wayposthq/waypost/internal/backoff"
)

type testCase struct {
	retries int
	want    time.Duration
}

func testBackoff(t *testing.T, name string, bo backoff.Backoff, testCases []testCase) {
	t.Parallel()
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s.Duration(%d)", name, tc.retries), func(t *testing.T) {
			assert.Equal(t, tc.want, bo.Duration(tc.retries))
		})
	}
}

func TestBackoff_Exponential(t *testing.T) {
	t.Parallel()
	t.Run("ExponentialBackoff{Interval:30*time.Second,Base:2}", func(t *testing.T) {
		bo := &backoff.ExponentialBackoff{
			Interval: 30 * time.Second,
			Base:     2,
		}
		testCases := []testCase{
			{0, 30 * time.Second},
			{1, 60 * time.Second},
			{2, 120 * time.Second},
			{3, 240 * time.Second},
			{4, 480 * time.Second},
			{5, 960 * time.Second},
			{6, 1920 * time.Second},
			{7, 3840 * time.Second},
			{8, 7680 * time.Second},
			{9, 15360 * time.Second},
			{10, 30720 * time.Second},
		}
		testBackoff(t, "ExponentialBackoff{Interval:30*time.Second,Base:2}", bo, testCases)
	})

	t.Run("ExponentialBackoff{Interval:30*time.Second,Base:3}", func(t *testing.T) {
		bo := &backoff.ExponentialBackoff{
			Interval: 30 * time.Second,
			Base:     3,
		}
		testCases := []testCase{
			{0, 30 * time.Second},
			{1, 90 * time.Second},
			{2, 270 * time.Second},
			{3, 810 * time.Second},
			{4, 2430 * time.Second},
			{5, 7290 * time.Second},
		}
		testBackoff(t, "ExponentialBackoff{Interval:30*time.Second,Base:3}", bo, testCases)
	})

	t.Run("ExponentialBackoff{Interval:1*time.Second,Base:2,Max:1*time.Hour}", func(t *testing.T) {
		bo := &backoff.ExponentialBackoff{
			Interval: 1 * time.Second,
			Base:     2,
			Max:      1 * time.Hour,
		}
		testCases := []testCase{
			{0, 1 * time.Second},
			{1, 2 * time.Second},
			{2, 4 * time.Second},
			{10, 1024 * time.Second},
			{11, 2048 * time.Second},
			{12, 1 * time.Hour}, // 4096s capped at 3600s
			{13, 1 * time.Hour},
			{60, 1 * time.Hour}, // far past float precision, still capped
		}
		testBackoff(t, "ExponentialBackoff{Interval:1*time.Second,Base:2,Max:1*time.Hour}", bo, testCases)
	})

	t.Run("ExponentialBackoff{Interval:1*time.Second,Base:1.5,Max:10*time.Second}", func(t *testing.T) {
		bo := &backoff.ExponentialBackoff{
			Interval: 1 * time.Second,
			Base:     1.5,
			Max:      10 * time.Second,
		}
		testCases := []testCase{
			{0, 1 * time.Second},
			{1, 1500 * time.Millisecond},
			{2, 2250 * time.Millisecond},
			{6, 10 * time.Second}, // 11.39s capped
		}
		testBackoff(t, "ExponentialBackoff{Interval:1*time.Second,Base:1.5,Max:10*time.Second}", bo, testCases)
	})
}

func TestBackoff_Constant(t *testing.T) {
	bo := &backoff.ConstantBackoff{
		Interval: 30 * time.Second,
	}
	testCases := []testCase{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	testBackoff(t, "ConstantBackoff{Interval:30*time.Second}", bo, testCases)
}

func TestBackoff_Scheduled(t *testing.T) {
	t.Parallel()

	t.Run("CustomSchedule", func(t *testing.T) {
		bo := &backoff.ScheduledBackoff{
			Schedule: []time.Duration{
				5 * time.Second,
				1 * time.Minute,
				10 * time.Minute,
				1 * time.Hour,
				2 * time.Hour,
			},
		}
		testCases := []testCase{
			{0, 5 * time.Second},
			{1, 1 * time.Minute},
			{2, 10 * time.Minute},
			{3, 1 * time.Hour},
			{4, 2 * time.Hour},
			{5, 2 * time.Hour},  // Beyond schedule, returns last value
			{10, 2 * time.Hour}, // Beyond schedule, returns last value
		}
		testBackoff(t, "ScheduledBackoff{Custom}", bo, testCases)
	})

	t.Run("EmptySchedule", func(t *testing.T) {
		bo := &backoff.ScheduledBackoff{
			Schedule: []time.Duration{},
		}
		testCases := []testCase{
			{0, 0},
			{1, 0},
			{5, 0},
		}
		testBackoff(t, "ScheduledBackoff{Empty}", bo, testCases)
	})

	t.Run("SingleElement", func(t *testing.T) {
		bo := &backoff.ScheduledBackoff{
			Schedule: []time.Duration{1 * time.Minute},
		}
		testCases := []testCase{
			{0, 1 * time.Minute},
			{1, 1 * time.Minute}, // Beyond schedule, returns last value
			{5, 1 * time.Minute}, // Beyond schedule, returns last value
		}
		testBackoff(t, "ScheduledBackoff{Single}", bo, testCases)
	})
}
