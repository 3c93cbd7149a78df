package scheduler

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/redis"
)

const defaultRedisDelayPrefix = "waypost:"

// RedisDelay is a DelayBackend shared across workers: a sorted set scored by
// due time plus a hash holding the serialized tasks. Both keys share a hash
// tag so they land on one cluster slot.
type RedisDelay struct {
	client    redis.Cmdable
	keyPrefix string
}

var _ DelayBackend = &RedisDelay{}

type RedisDelayOption func(*RedisDelay)

// WithRedisDelayKeyPrefix overrides the key namespace so multiple deployments
// can share a Redis database.
func WithRedisDelayKeyPrefix(prefix string) RedisDelayOption {
	return func(d *RedisDelay) {
		d.keyPrefix = prefix
	}
}

func NewRedisDelay(client redis.Cmdable, opts ...RedisDelayOption) *RedisDelay {
	d := &RedisDelay{
		client:    client,
		keyPrefix: defaultRedisDelayPrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *RedisDelay) scheduleKey() string {
	return d.keyPrefix + "{delay}:schedule"
}

func (d *RedisDelay) tasksKey() string {
	return d.keyPrefix + "{delay}:tasks"
}

func (d *RedisDelay) Schedule(ctx context.Context, task models.AttemptTask, dueAt time.Time) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := d.client.TxPipeline()
	pipe.ZAdd(ctx, d.scheduleKey(), redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: task.DeliveryID,
	})
	pipe.HSet(ctx, d.tasksKey(), task.DeliveryID, data)
	_, err = pipe.Exec(ctx)
	return err
}

func (d *RedisDelay) Due(ctx context.Context, now time.Time, limit int) ([]models.AttemptTask, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := d.client.ZRangeByScore(ctx, d.scheduleKey(), opt).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := d.client.HMGet(ctx, d.tasksKey(), ids...).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]models.AttemptTask, 0, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Schedule entry without a task body; drop the orphan.
			d.client.ZRem(ctx, d.scheduleKey(), ids[i])
			continue
		}
		task := models.AttemptTask{}
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (d *RedisDelay) Remove(ctx context.Context, deliveryID string) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, d.scheduleKey(), deliveryID)
	pipe.HDel(ctx, d.tasksKey(), deliveryID)
	_, err := pipe.Exec(ctx)
	return err
}
