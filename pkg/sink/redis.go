package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"go.uber.org/zap"
)

const redisWriteTimeout = 2 * time.Second

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix of the per-sensor stream keys, "<prefix>:<sensorId>".
	Prefix string
	// MaxLen caps each stream approximately; 0 keeps everything.
	MaxLen int64
}

// Redis appends every event to a per-sensor Redis stream with XADD.
type Redis struct {
	client *redis.Client
	prefix string
	maxLen int64
	log    *zap.Logger
}

func NewRedis(cfg RedisConfig, log *zap.Logger) *Redis {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sensortag"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
		maxLen: cfg.MaxLen,
		log:    log,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) args(e sensortag.Event) *redis.XAddArgs {
	values := map[string]interface{}{
		"kind":      Name(e.Kind),
		"sensor_id": e.SensorID,
		"timestamp": e.Time.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range e.Values() {
		values[k] = v
	}
	return &redis.XAddArgs{
		Stream: fmt.Sprintf("%s:%s", r.prefix, e.SensorID),
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		ID:     "*",
		Values: values,
	}
}

func (r *Redis) Handle(e sensortag.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	if err := r.client.XAdd(ctx, r.args(e)).Err(); err != nil {
		r.log.Error("cannot append event to stream", zap.String("sensorId", e.SensorID), zap.Error(err))
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
