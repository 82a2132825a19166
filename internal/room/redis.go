package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend shares variables and broadcasts between processes. Variables
// live under room:<room>:var:<name>; messages go to room:<room>:bus.
type RedisBackend struct {
	client *goredis.Client
	logger *zap.Logger
}

func NewRedisBackend(cfg RedisConfig, logger *zap.Logger) (*RedisBackend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisBackendWithClient(client, logger), nil
}

func NewRedisBackendWithClient(client *goredis.Client, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{client: client, logger: logger}
}

func variableKey(room, name string) string {
	return fmt.Sprintf("room:%s:var:%s", room, name)
}

func busChannel(room string) string {
	return fmt.Sprintf("room:%s:bus", room)
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) Load(ctx context.Context, room, name string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, variableKey(room, name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Save(ctx context.Context, room, name string, value []byte) error {
	return r.client.Set(ctx, variableKey(room, name), value, 0).Err()
}

func (r *RedisBackend) Publish(ctx context.Context, room string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode room message: %w", err)
	}
	return r.client.Publish(ctx, busChannel(room), payload).Err()
}

// Subscribe returns once the subscription is confirmed, so messages published
// after it returns are not missed.
func (r *RedisBackend) Subscribe(ctx context.Context, room string) (<-chan Message, func(), error) {
	ps := r.client.Subscribe(ctx, busChannel(room))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", busChannel(room), err)
	}

	ch := make(chan Message, 256)
	done := make(chan struct{})
	go func() {
		defer close(ch)
		for raw := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Warn("dropping malformed room message", zap.String("channel", raw.Channel), zap.Error(err))
				continue
			}
			select {
			case ch <- msg:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return ch, cancel, nil
}
