package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oriys/azlogforwarder/internal/config"
)

// RedisTrigger 从 Redis 列表读取队列消息。
// 先阻塞等待第一条消息，再非阻塞地弹出剩余消息凑成一批。
type RedisTrigger struct {
	cfg        config.RedisTriggerConfig
	client     *redis.Client
	dispatcher *Dispatcher
	logger     *logrus.Logger
}

// NewRedisTrigger 创建 Redis 队列触发器并验证连接。
func NewRedisTrigger(ctx context.Context, cfg config.RedisTriggerConfig, d *Dispatcher, logger *logrus.Logger) (*RedisTrigger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisTrigger(cfg, client, d, logger), nil
}

func newRedisTrigger(cfg config.RedisTriggerConfig, client *redis.Client, d *Dispatcher, logger *logrus.Logger) *RedisTrigger {
	return &RedisTrigger{cfg: cfg, client: client, dispatcher: d, logger: logger}
}

func (t *RedisTrigger) Name() string { return KindRedis }

// Ready 检查 Redis 连接。
func (t *RedisTrigger) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return t.client.Ping(ctx).Err()
}

// Close 关闭 Redis 客户端。
func (t *RedisTrigger) Close() error {
	return t.client.Close()
}

// Run 循环读取队列直到 ctx 取消。
// 配置错误时把整批消息推回队列头部。
func (t *RedisTrigger) Run(ctx context.Context) error {
	t.logger.WithField("queue", t.cfg.Queue).Info("Redis trigger started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		batch, err := t.pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return nil
			}
			t.logger.WithError(err).Warn("Failed to pop queue messages")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}
		if _, err := t.dispatcher.Dispatch(ctx, KindRedis, t.cfg.Name, "", batch); err != nil {
			t.requeue(ctx, batch)
		}
	}
}

// pop 返回一批消息，超时无消息时返回空批次。
func (t *RedisTrigger) pop(ctx context.Context) ([]string, error) {
	res, err := t.client.BLPop(ctx, t.cfg.PollTimeout, t.cfg.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPop 返回 [key, value]
	batch := []string{res[1]}
	if t.cfg.BatchSize > 1 {
		rest, err := t.client.LPopCount(ctx, t.cfg.Queue, t.cfg.BatchSize-1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			t.logger.WithError(err).Warn("Failed to pop remaining queue messages")
		}
		batch = append(batch, rest...)
	}
	return batch, nil
}

func (t *RedisTrigger) requeue(ctx context.Context, batch []string) {
	values := make([]interface{}, 0, len(batch))
	for i := len(batch) - 1; i >= 0; i-- {
		values = append(values, batch[i])
	}
	if err := t.client.LPush(context.WithoutCancel(ctx), t.cfg.Queue, values...).Err(); err != nil {
		t.logger.WithError(err).WithField("messages", len(batch)).Error("Failed to requeue messages")
	}
}
