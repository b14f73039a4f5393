package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/azlogforwarder/internal/config"
)

// NATSTrigger 以 JetStream 拉取消费者的方式批量读取消息，每次拉取的一批消息对应一次调用。
type NATSTrigger struct {
	cfg        config.NATSTriggerConfig
	conn       *nats.Conn
	js         nats.JetStreamContext
	dispatcher *Dispatcher
	logger     *logrus.Logger
}

// NewNATSTrigger 连接 NATS 并初始化流（不存在则创建，存在则尝试更新配置）。
func NewNATSTrigger(cfg config.NATSTriggerConfig, d *Dispatcher, logger *logrus.Logger) (*NATSTrigger, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream := nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	}
	if _, err := js.AddStream(&stream); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		if _, err := js.UpdateStream(&stream); err != nil {
			logger.WithError(err).WithField("stream", cfg.Stream).Warn("Failed to update stream")
		}
	}

	return &NATSTrigger{cfg: cfg, conn: nc, js: js, dispatcher: d, logger: logger}, nil
}

func (t *NATSTrigger) Name() string { return KindNATS }

// Ready 连接断开时返回错误。
func (t *NATSTrigger) Ready() error {
	if !t.conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

// Close 关闭底层 NATS 连接。
func (t *NATSTrigger) Close() error {
	t.conn.Close()
	return nil
}

// Run 循环拉取消息直到 ctx 取消。
// 配置错误时 Nak 整批消息以便修正配置后重新投递，其余情况一律 Ack：投递失败已在管道内记录并丢弃。
func (t *NATSTrigger) Run(ctx context.Context) error {
	sub, err := t.js.PullSubscribe(t.cfg.Subject, t.cfg.Durable, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	t.logger.WithFields(logrus.Fields{
		"stream":  t.cfg.Stream,
		"subject": t.cfg.Subject,
		"durable": t.cfg.Durable,
	}).Info("NATS trigger started")

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := sub.Fetch(t.cfg.BatchSize, nats.MaxWait(t.cfg.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil
			}
			t.logger.WithError(err).Warn("Failed to fetch messages")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		t.handle(ctx, msgs)
	}
}

func (t *NATSTrigger) handle(ctx context.Context, msgs []*nats.Msg) {
	batch := make([][]byte, len(msgs))
	for i, m := range msgs {
		batch[i] = m.Data
	}

	_, err := t.dispatcher.Dispatch(ctx, KindNATS, t.cfg.Name, "", batch)
	for _, m := range msgs {
		if err != nil {
			m.Nak()
			continue
		}
		m.Ack()
	}
}
