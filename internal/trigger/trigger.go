// Package trigger 把外部事件源接入转发管道。
//
// 每种触发器对应一种 Azure Functions 触发方式：
//   - HTTP:  HTTP 触发器（chi 路由）
//   - NATS:  Event Hub 触发器（JetStream 拉取消费）
//   - Redis: Storage Queue 触发器（列表阻塞弹出）
//   - Blob:  Blob 触发器（目录监听 + 定时扫描）
//
// 所有触发器共享一个 Dispatcher，每批消息对应一次调用。
package trigger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/forwarder"
	"github.com/oriys/azlogforwarder/internal/metrics"
	"github.com/oriys/azlogforwarder/internal/telemetry"
)

// 触发器类型
const (
	KindHTTP  = "http"
	KindNATS  = "nats"
	KindRedis = "redis"
	KindBlob  = "blob"
)

// Runner 是长期运行的触发器，Run 阻塞直到 ctx 取消。
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Forwarder 是触发器需要的转发能力。
type Forwarder interface {
	Forward(ctx context.Context, batch any, ectx domain.ExecutionContext) (forwarder.Result, error)
}

// Dispatcher 为每批消息创建执行上下文并调用转发管道。
type Dispatcher struct {
	forwarder Forwarder
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher 创建 Dispatcher，metrics 可为 nil。
func NewDispatcher(f Forwarder, logger *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{forwarder: f, logger: logger, metrics: m}
}

// Invocation 描述一次调用的结果。
type Invocation struct {
	ID     string           `json:"invocation_id"`
	Result forwarder.Result `json:"-"`
	Status string           `json:"status"`
}

// Dispatch 执行一次调用。functionName 作为 azure.forwardername 上报，invocationID 为空时自动生成。
func (d *Dispatcher) Dispatch(ctx context.Context, kind, functionName, invocationID string, batch any) (Invocation, error) {
	start := time.Now()
	ectx := telemetry.NewInvocation(ctx, d.logger, functionName, invocationID)
	inv := Invocation{ID: ectx.InvocationID()}

	res, err := d.forwarder.Forward(ctx, batch, ectx)
	inv.Result = res
	if err != nil {
		inv.Status = forwarder.StatusInvalidConfig
		d.metrics.RecordTriggerMessage(kind, metrics.ResultError)
		ectx.Entry().WithError(err).WithField("trigger", kind).Error("Invocation aborted")
		return inv, err
	}

	inv.Status = res.Status()
	if res.Records == 0 {
		inv.Status = forwarder.StatusInvalidFormat
	}
	d.metrics.RecordTriggerMessage(kind, metrics.ResultSuccess)
	telemetry.EntryWithTraceContext(ctx, ectx.Entry()).WithFields(logrus.Fields{
		"trigger":     kind,
		"records":     res.Records,
		"spans":       res.Spans,
		"delivered":   res.Logs.Delivered + res.SpanReport.Delivered,
		"dropped":     res.Logs.Dropped + res.SpanReport.Dropped,
		"status":      inv.Status,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Invocation completed")
	return inv, nil
}
