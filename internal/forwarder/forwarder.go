// Package forwarder 编排一次转发调用：规范化、按来源处理、补充元数据、提取 Span、分块投递。
package forwarder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/delivery"
	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/enricher"
	"github.com/oriys/azlogforwarder/internal/metrics"
	"github.com/oriys/azlogforwarder/internal/normalizer"
	"github.com/oriys/azlogforwarder/internal/processor"
	"github.com/oriys/azlogforwarder/internal/shipper"
	"github.com/oriys/azlogforwarder/internal/tracing"
)

// 批次状态标签
const (
	StatusSuccess       = "success"
	StatusPartial       = "partial"
	StatusFailed        = "failed"
	StatusInvalidConfig = "invalid_config"
	StatusInvalidFormat = "invalid_format"
)

// Result 汇总一次调用的结果。
type Result struct {
	Records int
	Spans   int
	Logs    shipper.Report
	// SpanReport 只在发送了 Span 时有值
	SpanReport shipper.Report
}

// Status 返回批次状态。
func (r Result) Status() string {
	delivered := r.Logs.Delivered + r.SpanReport.Delivered
	dropped := r.Logs.Dropped + r.SpanReport.Dropped
	switch {
	case dropped == 0:
		return StatusSuccess
	case delivered == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Forwarder 是转发管道的入口，可被多个触发器并发使用。
type Forwarder struct {
	settings   config.Settings
	processor  processor.Processor
	lookupErr  error
	enricher   *enricher.Enricher
	common     *enricher.CommonBuilder
	shipper    *shipper.Shipper
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	deliverer  shipper.Deliverer
	httpClient *http.Client
	version    string
}

// Option 配置 Forwarder
type Option func(*Forwarder)

// WithDeliverer 替换默认的 HTTP 投递实现。
func WithDeliverer(d shipper.Deliverer) Option {
	return func(f *Forwarder) { f.deliverer = d }
}

// WithHTTPClient 设置默认投递实现使用的 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) { f.httpClient = c }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}

// WithVersion 设置上报的 plugin.version。
func WithVersion(v string) Option {
	return func(f *Forwarder) { f.version = v }
}

// New 创建 Forwarder。处理器在这里选择一次，选择失败会在每次调用时报告。
func New(settings config.Settings, opts ...Option) *Forwarder {
	settings = settings.WithDefaults()
	f := &Forwarder{
		settings: settings,
		enricher: enricher.New(settings),
		tracer:   otel.Tracer("github.com/oriys/azlogforwarder/internal/forwarder"),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(f)
	}

	f.processor, f.lookupErr = processor.Lookup(settings)
	f.common = enricher.NewCommonBuilder(settings, f.version)
	if f.deliverer == nil {
		dopts := []delivery.Option{delivery.WithMetrics(f.metrics)}
		if f.httpClient != nil {
			dopts = append(dopts, delivery.WithHTTPClient(f.httpClient))
		}
		f.deliverer = delivery.New(settings, dopts...)
	}
	f.shipper = shipper.New(settings.MaxPayloadSizeBytes, f.deliverer, f.metrics)
	return f
}

// Settings 返回生效的设置。
func (f *Forwarder) Settings() config.Settings {
	return f.settings
}

// Validate 检查设置与处理器选择。
func (f *Forwarder) Validate() error {
	if err := f.settings.Validate(); err != nil {
		return err
	}
	return f.lookupErr
}

// Forward 处理一个原始批次并等待所有分块结束。
// 只有配置错误会作为错误返回；其余失败都在最小单元内记录。
func (f *Forwarder) Forward(ctx context.Context, batch any, ectx domain.ExecutionContext) (Result, error) {
	start := time.Now()
	source := f.settings.SourceServiceType

	ctx, span := f.tracer.Start(ctx, "forward", trace.WithAttributes(
		attribute.String("azure.source_type", source),
		attribute.String("azure.invocationid", ectx.InvocationID()),
	))
	defer span.End()

	ectx.Log("New Relic Forwarder")
	if err := f.Validate(); err != nil {
		ectx.Error("Invalid settings: " + err.Error())
		span.SetStatus(codes.Error, err.Error())
		f.metrics.RecordBatch(source, StatusInvalidConfig, 0, 0, msSince(start))
		return Result{}, err
	}

	records := normalizer.Normalize(batch, ectx)
	ectx.Log(fmt.Sprintf("Processing %d records", len(records)))
	if len(records) == 0 {
		ectx.Warn("logs format is invalid")
		span.SetStatus(codes.Error, domain.ErrInvalidFormat.Error())
		f.metrics.RecordBatch(source, StatusInvalidFormat, 0, 0, msSince(start))
		return Result{}, nil
	}

	logs := make([]domain.StructuredLog, len(records))
	for i, rec := range records {
		logs[i] = f.processor.Process(rec, ectx)
	}
	logs = f.enricher.EnrichAll(logs)

	var spans []domain.Span
	if f.settings.ForwardTracing {
		spans = tracing.Extract(f.processor, logs, ectx)
	}

	res := Result{Records: len(logs), Spans: len(spans)}
	// 投递不随调用方取消而中断
	dctx := context.WithoutCancel(ctx)
	common := f.common.Build(ectx)
	logReq := shipper.Request{
		Common:   common,
		Kind:     domain.KindLogs,
		Items:    logItems(logs),
		Endpoint: f.settings.LogEndpoint,
	}

	if len(spans) > 0 {
		ectx.Log("Sending spans and logs to New Relic.")
		spanReq := shipper.Request{
			Common:   common,
			Kind:     domain.KindSpans,
			Items:    tracing.Items(spans),
			Endpoint: f.settings.TraceEndpoint,
			Headers:  delivery.SpanHeaders(),
		}
		var g errgroup.Group
		g.Go(func() error {
			res.Logs = f.shipper.Send(dctx, logReq, ectx)
			return nil
		})
		g.Go(func() error {
			res.SpanReport = f.shipper.Send(dctx, spanReq, ectx)
			return nil
		})
		_ = g.Wait()
	} else {
		ectx.Log("Sending logs to New Relic.")
		res.Logs = f.shipper.Send(dctx, logReq, ectx)
	}

	status := res.Status()
	span.SetAttributes(
		attribute.Int("forwarder.records", res.Records),
		attribute.Int("forwarder.spans", res.Spans),
		attribute.String("forwarder.status", status),
	)
	if status != StatusSuccess {
		span.SetStatus(codes.Error, status)
	}
	f.metrics.RecordBatch(source, status, res.Records, res.Spans, msSince(start))
	return res, nil
}

func logItems(logs []domain.StructuredLog) []any {
	items := make([]any, len(logs))
	for i, l := range logs {
		items[i] = l
	}
	return items
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
