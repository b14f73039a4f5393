// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义转发管道的关键指标（批次、记录、分块、投递、触发器），便于在各模块复用并保持标签一致。
//
// 所有记录方法都允许在 nil 接收者上调用，未启用指标时调用方无需判空。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结果标签取值
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultOversize = "oversize"
	ResultError    = "error"
)

// Metrics 封装转发器运行时指标集合。
//
// 指标分类:
//   - 调用指标: 批次数量、耗时、记录与 Span 数量
//   - 发送指标: 分块结果、拆分次数、负载大小
//   - 投递指标: 每次 HTTP 尝试的结果
//   - 触发器指标: 各触发器收到的消息
type Metrics struct {
	// ========== 调用相关指标 ==========

	// BatchesTotal 处理的批次总数
	// 标签: source, status
	BatchesTotal *prometheus.CounterVec

	// BatchDuration 单次调用耗时直方图（单位：毫秒）
	// 标签: source
	BatchDuration *prometheus.HistogramVec

	// RecordsTotal 规范化后的记录总数
	// 标签: source
	RecordsTotal *prometheus.CounterVec

	// SpansTotal 提取出的 Span 总数
	// 标签: source
	SpansTotal *prometheus.CounterVec

	// ========== 发送相关指标 ==========

	// ChunksTotal 分块处理结果计数器
	// 标签: kind (logs/spans), result (success/failure/oversize/error)
	ChunksTotal *prometheus.CounterVec

	// SplitsTotal 因超限而拆分的次数
	// 标签: kind
	SplitsTotal *prometheus.CounterVec

	// PayloadBytes 压缩后负载大小直方图（单位：字节）
	// 标签: kind
	PayloadBytes *prometheus.HistogramVec

	// ========== 投递相关指标 ==========

	// DeliveryAttemptsTotal HTTP 投递尝试计数器
	// 标签: kind, result
	DeliveryAttemptsTotal *prometheus.CounterVec

	// ========== 触发器相关指标 ==========

	// TriggerMessagesTotal 触发器收到的消息计数器
	// 标签: trigger (http/nats/redis/blob), result
	TriggerMessagesTotal *prometheus.CounterVec
}

// NewMetrics 创建一组 Prometheus 指标并注册到 reg。
// reg 为 nil 时注册到默认注册表。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of forwarded batches",
			},
			[]string{"source", "status"},
		),
		BatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_ms",
				Help:      "Batch forwarding duration in milliseconds",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
			},
			[]string{"source"},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Total number of normalized log records",
			},
			[]string{"source"},
		),
		SpansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spans_total",
				Help:      "Total number of spans extracted from logs",
			},
			[]string{"source"},
		),
		ChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_total",
				Help:      "Total number of payload chunks by result",
			},
			[]string{"kind", "result"},
		),
		SplitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "splits_total",
				Help:      "Total number of payload splits caused by the size limit",
			},
			[]string{"kind"},
		),
		PayloadBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payload_bytes",
				Help:      "Compressed payload size in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"kind"},
		),
		DeliveryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_attempts_total",
				Help:      "Total number of HTTP delivery attempts",
			},
			[]string{"kind", "result"},
		),
		TriggerMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_messages_total",
				Help:      "Total number of messages received by triggers",
			},
			[]string{"trigger", "result"},
		),
	}
}

// RecordBatch 记录一次调用的统计信息。
// durationMs 为调用耗时（毫秒）。
func (m *Metrics) RecordBatch(source, status string, records, spans int, durationMs float64) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(source, status).Inc()
	m.BatchDuration.WithLabelValues(source).Observe(durationMs)
	m.RecordsTotal.WithLabelValues(source).Add(float64(records))
	m.SpansTotal.WithLabelValues(source).Add(float64(spans))
}

// RecordChunk 记录一个分块的最终结果。
func (m *Metrics) RecordChunk(kind, result string) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(kind, result).Inc()
}

// RecordSplit 记录一次拆分。
func (m *Metrics) RecordSplit(kind string) {
	if m == nil {
		return
	}
	m.SplitsTotal.WithLabelValues(kind).Inc()
}

// ObservePayload 记录压缩后负载大小。
func (m *Metrics) ObservePayload(kind string, size int) {
	if m == nil {
		return
	}
	m.PayloadBytes.WithLabelValues(kind).Observe(float64(size))
}

// RecordDeliveryAttempt 记录一次 HTTP 投递尝试。
func (m *Metrics) RecordDeliveryAttempt(kind string, ok bool) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	m.DeliveryAttemptsTotal.WithLabelValues(kind, result).Inc()
}

// RecordTriggerMessage 记录触发器收到的一条消息。
func (m *Metrics) RecordTriggerMessage(trigger, result string) {
	if m == nil {
		return
	}
	m.TriggerMessagesTotal.WithLabelValues(trigger, result).Inc()
}
