// Package shipper 负责负载的分块、压缩与并发投递。
//
// 压缩后超过大小上限的批次在中点拆分，两半并发递归处理；
// 单条记录仍超限时丢弃该记录。所有失败都在分块级别记录并吞掉，不影响兄弟分块。
package shipper

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/metrics"
)

// DefaultMaxSplitDepth 递归拆分的默认深度上限
const DefaultMaxSplitDepth = 20

// Deliverer 投递一个已压缩的分块（包含重试）。
type Deliverer interface {
	Deliver(ctx context.Context, kind domain.Kind, body []byte, endpoint string, headers map[string]string, ectx domain.ExecutionContext) error
}

// Request 描述一次发送。
type Request struct {
	Common   domain.Common
	Kind     domain.Kind
	Items    []any
	Endpoint string
	// Headers 额外请求头，如 Span 负载的 Data-Format
	Headers map[string]string
}

// Report 汇总一次发送的结果。
type Report struct {
	// Chunks 投递成功的分块数
	Chunks int
	// Delivered 投递成功的记录数
	Delivered int
	// Dropped 被丢弃的记录数（超限、压缩失败或投递失败）
	Dropped int
	// Splits 拆分次数
	Splits int
	// MaxDepth 实际达到的最大递归深度
	MaxDepth int
}

// Shipper 把记录切分为不超过大小上限的压缩分块并交给 Deliverer。
type Shipper struct {
	maxSize   int
	maxDepth  int
	deliverer Deliverer
	metrics   *metrics.Metrics
}

// Option Shipper 配置选项
type Option func(*Shipper)

// WithMaxSplitDepth 设置递归拆分的深度上限。
func WithMaxSplitDepth(depth int) Option {
	return func(s *Shipper) { s.maxDepth = depth }
}

// New 创建 Shipper，metrics 可为 nil。
func New(maxPayloadSize int, deliverer Deliverer, m *metrics.Metrics, opts ...Option) *Shipper {
	s := &Shipper{
		maxSize:   maxPayloadSize,
		maxDepth:  DefaultMaxSplitDepth,
		deliverer: deliverer,
		metrics:   m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type tally struct {
	chunks, delivered, dropped, splits, maxDepth atomic.Int64
}

func (t *tally) depth(d int) {
	for {
		cur := t.maxDepth.Load()
		if int64(d) <= cur || t.maxDepth.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Send 发送记录并等待所有分块结束（成功或最终失败）。
func (s *Shipper) Send(ctx context.Context, req Request, ectx domain.ExecutionContext) Report {
	var t tally
	if len(req.Items) > 0 {
		s.send(ctx, req, req.Items, 0, &t, ectx)
	}
	return Report{
		Chunks:    int(t.chunks.Load()),
		Delivered: int(t.delivered.Load()),
		Dropped:   int(t.dropped.Load()),
		Splits:    int(t.splits.Load()),
		MaxDepth:  int(t.maxDepth.Load()),
	}
}

func (s *Shipper) send(ctx context.Context, req Request, items []any, depth int, t *tally, ectx domain.ExecutionContext) {
	kind := string(req.Kind)
	t.depth(depth)

	body, err := Compress(req.Common, req.Kind, items)
	if err != nil {
		ectx.Error("Error during payload compression.")
		ectx.Error("Exception: " + err.Error())
		t.dropped.Add(int64(len(items)))
		s.metrics.RecordChunk(kind, metrics.ResultError)
		return
	}

	if len(body) > s.maxSize {
		if len(items) == 1 {
			ectx.Error(domain.ErrOversizedRecord.Error())
			t.dropped.Add(1)
			s.metrics.RecordChunk(kind, metrics.ResultOversize)
			return
		}
		if depth >= s.maxDepth {
			ectx.Error(domain.ErrMaxDepthExceeded.Error())
			t.dropped.Add(int64(len(items)))
			s.metrics.RecordChunk(kind, metrics.ResultError)
			return
		}

		t.splits.Add(1)
		s.metrics.RecordSplit(kind)

		mid := len(items) / 2
		var g errgroup.Group
		g.Go(func() error {
			s.send(ctx, req, items[:mid], depth+1, t, ectx)
			return nil
		})
		g.Go(func() error {
			s.send(ctx, req, items[mid:], depth+1, t, ectx)
			return nil
		})
		_ = g.Wait()
		return
	}

	s.metrics.ObservePayload(kind, len(body))
	if err := s.deliverer.Deliver(ctx, req.Kind, body, req.Endpoint, req.Headers, ectx); err != nil {
		ectx.Error("Max retries reached: failed to send " + kind + " payload to New Relic")
		ectx.Error("Exception: " + err.Error())
		t.dropped.Add(int64(len(items)))
		s.metrics.RecordChunk(kind, metrics.ResultFailure)
		return
	}
	ectx.Log(title(kind) + " payload successfully sent to New Relic.")
	t.chunks.Add(1)
	t.delivered.Add(int64(len(items)))
	s.metrics.RecordChunk(kind, metrics.ResultSuccess)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
