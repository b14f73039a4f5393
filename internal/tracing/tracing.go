// Package tracing 从结构化日志中重建分布式追踪 Span。
package tracing

import (
	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/processor"
)

// Extract 使用处理器从整批日志中提取 Span。
// 处理器不支持追踪时记录警告并返回 nil；非空批次没有产生 Span 时同样只记录警告。
func Extract(p processor.Processor, logs []domain.StructuredLog, ectx domain.ExecutionContext) []domain.Span {
	extractor, ok := p.(processor.SpanExtractor)
	if !ok || !p.SupportsTracing() {
		ectx.Warn("Tracing is not allowed for this service type " + p.Name())
		return nil
	}
	if len(logs) == 0 {
		return nil
	}

	spans := extractor.ExtractSpans(logs, ectx)
	if len(spans) == 0 {
		ectx.Warn("No spans found in the logs.")
	}
	return spans
}

// Items 将 Span 转换为负载元素。
func Items(spans []domain.Span) []any {
	items := make([]any, len(spans))
	for i, s := range spans {
		items[i] = s
	}
	return items
}
