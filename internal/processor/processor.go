// Package processor 实现按 Azure 来源服务划分的日志处理器。
//
// 每种来源服务对应一个处理器实现，它们共享同一套能力契约：
//   - Process: 将一条原始记录转换为结构化日志
//   - SupportsTracing: 是否支持从日志重建 Span
//   - ExtractSpans: 支持追踪的处理器从整批结构化日志中提取 Span
//
// 处理器通过静态注册表按 sourceServiceType 选择，每次调用只选择一次。
package processor

import (
	"fmt"
	"sort"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// 已注册的来源服务类型
const (
	TypeAPIManagementService = "@azure/APIManagementService"
	TypeFunctionApp          = "@azure/FunctionApp"
	TypeDataFactory          = "@azure/DataFactory"
	TypeContainerApps        = "@azure/ContainerApps"
)

// Processor 将原始记录转换为结构化日志。
type Processor interface {
	// Name 返回来源服务类型
	Name() string
	// Process 处理单条记录；嵌套字段解码失败只记录警告，不会中断处理
	Process(rec domain.Record, ectx domain.ExecutionContext) domain.StructuredLog
	// SupportsTracing 返回是否支持 Span 提取
	SupportsTracing() bool
}

// SpanExtractor 由支持追踪的处理器实现。
type SpanExtractor interface {
	ExtractSpans(logs []domain.StructuredLog, ectx domain.ExecutionContext) []domain.Span
}

// Factory 根据设置创建处理器。
type Factory func(settings config.Settings) Processor

var registry = map[string]Factory{
	TypeAPIManagementService: func(s config.Settings) Processor { return NewAPIManagement(s) },
	TypeFunctionApp:          func(s config.Settings) Processor { return NewFunctionApp(s) },
	TypeDataFactory:          func(s config.Settings) Processor { return NewDataFactory(s) },
	TypeContainerApps:        func(s config.Settings) Processor { return NewContainerApps(s) },
}

// Lookup 按 settings.SourceServiceType 选择处理器。
// 未注册的类型返回配置错误。
func Lookup(settings config.Settings) (Processor, error) {
	if settings.SourceServiceType == "" {
		return nil, domain.ErrMissingSourceType
	}
	factory, ok := registry[settings.SourceServiceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSourceType, settings.SourceServiceType)
	}
	return factory(settings.WithDefaults()), nil
}

// Types 返回所有已注册的来源服务类型（有序）。
func Types() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
