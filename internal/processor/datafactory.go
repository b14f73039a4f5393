package processor

import (
	"strings"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// Data Factory 诊断日志类别
const (
	categoryPipelineRuns = "PipelineRuns"
	categoryActivityRuns = "ActivityRuns"
)

// dataFactoryLevels 文本级别映射
var dataFactoryLevels = map[string]string{
	"informational": domain.LevelInfo,
	"warning":       domain.LevelWarn,
	"error":         domain.LevelError,
	"critical":      domain.LevelError,
}

// 终态运行状态
var terminalStatuses = map[string]bool{
	"Succeeded": true,
	"Failed":    true,
	"Cancelled": true,
}

// DataFactoryLevel 将文本级别映射为输出级别，未知值返回 info。
func DataFactoryLevel(level any) string {
	s, _ := level.(string)
	if l, ok := dataFactoryLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return domain.LevelInfo
}

// DataFactory 处理 Azure Data Factory 管道与活动运行日志，支持追踪。
type DataFactory struct {
	settings config.Settings
}

// NewDataFactory 创建 Data Factory 处理器
func NewDataFactory(settings config.Settings) *DataFactory {
	return &DataFactory{settings: settings}
}

func (p *DataFactory) Name() string { return TypeDataFactory }

func (p *DataFactory) SupportsTracing() bool { return true }

// Process 处理单条运行日志。缺少 properties 时使用空属性包。
func (p *DataFactory) Process(rec domain.Record, ectx domain.ExecutionContext) domain.StructuredLog {
	raw, meta := splitProperties(rec)
	props, ok := raw.(map[string]any)
	if !ok {
		if s, isString := raw.(string); isString {
			if decoded, err := decodeJSON(s); err == nil {
				props, ok = decoded.(map[string]any)
			}
			if !ok {
				ectx.Warn("Can not parse properties to JSON")
			}
		}
		if props == nil {
			props = map[string]any{}
		}
	}

	if start, ok := domain.EpochMillis(meta["start"]); ok {
		if end, ok := domain.EpochMillis(meta["end"]); ok && end > start {
			meta["duration"] = end - start
		}
	}

	b := newBuilder(p.settings.CustomPropertiesPrefix)
	b.set(domain.FieldLevel, DataFactoryLevel(meta["level"]))

	category, _ := meta["category"].(string)
	if category == categoryPipelineRuns || category == categoryActivityRuns {
		p.correlate(b, category, meta, props)
	}

	b.properties(props).meta(meta).timestamp(meta)
	if name := resourceName(meta); name != "" {
		b.set(domain.FieldServiceName, name)
	}
	return b.build()
}

// correlate 根据 correlationId 推导 trace.id、span.id 和 parent.id。
func (p *DataFactory) correlate(b *builder, category string, meta, props map[string]any) {
	correlationID, _ := lookupEither(meta, props, "correlationId").(string)
	if correlationID == "" {
		return
	}
	traceID := stripHyphens(correlationID)
	b.set(domain.FieldTraceID, traceID)

	switch category {
	case categoryPipelineRuns:
		b.set(domain.FieldSpanID, truncate(traceID, 16))
	case categoryActivityRuns:
		if runID, _ := lookupEither(meta, props, "activityRunId").(string); runID != "" {
			b.set(domain.FieldSpanID, truncate(stripHyphens(runID), 16))
		}
		b.set(domain.FieldParentID, truncate(traceID, 16))
	}
}

// ExtractSpans 为终态运行生成 Span
func (p *DataFactory) ExtractSpans(logs []domain.StructuredLog, ectx domain.ExecutionContext) []domain.Span {
	prefix := p.settings.CustomPropertiesPrefix
	var spans []domain.Span
	for _, l := range logs {
		meta := l.Meta(prefix)
		if meta == nil || l.String(domain.FieldTraceID) == "" || l.String(domain.FieldSpanID) == "" {
			continue
		}
		props := l.Properties(prefix)
		status, _ := lookupEither(meta, props, "status").(string)
		if !terminalStatuses[status] {
			continue
		}
		spans = append(spans, p.span(l, props, meta, status))
	}
	return spans
}

func (p *DataFactory) span(l domain.StructuredLog, props, meta map[string]any, status string) domain.Span {
	span := domain.Span{
		TraceID:    l.String(domain.FieldTraceID),
		ID:         l.String(domain.FieldSpanID),
		Attributes: map[string]any{"status": status},
	}
	if ts, ok := l[domain.FieldTimestamp].(int64); ok {
		span.Timestamp = ts
	}

	attrs := span.Attributes
	for _, key := range []string{"activityName", "pipelineName"} {
		if name, ok := lookupEither(meta, props, key).(string); ok && name != "" {
			attrs["name"] = name
			break
		}
	}
	if ms, ok := domain.ToNumber(meta["duration"]); ok {
		attrs["duration.ms"] = ms
		attrs["duration"] = ms / 1000
	}
	if v, ok := l[domain.FieldParentID]; ok {
		attrs["parent.id"] = v
	}
	if v, ok := l[domain.FieldServiceName]; ok {
		attrs["service.name"] = v
	}
	if v := lookupEither(meta, props, "activityType"); v != nil {
		attrs["activity.type"] = v
	}

	if status == "Failed" {
		attrs["error"] = true
		if e, ok := props["Error"].(map[string]any); ok {
			attrs["error.message"] = e["message"]
			attrs["error.class"] = e["errorCode"]
		} else if e, ok := props["Error"]; ok {
			attrs["error.message"] = e
		}
	}
	return span
}

// lookupEither 先读 meta，再读 properties（首字母大写形式兼容 Azure 的字段风格）。
func lookupEither(meta, props map[string]any, key string) any {
	if v, ok := meta[key]; ok && v != nil {
		return v
	}
	if props == nil {
		return nil
	}
	if v, ok := props[key]; ok && v != nil {
		return v
	}
	if key != "" {
		if v, ok := props[strings.ToUpper(key[:1])+key[1:]]; ok {
			return v
		}
	}
	return nil
}

// resourceName 返回 resourceId 的最后一段（小写）。
func resourceName(meta map[string]any) string {
	id, _ := meta["resourceId"].(string)
	id = strings.TrimRight(id, "/")
	if id == "" {
		return ""
	}
	parts := strings.Split(id, "/")
	return strings.ToLower(parts[len(parts)-1])
}
