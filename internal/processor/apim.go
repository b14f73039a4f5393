package processor

import (
	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// API Management 网关日志的 kind 取值
const (
	apimKindRequest  = "request"
	apimKindResponse = "response"
	apimKindError    = "error"
)

// apimNestedFields 需要重新序列化并打标签的嵌套字段
var apimNestedFields = []nestedField{
	{path: []string{"request", "body"}, tag: "RequestBody::", label: "request body"},
	{path: []string{"request", "headers"}, tag: "RequestHeaders::", label: "request headers"},
	{path: []string{"response", "body"}, tag: "ResponseBody::", label: "response body"},
	{
		path:  []string{"response", "headers"},
		tag:   "ResponseHeaders::",
		label: "response headers",
		skip:  func(v any) bool { s, ok := v.(string); return ok && s == "{}" },
	},
}

// APIManagement 处理 Azure API Management 网关日志，支持追踪。
type APIManagement struct {
	settings config.Settings
}

// NewAPIManagement 创建 API Management 处理器
func NewAPIManagement(settings config.Settings) *APIManagement {
	return &APIManagement{settings: settings}
}

func (p *APIManagement) Name() string { return TypeAPIManagementService }

func (p *APIManagement) SupportsTracing() bool { return true }

// Process 处理单条网关日志
func (p *APIManagement) Process(rec domain.Record, ectx domain.ExecutionContext) domain.StructuredLog {
	raw, meta := splitProperties(rec)
	props, ok := raw.(map[string]any)
	if !ok {
		return domain.StructuredLog(rec)
	}

	for _, f := range apimNestedFields {
		restringify(props, f, ectx)
	}

	b := newBuilder(p.settings.CustomPropertiesPrefix)

	traceID, hasTrace := meta["traceId"]
	spanID, hasSpan := meta["spanId"]
	if hasTrace && hasSpan {
		b.set(domain.FieldTraceID, traceID).set(domain.FieldSpanID, spanID)
		if parentID, ok := meta["parentSpanId"]; ok {
			b.set(domain.FieldParentID, parentID)
		}
	}
	delete(meta, "traceId")
	delete(meta, "spanId")
	delete(meta, "parentSpanId")

	b.properties(props).meta(meta).timestamp(meta)
	if name, ok := meta["serviceName"]; ok {
		b.set(domain.FieldServiceName, name)
	}

	level := domain.LevelInfo
	if kind, _ := meta["kind"].(string); kind == apimKindError {
		level = domain.LevelError
	} else if code, ok := domain.LookupNumber(props, "response", "status", "code"); ok && code >= 400 {
		level = domain.LevelError
	}
	b.set(domain.FieldLevel, level)

	return b.build()
}

// ExtractSpans 为 response 和 error 记录生成 Span
func (p *APIManagement) ExtractSpans(logs []domain.StructuredLog, ectx domain.ExecutionContext) []domain.Span {
	prefix := p.settings.CustomPropertiesPrefix
	var spans []domain.Span
	for _, l := range logs {
		meta := l.Meta(prefix)
		props := l.Properties(prefix)
		if meta == nil || props == nil {
			continue
		}
		if l.String(domain.FieldTraceID) == "" || l.String(domain.FieldSpanID) == "" {
			continue
		}
		kind, _ := meta["kind"].(string)
		if kind != apimKindResponse && kind != apimKindError {
			continue
		}
		spans = append(spans, p.span(l, props, meta))
	}
	return spans
}

func (p *APIManagement) span(l domain.StructuredLog, props, meta map[string]any) domain.Span {
	span := domain.Span{
		TraceID:    l.String(domain.FieldTraceID),
		ID:         l.String(domain.FieldSpanID),
		Attributes: map[string]any{},
	}
	if ts, ok := domain.EpochMillis(meta["time"]); ok {
		span.Timestamp = ts
	}

	attrs := span.Attributes
	if ms, ok := domain.ToNumber(meta["timespan"]); ok {
		attrs["duration.ms"] = ms
		attrs["duration"] = ms / 1000
	}
	if v, ok := domain.Lookup(props, "request", "originalUrl", "path"); ok {
		attrs["name"] = v
	}
	if v, ok := domain.Lookup(props, "request", "originalUrl", "host"); ok {
		attrs["host"] = v
	}
	if v, ok := domain.Lookup(props, "request", "method"); ok {
		attrs["http.method"] = v
	}
	if u, ok := domain.LookupMap(props, "request", "url"); ok {
		scheme, _ := u["scheme"].(string)
		host, _ := u["host"].(string)
		path, _ := u["path"].(string)
		attrs["http.url"] = scheme + "://" + host + path
	}
	if v, ok := l[domain.FieldParentID]; ok && v != nil {
		attrs["parent.id"] = v
	}
	if v, ok := l[domain.FieldServiceName]; ok && v != nil {
		attrs["service.name"] = v
	}

	reason, hasReason := domain.Lookup(props, "response", "status", "reason")
	if code, ok := domain.Lookup(props, "response", "status", "code"); ok {
		attrs["http.statusCode"] = code
		if n, ok := domain.ToNumber(code); ok && n >= 400 {
			attrs["error"] = true
			attrs["error.message"] = reason
			attrs["error.class"] = reason
		}
	}
	if hasReason {
		attrs["http.statusText"] = reason
	}

	if e, ok := props["error"].(map[string]any); ok {
		attrs["error"] = true
		attrs["error.message"] = e["message"]
		attrs["error.class"] = e["reason"]
		attrs["error.source"] = e["source"]
		attrs["error.section"] = e["section"]
	}
	return span
}
