package domain

// Record 是一条已解码的原始日志对象，结构在检查之前未知。
type Record map[string]any

// StructuredLog 是规范化后的输出单元。
// 前缀属性存放在 {prefix} 下，其余原始字段存放在 {prefix}.meta 下。
type StructuredLog map[string]any

// 结构化日志的顶层字段名
const (
	FieldTimestamp   = "timestamp"
	FieldServiceName = "serviceName"
	FieldLevel       = "level"
	FieldMessage     = "message"
	FieldTraceID     = "trace.id"
	FieldSpanID      = "span.id"
	FieldParentID    = "parent.id"
	FieldMetadata    = "metadata"
)

// 日志级别
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// PropertiesKey 返回前缀属性包的键名。
func PropertiesKey(prefix string) string {
	return prefix
}

// MetaKey 返回元数据包的键名。
func MetaKey(prefix string) string {
	return prefix + ".meta"
}

// Properties 返回 {prefix} 下的属性包，不存在时返回 nil。
func (l StructuredLog) Properties(prefix string) map[string]any {
	m, _ := l[PropertiesKey(prefix)].(map[string]any)
	return m
}

// Meta 返回 {prefix}.meta 下的元数据包，不存在时返回 nil。
func (l StructuredLog) Meta(prefix string) map[string]any {
	m, _ := l[MetaKey(prefix)].(map[string]any)
	return m
}

// String 读取顶层字符串字段。
func (l StructuredLog) String(key string) string {
	s, _ := l[key].(string)
	return s
}

// Span 是从日志重建出的分布式追踪单元，只为终态记录创建。
type Span struct {
	TraceID    string         `json:"trace.id"`
	ID         string         `json:"id"`
	Timestamp  int64          `json:"timestamp,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// Common 是每个负载都附带的公共属性信封。
type Common struct {
	Attributes map[string]any `json:"attributes"`
}

// Kind 标识负载类型，同时也是负载中记录数组的键名。
type Kind string

const (
	KindLogs  Kind = "logs"
	KindSpans Kind = "spans"
)

// Payload 构造 [{common, <kind>: items}] 形式的负载。
func Payload(common Common, kind Kind, items []any) []map[string]any {
	return []map[string]any{
		{
			"common":     common,
			string(kind): items,
		},
	}
}
