package processor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/oriys/azlogforwarder/internal/domain"
)

// builder 按配置的前缀构造结构化日志，集中管理键名。
type builder struct {
	prefix string
	log    domain.StructuredLog
}

func newBuilder(prefix string) *builder {
	return &builder{prefix: prefix, log: domain.StructuredLog{}}
}

func (b *builder) properties(p map[string]any) *builder {
	b.log[domain.PropertiesKey(b.prefix)] = p
	return b
}

func (b *builder) meta(m map[string]any) *builder {
	b.log[domain.MetaKey(b.prefix)] = m
	return b
}

func (b *builder) set(key string, v any) *builder {
	b.log[key] = v
	return b
}

// timestamp 从 meta.time 推导毫秒时间戳，无法解析时不设置。
func (b *builder) timestamp(meta map[string]any) *builder {
	if v, ok := meta["time"]; ok {
		if ms, ok := domain.EpochMillis(v); ok {
			b.log[domain.FieldTimestamp] = ms
		}
	}
	return b
}

func (b *builder) build() domain.StructuredLog {
	return b.log
}

// splitProperties 把 properties 从原始记录中取出，其余字段作为 meta。
func splitProperties(rec domain.Record) (any, map[string]any) {
	meta := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == "properties" {
			continue
		}
		meta[k] = v
	}
	return rec["properties"], meta
}

// nestedField 描述一个以 JSON 字符串形式到达的嵌套字段。
type nestedField struct {
	path  []string
	tag   string
	label string
	// skip 返回 true 时保持原值
	skip func(v any) bool
}

// restringify 将嵌套字段规范化为紧凑 JSON 并加上标签前缀，便于接收端选择性地重新解析。
// 解码失败时记录警告并保留原值。
func restringify(obj map[string]any, f nestedField, ectx domain.ExecutionContext) {
	parent, ok := domain.LookupMap(obj, f.path[:len(f.path)-1]...)
	if !ok {
		return
	}
	key := f.path[len(f.path)-1]
	v, ok := parent[key]
	if !ok {
		return
	}
	if f.skip != nil && f.skip(v) {
		return
	}

	var decoded any = v
	if s, isString := v.(string); isString {
		d, err := decodeJSON(s)
		if err != nil {
			ectx.Warn("Can't process " + f.label + ".")
			return
		}
		decoded = d
	}
	encoded, err := encodeJSON(decoded)
	if err != nil {
		ectx.Warn("Can't process " + f.label + ".")
		return
	}
	parent[key] = f.tag + encoded
}

// decodeJSON 解码 JSON 字符串，保留数字精度。
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, domain.ErrParse
	}
	return v, nil
}

// decodeLooseJSON 先按标准 JSON 解码，失败时再把单引号替换为双引号重试。
func decodeLooseJSON(s string) (any, error) {
	if v, err := decodeJSON(s); err == nil {
		return v, nil
	}
	return decodeJSON(strings.ReplaceAll(s, "'", `"`))
}

// encodeJSON 紧凑编码且不转义 HTML 字符。
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// partition 按装饰属性列表拆分字段：装饰属性提升到顶层，其余保留在属性包中。
func partition(fields map[string]any, isDecoration func(string) bool) (decoration, retained map[string]any) {
	decoration = make(map[string]any)
	retained = make(map[string]any)
	for k, v := range fields {
		if isDecoration(k) {
			decoration[k] = v
		} else {
			retained[k] = v
		}
	}
	return decoration, retained
}

// stripHyphens 去掉 GUID 中的连字符。
func stripHyphens(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

// truncate 截取前 n 个字符。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
