// Package normalizer 将触发器交付的原始批次规范化为有序的日志对象序列。
//
// 支持的输入形态：文本、二进制、单个已解码对象以及集合。
// 解码从不是全有或全无的：集合中无法解码的元素按原始文本保留。
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oriys/azlogforwarder/internal/domain"
)

// Shape 描述批次被识别出的形态，仅用于诊断输出。
type Shape string

const (
	ShapeRecordsObject Shape = "records Object"
	ShapeJSONObject    Shape = "JSON Object"
	ShapeRecordsArray  Shape = "records Array"
	ShapeJSONArray     Shape = "JSON Array"
	ShapeStringArray   Shape = "string Array"
	ShapeUnknown       Shape = "unknown"
)

// Normalize 将原始批次展开为日志对象序列。
// 返回空序列表示格式无效，由上游记录警告并放弃发送。
func Normalize(batch any, ectx domain.ExecutionContext) []domain.Record {
	records, shape := Classify(Decode(batch, ectx))
	if shape != ShapeUnknown {
		ectx.Log(fmt.Sprintf("Type of logs: %s", shape))
	}
	return records
}

// Decode 解码原始批次。
// 非集合输入先尝试整体解码；文本无法解码时按行拆分为集合再逐个解码。
func Decode(batch any, ectx domain.ExecutionContext) any {
	switch b := batch.(type) {
	case nil:
		return nil
	case string:
		return decodeText([]byte(b), ectx)
	case []byte:
		return decodeText(b, ectx)
	case json.RawMessage:
		return decodeText(b, ectx)
	case []string:
		out := make([]any, len(b))
		for i, s := range b {
			out[i] = decodeElement([]byte(s), s)
		}
		return out
	case [][]byte:
		out := make([]any, len(b))
		for i, raw := range b {
			out[i] = decodeElement(raw, string(raw))
		}
		return out
	case []json.RawMessage:
		out := make([]any, len(b))
		for i, raw := range b {
			out[i] = decodeElement(raw, string(raw))
		}
		return out
	case []any:
		out := make([]any, len(b))
		for i, item := range b {
			out[i] = decodeAny(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(b))
		for i, item := range b {
			out[i] = item
		}
		return out
	case domain.Record:
		return map[string]any(b)
	default:
		return batch
	}
}

func decodeText(data []byte, ectx domain.ExecutionContext) any {
	trimmed := bytes.TrimSpace(data)
	if v, err := decodeJSON(trimmed); err == nil {
		return v
	}

	ectx.Warn("Cannot parse logs to JSON")
	if len(trimmed) == 0 {
		return nil
	}
	lines := strings.Split(string(trimmed), "\n")
	out := make([]any, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		out = append(out, decodeElement([]byte(line), line))
	}
	return out
}

func decodeAny(item any) any {
	switch v := item.(type) {
	case string:
		return decodeElement([]byte(v), v)
	case []byte:
		return decodeElement(v, string(v))
	case json.RawMessage:
		return decodeElement(v, string(v))
	case domain.Record:
		return map[string]any(v)
	default:
		return item
	}
}

// decodeElement 解码单个元素，失败时保留原始文本。
func decodeElement(data []byte, fallback string) any {
	v, err := decodeJSON(data)
	if err != nil {
		return fallback
	}
	return v
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", domain.ErrParse)
	}
	return v, nil
}

// Classify 识别已解码批次的形态并展开为日志对象。
// 带 records 字段的形态优先于普通对象和数组（Azure Monitor 诊断导出会把多条记录包在一条消息中）。
func Classify(decoded any) ([]domain.Record, Shape) {
	switch v := decoded.(type) {
	case map[string]any:
		if inner, ok := v["records"].([]any); ok {
			return flattenRecords(inner), ShapeRecordsObject
		}
		return []domain.Record{v}, ShapeJSONObject
	case []any:
		if len(v) == 0 {
			return nil, ShapeUnknown
		}
		return classifyCollection(v)
	}
	return nil, ShapeUnknown
}

func classifyCollection(items []any) ([]domain.Record, Shape) {
	switch first := items[0].(type) {
	case map[string]any:
		if _, ok := first["records"].([]any); ok {
			var out []domain.Record
			for _, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if inner, ok := obj["records"].([]any); ok {
					out = append(out, flattenRecords(inner)...)
				} else {
					out = append(out, obj)
				}
			}
			return out, ShapeRecordsArray
		}
		// 混合数组中的字符串按 message 包装，避免丢弃
		return flattenRecords(items), ShapeJSONArray
	case string:
		return flattenRecords(items), ShapeStringArray
	}
	return nil, ShapeUnknown
}

func flattenRecords(items []any) []domain.Record {
	out := make([]domain.Record, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, v)
		case string:
			out = append(out, domain.Record{domain.FieldMessage: v})
		}
	}
	return out
}
