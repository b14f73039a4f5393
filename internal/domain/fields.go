package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Lookup 按路径读取嵌套对象中的字段。
// 路径上任何一级不是对象或字段缺失时返回 false。
func Lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupString 读取字符串字段。
func LookupString(m map[string]any, path ...string) (string, bool) {
	v, ok := Lookup(m, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// LookupMap 读取对象字段。
func LookupMap(m map[string]any, path ...string) (map[string]any, bool) {
	v, ok := Lookup(m, path...)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// LookupNumber 读取数值字段，兼容 json.Number 和数字字符串。
func LookupNumber(m map[string]any, path ...string) (float64, bool) {
	v, ok := Lookup(m, path...)
	if !ok {
		return 0, false
	}
	return ToNumber(v)
}

// ToNumber 将解码得到的值转换为 float64。
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Azure 诊断日志里常见的时间格式（7 位小数秒也能被 RFC3339Nano 解析）
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02 15:04:05.9999999Z07:00",
	"2006-01-02 15:04:05.9999999",
	"1/2/2006 3:04:05 PM",
}

// ParseTime 解析 Azure 日志中的时间字段。
// 数字被视为毫秒时间戳。
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	default:
		ms, ok := ToNumber(v)
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)), true
	}
}

// EpochMillis 将时间字段转换为毫秒时间戳。
func EpochMillis(v any) (int64, bool) {
	ts, ok := ParseTime(v)
	if !ok {
		return 0, false
	}
	return ts.UnixMilli(), true
}
