package processor

import (
	"math"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// functionAppLevels Function App 数值日志级别映射
var functionAppLevels = map[int]string{
	0: domain.LevelTrace,
	1: domain.LevelDebug,
	2: domain.LevelInfo,
	3: domain.LevelWarn,
	4: domain.LevelError,
	5: domain.LevelError,
}

// FunctionAppLevel 将数值级别映射为输出级别，未知值返回 info。
func FunctionAppLevel(code any) string {
	n, ok := domain.ToNumber(code)
	if !ok || n != math.Trunc(n) {
		return domain.LevelInfo
	}
	if level, ok := functionAppLevels[int(n)]; ok {
		return level
	}
	return domain.LevelInfo
}

// FunctionApp 处理 Azure Function App 日志。
type FunctionApp struct {
	settings config.Settings
}

// NewFunctionApp 创建 Function App 处理器
func NewFunctionApp(settings config.Settings) *FunctionApp {
	return &FunctionApp{settings: settings}
}

func (p *FunctionApp) Name() string { return TypeFunctionApp }

func (p *FunctionApp) SupportsTracing() bool { return false }

func (p *FunctionApp) Process(rec domain.Record, ectx domain.ExecutionContext) domain.StructuredLog {
	raw, meta := splitProperties(rec)
	b := newBuilder(p.settings.CustomPropertiesPrefix)

	props, ok := raw.(map[string]any)
	if s, isString := raw.(string); isString {
		if decoded, err := decodeLooseJSON(s); err == nil {
			props, ok = decoded.(map[string]any)
		}
		if !ok {
			ectx.Warn("Can not parse properties to JSON")
		}
	}
	if !ok {
		// 保留原始 properties，其余字段照常补齐
		if raw != nil {
			b.set(domain.PropertiesKey(p.settings.CustomPropertiesPrefix), raw)
		}
		b.meta(meta).timestamp(meta)
		b.set(domain.FieldLevel, p.level(nil, meta))
		return b.build()
	}

	if s, ok := props["message"].(string); ok {
		if decoded, err := decodeLooseJSON(s); err == nil {
			props["message"] = decoded
		} else {
			ectx.Warn("Can not parse properties.message to JSON")
		}
	} else if _, isMap := props["message"].(map[string]any); !isMap {
		ectx.Warn("Can not parse properties.message to JSON")
	}

	level := p.level(props, meta)
	switch msg := props["message"].(type) {
	case map[string]any:
		inner, rest := msg["message"], make(map[string]any, len(msg))
		for k, v := range msg {
			if k != "message" {
				rest[k] = v
			}
		}
		decoration, retained := partition(rest, p.settings.IsDecoration)
		for k, v := range decoration {
			b.set(k, v)
		}
		delete(props, "message")
		for k, v := range retained {
			props[k] = v
		}
		props["message"] = inner
	case string:
		if msg != "" {
			b.set(domain.FieldMessage, msg)
			delete(props, "message")
		}
	}

	// 数值级别映射覆盖消息中的 level 装饰属性
	b.set(domain.FieldLevel, level)
	b.properties(props).meta(meta).timestamp(meta)
	if name, ok := props["appName"]; ok {
		b.set(domain.FieldServiceName, name)
	}
	return b.build()
}

// level 依次读取 properties.levelId、数值型 properties.level 和 meta.level。
func (p *FunctionApp) level(props, meta map[string]any) string {
	if v, ok := props["levelId"]; ok {
		return FunctionAppLevel(v)
	}
	if v, ok := props["level"]; ok {
		if _, numeric := domain.ToNumber(v); numeric {
			return FunctionAppLevel(v)
		}
	}
	if v, ok := meta["level"]; ok {
		return FunctionAppLevel(v)
	}
	return domain.LevelInfo
}
