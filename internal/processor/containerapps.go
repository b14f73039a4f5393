package processor

import (
	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// messageTag 容器日志消息的标签前缀
const messageTag = "Message::"

// ContainerApps 处理 Azure Container Apps 控制台日志。
type ContainerApps struct {
	settings config.Settings
}

// NewContainerApps 创建 Container Apps 处理器
func NewContainerApps(settings config.Settings) *ContainerApps {
	return &ContainerApps{settings: settings}
}

func (p *ContainerApps) Name() string { return TypeContainerApps }

func (p *ContainerApps) SupportsTracing() bool { return false }

func (p *ContainerApps) Process(rec domain.Record, ectx domain.ExecutionContext) domain.StructuredLog {
	raw, meta := splitProperties(rec)
	props, ok := raw.(map[string]any)
	if !ok {
		return domain.StructuredLog(rec)
	}

	var logValue any = props["Log"]
	if s, ok := logValue.(string); ok {
		if decoded, err := decodeJSON(s); err == nil {
			logValue = decoded
		} else {
			ectx.Warn("Can not parse properties.Log to JSON")
		}
	}
	delete(props, "Log")

	b := newBuilder(p.settings.CustomPropertiesPrefix)
	bag := make(map[string]any, len(props))

	var message any
	switch l := logValue.(type) {
	case map[string]any:
		message = l["message"]
		siblings := make(map[string]any, len(l))
		for k, v := range l {
			if k != "message" {
				siblings[k] = v
			}
		}
		decoration, retained := partition(siblings, p.settings.IsDecoration)
		for k, v := range decoration {
			b.set(k, v)
		}
		for k, v := range retained {
			bag[k] = v
		}
	default:
		// 非对象的 Log 整体作为消息
		message = l
	}
	for k, v := range props {
		bag[k] = v
	}

	encoded, err := encodeJSON(message)
	if err != nil {
		encoded = "null"
	}
	b.set(domain.FieldMessage, messageTag+encoded)

	b.properties(bag).meta(meta).timestamp(meta)
	if name, ok := props["ContainerAppName"]; ok {
		b.set(domain.FieldServiceName, name)
	}
	return b.build()
}
