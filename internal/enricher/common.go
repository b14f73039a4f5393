package enricher

import (
	"strings"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// 公共属性键名
const (
	AttrPluginType    = "plugin.type"
	AttrPluginVersion = "plugin.version"
	AttrForwarderName = "azure.forwardername"
	AttrInvocationID  = "azure.invocationid"
	AttrEnvironment   = "environment"
	AttrServiceName   = "serviceName"
	AttrTags          = "tags"
)

// ParseTags 解析 key:value;key:value 形式的标签字符串。
// 没有 ':' 的片段被忽略，重复的键以后出现者为准。
// raw 为空时返回 nil，表示不输出 tags。
func ParseTags(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		tags[key] = strings.TrimSpace(kv[1])
	}
	return tags
}

// CommonBuilder 构造每个负载附带的 common.attributes。
type CommonBuilder struct {
	settings config.Settings
	version  string
	tags     map[string]string
}

// NewCommonBuilder 创建公共属性构造器，标签只解析一次。
func NewCommonBuilder(settings config.Settings, version string) *CommonBuilder {
	return &CommonBuilder{
		settings: settings,
		version:  version,
		tags:     ParseTags(settings.Tags),
	}
}

// Build 返回当前调用的公共属性。
func (b *CommonBuilder) Build(ectx domain.ExecutionContext) domain.Common {
	attrs := map[string]any{
		AttrPluginType:    config.LogsSource,
		AttrPluginVersion: b.version,
		AttrForwarderName: ectx.FunctionName(),
		AttrInvocationID:  ectx.InvocationID(),
		AttrEnvironment:   b.settings.Environment,
	}
	if b.settings.ServiceName != "" {
		attrs[AttrServiceName] = b.settings.ServiceName
	}
	if b.tags != nil {
		tags := make(map[string]any, len(b.tags))
		for k, v := range b.tags {
			tags[k] = v
		}
		attrs[AttrTags] = tags
	}
	return domain.Common{Attributes: attrs}
}
