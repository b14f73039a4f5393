// Package enricher 为结构化日志补充 Azure 资源元数据，并构造负载的公共属性。
package enricher

import (
	"strings"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

// ARM 资源路径前缀
const subscriptionsPrefix = "/subscriptions/"

// ResourceMetadata 从 ARM resourceId 中解析出的元数据
type ResourceMetadata struct {
	SubscriptionID string
	ResourceGroup  string
	Source         string
}

// Map 以日志字段形式返回元数据，空字段不输出。
func (m ResourceMetadata) Map() map[string]any {
	out := map[string]any{"subscriptionId": m.SubscriptionID}
	if m.ResourceGroup != "" {
		out["resourceGroup"] = m.ResourceGroup
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	return out
}

// ParseResourceID 解析形如 /subscriptions/{sub}/resourceGroups/{rg}/providers/{provider}/... 的路径。
// 比较不区分大小写，结果统一为小写；不符合约定时返回 false。
func ParseResourceID(resourceID string) (ResourceMetadata, bool) {
	lower := strings.ToLower(resourceID)
	if !strings.HasPrefix(lower, subscriptionsPrefix) {
		return ResourceMetadata{}, false
	}
	segments := strings.Split(lower, "/")

	var m ResourceMetadata
	m.SubscriptionID = segments[2]
	if len(segments) > 4 {
		m.ResourceGroup = segments[4]
	}
	if len(segments) > 6 && segments[6] != "" {
		m.Source = strings.Replace(segments[6], "microsoft.", "azure.", 1)
	}
	return m, true
}

// Enricher 为结构化日志追加 metadata 字段。
type Enricher struct {
	prefix string
}

// New 创建 Enricher
func New(settings config.Settings) *Enricher {
	return &Enricher{prefix: settings.WithDefaults().CustomPropertiesPrefix}
}

// Enrich 在 {prefix}.meta.metadata 下写入资源元数据。
// 未经处理器转换的记录（没有 meta 包）直接在顶层读取 resourceId 并写入 metadata。
// 结果只取决于 resourceId，重复调用得到相同的 metadata。
func (e *Enricher) Enrich(l domain.StructuredLog) domain.StructuredLog {
	target := l.Meta(e.prefix)
	if target == nil {
		target = l
	}
	id, ok := target["resourceId"].(string)
	if !ok {
		return l
	}
	md, ok := ParseResourceID(id)
	if !ok {
		return l
	}
	target[domain.FieldMetadata] = md.Map()
	return l
}

// EnrichAll 对整批日志执行 Enrich。
func (e *Enricher) EnrichAll(logs []domain.StructuredLog) []domain.StructuredLog {
	for i := range logs {
		logs[i] = e.Enrich(logs[i])
	}
	return logs
}
