package config

import (
	"time"

	"github.com/oriys/azlogforwarder/internal/domain"
)

// Settings 是转发管道的只读设置。
// 进程启动时构造一次，之后显式传入需要它的各个组件，不存在全局可变状态。
type Settings struct {
	// LicenseKey New Relic License Key（必填）
	LicenseKey string `yaml:"license_key"`
	// LogEndpoint 日志接入地址
	LogEndpoint string `yaml:"log_endpoint"`
	// TraceEndpoint 追踪接入地址
	TraceEndpoint string `yaml:"trace_endpoint"`
	// MaxRetries 每个分块的最大尝试次数（含首次）
	MaxRetries int `yaml:"max_retries"`
	// RetryIntervalMs 两次尝试之间的固定间隔（毫秒）
	RetryIntervalMs int `yaml:"retry_interval_ms"`
	// Environment 环境标识
	Environment string `yaml:"environment"`
	// ServiceName 可选的服务名称
	ServiceName string `yaml:"service_name"`
	// SourceServiceType 来源服务类型，用于选择处理器（必填）
	SourceServiceType string `yaml:"source_service_type"`
	// ForwardTracing 是否重建并发送 Span
	ForwardTracing bool `yaml:"forward_tracing"`
	// CustomPropertiesPrefix 自定义属性前缀
	CustomPropertiesPrefix string `yaml:"custom_properties_prefix"`
	// Tags 原始标签字符串，格式为 key:value;key:value
	Tags string `yaml:"tags"`
	// MaxPayloadSizeBytes 压缩后负载大小上限
	MaxPayloadSizeBytes int `yaml:"max_payload_size_bytes"`
	// DecorationProperties 需要提升到顶层的装饰属性
	DecorationProperties []string `yaml:"decoration_properties"`
}

func (s *Settings) applyDefaults() {
	if s.LogEndpoint == "" {
		s.LogEndpoint = DefaultLogEndpoint
	}
	if s.TraceEndpoint == "" {
		s.TraceEndpoint = DefaultTraceEndpoint
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryIntervalMs <= 0 {
		s.RetryIntervalMs = DefaultRetryIntervalMs
	}
	if s.Environment == "" {
		s.Environment = DefaultEnvironment
	}
	if s.CustomPropertiesPrefix == "" {
		s.CustomPropertiesPrefix = DefaultCustomPropertiesPrefix
	}
	if s.MaxPayloadSizeBytes <= 0 {
		s.MaxPayloadSizeBytes = DefaultMaxPayloadSizeBytes
	}
	if s.DecorationProperties == nil {
		s.DecorationProperties = append([]string(nil), DefaultDecorationProperties...)
	}
}

// WithDefaults 返回填充了默认值的副本。
func (s Settings) WithDefaults() Settings {
	s.DecorationProperties = append([]string(nil), s.DecorationProperties...)
	if len(s.DecorationProperties) == 0 {
		s.DecorationProperties = nil
	}
	s.applyDefaults()
	return s
}

// Validate 检查运行管道的必填项。
// 返回的错误属于配置错误，调用方应记录一次并放弃本次调用。
func (s Settings) Validate() error {
	if s.LicenseKey == "" {
		return domain.ErrMissingLicenseKey
	}
	if s.SourceServiceType == "" {
		return domain.ErrMissingSourceType
	}
	return nil
}

// RetryInterval 返回重试间隔。
func (s Settings) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalMs) * time.Millisecond
}

// IsDecoration 判断字段是否在装饰属性列表中。
func (s Settings) IsDecoration(key string) bool {
	for _, p := range s.DecorationProperties {
		if p == key {
			return true
		}
	}
	return false
}
