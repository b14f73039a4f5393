// Package config 提供了日志转发器的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过 NR_* 环境变量覆盖（包括 License Key 等敏感配置项）。
// 配置包含了转发设置、触发器、服务器、认证、日志、指标和遥测等多个方面的设置。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// New Relic 相关常量与默认值
const (
	// LogsSource 插件类型标识
	LogsSource = "azure"
	// DefaultLogEndpoint 默认日志接入地址
	DefaultLogEndpoint = "https://log-api.newrelic.com/log/v1"
	// DefaultTraceEndpoint 默认追踪接入地址
	DefaultTraceEndpoint = "https://trace-api.newrelic.com/trace/v1"
	// DefaultMaxRetries 默认最大尝试次数
	DefaultMaxRetries = 3
	// DefaultRetryIntervalMs 默认重试间隔（毫秒）
	DefaultRetryIntervalMs = 2000
	// DefaultEnvironment 默认环境标识
	DefaultEnvironment = "dev"
	// DefaultCustomPropertiesPrefix 默认自定义属性前缀
	DefaultCustomPropertiesPrefix = "custom"
	// DefaultMaxPayloadSizeBytes 压缩后负载的默认大小上限
	DefaultMaxPayloadSizeBytes = 1000 * 1024
)

// DefaultDecorationProperties 默认提升到顶层的装饰属性列表
var DefaultDecorationProperties = []string{
	"trace.id",
	"span.id",
	"parent.id",
	"level",
	"timestamp",
	"serviceName",
	"entity.guid",
	"entity.name",
	"hostname",
}

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Settings 转发管道使用的只读设置
	Settings Settings `yaml:"forwarder"`
	// Server HTTP 服务器配置
	Server ServerConfig `yaml:"server"`
	// Auth HTTP 触发器认证配置
	Auth AuthConfig `yaml:"auth"`
	// Triggers 触发器配置
	Triggers TriggersConfig `yaml:"triggers"`
	// Logging 日志配置，包括日志级别和格式
	Logging LoggingConfig `yaml:"logging"`
	// Metrics 指标配置，用于 Prometheus 监控
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 转发器自身的分布式追踪配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置结构体。
type ServerConfig struct {
	// HTTPPort HTTP 触发器和健康检查端口
	// 默认值：8080
	HTTPPort int `yaml:"http_port"`
	// ShutdownTimeout 优雅关闭超时时间
	// 默认值：30 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout 单次 HTTP 触发请求的处理超时
	// 默认值：5 分钟
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxBodyBytes HTTP 触发请求体大小上限
	// 默认值：32 MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// AuthConfig HTTP 触发器认证配置结构体。
type AuthConfig struct {
	// Enabled 是否启用认证
	Enabled bool `yaml:"enabled"`
	// FunctionKey 共享的函数密钥，可通过 NR_FUNCTION_KEY 或 NR_FUNCTION_KEY_FILE 覆盖
	FunctionKey string `yaml:"function_key"`
	// KeyHeader 函数密钥请求头名称
	// 默认值：x-functions-key
	KeyHeader string `yaml:"key_header"`
	// JWTSecret JWT 签名密钥，可通过 NR_AUTH_JWT_SECRET 或 NR_AUTH_JWT_SECRET_FILE 覆盖
	JWTSecret string `yaml:"jwt_secret"`
	// JWTExpiration JWT 令牌过期时间
	// 默认值：24 小时
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
}

// TriggersConfig 触发器配置结构体。
// 每种触发器对应一种 Azure 触发方式：HTTP、Event Hub（NATS）、Storage Queue（Redis）、Blob（目录）。
type TriggersConfig struct {
	HTTP  HTTPTriggerConfig  `yaml:"http"`
	NATS  NATSTriggerConfig  `yaml:"nats"`
	Redis RedisTriggerConfig `yaml:"redis"`
	Blob  BlobTriggerConfig  `yaml:"blob"`
}

// HTTPTriggerConfig HTTP 触发器配置。
type HTTPTriggerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Name 触发器名称，作为 azure.forwardername 上报
	Name string `yaml:"name"`
	// Path 接收批次的路径
	// 默认值：/api/forward
	Path string `yaml:"path"`
}

// NATSTriggerConfig NATS JetStream 流触发器配置。
type NATSTriggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	// URL NATS 服务器地址，如 "nats://localhost:4222"
	URL string `yaml:"url"`
	// Stream 流名称
	// 默认值：AZURE_LOGS
	Stream string `yaml:"stream"`
	// Subject 订阅的 subject
	// 默认值：azure.logs.>
	Subject string `yaml:"subject"`
	// Durable 持久消费者名称
	// 默认值：nr-forwarder
	Durable string `yaml:"durable"`
	// BatchSize 每次拉取的最大消息数
	// 默认值：100
	BatchSize int `yaml:"batch_size"`
	// FetchWait 每次拉取的最长等待时间
	// 默认值：5 秒
	FetchWait time.Duration `yaml:"fetch_wait"`
}

// RedisTriggerConfig Redis 列表队列触发器配置。
type RedisTriggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	// Address Redis 服务器地址，格式为 "host:port"
	Address string `yaml:"address"`
	// Password Redis 密码，可通过环境变量 NR_REDIS_PASSWORD 或 NR_REDIS_PASSWORD_FILE 覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号（0-15）
	DB int `yaml:"db"`
	// Queue 列表键名
	// 默认值：azure-logs
	Queue string `yaml:"queue"`
	// BatchSize 每批最多弹出的消息数
	// 默认值：100
	BatchSize int `yaml:"batch_size"`
	// PollTimeout 阻塞弹出的超时时间
	// 默认值：5 秒
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// BlobTriggerConfig 目录（Blob）触发器配置。
type BlobTriggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	// Dir 监听的目录
	Dir string `yaml:"dir"`
	// Pattern 文件名匹配模式
	// 默认值：*.json
	Pattern string `yaml:"pattern"`
	// ProcessedDir 处理完成后文件移动到的目录，为空时删除文件
	ProcessedDir string `yaml:"processed_dir"`
	// SweepSchedule 全量扫描的 cron 表达式，用于补偿遗漏的文件事件
	// 默认值：@every 1m
	SweepSchedule string `yaml:"sweep_schedule"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别，可选值：debug、info、warn、error
	Level string `yaml:"level"`
	// Format 日志格式，可选值：json、text
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间前缀
	// 默认值：nrforwarder
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体。
type TelemetryConfig struct {
	// Enabled 是否启用遥测
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP gRPC 端点地址
	// 默认值：localhost:4317
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称
	// 默认值：nr-azure-forwarder
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率，范围 0.0 到 1.0
	// 默认值：0.1
	SampleRate float64 `yaml:"sample_rate"`
}

// Default 返回只包含默认值的配置，用于没有配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load 从指定路径加载配置文件。
// path 为空时只使用默认值和环境变量。
// 该函数会读取 YAML 配置文件，应用默认值，并处理环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 转发设置沿用 NR_* 环境变量；敏感配置项支持两种方式：
// 1. 直接设置环境变量（如 NR_LICENSE_KEY）
// 2. 通过 _FILE 后缀指定包含密钥的文件路径（如 NR_LICENSE_KEY_FILE）
// _FILE 方式优先级更高，适用于 Docker Secrets 等场景。
func (c *Config) applyEnvOverrides() {
	s := &c.Settings

	if v := readEnvOrFileAny([]string{"NR_LICENSE_KEY"}, []string{"NR_LICENSE_KEY_FILE"}); v != "" {
		s.LicenseKey = v
	}
	if v := readEnvOrFileAny([]string{"NR_FUNCTION_KEY"}, []string{"NR_FUNCTION_KEY_FILE"}); v != "" {
		c.Auth.FunctionKey = v
	}
	if v := readEnvOrFileAny([]string{"NR_AUTH_JWT_SECRET"}, []string{"NR_AUTH_JWT_SECRET_FILE"}); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := readEnvOrFileAny([]string{"NR_REDIS_PASSWORD"}, []string{"NR_REDIS_PASSWORD_FILE"}); v != "" {
		c.Triggers.Redis.Password = v
	}

	if v := env("NR_LOG_ENDPOINT"); v != "" {
		s.LogEndpoint = v
	}
	if v := env("NR_TRACE_ENDPOINT"); v != "" {
		s.TraceEndpoint = v
	}
	// 与 Node 版本保持一致：无法解析的数字视为未设置
	if v, ok := envInt("NR_MAX_RETRIES"); ok {
		s.MaxRetries = v
	}
	if v, ok := envInt("NR_RETRY_INTERVAL"); ok {
		s.RetryIntervalMs = v
	}
	if v, ok := envInt("NR_MAX_PAYLOAD_SIZE"); ok {
		s.MaxPayloadSizeBytes = v
	}
	if v := env("NR_ENVIRONMENT"); v != "" {
		s.Environment = v
	}
	if v := env("NR_SERVICE_NAME"); v != "" {
		s.ServiceName = v
	}
	if v := env("NR_SOURCE_SERVICE_TYPE"); v != "" {
		s.SourceServiceType = v
	}
	if v := env("NR_FORWARD_TRACING"); v != "" {
		s.ForwardTracing = strings.Contains(strings.ToLower(v), "true")
	}
	if v := env("NR_CUSTOM_PROPERTIES_PREFIX"); v != "" {
		s.CustomPropertiesPrefix = v
	}
	if v := env("NR_TAGS"); v != "" {
		s.Tags = v
	}
	if v := env("NR_DECORATION_PROPERTIES"); v != "" {
		s.DecorationProperties = splitList(v)
	}
}

// readEnvOrFileAny 从环境变量或文件读取配置值。
// 优先从 fileKeys 指定的文件路径读取，如果文件不存在或读取失败，
// 则从 envKeys 指定的环境变量读取。
func readEnvOrFileAny(envKeys []string, fileKeys []string) string {
	for _, fileKey := range fileKeys {
		if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
			if b, err := os.ReadFile(filePath); err == nil {
				return strings.TrimSpace(string(b))
			}
		}
	}

	for _, envKey := range envKeys {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			return v
		}
	}

	return ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	c.Settings.applyDefaults()

	// HTTP 端口默认为 8080
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 5 * time.Minute
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 32 << 20
	}
	if c.Auth.KeyHeader == "" {
		c.Auth.KeyHeader = "x-functions-key"
	}
	if c.Auth.JWTExpiration == 0 {
		c.Auth.JWTExpiration = 24 * time.Hour
	}

	// 触发器默认值
	t := &c.Triggers
	if t.HTTP.Name == "" {
		t.HTTP.Name = "fnlogforwarderhttp"
	}
	if t.HTTP.Path == "" {
		t.HTTP.Path = "/api/forward"
	}
	if t.NATS.Name == "" {
		t.NATS.Name = "fnlogforwardereventhub"
	}
	if t.NATS.Stream == "" {
		t.NATS.Stream = "AZURE_LOGS"
	}
	if t.NATS.Subject == "" {
		t.NATS.Subject = "azure.logs.>"
	}
	if t.NATS.Durable == "" {
		t.NATS.Durable = "nr-forwarder"
	}
	if t.NATS.BatchSize == 0 {
		t.NATS.BatchSize = 100
	}
	if t.NATS.FetchWait == 0 {
		t.NATS.FetchWait = 5 * time.Second
	}
	if t.Redis.Name == "" {
		t.Redis.Name = "fnlogforwarderqueue"
	}
	if t.Redis.Queue == "" {
		t.Redis.Queue = "azure-logs"
	}
	if t.Redis.BatchSize == 0 {
		t.Redis.BatchSize = 100
	}
	if t.Redis.PollTimeout == 0 {
		t.Redis.PollTimeout = 5 * time.Second
	}
	if t.Blob.Name == "" {
		t.Blob.Name = "fnlogforwarderblob"
	}
	if t.Blob.Pattern == "" {
		t.Blob.Pattern = "*.json"
	}
	if t.Blob.SweepSchedule == "" {
		t.Blob.SweepSchedule = "@every 1m"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "nrforwarder"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "nr-azure-forwarder"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
}
