// Package domain 定义了日志转发管道的核心领域模型。
package domain

import "errors"

// 领域错误定义
// 这些错误用于在管道的不同阶段之间传递失败原因，调用方通过 errors.Is 判断类别。

var (
	// ========== 配置相关错误（ConfigurationError） ==========

	// ErrMissingLicenseKey 表示未配置 New Relic License Key
	ErrMissingLicenseKey = errors.New("you have to configure your New Relic license key")
	// ErrMissingSourceType 表示未配置来源服务类型
	ErrMissingSourceType = errors.New("you have to configure your source service type")
	// ErrUnknownSourceType 表示来源服务类型没有注册对应的处理器
	ErrUnknownSourceType = errors.New("unknown source service type")

	// ========== 解析相关错误 ==========

	// ErrParse 表示原始记录或嵌套字段无法解码（局部恢复，仅记录警告）
	ErrParse = errors.New("cannot parse value to JSON")
	// ErrInvalidFormat 表示规范化后的批次不符合任何已知形状
	ErrInvalidFormat = errors.New("logs format is invalid")

	// ========== 发送相关错误 ==========

	// ErrCompression 表示负载压缩失败（不可重试）
	ErrCompression = errors.New("error during payload compression")
	// ErrOversizedRecord 表示单条记录压缩后仍超出大小上限
	ErrOversizedRecord = errors.New("cannot send the payload as the size of single line exceeds the limit")
	// ErrMaxDepthExceeded 表示递归拆分超过深度上限
	ErrMaxDepthExceeded = errors.New("payload split depth exceeded")
	// ErrDelivery 表示投递失败（非 202 响应或传输层错误）
	ErrDelivery = errors.New("failed to send payload to New Relic")
)

// IsConfigurationError 判断错误是否属于配置错误。
// 配置错误对单次调用是致命的，只记录一次且不会尝试任何投递。
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingLicenseKey) ||
		errors.Is(err, ErrMissingSourceType) ||
		errors.Is(err, ErrUnknownSourceType)
}
