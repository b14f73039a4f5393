package domain

// ExecutionContext 是触发器适配器交给管道的执行上下文。
// 管道只通过这三个能力输出诊断信息，从不直接写控制台。
type ExecutionContext interface {
	// Log 输出普通诊断信息
	Log(msg string)
	// Warn 输出可恢复问题的警告
	Warn(msg string)
	// Error 输出失败信息
	Error(msg string)
	// FunctionName 返回转发器名称（触发器名）
	FunctionName() string
	// InvocationID 返回本次调用的唯一标识
	InvocationID() string
}
