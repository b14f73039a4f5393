package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// InvocationContext 是基于 logrus 的执行上下文，每次调用创建一个。
type InvocationContext struct {
	entry        *logrus.Entry
	functionName string
	invocationID string
}

// NewInvocation 为一次调用创建执行上下文，invocationID 为空时生成 UUID。
func NewInvocation(ctx context.Context, logger *logrus.Logger, functionName, invocationID string) *InvocationContext {
	if invocationID == "" {
		invocationID = uuid.NewString()
	}
	entry := logger.WithContext(ctx).WithFields(logrus.Fields{
		"function_name": functionName,
		"invocation_id": invocationID,
	})
	return &InvocationContext{
		entry:        entry,
		functionName: functionName,
		invocationID: invocationID,
	}
}

func (c *InvocationContext) Log(msg string)   { c.entry.Info(msg) }
func (c *InvocationContext) Warn(msg string)  { c.entry.Warn(msg) }
func (c *InvocationContext) Error(msg string) { c.entry.Error(msg) }

func (c *InvocationContext) FunctionName() string { return c.functionName }
func (c *InvocationContext) InvocationID() string { return c.invocationID }

// Entry 返回带调用字段的日志条目。
func (c *InvocationContext) Entry() *logrus.Entry { return c.entry }
