// Package domaintest 提供测试用的执行上下文实现。
package domaintest

import (
	"strings"
	"sync"
)

// Recorder 记录所有诊断输出，可在并发分支中安全使用。
type Recorder struct {
	Name string
	ID   string

	mu     sync.Mutex
	logs   []string
	warns  []string
	errors []string
}

// NewRecorder 创建一个记录器。
func NewRecorder() *Recorder {
	return &Recorder{Name: "fnlogforwarder", ID: "test-invocation"}
}

func (r *Recorder) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, msg)
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *Recorder) FunctionName() string { return r.Name }

func (r *Recorder) InvocationID() string { return r.ID }

// Logs 返回 Log 输出的副本。
func (r *Recorder) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

// Warnings 返回 Warn 输出的副本。
func (r *Recorder) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warns...)
}

// Errors 返回 Error 输出的副本。
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// HasLog 判断是否有包含 substr 的普通日志。
func (r *Recorder) HasLog(substr string) bool {
	return containsAny(r.Logs(), substr)
}

// HasWarning 判断是否有包含 substr 的警告。
func (r *Recorder) HasWarning(substr string) bool {
	return containsAny(r.Warnings(), substr)
}

// HasError 判断是否有包含 substr 的错误。
func (r *Recorder) HasError(substr string) bool {
	return containsAny(r.Errors(), substr)
}

func containsAny(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
