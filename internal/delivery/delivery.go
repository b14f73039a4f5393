// Package delivery 实现向 New Relic 接入端点的 HTTP 投递与固定间隔重试。
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/metrics"
)

// 请求头
const (
	HeaderContentType       = "Content-Type"
	HeaderContentEncoding   = "Content-Encoding"
	HeaderLicenseKey        = "X-License-Key"
	HeaderDataFormat        = "Data-Format"
	HeaderDataFormatVersion = "Data-Format-Version"
)

// 响应体读取上限
const maxResponseBytes = 64 * 1024

// SpanHeaders 返回 Span 负载需要的额外请求头。
func SpanHeaders() map[string]string {
	return map[string]string{
		HeaderDataFormat:        "newrelic",
		HeaderDataFormatVersion: "1",
	}
}

// Client 向 New Relic 投递压缩后的负载。
type Client struct {
	http       *http.Client
	licenseKey string
	maxRetries int
	interval   time.Duration
	metrics    *metrics.Metrics
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 使用自定义 HTTP 客户端（例如带追踪的传输层）。
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// New 根据设置创建 Client。
func New(settings config.Settings, opts ...Option) *Client {
	settings = settings.WithDefaults()
	c := &Client{
		http:       &http.Client{Timeout: 30 * time.Second},
		licenseKey: settings.LicenseKey,
		maxRetries: settings.MaxRetries,
		interval:   settings.RetryInterval(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError 表示接入端返回了非 202 响应。
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d", domain.ErrDelivery, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return domain.ErrDelivery }

// HTTPSend 发送一次 POST 请求，只有 202 视为成功。
func (c *Client) HTTPSend(ctx context.Context, body []byte, endpoint string, headers map[string]string, ectx domain.ExecutionContext) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	req.Header.Set(HeaderContentType, "application/json")
	req.Header.Set(HeaderContentEncoding, "gzip")
	req.Header.Set(HeaderLicenseKey, c.licenseKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	defer resp.Body.Close()

	ectx.Log("Got response: " + strconv.Itoa(resp.StatusCode))
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrDelivery, err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return respBody, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// Deliver 最多尝试 maxRetries 次（含首次），两次尝试之间固定等待 retryInterval。
// 返回最后一次尝试的错误。
func (c *Client) Deliver(ctx context.Context, kind domain.Kind, body []byte, endpoint string, headers map[string]string, ectx domain.ExecutionContext) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.interval), uint64(c.maxRetries-1)),
		ctx,
	)

	return backoff.Retry(func() error {
		_, err := c.HTTPSend(ctx, body, endpoint, headers, ectx)
		c.metrics.RecordDeliveryAttempt(string(kind), err == nil)
		return err
	}, policy)
}
