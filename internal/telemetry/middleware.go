package telemetry

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// untracedPrefixes 探针和指标抓取路径，不为其创建 Span
var untracedPrefixes = []string{"/health", "/metrics"}

// HTTPMiddleware 为 HTTP 触发器的请求创建服务端 Span，健康检查和 /metrics 除外。
// Span 名称为 "方法 路径"，如 "POST /api/logs"。
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithFilter(traced),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(
					attribute.String("service.name", serviceName),
					attribute.String("faas.trigger", "http"),
				),
			),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return serverSpanName(r)
			}),
		)
	}
}

func traced(r *http.Request) bool {
	for _, p := range untracedPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return false
		}
	}
	return true
}

func serverSpanName(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// HTTPClientTransport 包装投递请求的传输层，每次尝试对应一个客户端 Span。
// base 为 nil 时使用 http.DefaultTransport。
func HTTPClientTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return clientSpanName(r)
		}),
	)
}

// clientSpanName 按接入主机命名，如 "POST log-api.newrelic.com"。
func clientSpanName(r *http.Request) string {
	return r.Method + " " + r.URL.Host
}

// InstrumentedHTTPClient 返回投递到 New Relic 接入端使用的客户端，timeout 限制单次尝试。
func InstrumentedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: HTTPClientTransport(nil),
		Timeout:   timeout,
	}
}
