package trigger

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oriys/azlogforwarder/internal/auth"
	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/telemetry"
)

// ReadyCheck 就绪检查，返回错误表示未就绪。
type ReadyCheck func() error

// RouterConfig 路由器配置选项
type RouterConfig struct {
	Dispatcher *Dispatcher
	Server     config.ServerConfig
	Trigger    config.HTTPTriggerConfig
	// Auth 认证中间件（可选）
	Auth *auth.Middleware
	// Gatherer 指标采集来源，为 nil 时使用默认注册表
	Gatherer prometheus.Gatherer
	// ReadyChecks 就绪探针依赖的检查
	ReadyChecks []ReadyCheck
	Logger      *logrus.Logger
	ServiceName string
}

// NewRouter 创建 HTTP 路由器。
//
// 路由结构：
//
//	/health        - 基本健康检查
//	/health/ready  - 就绪探针
//	/health/live   - 存活探针
//	/metrics       - Prometheus 指标
//	{trigger path} - HTTP 触发器（启用时）
func NewRouter(cfg *RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(telemetry.HTTPMiddleware(cfg.ServiceName))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range cfg.ReadyChecks {
			if err := check(); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.Trigger.Enabled {
		h := &httpTrigger{
			dispatcher: cfg.Dispatcher,
			name:       cfg.Trigger.Name,
			maxBody:    cfg.Server.MaxBodyBytes,
			logger:     cfg.Logger,
		}
		if h.logger == nil {
			h.logger = logrus.StandardLogger()
		}
		r.Group(func(r chi.Router) {
			if cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
			}
			if cfg.Auth != nil {
				r.Use(cfg.Auth.Authenticate)
			}
			r.Post(cfg.Trigger.Path, h.serve)
		})
	}
	return r
}

type httpTrigger struct {
	dispatcher *Dispatcher
	name       string
	maxBody    int64
	logger     *logrus.Logger
}

// invocationResponse HTTP 触发器的响应体
type invocationResponse struct {
	InvocationID string `json:"invocation_id"`
	Status       string `json:"status"`
	Records      int    `json:"records"`
	Spans        int    `json:"spans"`
	Delivered    int    `json:"delivered"`
	Dropped      int    `json:"dropped"`
	DurationMs   int64  `json:"duration_ms"`
}

// serve 读取请求体作为原始批次，等待调用完成后返回汇总。
func (h *httpTrigger) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body := io.Reader(r.Body)
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Warn("Failed to read request body")
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	inv, err := h.dispatcher.Dispatch(r.Context(), KindHTTP, h.name, middleware.GetReqID(r.Context()), payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res := inv.Result
	writeJSON(w, http.StatusAccepted, invocationResponse{
		InvocationID: inv.ID,
		Status:       inv.Status,
		Records:      res.Records,
		Spans:        res.Spans,
		Delivered:    res.Logs.Delivered + res.SpanReport.Delivered,
		Dropped:      res.Logs.Dropped + res.SpanReport.Dropped,
		DurationMs:   time.Since(start).Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
