package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/azlogforwarder/internal/auth"
	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/forwarder"
	"github.com/oriys/azlogforwarder/internal/metrics"
	"github.com/oriys/azlogforwarder/internal/telemetry"
	"github.com/oriys/azlogforwarder/internal/trigger"
)

// serveCmd 启动常驻服务：HTTP 服务器始终运行（健康检查与指标），其余触发器按配置启用
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the forwarder with the configured triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	logger := newLogger(cfg)
	logger.WithFields(logrus.Fields{
		"version":     Version,
		"source_type": cfg.Settings.SourceServiceType,
	}).Info("Starting New Relic forwarder")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 遥测初始化失败不影响主服务运行
	tel, err := telemetry.New(ctx, cfg.Telemetry, Version, cfg.Settings.Environment)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
	} else if tel.IsEnabled() {
		defer tel.Shutdown(context.Background())
		logger.WithFields(logrus.Fields{
			"endpoint":    cfg.Telemetry.Endpoint,
			"sample_rate": cfg.Telemetry.SampleRate,
		}).Info("Telemetry initialized")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace, reg)
	}

	fw := forwarder.New(cfg.Settings,
		forwarder.WithVersion(Version),
		forwarder.WithMetrics(m),
		forwarder.WithHTTPClient(telemetry.InstrumentedHTTPClient(deliveryTimeout)),
	)
	if err := fw.Validate(); err != nil {
		// 与函数运行时一致：配置错误在每次调用时报告，服务仍然启动
		logger.WithError(err).Error("Invalid forwarder settings")
	}

	dispatcher := trigger.NewDispatcher(fw, logger, m)
	runners, checks, closers, err := buildTriggers(ctx, cfg, dispatcher, logger)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if err != nil {
		return err
	}

	router := trigger.NewRouter(&trigger.RouterConfig{
		Dispatcher:  dispatcher,
		Server:      cfg.Server,
		Trigger:     cfg.Triggers.HTTP,
		Auth:        newAuthMiddleware(cfg.Auth, logger),
		Gatherer:    reg,
		ReadyChecks: append(checks, fw.Validate),
		Logger:      logger,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, r := range runners {
		r := r
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				return fmt.Errorf("%s trigger: %w", r.Name(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Forwarder stopped")
	return err
}

// buildTriggers 创建启用的触发器，返回运行器、就绪检查和关闭函数。
func buildTriggers(ctx context.Context, cfg *config.Config, d *trigger.Dispatcher, logger *logrus.Logger) ([]trigger.Runner, []trigger.ReadyCheck, []func(), error) {
	var (
		runners []trigger.Runner
		checks  []trigger.ReadyCheck
		closers []func()
	)

	if cfg.Triggers.NATS.Enabled {
		t, err := trigger.NewNATSTrigger(cfg.Triggers.NATS, d, logger)
		if err != nil {
			return runners, checks, closers, err
		}
		runners = append(runners, t)
		checks = append(checks, t.Ready)
		closers = append(closers, func() { t.Close() })
	}
	if cfg.Triggers.Redis.Enabled {
		t, err := trigger.NewRedisTrigger(ctx, cfg.Triggers.Redis, d, logger)
		if err != nil {
			return runners, checks, closers, err
		}
		runners = append(runners, t)
		checks = append(checks, t.Ready)
		closers = append(closers, func() { t.Close() })
	}
	if cfg.Triggers.Blob.Enabled {
		t, err := trigger.NewBlobTrigger(cfg.Triggers.Blob, d, logger)
		if err != nil {
			return runners, checks, closers, err
		}
		runners = append(runners, t)
	}
	return runners, checks, closers, nil
}

func newAuthMiddleware(cfg config.AuthConfig, logger *logrus.Logger) *auth.Middleware {
	if !cfg.Enabled {
		return nil
	}
	var jwtMgr *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtMgr = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}
	keys := auth.NewFunctionKeyValidator(cfg.FunctionKey)
	if jwtMgr == nil && keys == nil {
		logger.Warn("Authentication enabled without function key or JWT secret; all HTTP trigger requests will be rejected")
	}
	return auth.NewMiddleware(jwtMgr, cfg.KeyHeader, keys, true)
}
