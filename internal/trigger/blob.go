package trigger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/azlogforwarder/internal/config"
)

// BlobTrigger 监听目录中新出现的文件，每个文件的内容对应一次调用。
// 写入方应先写临时文件再重命名为匹配 Pattern 的名称；定时扫描补偿遗漏的文件事件。
type BlobTrigger struct {
	cfg        config.BlobTriggerConfig
	dispatcher *Dispatcher
	logger     *logrus.Logger
	cron       *cron.Cron

	mu       sync.Mutex
	inflight map[string]struct{}
	// wg 跟踪由文件事件启动的处理协程
	wg sync.WaitGroup
}

// NewBlobTrigger 创建 Blob 触发器，目录不存在时自动创建。
func NewBlobTrigger(cfg config.BlobTriggerConfig, d *Dispatcher, logger *logrus.Logger) (*BlobTrigger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	if cfg.ProcessedDir != "" {
		if err := os.MkdirAll(cfg.ProcessedDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create processed dir: %w", err)
		}
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid blob pattern %q: %w", cfg.Pattern, err)
	}
	return &BlobTrigger{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger,
		cron:       cron.New(cron.WithSeconds()), // 支持秒级
		inflight:   make(map[string]struct{}),
	}, nil
}

func (t *BlobTrigger) Name() string { return KindBlob }

// Run 启动目录监听与定时扫描，阻塞直到 ctx 取消。
func (t *BlobTrigger) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(t.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", t.cfg.Dir, err)
	}

	if _, err := t.cron.AddFunc(t.cfg.SweepSchedule, func() { t.Sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", t.cfg.SweepSchedule, err)
	}
	t.cron.Start()
	defer func() { <-t.cron.Stop().Done() }()
	// 退出前等待进行中的文件处理完成
	defer t.wg.Wait()

	t.logger.WithFields(logrus.Fields{
		"dir":     t.cfg.Dir,
		"pattern": t.cfg.Pattern,
	}).Info("Blob trigger started")

	// 启动时先处理已有文件
	t.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if t.matches(ev.Name) {
				t.wg.Add(1)
				go func(path string) {
					defer t.wg.Done()
					t.ProcessFile(ctx, path)
				}(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.WithError(err).Warn("Blob watcher error")
		}
	}
}

// Sweep 处理目录中所有匹配的文件。
func (t *BlobTrigger) Sweep(ctx context.Context) {
	paths, err := filepath.Glob(filepath.Join(t.cfg.Dir, t.cfg.Pattern))
	if err != nil {
		t.logger.WithError(err).Warn("Blob sweep failed")
		return
	}
	for _, p := range paths {
		if ctx.Err() != nil {
			return
		}
		t.ProcessFile(ctx, p)
	}
}

// ProcessFile 读取并转发单个文件，完成后移动到 ProcessedDir 或删除。
// 同一文件同时只会被处理一次；配置错误时保留文件等待下次扫描。
func (t *BlobTrigger) ProcessFile(ctx context.Context, path string) {
	if !t.acquire(path) {
		return
	}
	defer t.release(path)

	data, err := os.ReadFile(path)
	if err != nil {
		// 已被其他扫描处理并移走
		if os.IsNotExist(err) {
			return
		}
		t.logger.WithError(err).WithField("path", path).Warn("Failed to read blob")
		return
	}

	if _, err := t.dispatcher.Dispatch(ctx, KindBlob, t.cfg.Name, "", data); err != nil {
		return
	}
	t.finish(path)
}

func (t *BlobTrigger) finish(path string) {
	if t.cfg.ProcessedDir == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.logger.WithError(err).WithField("path", path).Warn("Failed to remove blob")
		}
		return
	}
	dst := filepath.Join(t.cfg.ProcessedDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		t.logger.WithError(err).WithField("path", path).Warn("Failed to move blob")
	}
}

func (t *BlobTrigger) matches(path string) bool {
	ok, _ := filepath.Match(t.cfg.Pattern, filepath.Base(path))
	return ok
}

func (t *BlobTrigger) acquire(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inflight[path]; busy {
		return false
	}
	t.inflight[path] = struct{}{}
	return true
}

func (t *BlobTrigger) release(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, path)
}
