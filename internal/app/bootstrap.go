package app

import (
	"errors"

	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/provider"
	"github.com/lotecorto/storefront/internal/router"
	"github.com/lotecorto/storefront/internal/worker"
)

// BuildRunner 按启动模式组装服务
func BuildRunner(cfg *config.Config, container *provider.Container, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if container == nil {
		return nil, errors.New("container is nil")
	}
	mode, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	if mode == ModeAll || mode == ModeWorker {
		// 队列未启用时转发在 webhook 内同步完成，只需要补偿任务
		if cfg.Queue.Enabled {
			workerService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Infow("app_worker_skipped_queue_disabled")
		}
		reconciler, err := worker.NewReconcileService(cfg.Notify.ReconcileCron, container.NotificationService)
		if err != nil {
			return nil, err
		}
		services = append(services, reconciler)
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	mode, err := ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	opts.Mode = mode

	container, err := provider.NewContainer(opts.Config)
	if err != nil {
		return err
	}
	defer container.Close()

	runner, err := BuildRunner(opts.Config, container, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode, "services", runner.Services())
	return RunWithOptions(runner, opts)
}
