package app

import (
	"errors"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/provider"
	"github.com/dujiao-next/affiliate-settlement/internal/router"
	"github.com/dujiao-next/affiliate-settlement/internal/worker"
)

// BuildRunner 构建服务运行器，返回的容器由调用方在退出时关闭
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// 初始化 Worker 服务
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		switch {
		case err == nil:
			services = append(services, workerService)
		case mode == ModeWorker:
			container.Close()
			return nil, nil, err
		default:
			// 队列未启用时通知同步派发，定时清扫照常运行
			logger.Warnw("app_worker_skipped", "error", err)
		}

		scheduler, err := worker.NewScheduler(cfg, container.SaleExpiryService, container.SettlementService)
		if err != nil {
			container.Close()
			return nil, nil, err
		}
		services = append(services, scheduler)
	}

	if len(services) == 0 {
		container.Close()
		return nil, nil, errors.New("unknown run mode: " + mode)
	}

	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = opts.withDefaults()
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer container.Close()

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
