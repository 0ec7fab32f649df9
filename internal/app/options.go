package app

import (
	"os"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"

	"go.uber.org/zap"
)

// 启动模式：api 只提供 HTTP，worker 只运行队列消费与定时对账
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

const defaultStopTimeout = 10 * time.Second

// Options 启动参数，零值字段在 withDefaults 中补齐
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.S().Named("app")
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultStopTimeout
	}
	if o.Mode == "" {
		o.Mode = ModeAll
	}
	return o
}
