package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"swap-router/internal/api"
	"swap-router/internal/config"
	"swap-router/internal/distributor"
	"swap-router/internal/executor"
	"swap-router/internal/pipeline"
	"swap-router/internal/router"
	"swap-router/internal/sim"
	"swap-router/internal/store"
	"swap-router/internal/venue"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装全部组件并阻塞运行，直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	orderStore, err := store.NewOrderStore(a.store)
	if err != nil {
		return fmt.Errorf("初始化订单存储失败: %w", err)
	}

	rng := sim.NewRand(time.Now().UnixNano())
	sleeper := sim.NewSleeper()

	venueCfgs := a.cfg.NormalizedVenues()
	venues := make([]venue.Venue, 0, len(venueCfgs))
	for _, vc := range venueCfgs {
		venues = append(venues, venue.NewSimulated(vc, a.cfg.Market.BasePrice, rng, sleeper, a.logger))
	}

	quoteRouter := router.New(venues, a.logger)
	swapExecutor := executor.New(a.cfg.Execution, a.cfg.Market.NativeToken, rng, sleeper, a.logger)

	dist := distributor.New(a.cfg.Distributor.Buffer, a.cfg.Distributor.GracePeriod, a.logger)
	defer dist.Close()

	pipe := pipeline.New(orderStore, dist, quoteRouter, swapExecutor, sleeper, a.cfg.Pipeline, a.logger)

	dispatcher := pipeline.NewDispatcher(pipe, a.cfg.Pipeline, a.logger)
	dispatcher.Start(ctx)

	server := api.NewServer(orderStore, dispatcher, dist, a.cfg.Market, a.cfg.Server, a.logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("启动 API 服务失败: %w", err)
	}

	venueNames := make([]string, len(venueCfgs))
	for i, vc := range venueCfgs {
		venueNames[i] = vc.Name
	}
	a.logger.Info("兑换路由已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Strings("venues", venueNames),
		zap.Int("concurrency", a.cfg.Pipeline.Concurrency),
		zap.Int("ratePerMinute", a.cfg.Pipeline.RatePerMinute),
	)

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，正在停止")
	dispatcher.Wait()
	return nil
}
