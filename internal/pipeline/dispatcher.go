package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/order"
)

// Dispatcher 把新订单排入队列，由固定规模的 worker 池消费。
// 并发上限与启动速率上限都只会让任务排队，不会丢弃或拒绝；
// 一笔订单的延迟永远不会阻塞其它订单的管线。
type Dispatcher struct {
	pipeline *Pipeline
	queue    chan order.Order
	limiter  *RateLimiter
	workers  int
	logger   *zap.Logger

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher 创建调度器。
func NewDispatcher(p *Pipeline, cfg config.PipelineConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		pipeline: p,
		queue:    make(chan order.Order, queueSize),
		limiter:  NewRateLimiter(cfg.RatePerMinute),
		workers:  workers,
		logger:   logger,
	}
}

// Start 启动 worker 池。重复调用只生效一次。
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx, i)
		}
		d.logger.Info("调度器已启动",
			zap.Int("workers", d.workers),
			zap.Int("queueSize", cap(d.queue)),
		)
	})
}

// Submit 把订单排入执行队列。队列已满时阻塞等待空位而不是拒绝。
func (d *Dispatcher) Submit(ctx context.Context, o order.Order) error {
	select {
	case d.queue <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 等待全部 worker 退出，用于进程收尾。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.pipeline.Run(ctx, o); err != nil {
				d.logger.Warn("订单以失败终态结束",
					zap.Int("worker", id),
					zap.String("orderId", o.ID),
					zap.Error(err),
				)
			}
		}
	}
}
