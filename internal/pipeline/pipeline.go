// Package pipeline 驱动订单经过 pending → routing → building → submitted →
// confirmed|failed 的状态机，并承担整体重试与并发调度。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/order"
	"swap-router/internal/router"
	"swap-router/internal/sim"
)

// Store 是管线依赖的持久化协作方。
type Store interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status order.Status, at time.Time) error
	AppendHistory(ctx context.Context, u order.StatusUpdate) error
}

// Publisher 把状态事件转发给实时订阅方。
type Publisher interface {
	Publish(u order.StatusUpdate)
}

// QuoteRouter 负责并发询价。
type QuoteRouter interface {
	QuoteAll(ctx context.Context, tokenIn, tokenOut string, amount float64) ([]order.Quote, error)
}

// SwapExecutor 按选中的报价执行兑换。
type SwapExecutor interface {
	Execute(ctx context.Context, venueName, tokenIn, tokenOut string, amount float64, quote order.Quote, slippage float64) (order.ExecutionResult, error)
}

// Pipeline 是单笔订单的状态机。每次状态转移先同步落库再发布，
// 各阶段自身从不重试，重试只发生在整条管线层面。
type Pipeline struct {
	store    Store
	pub      Publisher
	router   QuoteRouter
	executor SwapExecutor
	sleeper  sim.Sleeper
	cfg      config.PipelineConfig
	logger   *zap.Logger
}

// New 创建管线。
func New(store Store, pub Publisher, quoteRouter QuoteRouter, executor SwapExecutor, sleeper sim.Sleeper, cfg config.PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		pub:      pub,
		router:   quoteRouter,
		executor: executor,
		sleeper:  sleeper,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run 完整执行一笔订单：失败时整条管线从头重试，
// 退避时长为 base × 2^(attempt−1)，直到用尽重试上限。
// 参数错误属于确定性失败，不进入重试。
func (p *Pipeline) Run(ctx context.Context, o order.Order) error {
	var err error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err = p.attempt(ctx, o, attempt)
		if err == nil {
			return nil
		}
		if !order.IsRetryable(err) {
			p.logger.Warn("订单失败且不可重试",
				zap.String("orderId", o.ID),
				zap.Error(err),
			)
			return err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		backoff := p.cfg.BackoffBase << (attempt - 1)
		p.logger.Warn("管线执行失败，准备重试",
			zap.String("orderId", o.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if sleepErr := p.sleeper.Sleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("pipeline: 重试 %d 次后仍失败: %w", p.cfg.MaxAttempts, err)
}

// attempt 运行一次完整的管线尝试。任何阶段失败都会转为 failed 事件，
// 并把原始错误交还给重试控制器。
func (p *Pipeline) attempt(ctx context.Context, o order.Order, attempt int) error {
	if err := p.emit(ctx, o.ID, order.StatusPending, nil); err != nil {
		return err
	}

	if err := router.Validate(o.TokenIn, o.TokenOut, o.AmountIn, o.Slippage); err != nil {
		return p.fail(ctx, o.ID, attempt, err)
	}

	// 第一次 routing 为裸事件，标记询价开始；拿到结果后再发一次带报价的。
	if err := p.emit(ctx, o.ID, order.StatusRouting, nil); err != nil {
		return err
	}

	quotes, err := p.router.QuoteAll(ctx, o.TokenIn, o.TokenOut, o.AmountIn)
	if err != nil {
		return p.fail(ctx, o.ID, attempt, err)
	}
	best, err := router.SelectBest(quotes)
	if err != nil {
		return p.fail(ctx, o.ID, attempt, err)
	}
	if err := p.emit(ctx, o.ID, order.StatusRouting, order.RoutingPayload{Quotes: quotes, Selected: best}); err != nil {
		return err
	}

	if err := p.emit(ctx, o.ID, order.StatusBuilding, order.BuildingPayload{Venue: best.Venue}); err != nil {
		return err
	}

	result, err := p.executor.Execute(ctx, best.Venue, o.TokenIn, o.TokenOut, o.AmountIn, best, o.Slippage)
	if err != nil {
		return p.fail(ctx, o.ID, attempt, err)
	}

	if err := p.emit(ctx, o.ID, order.StatusSubmitted, order.SubmittedPayload{
		Venue:       best.Venue,
		TxSignature: result.TxSignature,
	}); err != nil {
		return err
	}

	if err := p.sleeper.Sleep(ctx, p.cfg.ConfirmationWait); err != nil {
		return p.fail(ctx, o.ID, attempt, err)
	}

	return p.emit(ctx, o.ID, order.StatusConfirmed, order.ConfirmedPayload{
		Venue:         best.Venue,
		TxSignature:   result.TxSignature,
		ExecutedPrice: result.ExecutedPrice,
		AmountOut:     result.AmountOut,
	})
}

// fail 发出 failed 事件并把原始错误向上传递。
// failed 事件本身落库失败只记录，不改变返回值。
func (p *Pipeline) fail(ctx context.Context, orderID string, attempt int, cause error) error {
	if err := p.emit(ctx, orderID, order.StatusFailed, order.FailedPayload{
		Error:   cause.Error(),
		Attempt: attempt,
	}); err != nil {
		p.logger.Error("写入 failed 事件失败",
			zap.String("orderId", orderID),
			zap.Error(err),
		)
	}
	return cause
}

// emit 执行一次状态转移：更新订单冗余状态、追加历史、推送订阅方。
// 落库完成之前不会发布，保证历史与实时流的顺序一致。
func (p *Pipeline) emit(ctx context.Context, orderID string, status order.Status, payload interface{}) error {
	u := order.StatusUpdate{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	if err := p.store.UpdateOrderStatus(ctx, orderID, status, u.Timestamp); err != nil {
		return err
	}
	if err := p.store.AppendHistory(ctx, u); err != nil {
		return err
	}

	p.pub.Publish(u)

	p.logger.Debug("status transition",
		zap.String("orderId", orderID),
		zap.String("status", string(status)),
	)
	return nil
}
