// Package executor 模拟链上提交与确认：固定确认延迟、±1% 价格漂移、
// 非对称滑点保护，以及交易签名生成。
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/order"
	"swap-router/internal/sim"
)

// Executor 按选中的报价执行兑换。
type Executor struct {
	cfg         config.ExecutionConfig
	nativeToken string
	rand        sim.Rand
	sleeper     sim.Sleeper
	logger      *zap.Logger
}

// New 创建执行器。
func New(cfg config.ExecutionConfig, nativeToken string, rand sim.Rand, sleeper sim.Sleeper, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:         cfg,
		nativeToken: nativeToken,
		rand:        rand,
		sleeper:     sleeper,
		logger:      logger,
	}
}

// Execute 提交兑换并等待确认。
// 执行期间价格在 ±price_movement 范围内漂移；只有不利方向的偏移
// 超过容忍度才判定滑点超限，有利偏移无论幅度多大都放行。
func (e *Executor) Execute(ctx context.Context, venueName, tokenIn, tokenOut string, amount float64, quote order.Quote, slippage float64) (order.ExecutionResult, error) {
	delay := e.cfg.ConfirmDelay
	if tokenIn == e.nativeToken || tokenOut == e.nativeToken {
		// 原生资产需要额外的 wrap/unwrap 开销。
		delay += e.cfg.WrapDelay
	}
	if err := e.sleeper.Sleep(ctx, delay); err != nil {
		return order.ExecutionResult{}, fmt.Errorf("executor: 执行被取消: %w", err)
	}

	movement := sim.Uniform(e.rand, -e.cfg.PriceMovement, e.cfg.PriceMovement)
	executedPrice := quote.Price * (1 + movement)

	if executedPrice < quote.Price*(1-slippage) {
		return order.ExecutionResult{}, &order.SlippageError{
			QuotedPrice:   quote.Price,
			ExecutedPrice: executedPrice,
			Tolerance:     slippage,
		}
	}

	result := order.ExecutionResult{
		TxSignature:   NewTxSignature(),
		ExecutedPrice: executedPrice,
		AmountOut:     amount*executedPrice - quote.Fee,
	}

	e.logger.Info("swap executed",
		zap.String("venue", venueName),
		zap.String("pair", tokenIn+"/"+tokenOut),
		zap.Float64("quotedPrice", quote.Price),
		zap.Float64("executedPrice", executedPrice),
		zap.Float64("amountOut", result.AmountOut),
		zap.String("txSignature", result.TxSignature),
	)

	return result, nil
}
