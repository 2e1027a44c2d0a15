package venue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/order"
	"swap-router/internal/sim"
)

// 价格冲击为纯参考值，不参与路由比价，上限约 2.5%。
const maxPriceImpact = 0.025

// Simulated 按配置的波动区间、费率与 gas 区间产生模拟报价。
// 询价前随机延迟一段网络时间，延迟经由 sim.Sleeper 注入，可被取消。
type Simulated struct {
	cfg       config.VenueConfig
	basePrice float64
	rand      sim.Rand
	sleeper   sim.Sleeper
	logger    *zap.Logger
}

// NewSimulated 创建模拟场所。
func NewSimulated(cfg config.VenueConfig, basePrice float64, rand sim.Rand, sleeper sim.Sleeper, logger *zap.Logger) *Simulated {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulated{
		cfg:       cfg,
		basePrice: basePrice,
		rand:      rand,
		sleeper:   sleeper,
		logger:    logger,
	}
}

// Name 返回场所标识。
func (v *Simulated) Name() string {
	return v.cfg.Name
}

// GetQuote 产生一份针对当前询价的报价。
func (v *Simulated) GetQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.Quote, error) {
	if err := v.sleeper.Sleep(ctx, v.latency()); err != nil {
		return order.Quote{}, fmt.Errorf("venue %s: 询价被取消: %w", v.cfg.Name, err)
	}

	price := v.basePrice * (1 + sim.Uniform(v.rand, v.cfg.VarianceMin, v.cfg.VarianceMax))
	fee := amount * v.cfg.FeeRate
	gross := amount * price

	quote := order.Quote{
		Venue:        v.cfg.Name,
		Price:        price,
		Fee:          fee,
		GrossOut:     gross,
		AmountOut:    gross - fee,
		PriceImpact:  v.rand.Float64() * maxPriceImpact,
		EstimatedGas: v.estimatedGas(),
	}

	v.logger.Debug("venue quote",
		zap.String("venue", v.cfg.Name),
		zap.String("pair", tokenIn+"/"+tokenOut),
		zap.Float64("price", quote.Price),
		zap.Float64("amountOut", quote.AmountOut),
		zap.Int64("estimatedGas", quote.EstimatedGas),
	)

	return quote, nil
}

func (v *Simulated) latency() time.Duration {
	span := v.cfg.LatencyMax - v.cfg.LatencyMin
	if span <= 0 {
		return v.cfg.LatencyMin
	}
	return v.cfg.LatencyMin + time.Duration(v.rand.Intn(int(span)))
}

func (v *Simulated) estimatedGas() int64 {
	span := v.cfg.GasMax - v.cfg.GasMin
	if span <= 0 {
		return int64(v.cfg.GasMin)
	}
	return int64(v.cfg.GasMin + v.rand.Intn(span+1))
}
