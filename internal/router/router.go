// Package router 负责订单参数校验、并发询价与最优报价选择。
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swap-router/internal/order"
	"swap-router/internal/venue"
)

// Router 把一次兑换请求路由到净得最高的场所。
type Router struct {
	venues []venue.Venue
	logger *zap.Logger
}

// New 创建路由器。
func New(venues []venue.Venue, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		venues: venues,
		logger: logger,
	}
}

// Validate 校验订单参数。纯函数，无副作用。
func Validate(tokenIn, tokenOut string, amount, slippage float64) error {
	if tokenIn == "" || tokenOut == "" {
		return fmt.Errorf("%w: 代币符号不能为空", order.ErrInvalidOrder)
	}
	if tokenIn == tokenOut {
		return fmt.Errorf("%w: 输入与输出代币相同", order.ErrInvalidOrder)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: 数量必须大于0", order.ErrInvalidOrder)
	}
	if slippage < 0 || slippage > 1 {
		return fmt.Errorf("%w: 滑点容忍度必须位于[0,1]", order.ErrInvalidOrder)
	}
	return nil
}

// QuoteAll 并发向全部场所询价，等待全部完成后返回。
// 单个场所失败不影响其余结果；所有场所都失败时返回 ErrNoQuotesAvailable。
// 总耗时取决于最慢的单个场所，而非各场所延迟之和。
func (r *Router) QuoteAll(ctx context.Context, tokenIn, tokenOut string, amount float64) ([]order.Quote, error) {
	results := make([]*order.Quote, len(r.venues))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, v := range r.venues {
		group.Go(func() error {
			quote, err := v.GetQuote(groupCtx, tokenIn, tokenOut, amount)
			if err != nil {
				// 部分容忍：记录并丢弃失败的场所，不让它拖垮整轮询价。
				r.logger.Warn("场所询价失败",
					zap.String("venue", v.Name()),
					zap.Error(err),
				)
				return nil
			}
			results[i] = &quote
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	quotes := make([]order.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("router: 全部场所询价失败: %w", order.ErrNoQuotesAvailable)
	}
	return quotes, nil
}

// SelectBest 在报价集中选出净得最高的一份。
// 净得相同时保留先遇到的报价，保证结果可复现。
func SelectBest(quotes []order.Quote) (order.Quote, error) {
	if len(quotes) == 0 {
		return order.Quote{}, fmt.Errorf("router: 报价集为空: %w", order.ErrNoQuotesAvailable)
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.NetOut() > best.NetOut() {
			best = q
		}
	}
	return best, nil
}
