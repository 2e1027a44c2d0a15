package venue

import (
	"context"

	"swap-router/internal/order"
)

// Venue 是单个流动性场所的询价入口。
// 真实接入在无法给出报价时应返回 order.ErrVenueUnavailable，
// 由路由层的部分容忍策略处理。
type Venue interface {
	Name() string
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.Quote, error)
}
