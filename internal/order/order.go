package order

import "time"

// Kind 表示订单类型，核心目前只支持市价单。
type Kind string

const (
	KindMarket Kind = "market"
	KindLimit  Kind = "limit"
)

// Supported 判断订单类型是否被执行管线支持。
func (k Kind) Supported() bool {
	return k == KindMarket
}

// Order 描述一笔兑换意图。除 Status 与 UpdatedAt 由管线独占更新外，
// 其余字段在提交后不再变化。
type Order struct {
	ID        string    `json:"orderId"`
	Kind      Kind      `json:"kind"`
	TokenIn   string    `json:"tokenIn"`
	TokenOut  string    `json:"tokenOut"`
	AmountIn  float64   `json:"amountIn"`
	Slippage  float64   `json:"slippage"`
	Wallet    string    `json:"walletAddress"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GasUnitOut 表示 1 个 gas 成本单位折算的输出代币数量。
// 模拟场内 gas 以千分之一输出代币计价，参与净得比较。
const GasUnitOut = 0.001

// Quote 是单个场所针对一次询价给出的报价，按路由轮次即取即用，不单独落库。
type Quote struct {
	Venue        string  `json:"venue"`
	Price        float64 `json:"price"`
	Fee          float64 `json:"fee"`
	GrossOut     float64 `json:"grossAmountOut"`
	AmountOut    float64 `json:"amountOut"`
	PriceImpact  float64 `json:"priceImpact"`
	EstimatedGas int64   `json:"estimatedGas"`
}

// NetOut 返回扣除 gas 成本后的净得数量，是跨场所比价的唯一指标。
func (q Quote) NetOut() float64 {
	return q.AmountOut - float64(q.EstimatedGas)*GasUnitOut
}

// ExecutionResult 是执行器产出的终态结果。
type ExecutionResult struct {
	TxSignature   string  `json:"txSignature"`
	ExecutedPrice float64 `json:"executedPrice"`
	AmountOut     float64 `json:"amountOut"`
}
