package order

import "time"

// Status 表示订单生命周期阶段。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal 判断状态是否为终态。终态之后不再有任何转移。
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// StatusUpdate 是管线发出的一次状态事件，按序追加到订单历史。
// Payload 的具体结构取决于 Status，可能为空。
type StatusUpdate struct {
	OrderID   string      `json:"orderId"`
	Status    Status      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// RoutingPayload 携带全部报价及选中结果，仅出现在第二次 routing 事件中。
type RoutingPayload struct {
	Quotes   []Quote `json:"quotes"`
	Selected Quote   `json:"selected"`
}

// BuildingPayload 标记交易构建所使用的场所。
type BuildingPayload struct {
	Venue string `json:"venue"`
}

// SubmittedPayload 携带已提交交易的签名。
type SubmittedPayload struct {
	Venue       string `json:"venue"`
	TxSignature string `json:"txSignature"`
}

// ConfirmedPayload 携带确认后的成交明细。
type ConfirmedPayload struct {
	Venue         string  `json:"venue"`
	TxSignature   string  `json:"txSignature"`
	ExecutedPrice float64 `json:"executedPrice"`
	AmountOut     float64 `json:"amountOut"`
}

// FailedPayload 携带失败原因与当前重试次数。
type FailedPayload struct {
	Error   string `json:"error"`
	Attempt int    `json:"attempt"`
}
