package order

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrder 表示订单参数不合法，永不重试。
	ErrInvalidOrder = errors.New("invalid order")
	// ErrNoQuotesAvailable 表示所有场所均未返回报价，可重试。
	ErrNoQuotesAvailable = errors.New("no quotes available")
	// ErrSlippageExceeded 表示执行价格的不利偏移超出容忍度，可重试。
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrVenueUnavailable 表示单个场所询价失败，由路由层的部分容忍策略消化。
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrAlreadySubscribed 表示同一订单已存在活跃订阅。
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrNotFound 表示订单不存在。
	ErrNotFound = errors.New("order not found")
)

// SlippageError 在滑点超限时携带报价与成交双方价格，便于排查。
type SlippageError struct {
	QuotedPrice   float64
	ExecutedPrice float64
	Tolerance     float64
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage exceeded: quoted=%.6f executed=%.6f tolerance=%.4f",
		e.QuotedPrice, e.ExecutedPrice, e.Tolerance)
}

// Is 使 SlippageError 可与 ErrSlippageExceeded 哨兵匹配。
func (e *SlippageError) Is(target error) bool {
	return target == ErrSlippageExceeded
}

// IsRetryable 判断管线失败是否允许重试。
// 参数错误属于确定性失败，重试没有意义；其余失败默认视为瞬态。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidOrder)
}
