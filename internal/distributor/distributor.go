// Package distributor 把管线的状态转移实时转发给订阅方。
// 每个订单同一时刻至多一个活跃订阅，订阅表由单一互斥锁守护；
// 推送是尽力而为的实时叠加层，落库历史才是事实来源。
package distributor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"swap-router/internal/order"
)

// Subscription 是一次订阅的句柄。终态送达并经过宽限期后，
// 分发器会主动关闭 Updates 通道并移除注册。
type Subscription struct {
	orderID   string
	ch        chan order.StatusUpdate
	closeOnce sync.Once
}

// Updates 返回状态事件通道。通道被服务端关闭即表示订阅结束。
func (s *Subscription) Updates() <-chan order.StatusUpdate {
	return s.ch
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

// Distributor 维护订单标识到活跃订阅的映射。
type Distributor struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	grace  time.Duration
	logger *zap.Logger
}

// New 创建分发器。grace 是终态送达后到主动断开之间的宽限期。
func New(buffer int, grace time.Duration, logger *zap.Logger) *Distributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &Distributor{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		grace:  grace,
		logger: logger,
	}
}

// Subscribe 注册订单的实时订阅。
// 已存在活跃订阅时拒绝并返回 order.ErrAlreadySubscribed，而不是顶替旧订阅。
func (d *Distributor) Subscribe(orderID string) (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[orderID]; ok {
		return nil, order.ErrAlreadySubscribed
	}

	sub := &Subscription{
		orderID: orderID,
		ch:      make(chan order.StatusUpdate, d.buffer),
	}
	d.subs[orderID] = sub
	return sub, nil
}

// Unsubscribe 移除订阅并关闭其通道。订阅方断开不影响管线推进。
func (d *Distributor) Unsubscribe(orderID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(orderID, nil)
}

// Publish 向当前注册的订阅推送一条状态事件。
// 没有订阅方时直接返回，事件不会阻塞管线；缓冲写满时丢弃并记录。
// 终态事件送达后启动宽限期关闭流程。
func (d *Distributor) Publish(u order.StatusUpdate) {
	d.mu.Lock()
	sub, ok := d.subs[u.OrderID]
	if ok {
		select {
		case sub.ch <- u:
		default:
			d.logger.Warn("订阅缓冲已满，丢弃状态事件",
				zap.String("orderId", u.OrderID),
				zap.String("status", string(u.Status)),
			)
		}
	}
	d.mu.Unlock()

	if ok && u.Status.Terminal() {
		go d.closeAfterGrace(u.OrderID, sub)
	}
}

// SubscriberCount 返回当前活跃订阅数。
func (d *Distributor) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close 关闭全部订阅，进程退出时调用。
func (d *Distributor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, sub := range d.subs {
		sub.close()
		delete(d.subs, id)
	}
}

// closeAfterGrace 等待宽限期，给订阅方留出消费终态事件的时间，
// 然后无条件关闭订阅。
func (d *Distributor) closeAfterGrace(orderID string, sub *Subscription) {
	if d.grace > 0 {
		time.Sleep(d.grace)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(orderID, sub)
}

// removeLocked 关闭并移除订阅。expect 非空时要求注册表里仍是同一订阅，
// 防止误关后来者。调用方必须持有 d.mu。
func (d *Distributor) removeLocked(orderID string, expect *Subscription) {
	sub, ok := d.subs[orderID]
	if !ok {
		return
	}
	if expect != nil && sub != expect {
		return
	}
	sub.close()
	delete(d.subs, orderID)
}
