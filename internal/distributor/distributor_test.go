package distributor

import (
	"errors"
	"testing"
	"time"

	"swap-router/internal/order"
)

func update(orderID string, status order.Status) order.StatusUpdate {
	return order.StatusUpdate{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

func TestPublish_WithoutSubscriberIsNoop(t *testing.T) {
	d := New(4, 0, nil)

	// 不应阻塞也不应崩溃。
	d.Publish(update("ord-1", order.StatusPending))
	d.Publish(update("ord-1", order.StatusConfirmed))

	if d.SubscriberCount() != 0 {
		t.Errorf("expected no registrations, got %d", d.SubscriberCount())
	}
}

func TestSubscribe_ReceivesUpdatesInOrder(t *testing.T) {
	d := New(8, 0, nil)

	sub, err := d.Subscribe("ord-1")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	sequence := []order.Status{order.StatusPending, order.StatusRouting, order.StatusRouting, order.StatusBuilding}
	for _, s := range sequence {
		d.Publish(update("ord-1", s))
	}

	for i, want := range sequence {
		select {
		case got := <-sub.Updates():
			if got.Status != want {
				t.Fatalf("update %d: got %s want %s", i, got.Status, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}
}

func TestSubscribe_SecondSubscriberRejected(t *testing.T) {
	d := New(4, 0, nil)

	if _, err := d.Subscribe("ord-1"); err != nil {
		t.Fatalf("first Subscribe failed: %v", err)
	}
	if _, err := d.Subscribe("ord-1"); !errors.Is(err, order.ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}

	// 其它订单不受影响。
	if _, err := d.Subscribe("ord-2"); err != nil {
		t.Fatalf("unrelated order must be subscribable: %v", err)
	}
}

func TestPublish_TerminalStatusClosesAfterGrace(t *testing.T) {
	d := New(4, 20*time.Millisecond, nil)

	sub, err := d.Subscribe("ord-1")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	d.Publish(update("ord-1", order.StatusConfirmed))

	select {
	case got, ok := <-sub.Updates():
		if !ok {
			t.Fatal("channel closed before delivering the terminal update")
		}
		if got.Status != order.StatusConfirmed {
			t.Fatalf("expected confirmed, got %s", got.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("terminal update never delivered")
	}

	select {
	case _, ok := <-sub.Updates():
		if ok {
			t.Fatal("expected channel closure, got another update")
		}
	case <-time.After(time.Second):
		t.Fatal("distributor did not close the subscription after the grace period")
	}

	if d.SubscriberCount() != 0 {
		t.Errorf("registration should be removed after terminal close, got %d", d.SubscriberCount())
	}

	// 终态清理后允许重新订阅（用于读取历史之外的新连接）。
	if _, err := d.Subscribe("ord-1"); err != nil {
		t.Errorf("resubscribe after terminal close failed: %v", err)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	d := New(4, 0, nil)

	sub, err := d.Subscribe("ord-1")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	d.Unsubscribe("ord-1")

	if _, ok := <-sub.Updates(); ok {
		t.Fatal("expected closed channel after Unsubscribe")
	}

	// 退订后发布静默丢弃。
	d.Publish(update("ord-1", order.StatusRouting))
}

func TestPublish_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	d := New(1, 0, nil)

	if _, err := d.Subscribe("ord-1"); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.Publish(update("ord-1", order.StatusPending))
		d.Publish(update("ord-1", order.StatusRouting)) // 缓冲已满，必须直接丢弃
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
