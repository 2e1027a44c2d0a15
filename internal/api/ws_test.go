package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/distributor"
	"swap-router/internal/order"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode envelope failed: %v", err)
	}
	return env
}

func TestSubscribe_UnknownOrderYieldsErrorAndClosure(t *testing.T) {
	srv, _ := newTestServer(t, newStubStore(), distributor.New(4, 0, nil))
	web := httptest.NewServer(srv.Handler())
	defer web.Close()

	conn := dialWS(t, web, "/ws/orders/missing")

	env := readEnvelope(t, conn)
	if env.Type != "error" || env.Error != "Order not found" {
		t.Fatalf("expected Order not found error event, got %+v", env)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected server-side closure after the error event")
	}
}

func TestSubscribe_StreamsUpdatesUntilTerminal(t *testing.T) {
	store := newStubStore()
	store.orders["ord-1"] = order.Order{ID: "ord-1", Status: order.StatusPending}

	dist := distributor.New(8, 10*time.Millisecond, nil)
	srv, _ := newTestServer(t, store, dist)
	web := httptest.NewServer(srv.Handler())
	defer web.Close()

	conn := dialWS(t, web, "/ws/orders/ord-1")

	if env := readEnvelope(t, conn); env.Type != "connected" || env.OrderID != "ord-1" {
		t.Fatalf("expected connected event first, got %+v", env)
	}

	// 等订阅注册完成后再开始发布。
	waitForSubscriber(t, dist)

	sequence := []order.Status{order.StatusPending, order.StatusRouting, order.StatusConfirmed}
	for _, s := range sequence {
		dist.Publish(order.StatusUpdate{OrderID: "ord-1", Status: s, Timestamp: time.Now().UTC()})
	}

	for i, want := range sequence {
		env := readEnvelope(t, conn)
		if env.Type != "status" {
			t.Fatalf("event %d: expected status, got %+v", i, env)
		}
		if env.Update == nil || env.Update.Status != want {
			t.Fatalf("event %d: expected %s, got %+v", i, want, env.Update)
		}
	}

	if env := readEnvelope(t, conn); env.Type != "complete" {
		t.Fatalf("expected complete event after terminal status, got %+v", env)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected server-side closure after the complete event")
	}
}

func TestSubscribe_PingAnsweredWithPong(t *testing.T) {
	store := newStubStore()
	store.orders["ord-1"] = order.Order{ID: "ord-1", Status: order.StatusPending}

	dist := distributor.New(8, 0, nil)
	srv, _ := newTestServer(t, store, dist)
	web := httptest.NewServer(srv.Handler())
	defer web.Close()

	conn := dialWS(t, web, "/ws/orders/ord-1")

	if env := readEnvelope(t, conn); env.Type != "connected" {
		t.Fatalf("expected connected event, got %+v", env)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping failed: %v", err)
	}
	if env := readEnvelope(t, conn); env.Type != "pong" {
		t.Fatalf("expected pong, got %+v", env)
	}
}

func TestSubscribe_SecondConnectionRejected(t *testing.T) {
	store := newStubStore()
	store.orders["ord-1"] = order.Order{ID: "ord-1", Status: order.StatusPending}

	dist := distributor.New(8, 0, nil)
	srv, _ := newTestServer(t, store, dist)
	web := httptest.NewServer(srv.Handler())
	defer web.Close()

	first := dialWS(t, web, "/ws/orders/ord-1")
	if env := readEnvelope(t, first); env.Type != "connected" {
		t.Fatalf("expected connected event, got %+v", env)
	}
	waitForSubscriber(t, dist)

	second := dialWS(t, web, "/ws/orders/ord-1")
	env := readEnvelope(t, second)
	if env.Type != "error" {
		t.Fatalf("expected rejection for duplicate subscription, got %+v", env)
	}
}

// flippingStore 第一次读返回进行中的订单，后续读返回终态，
// 复现订阅注册窗口内订单恰好终结的时序。
type flippingStore struct {
	*stubStore
	mu    sync.Mutex
	reads int
}

func (s *flippingStore) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	o, err := s.stubStore.GetOrder(ctx, orderID)
	if err != nil {
		return o, err
	}
	if n >= 2 {
		o.Status = order.StatusConfirmed
	}
	return o, nil
}

func TestSubscribe_TerminalBetweenLookupAndRegistration(t *testing.T) {
	base := newStubStore()
	base.orders["ord-1"] = order.Order{ID: "ord-1", Status: order.StatusPending}
	store := &flippingStore{stubStore: base}

	dist := distributor.New(8, 0, nil)
	srv := NewServer(store, &stubSubmitter{}, dist,
		config.MarketConfig{BasePrice: 150, NativeToken: "SOL", DefaultSlippage: 0.005},
		config.ServerConfig{Port: 0, ShutdownTimeout: time.Second},
		zap.NewNop(),
	)
	web := httptest.NewServer(srv.Handler())
	defer web.Close()

	conn := dialWS(t, web, "/ws/orders/ord-1")

	if env := readEnvelope(t, conn); env.Type != "connected" {
		t.Fatalf("expected connected event, got %+v", env)
	}

	// 终态事件在注册前已经发完，连接不能空等，必须直接收尾。
	if env := readEnvelope(t, conn); env.Type != "complete" {
		t.Fatalf("expected complete event for an order that finished during registration, got %+v", env)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected server-side closure after the complete event")
	}
}

func TestCloseWith_FinalEnvelopeSurvivesFullBuffer(t *testing.T) {
	c := &wsClient{
		send:   make(chan []byte, 1),
		logger: zap.NewNop(),
	}

	c.enqueue(wsEnvelope{Type: "status", OrderID: "ord-1"})
	c.closeWith(wsEnvelope{Type: "complete", OrderID: "ord-1"})

	var last wsEnvelope
	got := 0
	for msg := range c.send {
		got++
		if err := json.Unmarshal(msg, &last); err != nil {
			t.Fatalf("decode queued envelope failed: %v", err)
		}
	}
	if got == 0 {
		t.Fatal("expected at least the final envelope in the queue")
	}
	if last.Type != "complete" {
		t.Fatalf("final envelope must survive a full buffer, last queued was %q", last.Type)
	}
}

func waitForSubscriber(t *testing.T, dist *distributor.Distributor) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for dist.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscription never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
