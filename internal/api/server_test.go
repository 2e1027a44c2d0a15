package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/distributor"
	"swap-router/internal/order"
)

type stubStore struct {
	mu     sync.Mutex
	orders map[string]order.Order
	hist   map[string][]order.StatusUpdate
}

func newStubStore() *stubStore {
	return &stubStore{
		orders: make(map[string]order.Order),
		hist:   make(map[string][]order.StatusUpdate),
	}
}

func (s *stubStore) CreateOrder(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *stubStore) GetOrder(_ context.Context, orderID string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s *stubStore) GetHistory(_ context.Context, orderID string) ([]order.StatusUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist[orderID], nil
}

type stubSubmitter struct {
	mu        sync.Mutex
	submitted []order.Order
}

func (d *stubSubmitter) Submit(_ context.Context, o order.Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, o)
	return nil
}

func newTestServer(t *testing.T, store *stubStore, dist *distributor.Distributor) (*Server, *stubSubmitter) {
	t.Helper()
	submitter := &stubSubmitter{}
	srv := NewServer(store, submitter, dist,
		config.MarketConfig{BasePrice: 150, NativeToken: "SOL", DefaultSlippage: 0.005},
		config.ServerConfig{Port: 0, ShutdownTimeout: time.Second},
		zap.NewNop(),
	)
	return srv, submitter
}

func postOrder(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder_AcceptsValidRequest(t *testing.T) {
	store := newStubStore()
	srv, submitter := newTestServer(t, store, distributor.New(4, 0, nil))

	rec := postOrder(t, srv.Handler(), `{
		"kind": "market",
		"tokenIn": "SOL",
		"tokenOut": "USDC",
		"amountIn": 100,
		"slippage": 0.01,
		"walletAddress": "wallet-1"
	}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if resp.OrderID == "" {
		t.Fatal("expected non-empty orderId")
	}
	if resp.SubscribeURL != "/ws/orders/"+resp.OrderID {
		t.Errorf("unexpected subscribeUrl: %s", resp.SubscribeURL)
	}

	if len(submitter.submitted) != 1 {
		t.Fatalf("expected one submitted order, got %d", len(submitter.submitted))
	}
	if got := submitter.submitted[0]; got.Slippage != 0.01 || got.Status != order.StatusPending {
		t.Errorf("unexpected submitted order: %+v", got)
	}
}

func TestCreateOrder_DefaultsSlippageFromConfig(t *testing.T) {
	store := newStubStore()
	srv, submitter := newTestServer(t, store, distributor.New(4, 0, nil))

	rec := postOrder(t, srv.Handler(), `{
		"kind": "market",
		"tokenIn": "SOL",
		"tokenOut": "USDC",
		"amountIn": 100,
		"walletAddress": "wallet-1"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := submitter.submitted[0].Slippage; got != 0.005 {
		t.Errorf("expected default slippage 0.005, got %f", got)
	}
}

func TestCreateOrder_RejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"kind":"market","tokenIn":"SOL"}`},
		{"unsupported kind", `{"kind":"limit","tokenIn":"SOL","tokenOut":"USDC","amountIn":100,"walletAddress":"w"}`},
		{"non positive amount", `{"kind":"market","tokenIn":"SOL","tokenOut":"USDC","amountIn":0,"walletAddress":"w"}`},
		{"slippage out of range", `{"kind":"market","tokenIn":"SOL","tokenOut":"USDC","amountIn":100,"slippage":1.2,"walletAddress":"w"}`},
		{"not json", `not-json`},
	}

	store := newStubStore()
	srv, submitter := newTestServer(t, store, distributor.New(4, 0, nil))

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postOrder(t, srv.Handler(), tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
	if len(submitter.submitted) != 0 {
		t.Errorf("rejected orders must not be submitted, got %d", len(submitter.submitted))
	}
}

func TestGetOrder_ReturnsOrderWithHistory(t *testing.T) {
	store := newStubStore()
	store.orders["ord-1"] = order.Order{ID: "ord-1", Status: order.StatusConfirmed}
	store.hist["ord-1"] = []order.StatusUpdate{
		{OrderID: "ord-1", Status: order.StatusPending},
		{OrderID: "ord-1", Status: order.StatusConfirmed},
	}
	srv, _ := newTestServer(t, store, distributor.New(4, 0, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp orderDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if resp.Order.ID != "ord-1" || len(resp.History) != 2 {
		t.Errorf("unexpected detail response: %+v", resp)
	}
}

func TestGetOrder_UnknownIdentifier(t *testing.T) {
	srv, _ := newTestServer(t, newStubStore(), distributor.New(4, 0, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Order not found") {
		t.Errorf("expected Order not found message, got %s", rec.Body.String())
	}
}
