// Package api 提供订单入口、历史查询与 websocket 状态订阅通道。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swap-router/internal/config"
	"swap-router/internal/distributor"
	"swap-router/internal/order"
)

// OrderStore 是 API 层需要的持久化能力子集。
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) error
	GetOrder(ctx context.Context, orderID string) (order.Order, error)
	GetHistory(ctx context.Context, orderID string) ([]order.StatusUpdate, error)
}

// Submitter 把新订单交给管线调度器。
type Submitter interface {
	Submit(ctx context.Context, o order.Order) error
}

// Subscriber 管理订单的实时订阅。
type Subscriber interface {
	Subscribe(orderID string) (*distributor.Subscription, error)
	Unsubscribe(orderID string)
}

// Server 承载对外 HTTP 与 websocket 服务。
type Server struct {
	store      OrderStore
	dispatcher Submitter
	subs       Subscriber
	market     config.MarketConfig
	cfg        config.ServerConfig
	logger     *zap.Logger

	httpSrv *http.Server
}

// NewServer 创建 API 服务。
func NewServer(store OrderStore, dispatcher Submitter, subs Subscriber, market config.MarketConfig, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		dispatcher: dispatcher,
		subs:       subs,
		market:     market,
		cfg:        cfg,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("GET /ws/orders/{id}", s.handleSubscribe)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	return s
}

// Handler 暴露路由，供测试挂接 httptest。
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start 启动 HTTP 服务并在 ctx 取消时优雅关停。
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP 服务异常", zap.Error(err))
		}
	}()

	s.logger.Info("API 服务已启动", zap.String("addr", s.httpSrv.Addr))
	return nil
}

// createOrderRequest 是订单入口的请求体。
type createOrderRequest struct {
	Kind     string   `json:"kind"`
	TokenIn  string   `json:"tokenIn"`
	TokenOut string   `json:"tokenOut"`
	AmountIn float64  `json:"amountIn"`
	Slippage *float64 `json:"slippage"`
	Wallet   string   `json:"walletAddress"`
}

// createOrderResponse 返回订单标识与订阅地址。
type createOrderResponse struct {
	OrderID      string `json:"orderId"`
	SubscribeURL string `json:"subscribeUrl"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体不是合法 JSON")
		return
	}

	if req.Kind == "" || req.TokenIn == "" || req.TokenOut == "" || req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "kind、tokenIn、tokenOut、walletAddress 均为必填")
		return
	}
	if !order.Kind(req.Kind).Supported() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("暂不支持的订单类型 %q", req.Kind))
		return
	}
	if req.AmountIn <= 0 {
		writeError(w, http.StatusBadRequest, "amountIn 必须大于0")
		return
	}

	slippage := s.market.DefaultSlippage
	if req.Slippage != nil {
		if *req.Slippage < 0 || *req.Slippage > 1 {
			writeError(w, http.StatusBadRequest, "slippage 必须位于[0,1]")
			return
		}
		slippage = *req.Slippage
	}

	now := time.Now().UTC()
	o := order.Order{
		ID:        uuid.NewString(),
		Kind:      order.Kind(req.Kind),
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.AmountIn,
		Slippage:  slippage,
		Wallet:    req.Wallet,
		Status:    order.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateOrder(r.Context(), o); err != nil {
		s.logger.Error("创建订单失败", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "创建订单失败")
		return
	}

	if err := s.dispatcher.Submit(r.Context(), o); err != nil {
		s.logger.Error("订单入队失败", zap.String("orderId", o.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "订单入队失败")
		return
	}

	s.logger.Info("order accepted",
		zap.String("orderId", o.ID),
		zap.String("pair", o.TokenIn+"/"+o.TokenOut),
		zap.Float64("amountIn", o.AmountIn),
	)

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:      o.ID,
		SubscribeURL: "/ws/orders/" + o.ID,
	})
}

// orderDetailResponse 聚合订单与其全量状态历史。
type orderDetailResponse struct {
	Order   order.Order          `json:"order"`
	History []order.StatusUpdate `json:"history"`
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	o, err := s.store.GetOrder(r.Context(), orderID)
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		s.logger.Error("读取订单失败", zap.String("orderId", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "读取订单失败")
		return
	}

	history, err := s.store.GetHistory(r.Context(), orderID)
	if err != nil {
		s.logger.Error("读取历史失败", zap.String("orderId", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "读取历史失败")
		return
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{Order: o, History: history})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
