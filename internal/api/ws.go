package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swap-router/internal/order"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 模拟服务不做来源校验。
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope 是状态通道上所有服务端消息的统一外壳。
type wsEnvelope struct {
	Type    string              `json:"type"`
	OrderID string              `json:"orderId,omitempty"`
	Update  *order.StatusUpdate `json:"update,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// wsClient 是单个状态订阅连接。所有写操作经由 send 通道串行化。
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// handleSubscribe 把 HTTP 连接升级为 websocket 状态通道。
// 连接建立后先回连接确认事件，随后转发管线状态流；
// 终态送达、分发器关闭订阅后发送完成事件并由服务端断开。
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket 升级失败", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		logger: s.logger,
	}
	go client.writePump()

	if _, err := s.store.GetOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			client.closeWith(wsEnvelope{Type: "error", OrderID: orderID, Error: "Order not found"})
			return
		}
		client.closeWith(wsEnvelope{Type: "error", OrderID: orderID, Error: "订单查询失败"})
		return
	}

	sub, err := s.subs.Subscribe(orderID)
	if errors.Is(err, order.ErrAlreadySubscribed) {
		client.closeWith(wsEnvelope{Type: "error", OrderID: orderID, Error: "该订单已存在活跃订阅"})
		return
	}
	if err != nil {
		client.closeWith(wsEnvelope{Type: "error", OrderID: orderID, Error: "订阅失败"})
		return
	}

	client.enqueue(wsEnvelope{Type: "connected", OrderID: orderID})

	// 晚到的订阅方不做历史回放，完整历史由 GET /api/orders/{id} 提供。
	// 终态判断必须在订阅注册之后重读：注册前一瞬发布的终态事件进不了
	// 本订阅，靠注册前的快照判断会让连接永远等不到收尾。
	if cur, err := s.store.GetOrder(r.Context(), orderID); err != nil || cur.Status.Terminal() {
		s.subs.Unsubscribe(orderID)
	}

	go client.readPump(func() { s.subs.Unsubscribe(orderID) })

	for u := range sub.Updates() {
		update := u
		client.enqueue(wsEnvelope{Type: "status", OrderID: orderID, Update: &update})
	}

	// 订阅通道被分发器关闭：发送完成事件并结束连接。
	client.closeWith(wsEnvelope{Type: "complete", OrderID: orderID})
}

// enqueue 把消息排入发送队列，队列满时丢弃并记录。
func (c *wsClient) enqueue(env wsEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("序列化 websocket 消息失败", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("websocket 发送缓冲已满，丢弃消息", zap.String("type", env.Type))
	}
}

// closeWith 发送最后一条消息后关闭发送队列，由 writePump 收尾。
// complete/error 是订阅方判断结束的唯一依据，缓冲满时宁可挤掉最旧的
// 一条状态消息也要让它入队。
func (c *wsClient) closeWith(env wsEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("序列化 websocket 消息失败", zap.Error(err))
		data = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if data != nil {
		select {
		case c.send <- data:
		default:
			// 持锁期间没有其它发送方，腾出一格后必然能放入。
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- data:
			default:
			}
		}
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 消费客户端消息：应答应用层 ping，连接断开时触发退订。
// 订阅方断开不影响管线推进，历史照常落库。
func (c *wsClient) readPump(onClose func()) {
	defer onClose()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var base struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}
		if base.Type == "ping" {
			c.enqueue(wsEnvelope{Type: "pong"})
		}
	}
}
