package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"swap-router/internal/order"
)

// OrderStore 是管线依赖的持久化协作方：订单表加追加式状态历史表。
// 每次状态转移都先同步落库，再交给分发器推送。
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore 初始化订单存储，创建所需表结构。
func NewOrderStore(store *Store) (*OrderStore, error) {
	if store == nil {
		return nil, fmt.Errorf("store: 底层存储不能为空")
	}

	s := &OrderStore{db: store.DB()}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OrderStore) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	token_in TEXT NOT NULL,
	token_out TEXT NOT NULL,
	amount_in REAL NOT NULL,
	slippage REAL NOT NULL,
	wallet TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS order_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (order_id) REFERENCES orders(id)
);
CREATE INDEX IF NOT EXISTS idx_order_history_order ON order_history(order_id);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化表失败: %w", err)
	}
	return nil
}

// CreateOrder 写入一笔新订单。订单标识在入口处分配，不允许复用。
func (s *OrderStore) CreateOrder(ctx context.Context, o order.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, kind, token_in, token_out, amount_in, slippage, wallet, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Kind), o.TokenIn, o.TokenOut, o.AmountIn, o.Slippage, o.Wallet,
		string(o.Status), o.CreatedAt.Format(time.RFC3339Nano), o.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: 写入订单失败: %w", err)
	}
	return nil
}

// UpdateOrderStatus 更新订单的冗余状态字段及更新时间。
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), at.Format(time.RFC3339Nano), orderID,
	)
	if err != nil {
		return fmt.Errorf("store: 更新订单状态失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: 更新订单状态失败: %w", order.ErrNotFound)
	}
	return nil
}

// AppendHistory 追加一条状态事件。历史只增不改，管线是唯一写入方。
func (s *OrderStore) AppendHistory(ctx context.Context, u order.StatusUpdate) error {
	var payload []byte
	if u.Payload != nil {
		var err error
		payload, err = json.Marshal(u.Payload)
		if err != nil {
			return fmt.Errorf("store: 序列化状态事件失败: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_history (order_id, status, payload, created_at) VALUES (?, ?, ?, ?)`,
		u.OrderID, string(u.Status), nullableString(payload), u.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: 追加状态历史失败: %w", err)
	}
	return nil
}

// GetOrder 按标识读取订单。不存在时返回 order.ErrNotFound。
func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, token_in, token_out, amount_in, slippage, wallet, status, created_at, updated_at
		 FROM orders WHERE id = ?`, orderID)

	var o order.Order
	var kind, status, createdAt, updatedAt string
	err := row.Scan(&o.ID, &kind, &o.TokenIn, &o.TokenOut, &o.AmountIn, &o.Slippage, &o.Wallet,
		&status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("store: 读取订单失败: %w", err)
	}

	o.Kind = order.Kind(kind)
	o.Status = order.Status(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return o, nil
}

// GetHistory 返回订单的全量状态历史，按写入顺序排列。
func (s *OrderStore) GetHistory(ctx context.Context, orderID string) ([]order.StatusUpdate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, payload, created_at FROM order_history WHERE order_id = ? ORDER BY seq ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: 读取状态历史失败: %w", err)
	}
	defer rows.Close()

	updates := make([]order.StatusUpdate, 0, 8)
	for rows.Next() {
		var status, createdAt string
		var payload sql.NullString
		if err := rows.Scan(&status, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("store: 解析状态历史失败: %w", err)
		}
		u := order.StatusUpdate{
			OrderID:   orderID,
			Status:    order.Status(status),
			Timestamp: parseTime(createdAt),
		}
		if payload.Valid && payload.String != "" {
			u.Payload = json.RawMessage(payload.String)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 遍历状态历史失败: %w", err)
	}
	return updates, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
