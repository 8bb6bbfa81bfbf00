// Package domain 包含交易账本的领域模型
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IntentStatus 交易意向状态
type IntentStatus string

const (
	StatusPending   IntentStatus = "PENDING"
	StatusSubmitted IntentStatus = "SUBMITTED"
	StatusExecuted  IntentStatus = "EXECUTED"
	StatusRejected  IntentStatus = "REJECTED"
	StatusCancelled IntentStatus = "CANCELLED"
)

// IntentSide 买卖方向
type IntentSide string

const (
	SideBuy  IntentSide = "BUY"
	SideSell IntentSide = "SELL"
)

// TradeMode 交易模式，创建后不可变更
type TradeMode string

const (
	ModePaper TradeMode = "paper"
	ModeLive  TradeMode = "live"
)

// transitions 状态机：PENDING 为唯一初始状态，
// EXECUTED/REJECTED/CANCELLED 为终态，终态之后不允许任何迁移。
// 同步成交的场外场景允许 PENDING 直接到 EXECUTED。
var transitions = map[IntentStatus][]IntentStatus{
	StatusPending:   {StatusSubmitted, StatusExecuted, StatusRejected, StatusCancelled},
	StatusSubmitted: {StatusExecuted, StatusRejected, StatusCancelled},
}

// TradeIntent 交易意向实体
// 一笔从提议到终结的交易的持久化审计记录，只增不删
type TradeIntent struct {
	gorm.Model
	// 意向唯一标识
	IntentID string `gorm:"column:intent_id;type:varchar(36);uniqueIndex;not null" json:"intent_id"`
	// 执行场所名称
	Venue string `gorm:"column:venue;type:varchar(32);index;not null" json:"venue"`
	// 市场类型（如 Binary Option）
	MarketType string `gorm:"column:market_type;type:varchar(32);not null" json:"market_type"`
	// 标的符号根（如 USCPI）
	SymbolRoot string `gorm:"column:symbol_root;type:varchar(20);index;not null" json:"symbol_root"`
	// 执行价
	Strike float64 `gorm:"column:strike;not null" json:"strike"`
	// 到期日（YYYYMMDD）
	Expiry string `gorm:"column:expiry;type:varchar(8);not null" json:"expiry"`
	// 买卖方向
	Side IntentSide `gorm:"column:side;type:varchar(4);not null" json:"side"`
	// 数量（正整数）
	Quantity int64 `gorm:"column:quantity;not null" json:"quantity"`
	// 限价
	LimitPrice decimal.Decimal `gorm:"column:limit_price;type:decimal(20,8);not null" json:"limit_price"`
	// 订单类型
	OrderType string `gorm:"column:order_type;type:varchar(8);not null;default:'LMT'" json:"order_type"`
	// 交易模式（paper/live），创建后不可变更
	Mode TradeMode `gorm:"column:mode;type:varchar(8);not null" json:"mode"`
	// 当前状态
	Status IntentStatus `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	// 创建时间，构造时赋值且不可变
	Timestamp time.Time `gorm:"column:timestamp;index;not null" json:"timestamp"`
	// 执行端回报的成交/订单标识
	TransactionID string `gorm:"column:transaction_id;type:varchar(64)" json:"transaction_id"`
	// 自由文本备注
	Notes string `gorm:"column:notes;type:varchar(512)" json:"notes"`
}

// TableName 指定表名
func (TradeIntent) TableName() string {
	return "trade_intents"
}

// NewIntentParams 创建交易意向的参数
type NewIntentParams struct {
	Venue      string
	MarketType string
	SymbolRoot string
	Strike     float64
	Expiry     string
	Side       IntentSide
	Quantity   int64
	LimitPrice decimal.Decimal
	Mode       TradeMode
	Notes      string
	// 场所报价上限，零值时默认 1（概率计价场所）
	QuoteCap decimal.Decimal
}

// NewTradeIntent 创建交易意向
// 工厂在构造时校验全部不变量，拒绝产出无效实体
func NewTradeIntent(p NewIntentParams) (*TradeIntent, error) {
	if p.Venue == "" {
		return nil, fmt.Errorf("%w: venue is required", ErrInvalidIntent)
	}
	if p.SymbolRoot == "" {
		return nil, fmt.Errorf("%w: symbol root is required", ErrInvalidIntent)
	}
	if len(p.Expiry) != 8 {
		return nil, fmt.Errorf("%w: expiry must be YYYYMMDD, got %q", ErrInvalidIntent, p.Expiry)
	}
	if p.Side != SideBuy && p.Side != SideSell {
		return nil, fmt.Errorf("%w: invalid side %q", ErrInvalidIntent, p.Side)
	}
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidIntent, p.Quantity)
	}
	if p.Mode != ModePaper && p.Mode != ModeLive {
		return nil, fmt.Errorf("%w: invalid mode %q", ErrInvalidIntent, p.Mode)
	}

	quoteCap := p.QuoteCap
	if quoteCap.IsZero() {
		quoteCap = decimal.NewFromInt(1)
	}
	if p.LimitPrice.LessThanOrEqual(decimal.Zero) || p.LimitPrice.GreaterThan(quoteCap) {
		return nil, fmt.Errorf("%w: limit price %s outside venue quoting range (0, %s]",
			ErrInvalidIntent, p.LimitPrice, quoteCap)
	}

	return &TradeIntent{
		IntentID:   uuid.NewString(),
		Venue:      p.Venue,
		MarketType: p.MarketType,
		SymbolRoot: p.SymbolRoot,
		Strike:     p.Strike,
		Expiry:     p.Expiry,
		Side:       p.Side,
		Quantity:   p.Quantity,
		LimitPrice: p.LimitPrice,
		OrderType:  "LMT",
		Mode:       p.Mode,
		Status:     StatusPending,
		Timestamp:  time.Now().UTC(),
		Notes:      p.Notes,
	}, nil
}

// IsTerminal 判断状态是否为终态
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Valid 判断状态是否为已知状态
func (s IntentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusExecuted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo 判断状态迁移是否合法，迁移单向且不可逆
func (s IntentStatus) CanTransitionTo(to IntentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SignedQuantity 返回带方向符号的数量，BUY 为正、SELL 为负
func (t *TradeIntent) SignedQuantity() int64 {
	if t.Side == SideSell {
		return -t.Quantity
	}
	return t.Quantity
}

// Notional 返回名义金额 quantity * limit_price
func (t *TradeIntent) Notional() decimal.Decimal {
	return t.LimitPrice.Mul(decimal.NewFromInt(t.Quantity))
}

// QueryFilter 账本查询过滤条件
type QueryFilter struct {
	Status     IntentStatus
	Venue      string
	SymbolRoot string
}

// TradeIntentRepository 交易意向仓储接口
type TradeIntentRepository interface {
	// 插入新意向，同 intent_id 再次插入返回 ErrDuplicateIntent
	Insert(ctx context.Context, intent *TradeIntent) error
	// 获取单条意向，不存在返回 ErrUnknownIntent
	Get(ctx context.Context, intentID string) (*TradeIntent, error)
	// 迁移意向状态，非法迁移返回 ErrInvalidTransition
	UpdateStatus(ctx context.Context, intentID string, status IntentStatus, transactionID, notes string) error
	// 按条件查询，最新优先，时间相同按插入顺序
	List(ctx context.Context, filter QueryFilter, limit int) ([]*TradeIntent, error)
	// 全量快照，按时间正序（最早优先），用于导出与 PnL 推导
	Snapshot(ctx context.Context) ([]*TradeIntent, error)
}
