package domain

import (
	"context"
	"time"
)

// IntentRecordedEvent 意向已记录事件
type IntentRecordedEvent struct {
	IntentID   string       `json:"intent_id"`
	Venue      string       `json:"venue"`
	SymbolRoot string       `json:"symbol_root"`
	Side       IntentSide   `json:"side"`
	Quantity   int64        `json:"quantity"`
	LimitPrice string       `json:"limit_price"`
	Mode       TradeMode    `json:"mode"`
	Status     IntentStatus `json:"status"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// IntentStatusChangedEvent 意向状态变更事件
type IntentStatusChangedEvent struct {
	IntentID      string       `json:"intent_id"`
	FromStatus    IntentStatus `json:"from_status"`
	ToStatus      IntentStatus `json:"to_status"`
	TransactionID string       `json:"transaction_id,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// EventPublisher 账本事件发布接口
// 发布失败不影响账本写入，事件流是旁路审计通道
type EventPublisher interface {
	PublishIntentRecorded(ctx context.Context, event IntentRecordedEvent) error
	PublishIntentStatusChanged(ctx context.Context, event IntentStatusChangedEvent) error
}
