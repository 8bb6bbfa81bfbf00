// Package application 提供交易账本的应用服务
package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/polyarb/internal/ledger/domain"
	"github.com/wyfcoding/polyarb/pkg/logger"
)

// csvHeader CSV 导出列，覆盖实体全部属性，顺序即导出顺序
var csvHeader = []string{
	"intent_id", "venue", "market_type", "symbol_root", "strike", "expiry",
	"side", "quantity", "limit_price", "order_type", "mode", "status",
	"timestamp", "transaction_id", "notes",
}

// LedgerService 交易账本服务
// 唯一可写入意向存储的入口。写操作全局串行，
// 读操作基于仓储快照，不会观察到半完成的写入
type LedgerService struct {
	repo      domain.TradeIntentRepository
	publisher domain.EventPublisher

	// 串行化 Record/UpdateStatus，保证重复检查与写入对其他写者原子
	mu sync.Mutex
}

// NewLedgerService 创建账本服务实例
func NewLedgerService(repo domain.TradeIntentRepository, publisher domain.EventPublisher) *LedgerService {
	if publisher == nil {
		publisher = messagingNoop{}
	}
	return &LedgerService{repo: repo, publisher: publisher}
}

// messagingNoop 本包内兜底的空事件发布者
type messagingNoop struct{}

func (messagingNoop) PublishIntentRecorded(ctx context.Context, event domain.IntentRecordedEvent) error {
	return nil
}
func (messagingNoop) PublishIntentStatusChanged(ctx context.Context, event domain.IntentStatusChangedEvent) error {
	return nil
}

// Record 记录一笔 PENDING 意向
// 必须在任何执行尝试之前调用：未入账的意向绝不允许执行。
// 同一 intent_id 重复记录返回 ErrDuplicateIntent，且不改变已存记录
func (s *LedgerService) Record(ctx context.Context, intent *domain.TradeIntent) error {
	if intent.Status != domain.StatusPending {
		return fmt.Errorf("%w: intent must be recorded in PENDING status, got %s",
			domain.ErrInvalidIntent, intent.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Insert(ctx, intent); err != nil {
		return err
	}

	logger.Info(ctx, "Trade intent recorded",
		"intent_id", intent.IntentID,
		"side", intent.Side,
		"quantity", intent.Quantity,
		"symbol_root", intent.SymbolRoot,
		"limit_price", intent.LimitPrice,
		"mode", intent.Mode,
	)

	// 事件流是旁路通道，发布失败只记日志，不回滚账本
	if err := s.publisher.PublishIntentRecorded(ctx, domain.IntentRecordedEvent{
		IntentID:   intent.IntentID,
		Venue:      intent.Venue,
		SymbolRoot: intent.SymbolRoot,
		Side:       intent.Side,
		Quantity:   intent.Quantity,
		LimitPrice: intent.LimitPrice.String(),
		Mode:       intent.Mode,
		Status:     intent.Status,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		logger.Warn(ctx, "Failed to publish intent recorded event", "intent_id", intent.IntentID, "error", err)
	}

	return nil
}

// UpdateStatus 迁移意向状态
// 意向不存在返回 ErrUnknownIntent；违反状态机返回 ErrInvalidTransition，
// 两种失败都不改变已存记录
func (s *LedgerService) UpdateStatus(ctx context.Context, intentID string, status domain.IntentStatus, transactionID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Get(ctx, intentID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, intentID, status, transactionID, notes); err != nil {
		return err
	}

	logger.Info(ctx, "Trade intent status updated",
		"intent_id", intentID,
		"from", current.Status,
		"to", status,
		"transaction_id", transactionID,
	)

	if err := s.publisher.PublishIntentStatusChanged(ctx, domain.IntentStatusChangedEvent{
		IntentID:      intentID,
		FromStatus:    current.Status,
		ToStatus:      status,
		TransactionID: transactionID,
		OccurredAt:    time.Now().UTC(),
	}); err != nil {
		logger.Warn(ctx, "Failed to publish status changed event", "intent_id", intentID, "error", err)
	}

	return nil
}

// Get 获取单条意向
func (s *LedgerService) Get(ctx context.Context, intentID string) (*domain.TradeIntent, error) {
	return s.repo.Get(ctx, intentID)
}

// Query 按条件查询意向，最新优先
func (s *LedgerService) Query(ctx context.Context, filter domain.QueryFilter, limit int) ([]*domain.TradeIntent, error) {
	return s.repo.List(ctx, filter, limit)
}

// Positions 汇总全部 EXECUTED 记录得到净持仓
func (s *LedgerService) Positions(ctx context.Context) (map[domain.PositionKey]int64, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Positions(snapshot), nil
}

// RealizedPnL 按 FIFO 规则计算已实现盈亏，venue/symbolRoot 为空表示不过滤
func (s *LedgerService) RealizedPnL(ctx context.Context, venue, symbolRoot string) (decimal.Decimal, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	if venue != "" || symbolRoot != "" {
		filtered := snapshot[:0:0]
		for _, t := range snapshot {
			if venue != "" && t.Venue != venue {
				continue
			}
			if symbolRoot != "" && t.SymbolRoot != symbolRoot {
				continue
			}
			filtered = append(filtered, t)
		}
		snapshot = filtered
	}

	return domain.RealizedPnL(snapshot), nil
}

// ExportCSV 将账本全量导出为 CSV
// 导出反映调用时刻的快照，是结构化存储的派生投影，不是第二份事实
func (s *LedgerService) ExportCSV(ctx context.Context, w io.Writer) error {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, t := range snapshot {
		record := []string{
			t.IntentID,
			t.Venue,
			t.MarketType,
			t.SymbolRoot,
			strconv.FormatFloat(t.Strike, 'f', -1, 64),
			t.Expiry,
			string(t.Side),
			strconv.FormatInt(t.Quantity, 10),
			t.LimitPrice.String(),
			t.OrderType,
			string(t.Mode),
			string(t.Status),
			t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.TransactionID,
			t.Notes,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	logger.Info(ctx, "Ledger exported to CSV", "records", len(snapshot))
	return nil
}

// ParseCSV 解析 ExportCSV 产出的文件，与导出构成无损往返
func ParseCSV(r io.Reader) ([]*domain.TradeIntent, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("unexpected csv header: %v", header)
	}

	var intents []*domain.TradeIntent
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}

		strike, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid strike %q: %w", record[4], err)
		}
		quantity, err := strconv.ParseInt(record[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", record[7], err)
		}
		price, err := decimal.NewFromString(record[8])
		if err != nil {
			return nil, fmt.Errorf("invalid limit price %q: %w", record[8], err)
		}
		timestamp, err := time.Parse(time.RFC3339Nano, record[12])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", record[12], err)
		}

		intents = append(intents, &domain.TradeIntent{
			IntentID:      record[0],
			Venue:         record[1],
			MarketType:    record[2],
			SymbolRoot:    record[3],
			Strike:        strike,
			Expiry:        record[5],
			Side:          domain.IntentSide(record[6]),
			Quantity:      quantity,
			LimitPrice:    price,
			OrderType:     record[9],
			Mode:          domain.TradeMode(record[10]),
			Status:        domain.IntentStatus(record[11]),
			Timestamp:     timestamp,
			TransactionID: record[13],
			Notes:         record[14],
		})
	}

	return intents, nil
}
