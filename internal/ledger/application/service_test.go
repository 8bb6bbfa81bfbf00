package application

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/polyarb/internal/ledger/domain"
	sqliterepo "github.com/wyfcoding/polyarb/internal/ledger/infrastructure/persistence/sqlite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// 内存库绑定单连接，连接池切换会丢表
	sqlDB.SetMaxOpenConns(1)

	repo, err := sqliterepo.NewIntentRepository(db)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	return NewLedgerService(repo, nil)
}

func newTestIntent(t *testing.T, symbolRoot string, side domain.IntentSide, qty int64, price string) *domain.TradeIntent {
	t.Helper()
	intent, err := domain.NewTradeIntent(domain.NewIntentParams{
		Venue:      "ForecastEx",
		MarketType: "Binary Option",
		SymbolRoot: symbolRoot,
		Strike:     100,
		Expiry:     "20260315",
		Side:       side,
		Quantity:   qty,
		LimitPrice: decimal.RequireFromString(price),
		Mode:       domain.ModePaper,
	})
	if err != nil {
		t.Fatalf("failed to build intent: %v", err)
	}
	return intent
}

func TestLedger_RecordAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	intent := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.52")
	if err := svc.Record(ctx, intent); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, err := svc.Get(ctx, intent.IntentID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("recorded intent must be PENDING, got %s", got.Status)
	}
	if !got.LimitPrice.Equal(decimal.RequireFromString("0.52")) {
		t.Fatalf("limit price mismatch: %s", got.LimitPrice)
	}
	if got.Mode != domain.ModePaper {
		t.Fatalf("mode mismatch: %s", got.Mode)
	}
}

func TestLedger_RecordRejectsNonPending(t *testing.T) {
	svc := newTestService(t)
	intent := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.52")
	intent.Status = domain.StatusExecuted

	if err := svc.Record(context.Background(), intent); !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("expected ErrInvalidIntent for non-PENDING record, got %v", err)
	}
}

func TestLedger_DuplicateIntent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	intent := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.52")
	if err := svc.Record(ctx, intent); err != nil {
		t.Fatalf("first record failed: %v", err)
	}

	// 重复记录同一 intent_id，且尝试携带不同内容
	dup := *intent
	dup.Model = gorm.Model{}
	dup.Quantity = 99
	if err := svc.Record(ctx, &dup); !errors.Is(err, domain.ErrDuplicateIntent) {
		t.Fatalf("expected ErrDuplicateIntent, got %v", err)
	}

	// 失败的第二次调用不得改变已存记录
	got, err := svc.Get(ctx, intent.IntentID)
	if err != nil {
		t.Fatalf("get after duplicate failed: %v", err)
	}
	if got.Quantity != 10 {
		t.Fatalf("stored record changed by failed duplicate record: quantity=%d", got.Quantity)
	}
}

func TestLedger_StatusLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	intent := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.52")
	if err := svc.Record(ctx, intent); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := svc.UpdateStatus(ctx, intent.IntentID, domain.StatusSubmitted, "", ""); err != nil {
		t.Fatalf("PENDING -> SUBMITTED failed: %v", err)
	}
	if err := svc.UpdateStatus(ctx, intent.IntentID, domain.StatusExecuted, "IBKR-1001", "fill confirmed"); err != nil {
		t.Fatalf("SUBMITTED -> EXECUTED failed: %v", err)
	}

	got, _ := svc.Get(ctx, intent.IntentID)
	if got.Status != domain.StatusExecuted {
		t.Fatalf("status got=%s want=EXECUTED", got.Status)
	}
	if got.TransactionID != "IBKR-1001" {
		t.Fatalf("transaction id got=%s want=IBKR-1001", got.TransactionID)
	}

	// 终态之后任何迁移都必须失败且不改变已存状态
	for _, to := range []domain.IntentStatus{domain.StatusPending, domain.StatusSubmitted, domain.StatusCancelled} {
		if err := svc.UpdateStatus(ctx, intent.IntentID, to, "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("EXECUTED -> %s: expected ErrInvalidTransition, got %v", to, err)
		}
	}
	got, _ = svc.Get(ctx, intent.IntentID)
	if got.Status != domain.StatusExecuted {
		t.Fatalf("failed transition must leave status unchanged, got %s", got.Status)
	}
}

func TestLedger_DirectPendingToExecuted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	intent := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.52")
	if err := svc.Record(ctx, intent); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	// 纸面交易同步成交，跳过 SUBMITTED
	if err := svc.UpdateStatus(ctx, intent.IntentID, domain.StatusExecuted, "PAPER-1", ""); err != nil {
		t.Fatalf("PENDING -> EXECUTED must be allowed for synchronous venues: %v", err)
	}
}

func TestLedger_UpdateUnknownIntent(t *testing.T) {
	svc := newTestService(t)
	err := svc.UpdateStatus(context.Background(), "no-such-intent", domain.StatusExecuted, "", "")
	if !errors.Is(err, domain.ErrUnknownIntent) {
		t.Fatalf("expected ErrUnknownIntent, got %v", err)
	}
}

func TestLedger_QueryMostRecentFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.40")
	second := newTestIntent(t, "BTCQ", domain.SideBuy, 5, "0.60")
	third := newTestIntent(t, "USCPI", domain.SideSell, 10, "0.55")
	// 构造相同时间戳，验证插入顺序并列裁决
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first.Timestamp = ts
	second.Timestamp = ts.Add(time.Minute)
	third.Timestamp = ts.Add(time.Minute)

	for _, in := range []*domain.TradeIntent{first, second, third} {
		if err := svc.Record(ctx, in); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	got, err := svc.Query(ctx, domain.QueryFilter{}, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 intents, got %d", len(got))
	}
	// second 和 third 时间相同，后插入的 third 在前
	if got[0].IntentID != third.IntentID || got[1].IntentID != second.IntentID || got[2].IntentID != first.IntentID {
		t.Fatalf("wrong ordering: %s, %s, %s", got[0].IntentID, got[1].IntentID, got[2].IntentID)
	}

	// 过滤条件
	uscpi, err := svc.Query(ctx, domain.QueryFilter{SymbolRoot: "USCPI"}, 0)
	if err != nil {
		t.Fatalf("filtered query failed: %v", err)
	}
	if len(uscpi) != 2 {
		t.Fatalf("expected 2 USCPI intents, got %d", len(uscpi))
	}

	pending, err := svc.Query(ctx, domain.QueryFilter{Status: domain.StatusPending}, 1)
	if err != nil {
		t.Fatalf("status query failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("limit must cap results, got %d", len(pending))
	}
}

func TestLedger_PositionsAndPnL(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	buy := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.40")
	sell := newTestIntent(t, "USCPI", domain.SideSell, 10, "0.55")
	ignored := newTestIntent(t, "USCPI", domain.SideBuy, 99, "0.10")

	for _, in := range []*domain.TradeIntent{buy, sell, ignored} {
		if err := svc.Record(ctx, in); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := svc.UpdateStatus(ctx, buy.IntentID, domain.StatusExecuted, "PAPER-1", ""); err != nil {
		t.Fatalf("execute buy failed: %v", err)
	}
	if err := svc.UpdateStatus(ctx, sell.IntentID, domain.StatusExecuted, "PAPER-2", ""); err != nil {
		t.Fatalf("execute sell failed: %v", err)
	}
	// ignored 保持 PENDING，不得进入持仓与盈亏

	positions, err := svc.Positions(ctx)
	if err != nil {
		t.Fatalf("positions failed: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("round trip must leave a flat book, got %v", positions)
	}

	pnl, err := svc.RealizedPnL(ctx, "", "")
	if err != nil {
		t.Fatalf("pnl failed: %v", err)
	}
	if !pnl.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("pnl got=%s want=1.5", pnl)
	}

	// 按标的过滤
	pnl, err = svc.RealizedPnL(ctx, "ForecastEx", "BTCQ")
	if err != nil {
		t.Fatalf("filtered pnl failed: %v", err)
	}
	if !pnl.IsZero() {
		t.Fatalf("BTCQ pnl must be zero, got %s", pnl)
	}
}

func TestLedger_ExportRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	buy := newTestIntent(t, "USCPI", domain.SideBuy, 10, "0.40")
	buy.Notes = "arb opp: spread=4.38%, includes, commas\nand a newline"
	sell := newTestIntent(t, "BTCQ", domain.SideSell, 5, "0.65")

	for _, in := range []*domain.TradeIntent{buy, sell} {
		if err := svc.Record(ctx, in); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := svc.UpdateStatus(ctx, buy.IntentID, domain.StatusExecuted, "PAPER-1", ""); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	var out bytes.Buffer
	if err := svc.ExportCSV(ctx, &out); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	parsed, err := ParseCSV(&out)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 records, got %d", len(parsed))
	}

	byID := make(map[string]*domain.TradeIntent, len(parsed))
	for _, p := range parsed {
		byID[p.IntentID] = p
	}

	for _, want := range []*domain.TradeIntent{buy, sell} {
		stored, err := svc.Get(ctx, want.IntentID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		got, ok := byID[want.IntentID]
		if !ok {
			t.Fatalf("intent %s missing from export", want.IntentID)
		}
		if got.Venue != stored.Venue || got.MarketType != stored.MarketType ||
			got.SymbolRoot != stored.SymbolRoot || got.Strike != stored.Strike ||
			got.Expiry != stored.Expiry || got.Side != stored.Side ||
			got.Quantity != stored.Quantity || !got.LimitPrice.Equal(stored.LimitPrice) ||
			got.OrderType != stored.OrderType || got.Mode != stored.Mode ||
			got.Status != stored.Status || got.TransactionID != stored.TransactionID ||
			got.Notes != stored.Notes {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, stored)
		}
		if !got.Timestamp.Equal(stored.Timestamp) {
			t.Fatalf("timestamp mismatch: got %s want %s", got.Timestamp, stored.Timestamp)
		}
	}
}
