package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wyfcoding/polyarb/internal/execution/broker"
	ledgerdomain "github.com/wyfcoding/polyarb/internal/ledger/domain"
	"github.com/wyfcoding/polyarb/internal/signal"
)

// stubSource 固定盘口的信号源
type stubSource struct {
	book *signal.OrderBook
	err  error
}

func (s stubSource) GetOrderBook(ctx context.Context, marketID string) (*signal.OrderBook, error) {
	return s.book, s.err
}

func cpiWatchItem() WatchItem {
	return WatchItem{
		Description:    "US CPI YoY",
		SignalMarketID: "cpi-2026",
		Strike:         100,
		ExpiryDate:     time.Now().AddDate(0, 2, 0).Format("2006-01-02"),
		IsYes:          true,
		Quantity:       10,
	}
}

func TestOrchestrator_ExecutesOpportunity(t *testing.T) {
	sim := broker.NewSimulatedClient()
	cpiQuote(t, sim, 0.47, 0.49)
	engine, ledger := newPaperEngine(t, sim)

	// 两侧等量挂单，概率折算为 0.52
	source := stubSource{book: &signal.OrderBook{
		Bids: []signal.PriceLevel{{Price: 0.51, Size: 10}},
		Asks: []signal.PriceLevel{{Price: 0.53, Size: 10}},
	}}

	o := NewOrchestrator(source, engine, nil, []WatchItem{cpiWatchItem()}, 3, time.Minute)
	o.runCycle(context.Background())

	trades, err := ledger.Query(context.Background(), ledgerdomain.QueryFilter{}, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 recorded trade, got %d", len(trades))
	}
	if trades[0].Status != ledgerdomain.StatusExecuted {
		t.Fatalf("paper trade must end EXECUTED, got %s", trades[0].Status)
	}
}

func TestOrchestrator_AnalysisOnlySkipsExecution(t *testing.T) {
	source := stubSource{book: &signal.OrderBook{
		Bids: []signal.PriceLevel{{Price: 0.51, Size: 10}},
		Asks: []signal.PriceLevel{{Price: 0.53, Size: 10}},
	}}

	// engine 为 nil 即纯分析模式，循环不得崩溃也不得下单
	o := NewOrchestrator(source, nil, nil, []WatchItem{cpiWatchItem()}, 3, time.Minute)
	o.runCycle(context.Background())
}

func TestOrchestrator_SignalFailureIsTolerated(t *testing.T) {
	sim := broker.NewSimulatedClient()
	cpiQuote(t, sim, 0.47, 0.49)
	engine, ledger := newPaperEngine(t, sim)

	source := stubSource{err: errors.New("signal source down")}
	o := NewOrchestrator(source, engine, nil, []WatchItem{cpiWatchItem()}, 3, time.Minute)
	o.runCycle(context.Background())

	trades, err := ledger.Query(context.Background(), ledgerdomain.QueryFilter{}, 0)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("no signal must mean no trades, got %d", len(trades))
	}
}

func TestDaysToExpiry(t *testing.T) {
	now := time.Date(2026, 1, 29, 12, 0, 0, 0, time.UTC)

	if got := daysToExpiry("2026-03-15", now); got != 44 {
		t.Fatalf("days got=%d want=44", got)
	}
	if got := daysToExpiry("2025-12-01", now); got != 0 {
		t.Fatalf("past expiry must clamp to 0, got %d", got)
	}
	if got := daysToExpiry("not-a-date", now); got != 0 {
		t.Fatalf("unparseable expiry must fall back to 0, got %d", got)
	}
}
