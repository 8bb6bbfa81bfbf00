package application

import (
	"context"
	"time"

	"github.com/wyfcoding/polyarb/internal/signal"
	"github.com/wyfcoding/polyarb/pkg/logger"
	"github.com/wyfcoding/polyarb/pkg/metrics"
)

// WatchItem 监控清单中的一个市场
type WatchItem struct {
	Description string
	// SignalMarketID 信号源市场标识
	SignalMarketID string
	Strike         float64
	// ExpiryDate 到期日，YYYY-MM-DD
	ExpiryDate string
	IsYes      bool
	Quantity   int64
}

// SignalSource 事件概率来源
type SignalSource interface {
	GetOrderBook(ctx context.Context, marketID string) (*signal.OrderBook, error)
}

// Orchestrator 轮询编排器
// 每轮对监控清单逐个拉取信号、评估套利并触发执行。
// engine 为 nil 时运行在纯分析模式，只产出信号日志与指标。
type Orchestrator struct {
	source      SignalSource
	engine      *ArbEngine
	metrics     *metrics.Metrics
	watchlist   []WatchItem
	depthLevels int
	interval    time.Duration
}

func NewOrchestrator(source SignalSource, engine *ArbEngine, m *metrics.Metrics, watchlist []WatchItem, depthLevels int, interval time.Duration) *Orchestrator {
	if depthLevels <= 0 {
		depthLevels = 3
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Orchestrator{
		source:      source,
		engine:      engine,
		metrics:     m,
		watchlist:   watchlist,
		depthLevels: depthLevels,
		interval:    interval,
	}
}

// Run 阻塞运行轮询循环直到 ctx 取消
func (o *Orchestrator) Run(ctx context.Context) {
	logger.Info(ctx, "Orchestrator started",
		"watchlist_size", len(o.watchlist),
		"interval", o.interval.String(),
		"analysis_only", o.engine == nil,
	)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	// 启动后立即跑一轮，不等首个 tick
	o.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Orchestrator stopped")
			return
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	for _, item := range o.watchlist {
		if ctx.Err() != nil {
			return
		}
		o.evaluateItem(ctx, item)
	}
}

func (o *Orchestrator) evaluateItem(ctx context.Context, item WatchItem) {
	book, err := o.source.GetOrderBook(ctx, item.SignalMarketID)
	if err != nil {
		logger.Warn(ctx, "Failed to fetch order book",
			"market", item.Description, "market_id", item.SignalMarketID, "error", err)
		return
	}

	probability, ok := signal.LiquidityWeightedProbability(book, o.depthLevels)
	if !ok {
		logger.Warn(ctx, "No liquidity in signal market",
			"market", item.Description, "market_id", item.SignalMarketID)
		return
	}
	if o.metrics != nil {
		o.metrics.SignalsTotal.Inc()
	}
	logger.Info(ctx, "Signal updated", "market", item.Description, "probability", probability)

	if o.engine == nil {
		return
	}

	days := daysToExpiry(item.ExpiryDate, time.Now())
	opp, err := o.engine.Evaluate(ctx, OpportunityRequest{
		Description:       item.Description,
		Strike:            item.Strike,
		ExpiryDate:        item.ExpiryDate,
		IsYes:             item.IsYes,
		SignalProbability: probability,
		DaysToExpiry:      days,
		Quantity:          item.Quantity,
	})
	if o.metrics != nil {
		o.metrics.EvaluationsTotal.Inc()
	}
	if err != nil {
		logger.Warn(ctx, "Arb evaluation failed", "market", item.Description, "error", err)
		return
	}
	if opp == nil {
		return
	}

	if o.metrics != nil {
		o.metrics.OpportunitiesTotal.Inc()
		o.metrics.ArbSpread.Set(opp.Decision.Spread)
	}

	if err := o.engine.Execute(ctx, opp); err != nil {
		logger.Error(ctx, "Trade execution failed",
			"market", item.Description, "intent_id", opp.Intent.IntentID, "error", err)
		if o.metrics != nil {
			o.metrics.ExecutionsTotal.WithLabelValues("rejected").Inc()
		}
		return
	}
	if o.metrics != nil {
		o.metrics.IntentsRecordedTotal.Inc()
		o.metrics.ExecutionsTotal.WithLabelValues("executed").Inc()
	}
	o.refreshPositionsGauge(ctx)
}

func (o *Orchestrator) refreshPositionsGauge(ctx context.Context) {
	if o.metrics == nil || o.engine == nil {
		return
	}
	positions, err := o.engine.ledger.Positions(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to refresh positions gauge", "error", err)
		return
	}
	o.metrics.PositionsOpen.Set(float64(len(positions)))
}

// daysToExpiry 按自然日截断计算距到期天数，已过期为 0
func daysToExpiry(expiryDate string, now time.Time) int {
	expiry, err := time.Parse("2006-01-02", expiryDate)
	if err != nil {
		return 0
	}
	days := int(expiry.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
