// Package application 套利评估与下单执行
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/polyarb/internal/execution/broker"
	"github.com/wyfcoding/polyarb/internal/execution/domain"
	ledgerapp "github.com/wyfcoding/polyarb/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/polyarb/internal/ledger/domain"
	pricing "github.com/wyfcoding/polyarb/internal/pricing/domain"
	"github.com/wyfcoding/polyarb/pkg/logger"
)

const (
	venueForecastEx  = "ForecastEx"
	marketTypeBinary = "Binary Option"
)

// Options 引擎参数
type Options struct {
	Mode         ledgerdomain.TradeMode
	ArbThreshold float64
	RiskFreeRate float64
	// AllowLive 实盘总开关，live 模式必须显式放开
	AllowLive bool
}

// OpportunityRequest 一次套利评估的输入
type OpportunityRequest struct {
	Description string
	Strike      float64
	// ExpiryDate 到期日，YYYY-MM-DD
	ExpiryDate        string
	IsYes             bool
	SignalProbability float64
	DaysToExpiry      int
	Quantity          int64
}

// Opportunity 已确认的套利机会，意向与合约绑定后一并进入执行
type Opportunity struct {
	Intent   *ledgerdomain.TradeIntent
	Contract domain.InstrumentDescriptor
	Decision pricing.Decision
}

// ArbEngine 跨场所套利引擎
// 评估与执行分离：Evaluate 只产出意向，Execute 先入账再执行。
type ArbEngine struct {
	factory *domain.ContractFactory
	broker  broker.Client
	ledger  *ledgerapp.LedgerService
	opts    Options
}

func NewArbEngine(factory *domain.ContractFactory, brokerClient broker.Client, ledger *ledgerapp.LedgerService, opts Options) (*ArbEngine, error) {
	switch opts.Mode {
	case ledgerdomain.ModePaper, ledgerdomain.ModeLive:
	default:
		return nil, fmt.Errorf("invalid execution mode: %s", opts.Mode)
	}
	if opts.Mode == ledgerdomain.ModeLive && !opts.AllowLive {
		return nil, fmt.Errorf("live execution is disabled, enable allow_live_execution to proceed")
	}
	return &ArbEngine{factory: factory, broker: brokerClient, ledger: ledger, opts: opts}, nil
}

// Evaluate 评估一个市场的套利机会
// 价差严格大于阈值时返回买入意向，否则返回 nil。
// 执行端定价偏低时买入该端合约，故方向恒为 BUY。
func (e *ArbEngine) Evaluate(ctx context.Context, req OpportunityRequest) (*Opportunity, error) {
	contract, err := e.factory.Resolve(req.Description, req.Strike, req.ExpiryDate, req.IsYes)
	if err != nil {
		return nil, err
	}

	marketPrice, err := e.broker.QuoteMidpoint(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", req.Description, err)
	}

	decision := pricing.Evaluate(pricing.EvaluateInput{
		SignalProbability: req.SignalProbability,
		MarketPrice:       marketPrice,
		DaysToExpiry:      req.DaysToExpiry,
		RiskFreeRate:      e.opts.RiskFreeRate,
		Threshold:         e.opts.ArbThreshold,
	})

	logger.Info(ctx, "Arb analysis",
		"market", req.Description,
		"signal_probability", req.SignalProbability,
		"market_price", marketPrice,
		"fair_value", decision.FairValue,
		"spread", decision.Spread,
		"trade", decision.Trade,
	)

	if !decision.Trade {
		return nil, nil
	}

	intent, err := ledgerdomain.NewTradeIntent(ledgerdomain.NewIntentParams{
		Venue:      venueForecastEx,
		MarketType: marketTypeBinary,
		SymbolRoot: contract.SymbolRoot,
		Strike:     req.Strike,
		Expiry:     contract.Expiry,
		Side:       ledgerdomain.SideBuy,
		Quantity:   req.Quantity,
		LimitPrice: decimal.NewFromFloat(marketPrice),
		Mode:       e.opts.Mode,
		Notes: fmt.Sprintf("Arb opp: spread=%.2f%%, poly=%.4f, fx=%.4f",
			decision.Spread*100, req.SignalProbability, marketPrice),
	})
	if err != nil {
		return nil, fmt.Errorf("build trade intent for %s: %w", req.Description, err)
	}

	return &Opportunity{Intent: intent, Contract: contract, Decision: decision}, nil
}

// Execute 执行已确认的套利机会
// 意向先以 PENDING 入账，任何执行路径都不允许绕过账本。
// 纸面模式直接标记成交；实盘模式经网关下单，失败记为 REJECTED。
func (e *ArbEngine) Execute(ctx context.Context, opp *Opportunity) error {
	intent := opp.Intent
	if err := e.ledger.Record(ctx, intent); err != nil {
		return fmt.Errorf("record intent: %w", err)
	}

	if e.opts.Mode == ledgerdomain.ModePaper {
		logger.Info(ctx, "Simulating paper execution",
			"intent_id", intent.IntentID,
			"side", intent.Side,
			"quantity", intent.Quantity,
			"symbol_root", intent.SymbolRoot,
			"limit_price", intent.LimitPrice,
		)
		return e.ledger.UpdateStatus(ctx, intent.IntentID, ledgerdomain.StatusExecuted,
			"PAPER-"+intent.IntentID,
			fmt.Sprintf("Paper trade executed at %s", time.Now().UTC().Format(time.RFC3339)),
		)
	}

	logger.Info(ctx, "Placing live order",
		"intent_id", intent.IntentID,
		"side", intent.Side,
		"quantity", intent.Quantity,
		"symbol_root", intent.SymbolRoot,
		"limit_price", intent.LimitPrice,
	)
	if err := e.ledger.UpdateStatus(ctx, intent.IntentID, ledgerdomain.StatusSubmitted, "", ""); err != nil {
		return fmt.Errorf("mark intent submitted: %w", err)
	}

	limitPrice, _ := intent.LimitPrice.Float64()
	txID, err := e.broker.PlaceLimitOrder(ctx, opp.Contract, string(intent.Side), intent.Quantity, limitPrice)
	if err != nil {
		logger.Error(ctx, "Live order failed", "intent_id", intent.IntentID, "error", err)
		if uerr := e.ledger.UpdateStatus(ctx, intent.IntentID, ledgerdomain.StatusRejected, "",
			fmt.Sprintf("Order placement failed: %v", err)); uerr != nil {
			return fmt.Errorf("mark intent rejected: %w", uerr)
		}
		return fmt.Errorf("place live order: %w", err)
	}

	return e.ledger.UpdateStatus(ctx, intent.IntentID, ledgerdomain.StatusExecuted, txID, "Live order placed")
}
