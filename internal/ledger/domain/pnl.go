package domain

import (
	"github.com/shopspring/decimal"
)

// PositionKey 持仓聚合键
type PositionKey struct {
	Venue      string
	SymbolRoot string
}

// lot 未配对的成交批次，FIFO 队列元素
type lot struct {
	side     IntentSide
	quantity int64
	price    decimal.Decimal
}

// Positions 按 (venue, symbol_root) 汇总净持仓
// 只统计 EXECUTED 记录，BUY 计正、SELL 计负
func Positions(executed []*TradeIntent) map[PositionKey]int64 {
	positions := make(map[PositionKey]int64)
	for _, t := range executed {
		if t.Status != StatusExecuted {
			continue
		}
		key := PositionKey{Venue: t.Venue, SymbolRoot: t.SymbolRoot}
		positions[key] += t.SignedQuantity()
		if positions[key] == 0 {
			delete(positions, key)
		}
	}
	return positions
}

// RealizedPnL 按 FIFO 规则计算已实现盈亏
// executed 必须按时间正序（最早优先）传入。
// 每个 (venue, symbol_root) 独立配对：反向成交消耗最早的未配对批次，
// 每次配对实现 (sell_price - buy_price) * matched_quantity；
// 空头先行的序列同样成立。未配对的剩余只进持仓，不进已实现盈亏。
// 采用 FIFO 而非均价成本，因为它对应逐批结算顺序且可逐笔审计。
func RealizedPnL(executed []*TradeIntent) decimal.Decimal {
	queues := make(map[PositionKey][]lot)
	pnl := decimal.Zero

	for _, t := range executed {
		if t.Status != StatusExecuted {
			continue
		}

		key := PositionKey{Venue: t.Venue, SymbolRoot: t.SymbolRoot}
		queue := queues[key]
		remaining := t.Quantity

		// 反向批次在队头时先配对
		for remaining > 0 && len(queue) > 0 && queue[0].side != t.Side {
			head := &queue[0]
			matched := remaining
			if head.quantity < matched {
				matched = head.quantity
			}

			var sellPrice, buyPrice decimal.Decimal
			if t.Side == SideSell {
				sellPrice, buyPrice = t.LimitPrice, head.price
			} else {
				sellPrice, buyPrice = head.price, t.LimitPrice
			}
			pnl = pnl.Add(sellPrice.Sub(buyPrice).Mul(decimal.NewFromInt(matched)))

			remaining -= matched
			head.quantity -= matched
			if head.quantity == 0 {
				queue = queue[1:]
			}
		}

		// 剩余数量成为新的未配对批次（同向追加或反手开仓）
		if remaining > 0 {
			queue = append(queue, lot{side: t.Side, quantity: remaining, price: t.LimitPrice})
		}
		queues[key] = queue
	}

	return pnl
}
