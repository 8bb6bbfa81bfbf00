// Package broker 经纪商接入
package broker

import (
	"context"

	"github.com/wyfcoding/polyarb/internal/execution/domain"
)

// Quote 合约双边报价
type Quote struct {
	Bid float64
	Ask float64
}

// Midpoint 买卖中间价
func (q Quote) Midpoint() (float64, bool) {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0, false
	}
	return (q.Bid + q.Ask) / 2, true
}

// Client 经纪商客户端
// QuoteMidpoint 返回合约当前中间价；PlaceLimitOrder 提交限价单并返回经纪商成交标识。
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	QuoteMidpoint(ctx context.Context, desc domain.InstrumentDescriptor) (float64, error)
	PlaceLimitOrder(ctx context.Context, desc domain.InstrumentDescriptor, side string, quantity int64, limitPrice float64) (string, error)
}
