package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wyfcoding/polyarb/internal/execution/domain"
)

// ErrNoQuote 合约没有可用报价
var ErrNoQuote = fmt.Errorf("no quote available")

// SimulatedClient 进程内模拟经纪商
// 报价由外部注入，下单立即确认，用于纸面交易与测试。
type SimulatedClient struct {
	mu      sync.RWMutex
	quotes  map[string]Quote
	orderID atomic.Int64
}

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{quotes: make(map[string]Quote)}
}

// SetQuote 注入合约报价
func (c *SimulatedClient) SetQuote(desc domain.InstrumentDescriptor, q Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[desc.LocalSymbol()] = q
}

func (c *SimulatedClient) Connect(ctx context.Context) error { return nil }

func (c *SimulatedClient) Close() error { return nil }

func (c *SimulatedClient) QuoteMidpoint(ctx context.Context, desc domain.InstrumentDescriptor) (float64, error) {
	c.mu.RLock()
	q, ok := c.quotes[desc.LocalSymbol()]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, desc.LocalSymbol())
	}
	mid, valid := q.Midpoint()
	if !valid {
		return 0, fmt.Errorf("%w: %s has a one-sided book", ErrNoQuote, desc.LocalSymbol())
	}
	return mid, nil
}

func (c *SimulatedClient) PlaceLimitOrder(ctx context.Context, desc domain.InstrumentDescriptor, side string, quantity int64, limitPrice float64) (string, error) {
	return fmt.Sprintf("SIM-%d", c.orderID.Add(1)), nil
}
