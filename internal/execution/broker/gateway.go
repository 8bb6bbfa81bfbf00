package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wyfcoding/polyarb/internal/execution/domain"
)

// GatewayClient 通过本地下单网关路由真实订单
// 网关与经纪商终端同机部署，暴露 HTTP 桥接接口。
type GatewayClient struct {
	http     *resty.Client
	clientID int
}

type gatewayQuoteResp struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

type gatewayOrderReq struct {
	ClientID   int     `json:"client_id"`
	Symbol     string  `json:"symbol"`
	SecType    string  `json:"sec_type"`
	Exchange   string  `json:"exchange"`
	Currency   string  `json:"currency"`
	Right      string  `json:"right"`
	Strike     float64 `json:"strike"`
	Expiry     string  `json:"expiry"`
	Action     string  `json:"action"`
	Quantity   int64   `json:"quantity"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price"`
}

type gatewayOrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// NewGatewayClient 创建网关客户端
func NewGatewayClient(host string, port, clientID int, quoteTimeout time.Duration) *GatewayClient {
	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d", host, port)).
		SetTimeout(quoteTimeout)
	return &GatewayClient{http: httpClient, clientID: clientID}
}

// Connect 探活网关
func (c *GatewayClient) Connect(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/health")
	if err != nil {
		return fmt.Errorf("connect to order gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("connect to order gateway: status %d", resp.StatusCode())
	}
	return nil
}

func (c *GatewayClient) Close() error {
	return nil
}

func (c *GatewayClient) QuoteMidpoint(ctx context.Context, desc domain.InstrumentDescriptor) (float64, error) {
	var quote gatewayQuoteResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   desc.SymbolRoot,
			"sec_type": desc.SecType,
			"exchange": desc.Exchange,
			"right":    string(desc.Right),
			"strike":   fmt.Sprintf("%v", desc.Strike),
			"expiry":   desc.Expiry,
		}).
		SetResult(&quote).
		Get("/v1/quote")
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", desc.LocalSymbol(), err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("quote %s: status %d", desc.LocalSymbol(), resp.StatusCode())
	}

	mid, ok := Quote{Bid: quote.Bid, Ask: quote.Ask}.Midpoint()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, desc.LocalSymbol())
	}
	return mid, nil
}

func (c *GatewayClient) PlaceLimitOrder(ctx context.Context, desc domain.InstrumentDescriptor, side string, quantity int64, limitPrice float64) (string, error) {
	var order gatewayOrderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(gatewayOrderReq{
			ClientID:   c.clientID,
			Symbol:     desc.SymbolRoot,
			SecType:    desc.SecType,
			Exchange:   desc.Exchange,
			Currency:   desc.Currency,
			Right:      string(desc.Right),
			Strike:     desc.Strike,
			Expiry:     desc.Expiry,
			Action:     side,
			Quantity:   quantity,
			OrderType:  "LMT",
			LimitPrice: limitPrice,
		}).
		SetResult(&order).
		Post("/v1/orders")
	if err != nil {
		return "", fmt.Errorf("place order %s: %w", desc.LocalSymbol(), err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("place order %s: status %d", desc.LocalSymbol(), resp.StatusCode())
	}
	if order.OrderID == "" {
		return "", fmt.Errorf("place order %s: gateway returned empty order id", desc.LocalSymbol())
	}
	return order.OrderID, nil
}
