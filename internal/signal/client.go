// Package signal 预测市场信号源
// 通过 Polymarket CLOB 公共行情接口获取盘口，折算成事件概率。
package signal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// PriceLevel 盘口单档，价格即事件概率报价
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook 截断后的盘口快照
// Bids 按价格降序，Asks 按价格升序，各保留前 N 档。
type OrderBook struct {
	MarketID string
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// Client 只读行情客户端
type Client struct {
	http        *resty.Client
	depthLevels int
}

// rawLevel CLOB 返回的字符串编码档位
type rawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type rawBook struct {
	Market string     `json:"market"`
	Bids   []rawLevel `json:"bids"`
	Asks   []rawLevel `json:"asks"`
}

// NewClient 创建行情客户端
// depthLevels 控制盘口截断深度，非正值按 3 处理。
func NewClient(baseURL string, timeout time.Duration, depthLevels int) *Client {
	if depthLevels <= 0 {
		depthLevels = 3
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: httpClient, depthLevels: depthLevels}
}

// GetOrderBook 拉取指定市场的盘口
func (c *Client) GetOrderBook(ctx context.Context, marketID string) (*OrderBook, error) {
	var raw rawBook
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", marketID).
		SetResult(&raw).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("fetch order book for market %s: %w", marketID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch order book for market %s: status %d", marketID, resp.StatusCode())
	}

	book := &OrderBook{
		MarketID: raw.Market,
		Bids:     parseLevels(raw.Bids),
		Asks:     parseLevels(raw.Asks),
	}
	if book.MarketID == "" {
		book.MarketID = marketID
	}

	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	book.Bids = truncate(book.Bids, c.depthLevels)
	book.Asks = truncate(book.Asks, c.depthLevels)
	return book, nil
}

func parseLevels(raw []rawLevel) []PriceLevel {
	levels := make([]PriceLevel, 0, len(raw))
	for _, l := range raw {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		levels = append(levels, PriceLevel{Price: price, Size: size})
	}
	return levels
}

func truncate(levels []PriceLevel, n int) []PriceLevel {
	if len(levels) > n {
		return levels[:n]
	}
	return levels
}

// LiquidityWeightedProbability 按挂单量加权计算事件概率
// 对买卖两侧各取前 N 档做量加权均价，再取两侧中点；
// 只有一侧有流动性时直接用该侧均价。两侧皆空返回 ok=false。
func LiquidityWeightedProbability(book *OrderBook, n int) (prob float64, ok bool) {
	if book == nil {
		return 0, false
	}
	bids := truncate(book.Bids, n)
	asks := truncate(book.Asks, n)

	var bidValue, bidSize, askValue, askSize float64
	for _, l := range bids {
		bidValue += l.Price * l.Size
		bidSize += l.Size
	}
	for _, l := range asks {
		askValue += l.Price * l.Size
		askSize += l.Size
	}

	switch {
	case bidSize > 0 && askSize > 0:
		return (bidValue/bidSize + askValue/askSize) / 2, true
	case bidSize > 0:
		return bidValue / bidSize, true
	case askSize > 0:
		return askValue / askSize, true
	default:
		return 0, false
	}
}
