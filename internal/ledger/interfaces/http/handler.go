// Package http 交易账本审计接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/polyarb/internal/ledger/application"
	"github.com/wyfcoding/polyarb/internal/ledger/domain"
)

type Handler struct {
	service *application.LedgerService
}

func NewHandler(service *application.LedgerService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/trades")
	{
		g.GET("", h.ListTrades)
		g.GET("/:id", h.GetTrade)
	}
	r.GET("/positions", h.GetPositions)
	r.GET("/pnl", h.GetPnL)
	r.GET("/export", h.ExportCSV)
}

// TradeView 意向的对外视图
type TradeView struct {
	IntentID      string  `json:"intent_id"`
	Venue         string  `json:"venue"`
	MarketType    string  `json:"market_type"`
	SymbolRoot    string  `json:"symbol_root"`
	Strike        float64 `json:"strike"`
	Expiry        string  `json:"expiry"`
	Side          string  `json:"side"`
	Quantity      int64   `json:"quantity"`
	LimitPrice    string  `json:"limit_price"`
	OrderType     string  `json:"order_type"`
	Mode          string  `json:"mode"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

func toTradeView(intent *domain.TradeIntent) TradeView {
	return TradeView{
		IntentID:      intent.IntentID,
		Venue:         intent.Venue,
		MarketType:    intent.MarketType,
		SymbolRoot:    intent.SymbolRoot,
		Strike:        intent.Strike,
		Expiry:        intent.Expiry,
		Side:          string(intent.Side),
		Quantity:      intent.Quantity,
		LimitPrice:    intent.LimitPrice.String(),
		OrderType:     intent.OrderType,
		Mode:          string(intent.Mode),
		Status:        string(intent.Status),
		Timestamp:     intent.Timestamp.UTC().Format(time.RFC3339Nano),
		TransactionID: intent.TransactionID,
		Notes:         intent.Notes,
	}
}

func (h *Handler) ListTrades(c *gin.Context) {
	filter := domain.QueryFilter{
		Venue:      c.Query("venue"),
		SymbolRoot: c.Query("symbol_root"),
	}
	if s := c.Query("status"); s != "" {
		status := domain.IntentStatus(s)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + s})
			return
		}
		filter.Status = status
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: " + raw})
			return
		}
		limit = n
	}

	intents, err := h.service.Query(c.Request.Context(), filter, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]TradeView, 0, len(intents))
	for _, intent := range intents {
		views = append(views, toTradeView(intent))
	}
	c.JSON(http.StatusOK, gin.H{"trades": views, "count": len(views)})
}

func (h *Handler) GetTrade(c *gin.Context) {
	intent, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownIntent) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toTradeView(intent))
}

// PositionView 单个标的的净持仓
type PositionView struct {
	Venue      string `json:"venue"`
	SymbolRoot string `json:"symbol_root"`
	NetQty     int64  `json:"net_qty"`
}

func (h *Handler) GetPositions(c *gin.Context) {
	positions, err := h.service.Positions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]PositionView, 0, len(positions))
	for key, qty := range positions {
		views = append(views, PositionView{Venue: key.Venue, SymbolRoot: key.SymbolRoot, NetQty: qty})
	}
	c.JSON(http.StatusOK, gin.H{"positions": views, "count": len(views)})
}

func (h *Handler) GetPnL(c *gin.Context) {
	venue := c.Query("venue")
	symbolRoot := c.Query("symbol_root")

	pnl, err := h.service.RealizedPnL(c.Request.Context(), venue, symbolRoot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"realized_pnl": pnl.String()})
}

func (h *Handler) ExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := h.service.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
}
