package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/polyarb/internal/ledger/application"
	"github.com/wyfcoding/polyarb/internal/ledger/domain"
	sqliterepo "github.com/wyfcoding/polyarb/internal/ledger/infrastructure/persistence/sqlite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T) (*gin.Engine, *application.LedgerService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	repo, err := sqliterepo.NewIntentRepository(db)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	svc := application.NewLedgerService(repo, nil)

	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, svc
}

func recordExecuted(t *testing.T, svc *application.LedgerService, symbolRoot string, side domain.IntentSide, qty int64, price string) *domain.TradeIntent {
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
	ctx := context.Background()
	if err := svc.Record(ctx, intent); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := svc.UpdateStatus(ctx, intent.IntentID, domain.StatusExecuted, "PAPER-"+intent.IntentID, ""); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	return intent
}

func TestHandler_ListTrades(t *testing.T) {
	r, svc := setupRouter(t)
	recordExecuted(t, svc, "USCPI", domain.SideBuy, 10, "0.40")
	recordExecuted(t, svc, "BTCQ", domain.SideBuy, 5, "0.60")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades?symbol_root=USCPI", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d want=200, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Trades []TradeView `json:"trades"`
		Count  int         `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Count != 1 || len(resp.Trades) != 1 {
		t.Fatalf("expected 1 USCPI trade, got %d", resp.Count)
	}
	if resp.Trades[0].SymbolRoot != "USCPI" || resp.Trades[0].Status != "EXECUTED" {
		t.Fatalf("unexpected trade view: %+v", resp.Trades[0])
	}
}

func TestHandler_ListTradesBadParams(t *testing.T) {
	r, _ := setupRouter(t)

	for _, path := range []string{
		"/api/v1/trades?status=BOGUS",
		"/api/v1/trades?limit=abc",
		"/api/v1/trades?limit=-1",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got=%d want=400", path, w.Code)
		}
	}
}

func TestHandler_GetTradeNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/trades/no-such-id", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status got=%d want=404", w.Code)
	}
}

func TestHandler_PnLAndPositions(t *testing.T) {
	r, svc := setupRouter(t)
	recordExecuted(t, svc, "USCPI", domain.SideBuy, 10, "0.40")
	recordExecuted(t, svc, "USCPI", domain.SideSell, 10, "0.55")
	recordExecuted(t, svc, "BTCQ", domain.SideBuy, 5, "0.60")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pnl?symbol_root=USCPI", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("pnl status got=%d want=200", w.Code)
	}
	var pnlResp struct {
		RealizedPnL string `json:"realized_pnl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pnlResp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !decimal.RequireFromString(pnlResp.RealizedPnL).Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("pnl got=%s want=1.5", pnlResp.RealizedPnL)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("positions status got=%d want=200", w.Code)
	}
	var posResp struct {
		Positions []PositionView `json:"positions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &posResp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	// USCPI 已平仓，只剩 BTCQ
	if len(posResp.Positions) != 1 || posResp.Positions[0].SymbolRoot != "BTCQ" || posResp.Positions[0].NetQty != 5 {
		t.Fatalf("unexpected positions: %+v", posResp.Positions)
	}
}

func TestHandler_ExportCSV(t *testing.T) {
	r, svc := setupRouter(t)
	intent := recordExecuted(t, svc, "USCPI", domain.SideBuy, 10, "0.40")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/export", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d want=200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type got=%s want=text/csv", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, intent.IntentID) {
		t.Fatalf("export missing intent id, body=%s", body)
	}

	parsed, err := application.ParseCSV(strings.NewReader(body))
	if err != nil {
		t.Fatalf("exported csv must re-import cleanly: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 record, got %d", len(parsed))
	}
}
