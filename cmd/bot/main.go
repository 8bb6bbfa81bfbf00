package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	execapp "github.com/wyfcoding/polyarb/internal/execution/application"
	"github.com/wyfcoding/polyarb/internal/execution/broker"
	execdomain "github.com/wyfcoding/polyarb/internal/execution/domain"
	ledgerapp "github.com/wyfcoding/polyarb/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/polyarb/internal/ledger/domain"
	"github.com/wyfcoding/polyarb/internal/ledger/infrastructure/messaging"
	sqliterepo "github.com/wyfcoding/polyarb/internal/ledger/infrastructure/persistence/sqlite"
	ledgerhttp "github.com/wyfcoding/polyarb/internal/ledger/interfaces/http"
	signalclient "github.com/wyfcoding/polyarb/internal/signal"
	"github.com/wyfcoding/polyarb/pkg/config"
	"github.com/wyfcoding/polyarb/pkg/db"
	"github.com/wyfcoding/polyarb/pkg/logger"
	"github.com/wyfcoding/polyarb/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/bot/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info(ctx, "Starting trading bot",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
		"mode", cfg.Strategy.Mode,
	)

	// 实盘前二次确认，避免误启动
	if cfg.Strategy.Mode == "live" && !confirmLiveMode() {
		logger.Info(ctx, "Live mode not confirmed, exiting")
		return
	}

	// 3. Metrics
	m := metrics.New("bot")
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics server", "error", err)
		}
	}

	// 4. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to connect database", "error", err)
	}
	defer database.Close()

	// 5. Ledger
	repo, err := sqliterepo.NewIntentRepository(database.DB)
	if err != nil {
		logger.Fatal(ctx, "Failed to init intent repository", "error", err)
	}

	var publisher ledgerdomain.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := messaging.NewKafkaEventPublisher(messaging.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.IntentTopic,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		logger.Warn(ctx, "No Kafka brokers configured, intent events disabled")
		publisher = messaging.NoopEventPublisher{}
	}

	ledgerService := ledgerapp.NewLedgerService(repo, publisher)

	// 6. Signal source
	signalClient := signalclient.NewClient(
		cfg.Signal.BaseURL,
		time.Duration(cfg.Signal.RequestTimeout)*time.Second,
		cfg.Signal.BookDepthLevels,
	)

	// 7. Execution engine（analysis-only 模式不接经纪商）
	var engine *execapp.ArbEngine
	if cfg.Strategy.Mode != "analysis-only" {
		gateway := broker.NewGatewayClient(
			cfg.Broker.Host,
			cfg.Broker.Port,
			cfg.Broker.ClientID,
			time.Duration(cfg.Broker.QuoteTimeout)*time.Second,
		)
		if err := gateway.Connect(ctx); err != nil {
			logger.Warn(ctx, "Order gateway unreachable, falling back to analysis-only mode", "error", err)
		} else {
			defer gateway.Close()
			engine, err = execapp.NewArbEngine(
				execdomain.NewContractFactory(),
				gateway,
				ledgerService,
				execapp.Options{
					Mode:         ledgerdomain.TradeMode(cfg.Strategy.Mode),
					ArbThreshold: cfg.Strategy.ArbThreshold,
					RiskFreeRate: cfg.Strategy.RiskFreeRate,
					AllowLive:    cfg.Strategy.AllowLiveExecution,
				},
			)
			if err != nil {
				logger.Fatal(ctx, "Failed to init arb engine", "error", err)
			}
		}
	}

	// 8. Orchestrator
	watchlist := make([]execapp.WatchItem, 0, len(cfg.Watchlist))
	for _, entry := range cfg.Watchlist {
		quantity := entry.Quantity
		if quantity <= 0 {
			quantity = cfg.Strategy.DefaultQuantity
		}
		watchlist = append(watchlist, execapp.WatchItem{
			Description:    entry.Description,
			SignalMarketID: entry.SignalMarketID,
			Strike:         entry.Strike,
			ExpiryDate:     entry.ExpiryDate,
			IsYes:          entry.IsYes,
			Quantity:       quantity,
		})
	}
	orchestrator := execapp.NewOrchestrator(
		signalClient,
		engine,
		m,
		watchlist,
		cfg.Signal.BookDepthLevels,
		time.Duration(cfg.Signal.PollInterval)*time.Second,
	)

	// 9. HTTP audit surface
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"mode":    cfg.Strategy.Mode,
		})
	})
	ledgerhttp.NewHandler(ledgerService).RegisterRoutes(r.Group("/api/v1"))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 10. Start
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		orchestrator.Run(gctx)
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(gctx, "Shutdown signal received")
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "Bot exited with error", "error", err)
	}

	// 11. Shutdown report
	if cfg.Strategy.Mode != "analysis-only" {
		writeShutdownReport(ledgerService, cfg.Database.DSN)
	}
	logger.Info(context.Background(), "Bot stopped")
}

// confirmLiveMode 实盘模式要求操作者手工键入 YES
func confirmLiveMode() bool {
	fmt.Println(strings.Repeat("!", 70))
	fmt.Println("WARNING: You are about to run in LIVE trading mode!")
	fmt.Println("Real orders will be placed with real money.")
	fmt.Println(strings.Repeat("!", 70))
	fmt.Print("\nType 'YES' to confirm: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToUpper(line)) == "YES"
}

// writeShutdownReport 停机时导出 CSV 视图并记录盈亏摘要
func writeShutdownReport(ledgerService *ledgerapp.LedgerService, dsn string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	csvPath := filepath.Join(filepath.Dir(dsn), "trades.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		logger.Error(ctx, "Failed to create trade export", "path", csvPath, "error", err)
	} else {
		defer file.Close()
		if err := ledgerService.ExportCSV(ctx, file); err != nil {
			logger.Error(ctx, "Failed to export trades", "path", csvPath, "error", err)
		} else {
			logger.Info(ctx, "Trades exported", "path", csvPath)
		}
	}

	pnl, err := ledgerService.RealizedPnL(ctx, "", "")
	if err != nil {
		logger.Error(ctx, "Failed to compute realized pnl", "error", err)
		return
	}
	positions, err := ledgerService.Positions(ctx)
	if err != nil {
		logger.Error(ctx, "Failed to load positions", "error", err)
		return
	}

	logger.Info(ctx, "Final PnL summary",
		"realized_pnl", pnl.String(),
		"open_positions", len(positions),
	)
	for key, qty := range positions {
		logger.Info(ctx, "Open position",
			"venue", key.Venue,
			"symbol_root", key.SymbolRoot,
			"net_qty", qty,
		)
	}
}
