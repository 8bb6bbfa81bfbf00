// 账本离线报表工具
// 直接读取机器人落盘的账本数据库，导出 CSV 或输出持仓与已实现盈亏。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	ledgerapp "github.com/wyfcoding/polyarb/internal/ledger/application"
	sqliterepo "github.com/wyfcoding/polyarb/internal/ledger/infrastructure/persistence/sqlite"
	"github.com/wyfcoding/polyarb/pkg/db"
	"github.com/wyfcoding/polyarb/pkg/logger"
)

var (
	dbPath     = flag.String("db", "data/trades.db", "ledger database path")
	action     = flag.String("action", "export", "report action: export, positions, pnl")
	outPath    = flag.String("out", "", "output file for export (default stdout)")
	venue      = flag.String("venue", "", "venue filter for pnl")
	symbolRoot = flag.String("symbol-root", "", "symbol root filter for pnl")
)

func main() {
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "warn", Format: "text", Output: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	database, err := db.Init(db.Config{Driver: "sqlite", DSN: *dbPath})
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer database.Close()

	repo, err := sqliterepo.NewIntentRepository(database.DB)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	service := ledgerapp.NewLedgerService(repo, nil)

	switch *action {
	case "export":
		return runExport(ctx, service)
	case "positions":
		return runPositions(ctx, service)
	case "pnl":
		return runPnL(ctx, service)
	default:
		return fmt.Errorf("unknown action: %s", *action)
	}
}

func runExport(ctx context.Context, service *ledgerapp.LedgerService) error {
	out := os.Stdout
	if *outPath != "" {
		file, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()
		out = file
	}
	return service.ExportCSV(ctx, out)
}

func runPositions(ctx context.Context, service *ledgerapp.LedgerService) error {
	positions, err := service.Positions(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for key, qty := range positions {
		fmt.Printf("%s %s: %+d\n", key.Venue, key.SymbolRoot, qty)
	}
	return nil
}

func runPnL(ctx context.Context, service *ledgerapp.LedgerService) error {
	pnl, err := service.RealizedPnL(ctx, *venue, *symbolRoot)
	if err != nil {
		return err
	}
	fmt.Printf("realized pnl: %s\n", pnl.String())
	return nil
}
