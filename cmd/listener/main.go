// The listener binary follows the lending program's chain logs and feeds
// them into settlement reconciliation. It runs separately from the API so a
// chain outage never takes the request path down with it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"credlend-backend/internal/adapter/repository/mysql"
	"credlend-backend/internal/config"
	chaininfra "credlend-backend/internal/infrastructure/chain"
	"credlend-backend/internal/infrastructure/db"
	"credlend-backend/internal/logging"
	"credlend-backend/internal/observability"
	"credlend-backend/internal/usecase/listener"
	"credlend-backend/internal/usecase/settlement"
	"credlend-backend/internal/usecase/tracker"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if cfg.ChainProgramID == "" {
		log.Error("missing CHAIN_PROGRAM_ID")
		os.Exit(1)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Error("mysql connect failed", "err", err)
		os.Exit(1)
	}

	metrics := observability.New(prometheus.NewRegistry())

	chainTxs := mysql.NewChainTxRepository(gdb)
	unit := mysql.NewGormUoW(gdb)
	chainClient := chaininfra.NewClient(cfg.ChainRPCURL, cfg.ChainWSURL, log)

	trk := tracker.NewUsecase(unit, chainTxs, chainClient, log, metrics, cfg.ConfirmTimeout, cfg.StatusPollInterval)
	settle := settlement.NewUsecase(unit, trk, log, metrics, cfg.OperatorWallet, cfg.MaxLiquidationAttempts)
	trk.SetFinalityHandler(settle.ApplyFinality)

	lst := listener.New(chainClient, trk, unit, log, cfg.ChainProgramID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("listener starting", "program_id", cfg.ChainProgramID)
	if err := lst.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("listener stopped", "err", err)
		os.Exit(1)
	}
}
