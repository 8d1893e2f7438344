package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpadp "credlend-backend/internal/adapter/http"
	"credlend-backend/internal/adapter/middleware"
	"credlend-backend/internal/adapter/repository/mysql"
	"credlend-backend/internal/config"
	"credlend-backend/internal/infrastructure/cache"
	chaininfra "credlend-backend/internal/infrastructure/chain"
	"credlend-backend/internal/infrastructure/db"
	"credlend-backend/internal/logging"
	"credlend-backend/internal/observability"
	"credlend-backend/internal/usecase/lending"
	"credlend-backend/internal/usecase/settlement"
	"credlend-backend/internal/usecase/sweeper"
	"credlend-backend/internal/usecase/tracker"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Error("mysql connect failed", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)

	loans := mysql.NewLoanRepository(gdb)
	lenders := mysql.NewLenderRepository(gdb)
	chainTxs := mysql.NewChainTxRepository(gdb)
	unit := mysql.NewGormUoW(gdb)

	chainClient := chaininfra.NewClient(cfg.ChainRPCURL, cfg.ChainWSURL, log)

	trk := tracker.NewUsecase(unit, chainTxs, chainClient, log, metrics, cfg.ConfirmTimeout, cfg.StatusPollInterval)
	settle := settlement.NewUsecase(unit, trk, log, metrics, cfg.OperatorWallet, cfg.MaxLiquidationAttempts)
	trk.SetFinalityHandler(settle.ApplyFinality)
	lend := lending.NewUsecase(loans, unit, settle, log)
	sweep := sweeper.New(unit, settle, log, metrics, cfg.SweepInterval, cfg.GracePeriod, cfg.MaxLiquidationAttempts)

	h := httpadp.NewHandler(trk)
	loanH := httpadp.NewLoanHandler(lend, settle)
	lenderH := httpadp.NewLenderHandler(settle, lenders)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())

	idemp := middleware.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second, log)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/transfers/:tracking_id", h.TransferStatus)

	e.GET("/products", loanH.ListProducts)
	e.POST("/applications", loanH.CreateApplication, idemp)
	e.POST("/applications/:application_id/submit", loanH.SubmitApplication, idemp)
	e.POST("/applications/:application_id/approve", loanH.ApproveApplication, idemp)
	e.POST("/applications/:application_id/reject", loanH.RejectApplication, idemp)
	e.GET("/loans/:loan_id", loanH.GetLoan)
	e.POST("/repayments/:repayment_id/pay", loanH.PayRepayment, idemp)
	e.GET("/repayments/upcoming", loanH.UpcomingRepayments)
	e.GET("/repayments/overdue", loanH.OverdueRepayments)

	e.GET("/pools", lenderH.ListPools)
	e.GET("/pools/:pool_id/stats", lenderH.GetPoolStats)
	e.POST("/deposits", lenderH.CreateDeposit, idemp)
	e.POST("/deposits/:deposit_id/withdraw", lenderH.WithdrawDeposit, idemp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sweep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sweeper stopped", "err", err)
		}
	}()
	go func() {
		if err := trk.RunWatchdog(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("watchdog stopped", "err", err)
		}
	}()

	go func() {
		addr := ":" + cfg.AppPort
		log.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "err", err)
	}
}
