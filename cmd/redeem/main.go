package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-data-redeem/internal/api"
	"github.com/0gfoundation/0g-data-redeem/internal/config"
	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
	"github.com/0gfoundation/0g-data-redeem/internal/receipt"
	"github.com/0gfoundation/0g-data-redeem/internal/redeem"
	"github.com/0gfoundation/0g-data-redeem/internal/view"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Session store (Redis or memory) ───────────────────────────────────────
	store, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("session store init failed", zap.Error(err))
	}
	defer closeStore()

	// ── Receipt signer ────────────────────────────────────────────────────────
	signer, err := receipt.NewSigner(cfg.Receipt.SigningKey)
	if err != nil {
		log.Fatal("receipt signer init failed", zap.Error(err))
	}
	if cfg.Receipt.SigningKey == "" {
		log.Warn("RECEIPT_SIGNING_KEY not set, using an ephemeral key",
			zap.String("address", signer.Address().Hex()))
	}

	// ── Pricing + redeem flow ─────────────────────────────────────────────────
	engine := pricing.NewEngine(cfg.Pricing.PricePerMB, cfg.Pricing.CommissionRate)
	catalog := offers.Catalog{MBSteps: cfg.Offers.MBSteps, GBPresets: cfg.Offers.GBPresets}
	policy := redeem.ResetEachCycle
	if cfg.Redeem.StickyClose {
		policy = redeem.StickyClose
	}

	ctrl := redeem.NewController(store, engine, policy, signer, log)
	render := view.NewPresenter(engine, pricing.NewFormatter(cfg.Pricing.CurrencySymbol))
	h := api.NewHandler(ctrl, catalog, engine, render, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(h, cfg.Session.TTL(), log),
	}

	go func() {
		log.Info("HTTP server starting",
			zap.Int("port", cfg.Server.Port),
			zap.Float64("price_per_mb", cfg.Pricing.PricePerMB),
			zap.Float64("commission_rate", cfg.Pricing.CommissionRate),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newStore picks Redis when an address is configured, process memory otherwise.
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (redeem.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info("REDIS_ADDR not set, keeping sessions in memory")
		return redeem.NewMemoryStore(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return redeem.NewRedisStore(rdb, cfg.Session.TTL()), func() { rdb.Close() }, nil //nolint:errcheck
}
