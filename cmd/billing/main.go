package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ai-consultation/billing/internal/billing/reconcile"
	"github.com/ai-consultation/billing/internal/billing/server"
	billingstripe "github.com/ai-consultation/billing/internal/billing/stripe"
	"github.com/ai-consultation/billing/internal/config"
	"github.com/ai-consultation/billing/internal/database"
	"github.com/ai-consultation/billing/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.IsProduction() && strings.HasPrefix(cfg.StripeSecretKey, "sk_test_") {
		slog.Warn("running in production with a Stripe test key")
	}

	prices, err := reconcile.ParsePriceTable(cfg.StripeTicketPrices)
	if err != nil {
		slog.Error("invalid ticket price table", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, rate limiting will fail open until it recovers", "error", err)
		}
	}

	srv := server.New(db, server.Config{
		Stripe: billingstripe.Config{
			SecretKey:           cfg.StripeSecretKey,
			WebhookSecret:       cfg.StripeWebhookSecret,
			SubscriptionPriceID: cfg.StripePriceID,
			SuccessURL:          cfg.BaseURL + "/success",
			CancelURL:           cfg.BaseURL + "/cancel",
		},
		TicketPrices:          prices,
		Environment:           cfg.AppEnv,
		CORSAllowedOrigin:     cfg.CORSAllowedOrigin,
		RevokePremiumOnCancel: cfg.RevokePremiumOnCancel,
		CronSecret:            cfg.CronSecret,
		SupabaseURL:           cfg.SupabaseURL,
		SupabaseServiceKey:    cfg.SupabaseServiceRoleKey,
		SupabaseJWTSecret:     cfg.SupabaseJWTSecret,
		Redis:                 rdb,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srv.DailyReset().Start(ctx)

	// Drop closed rate limit windows hourly
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					slog.Debug("rate limit windows removed", "count", n)
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("billing service starting", "addr", httpServer.Addr, "env", cfg.AppEnv, "ticket_prices", len(prices.PriceIDs()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	srv.DailyReset().Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
