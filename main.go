package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cryptodash/internal/chart"
	"cryptodash/internal/coingecko"
	"cryptodash/internal/config"
	"cryptodash/internal/coordinator"
	"cryptodash/internal/enrich"
	"cryptodash/internal/fetcher"
	"cryptodash/internal/ratelimit"
	"cryptodash/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.LogLevel)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// One limiter and one retry policy for every CoinGecko call
	limiter := ratelimit.New(map[ratelimit.API]ratelimit.Quota{
		ratelimit.APICoinGecko: {PerMinute: cfg.RateLimitPerMinute, Burst: cfg.RateLimitBurst},
	})
	retrying := fetcher.NewRetryingFetcher(
		coingecko.NewHTTPClient(cfg.CoinGeckoBaseURL, cfg.CoinGeckoAPIKey, cfg.RequestTimeout),
		fetcher.Policy{
			MaxRetries: cfg.RetryMax,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
		},
		fetcher.WithLimiter(limiter, ratelimit.APICoinGecko),
		fetcher.WithObserver(logAttempt),
	)
	client := coingecko.New(retrying)

	charts := chart.New(client, cfg.ChartDays, cfg.ChartCacheTTL)
	selection := chart.NewSelection(func(id string) {
		charts.Request(ctx, id)
	})

	coord := coordinator.New(client, enrich.New(client, cfg.Stagger), cfg.MarketsLimit, cfg.PollInterval)
	coord.OnUpdate(func(u coordinator.Update) {
		if u.Enriched {
			printSnapshot(os.Stdout, u.Snapshot, cfg.TickerLimit)
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-coord.Notices():
				printNotice(os.Stdout, n)
			}
		}
	}()

	if cfg.ListenAddr != "" {
		srv := server.New(ctx, coord, charts, selection, cfg.TickerLimit)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
				slog.Error("presentation bridge stopped", "error", err.Error())
				cancel()
			}
		}()
	}

	fmt.Println("Polling cryptocurrency markets...")
	fmt.Println("================================================")
	if err := coord.Run(ctx); err != nil {
		log.Fatalf("Coordinator failed: %v", err)
	}

	fmt.Println("================================================")
	fmt.Println("Stopped.")
}

// setupLogging installs a text handler at the configured level
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// logAttempt reports every upstream attempt for observability
func logAttempt(a fetcher.Attempt) {
	attrs := []any{
		"path", a.Path,
		"attempt", a.Index,
		"delay", a.Delay,
		"outcome", string(a.Outcome),
	}
	if a.Err != nil {
		attrs = append(attrs, "error", a.Err.Error())
	}
	slog.Debug("upstream attempt", attrs...)
}
