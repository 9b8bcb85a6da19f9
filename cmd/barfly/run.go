package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"barfly/internal/aggregate"
	"barfly/internal/backend"
	"barfly/internal/config"
	"barfly/internal/consumer"
	"barfly/internal/dedup"
	"barfly/internal/deliver"
	"barfly/internal/domain"
	"barfly/internal/gateway"
	"barfly/internal/history"
	"barfly/internal/intent"
	"barfly/internal/knowledge"
	"barfly/internal/logstream"
	"barfly/internal/metrics"
	"barfly/internal/ratelimit"
	"barfly/internal/respond"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the pipeline (log consumer + delivery gateway)",
		Long:  "Subscribes to the message log and answers inbound messages. Press Ctrl+C to stop.",
		RunE:  runPipeline,
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = newLogger(cfg.General)
	instanceID := uuid.NewString()
	logger.Info("starting barfly", "version", version, "instance", instanceID, "config", cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	defer store.Close()

	gw, err := buildGateway(cfg.Gateway)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	log, err := logstream.New(logstream.Config{
		Addr:     cfg.Log.Addr,
		Password: cfg.Log.Password,
		DB:       cfg.Log.DB,
		Streams:  cfg.Log.Streams,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("message log: %w", err)
	}

	collector := metrics.NewCollector()
	pm := metrics.NewPipeline(collector)

	sent := dedup.New(cfg.Dedup.Capacity, cfg.Dedup.Retention())

	limiter := ratelimit.New(ratelimit.Config{
		MaxPerWindow: cfg.Limits.MaxPerWindow,
		Window:       cfg.Limits.Window(),
		Cooldown:     cfg.Limits.Cooldown(),
		Logger:       logger,
	})
	limiter.StartSweeping(ctx)

	aggregator := aggregate.New(aggregate.Config{
		Store:        store,
		Providers:    buildProviders(cfg.Knowledge, logger),
		HistoryLimit: cfg.Store.HistoryLimit,
		Logger:       logger,
	})

	generator := respond.New(respond.Config{
		Backend: backend.NewOpenAI(backend.Config{
			APIKey:  cfg.Backend.APIKey,
			APIBase: cfg.Backend.APIBase,
			Model:   cfg.Backend.Model,
			Timeout: cfg.Backend.Timeout(),
			Logger:  logger,
		}),
		Timeout:     cfg.Backend.Timeout(),
		MaxChars:    cfg.Delivery.MaxChars,
		MaxTokens:   cfg.Backend.MaxTokens,
		Temperature: cfg.Backend.Temperature,
		Logger:      logger,
	})

	orchestrator := deliver.New(deliver.Config{
		Gateway:     gw,
		Sent:        sent,
		MaxAttempts: cfg.Delivery.MaxAttempts,
		BaseDelay:   cfg.Delivery.BaseDelay(),
		MaxDelay:    cfg.Delivery.MaxDelay(),
		Logger:      logger,
	})

	processor := consumer.NewProcessor(consumer.ProcessorConfig{
		Limiter:      limiter,
		Classifier:   intent.NewClassifier(),
		Aggregator:   aggregator,
		Generator:    generator,
		Orchestrator: orchestrator,
		Store:        store,
		Sent:         sent,
		BotID:        cfg.General.BotID,
		Metrics:      pm,
		Logger:       logger,
	})

	loop := consumer.NewLoop(consumer.Config{
		Log:             log,
		Sent:            sent,
		Process:         processor.Process,
		MaxMessageAge:   cfg.Log.MaxMessageAge(),
		ClockSkewBuffer: cfg.Log.ClockSkewBuffer(),
		QueueSize:       cfg.Log.QueueSize,
		Metrics:         pm,
		Logger:          logger,
	})
	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	logger.Info("pipeline started. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Stop()
		if closer, ok := gw.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("gateway close failed", "err", err)
			}
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
	}

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func newLogger(cfg config.GeneralConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func buildGateway(cfg config.GatewayConfig) (domain.DeliveryGateway, error) {
	switch cfg.Kind {
	case "discord":
		return gateway.NewDiscord(gateway.DiscordConfig{
			Token:  cfg.Discord.Token,
			Logger: logger,
		})
	default:
		return gateway.NewTelegram(gateway.TelegramConfig{
			Token:     cfg.Telegram.Token,
			ParseMode: cfg.Telegram.ParseMode,
			Logger:    logger,
		})
	}
}

func buildProviders(cfg config.KnowledgeConfig, logger *slog.Logger) []domain.KnowledgeProvider {
	var providers []domain.KnowledgeProvider
	if cfg.OddsFeed.Enabled {
		providers = append(providers, knowledge.NewOddsFeed(knowledge.OddsFeedConfig{
			BaseURL:  cfg.OddsFeed.BaseURL,
			APIKey:   cfg.OddsFeed.APIKey,
			CacheTTL: cfg.CacheTTL(),
			Logger:   logger,
		}))
	}
	if cfg.VenueBuzz.Enabled {
		providers = append(providers, knowledge.NewVenueBuzz(knowledge.VenueBuzzConfig{
			BaseURL:  cfg.VenueBuzz.BaseURL,
			APIKey:   cfg.VenueBuzz.APIKey,
			CacheTTL: cfg.CacheTTL(),
			Logger:   logger,
		}))
	}
	return providers
}
