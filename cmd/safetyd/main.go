package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"safety-monitor-backend/config"
	"safety-monitor-backend/internal/alerting"
	"safety-monitor-backend/internal/api"
	"safety-monitor-backend/internal/classifier"
	"safety-monitor-backend/internal/db"
	"safety-monitor-backend/internal/events"
	"safety-monitor-backend/internal/live"
	"safety-monitor-backend/internal/llm"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/notification"
	"safety-monitor-backend/internal/policy"
	"safety-monitor-backend/internal/store"
	"safety-monitor-backend/internal/tsdb"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := logx.New(os.Stdout, "safetyd", cfg.Log.Env, cfg.Log.Level)
	slog.SetDefault(logger)
	logger.Info("config_loaded", slog.String("path", configPath))

	if err := run(cfg, logger); err != nil {
		logger.Error("safetyd_failed", logx.Err(err))
		os.Exit(1)
	}
	logger.Info("server_stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)
	logger.Info("database_ready", slog.String("driver", cfg.Database.Driver))

	thresholds, err := policy.FromConfig(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	risk, err := classifier.New(cfg.Classifier, thresholds)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if risk == nil {
		logger.Warn("classifier_disabled")
	}

	var oracle alerting.Completer
	if cfg.Summary.Enabled() {
		oracle = llm.New(cfg.Summary.Endpoint, cfg.Summary.APIKey, cfg.Summary.Model, cfg.Summary.Timeout)
	} else {
		logger.Warn("summary_disabled")
	}
	summarizer := alerting.NewSummarizer(appStore, oracle, alerting.SummaryOptions{
		Temperature: cfg.Summary.Temperature,
		MaxTokens:   cfg.Summary.MaxTokens,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := live.NewHub(logger)
	go hub.Run(ctx)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Warn("push_disabled")
	}
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions)
	if cfg.Summary.AutoEnrich && summarizer.Enabled() {
		pool.WithSummarizer(summarizer)
	}
	pool.Start(ctx)

	notifiers := alerting.MultiNotifier{hub, pool}

	var publisher *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := events.NewWriter(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka writer: %w", err)
		}
		publisher = events.NewPublisher(writer, cfg.Kafka.Topic, logger)
		go publisher.Run(ctx)
		notifiers = append(notifiers, publisher)
	}

	genOpts := []alerting.Option{
		alerting.WithClassifier(risk),
		alerting.WithNotifier(notifiers),
		alerting.WithHistoryWindow(cfg.Alerting.HistoryWindow),
	}
	recs := cache.New(24*time.Hour, time.Hour)
	genOpts = append(genOpts, alerting.WithRecommendations(recs))

	var mirror *tsdb.Mirror
	if cfg.Influx.URL != "" {
		mirror, err = tsdb.NewMirror(cfg.Influx, logger)
		if err != nil {
			return fmt.Errorf("influx mirror: %w", err)
		}
		genOpts = append(genOpts, alerting.WithMirror(mirror))
	}

	generator := alerting.NewGenerator(appStore, thresholds, genOpts...)
	lifecycle := alerting.NewLifecycle(appStore, notifiers)

	metrics.Register()
	router := api.NewRouter(cfg.Server, api.Deps{
		Store:           appStore,
		Generator:       generator,
		Lifecycle:       lifecycle,
		Summarizer:      summarizer,
		Recommendations: recs,
		WebPush:         webpushOptions,
		Hub:             hub,
		Upgrader:        live.NewUpgrader(cfg.Server.AllowedWSOrigins),
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_listening", slog.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown_requested", slog.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", logx.Err(err))
	}

	// Background sinks stop only after in-flight requests have finished.
	cancel()
	if publisher != nil {
		select {
		case <-publisher.Done():
		case <-shutdownCtx.Done():
			logger.Warn("kafka_flush_timeout")
		}
	}
	if mirror != nil {
		mirror.Close()
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}
