package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"comanda/internal/adapters/chat"
	"comanda/internal/adapters/config"
	"comanda/internal/adapters/errors/noop"
	"comanda/internal/adapters/errors/sentry"
	"comanda/internal/adapters/orders"
	"comanda/internal/api/health"
	"comanda/internal/domain/customer"
	"comanda/internal/domain/order"
	"comanda/internal/metrics"
	"comanda/internal/repository/memory"
	"comanda/internal/services/dispatch"
	"comanda/internal/services/flow"
	"comanda/internal/services/legacy_order"
	"comanda/internal/services/survey"
	"comanda/internal/workers"
	"comanda/pkg/errors"
	"comanda/pkg/logger"
	"comanda/pkg/templates"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Transport and external API clients
	chatClient, err := chat.NewClient(chat.Config{
		GatewayURL:     cfg.Chat.GatewayURL,
		Token:          cfg.Chat.Token,
		HTTPTimeout:    cfg.Chat.HTTPTimeout,
		RateLimitRate:  cfg.Chat.RateLimitRate,
		RateLimitBurst: cfg.Chat.RateLimitBurst,
	}, log)
	if err != nil {
		log.Fatalf("Failed to create chat client: %v", err)
	}

	ordersClient, err := orders.NewClient(orders.Config{
		BaseURL:     cfg.Orders.BaseURL,
		APIKey:      cfg.Orders.APIKey,
		CallTimeout: cfg.Orders.CallTimeout,
	}, log)
	if err != nil {
		log.Fatalf("Failed to create orders client: %v", err)
	}

	var redisClient *redis.Client
	var directory orders.Directory = ordersClient
	var profileCache *orders.CachedDirectory
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		profileCache = orders.NewCachedDirectory(ordersClient, redisClient, cfg.Session.ProfileCacheTTL, log)
		directory = profileCache
		log.Info("Profile cache enabled")
	}

	// Core services
	store := memory.NewSessionStore(memory.SystemClock(), log)
	defer store.Close()

	tmpl := templates.Get()

	flowCtrl := flow.NewController(store, chatClient, ordersClient, tmpl,
		memory.SystemClock(), cfg.Session.CompletionGrace, log)
	if profileCache != nil {
		flowCtrl.SetProfileInvalidator(profileCache.Invalidate)
	}
	surveySvc := survey.NewService(chatClient, tmpl, memory.SystemClock(), log)
	legacySvc := legacy_order.NewService(chatClient, ordersClient, tmpl, log)

	dispatcher := dispatch.NewService(store, flowCtrl, surveySvc, legacySvc,
		customerAPI{directory: directory, client: ordersClient},
		chatClient, tmpl, cfg.Orders.CatalogURL, log)

	// Background workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewSessionSweeper(
		store, surveySvc, legacySvc,
		cfg.Session.SweepInterval, cfg.Session.IdleTimeout, cfg.Session.SurveyTTL,
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	// HTTP surface: inbound webhook, survey opening, health, metrics
	webhook := chat.NewWebhookHandler(func(msg chat.InboundMessage) {
		dispatcher.HandleInbound(context.Background(), msg)
	}, log)

	healthHandler := health.New(log, redisClient, store, cfg.App.Name, version)

	mux := http.NewServeMux()
	mux.Handle("POST /webhook", webhook)
	mux.HandleFunc("POST /surveys/{phone}/open", func(w http.ResponseWriter, r *http.Request) {
		if err := surveySvc.Open(r.Context(), r.PathValue("phone")); err != nil {
			log.Errorw("Failed to open survey", "error", err)
			http.Error(w, "failed to open survey", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /health", healthHandler.HandleLiveness)
	mux.HandleFunc("GET /health/status", healthHandler.HandleStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	waitForShutdown(cancel, server, scheduler, errorTracker, cfg, log)
}

// customerAPI combines the (possibly cached) profile directory with the
// raw orders client for last-order lookups.
type customerAPI struct {
	directory orders.Directory
	client    *orders.Client
}

func (c customerAPI) GetCustomerByPhone(ctx context.Context, phone string) (*customer.Profile, error) {
	return c.directory.GetCustomerByPhone(ctx, phone)
}

func (c customerAPI) GetLastOrder(ctx context.Context, phone string) (*order.OrderData, error) {
	return c.client.GetLastOrder(ctx, phone)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains everything
func waitForShutdown(
	cancel context.CancelFunc,
	server *http.Server,
	scheduler *workers.Scheduler,
	errorTracker errors.Tracker,
	cfg *config.Config,
	log *logger.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Warnf("Worker shutdown: %v", err)
	}
	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnf("Error tracker flush: %v", err)
	}

	log.Info("Shutdown complete")
}
