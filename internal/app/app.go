// Package app wires the application together: configuration, database,
// caches, event publishing, domain services, and the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/timeseats/internal/api"
	"github.com/xenking/timeseats/internal/domain/inventory"
	"github.com/xenking/timeseats/internal/domain/order"
	"github.com/xenking/timeseats/internal/domain/product"
	"github.com/xenking/timeseats/internal/domain/slot"
	"github.com/xenking/timeseats/internal/domain/ticket"
	"github.com/xenking/timeseats/internal/events"
	"github.com/xenking/timeseats/internal/redisx"
	"github.com/xenking/timeseats/internal/repository"
	"github.com/xenking/timeseats/pkg/health"
	"github.com/xenking/timeseats/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Lifecycle event publisher. A no-op sink when Kafka is not configured.
	var pub events.Publisher = events.Nop{}
	var kafkaPub *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, 256, lg)
		kafkaPub.Start(ctx)
		pub = kafkaPub
	}
	pub, err = events.NewMetricsPublisher(pub, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create event metrics")
	}

	// Optional Redis cache for the current-slot lookup.
	var slotCache *redisx.SlotCache
	if cfg.Redis.Addr != "" {
		rdb := redisx.New(cfg.Redis.Addr)
		defer func() { _ = rdb.Close() }()
		slotCache = redisx.NewSlotCache(rdb, cfg.Redis.TTL)
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	inventoryRepo := repository.NewInventoryRepository(pool)
	slotRepo := repository.NewSlotRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)

	// Domain services.
	catalog := product.NewService(productRepo, inventoryRepo)
	ledger := inventory.NewLedger(inventoryRepo, productRepo)
	scheduler := slot.NewScheduler(slotRepo, inventoryRepo,
		slot.WithLookAhead(cfg.Slots.LookAhead),
	)

	unpaid := make([]ticket.PaymentMethod, len(cfg.Tickets.UnpaidMethods))
	for i, m := range cfg.Tickets.UnpaidMethods {
		unpaid[i] = ticket.PaymentMethod(m)
	}
	issuer := ticket.NewIssuer(ticketRepo, ticket.NewPaymentPolicy(unpaid...))

	orderSvc := order.NewService(productRepo, inventoryRepo, orderRepo, issuer, pub)

	// HTTP handlers: health endpoints + API routes on one server.
	h := api.NewHandler(catalog, ledger, scheduler, orderSvc, issuer, slotCache)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "timeseats-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	if kafkaPub != nil {
		kafkaPub.WaitClosed()
	}
	return nil
}
