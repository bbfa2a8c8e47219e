package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"consentire/internal/audit"
	"consentire/internal/auth"
	"consentire/internal/compliance"
	consentservice "consentire/internal/consent/service"
	consentstore "consentire/internal/consent/store"
	"consentire/internal/consent/sweeper"
	"consentire/internal/governance"
	"consentire/internal/ledger"
	"consentire/internal/platform/config"
	"consentire/internal/platform/database"
	"consentire/internal/platform/logger"
	platformredis "consentire/internal/platform/redis"
	"consentire/internal/proof"
	"consentire/internal/registry"
	httptransport "consentire/internal/transport/http"
	"consentire/internal/user"
	"consentire/migrations"
)

// main wires dependencies and runs the server lifecycle. Business logic lives
// in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing consentire",
		"addr", cfg.Addr,
		"database", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
	)

	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrations.Apply(ctx, pool.DB()); err != nil {
			cancel()
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	// Stores. An unset DATABASE_URL selects the in-memory implementations,
	// which is the development and test configuration.
	var (
		consents   consentstore.Store
		auditTrail audit.Store
		ctrlStore  registry.Store
		userStore  user.Store
	)
	if pool != nil {
		consents = consentstore.NewPostgres(pool.DB())
		auditTrail = audit.NewPostgres(pool.DB())
		ctrlStore = registry.NewPostgresStore(pool.DB())
		userStore = user.NewPostgresStore(pool.DB())
	} else {
		consents = consentstore.New()
		auditTrail = audit.NewInMemoryStore()
		ctrlStore = registry.NewMemoryStore()
		userStore = user.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditTrail,
		audit.WithAsyncBuffer(cfg.AuditBufferSize),
		audit.WithRecorderLogger(log),
	)

	registryOpts := []registry.Option{registry.WithLogger(log)}
	if rdb != nil {
		cache := registry.NewRedisCache(rdb.Client, cfg.ControllerCacheTTL, registry.NewCacheMetrics())
		registryOpts = append(registryOpts, registry.WithCache(cache))
	}
	controllers := registry.NewService(ctrlStore, registryOpts...)

	users := user.NewService(userStore, user.WithLogger(log))

	oracle := proof.NewMockOracle()
	anchor := ledger.NewMockClient()

	reconciler := ledger.NewReconciler(anchor, consents, log,
		ledger.WithQueueSize(cfg.LedgerQueueSize))

	consent := consentservice.NewService(consents, controllers, oracle, anchor,
		consentservice.NewHashRevocationVerifier(users),
		consentservice.WithAuditor(recorder),
		consentservice.WithReconciler(reconciler),
		consentservice.WithLogger(log),
		consentservice.WithDefaultTTL(cfg.DefaultConsentTTL),
	)

	sweep := sweeper.New(consents,
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithAuditor(recorder),
		sweeper.WithReconciler(reconciler),
		sweeper.WithLogger(log),
	)

	tokens := auth.NewTokenService(cfg.JWTSigningKey, "consentire", cfg.TokenTTL)

	health := map[string]httptransport.HealthChecker{}
	if pool != nil {
		health["database"] = pool.Health
	}
	if rdb != nil {
		health["redis"] = rdb.Health
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:     log,
		Tokens:     tokens,
		Users:      users,
		Registry:   controllers,
		Consent:    consent,
		Compliance: compliance.NewService(consents, controllers),
		Governance: governance.NewService(governance.NewMemoryStore(), governance.WithLogger(log)),
		AuditTrail: auditTrail,

		RequestTimeout: cfg.RequestTimeout,
		Health:         health,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return reconciler.Run(ctx) })
	g.Go(func() error { return sweep.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
	}

	recorder.Close()
	if rdb != nil {
		rdb.Close() //nolint:errcheck // best-effort cleanup on shutdown
	}
	if err := pool.Close(); err != nil {
		log.Error("closing database pool", "error", err)
	}

	log.Info("server stopped")
}
