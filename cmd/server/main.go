package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	accessadapters "custody/internal/access/adapters"
	accesshandler "custody/internal/access/handler"
	accessservice "custody/internal/access/service"
	accessstore "custody/internal/access/store"
	"custody/internal/acl"
	"custody/internal/admin"
	authhandler "custody/internal/auth/handler"
	"custody/internal/auth/lockout"
	"custody/internal/auth/sender"
	authservice "custody/internal/auth/service"
	"custody/internal/auth/store/challenge"
	lockoutstore "custody/internal/auth/store/lockout"
	"custody/internal/auth/store/principal"
	"custody/internal/auth/store/revocation"
	"custody/internal/authz"
	"custody/internal/crypto/envelope"
	"custody/internal/crypto/signing"
	dochandler "custody/internal/document/handler"
	docservice "custody/internal/document/service"
	docstore "custody/internal/document/store"
	jwttoken "custody/internal/jwt_token"
	"custody/internal/keys"
	"custody/internal/platform/config"
	"custody/internal/platform/httpserver"
	"custody/internal/platform/logger"
	"custody/internal/platform/metrics"
	"custody/internal/platform/postgres"
	platformredis "custody/internal/platform/redis"
	httptransport "custody/internal/transport/http"
	"custody/pkg/platform/audit/publisher"
	auditmemory "custody/pkg/platform/audit/store/memory"
)

const (
	jwtIssuer        = "custody"
	jwtAudience      = "custody-api"
	auditBufferSize  = 1024
	revocationPurge  = time.Hour
	shutdownDeadline = 10 * time.Second
)

type stores struct {
	principals  authservice.PrincipalStore
	challenges  authservice.ChallengeStore
	revocations authservice.RevocationList
	lockouts    lockout.Store
	documents   docservice.Store
	requests    accessservice.Store
	purge       func(context.Context) (int64, error)
	health      map[string]httptransport.HealthCheck
	close       func()
}

// main wires configuration, key material, stores and handlers, then serves
// until SIGINT/SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	material, err := keys.Load(keys.NewFileKeyStore(cfg.KeyDir), keys.WithLogger(log))
	if err != nil {
		log.Error("key material unusable, refusing to start", "key_dir", cfg.KeyDir, "error", err)
		os.Exit(1)
	}
	cipher, err := envelope.New(material.SymmetricKey())
	if err != nil {
		log.Error("failed to build cipher", "error", err)
		os.Exit(1)
	}

	st, err := buildStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise stores", "error", err)
		os.Exit(1)
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	events := publisher.NewPublisher(auditmemory.NewInMemoryStore(),
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	defer events.Close()

	authorizer := authz.New(acl.MustDefault(), accessservice.NewApprovals(st.requests))
	accessSvc := accessservice.New(st.requests, accessadapters.NewDocumentFinder(st.documents), authorizer,
		accessservice.WithLogger(log),
		accessservice.WithAuditPublisher(events),
		accessservice.WithMetrics(m),
	)
	docSvc := docservice.New(st.documents, cipher, signing.New(material), authorizer,
		docservice.WithLogger(log),
		docservice.WithAuditPublisher(events),
		docservice.WithMetrics(m),
		docservice.WithAccessIndex(accessSvc),
		docservice.WithBatchConcurrency(cfg.BatchVerifyConcurrency),
		docservice.WithTracer(otel.Tracer("custody/document")),
	)

	locks, err := lockout.New(st.lockouts, lockout.WithLogger(log), lockout.WithMetrics(m))
	if err != nil {
		log.Error("failed to build lockout service", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience, cfg.SessionTTL)
	authSvc := authservice.New(st.principals, st.challenges, st.revocations, jwtService, sender.NewDevSender(log), authorizer,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(events),
		authservice.WithMetrics(m),
		authservice.WithOTPTTL(cfg.OTPTTL),
		authservice.WithLockout(locks),
	)

	if cfg.SeedCustodianEmail != "" {
		if _, err := authSvc.EnsureCustodian(ctx, cfg.SeedCustodianEmail, cfg.SeedCustodianPassword); err != nil {
			log.Error("failed to seed custodian", "error", err)
			os.Exit(1)
		}
	}

	authH := authhandler.New(authSvc, log)
	docH := dochandler.New(docSvc, material, log)
	router := httptransport.NewRouter(httptransport.Router{
		Logger:        log,
		Validator:     jwttoken.NewJWTServiceAdapter(jwtService),
		Revocations:   authSvc,
		Public:        []httptransport.PublicRouteRegistrar{authH, docH},
		Authenticated: []httptransport.RouteRegistrar{authH, docH, accesshandler.New(accessSvc, log)},
		Admin:         []httptransport.RouteRegistrar{admin.New(authSvc, docSvc, events, authorizer, log)},
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthChecks:  st.health,
	})

	if st.purge != nil {
		go purgeRevocations(ctx, st.purge, log)
	}

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("starting custody service", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// buildStores picks Postgres when DATABASE_URL is set and Redis for the
// challenge store and revocation list when REDIS_URL is set. Anything left
// unconfigured falls back to in-memory.
func buildStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	st := &stores{
		principals:  principal.New(),
		challenges:  challenge.New(),
		revocations: revocation.NewInMemoryTRL(),
		lockouts:    lockoutstore.New(),
		documents:   docstore.NewInMemory(),
		requests:    accessstore.NewInMemory(),
		health:      map[string]httptransport.HealthCheck{},
	}
	var closers []func()
	st.close = func() {
		for _, c := range closers {
			c()
		}
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			st.close()
			return nil, err
		}
		st.principals = principal.NewPostgres(pool)
		st.lockouts = lockoutstore.NewPostgres(pool)
		st.documents = docstore.NewPostgres(pool)
		st.requests = accessstore.NewPostgres(pool)
		trl := revocation.NewPostgresTRL(pool)
		st.revocations = trl
		st.purge = trl.PurgeExpired
		st.health["postgres"] = pool.Ping
		log.Info("using postgres stores")
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		st.close()
		return nil, err
	}
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
		st.challenges = challenge.NewRedis(redisClient.Client)
		st.revocations = revocation.NewRedisTRL(redisClient.Client)
		st.purge = nil
		st.health["redis"] = redisClient.Health
		log.Info("using redis challenge store and revocation list")
	}
	return st, nil
}

func purgeRevocations(ctx context.Context, purge func(context.Context) (int64, error), log *slog.Logger) {
	ticker := time.NewTicker(revocationPurge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				log.WarnContext(ctx, "revocation purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "purged expired revocations", "count", n)
			}
		}
	}
}
