package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"org-access-core/backend/internal/audit"
	auditrepo "org-access-core/backend/internal/audit/repository"
	"org-access-core/backend/internal/cache"
	cachehandler "org-access-core/backend/internal/cache/handler"
	cachekafka "org-access-core/backend/internal/cache/kafka"
	"org-access-core/backend/internal/config"
	"org-access-core/backend/internal/db"
	"org-access-core/backend/internal/logging"
	membershiphandler "org-access-core/backend/internal/membership/handler"
	membershiprepo "org-access-core/backend/internal/membership/repository"
	membershipservice "org-access-core/backend/internal/membership/service"
	orghandler "org-access-core/backend/internal/organization/handler"
	orgrepo "org-access-core/backend/internal/organization/repository"
	orgservice "org-access-core/backend/internal/organization/service"
	"org-access-core/backend/internal/orgcontext"
	"org-access-core/backend/internal/platform/access"
	"org-access-core/backend/internal/platform/rbac"
	policyengine "org-access-core/backend/internal/policy/engine"
	"org-access-core/backend/internal/security"
	"org-access-core/backend/internal/server"
	"org-access-core/backend/internal/server/middleware"
	sessionhandler "org-access-core/backend/internal/session/handler"
	sessionrepo "org-access-core/backend/internal/session/repository"
	sessionservice "org-access-core/backend/internal/session/service"
	"org-access-core/backend/internal/telemetry"
	"org-access-core/backend/internal/telemetry/metrics"
	oteltelemetry "org-access-core/backend/internal/telemetry/otel"
	userhandler "org-access-core/backend/internal/user/handler"
	userrepo "org-access-core/backend/internal/user/repository"
	userservice "org-access-core/backend/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("otel", zap.Error(err))
	}
	providers.SetGlobal()
	instruments, err := metrics.New(providers.MeterProvider)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}
	events := oteltelemetry.NewEventEmitter(providers.LoggerProvider)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	orgs := orgrepo.NewPostgresRepository(conn)
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIP, logger)

	decider, policy := newDecider(ctx, cfg, logger)
	guard := rbac.NewGuard(sessions, users, memberships, decider,
		rbac.WithDirectoryTimeout(cfg.DirectoryReadTimeout()),
		rbac.WithMetrics(instruments))
	gate := access.NewGate(guard, auditLog)

	hub := cache.NewHub(cache.WithVisibility(guard), cache.WithHubMetrics(instruments), cache.WithHubLogger(logger))
	views, err := cache.NewViews(hub, 0, cfg.CacheClientSize)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	defer views.Close()

	var publisher cache.Publisher = hub
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kp := cachekafka.NewPublisher(brokers, cfg.CacheKafkaTopic, logger)
		defer kp.Close()
		publisher = cache.Fanout{hub, kp}
		reader := cachekafka.NewReader(brokers, cfg.CacheKafkaTopic, cfg.KafkaGroupID, uuid.NewString())
		go func() {
			if err := cachekafka.NewRelay(reader, hub, logger).Run(ctx); err != nil {
				logger.Error("cache: kafka relay stopped", zap.Error(err))
			}
		}()
		logger.Info("cache: relaying invalidations through kafka", zap.String("topic", cfg.CacheKafkaTopic))
	}

	sessionSvc := sessionservice.NewService(sessionservice.Deps{
		Users:       users,
		Sessions:    sessions,
		Memberships: memberships,
		Resolver:    orgcontext.NewResolver(memberships, cfg.DirectoryReadTimeout()),
		Hasher:      security.NewHasher(cfg.BcryptCost),
		Publisher:   publisher,
		Audit:       auditLog,
		Events:      events,
		TTL:         cfg.SessionLifetime(),
		Logger:      logger,
	})
	membershipSvc := membershipservice.NewService(membershipservice.Deps{
		Memberships: memberships,
		Users:       users,
		Orgs:        orgs,
		Reconciler:  sessionSvc,
		Publisher:   publisher,
		Audit:       auditLog,
		Logger:      logger,
	})
	orgSvc := orgservice.NewService(orgs, memberships, sessionSvc, publisher, auditLog, logger)
	userSvc := userservice.NewService(users, orgs, publisher, auditLog, logger)

	router := server.NewRouter(logger,
		sessionhandler.New(sessionSvc, gate, views, cfg.Env == "production"),
		orghandler.New(orgSvc, gate, views),
		membershiphandler.New(membershipSvc, gate, views),
		userhandler.New(userSvc, gate, views),
		cachehandler.New(hub, gate, logger),
	)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	hs := health.NewServer()
	readiness := server.NewReadiness(hs, conn, policy, logger)
	go readiness.Run(ctx)
	grpcSrv := server.NewGRPCServer(hs, logger)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		go func() {
			logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Fatal("grpc serve", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	// Give in-flight telemetry emits a chance to finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

// newDecider returns the organization access decider and, for OPA, its health checker.
func newDecider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (rbac.Decider, server.PolicyChecker) {
	if cfg.AccessPolicyEngine != config.PolicyEngineOPA {
		return rbac.BuiltinDecider{AdminOverridesOwner: cfg.AdminOverridesOwner}, nil
	}
	var src string
	if cfg.AccessPolicyFile != "" {
		var err error
		if src, err = policyengine.LoadPolicyFile(cfg.AccessPolicyFile); err != nil {
			logger.Fatal("policy", zap.Error(err))
		}
	}
	eval, err := policyengine.NewOPAEvaluator(ctx, policyengine.Options{
		Policy:              src,
		AdminOverridesOwner: cfg.AdminOverridesOwner,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("policy", zap.Error(err))
	}
	logger.Info("access policy: opa", zap.String("file", cfg.AccessPolicyFile))
	return eval, eval
}
