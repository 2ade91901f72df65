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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/handler"
	"github.com/MdWarishh/visa-management-backend/internal/infrastructure/logger"
	"github.com/MdWarishh/visa-management-backend/internal/infrastructure/pdf"
	"github.com/MdWarishh/visa-management-backend/internal/infrastructure/storage"
	"github.com/MdWarishh/visa-management-backend/internal/observability/tracing"
	"github.com/MdWarishh/visa-management-backend/internal/security"
	"github.com/MdWarishh/visa-management-backend/internal/security/audit"
	"github.com/MdWarishh/visa-management-backend/internal/security/auth"
	"github.com/MdWarishh/visa-management-backend/internal/security/ratelimit"
	"github.com/MdWarishh/visa-management-backend/internal/service"
	"github.com/MdWarishh/visa-management-backend/internal/worker"
	"github.com/MdWarishh/visa-management-backend/pkg/config"
)

const loginPerMinute = 5

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting visa management server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "visa-management-backend",
		Environment: cfg.Environment,
		SampleRatio: 1,
	}, log)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Stores and render queue
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open stores", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.close()

	issuance, err := issuanceStatuses(cfg.IssuanceStatuses)
	if err != nil {
		log.Error("invalid issuance statuses", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Initialize services
	hasher := auth.NewHasher(cfg.BcryptCost)
	tokens := auth.NewTokenManager(cfg.JWTSecret, "visa-management")
	auditLogger := audit.NewLogger(log)
	resolver := security.NewTenancyResolver(log)

	guard := service.NewAccountGuard(st.principals, hasher, tokens, log,
		service.WithLockout(cfg.LockoutThreshold, cfg.LockoutDuration),
		service.WithSessionTTL(domain.TierOwner, cfg.SessionTTLOwner),
		service.WithSessionTTL(domain.TierAdmin, cfg.SessionTTLAdmin),
		service.WithSessionTTL(domain.TierUser, cfg.SessionTTLUser),
	)
	directory := service.NewPrincipalDirectory(st.principals, hasher, auditLogger, log)
	allocator := service.NewIdentifierAllocator(st.candidates, service.AllocatorConfig{
		Prefix:      cfg.VisaNumberPrefix,
		MaxAttempts: cfg.AllocatorMaxAttempts,
	}, log)
	ledger := service.NewCandidateLedger(st.candidates, allocator, st.queue, resolver, auditLogger,
		service.LedgerConfig{IssuanceStatuses: issuance}, log)

	if created, err := directory.SeedOwner(ctx, cfg.OwnerEmail, cfg.OwnerPassword); err != nil {
		log.Error("failed to seed owner account", slog.String("error", err.Error()))
		os.Exit(1)
	} else if created {
		log.Info("owner account seeded", slog.String("email", cfg.OwnerEmail))
	}

	// 6. Files: uploads and rendered artifacts
	uploads, err := storage.NewLocalStore(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		log.Error("failed to prepare upload directory", slog.String("error", err.Error()))
		os.Exit(1)
	}
	renderer, err := pdf.NewRenderer(cfg.ArtifactDir, cfg.CompanyName)
	if err != nil {
		log.Error("failed to prepare artifact directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Start render worker and sweeper in background
	renderWorker := worker.NewRenderWorker(st.queue, st.candidates, renderer, ledger, ledger.IsIssuanceEligible, log)
	sweeper := worker.NewArtifactSweeper(st.candidates, st.queue, ledger.IssuanceStatuses(), cfg.RenderSweepInterval, log)
	go renderWorker.Start(ctx)
	go sweeper.Start(ctx)

	// 8. Setup HTTP routes
	publicLimiter := ratelimit.NewLimiter(cfg.PublicRatePerMinute, cfg.PublicRateBurst)
	loginLimiter := ratelimit.NewLimiter(loginPerMinute, loginPerMinute)

	router := handler.NewRouter(handler.Deps{
		Guard:          guard,
		Directory:      directory,
		Ledger:         ledger,
		Resolver:       resolver,
		Uploads:        uploads,
		Health:         st.checks,
		PublicLimiter:  publicLimiter,
		LoginLimiter:   loginLimiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	// 9. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("store", st.kind),
		slog.String("render_queue", cfg.RenderQueue),
		slog.Int("public_rate_per_minute", cfg.PublicRatePerMinute),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop worker and sweeper
	publicLimiter.Stop()
	loginLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

func issuanceStatuses(names []string) ([]domain.Status, error) {
	out := make([]domain.Status, 0, len(names))
	for _, name := range names {
		s, ok := domain.ParseStatus(name)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}
