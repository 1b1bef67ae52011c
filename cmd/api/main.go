package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/background"
	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/config"
	"github.com/BradenHooton/rampart/internal/database"
	"github.com/BradenHooton/rampart/internal/handlers"
	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/lockout"
	"github.com/BradenHooton/rampart/internal/metrics"
	middlewareCustom "github.com/BradenHooton/rampart/internal/middleware"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
	"github.com/BradenHooton/rampart/internal/repositories"
	"github.com/BradenHooton/rampart/internal/routes"
	"github.com/BradenHooton/rampart/internal/services"
	"github.com/BradenHooton/rampart/internal/store"
	pkgauth "github.com/BradenHooton/rampart/pkg/auth"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
	pkglogger "github.com/BradenHooton/rampart/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Backend),
	)

	clk := clock.System{}

	// Database is optional unless the postgres counter store is selected
	var db *database.DB
	if cfg.Store.Backend == config.StorePostgres || cfg.Database.Password != "" {
		db, err = database.NewConnection(context.Background(), &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = database.Migrate(ctx, cfg.Database.DSN(), logger)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Counter and lock store
	counters, sweeper, err := newStore(cfg, db, clk)
	if err != nil {
		logger.Error("failed to initialize counter store", slog.Any("error", err))
		os.Exit(1)
	}
	defer counters.Close()

	// Keys derived from the master secret
	master := []byte(cfg.Auth.MasterSecret)
	signingKey, err := auth.DeriveKey(master, "rampart token signing", 32)
	if err != nil {
		logger.Error("failed to derive signing key", slog.Any("error", err))
		os.Exit(1)
	}
	secretKey, err := auth.DeriveKey(master, "rampart totp secrets", 32)
	if err != nil {
		logger.Error("failed to derive secret encryption key", slog.Any("error", err))
		os.Exit(1)
	}

	totpManager, err := auth.NewTOTPManager(secretKey, cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}
	backupHasher, err := auth.NewBackupCodeHasher(master)
	if err != nil {
		logger.Error("failed to initialize backup code hasher", slog.Any("error", err))
		os.Exit(1)
	}
	tokenManager := auth.NewTokenManager(signingKey, cfg.Auth.AccessTokenExpiry, cfg.TwoFactor.ChallengeExpiry, clk)

	// Initialize repositories
	var principalRepo repositories.PrincipalRepository
	var activityRepo interface {
		services.ActivityLogRepository
		background.ActivityTrimmer
	}
	if db != nil {
		principalRepo = repositories.NewPrincipalRepository(db, totpManager)
		activityRepo = repositories.NewActivityLogRepository(db)
	} else {
		logger.Warn("no database configured, principals and activity are kept in memory")
		principalRepo = repositories.NewMemoryPrincipalRepository()
		activityRepo = repositories.NewMemoryActivityLogRepository()
	}

	// Event sinks
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	activityService := services.NewActivityService(activityRepo, logger)
	sinks := policy.MultiSink{
		pkglogger.NewAuditLogger(logger, cfg.Server.Env),
		activityService,
		recorder,
	}
	if cfg.Alert.Enabled {
		alerts, err := services.NewSESAlertService(cfg.Alert.Region, cfg.Alert.FromEmail, cfg.Alert.ToEmail, logger)
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		defer alerts.Wait()
		sinks = append(sinks, alerts)
	}

	// Policies
	rules, ruleErrs, err := inspector.LoadRuleFile(cfg.WAF.RulesFile)
	if err != nil {
		logger.Error("failed to load rules file", slog.Any("error", err))
		os.Exit(1)
	}
	for _, ruleErr := range ruleErrs {
		sinks.EmitEvent(context.Background(), models.EventRuleError, map[string]any{"error": ruleErr.Error()})
	}

	policies, err := policy.FromConfig(cfg, rules, policy.Deps{
		Counters: counters,
		Locks:    lockout.NewManager(counters, cfg.Store.Timeout),
		Sink:     sinks,
		Clock:    clk,
		Timeout:  cfg.Store.Timeout,
	})
	if err != nil {
		logger.Error("failed to build policies", slog.Any("error", err))
		os.Exit(1)
	}
	engine := policy.NewEngine(policies, recorder)
	logger.Info("policies enabled", slog.Any("policies", policies.Names()))

	// Initialize services
	mfaService := services.NewSecondFactorService(
		principalRepo,
		auth.NewVerifier(clk),
		backupHasher,
		totpManager,
		sinks,
		logger,
		services.SecondFactorConfig{
			EnforcedRoles:   cfg.TwoFactor.EnforcedRoles,
			BackupCodeCount: cfg.TwoFactor.BackupCodeCount,
		},
	)
	authService := services.NewAuthService(principalRepo, tokenManager, mfaService, logger)

	// Timing delay for failed logins
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		MinDelay: cfg.Brute.FailureDelayMin,
		MaxDelay: cfg.Brute.FailureDelayMax,
	})

	// Bootstrap first admin principal if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminPrincipal(ctx, principalRepo, logger); err != nil {
		logger.Error("failed to ensure admin principal", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	checks := map[string]handlers.Pinger{"store": counters}
	if db != nil {
		checks["database"] = db
	}
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, engine, timingDelay, logger),
		MFA:      handlers.NewMFAHandler(mfaService, logger),
		Comments: handlers.NewCommentHandler(engine),
		Activity: handlers.NewActivityHandler(activityService, logger),
		Health:   handlers.NewHealthHandler(checks),
		Metrics:  metrics.Handler(registry),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.Client(pkghttp.NewIPConfig(strings.Fields(cfg.Proxy.TrustedProxies)), auth.PrivilegedFunc(tokenManager)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.Guard(engine, middlewareCustom.GuardConfig{
		MaxBodyBytes: cfg.WAF.MaxBodyBytes,
		Logger:       logger,
	}))
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, h, tokenManager, middlewareCustom.DefaultFloodLimit())

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(sweeper, activityRepo, repositories.ActivityLogRetention, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newLogger writes JSON logs to stdout, and also to a rotated file when LOG_FILE is set
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

// newStore opens the configured counter store. The sweeper is non-nil only
// for backends whose expired rows must be deleted explicitly.
func newStore(cfg *config.Config, db *database.DB, clk clock.Clock) (store.Store, background.ExpiredSweeper, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Store.KeyPrefix,
		}, clk)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.StorePostgres:
		s := store.NewPostgresStore(db.Pool, clk)
		return s, s, nil
	default:
		return store.NewMemoryStore(clk), nil, nil
	}
}

// ensureAdminPrincipal creates the first admin if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminPrincipal(ctx context.Context, repo repositories.PrincipalRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin creation")
		return nil
	}

	// Check if admin already exists
	_, err := repo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin principal already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = repo.Create(ctx, &models.Principal{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Roles:        []string{auth.RoleAdmin},
	})
	if err != nil {
		return fmt.Errorf("failed to create admin principal: %w", err)
	}

	logger.Info("admin principal created")
	return nil
}
