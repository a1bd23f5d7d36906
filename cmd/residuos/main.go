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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/residuos-hospitalarios/residuos/cmd/residuos/cli"
	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/app"
	"github.com/residuos-hospitalarios/residuos/internal/auth"
	"github.com/residuos-hospitalarios/residuos/internal/catalog"
	"github.com/residuos-hospitalarios/residuos/internal/dashboard"
	"github.com/residuos-hospitalarios/residuos/internal/observability"
	"github.com/residuos-hospitalarios/residuos/internal/platform/cache"
	"github.com/residuos-hospitalarios/residuos/internal/platform/db"
	"github.com/residuos-hospitalarios/residuos/internal/records"
	recordshttp "github.com/residuos-hospitalarios/residuos/internal/records/http"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/users"
	"github.com/residuos-hospitalarios/residuos/internal/view"
	"github.com/residuos-hospitalarios/residuos/jobs"
	"github.com/residuos-hospitalarios/residuos/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, logger, os.Args[1], os.Args[2:]))
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := connectRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rules, err := cfg.Rules()
	if err != nil {
		logger.Error("access rules", slog.Any("error", err))
		os.Exit(1)
	}
	cat := catalog.Default()
	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	audit := shared.NewAuditLogger(pool)

	navigation := view.NewNavigation(cat, rules)
	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("load templates", slog.Any("error", err))
		os.Exit(1)
	}
	templates = templates.WithNavigator(navigation)

	usersRepo := users.NewRepository(pool, sessionManager)
	roleLookup := access.NewCachedRoleLookup(usersRepo, redisClient, cfg.RoleCacheTTL, logger)
	gate, err := access.NewGate(access.GateConfig{
		Rules:    rules,
		Sessions: sessionManager,
		Roles:    roleLookup,
		Logger:   logger,
		Observer: metrics,
	})
	if err != nil {
		logger.Error("init access gate", slog.Any("error", err))
		os.Exit(1)
	}
	usersService := users.NewService(usersRepo, roleLookup, audit, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewRepository(pool), redisClient, jobClient, auth.Options{
		ResetTTL:      cfg.PasswordResetTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	}, logger)

	recordsService := records.NewService(records.NewPGStore(pool), audit, logger)

	var (
		pdfRenderer recordshttp.DocumentRenderer
		pdfPinger   dashboard.Pinger
	)
	if cfg.GotenbergURL != "" {
		pdfClient := report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)
		pdfRenderer, pdfPinger = pdfClient, pdfClient
	}

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(cat, recordsService, usersService, pdfPinger, dashboardCache, logger)
	recordsService.NotifyChanges(dashboardService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Gate:             gate,
		AuthHandler:      auth.NewHandler(logger, authService, templates, sessionManager, csrfManager),
		UsersHandler:     users.NewHandler(logger, usersService, templates, csrfManager),
		RecordsHandler:   recordshttp.NewHandler(logger, cat, recordsService, templates, csrfManager, pdfRenderer),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, rules, roleLookup, navigation.All(), templates, csrfManager),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("access_variant", string(rules.Variant)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// connectRedis returns a client even when the first ping fails; sessions and
// caches degrade until Redis comes back.
func connectRedis(ctx context.Context, cfg *app.Config, logger *slog.Logger) *redis.Client {
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
		return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return client
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, name string, args []string) int {
	switch name {
	case "jobs":
		c := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		return c.JobsCommand(ctx, args, os.Stdout, os.Stderr)
	case "crear-admin":
		pool, err := pgxpool.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		svc := users.NewService(users.NewRepository(pool, nil), nil, shared.NewAuditLogger(pool), logger)
		return cli.CreateAdminCommand(ctx, svc, args, os.Stdout, os.Stderr)
	default:
		logger.Error("unknown command", slog.String("command", name))
		return 2
	}
}
