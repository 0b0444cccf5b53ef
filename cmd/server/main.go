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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/compliance_api/internal/config"
	"github.com/Skotchmaster/compliance_api/internal/es"
	"github.com/Skotchmaster/compliance_api/internal/events"
	"github.com/Skotchmaster/compliance_api/internal/httpserver"
	"github.com/Skotchmaster/compliance_api/internal/metrics"
	"github.com/Skotchmaster/compliance_api/internal/migrate"
	"github.com/Skotchmaster/compliance_api/internal/mykafka"
	"github.com/Skotchmaster/compliance_api/internal/oauth"
	"github.com/Skotchmaster/compliance_api/internal/repo"
	"github.com/Skotchmaster/compliance_api/internal/service"
	"github.com/Skotchmaster/compliance_api/pkg/cookies"
	"github.com/Skotchmaster/compliance_api/pkg/db"
	"github.com/Skotchmaster/compliance_api/pkg/hash"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
	"github.com/Skotchmaster/compliance_api/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/compliance_api/pkg/middleware/logging"
	metricsmw "github.com/Skotchmaster/compliance_api/pkg/middleware/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := migrateUp(rootCtx, cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	initCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer closeDB(gdb, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	authMetrics := metrics.New(reg)

	svc := &service.AuthService{
		Repo:    repo.New(gdb),
		Tokens:  cfg.TokenIssuer(),
		Hasher:  hash.Hasher{Cost: cfg.BcryptCost},
		Metrics: authMetrics,
		Events:  events.Nop{},
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis_close_error", "error", err)
			}
		}()
		pingCtx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		svc.States = oauth.NewRedisStateStore(rdb, cfg.OAuthStateTTL)
	} else {
		logger.Warn("notice: REDIS_ADDR not set, oauth state kept in process memory")
		svc.States = oauth.NewMemoryStateStore(cfg.OAuthStateTTL)
	}

	if cfg.GoogleEnabled() {
		svc.Google = oauth.NewGoogle(oauth.GoogleConfig{
			ClientID:      cfg.GoogleClientID,
			ClientSecret:  cfg.GoogleClientSecret,
			RedirectURL:   cfg.GoogleRedirectURI,
			OnStateChange: authMetrics.BreakerStateChange,
		})
	}

	var sinks events.Multi
	if len(cfg.KafkaBrokers) > 0 {
		prod := mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := prod.Close(); err != nil {
				logger.Error("kafka_close_error", "error", err)
			}
		}()
		pingCtx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		if err := mykafka.Ping(pingCtx, cfg.KafkaBrokers); err != nil {
			logger.Warn("kafka_unreachable", "error", err)
		}
		cancel()
		sinks = append(sinks, prod)
	}

	var audit *httpserver.AuditHTTP
	if cfg.ESURL != "" {
		esCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		index, err := openAuditIndex(esCtx, cfg)
		cancel()
		if err != nil {
			return err
		}
		sinks = append(sinks, index)
		audit = &httpserver.AuditHTTP{Index: index}
	}
	if len(sinks) > 0 {
		svc.Events = sinks
	}

	authH := &httpserver.AuthHTTP{
		Svc:         svc,
		Cookies:     cookies.Jar{Secure: cfg.CookieSecure},
		FrontendURL: cfg.FrontendURL,
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Secure(),
		middleware.CORSWithConfig(httpserver.CORSConfig(cfg.CORSOrigins)),
		metricsmw.New(reg, "compliance-api").Middleware(),
		loggingmw.RequestLoggerWithConfig(logger, loggingmw.Config{
			SkipPaths: []string{"/health/live", "/health/ready", "/metrics"},
		}),
	)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpserver.Register(e, &httpserver.Deps{
		Auth:     authH,
		Users:    &httpserver.UsersHTTP{Svc: svc},
		Sessions: &httpserver.SessionsHTTP{Svc: svc},
		Audit:    audit,
		Bearer:   httpserver.NewBearer(authH),
		CSRF:     csrf.Middleware(csrf.Config{Secure: cfg.CookieSecure, SessionCookies: []string{cookies.AccessName, cookies.RefreshName}}),
		Ready: func(ctx context.Context) error {
			return db.Ping(ctx, gdb)
		},
	})

	go svc.RunPruner(rootCtx, cfg.SessionPruneInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_started", "addr", cfg.HTTPAddr, "google", cfg.GoogleEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-rootCtx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func migrateUp(ctx context.Context, dsn string, logger *slog.Logger) error {
	sqlDB, err := migrate.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	_, err = migrate.Up(ctx, sqlDB, migrate.Migrations(), logger)
	return err
}

func openAuditIndex(ctx context.Context, cfg *config.Config) (*es.AuditIndex, error) {
	client, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword})
	if err != nil {
		return nil, err
	}
	index := es.NewAuditIndex(client, cfg.ESIndex)
	if err := index.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func closeDB(gdb *gorm.DB, logger *slog.Logger) {
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_error", "error", err)
	}
}
