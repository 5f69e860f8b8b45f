package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/azuminxx/simple-redger-sub000/config"
	"github.com/azuminxx/simple-redger-sub000/internal/repositories/finding"
	"github.com/azuminxx/simple-redger-sub000/pkg/audit"
	"github.com/azuminxx/simple-redger-sub000/pkg/database"
	"github.com/azuminxx/simple-redger-sub000/pkg/events"
	"github.com/azuminxx/simple-redger-sub000/pkg/fetcher"
	"github.com/azuminxx/simple-redger-sub000/pkg/inject"
	"github.com/azuminxx/simple-redger-sub000/pkg/kafka"
	"github.com/azuminxx/simple-redger-sub000/pkg/merging"
	"github.com/azuminxx/simple-redger-sub000/pkg/middleware"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/redis"
	cacheroutes "github.com/azuminxx/simple-redger-sub000/pkg/routes/cache"
	findingroutes "github.com/azuminxx/simple-redger-sub000/pkg/routes/findings"
	"github.com/azuminxx/simple-redger-sub000/pkg/routes/health"
	searchroutes "github.com/azuminxx/simple-redger-sub000/pkg/routes/search"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
	"github.com/azuminxx/simple-redger-sub000/pkg/search"
	"github.com/azuminxx/simple-redger-sub000/pkg/startup"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the linkage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingCfg := cfg.Tracing()
	tracingCfg.Version = version
	shutdownTracing, err := tracing.Setup(ctx, tracingCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}
	if cfg.RecordStoreBaseURL == "" {
		return errors.New("RECORD_STORE_BASE_URL is required to serve")
	}

	checker := health.NewChecker(version)
	deps := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	caches := rowcache.MemoryProvider()
	if cfg.RowCacheBackend == "redis" {
		client := redis.NewClient(cfg.Redis(), logger)
		deps.Add(startup.Func{
			DependencyName: "redis",
			StartFunc:      client.Connect,
			StopFunc:       func(context.Context) error { return client.Close() },
		})
		checker.AddDependency("redis", client)
		caches = rowcache.RedisProvider(client.Redis(), cfg.RowCachePrefix, logger)
	}

	var db *database.DatabaseInstance
	if cfg.AuditDatabaseEnabled {
		deps.Add(startup.Func{
			DependencyName: "database",
			StartFunc: func(ctx context.Context) error {
				conn, err := database.Connect(ctx, cfg.Database(), logger)
				if err != nil {
					return err
				}
				if err := database.NewMigrationService(logger, cfg.Migration()).Migrate(conn, cfg.DatabaseName); err != nil {
					_ = conn.Close()
					return err
				}
				db = conn
				return nil
			},
			StopFunc: func(context.Context) error {
				if db == nil {
					return nil
				}
				return db.Close()
			},
		})
	}

	if err := deps.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := deps.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to stop dependencies")
		}
	}()

	var sinks []audit.Sink
	var repo *finding.Repository
	if db != nil {
		checker.AddDependency("database", db)
		repo = finding.NewRepository(db, logger)
		sinks = append(sinks, audit.RepositorySink{Repo: repo})
	}
	if cfg.KafkaAuditEnabled {
		producer := kafka.NewProducer(cfg.Producer(), logger)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Kafka producer")
			}
		}()
		sinks = append(sinks, audit.EventSink{Emitter: events.NewEmitter(producer, logger)})
	}

	client := recordstore.NewHTTPClient(cfg.RecordStore(cat), logger)
	fetch := fetcher.New(client, cat, nil, cfg.Fetcher(), logger)
	engine := search.NewEngine(fetch, cat, merging.NewEngine(logger), cfg.Search(), logger)
	registry := search.NewRegistry(engine, caches, audit.NewRecorder(logger, sinks...), cfg.Sessions(), logger)

	container, err := inject.NewContainer(cfg.AppName, logger)
	if err != nil {
		return err
	}
	if err := inject.Register(container, registry); err != nil {
		return err
	}
	if err := inject.Register(container, validator.New()); err != nil {
		return err
	}
	if repo != nil {
		if err := inject.Register[findingroutes.Lister](container, repo); err != nil {
			return err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Container(container.GetContainerID()))
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		auth, err := middleware.Authentication(ctx, logger, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return err
		}
		api.Use(auth)
	}
	searchroutes.Register(api)
	cacheroutes.Register(api)
	findingroutes.Register(api)

	return listen(ctx, cfg, e, checker, logger)
}

func listen(ctx context.Context, cfg *config.Config, handler http.Handler, checker *health.Checker, logger ectologger.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	checker.SetReady(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
