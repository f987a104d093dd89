package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/common/messaging"
	natsclient "github.com/telhawk-systems/edi-stack/common/messaging/nats"
	"github.com/telhawk-systems/edi-stack/edi/internal/actorstats"
	"github.com/telhawk-systems/edi-stack/edi/internal/archive"
	"github.com/telhawk-systems/edi-stack/edi/internal/auth"
	"github.com/telhawk-systems/edi-stack/edi/internal/authorization"
	"github.com/telhawk-systems/edi-stack/edi/internal/bundling"
	"github.com/telhawk-systems/edi-stack/edi/internal/cache"
	"github.com/telhawk-systems/edi-stack/edi/internal/codelists"
	"github.com/telhawk-systems/edi-stack/edi/internal/config"
	"github.com/telhawk-systems/edi-stack/edi/internal/documents"
	"github.com/telhawk-systems/edi-stack/edi/internal/handlers"
	edinats "github.com/telhawk-systems/edi-stack/edi/internal/nats"
	"github.com/telhawk-systems/edi-stack/edi/internal/queue"
	"github.com/telhawk-systems/edi-stack/edi/internal/ratelimit"
	"github.com/telhawk-systems/edi-stack/edi/internal/repository"
	"github.com/telhawk-systems/edi-stack/edi/internal/scheduler"
	"github.com/telhawk-systems/edi-stack/edi/internal/server"
	"github.com/telhawk-systems/edi-stack/edi/internal/service"
	"github.com/telhawk-systems/edi-stack/edi/internal/validation"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("edi"))
	logging.SetDefault(logger)

	slog.Info("Starting EDI service",
		slog.Int("port", cfg.Server.Port),
		slog.String("database", cfg.Database.Type),
		slog.String("log_level", cfg.Logging.Level),
	)

	lists := codelists.Default()
	if cfg.CodeLists.Path != "" {
		lists, err = codelists.Load(cfg.CodeLists.Path)
		if err != nil {
			log.Fatalf("Failed to load code lists: %v", err)
		}
		slog.Info("Loaded code lists", slog.String("path", cfg.CodeLists.Path))
	}

	ctx := context.Background()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open repository: %v", err)
	}
	defer repo.Close()

	var healthChecks []handlers.Option

	// Redis backs the document cache and the incoming rate limiter
	var (
		docCache    queue.DocumentCache
		rateLimiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
		collector   *actorstats.Collector
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("Redis unavailable, continuing without cache and rate limiting", logging.Error(err))
		} else {
			defer redisClient.Close()
			if cfg.Cache.Enabled {
				docCache = cache.NewDocumentCache(redisClient, cfg.Cache.TTL, true)
				slog.Info("Document cache enabled", slog.Duration("ttl", cfg.Cache.TTL))
			}
			if cfg.RateLimit.Enabled {
				rateLimiter = ratelimit.NewRedisRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
				slog.Info("Rate limiting enabled",
					slog.Int("requests", cfg.RateLimit.Requests),
					slog.Duration("window", cfg.RateLimit.Window),
				)
			}
			if cfg.Stats.Enabled {
				collector = actorstats.NewCollector(actorstats.NewClient(redisClient, instanceID()), cfg.Stats.FlushInterval, logger)
				slog.Info("Actor statistics enabled", slog.Duration("flush_interval", cfg.Stats.FlushInterval))
			}
			healthChecks = append(healthChecks, handlers.WithHealthCheck("redis", func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}))
		}
	}

	var (
		natsClient   *natsclient.Client
		incomingPub  service.EventPublisher
		bundleNotify bundling.Notifier
		dequeueNote  queue.Notifier
	)
	if cfg.NATS.Enabled {
		natsClient, err = natsclient.NewClient(natsclient.Config{
			URL:            cfg.NATS.URL,
			Name:           "edi",
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			Timeout:        5 * time.Second,
			HandlerTimeout: 30 * time.Second,
			Logger:         logger.Logger,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher := edinats.NewPublisher(natsClient)
		incomingPub = publisher
		bundleNotify = publisher
		dequeueNote = publisher
		healthChecks = append(healthChecks, handlers.WithHealthCheck("nats", func(ctx context.Context) error {
			return messaging.CheckClientHealth(ctx, natsClient).Err()
		}))
		slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
	}

	var (
		incomingArchive service.Archiver
		outgoingArchive queue.Archiver
		searchArchive   handlers.ArchiveSearcher
	)
	if cfg.OpenSearch.Enabled {
		arch, err := archive.NewArchive(archive.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.Insecure,
			Index:         cfg.OpenSearch.Index,
			SigningKey:    cfg.OpenSearch.SigningKey,
		})
		if err != nil {
			log.Fatalf("Failed to create archive client: %v", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := arch.Initialize(initCtx); err != nil {
			slog.Warn("Failed to initialize archive index, documents may fail to archive", logging.Error(err))
		}
		cancel()
		incomingArchive = arch
		outgoingArchive = arch
		searchArchive = arch
		slog.Info("Message archive enabled", slog.String("index", cfg.OpenSearch.Index))
	}

	schemas, err := documents.NewSchemaValidator()
	if err != nil {
		log.Fatalf("Failed to load document schemas: %v", err)
	}
	generator := documents.NewGenerator(documents.DefaultRegistry(), schemas)

	validator := validation.NewValidator(
		repo,
		authorization.NewSenderAuthorizer(lists),
		authorization.NewReceiverValidator(lists),
		lists,
	)
	ediService := service.NewService(repo, validator, lists, incomingArchive, incomingPub, logger)

	queueOpts := []queue.Option{queue.WithLogger(logger)}
	if docCache != nil {
		queueOpts = append(queueOpts, queue.WithCache(docCache))
	}
	if outgoingArchive != nil {
		queueOpts = append(queueOpts, queue.WithArchive(outgoingArchive))
	}
	if dequeueNote != nil {
		queueOpts = append(queueOpts, queue.WithNotifier(dequeueNote))
	}
	queueService := queue.NewService(repo, generator, lists.PlatformActor(), queueOpts...)

	bundler := bundling.NewBundler(repo, bundleNotify, bundling.Config{
		MaxBundleSize: cfg.Bundling.MaxBundleSize,
		MinBundleSize: cfg.Bundling.MinBundleSize,
		FlushTimeout:  cfg.Bundling.FlushTimeout,
		ScanLimit:     cfg.Bundling.ScanLimit,
	}, logger)

	var natsHandler *edinats.Handler
	if natsClient != nil {
		natsHandler = edinats.NewHandler(natsClient, ediService, bundler, logger)
		if err := natsHandler.Start(ctx); err != nil {
			log.Fatalf("Failed to start NATS handler: %v", err)
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Bundling.Enabled {
		sched = scheduler.NewScheduler(bundler, cfg.Bundling.Interval, logger)
		go sched.Start(ctx)
		slog.Info("Bundling scheduler started", slog.Duration("interval", cfg.Bundling.Interval))
	}

	handlerOpts := append([]handlers.Option{
		handlers.WithRateLimiter(rateLimiter),
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		handlers.WithLogger(logger),
	}, healthChecks...)
	if searchArchive != nil {
		handlerOpts = append(handlerOpts, handlers.WithArchive(searchArchive))
	}
	if collector != nil {
		handlerOpts = append(handlerOpts, handlers.WithActorStats(collector, collector))
	}
	handler := handlers.NewHandler(ediService, queueService, bundler, lists, handlerOpts...)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	router := server.NewRouter(handler, auth.NewMiddleware(tokens), logger.Logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("EDI service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	if sched != nil {
		sched.Stop()
	}
	if collector != nil {
		collector.Stop()
	}
	if natsHandler != nil {
		if err := natsHandler.Stop(); err != nil {
			slog.Warn("Failed to stop NATS handler", logging.Error(err))
		}
	}
	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			slog.Warn("Failed to drain NATS connection", logging.Error(err))
		}
	}

	slog.Info("Server stopped")
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	if cfg.Database.Type != "postgres" {
		slog.Info("Using in-memory repository")
		return repository.NewInMemoryRepository(), nil
	}

	connString := cfg.Database.Postgres.ConnString()

	m, err := migrate.New(cfg.Database.MigrationsPath, connString)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Database migrations completed")

	repo, err := repository.NewPostgresRepository(ctx, connString)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// instanceID names this process in actor statistics.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "edi"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
