package main

import (
	gocontext "context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/crewline/atlas/config"
	candidaterepo "github.com/crewline/atlas/internal/repositories/candidate"
	entitylinkrepo "github.com/crewline/atlas/internal/repositories/entitylink"
	resolutionrepo "github.com/crewline/atlas/internal/repositories/resolution"
	"github.com/crewline/atlas/pkg/database"
	"github.com/crewline/atlas/pkg/diagnostics"
	"github.com/crewline/atlas/pkg/events"
	"github.com/crewline/atlas/pkg/geocode"
	"github.com/crewline/atlas/pkg/httpclient"
	"github.com/crewline/atlas/pkg/kafka"
	"github.com/crewline/atlas/pkg/matching"
	"github.com/crewline/atlas/pkg/middleware"
	"github.com/crewline/atlas/pkg/processor"
	"github.com/crewline/atlas/pkg/proposal"
	"github.com/crewline/atlas/pkg/redis"
	"github.com/crewline/atlas/pkg/resolution"
	candidateroutes "github.com/crewline/atlas/pkg/routes/candidate"
	diagnosticsroutes "github.com/crewline/atlas/pkg/routes/diagnostics"
	entitylinkroutes "github.com/crewline/atlas/pkg/routes/entitylink"
	"github.com/crewline/atlas/pkg/routes/health"
	resolutionroutes "github.com/crewline/atlas/pkg/routes/resolution"
	"github.com/crewline/atlas/pkg/startup"
	"github.com/crewline/atlas/pkg/tracing"
	"github.com/crewline/atlas/pkg/tracing/exporters"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger()
	ctx := gocontext.Background()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}
	defer shutdownTracing()

	// database + migrations
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	defer db.Close()

	migrationDriver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		os.Exit(1)
	}
	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrationService.Migrate(cfg.DatabaseName, migrationDriver); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	// redis is optional: without it geocode lookups just skip the cache
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, geocode caching disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// repositories
	candidateRepo := candidaterepo.NewRepository(db, logger)
	entityLinkRepo := entitylinkrepo.NewRepository(db, logger)
	outcomeRepo := resolutionrepo.NewRepository(db, logger)

	// matching + proposals
	engine := matching.NewEngine(logger, entityLinkRepo, matching.Config{
		ProximityRadiusMeters: cfg.ProximityRadiusMeters,
		ContactConfidence:     cfg.ContactConfidence,
		MaxMatches:            cfg.MaxMatches,
	})
	synthesizer := proposal.NewSynthesizer(proposal.Config{
		UsableConfidenceFloor: cfg.UsableConfidenceFloor,
	})

	// geocoding
	httpClientCfg := httpclient.DefaultConfig()
	httpClientCfg.Timeout = cfg.GeocoderTimeout
	httpClient := httpclient.NewClient(httpClientCfg, logger)
	var geocoder geocode.Provider = geocode.NewNominatimProvider(httpClient, geocode.NominatimConfig{
		BaseURL:      cfg.GeocoderBaseURL,
		ProviderName: cfg.GeocoderProvider,
		ResultLimit:  cfg.GeocoderResultLimit,
		Timeout:      cfg.GeocoderTimeout,
	}, logger)
	if redisClient != nil {
		geocoder = geocode.NewCachedProvider(geocoder, redisClient, cfg.GeocoderCacheTTL, logger)
	}

	// kafka
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	defer producer.Close()
	emitter := events.NewEmitter(producer, logger)

	recorder := diagnostics.NewRecorder(cfg.DiagnosticsCapacity)

	service := resolution.NewService(
		logger,
		candidateRepo,
		outcomeRepo,
		entityLinkRepo,
		engine,
		synthesizer,
		geocoder,
		emitter,
		recorder,
	)

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		entityProcessor := processor.NewEntityProcessor(logger, entityLinkRepo)
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaEntityEventsTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, entityProcessor.ProcessMessage)
	}

	// http server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.HTTPErrorHandler = middleware.Error(logger)

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	var consumerHealth health.ConsumerHealth
	if consumer != nil {
		consumerHealth = consumer
	}
	healthChecker := health.NewChecker(db, redisPinger, consumerHealth, cfg.Version)
	healthChecker.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	resolutionroutes.NewHandler(logger, service).Register(api.Group("/resolutions"))
	candidateroutes.NewHandler(logger, candidateRepo).Register(api.Group("/candidates"))
	entitylinkroutes.NewHandler(logger, entityLinkRepo).Register(api.Group("/entity-links"))
	diagnosticsroutes.NewHandler(recorder).Register(api.Group("/diagnostics"))

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	if consumer != nil {
		boot.AddDependency(&dependency{
			name:  "kafka-consumer",
			start: consumer.Start,
			stop:  func(gocontext.Context) error { return consumer.Stop() },
		})
	}
	boot.AddDependency(&dependency{
		name: "http-server",
		start: func(gocontext.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
					logger.WithError(err).Info("HTTP server stopped")
				}
			}()
			return nil
		},
		stop: e.Shutdown,
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	healthChecker.SetReady(true)
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	healthChecker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := gocontext.WithTimeout(gocontext.Background(), 15*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
	}
}

// dependency adapts start/stop funcs to the startup graph
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx gocontext.Context) error
	stop      func(ctx gocontext.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }
func (d *dependency) Start(ctx gocontext.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}
func (d *dependency) Stop(ctx gocontext.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

// newLogger emits structured JSON log lines to stdout
func newLogger() ectologger.Logger {
	encoder := json.NewEncoder(os.Stdout)
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		_ = encoder.Encode(msg)
	})
}

// initTracing wires the OTLP exporter when tracing is enabled; otherwise
// spans are recorded against a no-op exporter so StartSpan stays cheap.
func initTracing(ctx gocontext.Context, cfg *config.Config) (func(), error) {
	if !cfg.TracingEnabled {
		tracing.SetTracer(nil)
		return func() {}, nil
	}

	var exporter sdktrace.SpanExporter
	if cfg.TracingConsole {
		exporter = &exporters.ConsoleExporter{}
	} else {
		otlpExporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: "grpc",
			Insecure: true,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlpExporter
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := gocontext.WithTimeout(gocontext.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}
