package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/captcha"
	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/database"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/judge"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/ratelimit"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/internal/router"
	"github.com/noah-isme/gema-judge/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("node", uuid.NewString()).Logger()
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	probes := map[string]handler.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var (
		store            ratelimit.Store
		captchaValidator captcha.Validator
	)
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()

		store = ratelimit.NewRedisStore(redisClient)
		captchaValidator = captcha.NewRedisStore(redisClient, cfg.CaptchaTTL)
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		memory := ratelimit.NewMemoryStore()
		memory.StartJanitor(ctx, time.Minute)
		store = memory
		logger.Warn().Msg("redis url not set; using in-process token buckets and no captcha store")
	}

	bucket, err := ratelimit.NewBucket(store, ratelimit.Limit{
		Capacity:        cfg.UserThrottle.Capacity,
		FillRate:        cfg.UserThrottle.FillRate,
		DefaultCapacity: cfg.UserThrottle.DefaultCapacity,
	})
	if err != nil {
		log.Fatalf("invalid throttle configuration: %v", err)
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats status %s", natsConn.Status())
			}
			return nil
		}
	}

	engine, closeEngine, err := buildEngine(ctx, cfg, natsConn)
	if err != nil {
		log.Fatalf("failed to build judge engine: %v", err)
	}
	defer closeEngine()

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	problemRepo := repository.NewProblemRepository(db)
	contestRepo := repository.NewContestRepository(db)

	admission := service.NewAdmissionController(problemRepo, contestRepo, captchaValidator, bucket, logger)
	dispatcher := service.NewDispatchCoordinator(submissionRepo, engine, cfg.JudgeTimeout, logger)
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, contestRepo, admission, dispatcher, validate, service.SubmissionServiceConfig{
		ShowAll:     cfg.SubmissionListShowAll,
		MaxPageSize: cfg.SubmissionMaxPageSize,
	}, logger)
	reconciler := service.NewReconciler(submissionRepo, dispatcher, cfg.ReconcileInterval, cfg.ReconcileStaleAfter, cfg.ReconcileBatchSize, logger)

	go reconciler.Run(ctx)

	if natsConn != nil {
		consumer := judge.NewResultConsumer(natsConn, cfg.JudgeResultSubject, submissionService.ApplyJudgeResult, validate, logger)
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("failed to start judge result consumer: %v", err)
		}
	} else {
		logger.Warn().Msg("nats url not set; judge results are not consumed")
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ServerHeader:          cfg.AppName,
		DisableStartupMessage: true,
	})
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{Probes: probes})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start ops server: %v", err)
		}
	}()

	logger.Info().
		Str("transport", engine.Name()).
		Str("address", cfg.HTTPAddress()).
		Msg("judge worker started")

	waitForShutdown(ctx, app, logger)
}

// buildEngine selects the judge transport. The returned func releases engine resources.
func buildEngine(ctx context.Context, cfg config.Config, natsConn *nats.Conn) (judge.Engine, func(), error) {
	noop := func() {}

	switch cfg.JudgeTransport {
	case config.TransportNATS:
		if natsConn == nil {
			return nil, noop, fmt.Errorf("nats transport requires a nats connection")
		}
		// Resends by the reconciler happen after stale_after; keep them inside the duplicate window.
		js, err := database.EnsureJudgeStream(natsConn, cfg.JudgeStream, cfg.JudgeSubject, 2*cfg.ReconcileStaleAfter)
		if err != nil {
			return nil, noop, err
		}
		return judge.NewNATSEngine(js, cfg.JudgeSubject), noop, nil
	case config.TransportSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load aws config: %w", err)
		}
		engine, err := judge.NewSQSEngine(sqs.NewFromConfig(awsCfg), cfg.JudgeSQSQueueURL)
		if err != nil {
			return nil, noop, err
		}
		return engine, func() { _ = engine.Close() }, nil
	case config.TransportHTTP:
		return judge.NewHTTPEngine(nil, cfg.JudgeHTTPURL, cfg.JudgeHTTPToken, cfg.JudgeTimeout), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown judge transport %q", cfg.JudgeTransport)
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("judge worker stopped")
}
