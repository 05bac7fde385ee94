package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/config"
	"github.com/noah-isme/edumark-api/internal/database"
	"github.com/noah-isme/edumark-api/internal/handler"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/observability"
	"github.com/noah-isme/edumark-api/internal/repository"
	"github.com/noah-isme/edumark-api/internal/router"
	"github.com/noah-isme/edumark-api/internal/service"
	"github.com/noah-isme/edumark-api/internal/utils"
	cloud "github.com/noah-isme/edumark-api/pkg/cloudinary"
	dockerexec "github.com/noah-isme/edumark-api/pkg/docker"
	"github.com/noah-isme/edumark-api/pkg/grader"
	"github.com/noah-isme/edumark-api/pkg/mailer"
	"github.com/noah-isme/edumark-api/pkg/materialize"
	"github.com/noah-isme/edumark-api/pkg/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolFor(cfg.GradingWorkers))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	observability.RegisterMetrics()

	images := service.NewImageUploader(newImageStorage(cfg, logger), cfg.MaxUploadBytes, logger)
	mail := newMailer(cfg, logger)

	runner, closeRunner := newGraderRunner(cfg, logger)
	defer closeRunner()
	bridge := grader.NewBridge(runner, cfg.GraderTimeout, logger)
	materializer := materialize.New(cfg.GradingScratch, logger, materialize.WithDownloadTimeout(cfg.DownloadTimeout))

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	hub := service.NewGradingEventHub(redisClient, natsConn, cfg.EventsBase, logger)
	hub.Start(eventsCtx)

	validate := utils.NewValidator()

	userRepo := repository.NewUserRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	orchestrator := service.NewGradingOrchestrator(submissionRepo, materializer, bridge, hub, logger)
	dispatcher := service.NewGradingDispatcher(orchestrator, cfg.GradingWorkers, logger)

	userService := service.NewUserService(userRepo, classroomRepo, validate, mail, service.UserServiceConfig{
		JWTSecret:        cfg.JWTSecret,
		TokenTTL:         cfg.JWTTTL,
		ClientURL:        cfg.ClientURL,
		TeacherClientURL: cfg.TeacherClientURL,
	}, logger)
	classroomService := service.NewClassroomService(classroomRepo, userRepo, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, classroomRepo, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, images, cfg.CloudinaryUploadFolder, hub, logger)
	importService := service.NewBulkImportService(assignmentRepo, submissionRepo, images, service.BulkImportConfig{
		Folder:          cfg.CloudinaryRawFolder,
		MaxArchiveBytes: cfg.MaxArchiveBytes,
		MaxImageBytes:   cfg.MaxUploadBytes,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaxArchiveBytes + (1 << 20)),
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowedOrigins: cfg.AllowedOrigins()})
	router.Register(app, cfg, router.Dependencies{
		UserHandler:          handler.NewUserHandler(userService, validate, logger),
		ClassroomHandler:     handler.NewClassroomHandler(classroomService, validate, logger),
		AssignmentHandler:    handler.NewAssignmentHandler(assignmentService, importService, dispatcher, validate, logger),
		SubmissionHandler:    handler.NewSubmissionHandler(submissionService, dispatcher, validate, logger),
		GradingStreamHandler: handler.NewGradingStreamHandler(hub, logger),
		HealthProbes:         healthProbes(db, redisClient, natsConn),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, dispatcher, logger)
}

func newImageStorage(cfg config.Config, logger zerolog.Logger) service.FileStorage {
	if !cfg.CloudinaryEnabled() {
		logger.Warn().Str("dir", cfg.UploadDir).Msg("cloudinary not configured, storing images locally")
		return storage.NewLocal(cfg.UploadDir, logger)
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cloudinary client")
	}
	return uploader
}

func newMailer(cfg config.Config, logger zerolog.Logger) mailer.Mailer {
	smtp := mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
	if !smtp.Enabled() {
		logger.Warn().Msg("smtp not configured, emails will only be logged")
		return mailer.NewLogMailer(logger)
	}

	sender, err := mailer.NewSMTPMailer(smtp, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create smtp mailer")
	}
	return sender
}

func newGraderRunner(cfg config.Config, logger zerolog.Logger) (grader.Runner, func()) {
	if cfg.GraderRuntime != config.GraderRuntimeDocker {
		return grader.ProcessRunner{Interpreter: cfg.GraderPython, Script: cfg.GraderScript}, func() {}
	}

	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		MemoryLimitMB: int64(cfg.GraderMemoryMB),
		CPUShares:     int64(cfg.GraderCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create docker executor")
	}

	runner := grader.ContainerRunner{
		Executor:    executor,
		Image:       cfg.GraderImage,
		Interpreter: cfg.GraderPython,
		Script:      cfg.GraderScript,
		WorkingDir:  executor.WorkingDir(),
		ScratchDir:  cfg.GradingScratch,
		MemoryMB:    int64(cfg.GraderMemoryMB),
		CPUShares:   int64(cfg.GraderCPUShares),
	}
	return runner, func() { _ = executor.Close() }
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			},
		})
	}

	return probes
}

func waitForShutdown(app *fiber.App, dispatcher *service.GradingDispatcher, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := dispatcher.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("grading runs abandoned at shutdown")
	}

	logger.Info().Msg("server stopped")
}
