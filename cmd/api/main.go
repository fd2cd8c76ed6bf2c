package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/cozycabin/cozycabin/internal/api/http"
	"github.com/cozycabin/cozycabin/internal/api/http/handlers"
	"github.com/cozycabin/cozycabin/internal/auth"
	"github.com/cozycabin/cozycabin/internal/config"
	"github.com/cozycabin/cozycabin/internal/events"
	"github.com/cozycabin/cozycabin/internal/llm"
	"github.com/cozycabin/cozycabin/internal/mail"
	"github.com/cozycabin/cozycabin/internal/observability"
	"github.com/cozycabin/cozycabin/internal/persistence"
	"github.com/cozycabin/cozycabin/internal/ratelimit"
	"github.com/cozycabin/cozycabin/internal/render"
	"github.com/cozycabin/cozycabin/internal/repository"
	"github.com/cozycabin/cozycabin/internal/service"
	"github.com/cozycabin/cozycabin/internal/storage"
	"github.com/cozycabin/cozycabin/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	objects, err := storage.NewFileStore(cfg.Storage.Root, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to open attachment storage", zap.Error(err))
	}

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	inviteRepo := repository.NewInviteRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	renderer := render.NewRenderer()
	mailer := mail.NewTemplateMailer(mail.NewSMTPSender(cfg.Mail))
	dispatcher := events.NewInMemoryDispatcher(logger)

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		ProfileRepo: profileRepo,
		InviteRepo:  inviteRepo,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		CommentRepo:    commentRepo,
		AttachmentRepo: attachmentRepo,
		Sanitizer:      renderer,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	attachmentService := service.NewAttachmentService(service.AttachmentDependencies{
		TicketRepo:     ticketRepo,
		CommentRepo:    commentRepo,
		AttachmentRepo: attachmentRepo,
		Objects:        objects,
		Logger:         logger,
	})
	inviteService := service.NewInviteService(service.InviteDependencies{
		InviteRepo:  inviteRepo,
		ProfileRepo: profileRepo,
		Mailer:      mailer,
		Dispatcher:  dispatcher,
		Logger:      logger,
		SiteURL:     cfg.App.SiteURL,
		TTL:         cfg.Auth.InviteTTL(),
	})
	statsService := service.NewStatsService(statsRepo)
	agentService := service.NewAgentService(service.AgentDependencies{
		TicketRepo: ticketRepo,
		Stats:      statsService,
		Provider:   llm.NewOpenAI(cfg.AI, logger),
		Renderer:   renderer,
		Limiter:    ratelimit.NewRedisLimiter(redis.Client, "cozycabin:ratelimit"),
		Limits: ratelimit.Limits{
			PerMinute: cfg.RateLimit.AgentRequestsPerMinute,
			PerHour:   cfg.RateLimit.AgentRequestsPerHour,
		},
		Logger:  logger,
		Timeout: cfg.AI.Timeout(),
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:  dispatcher,
		TicketRepo:  ticketRepo,
		ProfileRepo: profileRepo,
		Mailer:      mailer,
		Logger:      logger,
	})
	worker.StartNotificationWorker(notificationService, logger)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), profileRepo)
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.App.BodyLimitMB * 1024 * 1024,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Attachments:    handlers.NewAttachmentsHandler(attachmentService),
		Invites:        handlers.NewInvitesHandler(inviteService),
		Stats:          handlers.NewStatsHandler(statsService),
		Functions:      handlers.NewFunctionsHandler(authMiddleware, inviteService, agentService, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
