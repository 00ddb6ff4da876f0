package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/config"
	"github.com/eldercare/eldercare/internal/domain/billing"
	"github.com/eldercare/eldercare/internal/domain/careplan"
	"github.com/eldercare/eldercare/internal/domain/facility"
	"github.com/eldercare/eldercare/internal/domain/identity"
	"github.com/eldercare/eldercare/internal/domain/messaging"
	"github.com/eldercare/eldercare/internal/domain/nursing"
	"github.com/eldercare/eldercare/internal/domain/resident"
	"github.com/eldercare/eldercare/internal/domain/staffing"
	"github.com/eldercare/eldercare/internal/domain/visit"
	"github.com/eldercare/eldercare/internal/jobs"
	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/db"
	"github.com/eldercare/eldercare/internal/platform/notification"
	"github.com/eldercare/eldercare/internal/platform/scheduler"
	"github.com/eldercare/eldercare/internal/platform/websocket"
)

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// app is the fully wired backend shared by serve and the job commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	identity *identity.Service
	handlers []routeRegistrar

	queue      notification.Queue
	notifier   *notification.NotificationManager
	dispatcher *notification.Dispatcher
	hub        *websocket.Hub
	sched      *scheduler.Scheduler
	checks     []db.Check
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		TokenTTL:   cfg.AuthTokenTTL,
		Skipper:    auth.AuthSkipper,
	}
}

func newMailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.MailProvider == "sendgrid" {
		return notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromAddress)
	}
	return notification.NewLogSender(logger)
}

// newQueue returns the Redis stream outbox when REDIS_URL is set, otherwise
// an in-process queue.
func newQueue(ctx context.Context, cfg *config.Config) (notification.Queue, *db.Check, error) {
	if cfg.RedisURL == "" {
		return notification.NewMemoryQueue(1024), nil, nil
	}
	client, err := notification.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	consumer, _ := os.Hostname()
	if consumer == "" {
		consumer = "eldercare"
	}
	q, err := notification.NewRedisQueue(ctx, client, notification.DefaultStream, notification.DefaultGroup, consumer)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return q, &db.Check{Name: "redis", Ping: q.Ping}, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		TimeZone: loc.String(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")

	a := &app{cfg: cfg, logger: logger, pool: pool}

	queue, check, err := newQueue(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("notification queue: %w", err)
	}
	if check != nil {
		a.checks = append(a.checks, *check)
	}
	a.queue = queue
	a.notifier = notification.NewNotificationManager(queue, notification.NewTemplateEngine())
	a.dispatcher = notification.NewDispatcher(queue, newMailSender(cfg, logger), a.notifier, logger, cfg.NotifyMaxAttempts)
	a.hub = websocket.NewHub(logger)

	tx := db.PoolTx(pool)

	// Repositories
	userRepo := identity.NewUserRepo(pool)
	residentRepo := resident.NewRepo(pool)
	roomRepo := facility.NewRoomRepo(pool)
	bedRepo := facility.NewBedRepo(pool)
	bedAssignmentRepo := facility.NewBedAssignmentRepo(pool)
	planRepo := careplan.NewPlanRepo(pool)
	packageRepo := careplan.NewPackageRepo(pool)
	assignmentRepo := careplan.NewAssignmentRepo(pool)
	billRepo := billing.NewBillRepo(pool)
	financeRepo := billing.NewFinanceRepo(pool)

	// Services
	a.identity = identity.NewService(userRepo, auth.NewTokenIssuer(jwtConfig(cfg)))
	residentSvc := resident.NewService(residentRepo, a.identity)
	facilitySvc := facility.NewService(roomRepo, bedRepo, bedAssignmentRepo, residentSvc, tx)
	careplanSvc := careplan.NewService(planRepo, packageRepo, assignmentRepo, residentSvc, facilitySvc)
	calc := billing.NewCostCalculator(careplanSvc, facilitySvc)
	billingSvc := billing.NewService(billRepo, financeRepo, residentSvc, a.identity, calc, a.notifier, tx)
	generator := billing.NewGenerator(residentRepo, careplanSvc, facilitySvc, calc, billRepo, a.identity, a.notifier,
		billing.GeneratorConfig{DueDay: cfg.BillingDueDay, Workers: cfg.BillingWorkers})
	staffingSvc := staffing.NewService(staffing.NewRepo(pool), a.identity, residentSvc)
	nursingSvc := nursing.NewService(nursing.NewRepo(pool), residentSvc)
	visitSvc := visit.NewService(visit.NewRepo(pool), residentSvc, a.identity, a.notifier)
	visitSvc.SetPublisher(a.hub)
	messagingSvc := messaging.NewService(messaging.NewRepo(pool), a.identity)
	messagingSvc.SetPublisher(a.hub)

	// Scheduled jobs
	a.sched = scheduler.New(loc, logger)
	err = jobs.Register(a.sched, jobs.Deps{
		Assignments:    assignmentRepo,
		BedAssignments: bedAssignmentRepo,
		Residents:      residentRepo,
		Bills:          billRepo,
		Billing:        generator,
	}, jobs.Options{FinalizeByPausedAt: cfg.FinalizeByPausedAt})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	a.handlers = []routeRegistrar{
		identity.NewHandler(a.identity),
		resident.NewHandler(residentSvc),
		facility.NewHandler(facilitySvc),
		careplan.NewHandler(careplanSvc),
		billing.NewHandler(billingSvc),
		staffing.NewHandler(staffingSvc),
		nursing.NewHandler(nursingSvc),
		visit.NewHandler(visitSvc),
		messaging.NewHandler(messagingSvc),
		websocket.NewHandler(a.hub, cfg.CORSOrigins),
	}
	return a, nil
}

// registerRoutes mounts every domain plus the admin surfaces on api.
func (a *app) registerRoutes(api *echo.Group) {
	for _, h := range a.handlers {
		h.RegisterRoutes(api)
	}

	jobsHandler := scheduler.NewHandler(a.sched)
	jobsHandler.RegisterRoutes(api)
	jobsHandler.RegisterTrigger(api, "/monthly-billing/generate-bills", jobs.NameMonthlyBilling,
		"Monthly bills generation triggered")

	notification.NewNotificationHandler(a.notifier, a.dispatcher).
		RegisterRoutes(api.Group("", auth.RequireRole(auth.RoleAdmin)))
}

// drainOutbox delivers what is left on an in-process queue. A Redis outbox
// is left for the server's dispatcher.
func (a *app) drainOutbox(ctx context.Context) {
	mq, ok := a.queue.(*notification.MemoryQueue)
	if !ok {
		return
	}
	for mq.Len() > 0 {
		del, err := mq.Consume(ctx)
		if err != nil {
			return
		}
		a.dispatcher.Handle(ctx, del)
	}
}

func (a *app) Close() {
	if err := a.queue.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close notification queue")
	}
	a.pool.Close()
}
