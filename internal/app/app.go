// Package app wires configuration, storage and services into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/bootstrap"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/cmd"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/jobs"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/metrics"
	tg "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/router"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/bot"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/repository"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/service"
)

// App holds the wired bot and the infrastructure it owns.
type App struct {
	cfg   *Config
	infra *bootstrap.Result

	metrics  *metrics.Metrics
	server   *metrics.Server
	queue    *jobs.Queue
	notifier *bot.Notifier
	registry *tg.Registry
	handlers *bot.Handlers
}

// Bootstrap implements the cmd.Options.Bootstrap hook.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	ctx := context.Background()
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
		Redis:    cfg.Redis,
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{
			OwnerSeeder(cfg.Telegram.OwnerID),
		}},
	})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, res)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return a, nil
}

// OwnerSeeder ensures the configured owner principal exists.
func OwnerSeeder(ownerID int64) bootstrap.Seeder {
	return bootstrap.SeederFunc{Label: "owner", Fn: func(ctx context.Context, res *bootstrap.Result) error {
		repos, tx := service.NewRepos(repository.NewStore(res.DB))
		identity := service.NewIdentityService(repos, tx, service.NewPermissionGate(repos))
		_, err := identity.EnsureOwner(ctx, ownerID)
		return err
	}}
}

// New builds every service over the bootstrapped infrastructure.
func New(cfg *Config, res *bootstrap.Result) (*App, error) {
	if cfg == nil || res == nil || res.DB == nil {
		return nil, errors.New("app: config and database are required")
	}
	m := metrics.New()

	var store state.Store
	if res.Redis != nil {
		store = state.NewRedisStore(res.Redis, cfg.Redis.KeyPrefix, cfg.Conversation.SessionTTL)
	} else {
		store = state.NewMemoryStore(state.MemoryOptions{TTL: cfg.Conversation.SessionTTL, Gauge: m})
	}
	engine := conversation.New(store, conversation.Options{})

	repos, tx := service.NewRepos(repository.NewStore(res.DB))
	validate := validator.New(validator.WithRequiredStructEnabled())
	gate := service.NewPermissionGate(repos)
	notifier := bot.NewNotifier()

	dispatcher := service.NewNotificationDispatcher(repos, notifier, m, service.DispatcherOptions{
		Delay:    cfg.Notifications.Delay,
		Location: cfg.Location(),
	})
	queue := jobs.NewQueue("notifications", service.DispatchHandler(dispatcher, notifier), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.QueueSize,
		MaxRetries: cfg.Notifications.MaxRetries,
	})

	sections := service.NewSectionService(repos, tx, gate, cfg.academicOptions())
	sectionFlow := service.NewSectionCreationFlow(engine, gate, sections)
	registration := service.NewRegistrationFlow(engine, gate, repos, tx, notifier, m, validate)
	assignments := service.NewAssignmentService(repos, tx, gate, queue, validate, service.AssignmentOptions{
		Location: cfg.Location(),
	})
	assignFlow := service.NewAssignmentCreationFlow(engine, assignments)
	editFlow := service.NewAssignmentEditFlow(engine, assignments)
	conversations, err := service.NewConversations(engine, sectionFlow, registration, assignFlow, editFlow)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	handlers := bot.New(bot.Services{
		Roles:          gate,
		Identity:       service.NewIdentityService(repos, tx, gate),
		Sections:       sections,
		SectionFlow:    sectionFlow,
		Registration:   registration,
		Assignments:    assignments,
		AssignmentFlow: assignFlow,
		EditFlow:       editFlow,
		Conversations:  conversations,
		Stats:          service.NewStatsService(repos, gate),
	}, nil)
	reg := tg.NewRegistry()
	if err := handlers.Register(reg); err != nil {
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	return &App{
		cfg:      cfg,
		infra:    res,
		metrics:  m,
		server:   metrics.NewServer(cfg.Metrics.Listen, m),
		queue:    queue,
		notifier: notifier,
		registry: reg,
		handlers: handlers,
	}, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	router.SetHandlerObserver(a.metrics)
	return tg.RunOptions{
		Config:   &a.cfg.Config,
		Registry: a.registry,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, tg.MiddlewareOptions{
			OnLimited: bot.Limited,
			Updates:   a.metrics,
		}),
		Routes:  a.handlers.Routes(a.registry),
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	a.notifier.SetBot(rt.Bot)
	a.queue.Start(ctx)
	a.server.Start(ctx)
	logger.Info(ctx, logger.CompApp, "services.start",
		slog.String("timezone", a.cfg.Timezone),
		slog.Bool("redis_sessions", a.infra.Redis != nil),
	)
	return nil
}

// stop drains queued notifications before the connections close.
func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	errs := []error{
		a.queue.Stop(ctx),
		a.server.Shutdown(ctx),
	}
	a.notifier.SetBot(nil)
	router.SetHandlerObserver(nil)
	errs = append(errs, a.infra.Close())
	err := errors.Join(errs...)
	logger.Info(ctx, logger.CompApp, "services.stop", slog.String("status", logger.Status(err)))
	return err
}
