// Package app assembles the runtime components described by a config.Config.
// Both the CLI and the Temporal worker build their dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/parley/internal/audit"
	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/events"
	"github.com/dyluth/parley/internal/executor"
	"github.com/dyluth/parley/internal/policy"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/internal/telemetry"
	"github.com/dyluth/parley/internal/tracing"
	"github.com/dyluth/parley/internal/workflow"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/dyluth/parley/pkg/conversation"
	"github.com/redis/go-redis/v9"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      conversation.Store
	Redis      *conversation.RedisStore // Nil with the memory backend
	Matrix     *policy.Matrix
	Registry   *agent.Registry
	Bus        *bus.Bus
	Messenger  *bus.Messenger
	Breaker    *reasoning.BreakerService
	Audit      *audit.SQLiteSink // Nil unless audit.sqlite_path is set
	Events     *events.Publisher // Nil unless events are enabled
	Activities *workflow.Activities

	closers []func() error
}

// New wires every component from cfg. The caller must Close the result.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	shutdown, err := tracing.Setup(ctx, cfg.TracingConfig())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	if err := a.openStore(ctx); err != nil {
		return err
	}

	a.Matrix, err = cfg.PolicyMatrix()
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	a.Registry, err = agent.NewRegistry(cfg.AgentOverrides(), a.Logger)
	if err != nil {
		return fmt.Errorf("invalid team: %w", err)
	}

	busOpts := []bus.Option{bus.WithLogger(a.Logger)}

	if cfg.Audit.SQLitePath != "" {
		sink, err := audit.NewSQLiteSink(cfg.Audit.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		a.Audit = sink
		a.onClose(sink.Close)
		busOpts = append(busOpts, bus.WithSnapshotSink(sink))
	}

	if cfg.Events.Enabled {
		if err := a.openEvents(); err != nil {
			return err
		}
		busOpts = append(busOpts, bus.WithNotifier(a.Events))
	}

	a.Bus = bus.New(a.Store, busOpts...)
	a.Messenger = bus.NewMessenger(bus.WithPolicy(a.Bus, a.Matrix, a.Logger), a.Bus)
	collabOpts := []collab.Option{collab.WithLogger(a.Logger)}
	if cfg.Reasoning.Consensus == config.ConsensusNegotiated {
		collabOpts = append(collabOpts, collab.WithStrategy(collab.Negotiated{Messenger: a.Messenger}))
	}
	coordinator := collab.NewCoordinator(a.Bus, collabOpts...)

	a.Breaker = reasoning.WithCircuitBreaker(reasoning.NewTemplateService(), cfg.Reasoning.CircuitBreaker, a.Logger)

	a.Activities = &workflow.Activities{
		Registry:    a.Registry,
		Messenger:   a.Messenger,
		Coordinator: coordinator,
		Executor:    executor.New(a.Breaker, a.Messenger, coordinator, a.Logger),
		Reasoning:   a.Breaker,
		Recorder:    telemetry.MultiRecorder{telemetry.NewLogRecorder(a.Logger), telemetry.SpanRecorder{}},
		Logger:      a.Logger,
	}

	return nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.Store.Backend != config.StoreRedis {
		a.Store = conversation.NewMemoryStore()
		return nil
	}

	redisOpts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	store, err := conversation.NewRedisStore(redisOpts, cfg.Namespace, conversation.WithLogger(a.Logger))
	if err != nil {
		return fmt.Errorf("failed to create conversation store: %w", err)
	}
	a.onClose(store.Close)

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("redis not accessible at %s: %w", cfg.Store.RedisURL, err)
	}

	a.Store = store
	a.Redis = store
	return nil
}

func (a *App) openEvents() error {
	url := a.Config.Events.NATSURL
	if a.Config.Events.Embedded {
		srv, err := events.StartServer(events.RandomPort)
		if err != nil {
			return fmt.Errorf("failed to start embedded nats server: %w", err)
		}
		a.onClose(func() error { srv.Close(); return nil })
		url = srv.ClientURL()
	}

	pub, err := events.Connect(url, a.Logger)
	if err != nil {
		return err
	}
	a.onClose(func() error { pub.Close(); return nil })
	a.Events = pub
	return nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// RunLocal executes one run in-process and completes its conversations.
func (a *App) RunLocal(ctx context.Context, in workflow.Input) (*workflow.Result, error) {
	eng := workflow.NewLocalEngine(ctx, a.Activities, a.Logger)
	res, err := workflow.Run(eng, in)
	if err != nil {
		return nil, err
	}
	a.complete(ctx, res)
	return res, nil
}

// complete marks the run's conversations completed. Failures are logged only.
func (a *App) complete(ctx context.Context, res *workflow.Result) {
	for _, id := range []string{res.ResearchConversationID, res.WritingConversationID} {
		if id == "" {
			continue
		}
		if err := a.Store.Complete(ctx, id); err != nil {
			a.Logger.Warn("failed to complete conversation", "conversation_id", id, "error", err)
		}
	}
}
