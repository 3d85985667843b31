package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flitsinc/go-golem/internal/ai"
	"github.com/flitsinc/go-golem/internal/api"
	"github.com/flitsinc/go-golem/internal/belief"
	"github.com/flitsinc/go-golem/internal/brain"
	"github.com/flitsinc/go-golem/internal/config"
	"github.com/flitsinc/go-golem/internal/eventbus"
	"github.com/flitsinc/go-golem/internal/gameworld"
	"github.com/flitsinc/go-golem/internal/journal"
	"github.com/flitsinc/go-golem/internal/logging"
	"github.com/flitsinc/go-golem/internal/perception"
	"github.com/flitsinc/go-golem/internal/planner"
	"github.com/flitsinc/go-golem/internal/reflex"
	"github.com/flitsinc/go-golem/internal/tools"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}

	runCtx, stopAgent := context.WithCancel(context.Background())
	defer stopAgent()

	bus := eventbus.NewBus(logger)

	jrnl, err := journal.Open(logger, cfg.JournalPath)
	if err != nil {
		logger.Fatal("open journal", zap.Error(err))
	}
	defer jrnl.Close()
	jrnl.Attach(bus)

	var world gameworld.Client
	if cfg.Offline {
		logger.Info("running offline with a fake world")
		world = gameworld.NewFake(cfg.SelfID)
	} else {
		world = gameworld.NewWSClient(logger, cfg.WorldURL, cfg.SelfID)
	}
	defer world.Close()

	ctxStore := reflex.NewContextStore()
	ctxStore.Attach(bus)
	selfPos := func() gameworld.Vec3 { return ctxStore.Snapshot().Self.Position }

	entities := belief.NewEntityStore()
	changes := belief.NewTemporalBuffer()
	recorder := belief.NewRecorder(entities, changes, cfg.SelfID)

	beliefs := belief.NewEngine(logger, entities, changes, selfPos)
	if err := beliefs.Register(belief.RapidCrouchPattern()); err != nil {
		logger.Fatal("register pattern", zap.Error(err))
	}
	attachBeliefs(bus, beliefs)

	collector := perception.NewCollector(logger, bus, cfg.SelfID, selfPos,
		perception.WithMaxDistance(cfg.MaxDistance))
	normalizer := perception.NewNormalizer(logger)
	detector := perception.NewDetector(logger, bus)
	normalizer.AddSink(detector.Sink())
	normalizer.Attach(bus)

	if err := world.Start(runCtx, gameworld.FanOut(collector.Callbacks(), recorder.Callbacks())); err != nil {
		logger.Fatal("start world client", zap.Error(err))
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterGameSkills(registry, world); err != nil {
		logger.Fatal("register skills", zap.Error(err))
	}

	scheduler := reflex.NewScheduler(logger, ctxStore,
		reflex.API{World: world, Bus: bus, Log: logger},
		reflex.WithTick(cfg.ReflexTick))
	for _, behavior := range []reflex.Behavior{
		reflex.LookAtAttention(),
		reflex.GreetOnGesture(),
		reflex.FleeOnThreat(),
	} {
		if err := scheduler.Register(behavior); err != nil {
			logger.Fatal("register behavior", zap.Error(err))
		}
	}
	go scheduler.Run(runCtx)

	var llmClient *ai.Client
	if cfg.LLMModel != "" && cfg.LLMAPIKey != "" {
		llmClient, err = ai.NewClient(ai.Config{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
		})
		if err != nil {
			logger.Warn("llm disabled", zap.Error(err))
		}
	} else {
		logger.Warn("llm disabled: no model or api key configured")
	}
	ai.AddExternalTools(llmClient, registry.QuerySchemas(), queryHandler(registry))

	scripts := planner.NewRunner(logger, registry,
		planner.WithTimeout(cfg.ScriptTimeout),
		planner.WithToolCap(cfg.ScriptToolCap))

	mind := brain.New(logger, bus, registry, llmClient, scripts,
		ctxStore.Snapshot, brain.Config{
			MaxAttempts:    cfg.LLMAttempts,
			RetryDelay:     cfg.LLMRetryDelay,
			BudgetDefault:  cfg.BudgetDefault,
			BudgetMax:      cfg.BudgetMax,
			GuardThreshold: cfg.GuardThreshold,
			GuardWindow:    cfg.GuardWindow,
			GuardCooldown:  cfg.GuardCooldown,
			HistoryLimit:   cfg.HistoryLimit,
			Persona:        cfg.Persona,
		})
	mind.AttachSignals(bus)
	go mind.Run(runCtx)

	apiServer := &api.Server{
		Log:       logger,
		Brain:     mind,
		Scheduler: scheduler,
		Bus:       bus,
		Journal:   jrnl,
		StartedAt: time.Now().UTC(),
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	httpServer := &http.Server{
		Handler:           loggingMiddleware(logger, apiServer.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("golemd listening", zap.String("addr", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopAgent()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

// queryHandler answers the model's native world queries through the same
// registry the instruction protocol dispatches from.
func queryHandler(registry *tools.Registry) ai.ExternalHandler {
	return func(ctx context.Context, name string, params json.RawMessage) (any, error) {
		tool, ok := registry.Get(name)
		if !ok || !tool.ReadOnly {
			return nil, fmt.Errorf("unknown query tool %q", name)
		}
		args := map[string]any{}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, fmt.Errorf("decode %s params: %w", name, err)
			}
		}
		if err := tool.Validate(args); err != nil {
			return nil, err
		}
		result, err := tool.Execute(ctx, args)
		if err != nil {
			return nil, err
		}
		return result.Data, nil
	}
}

// attachBeliefs confirms gesture signals against the belief engine so the
// journal records how confident the pattern match actually was.
func attachBeliefs(bus *eventbus.Bus, engine *belief.Engine) {
	bus.Subscribe("signal:social_gesture", func(ctx context.Context, evt eventbus.Event) {
		sourceID, _ := evt.Payload["source_id"].(string)
		if sourceID == "" {
			return
		}
		for name, b := range engine.Compute(sourceID) {
			bus.EmitChild(ctx, evt, eventbus.Input{
				Type: "belief:" + name,
				Payload: map[string]any{
					"entity_id":  sourceID,
					"confidence": b.Confidence,
					"data":       b.Data,
				},
				Source: "belief.engine",
			})
		}
	})
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
