package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rendis/stateflow/internal/engine"
	"github.com/rendis/stateflow/internal/expressions"
	"github.com/rendis/stateflow/internal/logging"
	"github.com/rendis/stateflow/internal/scheduler"
	"github.com/rendis/stateflow/internal/service"
	"github.com/rendis/stateflow/internal/store"
	"github.com/rendis/stateflow/internal/tools"
	"github.com/rendis/stateflow/internal/workflows"
	"github.com/rendis/stateflow/pkg/mcp"
	"github.com/rendis/stateflow/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stateflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return fmt.Errorf("init cel engine: %w", err)
	}
	exprEng := expressions.NewExprEngine()
	jq := expressions.NewGoJQEngine()

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterBuiltins(registry, cel, exprEng, jq); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}
	if err := workflows.RegisterDataQualityTools(registry); err != nil {
		return fmt.Errorf("register data quality tools: %w", err)
	}

	executor := engine.NewExecutor(engine.Config{
		MaxIterations: cfg.MaxIterations,
		StrictRouting: cfg.StrictRouting,
	}, logger)

	svc, err := service.NewFlowService(st, registry, cel, executor, logger)
	if err != nil {
		return fmt.Errorf("init flow service: %w", err)
	}

	// "stateflow run <definition.json> [state.json]" executes a graph once
	// and prints the finished run instead of serving MCP.
	if len(os.Args) > 1 && os.Args[1] == "run" {
		return runOnce(ctx, svc, os.Args[2:])
	}

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(st, svc, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("failed to recover missed jobs", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	logger.Info("stateflow server starting",
		"db_path", cfg.DBPath,
		"memory_store", cfg.MemoryStore,
		"scheduler", cfg.Scheduler)

	srv := mcp.NewStateflowServer(svc, logger)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	logger.Info("stateflow server stopped")
	return nil
}

func runOnce(ctx context.Context, svc *service.FlowService, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: stateflow run <definition.json> [state.json]")
	}

	defData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read definition: %w", err)
	}
	var def schema.GraphDefinition
	if err := json.Unmarshal(defData, &def); err != nil {
		return fmt.Errorf("parse definition: %w", err)
	}

	var initialState map[string]any
	if len(args) > 1 {
		stateData, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read initial state: %w", err)
		}
		if err := json.Unmarshal(stateData, &initialState); err != nil {
			return fmt.Errorf("parse initial state: %w", err)
		}
	}

	run, err := svc.RunDefinition(ctx, &def, initialState)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	fmt.Println(string(out))

	if run.Status == schema.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", run.RunID, run.Error)
	}
	return nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.MemoryStore {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

// newLogger writes to stderr so stdout stays clean for the MCP stdio
// transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
