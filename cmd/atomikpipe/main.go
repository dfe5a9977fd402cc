package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/atomik-io/pipeline/internal/budget"
	"github.com/atomik-io/pipeline/internal/config"
	"github.com/atomik-io/pipeline/internal/contextwin"
	"github.com/atomik-io/pipeline/internal/events"
	"github.com/atomik-io/pipeline/internal/feedback"
	"github.com/atomik-io/pipeline/internal/knowledge"
	"github.com/atomik-io/pipeline/internal/manifest"
	"github.com/atomik-io/pipeline/internal/orchestrator"
	"github.com/atomik-io/pipeline/internal/parallel"
	"github.com/atomik-io/pipeline/internal/persistence"
	"github.com/atomik-io/pipeline/internal/promptcache"
	"github.com/atomik-io/pipeline/internal/router"
	"github.com/atomik-io/pipeline/internal/scheduler"
	"github.com/atomik-io/pipeline/internal/stage"
)

func main() {
	schemaPath := flag.String("schema", "", "path to the schema JSON file")
	langsFlag := flag.String("langs", "", "comma-separated languages (default: config)")
	budgetFlag := flag.Int("budget", -1, "token budget for this run (-1: config, 0: unlimited)")
	dryRun := flag.Bool("dry-run", false, "print the decomposition plan and routing decisions without executing")
	noHardware := flag.Bool("no-hardware", false, "skip hardware simulation")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *schemaPath == "" {
		fmt.Fprintln(os.Stderr, "usage: atomikpipe -schema <path> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(*verbose)
	defer logger.Sync()

	if err := run(ctx, logger, *schemaPath, *langsFlag, *budgetFlag, *dryRun, *noHardware); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func run(ctx context.Context, logger *zap.Logger, schemaPath, langsFlag string, budgetLimit int, dryRun, noHardware bool) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	langs := cfg.Languages
	if langsFlag != "" {
		langs = strings.Split(langsFlag, ",")
	}
	if budgetLimit < 0 {
		budgetLimit = cfg.Budget.Limit
	}
	includeHardware := cfg.IncludeHardware && !noHardware

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaData, &schema); err != nil {
		return fmt.Errorf("parse schema %s: %w", schemaPath, err)
	}
	schemaName := strings.TrimSuffix(filepath.Base(schemaPath), filepath.Ext(schemaPath))
	contentHash := sha256Hex(schemaData)

	plan := parallel.NewDecomposer().DecomposeFullPipeline(langs, includeHardware)
	dag, err := buildDAG(plan)
	if err != nil {
		return fmt.Errorf("build DAG: %w", err)
	}

	overrides, err := tierOverrides(cfg.Router.TierOverrides)
	if err != nil {
		return err
	}
	adaptive := router.NewAdaptiveRouter(router.NewStaticRouter(overrides), nil)

	if dryRun {
		return printPlan(plan, adaptive, schema, budgetLimit)
	}

	checkpoint, err := manifest.OpenCheckpoint(cfg.CheckpointDir)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}

	kb := knowledge.NewKnowledgeBase()
	if _, err := kb.Load(cfg.KnowledgePath()); err != nil {
		logger.Warn("knowledge base unavailable", zap.Error(err))
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.AuditPath())
	if err != nil {
		logger.Warn("audit store unavailable", zap.Error(err))
		store = nil
	} else {
		defer store.Close()
	}

	cache, err := promptcache.New(promptcache.DefaultMaxEntries, 0)
	if err != nil {
		return fmt.Errorf("create prompt cache: %w", err)
	}

	ctxMgr := contextwin.NewManager(cfg.Context.MaxTokens, cfg.Context.UtilizationLimit,
		contextwin.WithStaleThreshold(cfg.Context.StaleThreshold))
	ctxMgr.AddSegment("schema_"+schemaName, string(schemaData), contextwin.TypeSchema,
		[]string{"generate", "verify_test"})

	bus := events.NewBus()
	defer bus.Close()

	runnerCfg := orchestrator.RunnerConfig{
		DAG:           dag,
		Handlers:      buildHandlers(cfg, plan, checkpoint, schemaName, contentHash),
		Bus:           bus,
		Router:        adaptive,
		Budget:        budget.New(budgetLimit),
		Predictor:     budget.NewPredictor(cfg.Budget.PredictorDefault),
		Context:       ctxMgr,
		Cache:         cache,
		Logger:        logger,
		MaxWorkers:    cfg.Executor.MaxWorkers,
		FeedbackDepth: cfg.Feedback.MaxDepth,
		Hooks:         buildFeedbackHooks(cfg, kb, logger),
		SchemaName:    schemaName,
		Schema:        schema,
		SchemaPath:    schemaPath,
	}
	if store != nil {
		runnerCfg.Store = store
	}

	runner, err := orchestrator.NewRunner(runnerCfg)
	if err != nil {
		return err
	}

	result, runErr := runner.Run(ctx)
	fmt.Print(orchestrator.Report(result))

	if result.Success {
		if err := checkpoint.UpdateSchema(schemaName, contentHash, nil, map[string]any{
			"tokens_consumed": result.TotalTokens,
			"duration_ms":     result.Duration.Milliseconds(),
		}); err != nil {
			logger.Warn("update checkpoint", zap.Error(err))
		}
	}
	if err := kb.Save(cfg.KnowledgePath()); err != nil {
		logger.Warn("save knowledge base", zap.Error(err))
	}

	if runErr != nil {
		return runErr
	}
	if !result.Success {
		return fmt.Errorf("pipeline finished with failures")
	}
	return nil
}

// logicalStage maps a plan task to the stage name the router's class
// table is keyed on. Per-language task IDs (gen_python, verify_rust)
// all route as their logical stage, the way the tier table expects.
func logicalStage(task parallel.Task) string {
	switch task.Type {
	case parallel.TypeGenerate:
		return "generate"
	case parallel.TypeVerify:
		return "verify_test"
	case parallel.TypeSynthesize:
		return "hardware_sim"
	}
	if task.ID == "metrics" {
		return "metrics_collect"
	}
	return task.ID
}

// buildDAG converts a decomposition plan into a scheduler DAG. Plan
// tasks arrive in dependency order, so insertion never dangles.
func buildDAG(plan *parallel.Plan) (*scheduler.DAG, error) {
	dag := scheduler.NewDAG()
	for _, task := range plan.Tasks {
		meta := map[string]string{}
		if task.Language != "" {
			meta["language"] = task.Language
		}
		if err := dag.AddTask(&scheduler.Task{
			ID:        task.ID,
			Stage:     logicalStage(task),
			DependsOn: task.Dependencies,
			Metadata:  meta,
		}); err != nil {
			return nil, err
		}
	}
	return dag, nil
}

// buildHandlers wires a handler per plan task. Validate, diff, and
// metrics run locally; generation, verification, and synthesis shell
// out to the tools named in the config. A task type with no tool
// configured reports a skipped stage so the rest of the pipeline can
// proceed.
func buildHandlers(cfg *config.PipelineConfig, plan *parallel.Plan, checkpoint *manifest.Checkpoint, schemaName, contentHash string) map[string]stage.Handler {
	handlers := make(map[string]stage.Handler, len(plan.Tasks))
	for _, task := range plan.Tasks {
		switch task.ID {
		case "validate":
			handlers[task.ID] = validateHandler()
		case "diff":
			handlers[task.ID] = diffHandler(checkpoint, schemaName, contentHash)
		case "metrics":
			handlers[task.ID] = metricsHandler()
		default:
			handlers[task.ID] = toolHandler(task, cfg.Tools[task.Type])
		}
	}
	return handlers
}

func validateHandler() stage.Handler {
	return stage.HandlerFunc{StageName: "validate", Fn: func(ctx context.Context, req stage.Request) (*stage.Manifest, error) {
		m := stage.NewManifest("validate")
		fields, ok := req.Schema["delta_fields"].(map[string]any)
		if !ok || len(fields) == 0 {
			return m, fmt.Errorf("schema has no delta_fields")
		}
		m.ValidationLevel = "full"
		m.Metrics["field_count"] = len(fields)
		return m, nil
	}}
}

// diffHandler short-circuits regeneration when the schema content is
// unchanged since the last successful run.
func diffHandler(checkpoint *manifest.Checkpoint, schemaName, contentHash string) stage.Handler {
	return stage.HandlerFunc{StageName: "diff", Fn: func(ctx context.Context, req stage.Request) (*stage.Manifest, error) {
		m := stage.NewManifest("diff")
		changed := !checkpoint.IsCurrent(schemaName, contentHash)
		m.Metrics["changed"] = changed
		if !changed {
			m.Warnings = append(m.Warnings, "schema unchanged since last run")
		}
		return m, nil
	}}
}

func metricsHandler() stage.Handler {
	return stage.HandlerFunc{StageName: "metrics", Fn: func(ctx context.Context, req stage.Request) (*stage.Manifest, error) {
		m := stage.NewManifest("metrics")
		if req.Previous != nil {
			m.Metrics["upstream_status"] = string(req.Previous.Status)
		}
		return m, nil
	}}
}

// toolHandler shells out to an external command: <tool> <schema> <language>.
// The unchanged-schema signal from the diff stage skips the invocation.
func toolHandler(task parallel.Task, tool string) stage.Handler {
	return stage.HandlerFunc{StageName: task.ID, Fn: func(ctx context.Context, req stage.Request) (*stage.Manifest, error) {
		m := stage.NewManifest(task.ID)
		if req.Previous != nil {
			if changed, ok := req.Previous.Metrics["changed"].(bool); ok && !changed {
				m.Status = stage.StatusSkipped
				return m, nil
			}
		}
		if tool == "" {
			m.Status = stage.StatusSkipped
			m.Warnings = append(m.Warnings, fmt.Sprintf("no tool configured for %s tasks", task.Type))
			return m, nil
		}

		cmd := exec.CommandContext(ctx, tool, req.SchemaPath, task.Language)
		out, err := cmd.CombinedOutput()
		if err != nil {
			for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
				if line != "" {
					m.Errors = append(m.Errors, line)
				}
			}
			return m, fmt.Errorf("%s: %w", tool, err)
		}
		m.TokensConsumed = len(out) / 4
		return m, nil
	}}
}

// buildFeedbackHooks connects the feedback loop to the knowledge base
// and the configured verification tools. Diagnosis escalation runs
// behind a circuit breaker; with no diagnostic tool configured, loop
// recovery is KB-only.
func buildFeedbackHooks(cfg *config.PipelineConfig, kb *knowledge.KnowledgeBase, logger *zap.Logger) *feedback.Hooks {
	classifier := feedback.NewErrorClassifier()

	diagnose := feedback.Diagnose(func(ctx context.Context, language, errorClass string, errs []string) (string, int, error) {
		return "", 0, fmt.Errorf("no diagnostic tool configured")
	})
	diagnose = feedback.WithResilience(diagnose,
		feedback.NewDiagnosisBreaker("diagnosis", logger),
		feedback.DefaultRetryConfig())

	return &feedback.Hooks{
		Classify: func(language string, errs []string) feedback.Diagnosis {
			return classifier.Classify(language, errs)
		},
		Lookup: func(language, errorClass, errorMessage string) (bool, string) {
			result := kb.Lookup(language, errorClass, errorMessage)
			if !result.Found {
				return false, ""
			}
			return true, result.Pattern.FixTemplate
		},
		Apply: func(language, errorClass, fixDescription string) bool {
			// Fixes are advisory until a repair tool is configured.
			return false
		},
		Diagnose: diagnose,
		Verify: func(language string) (bool, []string) {
			tool := cfg.Tools["verify"]
			if tool == "" {
				return false, []string{"no verify tool configured"}
			}
			out, err := exec.Command(tool, language).CombinedOutput()
			if err != nil {
				return false, strings.Split(strings.TrimSpace(string(out)), "\n")
			}
			return true, nil
		},
		Record: func(language, errorClass, errorMessage, fixDescription string) {
			kb.Learn(language, errorClass, errorMessage, fixDescription)
		},
	}
}

func tierOverrides(names map[string]string) (map[string]router.Tier, error) {
	if len(names) == 0 {
		return nil, nil
	}
	overrides := make(map[string]router.Tier, len(names))
	for stageName, tierName := range names {
		tier, err := router.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("tier override for %s: %w", stageName, err)
		}
		overrides[stageName] = tier
	}
	return overrides, nil
}

func printPlan(plan *parallel.Plan, adaptive *router.AdaptiveRouter, schema map[string]any, budgetLimit int) error {
	hash, err := router.SchemaHash(schema)
	if err != nil {
		return err
	}

	fmt.Printf("plan: %d tasks, max parallelism %d\n\n", plan.TaskCount(), plan.MaxParallelism())
	total := 0
	for _, task := range plan.Tasks {
		tier := adaptive.Route(router.Request{
			Stage:      logicalStage(task),
			Schema:     schema,
			SchemaHash: hash,
		})
		estimate := router.TokenEstimate[tier]
		total += estimate
		deps := ""
		if len(task.Dependencies) > 0 {
			deps = " <- " + strings.Join(task.Dependencies, ", ")
		}
		fmt.Printf("  %-16s %-7s ~%6d tokens%s\n", task.ID, tier, estimate, deps)
	}
	fmt.Printf("\nestimated total: %d tokens", total)
	if budgetLimit > 0 {
		fmt.Printf(" (budget %d)", budgetLimit)
	}
	fmt.Println()
	return nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
