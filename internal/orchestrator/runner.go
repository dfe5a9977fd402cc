// Package orchestrator drives the pipeline: it schedules stages over
// the dependency DAG, routes each stage to an execution tier, manages
// the token budget and context window, and feeds failures through the
// self-correction loop before giving up on a stage.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atomik-io/pipeline/internal/budget"
	"github.com/atomik-io/pipeline/internal/contextwin"
	"github.com/atomik-io/pipeline/internal/events"
	"github.com/atomik-io/pipeline/internal/feedback"
	"github.com/atomik-io/pipeline/internal/persistence"
	"github.com/atomik-io/pipeline/internal/promptcache"
	"github.com/atomik-io/pipeline/internal/router"
	"github.com/atomik-io/pipeline/internal/scheduler"
	"github.com/atomik-io/pipeline/internal/stage"
)

// RunnerConfig wires the runner's collaborators. DAG, Handlers, and
// Router are required; everything else degrades gracefully when nil.
type RunnerConfig struct {
	DAG       *scheduler.DAG
	Handlers  map[string]stage.Handler // keyed by task ID, falling back to stage name
	Bus       *events.Bus
	Router    *router.AdaptiveRouter
	Budget    *budget.Budget
	Predictor *budget.Predictor
	Context   *contextwin.Manager
	Cache     *promptcache.Cache
	Store     persistence.Store // optional audit store
	Logger    *zap.Logger

	// Feedback loop for failing stages. Nil hooks make failures final.
	FeedbackDepth int
	Hooks         *feedback.Hooks

	MaxWorkers int

	SchemaName string
	Schema     map[string]any
	SchemaPath string
}

// RunResult is the aggregated outcome of one pipeline run.
type RunResult struct {
	RunID        string
	Success      bool
	Manifests    map[string]*stage.Manifest
	Decisions    []router.Decision
	Efficiency   budget.Efficiency
	CriticalPath []string
	TotalTokens  int
	Duration     time.Duration
}

// Runner executes the pipeline DAG wave by wave.
type Runner struct {
	cfg        RunnerConfig
	loop       *feedback.Loop
	manifests  map[string]*stage.Manifest
	runID      string
	schemaHash string
	logger     *zap.Logger
}

// NewRunner validates the config and creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.DAG == nil {
		return nil, fmt.Errorf("runner requires a DAG")
	}
	if len(cfg.Handlers) == 0 {
		return nil, fmt.Errorf("runner requires at least one stage handler")
	}
	if cfg.Router == nil {
		cfg.Router = router.NewAdaptiveRouter(nil, nil)
	}
	if cfg.Budget == nil {
		cfg.Budget = budget.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}

	r := &Runner{
		cfg:       cfg,
		manifests: make(map[string]*stage.Manifest),
		logger:    cfg.Logger,
	}
	if cfg.Hooks != nil {
		r.loop = feedback.NewLoop(cfg.FeedbackDepth, cfg.Bus, cfg.Logger)
	}
	if cfg.Schema != nil {
		hash, err := router.SchemaHash(cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("hash schema: %w", err)
		}
		r.schemaHash = hash
	}
	return r, nil
}

// Run executes the DAG until every task reaches a terminal state or
// the context is cancelled. A failed stage that the feedback loop
// cannot resolve skips its entire downstream cone; independent
// branches keep running.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	r.runID = uuid.NewString()
	r.emit(events.PipelineDone, map[string]any{
		"status": "started",
		"run_id": r.runID,
		"tasks":  len(r.cfg.DAG.Tasks()),
	})
	r.auditStart(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, start), err
		}

		ready := r.cfg.DAG.ReadyTasks()
		if len(ready) == 0 {
			break
		}

		prepared := make([]*dispatch, 0, len(ready))
		for _, task := range ready {
			r.emit(events.TaskReady, map[string]any{
				"task_id": task.ID,
				"stage":   task.Stage,
			})
			d, err := r.prepare(ctx, task)
			if err != nil {
				r.failTask(ctx, task, err, nil)
				continue
			}
			prepared = append(prepared, d)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.MaxWorkers)
		for _, d := range prepared {
			g.Go(func() error {
				d.manifest = stage.Run(gctx, d.handler, d.request)
				return nil
			})
		}
		g.Wait()

		// Feedback, bookkeeping, and state transitions stay on the
		// coordinating goroutine: the knowledge base, budget, and
		// router are single-threaded.
		for _, d := range prepared {
			r.settle(ctx, d)
		}
	}

	result := r.finish(ctx, start)
	return result, nil
}

// dispatch carries one task through a wave.
type dispatch struct {
	task     *scheduler.Task
	handler  stage.Handler
	request  stage.Request
	tier     router.Tier
	estimate int
	manifest *stage.Manifest
}

// prepare routes the task, checks the budget, loads the context
// window, and marks the task running.
func (r *Runner) prepare(ctx context.Context, task *scheduler.Task) (*dispatch, error) {
	handler, ok := r.cfg.Handlers[task.ID]
	if !ok {
		handler, ok = r.cfg.Handlers[task.Stage]
	}
	if !ok {
		return nil, fmt.Errorf("no handler for task %q (stage %q)", task.ID, task.Stage)
	}

	// Cache by task ID: tasks sharing a logical stage (one generation
	// task per language) must not share prompts.
	cacheHit := false
	cachedPrompt := ""
	if r.cfg.Cache != nil && r.schemaHash != "" {
		cachedPrompt, cacheHit = r.cfg.Cache.Get(task.ID, r.schemaHash)
	}

	tier := r.cfg.Router.Route(router.Request{
		Stage:          task.Stage,
		Schema:         r.cfg.Schema,
		SchemaHash:     r.schemaHash,
		BudgetPressure: r.cfg.Budget.Pressure(),
		CacheHit:       cacheHit,
	})

	estimate := router.TokenEstimate[tier]
	if r.cfg.Predictor != nil {
		if predicted := r.cfg.Predictor.PredictAndTrack(task.Stage); predicted > 0 {
			estimate = predicted
		}
	}
	r.cfg.Budget.SetEstimate(task.ID, estimate)
	if !r.cfg.Budget.CanAfford(estimate) {
		remaining, _ := r.cfg.Budget.Remaining()
		r.emit(events.BudgetWarning, map[string]any{
			"task_id":   task.ID,
			"stage":     task.Stage,
			"estimated": estimate,
			"remaining": remaining,
		})
		r.logger.Warn("budget cannot afford stage estimate",
			zap.String("task", task.ID),
			zap.Int("estimated", estimate),
			zap.Int("remaining", remaining))
	}

	windowContent := cachedPrompt
	if r.cfg.Context != nil {
		r.cfg.Context.LoadForTask(task.Stage, nil)
		if windowContent == "" {
			windowContent = r.cfg.Context.BuildContext(task.Stage)
			if r.cfg.Cache != nil && r.schemaHash != "" && windowContent != "" {
				r.cfg.Cache.Put(task.ID, r.schemaHash, windowContent, 0)
			}
		}
	}

	if err := r.cfg.DAG.MarkRunning(task.ID); err != nil {
		return nil, err
	}
	r.emit(events.TaskStarted, map[string]any{
		"task_id": task.ID,
		"stage":   task.Stage,
		"tier":    tier.String(),
	})

	return &dispatch{
		task:    task,
		handler: handler,
		request: stage.Request{
			Schema:     r.cfg.Schema,
			SchemaPath: r.cfg.SchemaPath,
			Previous:   r.previousManifest(task),
			Context:    windowContent,
			Tier:       tier.String(),
			Language:   task.Metadata["language"],
		},
		tier:     tier,
		estimate: estimate,
	}, nil
}

// settle consumes a wave result: feedback on failure, then budget,
// predictor, router, audit, and DAG bookkeeping.
func (r *Runner) settle(ctx context.Context, d *dispatch) {
	manifest := d.manifest
	tokens := manifest.TokensConsumed

	if manifest.Status == stage.StatusFailed && r.loop != nil && len(manifest.Errors) > 0 {
		fbResult := r.loop.Run(ctx, d.request.Language, manifest.Errors, *r.cfg.Hooks)
		tokens += fbResult.TotalTokens
		r.auditIterations(ctx, d.task, fbResult.Iterations)
		if fbResult.Outcome.Resolved() {
			manifest.Status = stage.StatusSuccess
			manifest.Errors = nil
			manifest.Warnings = append(manifest.Warnings,
				fmt.Sprintf("recovered by feedback loop after %d iteration(s)", len(fbResult.Iterations)))
		} else {
			manifest.Errors = fbResult.FinalErrors
		}
	}
	manifest.TokensConsumed = tokens
	r.manifests[d.task.ID] = manifest

	r.cfg.Budget.Record(d.task.Stage, d.tier.String(), tokens, d.task.ID)
	if r.cfg.Predictor != nil {
		r.cfg.Predictor.FinalizePrediction(d.task.Stage, tokens)
	}
	r.auditLedger(ctx, d, tokens)

	if manifest.Status.Success() {
		r.cfg.Router.RecordSuccess(r.schemaHash)
		if err := r.cfg.DAG.MarkCompleted(d.task.ID, map[string]any{"stage": d.task.Stage}); err != nil {
			r.logger.Error("mark completed", zap.String("task", d.task.ID), zap.Error(err))
		}
		r.emit(events.TaskCompleted, map[string]any{
			"task_id":         d.task.ID,
			"duration_ms":     manifest.Duration.Milliseconds(),
			"tokens_consumed": tokens,
		})
		return
	}

	r.cfg.Router.RecordFailure(r.schemaHash)
	r.failTask(ctx, d.task, fmt.Errorf("stage %s failed: %v", d.task.Stage, manifest.Errors), manifest.Errors)
}

// failTask marks a task failed and skips its downstream cone.
func (r *Runner) failTask(ctx context.Context, task *scheduler.Task, err error, errs []string) {
	if markErr := r.cfg.DAG.MarkFailed(task.ID, err); markErr != nil {
		r.logger.Error("mark failed", zap.String("task", task.ID), zap.Error(markErr))
	}
	r.emit(events.TaskFailed, map[string]any{
		"task_id": task.ID,
		"errors":  errs,
	})
	r.logger.Warn("task failed", zap.String("task", task.ID), zap.Error(err))
	r.skipDownstream(task.ID)
}

// skipDownstream marks every pending transitive dependent skipped.
func (r *Runner) skipDownstream(taskID string) {
	for _, depID := range r.cfg.DAG.Dependents(taskID) {
		dep, ok := r.cfg.DAG.Get(depID)
		if !ok || dep.State != scheduler.TaskPending {
			continue
		}
		if err := r.cfg.DAG.MarkSkipped(depID); err != nil {
			continue
		}
		r.emit(events.TaskSkipped, map[string]any{
			"task_id": depID,
			"cause":   taskID,
		})
		r.skipDownstream(depID)
	}
}

func (r *Runner) previousManifest(task *scheduler.Task) *stage.Manifest {
	for i := len(task.DependsOn) - 1; i >= 0; i-- {
		if m, ok := r.manifests[task.DependsOn[i]]; ok {
			return m
		}
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, start time.Time) *RunResult {
	success := !r.cfg.DAG.HasFailures() && r.cfg.DAG.Complete()
	total := r.cfg.Budget.TotalConsumed()

	status := "success"
	if !success {
		status = "failed"
	}
	r.emit(events.PipelineDone, map[string]any{
		"status":           status,
		"run_id":           r.runID,
		"stages_completed": len(r.manifests),
		"total_tokens":     total,
	})

	critical, err := r.cfg.DAG.CriticalPath()
	if err != nil {
		r.logger.Warn("critical path", zap.Error(err))
	}

	r.auditFinish(ctx, success, total)

	return &RunResult{
		RunID:        r.runID,
		Success:      success,
		Manifests:    r.manifests,
		Decisions:    r.cfg.Router.Decisions(),
		Efficiency:   r.cfg.Budget.Efficiency(),
		CriticalPath: critical,
		TotalTokens:  total,
		Duration:     time.Since(start),
	}
}

func (r *Runner) emit(eventType events.Type, payload map[string]any) {
	if r.cfg.Bus == nil {
		return
	}
	r.cfg.Bus.Emit(events.New(eventType, payload, "orchestrator"))
}

// Audit writes are best-effort: a broken audit store degrades to log
// warnings, never to a failed pipeline.

func (r *Runner) auditStart(ctx context.Context) {
	if r.cfg.Store == nil {
		return
	}
	err := r.cfg.Store.SaveRun(ctx, persistence.RunRecord{
		ID:        r.runID,
		Schema:    r.cfg.SchemaName,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("audit run start", zap.Error(err))
	}
}

func (r *Runner) auditLedger(ctx context.Context, d *dispatch, tokens int) {
	if r.cfg.Store == nil {
		return
	}
	err := r.cfg.Store.SaveLedgerEntry(ctx, persistence.LedgerRecord{
		RunID:  r.runID,
		Stage:  d.task.Stage,
		Tier:   d.tier.String(),
		Tokens: tokens,
	})
	if err != nil {
		r.logger.Warn("audit ledger", zap.Error(err))
	}
}

func (r *Runner) auditIterations(ctx context.Context, task *scheduler.Task, iterations []feedback.Iteration) {
	if r.cfg.Store == nil {
		return
	}
	for _, it := range iterations {
		err := r.cfg.Store.SaveIteration(ctx, persistence.IterationRecord{
			RunID:      r.runID,
			Stage:      task.Stage,
			Number:     it.Number,
			ErrorClass: it.ErrorClass,
			FixSource:  it.FixSource,
			Resolved:   it.ReVerifyPassed,
			Tokens:     it.TokensConsumed,
		})
		if err != nil {
			r.logger.Warn("audit iteration", zap.Error(err))
		}
	}
}

func (r *Runner) auditFinish(ctx context.Context, success bool, tokens int) {
	if r.cfg.Store == nil {
		return
	}
	for _, d := range r.cfg.Router.Decisions() {
		err := r.cfg.Store.SaveDecision(ctx, persistence.DecisionRecord{
			RunID:      r.runID,
			Stage:      d.Stage,
			Tier:       d.SelectedName,
			Reason:     d.Reason,
			Complexity: d.ComplexityScore,
		})
		if err != nil {
			r.logger.Warn("audit decision", zap.Error(err))
		}
	}
	if err := r.cfg.Store.FinishRun(ctx, r.runID, success, tokens); err != nil {
		r.logger.Warn("audit run finish", zap.Error(err))
	}
}
