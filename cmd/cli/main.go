// Command evalharness drives the batch evaluation pipeline from the
// command line (§6's minimal CLI surface). It is intentionally thin: flag
// parsing and wiring only, every real decision lives in internal/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/application"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/evalharness/evalharness/internal/infrastructure/config"
	"github.com/evalharness/evalharness/internal/infrastructure/ledger"
	"github.com/evalharness/evalharness/internal/infrastructure/llm"
	"github.com/evalharness/evalharness/internal/infrastructure/logger"
	"github.com/evalharness/evalharness/internal/infrastructure/monitoring"
	"github.com/evalharness/evalharness/internal/infrastructure/ratelimiter"
	"github.com/evalharness/evalharness/internal/infrastructure/store"
	"github.com/evalharness/evalharness/internal/infrastructure/worklib"
	"github.com/evalharness/evalharness/internal/interfaces/cli"
	statushttp "github.com/evalharness/evalharness/internal/interfaces/http"
	appErrors "github.com/evalharness/evalharness/pkg/errors"
	"github.com/evalharness/evalharness/pkg/safego"
)

const cliName = "evalharness"

func main() {
	var (
		model         string
		count         int
		difficulty    string
		taskTypes     []string
		promptTypes   []string
		workers       int
		qps           float64
		adaptive      bool
		checkpointN   int
		timeoutSecs   int
		saveLogs      bool
		clearResults  bool
		progressEvery int
	)

	root := &cobra.Command{
		Use:   cliName,
		Short: "Concurrent LLM evaluation harness",
		Long:  "evalharness drives many LLM-backed tests through rate-limited provider APIs and accumulates per-(model, task-type, prompt-type, difficulty) statistics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(runOptions{
				model:         model,
				count:         count,
				difficulty:    difficulty,
				taskTypes:     taskTypes,
				promptTypes:   promptTypes,
				workers:       workers,
				qps:           qps,
				adaptive:      adaptive,
				checkpointN:   checkpointN,
				timeoutSecs:   timeoutSecs,
				saveLogs:      saveLogs,
				clearResults:  clearResults,
				progressEvery: progressEvery,
			})
		},
	}

	flags := root.Flags()
	flags.StringVar(&model, "model", "", "model id to evaluate (required unless --clear)")
	flags.IntVar(&count, "count", 1, "instances per (task_type, prompt_type, difficulty) cell")
	flags.StringVar(&difficulty, "difficulty", "all", "difficulty filter, or \"all\"")
	flags.StringSliceVar(&taskTypes, "task-types", []string{"all"}, "task type filter, or \"all\"")
	flags.StringSliceVar(&promptTypes, "prompt-types", []string{"all"}, "prompt type filter, or \"all\"")
	flags.IntVar(&workers, "workers", 5, "worker pool size")
	flags.Float64Var(&qps, "qps", 10, "initial queries per second")
	flags.BoolVar(&adaptive, "adaptive", true, "enable the adaptive rate limiter's auto-scaling")
	flags.IntVar(&checkpointN, "checkpoint-interval", 20, "records between store checkpoints (0 disables)")
	flags.IntVar(&timeoutSecs, "timeout", 600, "soft per-task timeout in seconds (clamped to 900)")
	flags.BoolVar(&saveLogs, "save-logs", false, "persist a transcript file per test")
	flags.BoolVar(&clearResults, "clear", false, "clear stored results for --model (or all models if --model is empty) and exit")
	flags.IntVar(&progressEvery, "progress", 10, "log progress every N completions (0 disables)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if appErrors.IsInfrastructureFailure(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type runOptions struct {
	model         string
	count         int
	difficulty    string
	taskTypes     []string
	promptTypes   []string
	workers       int
	qps           float64
	adaptive      bool
	checkpointN   int
	timeoutSecs   int
	saveLogs      bool
	clearResults  bool
	progressEvery int
}

// runBatch wires C2-C7 from config, plans the task set, and drives it
// through the BatchRunner. Per §6: exit 0 on completion even with failed
// tests; exit != 0 only on an infrastructure error (no provider, no store).
func runBatch(opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return appErrors.NewInternalErrorWithCause("config", err)
	}

	log, err := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: firstNonEmpty(cfg.Log.OutputPath, "stdout")})
	if err != nil {
		return appErrors.NewInternalErrorWithCause("logger init", err)
	}
	defer log.Sync()

	cfg.Store.CheckpointInterval = opts.checkpointN

	resultStore, err := store.New(cfg.Store, log)
	if err != nil {
		return appErrors.NewStoreUnavailableError("result store init", err)
	}
	defer resultStore.Close()

	if opts.clearResults {
		if err := resultStore.Clear(opts.model); err != nil {
			return appErrors.NewStoreUnavailableError("clear", err)
		}
		if err := resultStore.Flush(); err != nil {
			return appErrors.NewStoreUnavailableError("flush after clear", err)
		}
		log.Info("cleared stored results", zap.String("model", opts.model))
		return nil
	}

	if opts.model == "" {
		return appErrors.NewInvalidInputError("--model is required")
	}
	if len(cfg.Providers) == 0 {
		return appErrors.NewNoProviderError("no providers configured; edit " + config.HomeDir() + "/config.yaml")
	}

	router := llm.NewRouter(log)
	var modelProvider *config.ProviderConfig
	for i := range cfg.Providers {
		p := cfg.Providers[i]
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name: p.Name, Type: p.Type, BaseURL: p.BaseURL, APIKey: p.APIKey, Models: p.Models, Priority: p.Priority,
		}, log)
		if err != nil {
			return appErrors.NewNoProviderError(fmt.Sprintf("create provider %s: %v", p.Name, err))
		}
		router.AddProvider(provider)
		for _, m := range p.Models {
			if m == opts.model {
				modelProvider = &cfg.Providers[i]
			}
		}
	}
	if modelProvider == nil {
		return appErrors.NewNoProviderError(fmt.Sprintf("model %q is not served by any configured provider", opts.model))
	}

	kind := service.ProviderKind(modelProvider.Kind)
	if kind == "" {
		kind = service.ProviderKind(config.ProfileForProviderName(modelProvider.Name))
	}
	overrides := &ratelimiter.Profile{
		InitialWorkers: opts.workers,
		InitialQPS:     opts.qps,
	}
	limiter := ratelimiter.New(kind, overrides, log)
	if !opts.adaptive {
		// Non-adaptive mode still gates on QPS/workers, it just never
		// reacts to throttles beyond the mandatory backoff: pin caps to
		// the initial values so auto-recovery/upscale have nowhere to go.
		limiter = ratelimiter.New(kind, &ratelimiter.Profile{
			InitialWorkers: opts.workers, InitialQPS: opts.qps,
			MinWorkers: opts.workers, MaxWorkers: opts.workers,
			MinQPS: opts.qps, MaxQPS: opts.qps,
		}, log)
	}

	phase2 := application.NewHeuristicPhase2Scorer(application.DefaultMaxTurns)
	executor, err := application.NewExecutor(router, phase2, log)
	if err != nil {
		return appErrors.NewInternalErrorWithCause("executor init", err)
	}

	classifier := application.NewLLMClassifier(router, opts.model, log)

	workflows, err := worklib.Load(config.HomeDir()+"/workflows.yaml", log)
	if err != nil {
		return appErrors.NewInternalErrorWithCause("workflow catalogue", err)
	}

	var completionLedger application.CompletionLedger
	if l, err := ledger.Open(cfg.Ledger); err != nil {
		log.Warn("ledger unavailable, resume/skip disabled", zap.Error(err))
	} else {
		defer l.Close()
		completionLedger = l
	}

	runner := application.NewBatchRunner(executor, classifier, resultStore, limiter, workflows, completionLedger, opts.workers, log)
	runner.ProgressEvery = opts.progressEvery
	if opts.saveLogs {
		runner.TranscriptDir = config.HomeDir() + "/transcripts"
	}

	monitor := monitoring.NewMonitor(log)
	runner.Monitor = monitor

	tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, shutdownTracer, err := monitoring.NewTracerProvider(tracerCtx, monitoring.TracerConfig{
		ServiceName: cliName,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	}, log)
	tracerCancel()
	if err != nil {
		return appErrors.NewInternalErrorWithCause("tracer init", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	if cfg.HTTPEnabled {
		statusSrv := statushttp.NewServer(statushttp.Config{Addr: cfg.HTTPAddr}, resultStore, monitor, log)
		statusSrv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := statusSrv.Stop(shutdownCtx); err != nil {
				log.Warn("status server shutdown error", zap.Error(err))
			}
		}()
	}

	tasks := application.Plan(application.PlanRequest{
		Models:      []string{opts.model},
		TaskTypes:   opts.taskTypes,
		PromptTypes: opts.promptTypes,
		Difficulty:  normalizeDifficulty(opts.difficulty),
		PerCell:     opts.count,
	})
	for i := range tasks {
		tasks[i].TimeoutSeconds = opts.timeoutSecs
	}

	log.Info("planned batch", zap.Int("tasks", len(tasks)), zap.String("model", opts.model))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	safego.Go(log, "signal-watcher", func() {
		<-sig
		log.Warn("received shutdown signal, canceling batch")
		cancel()
	})

	summary := runner.RunBatch(ctx, tasks)
	if err := resultStore.Flush(); err != nil {
		return appErrors.NewStoreUnavailableError("final flush", err)
	}

	log.Info("batch complete",
		zap.Int("total", summary.Total),
		zap.Int("full_success", summary.FullSuccess),
		zap.Int("partial", summary.Partial),
		zap.Int("failure", summary.Failure),
		zap.Int("skipped", summary.Skipped),
		zap.Int("throttle_drop", summary.ThrottleDrop),
		zap.Int("errors", summary.Errors),
	)
	fmt.Println(cli.RenderSummary(opts.model, summary))
	return nil
}

func normalizeDifficulty(d string) []string {
	if d == "" {
		return []string{"all"}
	}
	return strings.Split(d, ",")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
