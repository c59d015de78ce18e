// Command nipoppy-core is a thin demonstration wiring point over the
// engine in internal/dataset. The full command-line surface and
// argument parsing is out of scope (spec.md §1 "external collaborators
// only"); this binary exists to exercise the engine end-to-end and to
// give the package layout a buildable entrypoint, in the teacher's
// flag-based, log/slog style (cortex's cmd/cortex/main.go).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antigravity-dev/nipoppy-go/internal/dataset"
	"github.com/antigravity-dev/nipoppy-go/internal/hpc"
	"github.com/antigravity-dev/nipoppy-go/internal/layout"
	"github.com/antigravity-dev/nipoppy-go/internal/scheduler"
)

func configureLogger(dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	datasetRoot := flag.String("dataset", ".", "path to the dataset root")
	action := flag.String("action", "", "reorg | bidsify | process | extract | track-curation | track-processing")
	pipeline := flag.String("pipeline", "", "pipeline name (bidsify/process/extract/track-processing)")
	version := flag.String("pipeline-version", "", "pipeline version (defaults to the catalog's latest)")
	step := flag.String("step", "", "pipeline step (defaults to the bundle's first step)")
	participant := flag.String("participant", "", "restrict to one participant_id")
	session := flag.String("session", "", "restrict to one session_id")
	hpcKind := flag.String("hpc", "", "submit via an HPC adapter (slurm|sge|...) instead of running locally")
	regenerate := flag.Bool("regenerate", false, "track-curation: discard prior rows before rewalking")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	logger := configureLogger(*dev)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, runOptions{
		datasetRoot: *datasetRoot,
		action:      *action,
		pipeline:    *pipeline,
		version:     *version,
		step:        *step,
		participant: *participant,
		session:     *session,
		hpcKind:     *hpcKind,
		regenerate:  *regenerate,
	}); err != nil {
		logger.Error("nipoppy-core failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	datasetRoot string
	action      string
	pipeline    string
	version     string
	step        string
	participant string
	session     string
	hpcKind     string
	regenerate  bool
}

// run loads the dataset, takes the locking discipline spec.md §5
// mandates (shared lock to read, exclusive lock to write the status
// tables), and dispatches to the requested action.
func run(ctx context.Context, logger *slog.Logger, opts runOptions) error {
	if strings.TrimSpace(opts.action) == "" {
		return fmt.Errorf("nipoppy-core: -action is required")
	}

	eng, err := dataset.Open(opts.datasetRoot)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}

	unlockShared, err := eng.Lock.Shared(ctx)
	if err != nil {
		return fmt.Errorf("acquire shared lock: %w", err)
	}
	tables, err := eng.LoadTables()
	unlockShared()
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	sel := scheduler.Selector{
		ParticipantID:   opts.participant,
		SessionID:       opts.session,
		PipelineName:    opts.pipeline,
		PipelineVersion: opts.version,
		Step:            opts.step,
	}

	switch scheduler.Action(opts.action) {
	case "track-curation":
		return runTrackCuration(ctx, logger, eng, tables, opts.regenerate)
	case scheduler.ActionTrackProcessing:
		return runTrackProcessing(ctx, logger, eng, tables, sel)
	case scheduler.ActionReorg:
		return runReorg(logger, eng, tables, sel)
	case scheduler.ActionBidsify, scheduler.ActionProcess, scheduler.ActionExtract:
		return runPipeline(ctx, logger, eng, tables, scheduler.Action(opts.action), sel, opts)
	default:
		return fmt.Errorf("nipoppy-core: unknown action %q", opts.action)
	}
}

func runTrackCuration(ctx context.Context, logger *slog.Logger, eng *dataset.Engine, tables *dataset.Tables, regenerate bool) error {
	updated, err := eng.RunTrackCuration(tables, regenerate)
	if err != nil {
		return err
	}
	unlock, err := eng.Lock.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("acquire exclusive lock: %w", err)
	}
	defer unlock()
	if err := eng.SaveCurationStatus(updated); err != nil {
		return err
	}
	logger.Info("track-curation complete", "rows", len(updated.Rows))
	return nil
}

func runTrackProcessing(ctx context.Context, logger *slog.Logger, eng *dataset.Engine, tables *dataset.Tables, sel scheduler.Selector) error {
	updated, err := eng.RunTrackProcessing(tables, sel)
	if err != nil {
		return err
	}
	unlock, err := eng.Lock.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("acquire exclusive lock: %w", err)
	}
	defer unlock()
	if err := eng.SaveProcessingStatus(updated); err != nil {
		return err
	}
	logger.Info("track-processing complete", "rows", len(updated.Rows))
	return nil
}

func runReorg(logger *slog.Logger, eng *dataset.Engine, tables *dataset.Tables, sel scheduler.Selector) error {
	units, err := eng.RunReorg(tables, sel)
	if err != nil {
		return err
	}
	logger.Info("reorg complete", "units", len(units))
	return nil
}

// runPipeline covers bidsify/process/extract: either run every unit
// locally or hand the whole batch to the HPC emitter as one array job
// (spec.md §4.6/§4.8).
func runPipeline(ctx context.Context, logger *slog.Logger, eng *dataset.Engine, tables *dataset.Tables, action scheduler.Action, sel scheduler.Selector, opts runOptions) error {
	if strings.TrimSpace(opts.hpcKind) == "" {
		results, err := eng.RunLocal(ctx, tables, action, sel)
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if r.Err != nil || r.Outcome.ExitCode != 0 {
				failed++
				logger.Error("unit failed", "participant_id", r.Unit.ParticipantID, "session_id", r.Unit.SessionID,
					"pipeline", r.Unit.Pipeline.String(), "step", r.Unit.Step, "exit_code", r.Outcome.ExitCode, "error", r.Err)
				continue
			}
			logger.Info("unit ok", "participant_id", r.Unit.ParticipantID, "session_id", r.Unit.SessionID,
				"pipeline", r.Unit.Pipeline.String(), "step", r.Unit.Step, "log", r.Outcome.LogPath)
		}
		if failed > 0 {
			return fmt.Errorf("nipoppy-core: %d/%d units failed", failed, len(results))
		}
		return nil
	}

	templatePath, err := eng.Layout.Path(layout.HPCTemplate, nil)
	if err != nil {
		return err
	}
	templateBytes, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("read hpc template: %w", err)
	}
	logRoot, err := eng.Layout.Path(layout.Logs, nil)
	if err != nil {
		return err
	}

	submissionID, err := eng.RunHPC(ctx, tables, action, sel, opts.hpcKind, hpc.Data{
		ArrayIndexVar: "NIPOPPY_ARRAY_INDEX",
	}, string(templateBytes), logRoot, "sh", false)
	if err != nil {
		return err
	}
	logger.Info("hpc job submitted", "submission_id", submissionID, "hpc", opts.hpcKind)
	return nil
}
