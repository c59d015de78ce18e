package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/antigravity-dev/nipoppy-go/internal/config"
	"github.com/antigravity-dev/nipoppy-go/internal/curation"
	"github.com/antigravity-dev/nipoppy-go/internal/hpc"
	"github.com/antigravity-dev/nipoppy-go/internal/invocation"
	"github.com/antigravity-dev/nipoppy-go/internal/layout"
	"github.com/antigravity-dev/nipoppy-go/internal/runner"
	"github.com/antigravity-dev/nipoppy-go/internal/scheduler"
	"github.com/antigravity-dev/nipoppy-go/internal/shellquote"
	"github.com/antigravity-dev/nipoppy-go/internal/subst"
	"github.com/antigravity-dev/nipoppy-go/internal/tabular"
	"github.com/antigravity-dev/nipoppy-go/internal/tracker"
	"github.com/antigravity-dev/nipoppy-go/internal/workflow"
)

// UnitCommand is a scheduled unit paired with its fully rendered command
// and the environment used to render it — the engine's answer to
// "what would the runner execute for this unit" (spec.md §4.6/§4.7),
// produced before any process is actually started so the caller can
// choose between running locally and handing the batch to the HPC
// emitter (spec.md §4.8).
type UnitCommand struct {
	Unit    scheduler.WorkUnit
	Command string
	Env     subst.Env
	WorkDir string
	LogDir  string
}

// UnitResult is one unit's local execution outcome.
type UnitResult struct {
	Unit    scheduler.WorkUnit
	Outcome runner.Outcome
	Err     error
}

// ptypeFor maps a workflow.Type onto the global-config pipeline-variable
// namespace it reads from (spec.md §6 PIPELINE_VARIABLES.{...}).
func ptypeFor(t workflow.Type) config.PipelineType {
	switch t {
	case workflow.Bidsification:
		return config.Bidsification
	case workflow.Extraction:
		return config.Extraction
	default:
		return config.Processing
	}
}

// containerCommand renders the container invocation prefix (spec.md §1:
// "the exact container invocation syntax beyond the command prefix" is
// an external collaborator's concern; CONTAINER_COMMAND only carries the
// prefix the global config declares).
func containerCommand(cc config.ContainerConfig) string {
	cmd := cc.Command
	if len(cc.Args) > 0 {
		cmd += " " + shellquote.Join(cc.Args)
	}
	return cmd
}

// BuildUnitCommand resolves bundle+step for unit, loads its descriptor
// and invocation documents, assembles the three-tier substitution
// environment (spec.md §4.3) and renders the final command string via
// the invocation builder, without running anything.
func (e *Engine) BuildUnitCommand(unit scheduler.WorkUnit, step *workflow.Step) (UnitCommand, error) {
	bundle, err := e.Catalog.Get(unit.Pipeline.Type, unit.Pipeline.Name, unit.Pipeline.Version)
	if err != nil {
		return UnitCommand{}, err
	}

	var descriptor invocation.Descriptor
	if err := loadJSON(bundle.Dir, step.DescriptorFile, &descriptor); err != nil {
		return UnitCommand{}, fmt.Errorf("dataset: load descriptor for %s: %w", unit.Pipeline, err)
	}
	var inv invocation.Invocation
	if err := loadJSON(bundle.Dir, step.InvocationFile, &inv); err != nil {
		return UnitCommand{}, fmt.Errorf("dataset: load invocation for %s: %w", unit.Pipeline, err)
	}

	env, workDir, logDir, err := e.buildUnitEnv(bundle, unit, step)
	if err != nil {
		return UnitCommand{}, err
	}

	if step.GeneratePyBIDSDatabase {
		if err := e.materializeBIDSIndex(bundle, step, env); err != nil {
			return UnitCommand{}, err
		}
	}

	if err := e.validateInvocationTokens(bundle, inv, env); err != nil {
		return UnitCommand{}, err
	}

	cmd, err := invocation.Build(&descriptor, inv, env)
	if err != nil {
		return UnitCommand{}, fmt.Errorf("dataset: build invocation for %s: %w", unit.Pipeline, err)
	}

	return UnitCommand{Unit: unit, Command: cmd, Env: env, WorkDir: workDir, LogDir: logDir}, nil
}

// ErrUnknownPipelineVariable is the configuration error spec.md §7 names
// for "unknown pipeline variable bound to null" and the catalog failure
// kind spec.md §4.4 calls "unknown pipeline variable": an invocation
// references a [[TOKEN]] that resolves to none of the three categories
// spec.md §3 allows (a built-in runtime token, a non-null declared
// pipeline variable, or a value bound at call time).
type ErrUnknownPipelineVariable struct {
	Pipeline workflow.Key
	Token    string
	Reason   string
}

func (e *ErrUnknownPipelineVariable) Error() string {
	return fmt.Sprintf("dataset: %s invocation references [[%s]]: %s", e.Pipeline, e.Token, e.Reason)
}

// validateInvocationTokens enforces the bundle invariant in spec.md §3:
// every [[TOKEN]] an invocation references must already resolve against
// env (built-in or dataset/pipeline substitution), or — if it names one
// of the bundle's declared PIPELINE_VARIABLES — that variable must be
// bound to a non-null value in global_config.json. A declared-but-null
// variable, or a token naming nothing the bundle declares at all, is
// fatal here rather than silently rendered as literal "[[TOKEN]]" text.
func (e *Engine) validateInvocationTokens(bundle *workflow.Bundle, inv invocation.Invocation, env subst.Env) error {
	declared := make(map[string]bool, len(bundle.PipelineVariables))
	for _, name := range bundle.PipelineVariables {
		declared[name] = true
	}
	ptype := ptypeFor(bundle.Key.Type)

	seen := make(map[string]bool)
	for _, value := range inv {
		for _, token := range subst.TokensIn(value) {
			if seen[token] {
				continue
			}
			seen[token] = true

			if _, ok := env.Lookup(token); ok {
				continue
			}
			if !declared[token] {
				return &ErrUnknownPipelineVariable{
					Pipeline: bundle.Key, Token: token,
					Reason: "not a built-in, a declared pipeline variable, or a dataset substitution",
				}
			}
			bound, ok := e.Config.PipelineVariables.Lookup(ptype, bundle.Key.Name, bundle.Key.Version, token)
			if !ok || bound == nil {
				return &ErrUnknownPipelineVariable{
					Pipeline: bundle.Key, Token: token,
					Reason: "declared pipeline variable is null (not yet populated in global_config.json)",
				}
			}
		}
	}
	return nil
}

// buildUnitEnv merges scheduler built-ins and per-pipeline DPATH_*/
// FPATH_CONTAINER/CONTAINER_COMMAND values (unit tier), the bundle's
// declared pipeline variables (pipeline tier), and the dataset-wide
// SUBSTITUTIONS/DPATH_* values (dataset tier) — the precedence order of
// spec.md §4.3. DPATH_BIDS_DB is only bound when step opts into the
// per-unit BIDS index (spec.md §4.7(3)); buildUnitEnv only resolves the
// path, it never touches the filesystem — see materializeBIDSIndex.
func (e *Engine) buildUnitEnv(bundle *workflow.Bundle, unit scheduler.WorkUnit, step *workflow.Step) (subst.Env, string, string, error) {
	datasetVars, err := e.DatasetEnv()
	if err != nil {
		return subst.Env{}, "", "", err
	}

	derivRoot, err := e.Layout.Path(layout.Derivatives, nil)
	if err != nil {
		return subst.Env{}, "", "", err
	}
	pipelineRoot := filepath.Join(derivRoot, bundle.Key.Name, bundle.Key.Version)

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	workDirName := runner.WorkDirName(bundle.Key.Name, bundle.Key.Version, unit.Step, unit.ParticipantID, unit.SessionID, timestamp)
	workRoot, err := e.Layout.Path(layout.Work, nil)
	if err != nil {
		return subst.Env{}, "", "", err
	}
	workDir := filepath.Join(workRoot, workDirName)

	logRoot, err := e.Layout.Path(layout.Logs, nil)
	if err != nil {
		return subst.Env{}, "", "", err
	}
	logDir := filepath.Join(logRoot, string(unit.Action))

	containersRoot, err := e.Layout.Path(layout.Containers, nil)
	if err != nil {
		return subst.Env{}, "", "", err
	}

	dpaths := map[string]string{
		"DPATH_ROOT":            e.Root,
		"DPATH_PIPELINE":        pipelineRoot,
		"DPATH_PIPELINE_OUTPUT": filepath.Join(pipelineRoot, "output"),
		"DPATH_PIPELINE_WORK":   filepath.Join(pipelineRoot, "work"),
		"DPATH_PIPELINE_IDP":    filepath.Join(pipelineRoot, "idp"),
		"FPATH_CONTAINER":       filepath.Join(containersRoot, bundle.ContainerInfo.Path),
		"CONTAINER_COMMAND":     containerCommand(e.Config.ContainerConfig),
	}
	if step.GeneratePyBIDSDatabase {
		dpaths["DPATH_BIDS_DB"] = filepath.Join(workDir, "bids_db")
	}
	pipelineVars := pipelineVarsForStep(e.Config, ptypeFor(bundle.Key.Type), bundle.Key.Name, bundle.Key.Version)

	env := runner.BuildEnv(unit.ParticipantID, unit.SessionID, dpaths, pipelineVars, datasetVars)
	return env, workDir, logDir, nil
}

// materializeBIDSIndex walks the dataset's BIDS tree, excluding any
// patterns step.PyBIDSIgnoreFile declares, and writes the resulting
// per-unit file index to DPATH_BIDS_DB (spec.md §4.7(3)). Only called
// for steps with GeneratePyBIDSDatabase set; a no-op if env carries no
// DPATH_BIDS_DB binding.
func (e *Engine) materializeBIDSIndex(bundle *workflow.Bundle, step *workflow.Step, env subst.Env) error {
	dbPath, ok := env.Lookup("DPATH_BIDS_DB")
	if !ok {
		return nil
	}
	bidsRoot, err := e.Layout.Path(layout.BIDS, nil)
	if err != nil {
		return err
	}

	var ignore []string
	if step.PyBIDSIgnoreFile != "" {
		ignore, err = runner.LoadIgnoreList(filepath.Join(bundle.Dir, step.PyBIDSIgnoreFile))
		if err != nil {
			return fmt.Errorf("dataset: load pybids ignore list for %s: %w", bundle.Key, err)
		}
	}
	if _, err := runner.BuildBIDSIndex(bidsRoot, ignore, dbPath); err != nil {
		return fmt.Errorf("dataset: materialize bids index for %s: %w", bundle.Key, err)
	}
	return nil
}

// RunLocal schedules action/sel and executes every yielded unit
// synchronously in manifest order. A per-unit runtime error is recorded
// in its UnitResult and the loop continues to the next unit (spec.md §7:
// "the scheduler continues to the next unit"); the loop stops early only
// when ctx is cancelled, after the current unit returns. It never touches the processing status table; tracking is a
// separate operation (spec.md §4.9).
func (e *Engine) RunLocal(ctx context.Context, tables *Tables, action scheduler.Action, sel scheduler.Selector) ([]UnitResult, error) {
	sched := e.Scheduler(tables)
	units, err := sched.Run(action, sel)
	if err != nil {
		return nil, err
	}

	results := make([]UnitResult, 0, len(units))
	for _, unit := range units {
		bundle, err := e.Catalog.Get(unit.Pipeline.Type, unit.Pipeline.Name, unit.Pipeline.Version)
		if err != nil {
			results = append(results, UnitResult{Unit: unit, Err: err})
			continue
		}
		step, err := bundle.Step(unit.Step)
		if err != nil {
			results = append(results, UnitResult{Unit: unit, Err: err})
			continue
		}
		uc, err := e.BuildUnitCommand(unit, step)
		if err != nil {
			results = append(results, UnitResult{Unit: unit, Err: err})
			continue
		}
		outcome, err := runner.Run(ctx, runner.Params{Command: uc.Command, WorkDir: uc.WorkDir, LogDir: uc.LogDir})
		results = append(results, UnitResult{Unit: unit, Outcome: outcome, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return results, nil
}

// RunHPC schedules action/sel, renders every unit's command without
// executing it, and hands the whole batch to the HPC emitter as a
// single array job (spec.md §4.8). opts carries the job-wide parameters
// the template references; Commands and Preamble are filled in here.
func (e *Engine) RunHPC(ctx context.Context, tables *Tables, action scheduler.Action, sel scheduler.Selector, adapterKind string, opts hpc.Data, templateText, scriptDir, scriptExt string, keepScript bool) (string, error) {
	sched := e.Scheduler(tables)
	units, err := sched.Run(action, sel)
	if err != nil {
		return "", err
	}

	commands := make([]string, 0, len(units))
	for _, unit := range units {
		bundle, err := e.Catalog.Get(unit.Pipeline.Type, unit.Pipeline.Name, unit.Pipeline.Version)
		if err != nil {
			return "", err
		}
		step, err := bundle.Step(unit.Step)
		if err != nil {
			return "", err
		}
		uc, err := e.BuildUnitCommand(unit, step)
		if err != nil {
			return "", err
		}
		commands = append(commands, uc.Command)
	}

	opts.HPC = adapterKind
	opts.Commands = commands
	if opts.Preamble == nil {
		opts.Preamble = e.Config.HPCPreamble
	}

	adapter, err := hpc.AdapterFor(adapterKind)
	if err != nil {
		return "", err
	}
	emitter := hpc.Emitter{TemplateText: templateText, ScriptDir: scriptDir, ScriptExt: scriptExt}
	return emitter.Emit(ctx, opts, adapter, keepScript)
}

// RunTrackProcessing schedules track-processing for sel and re-evaluates
// each unit's declared output globs, returning an updated processing
// status table. Call SaveProcessingStatus with the result under an
// exclusive lock.
func (e *Engine) RunTrackProcessing(tables *Tables, sel scheduler.Selector) (*tabular.Table, error) {
	sched := e.Scheduler(tables)
	units, err := sched.TrackProcessing(sel)
	if err != nil {
		return nil, err
	}

	derivRoot, err := e.Layout.Path(layout.Derivatives, nil)
	if err != nil {
		return nil, err
	}

	var newRows []tabular.Row
	for _, unit := range units {
		bundle, err := e.Catalog.Get(unit.Pipeline.Type, unit.Pipeline.Name, unit.Pipeline.Version)
		if err != nil {
			return nil, err
		}
		step, err := bundle.Step(unit.Step)
		if err != nil {
			return nil, err
		}
		if step.TrackerConfigFile == "" {
			continue
		}
		var cfg tracker.Config
		if err := loadJSON(bundle.Dir, step.TrackerConfigFile, &cfg); err != nil {
			return nil, fmt.Errorf("dataset: load tracker config for %s: %w", unit.Pipeline, err)
		}

		env, _, _, err := e.buildUnitEnv(bundle, unit, step)
		if err != nil {
			return nil, err
		}
		outputRoot := filepath.Join(derivRoot, bundle.Key.Name, bundle.Key.Version, "output")
		status, err := tracker.Evaluate(outputRoot, cfg, env)
		if err != nil {
			return nil, err
		}
		newRows = append(newRows, tracker.Row(unit.ParticipantID, unit.SessionID, bundle.Key.Name, bundle.Key.Version, step.Name, status))
	}

	return tabular.Upsert(tables.ProcessingStatus, newRows), nil
}

// RunTrackCuration walks the curation directory tree and returns an
// updated curation status table (spec.md §4.10). Call
// SaveCurationStatus with the result under an exclusive lock.
func (e *Engine) RunTrackCuration(tables *Tables, regenerate bool) (*tabular.Table, error) {
	preReorg, err := e.Layout.Path(layout.PreReorg, nil)
	if err != nil {
		return nil, err
	}
	postReorg, err := e.Layout.Path(layout.PostReorg, nil)
	if err != nil {
		return nil, err
	}
	bidsRoot, err := e.Layout.Path(layout.BIDS, nil)
	if err != nil {
		return nil, err
	}

	roots := curation.Roots{PreReorg: preReorg, PostReorg: postReorg, BIDS: bidsRoot}
	cfg := curation.Config{PreReorgMode: e.preReorgMode()}
	if e.Config.DicomDirMapFile != "" {
		relations, err := curation.LoadRelationMap(filepath.Join(e.Root, e.Config.DicomDirMapFile))
		if err != nil {
			return nil, fmt.Errorf("dataset: load relation map: %w", err)
		}
		cfg.PreReorgMode = curation.RelationFile
		cfg.Relations = relations
	}

	return curation.Walk(tables.Manifest, tables.CurationStatus, roots, cfg, regenerate)
}

func (e *Engine) preReorgMode() curation.PreReorgMode {
	if e.Config.DicomDirParticipantFirst {
		return curation.ParticipantFirst
	}
	return curation.SessionFirst
}

// RunReorg moves each outstanding unit's pre-reorg DICOM directory into
// its post-reorg location (spec.md §4.6 reorg: "in_pre_reorg ∧
// ¬in_post_reorg"). Unlike bidsify/process/extract this action has no
// associated pipeline bundle (WorkUnit.Pipeline is the zero value); the
// move is a plain filesystem rename, mirroring the DICOM-reorganization
// step nipoppy's original implementation performs directly rather than
// through a container.
func (e *Engine) RunReorg(tables *Tables, sel scheduler.Selector) ([]scheduler.WorkUnit, error) {
	sched := e.Scheduler(tables)
	units := sched.Reorg(sel)

	preReorgRoot, err := e.Layout.Path(layout.PreReorg, nil)
	if err != nil {
		return nil, err
	}
	postReorgRoot, err := e.Layout.Path(layout.PostReorg, nil)
	if err != nil {
		return nil, err
	}

	mode := e.preReorgMode()
	var relations curation.RelationMap
	if e.Config.DicomDirMapFile != "" {
		mode = curation.RelationFile
		relations, err = curation.LoadRelationMap(filepath.Join(e.Root, e.Config.DicomDirMapFile))
		if err != nil {
			return nil, fmt.Errorf("dataset: load relation map: %w", err)
		}
	}

	for _, unit := range units {
		src := curation.PreReorgDir(preReorgRoot, mode, unit.ParticipantID, unit.SessionID, relations)
		dst := filepath.Join(postReorgRoot, "sub-"+unit.ParticipantID, "ses-"+unit.SessionID)
		if err := moveDir(src, dst); err != nil {
			return nil, fmt.Errorf("dataset: reorg %s/%s: %w", unit.ParticipantID, unit.SessionID, err)
		}
	}
	return units, nil
}

// moveDir renames src to dst, creating dst's parent directory first;
// os.Rename across the dataset's own filesystem is atomic, matching the
// store's atomic-replace discipline elsewhere in the engine.
func moveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
