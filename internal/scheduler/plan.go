package scheduler

import "github.com/antigravity-dev/nipoppy-go/internal/tabular"

// planSchema describes the write-list table Plan returns. It is not one
// of the three canonical dataset tables (spec.md §3); it exists only as
// an in-memory or on-disk hand-off to an external parallelizer (spec.md
// §4.6: "An optional write-list mode returns the plan as a table instead
// of executing it").
var planSchema = tabular.Schema{
	Columns: []string{
		"action", "participant_id", "session_id",
		"pipeline_type", "pipeline_name", "pipeline_version", "step",
	},
}

// Plan runs action with sel and returns the resulting units as a table
// instead of handing them to a runner.
func (s *Scheduler) Plan(action Action, sel Selector) (*tabular.Table, error) {
	units, err := s.Run(action, sel)
	if err != nil {
		return nil, err
	}

	t := &tabular.Table{Kind: tabular.Kind("plan"), Schema: planSchema}
	for _, u := range units {
		t.Rows = append(t.Rows, tabular.Row{
			"action":           string(u.Action),
			"participant_id":   u.ParticipantID,
			"session_id":       u.SessionID,
			"pipeline_type":    string(u.Pipeline.Type),
			"pipeline_name":    u.Pipeline.Name,
			"pipeline_version": u.Pipeline.Version,
			"step":             u.Step,
		})
	}
	return t, nil
}

// Run dispatches to the entry point named by action.
func (s *Scheduler) Run(action Action, sel Selector) ([]WorkUnit, error) {
	switch action {
	case ActionReorg:
		return s.Reorg(sel), nil
	case ActionBidsify:
		return s.Bidsify(sel)
	case ActionProcess:
		return s.Process(sel)
	case ActionExtract:
		return s.Extract(sel)
	case ActionTrackProcessing:
		return s.TrackProcessing(sel)
	default:
		return nil, &ErrUnknownAction{Action: action}
	}
}

// ErrUnknownAction is returned by Run for an action outside the closed
// set.
type ErrUnknownAction struct{ Action Action }

func (e *ErrUnknownAction) Error() string { return "scheduler: unknown action " + string(e.Action) }
