// Package scheduler enumerates work units from the manifest and status
// tables (spec.md §4.6). It never executes anything; the runner does
// that.
package scheduler

import (
	"fmt"

	"github.com/antigravity-dev/nipoppy-go/internal/catalog"
	"github.com/antigravity-dev/nipoppy-go/internal/tabular"
	"github.com/antigravity-dev/nipoppy-go/internal/workflow"
)

// Action is the closed set of scheduler entry points.
type Action string

const (
	ActionReorg          Action = "reorg"
	ActionBidsify        Action = "bidsify"
	ActionProcess        Action = "process"
	ActionExtract        Action = "extract"
	ActionTrackProcessing Action = "track-processing"
)

// WorkUnit is one (participant, session[, pipeline, step]) scheduled for
// an action.
type WorkUnit struct {
	Action        Action
	ParticipantID string
	SessionID     string
	Pipeline      workflow.Key // zero value for reorg
	Step          string
}

// Selector narrows the units an entry point yields. A zero-value field
// means "unfiltered" except where the action requires PipelineName.
type Selector struct {
	ParticipantID   string
	SessionID       string
	PipelineName    string
	PipelineVersion string
	Step            string
}

func (s Selector) matchesParticipantSession(participant, session string) bool {
	if s.ParticipantID != "" && s.ParticipantID != participant {
		return false
	}
	if s.SessionID != "" && s.SessionID != session {
		return false
	}
	return true
}

// Scheduler reads the canonical tables and the catalog to enumerate
// work.
type Scheduler struct {
	Manifest         *tabular.Table
	CurationStatus   *tabular.Table
	ProcessingStatus *tabular.Table
	Catalog          *catalog.Catalog
}

// New constructs a Scheduler over already-loaded tables.
func New(manifest, curation, processing *tabular.Table, cat *catalog.Catalog) *Scheduler {
	return &Scheduler{Manifest: manifest, CurationStatus: curation, ProcessingStatus: processing, Catalog: cat}
}

// sessionPairs returns (participant_id, session_id) pairs in manifest
// row order, deduplicated by first appearance (spec.md §4.6 tie-break:
// "manifest row order, then session order as it first appears").
func (s *Scheduler) sessionPairs() []([2]string) {
	seen := make(map[[2]string]bool)
	var out [][2]string
	for _, row := range s.Manifest.Rows {
		pair := [2]string{row["participant_id"], row["session_id"]}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		out = append(out, pair)
	}
	return out
}

func boolCell(v string) bool {
	return v == "true" || v == "True" || v == "1"
}

func (s *Scheduler) curationRow(participant, session string) (tabular.Row, bool) {
	return s.CurationStatus.Find(participant, session)
}

// Reorg yields one unit per (participant, session) where curation says
// in_pre_reorg and not in_post_reorg.
func (s *Scheduler) Reorg(sel Selector) []WorkUnit {
	var units []WorkUnit
	for _, pair := range s.sessionPairs() {
		p, sess := pair[0], pair[1]
		if !sel.matchesParticipantSession(p, sess) {
			continue
		}
		row, ok := s.curationRow(p, sess)
		if !ok {
			continue
		}
		if boolCell(row["in_pre_reorg"]) && !boolCell(row["in_post_reorg"]) {
			units = append(units, WorkUnit{Action: ActionReorg, ParticipantID: p, SessionID: sess})
		}
	}
	return units
}

// Bidsify yields units where in_post_reorg and not in_bids. sel must
// name a pipeline; version defaults to the catalog's latest, step
// defaults to the bundle's first step.
func (s *Scheduler) Bidsify(sel Selector) ([]WorkUnit, error) {
	if sel.PipelineName == "" {
		return nil, fmt.Errorf("scheduler: bidsify requires a pipeline name")
	}
	bundle, err := s.resolveBundle(workflow.Bidsification, sel.PipelineName, sel.PipelineVersion)
	if err != nil {
		return nil, err
	}
	step, err := bundle.Step(sel.Step)
	if err != nil {
		return nil, err
	}

	var units []WorkUnit
	for _, pair := range s.sessionPairs() {
		p, sess := pair[0], pair[1]
		if !sel.matchesParticipantSession(p, sess) {
			continue
		}
		row, ok := s.curationRow(p, sess)
		if !ok {
			continue
		}
		if boolCell(row["in_post_reorg"]) && !boolCell(row["in_bids"]) {
			units = append(units, WorkUnit{
				Action: ActionBidsify, ParticipantID: p, SessionID: sess,
				Pipeline: bundle.Key, Step: step.Name,
			})
		}
	}
	return units, nil
}

// Process yields units where in_bids and no SUCCESS row exists for the
// exact pipeline selector.
func (s *Scheduler) Process(sel Selector) ([]WorkUnit, error) {
	if sel.PipelineName == "" {
		return nil, fmt.Errorf("scheduler: process requires a pipeline name")
	}
	bundle, err := s.resolveBundle(workflow.Processing, sel.PipelineName, sel.PipelineVersion)
	if err != nil {
		return nil, err
	}
	step, err := bundle.Step(sel.Step)
	if err != nil {
		return nil, err
	}

	var units []WorkUnit
	for _, pair := range s.sessionPairs() {
		p, sess := pair[0], pair[1]
		if !sel.matchesParticipantSession(p, sess) {
			continue
		}
		row, ok := s.curationRow(p, sess)
		if !ok || !boolCell(row["in_bids"]) {
			continue
		}
		if s.hasSuccessRow(p, sess, bundle.Key, step.Name) {
			continue
		}
		units = append(units, WorkUnit{
			Action: ActionProcess, ParticipantID: p, SessionID: sess,
			Pipeline: bundle.Key, Step: step.Name,
		})
	}
	return units, nil
}

// Extract yields units where every declared upstream processing
// dependency has a SUCCESS row.
func (s *Scheduler) Extract(sel Selector) ([]WorkUnit, error) {
	if sel.PipelineName == "" {
		return nil, fmt.Errorf("scheduler: extract requires a pipeline name")
	}
	bundle, err := s.resolveBundle(workflow.Extraction, sel.PipelineName, sel.PipelineVersion)
	if err != nil {
		return nil, err
	}
	step, err := bundle.Step(sel.Step)
	if err != nil {
		return nil, err
	}

	var units []WorkUnit
	for _, pair := range s.sessionPairs() {
		p, sess := pair[0], pair[1]
		if !sel.matchesParticipantSession(p, sess) {
			continue
		}
		if !s.dependenciesSatisfied(p, sess, bundle.Dependencies) {
			continue
		}
		units = append(units, WorkUnit{
			Action: ActionExtract, ParticipantID: p, SessionID: sess,
			Pipeline: bundle.Key, Step: step.Name,
		})
	}
	return units, nil
}

// TrackProcessing yields units where in_bids, irrespective of prior
// processing-status contents.
func (s *Scheduler) TrackProcessing(sel Selector) ([]WorkUnit, error) {
	if sel.PipelineName == "" {
		return nil, fmt.Errorf("scheduler: track-processing requires a pipeline name")
	}
	bundle, err := s.resolveBundle(workflow.Processing, sel.PipelineName, sel.PipelineVersion)
	if err != nil {
		return nil, err
	}
	step, err := bundle.Step(sel.Step)
	if err != nil {
		return nil, err
	}

	var units []WorkUnit
	for _, pair := range s.sessionPairs() {
		p, sess := pair[0], pair[1]
		if !sel.matchesParticipantSession(p, sess) {
			continue
		}
		row, ok := s.curationRow(p, sess)
		if !ok || !boolCell(row["in_bids"]) {
			continue
		}
		units = append(units, WorkUnit{
			Action: ActionTrackProcessing, ParticipantID: p, SessionID: sess,
			Pipeline: bundle.Key, Step: step.Name,
		})
	}
	return units, nil
}

func (s *Scheduler) resolveBundle(typ workflow.Type, name, version string) (*workflow.Bundle, error) {
	if version == "" {
		return s.Catalog.Latest(typ, name)
	}
	return s.Catalog.Get(typ, name, version)
}

func (s *Scheduler) hasSuccessRow(participant, session string, key workflow.Key, step string) bool {
	for _, row := range s.ProcessingStatus.Rows {
		if row["participant_id"] == participant && row["session_id"] == session &&
			row["pipeline_name"] == key.Name && row["pipeline_version"] == key.Version &&
			row["pipeline_step"] == step && row["status"] == tabular.StatusSuccess {
			return true
		}
	}
	return false
}

func (s *Scheduler) dependenciesSatisfied(participant, session string, deps []workflow.Key) bool {
	for _, dep := range deps {
		found := false
		for _, row := range s.ProcessingStatus.Rows {
			if row["participant_id"] == participant && row["session_id"] == session &&
				row["pipeline_name"] == dep.Name && row["pipeline_version"] == dep.Version &&
				row["status"] == tabular.StatusSuccess {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
