package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/contentflux/internal/content"
	"github.com/rahul/contentflux/internal/executor"
	"github.com/rahul/contentflux/internal/observability"
	"github.com/rahul/contentflux/internal/plan"
	"github.com/rahul/contentflux/internal/planner"
)

// Request describes one content-production run. Topic is optional; when
// empty the research phase discovers and selects one from the niche.
// Sources are optional URLs read during research to ground the summary.
type Request struct {
	Niche   string
	Topic   string
	Formats []string
	Sources []string
}

// RunStore persists run audit rows.
type RunStore interface {
	SaveRun(id, niche, topic, status, bundle string) error
}

// PhaseError reports a halted run, carrying whatever content was
// already produced so callers can still publish it or inspect it.
type PhaseError struct {
	Phase   plan.PhaseName
	Reason  string
	Partial *content.Bundle
	Err     error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("run halted in %s phase: %s", e.Phase, e.Reason)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Orchestrator drives the four-phase pipeline: repeated planning per
// phase, execution of each delta, and assembly of the final bundle.
type Orchestrator struct {
	Planner  *planner.Planner
	Executor *executor.Executor
	Logger   *observability.Logger
	Store    RunStore
	Now      func() time.Time
}

func New(pl *planner.Planner, ex *executor.Executor, logger *observability.Logger, store RunStore) *Orchestrator {
	return &Orchestrator{
		Planner:  pl,
		Executor: ex,
		Logger:   logger,
		Store:    store,
		Now:      time.Now,
	}
}

// Run executes the full pipeline for one request. Phases run strictly
// in order; within a phase the planner is consulted repeatedly until it
// has nothing left to add, each delta being executed before the next
// planning round. A phase that fails entirely halts the run; partial
// failures degrade and continue.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*content.Bundle, error) {
	if strings.TrimSpace(req.Niche) == "" {
		return nil, fmt.Errorf("request must name a niche")
	}
	runID := uuid.NewString()
	p := plan.New(runID, req.Niche)
	p.Topic = req.Topic

	preq := planner.Request{
		RunID:   runID,
		Niche:   req.Niche,
		Topic:   req.Topic,
		Formats: req.Formats,
		Sources: req.Sources,
	}

	defer observability.SetStatus(observability.StageIdle, "")

	for _, phase := range plan.PhaseOrder {
		observability.SetStatus(phaseStage(phase), "")

		for {
			delta, err := o.Planner.PlanPhase(p, phase, preq)
			if err != nil {
				return o.halt(p, phase, err.Error(), err)
			}
			if delta.Empty() {
				break
			}
			if err := o.Executor.Apply(p, delta); err != nil {
				return o.halt(p, phase, err.Error(), err)
			}
			o.Logger.LogPlan(runID, string(phase), len(delta.Add), len(delta.Remove))

			if err := o.Executor.RunPhase(ctx, p, phase); err != nil {
				return o.halt(p, phase, "run cancelled", err)
			}
		}

		status := p.PhaseStatus(phase)
		o.Logger.LogPhase(runID, string(phase), string(status))

		// Degradation rule: a phase may fail some steps and continue,
		// but zero successes leaves nothing for later phases to work
		// with.
		if status == plan.StatusFailed && len(p.SucceededSteps(phase)) == 0 {
			return o.halt(p, phase, "every step of the phase failed", nil)
		}
	}

	bundle := o.assembleBundle(p)
	o.Logger.LogPublish(runID, p.Topic, bundleFormats(bundle))
	o.saveRun(p, "succeeded", bundle)
	return bundle, nil
}

func (o *Orchestrator) halt(p *plan.Plan, phase plan.PhaseName, reason string, cause error) (*content.Bundle, error) {
	bundle := o.assembleBundle(p)
	o.Logger.LogPhase(p.ID, string(phase), string(plan.StatusFailed))
	o.saveRun(p, "halted", bundle)
	return nil, &PhaseError{Phase: phase, Reason: reason, Partial: bundle, Err: cause}
}

func (o *Orchestrator) saveRun(p *plan.Plan, status string, bundle *content.Bundle) {
	if o.Store == nil {
		return
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		data = []byte("{}")
	}
	if err := o.Store.SaveRun(p.ID, p.Niche, p.Topic, status, string(data)); err != nil {
		o.Logger.LogStep(p.ID, "run.save", "write_database_record", string(plan.StatusFailed), 1, 0)
	}
}

// assembleBundle collects the generated content and per-target
// publication outcomes out of the executed plan.
func (o *Orchestrator) assembleBundle(p *plan.Plan) *content.Bundle {
	b := &content.Bundle{
		RunID:     p.ID,
		Niche:     p.Niche,
		Topic:     p.Topic,
		CreatedAt: o.Now(),
		Formats:   make(map[string]*content.FormatContent),
	}
	for _, s := range p.SucceededSteps(plan.PhaseCreation) {
		name := strings.TrimPrefix(s.ID, "creation.")
		res, _ := p.Result(s.ID)
		fc := &content.FormatContent{
			Format: name,
			Body:   content.CleanASCII(res.Output),
		}
		if pub, ok := publication(p, "publish.file."+name, "file"); ok {
			fc.Publications = append(fc.Publications, pub)
		}
		if pub, ok := publication(p, "publish.record", "record"); ok {
			fc.Publications = append(fc.Publications, pub)
		}
		if pub, ok := publication(p, "publish.announce", "announce"); ok {
			fc.Publications = append(fc.Publications, pub)
		}
		b.Formats[name] = fc
	}
	return b
}

func publication(p *plan.Plan, stepID, target string) (content.Publication, bool) {
	s := p.Step(stepID)
	if s == nil {
		return content.Publication{}, false
	}
	pub := content.Publication{Target: target}
	switch s.Status {
	case plan.StatusSucceeded:
		pub.Status = content.PublicationSucceeded
		if res, ok := p.Result(stepID); ok {
			pub.Detail = content.Truncate(res.Output, 200)
		}
	case plan.StatusFailed:
		pub.Status = content.PublicationFailed
		pub.Detail = s.LastError
	default:
		pub.Status = content.PublicationSkipped
	}
	return pub, true
}

func bundleFormats(b *content.Bundle) []string {
	out := make([]string, 0, len(b.Formats))
	for name := range b.Formats {
		out = append(out, name)
	}
	return out
}

func phaseStage(phase plan.PhaseName) observability.Stage {
	switch phase {
	case plan.PhaseResearch:
		return observability.StageResearch
	case plan.PhaseAnalysis:
		return observability.StageAnalysis
	case plan.PhaseCreation:
		return observability.StageCreation
	case plan.PhasePublishing:
		return observability.StagePublishing
	default:
		return observability.StageIdle
	}
}
