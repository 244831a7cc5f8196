package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rahul/contentflux/internal/capability"
)

// Status is the lifecycle state of a single step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether a step in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// PhaseName identifies one stage of the content pipeline.
type PhaseName string

const (
	PhaseResearch   PhaseName = "research"
	PhaseAnalysis   PhaseName = "analysis"
	PhaseCreation   PhaseName = "creation"
	PhasePublishing PhaseName = "publishing"
)

// PhaseOrder is the fixed sequence phases execute in.
var PhaseOrder = []PhaseName{PhaseResearch, PhaseAnalysis, PhaseCreation, PhasePublishing}

// Index returns the position of the phase in PhaseOrder, or -1.
func (p PhaseName) Index() int {
	for i, name := range PhaseOrder {
		if name == p {
			return i
		}
	}
	return -1
}

// Step is a single capability invocation with declared dependencies.
type Step struct {
	ID         string         `json:"id"`
	Phase      PhaseName      `json:"phase"`
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
}

// ErrDependencyUnmet marks a parameter reference to a step whose result
// never became available.
var ErrDependencyUnmet = errors.New("dependency result not available")

// Plan is the full dependency graph of phases and steps for one
// orchestration request. The planner adds and removes not-yet-run
// steps; the executor updates statuses and records results. Nothing
// else mutates it.
type Plan struct {
	ID    string
	Niche string
	Topic string

	steps   []*Step
	index   map[string]*Step
	results map[string]capability.Result
}

func New(id, niche string) *Plan {
	return &Plan{
		ID:      id,
		Niche:   niche,
		index:   make(map[string]*Step),
		results: make(map[string]capability.Result),
	}
}

// AddStep appends a step, enforcing the structural invariants: unique
// identifier, known dependencies, and dependencies only within the
// same or an earlier phase. Because every edge must point at an
// already-registered step, the graph stays acyclic by construction;
// Validate double-checks that.
func (p *Plan) AddStep(s *Step) error {
	if s.ID == "" {
		return fmt.Errorf("step identifier must not be empty")
	}
	if s.Capability == "" {
		return fmt.Errorf("step %s: capability must not be empty", s.ID)
	}
	if s.Phase.Index() < 0 {
		return fmt.Errorf("step %s: unknown phase %q", s.ID, s.Phase)
	}
	if _, exists := p.index[s.ID]; exists {
		return fmt.Errorf("step %s already exists", s.ID)
	}
	for _, dep := range s.DependsOn {
		depStep, exists := p.index[dep]
		if !exists {
			return fmt.Errorf("step %s depends on unknown step %s", s.ID, dep)
		}
		if depStep.Phase.Index() > s.Phase.Index() {
			return fmt.Errorf("step %s in phase %s depends on later-phase step %s", s.ID, s.Phase, dep)
		}
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	p.steps = append(p.steps, s)
	p.index[s.ID] = s
	return nil
}

// RemoveStep drops a step that has not started running.
func (p *Plan) RemoveStep(id string) error {
	s, exists := p.index[id]
	if !exists {
		return fmt.Errorf("step %s not found", id)
	}
	if s.Status != StatusPending && s.Status != StatusReady {
		return fmt.Errorf("step %s cannot be removed in status %s", id, s.Status)
	}
	for _, other := range p.steps {
		for _, dep := range other.DependsOn {
			if dep == id {
				return fmt.Errorf("step %s is a dependency of %s", id, other.ID)
			}
		}
	}
	delete(p.index, id)
	for i, step := range p.steps {
		if step.ID == id {
			p.steps = append(p.steps[:i], p.steps[i+1:]...)
			break
		}
	}
	return nil
}

// Validate performs cycle detection over the dependency graph using DFS.
func (p *Plan) Validate() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for id := range p.index {
		if !visited[id] {
			if p.hasCycleDFS(id, visited, recStack) {
				return fmt.Errorf("cycle detected in step dependencies")
			}
		}
	}
	return nil
}

func (p *Plan) hasCycleDFS(node string, visited, recStack map[string]bool) bool {
	visited[node] = true
	recStack[node] = true

	step, exists := p.index[node]
	if !exists {
		return false
	}
	for _, dep := range step.DependsOn {
		if !visited[dep] {
			if p.hasCycleDFS(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[node] = false
	return false
}

// Step returns the step with the given identifier, or nil.
func (p *Plan) Step(id string) *Step {
	return p.index[id]
}

// Steps returns all steps in insertion order.
func (p *Plan) Steps() []*Step {
	out := make([]*Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// PhaseSteps returns the steps of one phase in insertion order.
func (p *Plan) PhaseSteps(phase PhaseName) []*Step {
	var out []*Step
	for _, s := range p.steps {
		if s.Phase == phase {
			out = append(out, s)
		}
	}
	return out
}

// ReadySteps promotes pending steps whose dependencies are all
// Succeeded or Skipped, and returns every step of the phase currently
// in Ready status.
func (p *Plan) ReadySteps(phase PhaseName) []*Step {
	var out []*Step
	for _, s := range p.steps {
		if s.Phase != phase {
			continue
		}
		if s.Status == StatusPending && p.depsSatisfied(s) {
			s.Status = StatusReady
		}
		if s.Status == StatusReady {
			out = append(out, s)
		}
	}
	return out
}

func (p *Plan) depsSatisfied(s *Step) bool {
	for _, dep := range s.DependsOn {
		depStep := p.index[dep]
		if depStep == nil {
			return false
		}
		if depStep.Status != StatusSucceeded && depStep.Status != StatusSkipped {
			return false
		}
	}
	return true
}

// DepsFailed reports whether any dependency of s terminally failed,
// leaving s unable to ever become ready.
func (p *Plan) DepsFailed(s *Step) bool {
	for _, dep := range s.DependsOn {
		if depStep := p.index[dep]; depStep != nil && depStep.Status == StatusFailed {
			return true
		}
	}
	return false
}

// RecordResult marks a step succeeded and publishes its result into
// the shared context for later steps.
func (p *Plan) RecordResult(id string, res capability.Result) {
	s := p.index[id]
	if s == nil {
		return
	}
	s.Status = StatusSucceeded
	s.LastError = ""
	p.results[id] = res
}

// RecordFailure marks a step terminally failed.
func (p *Plan) RecordFailure(id string, err error) {
	s := p.index[id]
	if s == nil {
		return
	}
	s.Status = StatusFailed
	if err != nil {
		s.LastError = err.Error()
	}
}

// Result returns the recorded result of a succeeded step.
func (p *Plan) Result(id string) (capability.Result, bool) {
	res, ok := p.results[id]
	return res, ok
}

// PhaseStatus derives a phase's aggregate status from its steps. A
// phase with no steps is Pending, never vacuously Succeeded.
func (p *Plan) PhaseStatus(phase PhaseName) Status {
	steps := p.PhaseSteps(phase)
	if len(steps) == 0 {
		return StatusPending
	}
	failed := false
	for _, s := range steps {
		if !s.Status.Terminal() {
			return StatusRunning
		}
		if s.Status == StatusFailed {
			failed = true
		}
	}
	if failed {
		return StatusFailed
	}
	return StatusSucceeded
}

// SucceededSteps returns the successfully completed steps of a phase.
func (p *Plan) SucceededSteps(phase PhaseName) []*Step {
	var out []*Step
	for _, s := range p.PhaseSteps(phase) {
		if s.Status == StatusSucceeded {
			out = append(out, s)
		}
	}
	return out
}

var refPattern = regexp.MustCompile(`\$[A-Za-z][A-Za-z0-9_.\-]*`)

// ResolveParams substitutes $stepID references in the step's parameters
// with the referenced results. A reference to a Skipped step resolves
// to the empty string; a reference to a step that is not terminal yet
// is a dependency error. Tokens that name no known step are left
// untouched.
func (p *Plan) ResolveParams(s *Step) (map[string]any, error) {
	resolved, err := p.resolveValue(s.Params)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", s.ID, err)
	}
	out, ok := resolved.(map[string]any)
	if !ok || out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (p *Plan) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return p.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			res, err := p.resolveValue(inner)
			if err != nil {
				return nil, err
			}
			out[k] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			res, err := p.resolveValue(inner)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	default:
		return v, nil
	}
}

func (p *Plan) resolveString(s string) (string, error) {
	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(s, func(token string) string {
		id := strings.TrimPrefix(token, "$")
		// The pattern may swallow trailing punctuation of the
		// surrounding sentence; back off until an ID matches.
		trimmed := ""
		for id != "" {
			if _, exists := p.index[id]; exists {
				break
			}
			trimmed = id[len(id)-1:] + trimmed
			id = id[:len(id)-1]
		}
		step, exists := p.index[id]
		if !exists {
			return token
		}
		switch step.Status {
		case StatusSucceeded:
			return p.results[id].Output + trimmed
		case StatusSkipped:
			return trimmed
		default:
			resolveErr = fmt.Errorf("%w: %s is %s", ErrDependencyUnmet, id, step.Status)
			return token
		}
	})
	return out, resolveErr
}
