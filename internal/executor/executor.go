package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/contentflux/internal/capability"
	"github.com/rahul/contentflux/internal/governance"
	"github.com/rahul/contentflux/internal/observability"
	"github.com/rahul/contentflux/internal/plan"
	"github.com/rahul/contentflux/internal/planner"
)

// Config bounds the executor's concurrency and retry behavior.
type Config struct {
	MaxInFlight int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxInFlight: 4,
		MaxAttempts: 3,
		BackoffBase: 200 * time.Millisecond,
		BackoffCap:  5 * time.Second,
	}
}

// Executor runs the steps of a plan phase against the capability
// registry, honoring dependencies, retry policy, fallbacks, and the
// governance engine.
type Executor struct {
	registry *capability.Registry
	policy   governance.PolicyEngine
	logger   *observability.Logger
	cfg      Config
}

func New(registry *capability.Registry, policy governance.PolicyEngine, logger *observability.Logger, cfg Config) *Executor {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultConfig().BackoffCap
	}
	return &Executor{
		registry: registry,
		policy:   policy,
		logger:   logger,
		cfg:      cfg,
	}
}

// Apply folds a planning delta into the plan: removals first, then
// additions in order, then a structural validation of the result.
func (e *Executor) Apply(p *plan.Plan, d planner.Delta) error {
	for _, id := range d.Remove {
		if err := p.RemoveStep(id); err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}
	}
	for _, s := range d.Add {
		if err := p.AddStep(s); err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}
	}
	return p.Validate()
}

type stepOutcome struct {
	stepID   string
	result   capability.Result
	attempts int
	err      error
}

// RunPhase executes every step of the phase to a terminal status. Step
// parameters are resolved and statuses mutated only on this goroutine;
// workers receive fully resolved inputs and report back over a channel.
// On context cancellation the remaining steps are marked Skipped and
// the context error is returned.
func (e *Executor) RunPhase(ctx context.Context, p *plan.Plan, phase plan.PhaseName) error {
	done := make(chan stepOutcome)
	inFlight := 0

	for {
		if ctx.Err() != nil {
			e.drainAndSkip(p, phase, done, inFlight)
			return ctx.Err()
		}

		// Steps whose dependencies terminally failed can never run.
		for _, s := range p.PhaseSteps(phase) {
			if s.Status == plan.StatusPending && p.DepsFailed(s) {
				p.RecordFailure(s.ID, fmt.Errorf("%w: upstream step failed", plan.ErrDependencyUnmet))
				e.logger.LogStep(p.ID, s.ID, s.Capability, string(plan.StatusFailed), 0, 0)
			}
		}

		for _, s := range p.ReadySteps(phase) {
			if inFlight >= e.cfg.MaxInFlight {
				break
			}
			params, err := p.ResolveParams(s)
			if err != nil {
				p.RecordFailure(s.ID, err)
				e.logger.LogStep(p.ID, s.ID, s.Capability, string(plan.StatusFailed), 0, 0)
				continue
			}
			s.Status = plan.StatusRunning
			observability.SetStatus(phaseStage(phase), s.ID)
			inFlight++
			go func(step *plan.Step, params map[string]any) {
				res, attempts, err := e.invoke(ctx, p.ID, step, params)
				done <- stepOutcome{stepID: step.ID, result: res, attempts: attempts, err: err}
			}(s, params)
		}

		if inFlight == 0 {
			status := p.PhaseStatus(phase)
			if status != plan.StatusRunning {
				return nil
			}
			// Running with nothing in flight means remaining steps are
			// waiting on dependencies outside this phase or on each
			// other; the former is a planner bug, surface it.
			if len(p.ReadySteps(phase)) == 0 && !anyBlockedResolvable(p, phase) {
				return fmt.Errorf("phase %s stalled: steps waiting on dependencies that cannot complete", phase)
			}
			continue
		}

		out := <-done
		inFlight--
		step := p.Step(out.stepID)
		step.Attempts = out.attempts
		if out.err != nil {
			p.RecordFailure(out.stepID, out.err)
			e.logger.LogStep(p.ID, out.stepID, step.Capability, string(plan.StatusFailed), out.attempts, 0)
		} else {
			p.RecordResult(out.stepID, out.result)
			e.logger.LogStep(p.ID, out.stepID, step.Capability, string(plan.StatusSucceeded), out.attempts, out.result.Elapsed)
		}
	}
}

// anyBlockedResolvable reports whether some non-terminal step of the
// phase still has a path to readiness, i.e. all of its dependencies are
// either satisfied or themselves non-terminal.
func anyBlockedResolvable(p *plan.Plan, phase plan.PhaseName) bool {
	for _, s := range p.PhaseSteps(phase) {
		if s.Status.Terminal() || s.Status == plan.StatusRunning {
			continue
		}
		blocked := false
		for _, dep := range s.DependsOn {
			depStep := p.Step(dep)
			if depStep == nil || depStep.Status == plan.StatusFailed {
				blocked = true
				break
			}
		}
		if !blocked {
			return true
		}
	}
	return false
}

// drainAndSkip waits out in-flight workers after cancellation and marks
// every step that never reached a terminal status as Skipped.
func (e *Executor) drainAndSkip(p *plan.Plan, phase plan.PhaseName, done chan stepOutcome, inFlight int) {
	for i := 0; i < inFlight; i++ {
		out := <-done
		step := p.Step(out.stepID)
		step.Attempts = out.attempts
		if out.err != nil {
			p.RecordFailure(out.stepID, out.err)
		} else {
			p.RecordResult(out.stepID, out.result)
		}
	}
	for _, s := range p.PhaseSteps(phase) {
		if !s.Status.Terminal() {
			s.Status = plan.StatusSkipped
			e.logger.LogStep(p.ID, s.ID, s.Capability, string(plan.StatusSkipped), s.Attempts, 0)
		}
	}
}

// invoke runs the step's capability and, if its retries are exhausted,
// each declared fallback in order. Returns the total attempt count
// across the chain.
func (e *Executor) invoke(ctx context.Context, runID string, step *plan.Step, params map[string]any) (capability.Result, int, error) {
	primary := e.registry.Get(step.Capability)
	if primary == nil {
		return capability.Result{}, 0, capability.Permanentf("unknown capability %q", step.Capability)
	}

	chain := []capability.Capability{primary}
	for _, name := range primary.Descriptor().Fallbacks {
		if fb := e.registry.Get(name); fb != nil {
			chain = append(chain, fb)
		}
	}

	totalAttempts := 0
	var lastErr error
	for i, cap := range chain {
		budget := e.cfg.MaxAttempts
		if i > 0 {
			// Alternates get one try each after the primary's retries
			// are exhausted, bounding the chain at
			// max attempts + fallback count invocations.
			budget = 1
			e.logger.LogFallback(runID, step.ID, chain[i-1].Name(), cap.Name())
		}
		res, attempts, err := e.invokeOne(ctx, runID, step, cap, params, budget)
		totalAttempts += attempts
		if err == nil {
			return res, totalAttempts, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return capability.Result{}, totalAttempts, lastErr
}

func (e *Executor) invokeOne(ctx context.Context, runID string, step *plan.Step, cap capability.Capability, params map[string]any, maxAttempts int) (capability.Result, int, error) {
	if err := e.checkPolicy(ctx, runID, step, cap.Name(), params); err != nil {
		return capability.Result{}, 0, err
	}

	desc := cap.Descriptor()
	if !desc.Idempotent {
		// A failure may have had side effects; never re-invoke.
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := e.invokeWithTimeout(ctx, cap, desc, params)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || !capability.Retryable(err) {
			return capability.Result{}, attempt, err
		}
		if attempt < maxAttempts {
			backoff := e.backoff(attempt)
			e.logger.LogRetry(runID, step.ID, cap.Name(), attempt, backoff, err.Error())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return capability.Result{}, attempt, ctx.Err()
			}
		}
	}
	return capability.Result{}, maxAttempts, lastErr
}

func (e *Executor) invokeWithTimeout(ctx context.Context, cap capability.Capability, desc capability.Descriptor, params map[string]any) (capability.Result, error) {
	invokeCtx := ctx
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := cap.Invoke(invokeCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return capability.Result{}, capability.WrapTransient(err, fmt.Sprintf("%s timed out after %s", cap.Name(), desc.Timeout))
		}
		return capability.Result{}, err
	}
	if res.Elapsed == 0 {
		res.Elapsed = time.Since(start)
	}
	return res, nil
}

func (e *Executor) checkPolicy(ctx context.Context, runID string, step *plan.Step, capName string, params map[string]any) error {
	if e.policy == nil {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return capability.Permanentf("unserializable params for %s: %v", step.ID, err)
	}
	verdict, err := e.policy.Evaluate(ctx, governance.Request{
		Capability: capName,
		Params:     string(raw),
		RunID:      runID,
	})
	if err != nil {
		return capability.WrapPermanent(err, "policy evaluation failed")
	}
	if verdict.Effect == governance.EffectDeny {
		e.logger.LogPolicyDenial(runID, step.ID, capName, verdict.Reason)
		return capability.Permanentf("denied by policy: %s", verdict.Reason)
	}
	return nil
}

func (e *Executor) backoff(attempt int) time.Duration {
	d := e.cfg.BackoffBase << (attempt - 1)
	if d > e.cfg.BackoffCap {
		d = e.cfg.BackoffCap
	}
	return d
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
