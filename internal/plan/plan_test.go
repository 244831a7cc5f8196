package plan

import (
	"errors"
	"strings"
	"testing"

	"github.com/rahul/contentflux/internal/capability"
)

func newTestPlan(t *testing.T) *Plan {
	t.Helper()
	return New("run-1", "golang")
}

func mustAdd(t *testing.T, p *Plan, s *Step) {
	t.Helper()
	if err := p.AddStep(s); err != nil {
		t.Fatalf("AddStep(%s): %v", s.ID, err)
	}
}

func TestPlan_AddStep_Invariants(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "research.trending", Phase: PhaseResearch, Capability: "search"})

	if err := p.AddStep(&Step{ID: "research.trending", Phase: PhaseResearch, Capability: "search"}); err == nil {
		t.Error("Expected error for duplicate step ID")
	}
	if err := p.AddStep(&Step{ID: "a", Phase: PhaseAnalysis, Capability: "generate_text", DependsOn: []string{"missing"}}); err == nil {
		t.Error("Expected error for unknown dependency")
	}
	if err := p.AddStep(&Step{ID: "b", Phase: PhaseResearch, Capability: "x", DependsOn: []string{"research.trending"}}); err != nil {
		t.Errorf("Same-phase dependency should be allowed: %v", err)
	}
}

func TestPlan_AddStep_RejectsLaterPhaseDependency(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "creation.article", Phase: PhaseCreation, Capability: "generate_text"})

	err := p.AddStep(&Step{
		ID:         "analysis.summary",
		Phase:      PhaseAnalysis,
		Capability: "generate_text",
		DependsOn:  []string{"creation.article"},
	})
	if err == nil {
		t.Fatal("Expected error when an earlier phase depends on a later one")
	}
	if !strings.Contains(err.Error(), "later-phase") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPlan_RemoveStep(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "a", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "b", Phase: PhaseResearch, Capability: "search", DependsOn: []string{"a"}})

	if err := p.RemoveStep("a"); err == nil {
		t.Error("Expected error removing a step another step depends on")
	}
	if err := p.RemoveStep("b"); err != nil {
		t.Errorf("RemoveStep(b): %v", err)
	}

	p.Step("a").Status = StatusRunning
	if err := p.RemoveStep("a"); err == nil {
		t.Error("Expected error removing a running step")
	}
}

func TestPlan_ReadySteps_PromotesWhenDepsSettle(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "a", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "b", Phase: PhaseResearch, Capability: "search", DependsOn: []string{"a"}})

	ready := p.ReadySteps(PhaseResearch)
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("Expected only a ready, got %d steps", len(ready))
	}

	p.RecordResult("a", capability.Result{Output: "done"})
	ready = p.ReadySteps(PhaseResearch)
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("Expected b ready after a succeeded, got %d steps", len(ready))
	}

	// Skipped dependencies also unblock.
	mustAdd(t, p, &Step{ID: "c", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "d", Phase: PhaseResearch, Capability: "search", DependsOn: []string{"c"}})
	p.Step("c").Status = StatusSkipped
	found := false
	for _, s := range p.ReadySteps(PhaseResearch) {
		if s.ID == "d" {
			found = true
		}
	}
	if !found {
		t.Error("Expected d ready after c was skipped")
	}
}

func TestPlan_DepsFailed(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "a", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "b", Phase: PhaseResearch, Capability: "search", DependsOn: []string{"a"}})

	p.RecordFailure("a", errors.New("boom"))
	if !p.DepsFailed(p.Step("b")) {
		t.Error("Expected b to report failed dependencies")
	}
	if got := p.Step("a").LastError; got != "boom" {
		t.Errorf("LastError = %q", got)
	}
}

func TestPlan_PhaseStatus(t *testing.T) {
	p := newTestPlan(t)

	if got := p.PhaseStatus(PhaseResearch); got != StatusPending {
		t.Errorf("Empty phase should be pending, got %s", got)
	}

	mustAdd(t, p, &Step{ID: "a", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "b", Phase: PhaseResearch, Capability: "search"})

	if got := p.PhaseStatus(PhaseResearch); got != StatusRunning {
		t.Errorf("Non-terminal steps should read as running, got %s", got)
	}

	p.RecordResult("a", capability.Result{})
	p.RecordFailure("b", errors.New("boom"))
	if got := p.PhaseStatus(PhaseResearch); got != StatusFailed {
		t.Errorf("Phase with a failed step should be failed, got %s", got)
	}

	p.Step("b").Status = StatusSkipped
	if got := p.PhaseStatus(PhaseResearch); got != StatusSucceeded {
		t.Errorf("Succeeded+skipped phase should be succeeded, got %s", got)
	}
}

func TestPlan_Validate_DetectsCycle(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "a", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "b", Phase: PhaseResearch, Capability: "search", DependsOn: []string{"a"}})

	if err := p.Validate(); err != nil {
		t.Fatalf("Acyclic plan should validate: %v", err)
	}

	// Force a cycle behind AddStep's back.
	p.Step("a").DependsOn = []string{"b"}
	if err := p.Validate(); err == nil {
		t.Error("Expected cycle detection to fail")
	}
}

func TestPlan_ResolveParams(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "research.trending", Phase: PhaseResearch, Capability: "search"})
	mustAdd(t, p, &Step{ID: "research.news", Phase: PhaseResearch, Capability: "search"})
	p.RecordResult("research.trending", capability.Result{Output: "golang generics"})
	p.Step("research.news").Status = StatusSkipped

	s := &Step{
		ID:         "analysis.summary",
		Phase:      PhaseAnalysis,
		Capability: "generate_text",
		Params: map[string]any{
			"prompt": "Summarize: $research.trending. Also: $research.news",
			"nested": map[string]any{"list": []any{"$research.trending"}},
			"count":  3,
		},
		DependsOn: []string{"research.trending"},
	}
	mustAdd(t, p, s)

	params, err := p.ResolveParams(s)
	if err != nil {
		t.Fatal(err)
	}
	prompt := params["prompt"].(string)
	if !strings.Contains(prompt, "golang generics.") {
		t.Errorf("Succeeded reference not substituted (trailing dot kept): %q", prompt)
	}
	if strings.Contains(prompt, "$research") {
		t.Errorf("Unresolved token left in prompt: %q", prompt)
	}
	// Skipped reference resolves to empty string.
	if !strings.HasSuffix(prompt, "Also: ") {
		t.Errorf("Skipped reference should resolve to empty: %q", prompt)
	}

	nested := params["nested"].(map[string]any)["list"].([]any)
	if nested[0] != "golang generics" {
		t.Errorf("Nested substitution failed: %v", nested[0])
	}
	if params["count"] != 3 {
		t.Errorf("Non-string param mutated: %v", params["count"])
	}
}

func TestPlan_ResolveParams_UnmetDependency(t *testing.T) {
	p := newTestPlan(t)
	mustAdd(t, p, &Step{ID: "a", Phase: PhaseResearch, Capability: "search"})
	s := &Step{
		ID:         "b",
		Phase:      PhaseResearch,
		Capability: "search",
		Params:     map[string]any{"q": "$a"},
		DependsOn:  []string{"a"},
	}
	mustAdd(t, p, s)

	_, err := p.ResolveParams(s)
	if !errors.Is(err, ErrDependencyUnmet) {
		t.Errorf("Expected ErrDependencyUnmet, got %v", err)
	}
}

func TestPlan_ResolveParams_UnknownTokenUntouched(t *testing.T) {
	p := newTestPlan(t)
	s := &Step{
		ID:         "a",
		Phase:      PhasePublishing,
		Capability: "write_file",
		Params:     map[string]any{"content": "costs $100 up front"},
	}
	mustAdd(t, p, s)

	params, err := p.ResolveParams(s)
	if err != nil {
		t.Fatal(err)
	}
	if params["content"] != "costs $100 up front" {
		t.Errorf("Unknown token should pass through: %v", params["content"])
	}
}
