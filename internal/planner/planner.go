package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rahul/contentflux/internal/content"
	"github.com/rahul/contentflux/internal/plan"
)

// Request carries the caller's parameters for one orchestration run.
type Request struct {
	RunID   string
	Niche   string
	Topic   string
	Formats []string
	// Sources are caller-supplied URLs whose content grounds the
	// research summary alongside the search results.
	Sources []string
}

// Delta is the planner's output: steps to add to and remove from the
// plan. The executor applies it; the planner never runs anything.
type Delta struct {
	Add    []*plan.Step
	Remove []string
}

func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// PlanningError means the planner cannot produce a valid next set of
// steps, which halts the plan.
type PlanningError struct {
	Phase  plan.PhaseName
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning %s: %s", e.Phase, e.Reason)
}

// ScoreFunc rates a candidate topic. Higher wins.
type ScoreFunc func(c Candidate) float64

// DefaultScore prefers candidates that surfaced earlier in the
// research results.
func DefaultScore(c Candidate) float64 {
	return 1.0 / float64(1+c.Rank)
}

// Targets flags which optional publishing capabilities are configured.
// AnnounceVia names the capability the announcement step invokes; it
// defaults to "announce".
type Targets struct {
	Notion      bool
	Announce    bool
	AnnounceVia string
}

// Planner produces each phase's steps from the accumulated plan
// context. It is called repeatedly per phase until it returns an empty
// delta.
type Planner struct {
	Formats       []content.Format
	Prompts       *PromptManager
	Score         ScoreFunc
	Targets       Targets
	MaxCandidates int
	Now           func() time.Time
}

func New(formats []content.Format, prompts *PromptManager) *Planner {
	return &Planner{
		Formats:       formats,
		Prompts:       prompts,
		Score:         DefaultScore,
		MaxCandidates: 5,
		Now:           time.Now,
	}
}

// PlanPhase returns the next delta for the given phase. All steps of
// the phase that exist are terminal when this is called.
func (pl *Planner) PlanPhase(p *plan.Plan, phase plan.PhaseName, req Request) (Delta, error) {
	switch phase {
	case plan.PhaseResearch:
		return pl.planResearch(p, req)
	case plan.PhaseAnalysis:
		return pl.planAnalysis(p, req)
	case plan.PhaseCreation:
		return pl.planCreation(p, req)
	case plan.PhasePublishing:
		return pl.planPublishing(p, req)
	default:
		return Delta{}, &PlanningError{Phase: phase, Reason: "unknown phase"}
	}
}

var discoverySteps = []struct {
	id    string
	query string
}{
	{"research.trending", "trending %s topics"},
	{"research.news", "%s latest news"},
	{"research.discussions", "%s community discussions"},
}

func (pl *Planner) planResearch(p *plan.Plan, req Request) (Delta, error) {
	existing := p.PhaseSteps(plan.PhaseResearch)

	// First round: discovery, or a single validation step when the
	// caller already knows the topic. Caller-supplied source URLs are
	// read in the same round.
	if len(existing) == 0 {
		var add []*plan.Step
		for i, u := range req.Sources {
			add = append(add, &plan.Step{
				ID:         fmt.Sprintf("research.source.%d", i+1),
				Phase:      plan.PhaseResearch,
				Capability: "fetch_page",
				Params:     map[string]any{"url": u},
			})
		}
		if req.Topic != "" {
			add = append(add, &plan.Step{
				ID:         "research.topic",
				Phase:      plan.PhaseResearch,
				Capability: "search",
				Params: map[string]any{
					"query":     fmt.Sprintf("%s %s", req.Topic, req.Niche),
					"candidate": req.Topic,
					"rank":      0,
				},
			})
			return Delta{Add: add}, nil
		}
		for _, d := range discoverySteps {
			add = append(add, &plan.Step{
				ID:         d.id,
				Phase:      plan.PhaseResearch,
				Capability: "search",
				Params:     map[string]any{"query": fmt.Sprintf(d.query, req.Niche)},
			})
		}
		return Delta{Add: add}, nil
	}

	// Validation round already planned, or the explicit topic was the
	// whole phase: research is complete.
	for _, s := range existing {
		if _, ok := s.Params["candidate"]; ok {
			return Delta{}, nil
		}
	}

	// Second round: extract candidates from whatever discovery
	// succeeded and plan one validation step per candidate.
	var lists [][]string
	for _, d := range discoverySteps {
		if res, ok := p.Result(d.id); ok {
			lists = append(lists, ExtractCandidates(res.Output))
		}
	}
	if len(lists) == 0 {
		// Zero successful discovery steps; the halt rule applies.
		return Delta{}, nil
	}

	candidates := dedupeCandidates(lists...)
	if len(candidates) == 0 {
		return Delta{}, &PlanningError{
			Phase:  plan.PhaseResearch,
			Reason: "no candidate topics found in research results",
		}
	}
	if len(candidates) > pl.MaxCandidates {
		candidates = candidates[:pl.MaxCandidates]
	}

	var add []*plan.Step
	for i, c := range candidates {
		add = append(add, &plan.Step{
			ID:         fmt.Sprintf("research.candidate.%d", i+1),
			Phase:      plan.PhaseResearch,
			Capability: "search",
			Params: map[string]any{
				"query":     fmt.Sprintf("%s %s", c.Name, req.Niche),
				"candidate": c.Name,
				"rank":      c.Rank,
			},
		})
	}
	return Delta{Add: add}, nil
}

// validatedCandidates collects the candidates whose validation step
// succeeded.
func validatedCandidates(p *plan.Plan) []Candidate {
	var out []Candidate
	for _, s := range p.SucceededSteps(plan.PhaseResearch) {
		name := stringParam(s.Params, "candidate")
		if name == "" {
			continue
		}
		out = append(out, Candidate{Name: name, Rank: intParam(s.Params, "rank")})
	}
	return out
}

// SelectTopic applies the scoring policy: highest score wins, ties go
// to the shortest candidate identifier, then lexicographic order. The
// result is fully deterministic for a given score function.
func (pl *Planner) SelectTopic(candidates []Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := pl.Score(sorted[i]), pl.Score(sorted[j])
		if si != sj {
			return si > sj
		}
		if len(sorted[i].Name) != len(sorted[j].Name) {
			return len(sorted[i].Name) < len(sorted[j].Name)
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted[0].Name
}

// requestedFormats resolves the caller's format names, defaulting to a
// single long-form article so output is never empty.
func (pl *Planner) requestedFormats(req Request) ([]content.Format, error) {
	names := req.Formats
	if len(names) == 0 {
		names = []string{content.DefaultFormat}
	}
	var out []content.Format
	for _, name := range names {
		f, ok := content.FormatByName(pl.Formats, name)
		if !ok {
			return nil, &PlanningError{
				Phase:  plan.PhaseAnalysis,
				Reason: fmt.Sprintf("unknown output format %q", name),
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (pl *Planner) planAnalysis(p *plan.Plan, req Request) (Delta, error) {
	if len(p.PhaseSteps(plan.PhaseAnalysis)) > 0 {
		return Delta{}, nil
	}

	candidates := validatedCandidates(p)
	if len(candidates) == 0 {
		return Delta{}, &PlanningError{
			Phase:  plan.PhaseAnalysis,
			Reason: "no validated candidate topics to analyze",
		}
	}
	p.Topic = pl.SelectTopic(candidates)

	formats, err := pl.requestedFormats(req)
	if err != nil {
		return Delta{}, err
	}

	// The summary compiles only the research that actually succeeded.
	var deps []string
	var findings []string
	for _, s := range p.SucceededSteps(plan.PhaseResearch) {
		deps = append(deps, s.ID)
		findings = append(findings, "$"+s.ID)
	}
	summaryPrompt := fmt.Sprintf(
		"Compile a comprehensive research summary about %s. Include key findings, statistics, and insights.\n\nFINDINGS:\n%s",
		p.Topic, strings.Join(findings, "\n\n"))

	add := []*plan.Step{{
		ID:         "analysis.summary",
		Phase:      plan.PhaseAnalysis,
		Capability: "generate_text",
		Params:     map[string]any{"prompt": summaryPrompt},
		DependsOn:  deps,
	}}
	for _, f := range formats {
		add = append(add, &plan.Step{
			ID:         "analysis." + f.Name,
			Phase:      plan.PhaseAnalysis,
			Capability: "generate_text",
			Params: map[string]any{
				"prompt": content.RenderPrompt(f.Brief, p.Topic, "$analysis.summary", ""),
			},
			DependsOn: []string{"analysis.summary"},
		})
	}
	return Delta{Add: add}, nil
}

func (pl *Planner) planCreation(p *plan.Plan, req Request) (Delta, error) {
	if len(p.PhaseSteps(plan.PhaseCreation)) > 0 {
		return Delta{}, nil
	}

	formats, err := pl.requestedFormats(req)
	if err != nil {
		return Delta{}, err
	}

	guidelines := pl.Prompts.Guidelines()

	var add []*plan.Step
	for _, f := range formats {
		briefID := "analysis." + f.Name
		if s := p.Step(briefID); s == nil || s.Status != plan.StatusSucceeded {
			// Degrade to the formats whose analysis survived.
			continue
		}
		prompt := guidelines + "\n\n" + content.RenderPrompt(f.Prompt, p.Topic, "", "$"+briefID)
		add = append(add, &plan.Step{
			ID:         "creation." + f.Name,
			Phase:      plan.PhaseCreation,
			Capability: "generate_text",
			Params:     map[string]any{"prompt": prompt},
			DependsOn:  []string{briefID},
		})
	}
	if len(add) == 0 {
		return Delta{}, &PlanningError{
			Phase:  plan.PhaseCreation,
			Reason: "no analysis output available for any requested format",
		}
	}
	return Delta{Add: add}, nil
}

func (pl *Planner) planPublishing(p *plan.Plan, req Request) (Delta, error) {
	if len(p.PhaseSteps(plan.PhasePublishing)) > 0 {
		return Delta{}, nil
	}

	formats, err := pl.requestedFormats(req)
	if err != nil {
		return Delta{}, err
	}

	stem := content.FileStem(p.Topic, pl.Now())

	var add []*plan.Step
	var fileIDs []string
	var creationIDs []string
	formatRefs := make(map[string]any)
	for _, f := range formats {
		creationID := "creation." + f.Name
		if s := p.Step(creationID); s == nil || s.Status != plan.StatusSucceeded {
			continue
		}
		creationIDs = append(creationIDs, creationID)
		formatRefs[f.Name] = "$" + creationID

		ext := f.Extension
		if ext == "" {
			ext = "md"
		}
		fileID := "publish.file." + f.Name
		fileIDs = append(fileIDs, fileID)
		add = append(add, &plan.Step{
			ID:         fileID,
			Phase:      plan.PhasePublishing,
			Capability: "write_file",
			Params: map[string]any{
				"path":    fmt.Sprintf("%s_%s.%s", stem, f.Name, ext),
				"content": "$" + creationID,
			},
			DependsOn: []string{creationID},
		})
	}
	if len(creationIDs) == 0 {
		return Delta{}, &PlanningError{
			Phase:  plan.PhasePublishing,
			Reason: "no generated content available to publish",
		}
	}

	// One JSON document per run capturing the full bundle.
	add = append(add, &plan.Step{
		ID:         "publish.bundle",
		Phase:      plan.PhasePublishing,
		Capability: "write_file",
		Params: map[string]any{
			"path": stem + ".json",
			"document": map[string]any{
				"run_id":     req.RunID,
				"niche":      req.Niche,
				"topic":      p.Topic,
				"created_at": pl.Now().Format(time.RFC3339),
				"formats":    formatRefs,
			},
		},
		DependsOn: creationIDs,
	})

	// One database record per run: Notion when configured, the local
	// record store otherwise (and as the declared fallback).
	recordCap := "write_database_record"
	if pl.Targets.Notion {
		recordCap = "notion_page"
	}
	recordDeps := append([]string{"analysis.summary"}, creationIDs...)
	add = append(add, &plan.Step{
		ID:         "publish.record",
		Phase:      plan.PhasePublishing,
		Capability: recordCap,
		Params: map[string]any{
			"run_id":  req.RunID,
			"niche":   req.Niche,
			"topic":   p.Topic,
			"title":   p.Topic,
			"summary": "$analysis.summary",
			"formats": formatRefs,
		},
		DependsOn: recordDeps,
	})

	if pl.Targets.Announce {
		announceCap := pl.Targets.AnnounceVia
		if announceCap == "" {
			announceCap = "announce"
		}
		add = append(add, &plan.Step{
			ID:         "publish.announce",
			Phase:      plan.PhasePublishing,
			Capability: announceCap,
			Params: map[string]any{
				"text": fmt.Sprintf("New content published: %s (%s niche, %d formats)",
					p.Topic, req.Niche, len(creationIDs)),
			},
			DependsOn: append(fileIDs, "publish.record"),
		})
	}

	return Delta{Add: add}, nil
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
