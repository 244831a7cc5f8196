package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rahul/contentflux/internal/capability"
	"github.com/rahul/contentflux/internal/content"
	"github.com/rahul/contentflux/internal/executor"
	"github.com/rahul/contentflux/internal/governance"
	"github.com/rahul/contentflux/internal/observability"
	"github.com/rahul/contentflux/internal/plan"
	"github.com/rahul/contentflux/internal/planner"
)

// scriptedCapability answers invocations from a function, for pipeline
// tests that never touch the network.
type scriptedCapability struct {
	name    string
	desc    capability.Descriptor
	outcome func(params map[string]any) (capability.Result, error)
}

func (s *scriptedCapability) Name() string                      { return s.name }
func (s *scriptedCapability) Description() string               { return "test capability" }
func (s *scriptedCapability) Descriptor() capability.Descriptor { return s.desc }

func (s *scriptedCapability) Invoke(ctx context.Context, params map[string]any) (capability.Result, error) {
	if s.outcome != nil {
		return s.outcome(params)
	}
	return capability.Result{Output: "ok"}, nil
}

type memoryRunStore struct {
	mu   sync.Mutex
	runs map[string]string
}

func (m *memoryRunStore) SaveRun(id, niche, topic, status, bundle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]string)
	}
	m.runs[id] = status
	return nil
}

func searchScript() *scriptedCapability {
	return &scriptedCapability{
		name: "search",
		desc: capability.Descriptor{Idempotent: true},
		outcome: func(params map[string]any) (capability.Result, error) {
			if _, ok := params["candidate"]; ok {
				return capability.Result{Output: "validation findings"}, nil
			}
			return capability.Result{Output: "1. Server Side Rendering\n2. Edge Caching Strategies"}, nil
		},
	}
}

func generateScript() *scriptedCapability {
	return &scriptedCapability{
		name: "generate_text",
		desc: capability.Descriptor{Idempotent: true},
		outcome: func(params map[string]any) (capability.Result, error) {
			prompt := params["prompt"].(string)
			return capability.Result{Output: "generated for: " + content.Truncate(prompt, 40)}, nil
		},
	}
}

func newTestOrchestrator(t *testing.T, store RunStore, caps ...capability.Capability) *Orchestrator {
	t.Helper()
	registry := capability.NewRegistry()
	for _, c := range caps {
		registry.Register(c)
	}
	logger := observability.NewLogger()
	pl := planner.New(content.DefaultFormats(), planner.NewPromptManager(t.TempDir()))
	cfg := executor.DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	ex := executor.New(registry, governance.NewDefaultPolicyEngine(), logger, cfg)
	o := New(pl, ex, logger, store)
	o.Now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return o
}

func TestRun_FullPipeline(t *testing.T) {
	store := &memoryRunStore{}
	o := newTestOrchestrator(t, store,
		searchScript(),
		generateScript(),
		&scriptedCapability{name: "write_file", desc: capability.Descriptor{Idempotent: true}},
		&scriptedCapability{name: "write_database_record", desc: capability.Descriptor{Idempotent: false}},
	)

	bundle, err := o.Run(context.Background(), Request{
		Niche:   "web performance",
		Formats: []string{"article", "twitter_thread"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if bundle.Empty() {
		t.Fatal("Expected a populated bundle")
	}
	if len(bundle.Formats) != 2 {
		t.Fatalf("Expected 2 formats, got %d", len(bundle.Formats))
	}
	// Highest-ranked candidate wins topic selection.
	if bundle.Topic != "Server Side Rendering" {
		t.Errorf("Topic = %q", bundle.Topic)
	}
	if bundle.Niche != "web performance" {
		t.Errorf("Niche = %q", bundle.Niche)
	}

	article := bundle.Formats["article"]
	if article == nil || !strings.HasPrefix(article.Body, "generated for:") {
		t.Fatalf("Article content missing: %+v", article)
	}
	targets := make(map[string]content.PublicationStatus)
	for _, pub := range article.Publications {
		targets[pub.Target] = pub.Status
	}
	if targets["file"] != content.PublicationSucceeded {
		t.Errorf("File publication = %v", targets)
	}
	if targets["record"] != content.PublicationSucceeded {
		t.Errorf("Record publication = %v", targets)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if status := store.runs[bundle.RunID]; status != "succeeded" {
		t.Errorf("Persisted run status = %q", status)
	}
}

func TestRun_ExplicitTopic(t *testing.T) {
	o := newTestOrchestrator(t, nil,
		searchScript(),
		generateScript(),
		&scriptedCapability{name: "write_file", desc: capability.Descriptor{Idempotent: true}},
		&scriptedCapability{name: "write_database_record", desc: capability.Descriptor{Idempotent: false}},
	)

	bundle, err := o.Run(context.Background(), Request{
		Niche: "databases",
		Topic: "Write Ahead Logging",
	})
	if err != nil {
		t.Fatal(err)
	}
	if bundle.Topic != "Write Ahead Logging" {
		t.Errorf("Topic = %q", bundle.Topic)
	}
	// Default format when none requested.
	if _, ok := bundle.Formats["article"]; !ok || len(bundle.Formats) != 1 {
		t.Errorf("Expected single article format, got %v", bundle.Formats)
	}
}

func TestRun_HaltsWhenResearchFullyFails(t *testing.T) {
	store := &memoryRunStore{}
	o := newTestOrchestrator(t, store,
		&scriptedCapability{
			name: "search",
			desc: capability.Descriptor{Idempotent: true},
			outcome: func(params map[string]any) (capability.Result, error) {
				return capability.Result{}, capability.Permanentf("search backend down")
			},
		},
		generateScript(),
	)

	_, err := o.Run(context.Background(), Request{Niche: "golang"})
	var perr *PhaseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PhaseError, got %v", err)
	}
	if perr.Phase != plan.PhaseResearch {
		t.Errorf("Halt phase = %s", perr.Phase)
	}
	if perr.Partial == nil || !perr.Partial.Empty() {
		t.Errorf("Partial bundle should exist and be empty: %+v", perr.Partial)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, status := range store.runs {
		if status != "halted" {
			t.Errorf("Persisted run status = %q", status)
		}
	}
}

func TestRun_DegradesWhenOneFormatFails(t *testing.T) {
	gen := &scriptedCapability{
		name: "generate_text",
		desc: capability.Descriptor{Idempotent: true},
		outcome: func(params map[string]any) (capability.Result, error) {
			prompt := params["prompt"].(string)
			if strings.Contains(prompt, "tweet") || strings.Contains(prompt, "thread") {
				return capability.Result{}, capability.Permanentf("model refused")
			}
			return capability.Result{Output: "generated body"}, nil
		},
	}
	o := newTestOrchestrator(t, nil,
		searchScript(),
		gen,
		&scriptedCapability{name: "write_file", desc: capability.Descriptor{Idempotent: true}},
		&scriptedCapability{name: "write_database_record", desc: capability.Descriptor{Idempotent: false}},
	)

	bundle, err := o.Run(context.Background(), Request{
		Niche:   "golang",
		Formats: []string{"article", "twitter_thread"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bundle.Formats) != 1 {
		t.Fatalf("Expected degraded bundle with 1 format, got %d", len(bundle.Formats))
	}
	if _, ok := bundle.Formats["article"]; !ok {
		t.Errorf("Surviving format should be article: %v", bundle.Formats)
	}
}

func TestRun_CancellationReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, nil, searchScript(), generateScript())

	_, err := o.Run(ctx, Request{Niche: "golang"})
	var perr *PhaseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PhaseError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cause context.Canceled, got %v", perr.Err)
	}
	if perr.Partial == nil {
		t.Error("Partial bundle missing")
	}
}

func TestRun_CancellationAfterResearchSkipsAnalysis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var genCalls int32
	search := &scriptedCapability{
		name: "search",
		desc: capability.Descriptor{Idempotent: true},
		outcome: func(params map[string]any) (capability.Result, error) {
			// Cancel as the final research step hands back its result,
			// so the run stops between research and analysis.
			cancel()
			return capability.Result{Output: "validation findings"}, nil
		},
	}
	gen := &scriptedCapability{
		name: "generate_text",
		desc: capability.Descriptor{Idempotent: true},
		outcome: func(params map[string]any) (capability.Result, error) {
			atomic.AddInt32(&genCalls, 1)
			return capability.Result{Output: "generated body"}, nil
		},
	}
	o := newTestOrchestrator(t, nil, search, gen)

	_, err := o.Run(ctx, Request{Niche: "golang", Topic: "Escape Analysis"})
	var perr *PhaseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PhaseError, got %v", err)
	}
	if perr.Phase != plan.PhaseResearch {
		t.Errorf("Halt phase = %s", perr.Phase)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cause context.Canceled, got %v", perr.Err)
	}
	if perr.Partial == nil || !perr.Partial.Empty() {
		t.Errorf("Partial bundle should carry no formats: %+v", perr.Partial)
	}
	if got := atomic.LoadInt32(&genCalls); got != 0 {
		t.Errorf("Analysis dispatched %d generation steps after cancellation", got)
	}
}

func TestRun_RejectsEmptyNiche(t *testing.T) {
	o := newTestOrchestrator(t, nil, searchScript(), generateScript())
	if _, err := o.Run(context.Background(), Request{Niche: "  "}); err == nil {
		t.Fatal("Expected error for blank niche")
	}
}

func TestRun_NonAsciiStrippedFromBundle(t *testing.T) {
	gen := &scriptedCapability{
		name: "generate_text",
		desc: capability.Descriptor{Idempotent: true},
		outcome: func(params map[string]any) (capability.Result, error) {
			return capability.Result{Output: "smart “quotes” and emoji 🚀 removed"}, nil
		},
	}
	o := newTestOrchestrator(t, nil,
		searchScript(),
		gen,
		&scriptedCapability{name: "write_file", desc: capability.Descriptor{Idempotent: true}},
		&scriptedCapability{name: "write_database_record", desc: capability.Descriptor{Idempotent: false}},
	)

	bundle, err := o.Run(context.Background(), Request{Niche: "golang", Topic: "Unicode Hygiene"})
	if err != nil {
		t.Fatal(err)
	}
	body := bundle.Formats["article"].Body
	if strings.ContainsRune(body, '🚀') || strings.Contains(body, "“") {
		t.Errorf("Body should be ASCII only: %q", body)
	}
}
