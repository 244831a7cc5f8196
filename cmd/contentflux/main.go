package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/contentflux/internal/capability"
	"github.com/rahul/contentflux/internal/content"
	"github.com/rahul/contentflux/internal/executor"
	"github.com/rahul/contentflux/internal/governance"
	"github.com/rahul/contentflux/internal/observability"
	"github.com/rahul/contentflux/internal/orchestrator"
	"github.com/rahul/contentflux/internal/planner"
	"github.com/rahul/contentflux/internal/store"
	"github.com/rahul/contentflux/pkg/config"
)

func main() {
	niche := flag.String("niche", "", "content niche to produce for (required)")
	topic := flag.String("topic", "", "explicit topic; skips topic discovery")
	formatsFlag := flag.String("formats", "", "comma-separated output formats (default: article)")
	sourcesFlag := flag.String("sources", "", "comma-separated source URLs to ground the research")
	every := flag.Duration("every", 0, "register a recurring run at this interval and keep running")
	flag.Parse()

	if *niche == "" {
		fmt.Fprintln(os.Stderr, "usage: contentflux -niche <niche> [-topic <topic>] [-formats a,b] [-every 24h]")
		os.Exit(2)
	}

	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	formats := splitList(*formatsFlag)
	sources := splitList(*sourcesFlag)

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	var err error
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	// Initialize Capabilities
	registry := capability.NewRegistry()

	searchCap, err := capability.NewSearchCapability()
	if err != nil {
		log.Fatalf("Failed to initialize search capability: %v", err)
	}
	registry.Register(searchCap)
	registry.Register(capability.NewGenerateCapability(llm))
	registry.Register(capability.NewWriteFileCapability(cfg.App.OutputDir))
	registry.Register(capability.NewFetchPageCapability())
	browserCap := capability.NewBrowserFetchCapability()
	registry.Register(browserCap)
	defer browserCap.Close()
	registry.Register(capability.NewRecordStoreCapability(st))

	targets := planner.Targets{}
	if cfg.Publish.Notion.Enabled && cfg.Publish.Notion.APIKey != "" {
		registry.Register(capability.NewNotionCapability(cfg.Publish.Notion.APIKey, cfg.Publish.Notion.DatabaseID))
		targets.Notion = true
	}
	if cfg.Publish.Telegram.Enabled && cfg.Publish.Telegram.Token != "" {
		announceCap, err := capability.NewAnnounceCapability(cfg.Publish.Telegram.Token, cfg.Publish.Telegram.ChatID)
		if err != nil {
			log.Printf("Warning: Failed to initialize announce capability: %v", err)
		} else {
			registry.Register(announceCap)
			targets.Announce = true
			targets.AnnounceVia = announceCap.Name()
		}
	}
	if cfg.Publish.Discord.Enabled && cfg.Publish.Discord.Token != "" {
		discordCap, err := capability.NewDiscordAnnounceCapability(cfg.Publish.Discord.Token, cfg.Publish.Discord.ChannelID)
		if err != nil {
			log.Printf("Warning: Failed to initialize discord capability: %v", err)
		} else {
			registry.Register(discordCap)
			if !targets.Announce {
				// Discord-only setups announce through discord directly;
				// otherwise it stays the declared fallback for telegram.
				targets.AnnounceVia = discordCap.Name()
			}
			targets.Announce = true
		}
	}

	log.Printf("[ INIT ] Capabilities online: %s", strings.Join(registry.Names(), ", "))

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: keep file writes inside the output root.
	_ = gov.DenyParams(`\.\./`)
	_ = gov.DenyParams(`"path"\s*:\s*"/`)

	logger := observability.NewLogger()

	formatDefs, err := content.LoadFormats(cfg.App.FormatsFile)
	if err != nil {
		log.Fatalf("Failed to load format definitions: %v", err)
	}

	pl := planner.New(formatDefs, planner.NewPromptManager(cfg.App.PromptsDir))
	pl.Targets = targets

	exCfg := executor.DefaultConfig()
	if cfg.Workflow.MaxInFlight > 0 {
		exCfg.MaxInFlight = cfg.Workflow.MaxInFlight
	}
	if cfg.Workflow.MaxAttempts > 0 {
		exCfg.MaxAttempts = cfg.Workflow.MaxAttempts
	}
	if cfg.Workflow.BackoffMS > 0 {
		exCfg.BackoffBase = time.Duration(cfg.Workflow.BackoffMS) * time.Millisecond
	}
	if cfg.Workflow.BackoffCapMS > 0 {
		exCfg.BackoffCap = time.Duration(cfg.Workflow.BackoffCapMS) * time.Millisecond
	}

	ex := executor.New(registry, gov, logger, exCfg)
	orch := orchestrator.New(pl, ex, logger, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live dashboard (1-second updates) and heartbeat.
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	if *every > 0 {
		if err := st.AddSchedule(*niche, formats, int(every.Seconds())); err != nil {
			log.Fatalf("Failed to register schedule: %v", err)
		}
		scheduler := orchestrator.NewScheduler(orch, st)
		go scheduler.Start(ctx)

		<-ctx.Done()
		observability.CleanupTerminal()
		time.Sleep(500 * time.Millisecond)
		log.Println("\033[95m[ EXIT ] SCHEDULER STOPPED. GOODBYE.\033[0m")
		return
	}

	bundle, err := orch.Run(ctx, orchestrator.Request{
		Niche:   *niche,
		Topic:   *topic,
		Formats: formats,
		Sources: sources,
	})
	observability.CleanupTerminal()
	if err != nil {
		log.Printf("\033[91m[ FAIL ] RUN HALTED: %v\033[0m", err)
		browserCap.Close()
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(bundle, "", "  ")
	fmt.Println(string(out))
}

func splitList(csv string) []string {
	var out []string
	for _, v := range strings.Split(csv, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
