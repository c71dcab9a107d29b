package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/reinhart/assistantGPT/internal/assistant"
	"github.com/reinhart/assistantGPT/internal/configuration"
	"github.com/reinhart/assistantGPT/internal/logger"
	"github.com/reinhart/assistantGPT/internal/market"
	"github.com/reinhart/assistantGPT/internal/search"
	"github.com/reinhart/assistantGPT/internal/session"
	"github.com/reinhart/assistantGPT/internal/telemetry"
	"github.com/reinhart/assistantGPT/internal/ui"
)

func main() {
	// Load Configuration
	cfg, err := configuration.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Initialize Logger
	logger.Init()
	if cfg.Agent.Debug {
		logger.DebugMode = true
	}

	// In debug mode logs go to a file so they do not corrupt the TUI
	if logger.DebugMode {
		f, err := tea.LogToFile("debug.log", "debug")
		if err != nil {
			fmt.Println("fatal: could not open debug.log:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetOutput(f)
		logger.Debug("Logger initialized")
	}

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		fmt.Printf("Warning: tracing disabled: %v\n", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error(err, "Telemetry shutdown failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Tools
	searcher := search.NewDuckDuckGo(cfg.Search.Endpoint, cfg.Search.MaxResults)
	provider := market.NewYahoo(cfg.Market.BaseURL, cfg.Market.HistoryRange, cfg.Market.UserAgent)
	registry := assistant.NewStockToolRegistry(searcher, provider, cfg.Search.Delay)
	logger.Debug("Registered tools: %v", registry.Names())

	connect := func(ctx context.Context, apiKey string) (*assistant.Agent, string, error) {
		platform := assistant.NewOpenAIPlatform(apiKey, cfg.OpenAI.BaseURL)
		assistantID, created, err := assistant.EnsureAssistant(ctx, platform, registry, cfg.OpenAI.AssistantID, assistant.AssistantSpec{
			Name:  cfg.OpenAI.AssistantName,
			Model: cfg.OpenAI.Model,
		})
		if err != nil {
			return nil, "", err
		}
		var notice string
		if created {
			notice = createdAssistantNotice(assistantID)
		}
		return assistant.NewAgent(platform, registry, assistantID, assistant.Options{
			PollInterval:    cfg.Agent.PollInterval,
			MaxPollAttempts: cfg.Agent.MaxPollAttempts,
		}), notice, nil
	}

	opts := ui.Options{Connect: connect, TurnTimeout: cfg.Agent.TurnTimeout}

	// Connect right away when the key came from config or the environment
	switch err := cfg.Validate(); {
	case err == nil:
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		agent, notice, err := connect(cctx, cfg.OpenAI.APIKey)
		cancel()
		if err != nil {
			fmt.Printf("Error connecting to OpenAI: %v\n", err)
			os.Exit(1)
		}
		opts.Agent = agent
		opts.Notice = notice
		opts.Session = session.New(cfg.OpenAI.APIKey)
	case errors.Is(err, configuration.ErrMissingCredential):
		logger.Debug("No API key configured, prompting for one")
	default:
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		if err := ui.RunPlain(ctx, os.Stdin, os.Stdout, opts); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("Error running AssistantGPT: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(ui.NewModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Printf("Error running AssistantGPT: %v\n", err)
		os.Exit(1)
	}
}

// createdAssistantNotice tells the user how to reuse an assistant instead of
// creating a new one on every launch.
func createdAssistantNotice(id string) string {
	return fmt.Sprintf("Created assistant %s. To reuse it, set OPENAI_ASSISTANT_ID=%s or add assistant_id = %q under [openai] in your config.", id, id, id)
}
