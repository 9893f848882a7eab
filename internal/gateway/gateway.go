// Package gateway wires the full service: bus, provider, tools,
// sessions, memory, channels, cron, and the agent loop.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stellarlinkco/sparkclaw/internal/agent"
	"github.com/stellarlinkco/sparkclaw/internal/bus"
	"github.com/stellarlinkco/sparkclaw/internal/channel"
	"github.com/stellarlinkco/sparkclaw/internal/config"
	"github.com/stellarlinkco/sparkclaw/internal/cron"
	"github.com/stellarlinkco/sparkclaw/internal/memory"
	"github.com/stellarlinkco/sparkclaw/internal/provider"
	"github.com/stellarlinkco/sparkclaw/internal/session"
	"github.com/stellarlinkco/sparkclaw/internal/tools"
)

// ProviderFactory creates model providers (allows fakes in tests).
type ProviderFactory func(cfg provider.Config) (provider.Provider, error)

// Options for creating a Gateway.
type Options struct {
	ProviderFactory ProviderFactory
	SignalChan      chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	provider provider.Provider
	memory   *memory.Service
	registry *tools.Registry
	sessions *session.Manager
	loop     *agent.Loop
	channels *channel.Manager
	cron     *cron.Service

	signalChan chan os.Signal
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBusWithPolicy(cfg.Bus.BufSize, cfg.Bus.Policy)

	factory := opts.ProviderFactory
	if factory == nil {
		factory = provider.New
	}

	p, err := factory(provider.Config{
		Type:      cfg.Provider.Type,
		APIKey:    cfg.Provider.APIKey,
		BaseURL:   cfg.Provider.BaseURL,
		Model:     cfg.Agent.Model,
		MaxTokens: cfg.Agent.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	g.provider = p

	if cfg.Memory.Enabled {
		memProvider := p
		if mp := cfg.Memory.Provider; mp != nil && mp.APIKey != "" {
			memProvider, err = factory(provider.Config{
				Type:      mp.Type,
				APIKey:    mp.APIKey,
				BaseURL:   mp.BaseURL,
				Model:     memoryModel(cfg),
				MaxTokens: cfg.Agent.MaxTokens,
			})
			if err != nil {
				return nil, fmt.Errorf("create memory provider: %w", err)
			}
		}
		svc, err := memory.NewService(memory.ServiceOptions{
			Dir:               filepath.Join(config.ConfigDir(), "memory"),
			Provider:          memProvider,
			Model:             memoryModel(cfg),
			TopKSkills:        cfg.Memory.TopKSkills,
			MaxMemories:       cfg.Memory.MaxMemoriesInContext,
			MaxChars:          cfg.Memory.MaxMemoryChars,
			HardCaseThreshold: cfg.Memory.HardCaseThreshold,
			AutoEvolve:        cfg.Memory.AutoEvolve,
		})
		if err != nil {
			return nil, fmt.Errorf("create memory service: %w", err)
		}
		g.memory = svc
	}

	g.registry = BuildTools(cfg)

	sessions, err := session.NewManager(filepath.Join(config.ConfigDir(), "sessions"))
	if err != nil {
		return nil, fmt.Errorf("create session manager: %w", err)
	}
	g.sessions = sessions

	var retriever agent.MemoryRetriever
	var pipeline agent.MemoryPipeline
	if g.memory != nil {
		retriever = g.memory
		pipeline = g.memory
	}

	g.loop = agent.NewLoop(agent.LoopOptions{
		Bus:           g.bus,
		Provider:      p,
		Tools:         g.registry,
		Sessions:      sessions,
		Context:       agent.NewContextBuilder(cfg.Agent.Workspace, retriever),
		Memory:        pipeline,
		Model:         cfg.Agent.Model,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
		MaxIterations: cfg.Agent.MaxToolIterations,
	})

	chMgr, err := channel.NewManager(cfg.Channels, g.bus)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.cron = cron.NewService(filepath.Join(config.ConfigDir(), "cron", "jobs.json"))
	g.cron.OnJob = func(job cron.CronJob) (string, error) {
		if job.Payload.Channel != "" && job.Payload.ChatID != "" {
			out := g.loop.Process(context.Background(), bus.InboundMessage{
				Channel:   job.Payload.Channel,
				SenderID:  "cron",
				ChatID:    job.Payload.ChatID,
				Content:   job.Payload.Message,
				Timestamp: time.Now(),
			})
			g.bus.PublishOutbound(out)
			return out.Content, nil
		}
		return g.loop.ProcessDirect(context.Background(), job.Payload.Message)
	}

	g.signalChan = opts.SignalChan

	return g, nil
}

// memoryModel picks the model for the memory pipeline, falling back to
// the main agent model.
func memoryModel(cfg *config.Config) string {
	if cfg.Memory.Model != "" {
		return cfg.Memory.Model
	}
	return cfg.Agent.Model
}

// BuildTools assembles the tool registry from config.
func BuildTools(cfg *config.Config) *tools.Registry {
	reg := tools.NewRegistry()

	ws := cfg.Agent.Workspace
	restrict := cfg.Tools.RestrictToWorkspace

	set := []tools.Tool{
		tools.NewReadFileTool(ws, restrict),
		tools.NewWriteFileTool(ws, restrict),
		tools.NewEditFileTool(ws, restrict),
		tools.NewListDirectoryTool(ws, restrict),
		tools.NewShellTool(ws, cfg.Tools.ExecTimeout),
		tools.NewWebFetchTool(),
	}
	if cfg.Tools.BraveAPIKey != "" {
		set = append(set, tools.NewWebSearchTool(cfg.Tools.BraveAPIKey))
	}

	for _, tool := range set {
		if err := reg.Register(tool); err != nil {
			log.Printf("[gateway] register tool %s: %v", tool.Name(), err)
		}
	}
	return reg
}

// Loop exposes the agent loop for direct (CLI) processing.
func (g *Gateway) Loop() *agent.Loop { return g.loop }

// Memory exposes the memory service; nil when memory is disabled.
func (g *Gateway) Memory() *memory.Service { return g.memory }

// Cron exposes the scheduler for job management commands.
func (g *Gateway) Cron() *cron.Service { return g.cron }

// Run starts all components and blocks until a shutdown signal or
// ctx cancellation, then shuts everything down.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}

	go g.loop.Run(ctx)

	log.Printf("[gateway] running")

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	log.Printf("[gateway] shutdown complete")
	return nil
}
