package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/sparkclaw/internal/config"
	"github.com/stellarlinkco/sparkclaw/internal/gateway"
	"github.com/stellarlinkco/sparkclaw/internal/memory"
	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

// AgentOptions for running the agent with custom dependencies
type AgentOptions struct {
	ProviderFactory gateway.ProviderFactory
	Stdin           io.Reader
	Stdout          io.Writer
	Stderr          io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "sparkclaw",
	Short: "sparkclaw - personal AI assistant",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agent in single message or REPL mode",
	RunE:  runAgent,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + cron + agent loop)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sparkclaw status",
	RunE:  runStatus,
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage the memory subsystem",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memory entries",
	RunE:  runMemoryList,
}

var memorySkillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List memory skills",
	RunE:  runMemorySkills,
}

var memoryEvolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Run skill evolution over accumulated hard cases",
	RunE:  runMemoryEvolve,
}

var messageFlag string

func init() {
	agentCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	memoryCmd.AddCommand(memoryListCmd, memorySkillsCmd, memoryEvolveCmd)
	rootCmd.AddCommand(agentCmd, gatewayCmd, onboardCmd, statusCmd, memoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireAPIKey(cfg *config.Config) error {
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'sparkclaw onboard' or set SPARKCLAW_API_KEY / ANTHROPIC_API_KEY")
	}
	return nil
}

// runAgent is the command handler that uses default options
func runAgent(cmd *cobra.Command, args []string) error {
	return runAgentWithOptions(AgentOptions{})
}

// runAgentWithOptions runs the agent with injectable dependencies for testing
func runAgentWithOptions(opts AgentOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if opts.ProviderFactory == nil {
		if err := requireAPIKey(cfg); err != nil {
			return err
		}
	}

	gw, err := gateway.NewWithOptions(cfg, gateway.Options{
		ProviderFactory: opts.ProviderFactory,
	})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Shutdown()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()

	// Single message mode
	if messageFlag != "" {
		reply, err := gw.Loop().ProcessDirect(ctx, messageFlag)
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		fmt.Fprintln(stdout, reply)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "sparkclaw agent (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := gw.Loop().ProcessDirect(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, reply)
	}
	return nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ws := cfg.Agent.Workspace
	if err := os.MkdirAll(filepath.Join(ws, "memory"), 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	writeIfNotExists(filepath.Join(ws, "AGENTS.md"), defaultAgentsMD)
	writeIfNotExists(filepath.Join(ws, "SOUL.md"), defaultSoulMD)
	writeIfNotExists(filepath.Join(ws, "USER.md"), defaultUserMD)
	writeIfNotExists(filepath.Join(ws, "memory", "MEMORY.md"), "")

	fmt.Printf("Workspace ready: %s\n", ws)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set SPARKCLAW_API_KEY environment variable")
	fmt.Println("  3. Run 'sparkclaw agent -m \"Hello\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Agent.Workspace)
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Memory: enabled=%v autoEvolve=%v\n", cfg.Memory.Enabled, cfg.Memory.AutoEvolve)

	if _, err := os.Stat(cfg.Agent.Workspace); err != nil {
		fmt.Println("Workspace: not found (run 'sparkclaw onboard')")
	}

	if store, err := memory.NewStore(filepath.Join(config.ConfigDir(), "memory")); err == nil {
		fmt.Printf("Memory entries: %d\n", len(store.GetAll()))
	}

	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	store, err := memory.NewStore(filepath.Join(config.ConfigDir(), "memory"))
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	entries := store.GetAll()
	if len(entries) == 0 {
		fmt.Println("No memory entries.")
		return nil
	}
	for _, e := range entries {
		tags := "none"
		if len(e.Tags) > 0 {
			tags = strings.Join(e.Tags, ", ")
		}
		fmt.Printf("%s  %s\n  tags: %s  accessed: %d  updated: %s\n",
			e.ID, e.Content, tags, e.AccessCount, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runMemorySkills(cmd *cobra.Command, args []string) error {
	bank, err := memory.NewSkillBank(filepath.Join(config.ConfigDir(), "memory", "skills"))
	if err != nil {
		return fmt.Errorf("open skill bank: %w", err)
	}

	for _, s := range bank.GetAll() {
		kind := "evolved"
		if s.IsPrimitive {
			kind = "primitive"
		}
		fmt.Printf("%s (%s, v%d)\n  %s\n  used: %d  success rate: %.0f%%\n",
			s.ID, kind, s.Version, s.Description, s.UsageCount, s.SuccessRate()*100)
	}
	return nil
}

func runMemoryEvolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	pcfg := provider.Config{
		Type:      cfg.Provider.Type,
		APIKey:    cfg.Provider.APIKey,
		BaseURL:   cfg.Provider.BaseURL,
		Model:     cfg.Agent.Model,
		MaxTokens: cfg.Agent.MaxTokens,
	}
	if mp := cfg.Memory.Provider; mp != nil && mp.APIKey != "" {
		pcfg.Type = mp.Type
		pcfg.APIKey = mp.APIKey
		pcfg.BaseURL = mp.BaseURL
	}
	p, err := provider.New(pcfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	svc, err := memory.NewService(memory.ServiceOptions{
		Dir:               filepath.Join(config.ConfigDir(), "memory"),
		Provider:          p,
		Model:             memoryModel(cfg),
		TopKSkills:        cfg.Memory.TopKSkills,
		MaxMemories:       cfg.Memory.MaxMemoriesInContext,
		MaxChars:          cfg.Memory.MaxMemoryChars,
		HardCaseThreshold: cfg.Memory.HardCaseThreshold,
	})
	if err != nil {
		return fmt.Errorf("create memory service: %w", err)
	}

	count := svc.Designer().HardCaseCount()
	if count == 0 {
		fmt.Println("No hard cases recorded; nothing to evolve.")
		return nil
	}

	fmt.Printf("Evolving skills from %d hard cases...\n", count)
	added, err := svc.Designer().Evolve(context.Background(), p, memoryModel(cfg))
	if err != nil {
		return fmt.Errorf("evolve: %w", err)
	}
	for _, s := range added {
		fmt.Printf("  new/updated skill: %s (v%d)\n", s.ID, s.Version)
	}
	if removed := svc.Designer().CheckRollbacks(); len(removed) > 0 {
		fmt.Printf("  rolled back: %s\n", strings.Join(removed, ", "))
	}
	return nil
}

func memoryModel(cfg *config.Config) string {
	if cfg.Memory.Model != "" {
		return cfg.Memory.Model
	}
	return cfg.Agent.Model
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultAgentsMD = `# sparkclaw Agent

You are sparkclaw, a personal AI assistant.

You have access to tools for file operations, web search, and command execution.
Use them to help the user accomplish tasks.

## Guidelines
- Be concise and helpful
- Use tools proactively when needed
- Remember information the user tells you by writing to memory
- Check your memory context for previously stored information
`

const defaultSoulMD = `# Soul

You are a capable personal assistant that helps with daily tasks,
research, coding, and general questions.

Your personality:
- Direct and efficient
- Technical when needed, simple when possible
- Proactive about using tools to get real answers
`

const defaultUserMD = `# User

Notes about the user go here. The agent reads this file into its
system prompt at the start of every turn.
`
