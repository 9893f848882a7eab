package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 8192
	DefaultTemperature       = 0.7
	DefaultMaxToolIterations = 20
	DefaultExecTimeout       = 60
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18790
	DefaultBufSize           = 100
	DefaultBusPolicy         = "block"
	DefaultTopKSkills        = 3
	DefaultMaxMemories       = 10
	DefaultMaxMemoryChars    = 4000
	DefaultHardCaseThreshold = 5
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Channels ChannelsConfig `json:"channels"`
	Provider ProviderConfig `json:"provider"`
	Tools    ToolsConfig    `json:"tools"`
	Gateway  GatewayConfig  `json:"gateway"`
	Bus      BusConfig      `json:"bus"`
	Memory   MemoryConfig   `json:"memory"`
}

type AgentConfig struct {
	Workspace         string  `json:"workspace"`
	Model             string  `json:"model"`
	MaxTokens         int     `json:"maxTokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"maxToolIterations"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type ToolsConfig struct {
	BraveAPIKey         string `json:"braveApiKey,omitempty"`
	ExecTimeout         int    `json:"execTimeout"`
	RestrictToWorkspace bool   `json:"restrictToWorkspace"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type BusConfig struct {
	BufSize int    `json:"bufSize"`
	Policy  string `json:"policy,omitempty"` // "block" (default) or "drop-oldest"
}

type MemoryConfig struct {
	Enabled              bool            `json:"enabled"`
	Model                string          `json:"model,omitempty"`
	Provider             *ProviderConfig `json:"provider,omitempty"`
	TopKSkills           int             `json:"topKSkills,omitempty"`
	MaxMemoriesInContext int             `json:"maxMemoriesInContext,omitempty"`
	MaxMemoryChars       int             `json:"maxMemoryChars,omitempty"`
	HardCaseThreshold    int             `json:"hardCaseThreshold,omitempty"`
	AutoEvolve           bool            `json:"autoEvolve"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Workspace:         filepath.Join(home, ".sparkclaw", "workspace"),
			Model:             DefaultModel,
			MaxTokens:         DefaultMaxTokens,
			Temperature:       DefaultTemperature,
			MaxToolIterations: DefaultMaxToolIterations,
		},
		Provider: ProviderConfig{},
		Channels: ChannelsConfig{},
		Tools: ToolsConfig{
			ExecTimeout:         DefaultExecTimeout,
			RestrictToWorkspace: true,
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Bus: BusConfig{
			BufSize: DefaultBufSize,
			Policy:  DefaultBusPolicy,
		},
		Memory: MemoryConfig{
			Enabled:              true,
			TopKSkills:           DefaultTopKSkills,
			MaxMemoriesInContext: DefaultMaxMemories,
			MaxMemoryChars:       DefaultMaxMemoryChars,
			HardCaseThreshold:    DefaultHardCaseThreshold,
			AutoEvolve:           true,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".sparkclaw")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("SPARKCLAW_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_AUTH_TOKEN"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("SPARKCLAW_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("SPARKCLAW_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" && cfg.Tools.BraveAPIKey == "" {
		cfg.Tools.BraveAPIKey = key
	}
	if enabled := os.Getenv("SPARKCLAW_MEMORY_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Memory.Enabled = parsed
		}
	}
	if model := os.Getenv("SPARKCLAW_MEMORY_MODEL"); model != "" {
		cfg.Memory.Model = model
	}
	if key := os.Getenv("SPARKCLAW_MEMORY_API_KEY"); key != "" {
		if cfg.Memory.Provider == nil {
			cfg.Memory.Provider = &ProviderConfig{}
		}
		cfg.Memory.Provider.APIKey = key
	}
	if url := os.Getenv("SPARKCLAW_MEMORY_BASE_URL"); url != "" {
		if cfg.Memory.Provider == nil {
			cfg.Memory.Provider = &ProviderConfig{}
		}
		cfg.Memory.Provider.BaseURL = url
	}

	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.Bus.BufSize <= 0 {
		cfg.Bus.BufSize = DefaultBufSize
	}
	if cfg.Bus.Policy == "" {
		cfg.Bus.Policy = DefaultBusPolicy
	}
	if cfg.Memory.TopKSkills <= 0 {
		cfg.Memory.TopKSkills = DefaultTopKSkills
	}
	if cfg.Memory.MaxMemoriesInContext <= 0 {
		cfg.Memory.MaxMemoriesInContext = DefaultMaxMemories
	}
	if cfg.Memory.MaxMemoryChars <= 0 {
		cfg.Memory.MaxMemoryChars = DefaultMaxMemoryChars
	}
	if cfg.Memory.HardCaseThreshold <= 0 {
		cfg.Memory.HardCaseThreshold = DefaultHardCaseThreshold
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
