// Package config loads and manages turnkit configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, TURNKIT_*)
// 2. Config file path specified via --config flag
// 3. ~/.config/turnkit/config.yaml
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// configDir returns ~/.config/turnkit.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "turnkit"), nil
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/turnkit/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := configDir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SignalConfig declares a custom intent signal. Custom signals are matched
// ahead of the built-in ones.
type SignalConfig struct {
	Capability string   `yaml:"capability"`
	Confidence float64  `yaml:"confidence"`
	Pattern    string   `yaml:"pattern"`
	Keywords   []string `yaml:"keywords"`
}

// RouterConfig holds intent router settings.
type RouterConfig struct {
	// Threshold is the Tier-1 confidence below which the classifier is
	// consulted. Must be in (0,1]; defaults to 0.75.
	Threshold float64 `yaml:"threshold"`

	// CacheTTL is how long a classifier answer is reused, e.g. "5m".
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`

	// ClassifierModel overrides the chat model for Tier-2 calls.
	ClassifierModel     string  `yaml:"classifier_model"`
	ClassifierMaxTokens int     `yaml:"classifier_max_tokens"`
	Temperature         float64 `yaml:"temperature"`

	// ClassifierRate caps classifier calls per second. 0 = unlimited.
	ClassifierRate  float64 `yaml:"classifier_rate"`
	ClassifierBurst int     `yaml:"classifier_burst"`

	// Agents overlays the default capability -> agent table.
	Agents map[string]string `yaml:"agents"`

	Signals []SignalConfig `yaml:"signals"`
}

// DispatcherConfig holds tool dispatcher settings.
type DispatcherConfig struct {
	// Timeout bounds every tool call, e.g. "30s". 0 = dispatcher default.
	Timeout time.Duration `yaml:"timeout"`

	// AllowedTools is the allow-list used by the CLI. "*" permits every tool.
	AllowedTools []string `yaml:"allowed_tools"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	// Level: "debug" | "info" (default) | "warn" | "error"
	Level string `yaml:"level"`
	// Format: "text" (default) | "json"
	Format string `yaml:"format"`
}

// HistoryConfig controls the routing decision log.
type HistoryConfig struct {
	// Record stores every routed turn. `turnkit route --record` forces it.
	Record bool `yaml:"record"`
	// Path of the SQLite database. Empty = ~/.local/share/turnkit/history.db.
	Path string `yaml:"path"`
}

// Config is the complete configuration structure for turnkit.
type Config struct {
	// Provider is the active provider name (e.g. "deepseek", "anthropic", "openai")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	Router     RouterConfig     `yaml:"router"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Logging    LoggingConfig    `yaml:"logging"`
	History    HistoryConfig    `yaml:"history"`

	// MCPConfig is an extra MCP servers JSON file loaded after the global
	// and project ones.
	MCPConfig string `yaml:"mcp_config"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Router: RouterConfig{
			Threshold:           0.75,
			CacheTTL:            5 * time.Minute,
			CacheMaxEntries:     1024,
			ClassifierMaxTokens: 128,
		},
		Dispatcher: DispatcherConfig{
			Timeout:      30 * time.Second,
			AllowedTools: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.config/turnkit/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	dir, err := configDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file and merges environment variable overrides.
// A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) && configPath != "" {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// ResolveModel picks the chat model: global override, then the provider's
// own setting, then the provider default.
func (c *Config) ResolveModel() string {
	if c.Model != "" {
		return c.Model
	}
	if pc := c.GetProviderConfig(c.Provider); pc.Model != "" {
		return pc.Model
	}
	return KnownProviderModels[c.Provider]
}

// SaveProviderToFile persists a single provider's config and the active provider
// name into ~/.config/turnkit/config.yaml, preserving all other user settings.
func SaveProviderToFile(providerName string, pc ProviderConfig) error {
	cfgPath := DefaultPath()
	if cfgPath == "" {
		return errors.New("cannot determine home directory")
	}

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // start fresh if corrupt
	}

	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}

	entry := map[string]any{
		"api_key": pc.APIKey,
	}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	if pc.Model != "" {
		entry["model"] = pc.Model
	}
	providers[providerName] = entry
	raw["providers"] = providers

	// Set active provider and clear stale global model override.
	raw["provider"] = providerName
	delete(raw, "model")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	providerEntry := func(name string) *ProviderConfig {
		if cfg.Providers[name] == nil {
			cfg.Providers[name] = &ProviderConfig{}
		}
		return cfg.Providers[name]
	}

	// Generic overrides apply to the provider named in the file.
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		providerEntry("anthropic").APIKey = v
	}

	if v := os.Getenv("TURNKIT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("TURNKIT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("TURNKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
