package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appName = "toolchat"

// Provider names accepted by the provider key and --provider flag.
var ProviderNames = []string{"anthropic", "openai", "gemini", "ollama", "lmstudio", "openai-compat", "debug"}

type Config struct {
	Provider       string `mapstructure:"provider" yaml:"provider"`
	Thinking       bool   `mapstructure:"thinking" yaml:"thinking"`
	ThinkingBudget int    `mapstructure:"thinking_budget" yaml:"thinking_budget,omitempty"`
	SystemPrompt   string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`

	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Sessions SessionsConfig `mapstructure:"sessions" yaml:"sessions"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Theme    ThemeConfig    `mapstructure:"theme" yaml:"theme,omitempty"`

	Anthropic    AnthropicConfig    `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI       OpenAIConfig       `mapstructure:"openai" yaml:"openai"`
	Gemini       GeminiConfig       `mapstructure:"gemini" yaml:"gemini"`
	Ollama       OllamaConfig       `mapstructure:"ollama" yaml:"ollama"`
	LMStudio     LMStudioConfig     `mapstructure:"lmstudio" yaml:"lmstudio"`
	OpenAICompat OpenAICompatConfig `mapstructure:"openai-compat" yaml:"openai-compat"`
	Debug        DebugConfig        `mapstructure:"debug" yaml:"debug,omitempty"`
}

// ToolsConfig controls the local tools offered to the model.
type ToolsConfig struct {
	Enabled      []string      `mapstructure:"enabled" yaml:"enabled"`             // empty = all built-in tools
	ShellAllow   []string      `mapstructure:"shell_allow" yaml:"shell_allow"`     // glob patterns; empty = shell disabled
	ShellTimeout time.Duration `mapstructure:"shell_timeout" yaml:"shell_timeout"` // per command
	MaxOutput    int           `mapstructure:"max_output" yaml:"max_output"`       // bytes returned to the model
	MCPConfig    string        `mapstructure:"mcp_config" yaml:"mcp_config,omitempty"`
}

type SessionsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"` // default: $XDG_DATA_HOME/toolchat/sessions.db
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // console or json
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// ThemeConfig allows customization of UI colors.
// Colors can be ANSI color numbers (0-255) or hex codes (#RRGGBB).
type ThemeConfig struct {
	Primary string `mapstructure:"primary" yaml:"primary,omitempty"`
	Success string `mapstructure:"success" yaml:"success,omitempty"`
	Error   string `mapstructure:"error" yaml:"error,omitempty"`
	Muted   string `mapstructure:"muted" yaml:"muted,omitempty"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// OllamaConfig configures the Ollama provider (OpenAI-compatible)
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"` // Ollama ignores it
}

// LMStudioConfig configures the LM Studio provider (OpenAI-compatible)
type LMStudioConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// OpenAICompatConfig configures a generic OpenAI-compatible server
type OpenAICompatConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"` // required, no default
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// DebugConfig selects the offline debug backend's streaming preset.
type DebugConfig struct {
	Model string `mapstructure:"model" yaml:"model,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("thinking", false)
	v.SetDefault("thinking_budget", 10000)
	v.SetDefault("tools.enabled", []string{})
	v.SetDefault("tools.shell_allow", []string{})
	v.SetDefault("tools.shell_timeout", 2*time.Minute)
	v.SetDefault("tools.max_output", 64*1024)
	v.SetDefault("sessions.enabled", true)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("lmstudio.base_url", "http://localhost:1234/v1")
}

// Load reads the config file from the XDG config directory. A missing file
// is not an error; defaults and TOOLCHAT_* environment variables apply.
func Load() (*Config, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	return load(v)
}

// LoadFile reads the config from an explicit path, which must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("TOOLCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.resolveCredentials()
	return &cfg, nil
}

// resolveCredentials expands $VAR references and falls back to the
// providers' conventional environment variables.
func (c *Config) resolveCredentials() {
	c.Anthropic.APIKey = firstNonEmpty(expandEnv(c.Anthropic.APIKey), os.Getenv("ANTHROPIC_API_KEY"))
	c.OpenAI.APIKey = firstNonEmpty(expandEnv(c.OpenAI.APIKey), os.Getenv("OPENAI_API_KEY"))
	c.Gemini.APIKey = firstNonEmpty(expandEnv(c.Gemini.APIKey), os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
	c.Ollama.APIKey = firstNonEmpty(expandEnv(c.Ollama.APIKey), os.Getenv("OLLAMA_API_KEY"))
	c.LMStudio.APIKey = firstNonEmpty(expandEnv(c.LMStudio.APIKey), os.Getenv("LMSTUDIO_API_KEY"))
	c.OpenAICompat.APIKey = expandEnv(c.OpenAICompat.APIKey)
	c.Ollama.BaseURL = expandEnv(c.Ollama.BaseURL)
	c.LMStudio.BaseURL = expandEnv(c.LMStudio.BaseURL)
	c.OpenAICompat.BaseURL = expandEnv(c.OpenAICompat.BaseURL)
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model == "" {
		return
	}
	switch c.Provider {
	case "anthropic":
		c.Anthropic.Model = model
	case "openai":
		c.OpenAI.Model = model
	case "gemini":
		c.Gemini.Model = model
	case "ollama":
		c.Ollama.Model = model
	case "lmstudio":
		c.LMStudio.Model = model
	case "openai-compat":
		c.OpenAICompat.Model = model
	case "debug":
		c.Debug.Model = model
	}
}

// ActiveModel returns the model configured for the active provider.
func (c *Config) ActiveModel() string {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.Model
	case "openai":
		return c.OpenAI.Model
	case "gemini":
		return c.Gemini.Model
	case "ollama":
		return c.Ollama.Model
	case "lmstudio":
		return c.LMStudio.Model
	case "openai-compat":
		return c.OpenAICompat.Model
	case "debug":
		return c.Debug.Model
	}
	return ""
}

// ParseProviderModel splits "provider:model" or "provider".
func ParseProviderModel(s string) (provider, model string, err error) {
	provider, model, _ = strings.Cut(s, ":")
	provider = strings.TrimSpace(provider)
	model = strings.TrimSpace(model)
	if provider == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	for _, name := range ProviderNames {
		if provider == name {
			return provider, model, nil
		}
	}
	return "", "", fmt.Errorf("unknown provider: %s", provider)
}

// Redacted returns a copy with API keys masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	out.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	out.Gemini.APIKey = mask(c.Gemini.APIKey)
	out.Ollama.APIKey = mask(c.Ollama.APIKey)
	out.LMStudio.APIKey = mask(c.LMStudio.APIKey)
	out.OpenAICompat.APIKey = mask(c.OpenAICompat.APIKey)
	return &out
}

// YAML renders the config as YAML.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for toolchat.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for toolchat.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// SessionsPath returns the session database path.
func (c *Config) SessionsPath() string {
	if c.Sessions.Path != "" {
		return c.Sessions.Path
	}
	return filepath.Join(GetDataDir(), "sessions.db")
}

// DebugLogDir returns where JSONL debug logs are written.
func DebugLogDir() string {
	return filepath.Join(GetDataDir(), "debug")
}

// MCPConfigPath returns the MCP server config path.
func (c *Config) MCPConfigPath() (string, error) {
	if c.Tools.MCPConfig != "" {
		return c.Tools.MCPConfig, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mcp.json"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// WriteStarter writes a commented starter config to path. It refuses to
// overwrite an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content := `provider: anthropic
thinking: false
# system_prompt: |
#   Be concise. I'm an experienced developer.

tools:
  # enabled: [read_file, write_file, glob, shell]
  # Shell commands must match one of these patterns to run.
  shell_allow: ["git status*", "git diff*", "ls*", "go test*"]
  shell_timeout: 2m

sessions:
  enabled: true

log:
  level: warn
  format: console

anthropic:
  model: claude-sonnet-4-5
  # api_key: $ANTHROPIC_API_KEY

openai:
  model: gpt-4.1

gemini:
  model: gemini-2.5-flash

ollama:
  base_url: http://localhost:11434/v1
  # model: qwen3

lmstudio:
  base_url: http://localhost:1234/v1
`
	return os.WriteFile(path, []byte(content), 0600)
}
