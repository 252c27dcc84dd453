package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

type LoggingConfig struct {
	LogLevel    string `koanf:"level"`
	WriteInFile bool   `koanf:"write_in_file"`
	FilePath    string `koanf:"file_path"`
}

func (c LoggingConfig) Level() string {
	return strings.ToLower(c.LogLevel)
}

func (c LoggingConfig) IsDebug() bool {
	return c.Level() == "debug" || c.Level() == "trace"
}

type HTTPConfig struct {
	Proxy   string   `koanf:"proxy"`
	NoProxy []string `koanf:"no_proxy"`
}

func (c HTTPConfig) GetProxy() string {
	if c.Proxy != "" {
		return c.Proxy
	}
	for _, env := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if proxyURL := os.Getenv(env); proxyURL != "" {
			return proxyURL
		}
	}
	return ""
}

func (c HTTPConfig) GetNoProxy() []string {
	return c.NoProxy
}

// ProviderConfig describes one upstream LLM integration. It is immutable
// after load; runtime state (temporary disable, rate windows) lives in the
// ai package.
type ProviderConfig struct {
	ID               string        `koanf:"id"`
	DisplayName      string        `koanf:"display_name"`
	Type             string        `koanf:"type"`
	BaseURL          string        `koanf:"base_url"`
	ChatURL          string        `koanf:"chat_url"`
	APIKey           string        `koanf:"api_key"`
	EnvAPIKey        string        `koanf:"env_api_key"`
	Model            string        `koanf:"model"`
	Capabilities     []string      `koanf:"capabilities"`
	Weight           int           `koanf:"weight"`
	RequestsPerMin   int           `koanf:"requests_per_minute"`
	MaxContextTokens int           `koanf:"max_context_tokens"`
	Timeout          time.Duration `koanf:"timeout"`
	MaxRetries       int           `koanf:"max_retries"`
	Enabled          bool          `koanf:"enabled"`
}

func (c *ProviderConfig) GetAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(c.EnvAPIKey)
}

func (c *ProviderConfig) HasCapability(tag string) bool {
	return slices.Contains(c.Capabilities, tag)
}

type TierConfig struct {
	Name                  string   `koanf:"name"`
	Providers             []string `koanf:"providers"`
	AllowFilteredFailover bool     `koanf:"allow_filtered_failover"`
}

type aiConfig struct {
	SystemPrompt string           `koanf:"system_prompt"`
	DefaultTier  string           `koanf:"default_tier"`
	Providers    []ProviderConfig `koanf:"providers"`
	Tiers        []TierConfig     `koanf:"tiers"`
}

func (c aiConfig) GetProvider(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

func (c aiConfig) GetTier(name string) *TierConfig {
	for i := range c.Tiers {
		if c.Tiers[i].Name == name {
			return &c.Tiers[i]
		}
	}
	return nil
}

func (c aiConfig) Validate() error {
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		seen[p.ID] = true
	}
	for _, tier := range c.Tiers {
		for _, id := range tier.Providers {
			if !seen[id] {
				return fmt.Errorf("tier %s references unknown provider: %s", tier.Name, id)
			}
		}
	}
	return nil
}

type HistoryConfig struct {
	MaxTurns         int  `koanf:"max_turns"`
	MaxConversations int  `koanf:"max_conversations"`
	Persist          bool `koanf:"persist"`
}

type DispatchConfig struct {
	Deadline       time.Duration `koanf:"deadline"`
	BackoffInitial time.Duration `koanf:"backoff_initial"`
	BackoffMax     time.Duration `koanf:"backoff_max"`
	DefaultTimeout time.Duration `koanf:"default_timeout"`
}
