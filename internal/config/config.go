package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const (
	AI_SYSTEM_PROMPT          = "ai.system_prompt"
	AI_DEFAULT_TIER           = "ai.default_tier"
	AI_PROVIDERS              = "ai.providers"
	AI_TIERS                  = "ai.tiers"
	HISTORY_MAX_TURNS         = "history.max_turns"
	HISTORY_MAX_CONVERSATIONS = "history.max_conversations"
	HISTORY_PERSIST           = "history.persist"
	DISPATCH_DEADLINE         = "dispatch.deadline"
	DISPATCH_BACKOFF_INITIAL  = "dispatch.backoff_initial"
	DISPATCH_BACKOFF_MAX      = "dispatch.backoff_max"
	DISPATCH_DEFAULT_TIMEOUT  = "dispatch.default_timeout"
	HTTP_PROXY                = "http.proxy"
	DATABASE_DSN              = "database.dsn"
	LOGGING_LEVEL             = "logging.level"
	LOGGING_WRITE_IN_FILE     = "logging.write_in_file"
	LOGGING_FILE_PATH         = "logging.file_path"
)

var defaultSQLiteParams = map[string]string{
	"_journal":      "WAL",
	"_busy_timeout": "10000",
	"_synchronous":  "NORMAL",
	"_cache":        "shared",
	"_auto_vacuum":  "INCREMENTAL",
}

type Config struct {
	k *koanf.Koanf
}

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to config file")
}

func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		AI_SYSTEM_PROMPT:          "",
		AI_DEFAULT_TIER:           "free",
		HISTORY_MAX_TURNS:         40,
		HISTORY_MAX_CONVERSATIONS: 1024,
		HISTORY_PERSIST:           true,
		DISPATCH_DEADLINE:         2 * time.Minute,
		DISPATCH_BACKOFF_INITIAL:  0 * time.Second,
		DISPATCH_BACKOFF_MAX:      10 * time.Second,
		DISPATCH_DEFAULT_TIMEOUT:  60 * time.Second,
		DATABASE_DSN:              "bot.db?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache=shared",
		LOGGING_LEVEL:             "info",
		LOGGING_WRITE_IN_FILE:     false,
		HTTP_PROXY:                "",
	}
	k.Load(confmap.Provider(defaults, "."), nil)

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config %s: %v", path, err)
			}
			break
		}
	}

	k.Load(env.Provider("LLMGRAM_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMGRAM_")),
			"_", ".",
		)
	}), nil)

	cfg := &Config{k: k}
	if err := cfg.AI().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewFromMap builds a config straight from a flat key map. Used by tests.
func NewFromMap(values map[string]any) *Config {
	k := koanf.New(".")
	k.Load(confmap.Provider(values, "."), nil)
	return &Config{k: k}
}

func (c *Config) AI() aiConfig {
	var cfg aiConfig
	if err := c.k.Unmarshal("ai", &cfg); err != nil {
		log.Fatalf("aiConfig unmarshal error: %v", err)
		return aiConfig{}
	}
	return cfg
}

func (c *Config) History() HistoryConfig {
	return HistoryConfig{
		MaxTurns:         c.k.Int(HISTORY_MAX_TURNS),
		MaxConversations: c.k.Int(HISTORY_MAX_CONVERSATIONS),
		Persist:          c.k.Bool(HISTORY_PERSIST),
	}
}

func (c *Config) Dispatch() DispatchConfig {
	return DispatchConfig{
		Deadline:       c.k.Duration(DISPATCH_DEADLINE),
		BackoffInitial: c.k.Duration(DISPATCH_BACKOFF_INITIAL),
		BackoffMax:     c.k.Duration(DISPATCH_BACKOFF_MAX),
		DefaultTimeout: c.k.Duration(DISPATCH_DEFAULT_TIMEOUT),
	}
}

func (c *Config) Log() LoggingConfig {
	return LoggingConfig{
		LogLevel:    c.k.String(LOGGING_LEVEL),
		WriteInFile: c.k.Bool(LOGGING_WRITE_IN_FILE),
		FilePath:    c.k.String(LOGGING_FILE_PATH),
	}
}

func (c *Config) HTTP() HTTPConfig {
	var cfg HTTPConfig
	if err := c.k.Unmarshal("http", &cfg); err != nil {
		log.Fatalf("httpConfig unmarshal error: %v", err)
		return HTTPConfig{}
	}
	return cfg
}

func (c *Config) GetDatabaseDSN() string {
	dsn := c.k.String(DATABASE_DSN)
	parts := strings.Split(dsn, "?")
	path := parts[0]

	params := make(map[string]string)
	if len(parts) > 1 {
		for param := range strings.SplitSeq(parts[1], "&") {
			if kv := strings.Split(param, "="); len(kv) == 2 {
				params[kv[0]] = kv[1]
			}
		}
	}

	for k, v := range defaultSQLiteParams {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}

	var queryParams []string
	for k, v := range params {
		queryParams = append(queryParams, k+"="+v)
	}
	sort.Strings(queryParams)

	if len(queryParams) > 0 {
		return path + "?" + strings.Join(queryParams, "&")
	}
	return path
}

func getConfigPaths() []string {
	if configPath != "" {
		return []string{configPath}
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, _ := os.UserHomeDir()
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		"llmgram.toml",
		"config.toml",
		filepath.Join(xdgConfig, "llmgram", "config.toml"),
		"/etc/llmgram/config.toml",
	}
}
