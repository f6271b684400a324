// Package config loads and validates the Kagami YAML configuration.
//
// Loading happens in two passes: the raw document is first checked against an
// embedded JSON Schema (types, required fields, enums), then cross-field
// rules that a schema cannot express are verified in Go, e.g. every fallback
// model referencing a declared provider.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// schema is compiled once at startup; the embedded document is trusted.
var schema = jsonschema.MustCompileString("config/schema.json", schemaJSON)

// Provider interface kinds.
const (
	InterfaceOpenAI = "openai"
	InterfaceGenAI  = "genai"
)

// Config is the root configuration document.
type Config struct {
	Matrix   Matrix   `yaml:"matrix"`
	LLM      LLM      `yaml:"llm"`
	Agent    Agent    `yaml:"agent"`
	Operator Operator `yaml:"operator"`
	Prompt   Prompt   `yaml:"prompt"`
	Database Database `yaml:"database"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
}

// Matrix holds homeserver credentials and the rooms the agent serves.
type Matrix struct {
	HomeserverURL string   `yaml:"homeserver_url"`
	UserID        string   `yaml:"user_id"`
	AccessToken   string   `yaml:"access_token"`
	Rooms         []string `yaml:"rooms"`
}

// Provider declares one upstream LLM endpoint and its key pool.
type Provider struct {
	Interface      string   `yaml:"interface"`
	BaseURL        string   `yaml:"base_url"`
	APIKeys        []string `yaml:"api_keys"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Model names one entry of the fallback chain. Order in the YAML list is the
// order models are tried.
type Model struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
}

// LLM configures providers and the ordered fallback chain.
type LLM struct {
	Providers map[string]Provider `yaml:"providers"`
	Models    []Model             `yaml:"models"`
}

// Energy configures the per-room reply budget.
type Energy struct {
	Max                     int `yaml:"max"`
	CostPerReply            int `yaml:"cost_per_reply"`
	RecoveryRate            int `yaml:"recovery_rate"`
	RecoveryIntervalSeconds int `yaml:"recovery_interval_seconds"`
}

// RecoveryInterval returns the configured interval as a duration.
func (e Energy) RecoveryInterval() time.Duration {
	return time.Duration(e.RecoveryIntervalSeconds) * time.Second
}

// Agent configures per-room conversational behavior.
type Agent struct {
	HistoryTurns int    `yaml:"history_turns"`
	ReplyPolicy  string `yaml:"reply_policy"`
	Energy       Energy `yaml:"energy"`
}

// Operator identifies the human the agent defers to. Optional.
type Operator struct {
	UserID   string `yaml:"user_id"`
	Nickname string `yaml:"nickname"`
}

// Prompt points at the system prompt template file.
type Prompt struct {
	Path string `yaml:"path"`
}

// Database locates the SQLite file.
type Database struct {
	Path string `yaml:"path"`
}

// HTTP configures the debugging API server. Disabled when Addr is empty.
type HTTP struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Log configures structured logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, schema-checks and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config and validates it. It is the
// canonical entry point for loading configurations.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := schema.Validate(jsonify(doc)); err != nil {
		return nil, fmt.Errorf("config: schema: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// jsonify round-trips a decoded YAML value through encoding/json so the
// schema validator sees the value shapes it expects.
func jsonify(doc any) any {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}

// Validate checks the cross-field rules the schema cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}

	for _, room := range cfg.Matrix.Rooms {
		if !strings.HasPrefix(room, "!") {
			return fmt.Errorf("matrix.rooms entry %q must start with '!'", room)
		}
	}
	if !strings.HasPrefix(cfg.Matrix.UserID, "@") {
		return fmt.Errorf("matrix.user_id %q must start with '@'", cfg.Matrix.UserID)
	}

	for name, p := range cfg.LLM.Providers {
		if p.Interface != InterfaceOpenAI && p.Interface != InterfaceGenAI {
			return fmt.Errorf("llm.providers.%s: unknown interface %q", name, p.Interface)
		}
		if len(p.APIKeys) == 0 {
			return fmt.Errorf("llm.providers.%s: api_keys must not be empty", name)
		}
		if p.Interface == InterfaceOpenAI && p.BaseURL == "" {
			return fmt.Errorf("llm.providers.%s: base_url is required for openai providers", name)
		}
	}

	if len(cfg.LLM.Models) == 0 {
		return fmt.Errorf("llm.models must declare at least one model")
	}
	for i, m := range cfg.LLM.Models {
		if _, ok := cfg.LLM.Providers[m.Provider]; !ok {
			return fmt.Errorf("llm.models[%d] (%q): unknown provider %q", i, m.Name, m.Provider)
		}
	}

	switch cfg.Agent.ReplyPolicy {
	case "", "active", "passive":
	default:
		return fmt.Errorf("agent.reply_policy must be \"active\" or \"passive\", got %q", cfg.Agent.ReplyPolicy)
	}

	return nil
}

// applyDefaults fills optional fields after validation.
func applyDefaults(cfg *Config) {
	if cfg.Prompt.Path == "" {
		cfg.Prompt.Path = "prompt.txt"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "kagami.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if len(cfg.HTTP.CORSOrigins) == 0 {
		cfg.HTTP.CORSOrigins = []string{"*"}
	}
}
