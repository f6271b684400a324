package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
matrix:
  homeserver_url: https://matrix.example.com
  user_id: "@kagami:example.com"
  access_token: syt_secret
  rooms:
    - "!general:example.com"
llm:
  providers:
    openai_main:
      interface: openai
      base_url: https://api.openai.com/v1
      api_keys: ["sk-one", "sk-two"]
      timeout_seconds: 120
    gemini:
      interface: genai
      api_keys: ["g-key"]
  models:
    - name: gpt-4o
      provider: openai_main
    - name: gemini-2.5-flash
      provider: gemini
agent:
  history_turns: 40
  reply_policy: active
  energy:
    max: 100
    cost_per_reply: 1
    recovery_rate: 5
    recovery_interval_seconds: 60
operator:
  user_id: "@op:example.com"
  nickname: Operator
http:
  addr: ":8080"
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Matrix.UserID != "@kagami:example.com" {
		t.Errorf("UserID = %q", cfg.Matrix.UserID)
	}
	if len(cfg.LLM.Models) != 2 || cfg.LLM.Models[0].Name != "gpt-4o" {
		t.Errorf("models = %+v, want ordered chain", cfg.LLM.Models)
	}
	if got := cfg.Agent.Energy.RecoveryInterval(); got != 60*time.Second {
		t.Errorf("RecoveryInterval = %v, want 60s", got)
	}
	if keys := cfg.LLM.Providers["openai_main"].APIKeys; len(keys) != 2 {
		t.Errorf("api_keys = %v, want 2 keys", keys)
	}
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Prompt.Path != "prompt.txt" {
		t.Errorf("Prompt.Path = %q, want default", cfg.Prompt.Path)
	}
	if cfg.Database.Path != "kagami.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text defaults", cfg.Log)
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.HTTP.CORSOrigins)
	}
}

func TestParse_SchemaRejections(t *testing.T) {
	cases := map[string]string{
		"not yaml at all":     "{{{{",
		"missing matrix":      "llm:\n  providers: {}\n  models: []\n",
		"empty rooms":         strings.Replace(validYAML, "    - \"!general:example.com\"\n", "", 1),
		"bad log level":       validYAML + "log:\n  level: loud\n",
		"bad interface":       strings.Replace(validYAML, "interface: genai", "interface: anthropic", 1),
		"no models":           strings.Replace(validYAML, "    - name: gpt-4o\n      provider: openai_main\n    - name: gemini-2.5-flash\n      provider: gemini\n", "    []\n", 1),
		"negative energy max": strings.Replace(validYAML, "max: 100", "max: -1", 1),
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestValidate_CrossFieldRules(t *testing.T) {
	t.Run("model references unknown provider", func(t *testing.T) {
		doc := strings.Replace(validYAML, "provider: gemini", "provider: nonexistent", 1)
		if _, err := Parse([]byte(doc)); err == nil || !strings.Contains(err.Error(), "unknown provider") {
			t.Errorf("got %v, want unknown provider error", err)
		}
	})

	t.Run("openai provider needs base_url", func(t *testing.T) {
		doc := strings.Replace(validYAML, "      base_url: https://api.openai.com/v1\n", "", 1)
		if _, err := Parse([]byte(doc)); err == nil || !strings.Contains(err.Error(), "base_url") {
			t.Errorf("got %v, want base_url error", err)
		}
	})

	t.Run("room without bang prefix", func(t *testing.T) {
		doc := strings.Replace(validYAML, `"!general:example.com"`, `"general:example.com"`, 1)
		if _, err := Parse([]byte(doc)); err == nil {
			t.Error("expected error for malformed room ID")
		}
	})

	t.Run("genai provider needs no base_url", func(t *testing.T) {
		if _, err := Parse([]byte(validYAML)); err != nil {
			t.Errorf("genai provider without base_url should be valid: %v", err)
		}
	})
}
