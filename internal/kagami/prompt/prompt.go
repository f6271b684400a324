// Package prompt loads and renders the system prompt template.
//
// The template lives in a plain text file using Go text/template syntax and
// can be reloaded at runtime without restarting the gateway, so persona edits
// take effect on the next generation round.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"text/template"
)

// Context holds the values interpolated into the system prompt.
type Context struct {
	// BotID is the agent's own user ID, so the prompt can teach the model
	// who it is in the transcript.
	BotID string

	// OperatorID and OperatorNickname identify the configured operator.
	// Both are empty when no operator is configured.
	OperatorID       string
	OperatorNickname string

	// CurrentTime is the formatted wall-clock time for this render.
	CurrentTime string
}

// Template is a hot-reloadable system prompt template. Render and Reload are
// safe to call concurrently from any number of room agents.
type Template struct {
	mu   sync.RWMutex
	path string
	tmpl *template.Template
}

// Load parses the template file at path.
//
// Templates are trusted operator content loaded from disk; user-submitted
// content must never reach this function.
func Load(path string) (*Template, error) {
	t := &Template{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads and re-parses the template file. On failure the previously
// loaded template stays active.
func (t *Template) Reload() error {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("prompt template %q: %w", t.path, err)
	}

	// Option "missingkey=error" makes renders fail loudly when the template
	// references a field that does not exist, instead of silently inserting
	// "<no value>".
	parsed, err := template.New(t.path).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return fmt.Errorf("prompt template %q: parse: %w", t.path, err)
	}

	t.mu.Lock()
	t.tmpl = parsed
	t.mu.Unlock()
	return nil
}

// Render produces the system prompt for one generation attempt. A render
// failure is fatal only to that attempt; the caller skips the round.
func (t *Template) Render(ctx Context) (string, error) {
	t.mu.RLock()
	tmpl := t.tmpl
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("prompt template %q: render: %w", t.path, err)
	}
	return buf.String(), nil
}

// Path returns the template file path.
func (t *Template) Path() string { return t.path }
