// Package llm defines the provider-neutral chat types used by the room agent
// and the adapters that translate them to concrete vendor APIs.
//
// The agent builds a Request from the room transcript and hands it to the
// Router, which tries the configured models in declaration order until one
// succeeds. Adapters own everything vendor-specific: wire formats, role
// names, tool schema dialects and API key selection.
package llm

import (
	"context"
	"errors"
	"time"
)

// Role is the neutral role of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// OutputFormat selects how the model is asked to shape its answer.
type OutputFormat string

const (
	OutputJSON OutputFormat = "json"
	OutputText OutputFormat = "text"
)

// ToolChoice controls whether the model must, may, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Message is one entry of the provider-neutral transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	// ToolCalls are present on assistant turns that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and Name identify the call a RoleTool turn answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	// Response is the structured tool result for RoleTool turns.
	Response map[string]any `json:"response,omitempty"`
}

// ToolCall is a tool invocation surfaced in neutral form, regardless of how
// the vendor represented it on the wire.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Parameters  ToolParam `json:"parameters"`
}

// ToolParam is a neutral, recursive parameter schema. Adapters map it into
// the vendor's schema dialect.
type ToolParam struct {
	// Type is one of: string, number, integer, boolean, array, object.
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Properties  map[string]ToolParam `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Items       *ToolParam           `json:"items,omitempty"`
}

// Request is the input to one generation attempt.
type Request struct {
	Messages     []Message    `json:"messages"`
	Tools        []Tool       `json:"tools,omitempty"`
	OutputFormat OutputFormat `json:"output_format"`
	ToolChoice   ToolChoice   `json:"tool_choice,omitempty"`
}

// Response is a successful generation result.
type Response struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ErrEmptyContent is returned by adapters when the vendor accepted the call
// but produced neither text nor tool calls. It is distinct from a transport
// failure so callers can tell "the model had nothing to say" apart from
// "the call never happened"; the router treats both as grounds for fallback.
var ErrEmptyContent = errors.New("llm: provider returned empty content")

// ErrAllModelsFailed is returned by the router when every configured model
// failed; the per-model errors are joined onto it.
var ErrAllModelsFailed = errors.New("llm: all configured models failed")

// Provider is implemented once per vendor wire format.
type Provider interface {
	// Chat performs a single one-turn completion against the given model.
	Chat(ctx context.Context, model string, req Request) (*Response, error)
}

// Call log status values.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// CallRecord is the write-only fact logged once per provider attempt.
type CallRecord struct {
	Timestamp time.Time
	Status    string
	Input     string
	Output    string
}

// CallLogger persists CallRecords. The production implementation is
// *store.Store; the router never reads records back.
type CallLogger interface {
	InsertCall(ctx context.Context, rec CallRecord) error
}
