package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	// Keys is the API key pool; one key is picked per request.
	Keys *KeyPool
	// BaseURL overrides the API endpoint (useful for proxies and local
	// models). Defaults to https://api.openai.com/v1.
	BaseURL string
	// Timeout for each HTTP request. Defaults to 120s.
	Timeout time.Duration
}

// openAIProvider implements Provider using the OpenAI chat completions API.
type openAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI returns a Provider backed by the OpenAI (or compatible) API.
func NewOpenAI(cfg OpenAIConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- wire types (subset of the OpenAI API) ---

type oaiRequest struct {
	Model          string             `json:"model"`
	Messages       []oaiMessage       `json:"messages"`
	Tools          []oaiTool          `json:"tools,omitempty"`
	ToolChoice     string             `json:"tool_choice,omitempty"`
	ResponseFormat *oaiResponseFormat `json:"response_format,omitempty"`
}

type oaiResponseFormat struct {
	Type string `json:"type"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    interface{}   `json:"content"` // string or null
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function oaiFunctionCall `json:"function"`
}

type oaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

type oaiTool struct {
	Type     string         `json:"type"`
	Function oaiFunctionDef `json:"function"`
}

type oaiFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Chat sends a chat completion request.
func (p *openAIProvider) Chat(ctx context.Context, model string, req Request) (*Response, error) {
	body := oaiRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
		Tools:    convertOpenAITools(req.Tools),
	}
	switch req.OutputFormat {
	case OutputJSON:
		body.ResponseFormat = &oaiResponseFormat{Type: "json_object"}
	case OutputText:
		body.ResponseFormat = &oaiResponseFormat{Type: "text"}
	}
	if req.ToolChoice != "" && len(body.Tools) > 0 {
		body.ToolChoice = string(req.ToolChoice)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.Keys.Pick())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil {
		return nil, fmt.Errorf("openai error %s: %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response (status %d)", resp.StatusCode)
	}

	choice := oaiResp.Choices[0]
	out := &Response{}
	if s, ok := choice.Message.Content.(string); ok {
		out.Content = s
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decode tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, ErrEmptyContent
	}
	return out, nil
}

func convertOpenAIMessages(messages []Message) []oaiMessage {
	out := make([]oaiMessage, 0, len(messages))
	for _, m := range messages {
		om := oaiMessage{Role: string(m.Role)}
		switch {
		case m.Role == RoleTool:
			// Tool results travel as JSON text tied to the originating call.
			om.ToolCallID = m.ToolCallID
			if b, err := json.Marshal(m.Response); err == nil {
				om.Content = string(b)
			}
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			if m.Content != "" {
				om.Content = m.Content
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				om.ToolCalls = append(om.ToolCalls, oaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: oaiFunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
		default:
			om.Content = m.Content
		}
		out = append(out, om)
	}
	return out
}

func convertOpenAITools(tools []Tool) []oaiTool {
	out := make([]oaiTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, oaiTool{
			Type: "function",
			Function: oaiFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertOpenAIParam(t.Parameters),
			},
		})
	}
	return out
}

// convertOpenAIParam maps the neutral schema into OpenAI's JSON Schema
// dialect, recursing through object properties and array items.
func convertOpenAIParam(p ToolParam) map[string]any {
	result := map[string]any{"type": p.Type}
	if p.Description != "" {
		result["description"] = p.Description
	}
	switch p.Type {
	case "object":
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = convertOpenAIParam(child)
		}
		result["properties"] = props
		if len(p.Required) > 0 {
			result["required"] = p.Required
		}
	case "array":
		if p.Items != nil {
			result["items"] = convertOpenAIParam(*p.Items)
		}
	default:
		if len(p.Enum) > 0 {
			result["enum"] = p.Enum
		}
	}
	return result
}
