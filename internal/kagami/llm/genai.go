package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GenAIConfig configures the Google Gemini adapter.
type GenAIConfig struct {
	// Keys is the API key pool; one key is picked per request.
	Keys *KeyPool
}

// genAIProvider implements Provider using the Gemini API.
//
// Gemini differs from the OpenAI wire shape in two ways the adapter has to
// absorb: system messages do not exist as a transcript role (they are folded
// into the request's systemInstruction field), and the assistant role is
// called "model".
type genAIProvider struct {
	cfg GenAIConfig
}

// NewGenAI returns a Provider backed by the Gemini API.
func NewGenAI(cfg GenAIConfig) Provider {
	return &genAIProvider{cfg: cfg}
}

var genaiToolModes = map[ToolChoice]genai.FunctionCallingConfigMode{
	ToolChoiceAuto:     genai.FunctionCallingConfigModeAuto,
	ToolChoiceRequired: genai.FunctionCallingConfigModeAny,
	ToolChoiceNone:     genai.FunctionCallingConfigModeNone,
}

// Chat sends a single generateContent request.
func (p *genAIProvider) Chat(ctx context.Context, model string, req Request) (*Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.cfg.Keys.Pick(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	contents, systemInstruction := convertGenAIMessages(req.Messages)

	config := &genai.GenerateContentConfig{}
	switch req.OutputFormat {
	case OutputJSON:
		config.ResponseMIMEType = "application/json"
	case OutputText:
		config.ResponseMIMEType = "text/plain"
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = convertGenAITools(req.Tools)
		if mode, ok := genaiToolModes[req.ToolChoice]; ok {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
			}
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("genai generate content: %w", err)
	}

	out := &Response{}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					// Gemini omits call IDs; synthesize one so tool results
					// can still be correlated in neutral form.
					id = uuid.New().String()
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
		break // only the first candidate is used
	}
	out.Content = text.String()

	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, ErrEmptyContent
	}
	return out, nil
}

// convertGenAIMessages maps the neutral transcript into Gemini contents.
// System entries are collected into the returned instruction string instead
// of appearing in the transcript.
func convertGenAIMessages(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system strings.Builder

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Arguments,
					},
				})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     m.Name,
						Response: m.Response,
					},
				}},
			})
		}
	}
	return contents, system.String()
}

func convertGenAITools(tools []Tool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertGenAIParam(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

var genaiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// convertGenAIParam maps the neutral schema into Gemini's Schema dialect.
func convertGenAIParam(p ToolParam) *genai.Schema {
	typ, ok := genaiTypes[p.Type]
	if !ok {
		typ = genai.TypeString
	}
	schema := &genai.Schema{
		Type:        typ,
		Description: p.Description,
	}
	switch p.Type {
	case "object":
		schema.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, child := range p.Properties {
			schema.Properties[name] = convertGenAIParam(child)
		}
		if len(p.Required) > 0 {
			schema.Required = p.Required
		}
	case "array":
		if p.Items != nil {
			schema.Items = convertGenAIParam(*p.Items)
		}
	default:
		if len(p.Enum) > 0 {
			schema.Enum = p.Enum
		}
	}
	return schema
}
