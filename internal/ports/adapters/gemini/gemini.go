// Package gemini adapts Google's Gemini API for function calling and embeddings.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/forPelevin/nledit/internal/ports"
)

const (
	DefaultModel      = "gemini-2.5-flash"
	DefaultEmbedModel = "gemini-embedding-001"
)

type Adapter struct {
	client     *genai.Client
	model      string
	embedModel string
	logger     *zap.Logger
}

func New(ctx context.Context, apiKey, model, embedModel string, logger *zap.Logger) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Adapter{client: client, model: model, embedModel: embedModel, logger: logger.Named("gemini")}, nil
}

// Call forces a call of req.Function (mode ANY restricted to that name) and
// returns its arguments as JSON.
func (a *Adapter) Call(ctx context.Context, req ports.FunctionCall) (json.RawMessage, error) {
	params, err := toSchema(req.Function.Parameters)
	if err != nil {
		return nil, fmt.Errorf("convert %s schema: %w", req.Function.Name, err)
	}
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        req.Function.Name,
				Description: req.Function.Description,
				Parameters:  params,
			}},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.Function.Name},
			},
		},
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}
	for _, fc := range resp.FunctionCalls() {
		if fc.Name != req.Function.Name {
			continue
		}
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("marshal function args: %w", err)
		}
		return b, nil
	}
	a.logger.Debug("no function call in response", zap.String("model", a.model), zap.Int("candidates", len(resp.Candidates)))
	return nil, ports.ErrNoFunctionCall
}

func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := a.client.Models.EmbedContent(ctx,
		a.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// toSchema converts a JSON-schema map (the subset used for function
// parameters) into a genai.Schema.
func toSchema(m map[string]any) (*genai.Schema, error) {
	if m == nil {
		return nil, nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		switch strings.ToLower(t) {
		case "object":
			s.Type = genai.TypeObject
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		case "array":
			s.Type = genai.TypeArray
		default:
			return nil, fmt.Errorf("unsupported schema type %q", t)
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	enum, err := stringList(m["enum"])
	if err != nil {
		return nil, fmt.Errorf("enum: %w", err)
	}
	s.Enum = enum
	req, err := stringList(m["required"])
	if err != nil {
		return nil, fmt.Errorf("required: %w", err)
	}
	s.Required = req
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			pm, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %s is %T", name, v)
			}
			ps, err := toSchema(pm)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			s.Properties[name] = ps
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		is, err := toSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = is
	}
	return s, nil
}

func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("non-string value %v", it)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
}
