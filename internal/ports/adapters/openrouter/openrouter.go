// Package openrouter calls chat models through OpenRouter's OpenAI-compatible
// API and forces a single function call.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/ports"
)

const (
	DefaultBaseURL = "https://openrouter.ai"
	DefaultModel   = "openai/gpt-4o"

	requestTimeout = 90 * time.Second
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option { return func(a *Adapter) { a.client = c } }
func WithTimeout(d time.Duration) Option   { return func(a *Adapter) { a.timeout = d } }
func WithLogger(l *zap.Logger) Option      { return func(a *Adapter) { a.logger = l } }

func New(apiKey, model, baseURL string, opts ...Option) *Adapter {
	if model == "" {
		model = DefaultModel
	}
	a := &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		timeout: requestTimeout,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.Named("openrouter")
	return a
}

// Call sends req with the function as the only tool and tool_choice pinned
// to it, returning the raw JSON arguments of the call.
func (a *Adapter) Call(ctx context.Context, req ports.FunctionCall) (json.RawMessage, error) {
	messages := make([]map[string]any, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})

	payload := map[string]any{
		"model":       a.model,
		"stream":      false,
		"temperature": 0,
		"messages":    messages,
		"tools": []map[string]any{{
			"type": "function",
			"function": map[string]any{
				"name":        req.Function.Name,
				"description": req.Function.Description,
				"parameters":  req.Function.Parameters,
			},
		}},
		"tool_choice": map[string]any{
			"type":     "function",
			"function": map[string]any{"name": req.Function.Name},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.key)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("openrouter timeout after %s (model=%s): %w", a.timeout, a.model, context.DeadlineExceeded)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content   any `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode openrouter response: %w", err)
	}
	a.logger.Debug("chat completion", zap.String("model", a.model), zap.Duration("took", time.Since(start)))
	if len(raw.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: no choices: %w", ports.ErrNoFunctionCall)
	}

	msg := raw.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != req.Function.Name {
			continue
		}
		args, err := extractJSONObject(tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(args), nil
	}
	if len(msg.ToolCalls) > 0 {
		return nil, fmt.Errorf("openrouter: model called %q instead of %q: %w", msg.ToolCalls[0].Function.Name, req.Function.Name, ports.ErrNoFunctionCall)
	}

	// Some providers ignore tool_choice and answer with the arguments as text.
	content, err := messageContentToString(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ports.ErrNoFunctionCall)
	}
	args, err := extractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ports.ErrNoFunctionCall)
	}
	return json.RawMessage(args), nil
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	case nil:
		return "", errors.New("openrouter: empty content")
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
