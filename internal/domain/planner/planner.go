// Package planner asks a function-calling model to turn a command into an Action.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/domain/semantic"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

const (
	FunctionName   = "video_edit"
	DefaultTopK    = 5
	DefaultTimeout = 90 * time.Second
)

const systemPrompt = `You are a video editing command generator.
Analyze the user's request and the provided transcript excerpts to determine the appropriate video editing action.
Consider the context and timing carefully. Timestamps in square brackets like [at 25.00s] point at the moment a quoted phrase is spoken.
Always answer by calling the video_edit function.`

var ErrPlanner = errors.New("planner failed")

// Error describes why the model's answer could not be turned into an action.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planner: %s: %v", e.Reason, e.Err)
	}
	return "planner: " + e.Reason
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPlanner, e.Err}
	}
	return []error{ErrPlanner}
}

type Config struct {
	TopK    int
	Timeout time.Duration
}

type Planner struct {
	caller   ports.FunctionCaller
	embedder ports.Embedder
	cfg      Config
	logger   *zap.Logger
}

// New builds a planner. embedder may be nil, in which case no transcript
// context is sent.
func New(caller ports.FunctionCaller, embedder ports.Embedder, cfg Config, logger *zap.Logger) *Planner {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{caller: caller, embedder: embedder, cfg: cfg, logger: logger.Named("planner")}
}

// Schema returns the video_edit function offered to the model.
func Schema() ports.Function {
	kinds := make([]string, 0, len(types.Kinds))
	for _, k := range types.Kinds {
		kinds = append(kinds, string(k))
	}
	return ports.Function{
		Name:        FunctionName,
		Description: "Generate a video editing command based on natural language input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        kinds,
					"description": "The type of edit to perform",
				},
				"start_sec": map[string]any{"type": "number", "description": "Start time in seconds"},
				"end_sec":   map[string]any{"type": "number", "description": "End time in seconds"},
				"factor":    map[string]any{"type": "number", "description": "Multiplier for volume/zoom changes"},
				"text":      map[string]any{"type": "string", "description": "Text for captions"},
				"reason":    map[string]any{"type": "string", "description": "Explanation of why this action was chosen"},
			},
			"required": []string{"action", "reason"},
		},
	}
}

func (p *Planner) Plan(ctx context.Context, cmd types.ResolvedCommand, transcript []types.TranscriptSegment) (types.Action, error) {
	excerpts := p.selectExcerpts(ctx, cmd.Original, transcript)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	raw, err := p.caller.Call(ctx, ports.FunctionCall{
		System:   systemPrompt,
		Prompt:   BuildPrompt(cmd.Annotated, excerpts),
		Function: Schema(),
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &Error{Reason: "timed out", Err: err}
		case errors.Is(err, context.Canceled):
			return nil, &Error{Reason: "cancelled", Err: err}
		case errors.Is(err, ports.ErrNoFunctionCall):
			return nil, &Error{Reason: "no function call", Err: err}
		}
		return nil, &Error{Reason: "call failed", Err: err}
	}

	a, err := ParseArgs(raw)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("planned action", zap.String("action", string(a.Kind())), zap.String("reason", a.Explain()))
	return a, nil
}

// ParseArgs validates the model's function arguments into an Action.
func ParseArgs(raw json.RawMessage) (types.Action, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, &Error{Reason: "empty arguments"}
	}
	var j types.ActionJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, &Error{Reason: "invalid arguments", Err: err}
	}
	if !slices.Contains(types.Kinds, types.ActionKind(j.Action)) {
		return nil, &Error{Reason: fmt.Sprintf("action %q is not one of %v", j.Action, types.Kinds)}
	}
	if strings.TrimSpace(j.Reason) == "" {
		return nil, &Error{Reason: "missing reason"}
	}
	a, err := types.FromJSON(j)
	if err != nil {
		return nil, &Error{Reason: "invalid arguments", Err: err}
	}
	return a, nil
}

// selectExcerpts picks the top-k segments most similar to the raw command and
// renders them chronologically.
func (p *Planner) selectExcerpts(ctx context.Context, command string, transcript []types.TranscriptSegment) []types.TranscriptSegment {
	if p.embedder == nil || len(transcript) == 0 {
		return nil
	}
	q, err := p.embedder.Embed(ctx, command)
	if err != nil {
		p.logger.Warn("command embedding failed; planning without transcript context", zap.Error(err))
		return nil
	}
	top := semantic.TopK(q, transcript, p.cfg.TopK)
	out := make([]types.TranscriptSegment, 0, len(top))
	for _, s := range top {
		out = append(out, transcript[s.Index])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func BuildPrompt(command string, excerpts []types.TranscriptSegment) string {
	var b strings.Builder
	b.WriteString(command)
	if len(excerpts) == 0 {
		return b.String()
	}
	b.WriteString("\n\nTranscript excerpts:\n")
	for i, s := range excerpts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%.1f-%.1fs: %s", s.Start, s.End, s.Sentence)
	}
	return b.String()
}
