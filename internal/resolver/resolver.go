// Package resolver turns a free-form command into an Action: quick patterns
// first, then reference resolution and the LLM planner.
package resolver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/domain/patterns"
	"github.com/forPelevin/nledit/internal/types"
)

var ErrUnresolved = errors.New("command could not be resolved")

type Strategy string

const (
	StrategyPattern Strategy = "pattern"
	StrategyLLM     Strategy = "llm"
)

type ReferenceResolver interface {
	Resolve(ctx context.Context, command string, transcript []types.TranscriptSegment) (types.ResolvedCommand, error)
}

type Planner interface {
	Plan(ctx context.Context, cmd types.ResolvedCommand, transcript []types.TranscriptSegment) (types.Action, error)
}

type Request struct {
	Text       string
	Duration   *float64
	Transcript []types.TranscriptSegment

	// LoadTranscript, when set and Transcript is nil, is called only after the
	// quick patterns missed and the LLM strategy is about to run.
	LoadTranscript func(ctx context.Context) ([]types.TranscriptSegment, error)
	UseLLM         bool
}

type Result struct {
	Action   types.Action
	Strategy Strategy
	// Rule names the quick pattern that matched; empty for the LLM strategy.
	Rule string
	// Resolved is set when the command went through reference resolution.
	Resolved *types.ResolvedCommand
}

type Resolver struct {
	refs    ReferenceResolver
	planner Planner
	logger  *zap.Logger
}

// New wires the orchestrator. refs and planner may be nil; without a planner
// only quick patterns resolve.
func New(refs ReferenceResolver, planner Planner, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{refs: refs, planner: planner, logger: logger.Named("resolver")}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if a, rule, ok := patterns.Match(req.Text, req.Duration); ok {
		r.logger.Debug("resolved by pattern", zap.String("rule", rule), zap.String("action", string(a.Kind())))
		return Result{Action: a, Strategy: StrategyPattern, Rule: rule}, nil
	}
	if !req.UseLLM || r.planner == nil {
		return Result{}, ErrUnresolved
	}

	transcript := req.Transcript
	if transcript == nil && req.LoadTranscript != nil {
		var err error
		if transcript, err = req.LoadTranscript(ctx); err != nil {
			return Result{}, err
		}
	}

	cmd := types.ResolvedCommand{Original: req.Text, Annotated: req.Text, References: map[string]float64{}}
	if r.refs != nil && len(transcript) > 0 {
		resolved, err := r.refs.Resolve(ctx, req.Text, transcript)
		if err != nil {
			r.logger.Warn("reference resolution failed; using raw command", zap.Error(err))
		} else {
			cmd = resolved
		}
	}

	a, err := r.planner.Plan(ctx, cmd, transcript)
	if err != nil {
		r.logger.Info("planner could not resolve command", zap.Error(err))
		return Result{}, errors.Join(ErrUnresolved, err)
	}
	r.logger.Debug("resolved by planner", zap.String("action", string(a.Kind())))
	return Result{Action: a, Strategy: StrategyLLM, Resolved: &cmd}, nil
}
