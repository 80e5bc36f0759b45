// Package editor applies a resolved action to a video, producing a new child
// version and its effect record.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/domain/timestamp"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

type State string

const (
	StatePending      State = "pending"
	StateTransforming State = "transforming"
	StateCommitted    State = "committed"
	StateFailed       State = "failed"
)

// Transition is reported to the state hook on every state change.
type Transition struct {
	SourceID string
	ChildID  string
	State    State
	Err      error
}

// InvalidRangeError means the action does not fit the source video. Values
// are never clamped.
type InvalidRangeError struct {
	Kind     types.ActionKind
	Start    float64
	End      float64
	Duration float64
	Reason   string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid %s range [%s, %s] for a %s video: %s", e.Kind,
		timestamp.Format(e.Start), timestamp.Format(e.End), timestamp.Format(e.Duration), e.Reason)
}

func (e *InvalidRangeError) Unwrap() error { return types.ErrInvalidAction }

type RenderError struct {
	Kind types.ActionKind
	Err  error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render %s: %v", e.Kind, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

type Deps struct {
	Store    ports.VideoStore
	Renderer ports.Renderer
	// OutDir receives rendered files, one <video id>.mp4 per version.
	OutDir  string
	Clock   func() time.Time
	NewID   func() string
	Logger  *zap.Logger
	OnState func(Transition)
}

type Options struct {
	// IdempotencyKey makes retries of the same request return the first result.
	IdempotencyKey string
}

type Applier struct{ d Deps }

func New(d Deps) *Applier {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.Named("editor")
	return &Applier{d: d}
}

// Apply renders act over src and commits the child video with its effect.
// On any failure nothing is committed and no output file is left behind.
func (a *Applier) Apply(ctx context.Context, src types.Video, act types.Action, opts Options) (types.Video, types.Effect, error) {
	log := a.d.Logger.With(zap.String("video_id", src.ID), zap.String("action", string(act.Kind())))
	a.transition(log, Transition{SourceID: src.ID, State: StatePending})

	if opts.IdempotencyKey != "" {
		v, e, err := a.existing(ctx, src.ID, opts.IdempotencyKey)
		switch {
		case err == nil:
			log.Info("edit already applied", zap.String("child_id", v.ID))
			a.transition(log, Transition{SourceID: src.ID, ChildID: v.ID, State: StateCommitted})
			return v, e, nil
		case !errors.Is(err, ports.ErrNotFound):
			return a.fail(log, src.ID, "", err)
		}
	}

	dur, err := ChildDuration(src.Duration, act)
	if err != nil {
		return a.fail(log, src.ID, "", err)
	}

	childID := a.d.NewID()
	out := filepath.Join(a.d.OutDir, childID+".mp4")
	a.transition(log, Transition{SourceID: src.ID, ChildID: childID, State: StateTransforming})

	if err := os.MkdirAll(a.d.OutDir, 0o755); err != nil {
		return a.fail(log, src.ID, childID, err)
	}
	if err := a.d.Renderer.Render(ctx, src.FilePath, act, out); err != nil {
		_ = os.Remove(out)
		return a.fail(log, src.ID, childID, &RenderError{Kind: act.Kind(), Err: err})
	}

	now := a.d.Clock()
	child := types.Video{
		ID:        childID,
		Title:     src.Title,
		FilePath:  out,
		Duration:  dur,
		ParentID:  src.ID,
		CreatedAt: now,
	}
	eff := types.NewEffect(a.d.NewID(), childID, act, now)
	eff.IdempotencyKey = opts.IdempotencyKey

	if err := a.d.Store.Commit(ctx, child, eff); err != nil {
		_ = os.Remove(out)
		if errors.Is(err, ports.ErrDuplicateKey) {
			// Lost a race with a concurrent delivery of the same request.
			v, e, xerr := a.existing(ctx, src.ID, opts.IdempotencyKey)
			if xerr == nil {
				log.Info("edit committed concurrently", zap.String("child_id", v.ID))
				a.transition(log, Transition{SourceID: src.ID, ChildID: v.ID, State: StateCommitted})
				return v, e, nil
			}
			if errors.Is(xerr, ports.ErrKeyConflict) {
				return a.fail(log, src.ID, childID, xerr)
			}
		}
		return a.fail(log, src.ID, childID, fmt.Errorf("commit %s: %w", childID, err))
	}

	a.transition(log, Transition{SourceID: src.ID, ChildID: childID, State: StateCommitted})
	return child, eff, nil
}

// existing returns the child already committed under key. The key must have
// been used for the same source video.
func (a *Applier) existing(ctx context.Context, srcID, key string) (types.Video, types.Effect, error) {
	e, err := a.d.Store.EffectByKey(ctx, key)
	if err != nil {
		return types.Video{}, types.Effect{}, err
	}
	v, err := a.d.Store.Video(ctx, e.VideoID)
	if err != nil {
		return types.Video{}, types.Effect{}, err
	}
	if v.ParentID != srcID {
		return types.Video{}, types.Effect{}, fmt.Errorf("%w: key %q was applied to video %s", ports.ErrKeyConflict, key, v.ParentID)
	}
	return v, e, nil
}

func (a *Applier) fail(log *zap.Logger, srcID, childID string, err error) (types.Video, types.Effect, error) {
	a.transition(log, Transition{SourceID: srcID, ChildID: childID, State: StateFailed, Err: err})
	return types.Video{}, types.Effect{}, err
}

func (a *Applier) transition(log *zap.Logger, t Transition) {
	if t.Err != nil {
		log.Warn("edit state", zap.String("state", string(t.State)), zap.String("child_id", t.ChildID), zap.Error(t.Err))
	} else {
		log.Debug("edit state", zap.String("state", string(t.State)), zap.String("child_id", t.ChildID))
	}
	if a.d.OnState != nil {
		a.d.OnState(t)
	}
}

// ChildDuration validates act against a source of the given duration and
// returns the duration of the result.
func ChildDuration(duration float64, act types.Action) (float64, error) {
	if err := act.Validate(); err != nil {
		return 0, err
	}
	switch x := act.(type) {
	case types.Cut:
		if x.Start < 0 || x.Start >= x.End || x.End > duration {
			return 0, &InvalidRangeError{Kind: x.Kind(), Start: x.Start, End: x.End, Duration: duration,
				Reason: "cut needs 0 <= start < end <= duration"}
		}
		return duration - (x.End - x.Start), nil
	case types.Volume:
		return duration, checkSpan(x.Kind(), x.Range, duration)
	case types.Zoom:
		if x.Factor < 1 {
			start, end := 0.0, duration
			if x.Range != nil {
				start, end = x.Range.Start, x.Range.End
			}
			return 0, &InvalidRangeError{Kind: x.Kind(), Start: start, End: end, Duration: duration,
				Reason: fmt.Sprintf("zoom factor %.3f is below 1; only zooming in is supported", x.Factor)}
		}
		return duration, checkSpan(x.Kind(), x.Range, duration)
	case types.Caption:
		if x.Start > duration {
			return 0, &InvalidRangeError{Kind: x.Kind(), Start: x.Start, End: x.Start, Duration: duration,
				Reason: "caption starts after the end of the video"}
		}
		return duration, nil
	}
	return 0, fmt.Errorf("%w: unsupported action %T", types.ErrInvalidAction, act)
}

func checkSpan(kind types.ActionKind, r *types.Span, duration float64) error {
	if r == nil {
		return nil
	}
	if r.Start < 0 || r.Start > r.End || r.End > duration {
		return &InvalidRangeError{Kind: kind, Start: r.Start, End: r.End, Duration: duration,
			Reason: "range must lie within the video"}
	}
	return nil
}
