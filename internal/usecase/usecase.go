package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/editor"
	"github.com/forPelevin/nledit/internal/lineage"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/resolver"
	"github.com/forPelevin/nledit/internal/types"
)

// ErrNotUnderstood is returned by Edit when no strategy produced an action.
var (
	ErrNotUnderstood = errors.New("could not understand command")
	ErrQueueDisabled = errors.New("job queue is not configured")
)

type CommandResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error)
}

type Editor interface {
	Apply(ctx context.Context, src types.Video, act types.Action, opts editor.Options) (types.Video, types.Effect, error)
}

type Deps struct {
	Store       ports.VideoStore
	Transcripts ports.TranscriptStore
	Resolver    CommandResolver
	Editor      Editor

	// Ingestion collaborators; ASR may be nil to register videos without a transcript.
	Video    ports.VideoTool
	ASR      ports.ASR
	Embedder ports.Embedder
	// CacheDir holds per-video scratch files (audio, whisper output).
	CacheDir string
	// EmbedConcurrency bounds parallel embedding calls during ingestion.
	EmbedConcurrency int

	Queue ports.JobQueue

	NewID  func() string
	Clock  func() time.Time
	Logger *zap.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.EmbedConcurrency <= 0 {
		d.EmbedConcurrency = 4
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.Named("usecase")
	return Usecase{d: d}
}

type EditInput struct {
	VideoID        string
	Command        string
	UseLLM         bool
	IdempotencyKey string
}

type EditResult struct {
	Action   types.Action
	Strategy resolver.Strategy
	Rule     string
	Source   types.Video
	Video    types.Video
	Effect   types.Effect
	// Replayed is true when the idempotency key had already been applied.
	Replayed bool
}

// Edit resolves in.Command against the video and applies the result as a new child version.
func (u Usecase) Edit(ctx context.Context, in EditInput) (EditResult, error) {
	log := u.d.Logger.With(zap.String("video_id", in.VideoID))

	if in.IdempotencyKey != "" {
		if res, err := u.replay(ctx, in.VideoID, in.IdempotencyKey); err == nil {
			log.Info("edit replayed", zap.String("child_id", res.Video.ID))
			return res, nil
		} else if !errors.Is(err, ports.ErrNotFound) {
			return EditResult{}, err
		}
	}

	src, err := u.d.Store.Video(ctx, in.VideoID)
	if err != nil {
		return EditResult{}, fmt.Errorf("load video %s: %w", in.VideoID, err)
	}
	res, err := u.resolve(ctx, src, in.Command, in.UseLLM)
	if err != nil {
		return EditResult{}, err
	}

	child, eff, err := u.d.Editor.Apply(ctx, src, res.Action, editor.Options{IdempotencyKey: in.IdempotencyKey})
	if err != nil {
		return EditResult{}, err
	}
	log.Info("edit applied",
		zap.String("strategy", string(res.Strategy)),
		zap.String("action", string(res.Action.Kind())),
		zap.String("child_id", child.ID),
	)
	return EditResult{
		Action:   res.Action,
		Strategy: res.Strategy,
		Rule:     res.Rule,
		Source:   src,
		Video:    child,
		Effect:   eff,
	}, nil
}

type ResolveInput struct {
	// VideoID is optional; when set the video's duration and transcript are used.
	VideoID  string
	Command  string
	Duration *float64
	UseLLM   bool
}

// Resolve turns a command into an action without applying it.
func (u Usecase) Resolve(ctx context.Context, in ResolveInput) (resolver.Result, error) {
	if in.VideoID == "" {
		res, err := u.d.Resolver.Resolve(ctx, resolver.Request{Text: in.Command, Duration: in.Duration, UseLLM: in.UseLLM})
		if err != nil {
			return resolver.Result{}, notUnderstood(in.Command, err)
		}
		return res, nil
	}
	src, err := u.d.Store.Video(ctx, in.VideoID)
	if err != nil {
		return resolver.Result{}, fmt.Errorf("load video %s: %w", in.VideoID, err)
	}
	return u.resolve(ctx, src, in.Command, in.UseLLM)
}

func (u Usecase) resolve(ctx context.Context, src types.Video, command string, useLLM bool) (resolver.Result, error) {
	dur := src.Duration
	res, err := u.d.Resolver.Resolve(ctx, resolver.Request{
		Text:     command,
		Duration: &dur,
		LoadTranscript: func(ctx context.Context) ([]types.TranscriptSegment, error) {
			return u.transcriptFor(ctx, src)
		},
		UseLLM: useLLM,
	})
	if err != nil {
		return resolver.Result{}, notUnderstood(command, err)
	}
	return res, nil
}

func notUnderstood(command string, err error) error {
	if errors.Is(err, resolver.ErrUnresolved) {
		return fmt.Errorf("%w %q: %w", ErrNotUnderstood, command, err)
	}
	return err
}

// transcriptFor returns the segments of v. Derived videos without their own
// transcript borrow the nearest ancestor's as long as no cut shifted the
// timeline in between.
func (u Usecase) transcriptFor(ctx context.Context, v types.Video) ([]types.TranscriptSegment, error) {
	if u.d.Transcripts == nil {
		return nil, nil
	}
	for {
		segs, err := u.d.Transcripts.Segments(ctx, v.ID)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("load transcript %s: %w", v.ID, err)
		}
		if len(segs) > 0 || v.IsRoot() {
			return segs, nil
		}
		eff, err := u.d.Store.EffectFor(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("load effect %s: %w", v.ID, err)
		}
		if eff.Type == types.KindCut {
			return nil, nil
		}
		parentID := v.ParentID
		if v, err = u.d.Store.Video(ctx, parentID); err != nil {
			return nil, fmt.Errorf("load video %s: %w", parentID, err)
		}
	}
}

func (u Usecase) replay(ctx context.Context, videoID, key string) (EditResult, error) {
	eff, err := u.d.Store.EffectByKey(ctx, key)
	if err != nil {
		return EditResult{}, err
	}
	child, err := u.d.Store.Video(ctx, eff.VideoID)
	if err != nil {
		return EditResult{}, err
	}
	if child.ParentID != videoID {
		return EditResult{}, fmt.Errorf("%w: key %q was applied to video %s, not %s", ports.ErrKeyConflict, key, child.ParentID, videoID)
	}
	src, err := u.d.Store.Video(ctx, child.ParentID)
	if err != nil {
		return EditResult{}, err
	}
	act, err := eff.Action()
	if err != nil {
		return EditResult{}, err
	}
	return EditResult{Action: act, Source: src, Video: child, Effect: eff, Replayed: true}, nil
}

// Enqueue hands the edit to a background worker and returns the idempotency
// key the worker will apply it under.
func (u Usecase) Enqueue(ctx context.Context, in EditInput) (string, error) {
	if u.d.Queue == nil {
		return "", ErrQueueDisabled
	}
	if _, err := u.d.Store.Video(ctx, in.VideoID); err != nil {
		return "", fmt.Errorf("load video %s: %w", in.VideoID, err)
	}
	key := in.IdempotencyKey
	if key == "" {
		key = u.d.NewID()
	}
	job := ports.ApplyJob{VideoID: in.VideoID, Command: in.Command, UseLLM: in.UseLLM, IdempotencyKey: key}
	if err := u.d.Queue.Publish(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue edit: %w", err)
	}
	u.d.Logger.Info("edit enqueued", zap.String("video_id", in.VideoID), zap.String("idempotency_key", key))
	return key, nil
}

// HandleJob runs a queued edit.
func (u Usecase) HandleJob(ctx context.Context, job ports.ApplyJob) (EditResult, error) {
	return u.Edit(ctx, EditInput{
		VideoID:        job.VideoID,
		Command:        job.Command,
		UseLLM:         job.UseLLM,
		IdempotencyKey: job.IdempotencyKey,
	})
}

func (u Usecase) Video(ctx context.Context, id string) (types.Video, error) {
	return u.d.Store.Video(ctx, id)
}

func (u Usecase) History(ctx context.Context, id string) ([]lineage.Step, error) {
	return lineage.History(ctx, u.d.Store, id)
}

// Root returns the original upload the version id descends from.
func (u Usecase) Root(ctx context.Context, id string) (types.Video, error) {
	return lineage.Root(ctx, u.d.Store, id)
}

func (u Usecase) Undo(ctx context.Context, id string) (types.Video, error) {
	return lineage.Undo(ctx, u.d.Store, id)
}

func (u Usecase) Redo(ctx context.Context, id string) (types.Video, error) {
	return lineage.Redo(ctx, u.d.Store, id)
}

func (u Usecase) Children(ctx context.Context, id string) ([]types.Video, error) {
	if _, err := u.d.Store.Video(ctx, id); err != nil {
		return nil, err
	}
	return u.d.Store.Children(ctx, id)
}
