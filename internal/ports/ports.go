package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/forPelevin/nledit/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned by VideoStore.Commit when the effect's
	// idempotency key was already committed.
	ErrDuplicateKey = errors.New("idempotency key already committed")
	// ErrKeyConflict means an idempotency key was reused for a different source video.
	ErrKeyConflict = errors.New("idempotency key belongs to another request")
	// ErrNoFunctionCall means the model answered without calling the function.
	ErrNoFunctionCall = errors.New("model did not call the function")
)

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// Renderer writes the result of applying a to src into out.
type Renderer interface {
	Render(ctx context.Context, src string, a types.Action, out string) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TranscriptProvider returns the segments of a video sorted by start.
type TranscriptProvider interface {
	Segments(ctx context.Context, videoID string) ([]types.TranscriptSegment, error)
}

type TranscriptStore interface {
	TranscriptProvider
	SaveSegments(ctx context.Context, videoID string, segs []types.TranscriptSegment) error
}

// Function is a callable tool offered to the model; Parameters is a JSON schema.
type Function struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type FunctionCall struct {
	System   string
	Prompt   string
	Function Function
}

// FunctionCaller forces the model to call req.Function and returns the raw JSON arguments.
type FunctionCaller interface {
	Call(ctx context.Context, req FunctionCall) (json.RawMessage, error)
}

// VideoStore holds the immutable version tree. Commit stores a child video
// and its effect together or not at all.
type VideoStore interface {
	CreateRoot(ctx context.Context, v types.Video) error
	Video(ctx context.Context, id string) (types.Video, error)
	Commit(ctx context.Context, v types.Video, e types.Effect) error
	EffectFor(ctx context.Context, videoID string) (types.Effect, error)
	EffectByKey(ctx context.Context, key string) (types.Effect, error)
	// Children returns direct descendants, oldest first.
	Children(ctx context.Context, id string) ([]types.Video, error)
}

// ApplyJob is an edit request handed to a background worker.
type ApplyJob struct {
	VideoID        string `json:"video_id"`
	Command        string `json:"command"`
	UseLLM         bool   `json:"use_llm"`
	IdempotencyKey string `json:"idempotency_key"`
}

type JobQueue interface {
	Publish(ctx context.Context, job ApplyJob) error
}
