package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/nledit/internal/types"
)

type IngestInput struct {
	Path  string
	Title string
	// SkipTranscript registers the video without running ASR.
	SkipTranscript bool
}

type IngestResult struct {
	Video    types.Video
	Segments int
}

// Ingest registers an uploaded file as a root video, transcribing and
// embedding its speech unless asked not to.
func (u Usecase) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	abs, err := filepath.Abs(in.Path)
	if err != nil {
		return IngestResult{}, err
	}
	if _, err := os.Stat(abs); err != nil {
		return IngestResult{}, fmt.Errorf("stat input: %w", err)
	}
	if u.d.Video == nil {
		return IngestResult{}, errors.New("ingest: video tool is not configured")
	}

	id := u.d.NewID()
	log := u.d.Logger.With(zap.String("video_id", id))

	d, err := u.d.Video.ProbeDuration(ctx, abs)
	if err != nil {
		return IngestResult{}, err
	}
	title := in.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	v := types.Video{
		ID:        id,
		Title:     title,
		FilePath:  abs,
		Duration:  d.Seconds(),
		CreatedAt: u.d.Clock(),
	}

	var segs []types.TranscriptSegment
	if !in.SkipTranscript && u.d.ASR != nil {
		segs, err = u.transcribe(ctx, id, abs)
		if err != nil {
			return IngestResult{}, err
		}
		log.Info("transcript ready", zap.Int("segments", len(segs)))
	}

	if err := u.d.Store.CreateRoot(ctx, v); err != nil {
		return IngestResult{}, fmt.Errorf("register video: %w", err)
	}
	if len(segs) > 0 {
		if err := u.d.Transcripts.SaveSegments(ctx, id, segs); err != nil {
			return IngestResult{}, fmt.Errorf("save transcript: %w", err)
		}
	}
	log.Info("video ingested", zap.Float64("duration", v.Duration))
	return IngestResult{Video: v, Segments: len(segs)}, nil
}

func (u Usecase) transcribe(ctx context.Context, id, path string) ([]types.TranscriptSegment, error) {
	cacheDir := filepath.Join(u.d.CacheDir, id)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}
	wav := filepath.Join(cacheDir, "audio.wav")
	if err := u.d.Video.ExtractAudioMono16k(ctx, path, wav); err != nil {
		return nil, err
	}
	tr, err := u.d.ASR.Transcribe(ctx, wav, cacheDir)
	if err != nil {
		return nil, err
	}

	segs := ToSegments(tr)
	if u.d.Embedder == nil {
		return segs, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.d.EmbedConcurrency)
	for i := range segs {
		g.Go(func() error {
			vec, err := u.d.Embedder.Embed(gctx, segs[i].Sentence)
			if err != nil {
				return fmt.Errorf("embed segment %d: %w", i, err)
			}
			segs[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segs, nil
}

// ToSegments turns ASR output into stored sentences ordered by start.
// Blank segments are dropped.
func ToSegments(tr types.Transcript) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		out = append(out, types.TranscriptSegment{Sentence: text, Start: s.Start, End: s.End})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
