package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/nledit/internal/domain/subtitles"
	"github.com/forPelevin/nledit/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inMP4,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// Render writes src with act applied to out. Only cuts change the timeline;
// every other action keeps the source duration.
func (a *Adapter) Render(ctx context.Context, src string, act types.Action, out string) error {
	args, cleanup, err := a.renderArgs(ctx, src, act, out)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render %s: %w\n%s", act.Kind(), err, string(b))
	}
	return nil
}

func (a *Adapter) renderArgs(ctx context.Context, src string, act types.Action, out string) ([]string, func(), error) {
	args := []string{"-y", "-i", src}
	switch x := act.(type) {
	case types.Cut:
		keep := fmt.Sprintf("not(between(t,%s,%s))", fmtSec(x.Start), fmtSec(x.End))
		graph := fmt.Sprintf("[0:v]select='%s',setpts=N/FRAME_RATE/TB[v];[0:a]aselect='%s',asetpts=N/SR/TB[a]", keep, keep)
		args = append(args, "-filter_complex", graph, "-map", "[v]", "-map", "[a]")
		args = append(args, videoCodec()...)
		args = append(args, audioCodec()...)
	case types.Volume:
		af := "volume=" + fmtSec(x.Factor)
		if x.Range != nil {
			af += ":enable='" + between(*x.Range) + "'"
		}
		args = append(args, "-af", af, "-c:v", "copy")
		args = append(args, audioCodec()...)
	case types.Zoom:
		f := fmtSec(x.Factor)
		enable := ""
		if x.Range != nil {
			enable = ":enable='" + between(*x.Range) + "'"
		}
		// Scale up, crop back to the source size around the centre, overlay on the original.
		graph := fmt.Sprintf("[0:v]split[base][z];[z]scale=iw*%s:ih*%s,crop=iw/%s:ih/%s[zoomed];[base][zoomed]overlay=0:0%s[v]", f, f, f, f, enable)
		args = append(args, "-filter_complex", graph, "-map", "[v]", "-map", "0:a?")
		args = append(args, videoCodec()...)
		args = append(args, "-c:a", "copy")
	case types.Caption:
		d, err := a.ProbeDuration(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		start, end := subtitles.CaptionWindow(subtitles.Dur(x.Start), d)
		ass, err := subtitles.RenderCaptionASS(x.Text, start, end)
		if err != nil {
			return nil, nil, err
		}
		assPath := out + ".ass"
		if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = os.Remove(assPath) }
		args = append(args, "-vf", "subtitles="+escapeFilterPath(assPath))
		args = append(args, videoCodec()...)
		args = append(args, "-c:a", "copy")
		return append(args, out), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("ffmpeg: unsupported action %T", act)
	}
	return append(args, out), nil, nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inMP4,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func videoCodec() []string {
	return []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "18"}
}

func audioCodec() []string {
	return []string{"-c:a", "aac", "-b:a", "192k"}
}

func between(s types.Span) string {
	return fmt.Sprintf("between(t,%s,%s)", fmtSec(s.Start), fmtSec(s.End))
}

func fmtSec(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
