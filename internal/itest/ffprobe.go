//go:build integration

package itest

import (
	"context"
	"time"

	"github.com/forPelevin/nledit/internal/ports/adapters/ffmpeg"
)

// probeDurationSeconds measures a rendered file with the same ffprobe call the app uses.
func probeDurationSeconds(mp4Path string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := ffmpeg.New("", "").ProbeDuration(ctx, mp4Path)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
