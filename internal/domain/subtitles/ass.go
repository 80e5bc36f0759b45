// Package subtitles renders caption actions as ASS scripts for ffmpeg burn-in.
package subtitles

import (
	"fmt"
	"strings"
	"time"
)

// DefaultHold is how long a caption stays on screen when the video is long enough.
const DefaultHold = 3 * time.Second

// CaptionWindow returns when a caption starting at start is shown, clamped
// to the video duration.
func CaptionWindow(start, videoDur time.Duration) (time.Duration, time.Duration) {
	end := start + DefaultHold
	if videoDur > 0 && end > videoDur {
		end = videoDur
	}
	if end <= start {
		end = start + 10*time.Millisecond
	}
	return start, end
}

// RenderCaptionASS returns a full-timeline ASS script showing text between start and end.
func RenderCaptionASS(text string, start, end time.Duration) (string, error) {
	text = sanitizeASS(text)
	if text == "" {
		return "", fmt.Errorf("caption text is empty")
	}
	if end <= start {
		return "", fmt.Errorf("caption window [%s, %s] is empty", assTime(start), assTime(end))
	}
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	b.WriteString("Dialogue: 0,")
	b.WriteString(assTime(start))
	b.WriteString(",")
	b.WriteString(assTime(end))
	b.WriteString(",Caption,,0,0,0,,{\\fad(150,150)}")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String(), nil
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Inter, 64, &H00FFFFFF, &H00FFFFFF, &H00000000, &H80000000, 1,0,0,0,100,100,0,0,3,4,0,2, 120,120,90,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

// sanitizeASS escapes override braces and turns newlines into ASS hard breaks.
func sanitizeASS(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\\N")
}

// Dur converts seconds to a Duration.
func Dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
