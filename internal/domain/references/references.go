// Package references resolves quoted phrases in a command to transcript timestamps.
package references

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/domain/semantic"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

const DefaultThreshold = 0.6

type Resolver struct {
	embedder  ports.Embedder
	threshold float64
	logger    *zap.Logger
}

// New returns a resolver that accepts a match when its similarity is
// strictly greater than threshold. A non-positive threshold uses DefaultThreshold.
func New(embedder ports.Embedder, threshold float64, logger *zap.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{embedder: embedder, threshold: threshold, logger: logger.Named("references")}
}

// Resolve maps each quoted reference to the start of its best transcript
// segment and annotates the command with "[at N.NNs]" after the quote.
func (r *Resolver) Resolve(ctx context.Context, command string, transcript []types.TranscriptSegment) (types.ResolvedCommand, error) {
	out := types.ResolvedCommand{
		Original:   command,
		Annotated:  command,
		References: map[string]float64{},
	}
	spans := quotedSpans(command)
	refs := keys(spans)
	if len(refs) == 0 || len(transcript) == 0 {
		return out, nil
	}

	for _, ref := range refs {
		vec, err := r.embedder.Embed(ctx, ref)
		if err != nil {
			return out, fmt.Errorf("embed reference %q: %w", ref, err)
		}
		best, ok := semantic.Best(vec, transcript)
		if !ok || best.Score <= r.threshold {
			r.logger.Debug("reference unresolved", zap.String("ref", ref), zap.Float64("similarity", best.Score))
			continue
		}
		at := transcript[best.Index].Start
		out.References[ref] = at
		r.logger.Debug("reference resolved", zap.String("ref", ref), zap.Float64("at", at), zap.Float64("similarity", best.Score))
	}

	// Annotate the quoted text as written, in order of first occurrence.
	done := map[string]bool{}
	for _, sp := range spans {
		at, ok := out.References[sp.ref]
		if !ok || done[sp.raw] {
			continue
		}
		done[sp.raw] = true
		out.Annotated = strings.ReplaceAll(out.Annotated, sp.raw, sp.raw+fmt.Sprintf(" [at %.2fs]", at))
	}
	return out, nil
}

// Extract returns the distinct non-empty quoted substrings of s in order of
// first occurrence, trimmed. Apostrophes inside words ("don't") do not open
// or close a single-quoted reference.
func Extract(s string) []string {
	return keys(quotedSpans(s))
}

// span is one quoted occurrence: raw keeps the quotes and inner spacing.
type span struct {
	ref string
	raw string
}

func keys(spans []span) []string {
	var out []string
	seen := map[string]bool{}
	for _, sp := range spans {
		if seen[sp.ref] {
			continue
		}
		seen[sp.ref] = true
		out = append(out, sp.ref)
	}
	return out
}

func quotedSpans(s string) []span {
	var out []span
	add := func(raw string) {
		ref := strings.TrimSpace(raw[1 : len(raw)-1])
		if ref == "" {
			return
		}
		out = append(out, span{ref: ref, raw: raw})
	}

	for i := 0; i < len(s); {
		switch s[i] {
		case '"':
			j := strings.IndexByte(s[i+1:], '"')
			if j < 0 {
				return out
			}
			add(s[i : i+j+2])
			i += j + 2
		case '\'':
			if i > 0 && isWordRune(lastRune(s[:i])) {
				i++
				continue
			}
			end := closingSingle(s, i+1)
			if end < 0 {
				i++
				continue
			}
			add(s[i : end+1])
			i = end + 1
		default:
			i++
		}
	}
	return out
}

// closingSingle finds a ' at or after from that is not followed by a letter or digit.
func closingSingle(s string, from int) int {
	for k := from; k < len(s); k++ {
		if s[k] != '\'' {
			continue
		}
		if k+1 == len(s) {
			return k
		}
		r, _ := utf8.DecodeRuneInString(s[k+1:])
		if !isWordRune(r) {
			return k
		}
	}
	return -1
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
