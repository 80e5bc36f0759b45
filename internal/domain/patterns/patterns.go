// Package patterns recognises common editing phrasings without embeddings or an LLM.
package patterns

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/forPelevin/nledit/internal/domain/timestamp"
	"github.com/forPelevin/nledit/internal/types"
)

type rule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string, duration *float64) (types.Action, bool)
}

// Order matters: the first rule whose expression hits owns the result, even
// when it then declines (missing duration, malformed timestamp).
var rules = []rule{
	{
		name:  "cut_first",
		re:    regexp.MustCompile(`(?i)\b(?:cut|trim)\s+(?:out\s+)?the\s+first\s+(\d+(?:\.\d+)?)\s*seconds?\b`),
		build: cutFirst,
	},
	{
		name:  "cut_last",
		re:    regexp.MustCompile(`(?i)\b(?:cut|trim)\s+(?:out\s+)?the\s+last\s+(\d+(?:\.\d+)?)\s*seconds?\b`),
		build: cutLast,
	},
	{
		name:  "cut_range",
		re:    regexp.MustCompile(`(?i)\b(?:cut|trim)\s+(?:(?:between|from)\s+)?([0-9:.]+)\s*(?:-|to|and)\s*([0-9:.]+)`),
		build: cutRange,
	},
	{
		name:  "add_text",
		re:    regexp.MustCompile(`(?i)\badd\s+text\s+(?:'([^']+)'|"([^"]+)")\s+(?:at|@)\s*([0-9:.]+)`),
		build: addText,
	},
	{
		name:  "volume",
		re:    regexp.MustCompile(`(?i)\b(?:boost|increase|decrease|lower|set)\s+(?:the\s+)?volume\s+(?:by\s+|to\s+)?(\d+(?:\.\d+)?)\s*(%|x)?`),
		build: volume,
	},
}

// MatchQuick returns the action for the first matching rule. Malformed
// timestamps and invalid ranges are reported as no match, never as errors.
func MatchQuick(text string, duration *float64) (types.Action, bool) {
	a, _, ok := Match(text, duration)
	return a, ok
}

// Match is MatchQuick that also reports which rule fired.
func Match(text string, duration *float64) (types.Action, string, bool) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		a, ok := r.build(m, duration)
		if !ok {
			return nil, r.name, false
		}
		return a, r.name, true
	}
	return nil, "", false
}

func cutFirst(m []string, _ *float64) (types.Action, bool) {
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	a, err := types.NewCut(0, secs, fmt.Sprintf("Cut first %s seconds", num(secs)))
	return a, err == nil
}

func cutLast(m []string, duration *float64) (types.Action, bool) {
	if duration == nil {
		return nil, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	d := *duration
	a, err := types.NewCut(d-secs, d, fmt.Sprintf("Cut last %s seconds", num(secs)))
	return a, err == nil
}

func cutRange(m []string, _ *float64) (types.Action, bool) {
	start, err := timestamp.ToSeconds(m[1])
	if err != nil {
		return nil, false
	}
	end, err := timestamp.ToSeconds(m[2])
	if err != nil {
		return nil, false
	}
	a, err := types.NewCut(start, end, fmt.Sprintf("Cut from %s to %s", m[1], m[2]))
	return a, err == nil
}

func addText(m []string, _ *float64) (types.Action, bool) {
	text := m[1]
	if text == "" {
		text = m[2]
	}
	at, err := timestamp.ToSeconds(m[3])
	if err != nil {
		return nil, false
	}
	a, err := types.NewCaption(text, at, fmt.Sprintf("Add text '%s' at %s", text, m[3]))
	return a, err == nil
}

func volume(m []string, _ *float64) (types.Action, bool) {
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	factor := n
	if m[2] == "%" {
		factor = n / 100
	}
	a, err := types.NewVolume(factor, nil, fmt.Sprintf("Set volume to %sx", num(factor)))
	return a, err == nil
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
