package whispercpp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forPelevin/nledit/internal/types"
)

func TestParse_WhisperCPPFormat(t *testing.T) {
	in := `{"transcription":[
		{"offsets":{"from":0,"to":2500},"text":" Hello there."},
		{"offsets":{"from":2500,"to":2600},"text":"   "},
		{"offsets":{"from":2600,"to":5000},"text":" I grew up by the sea."}
	]}`
	tr, err := parse([]byte(in))
	require.NoError(t, err)
	require.Equal(t, []types.Segment{
		{Start: 0, End: 2.5, Text: "Hello there."},
		{Start: 2.6, End: 5, Text: "I grew up by the sea."},
	}, tr.Segments)
}

func TestParse_SegmentsFormat(t *testing.T) {
	in := `{"segments":[{"start":1.5,"end":3,"text":" hi ","words":[{"start":1.5,"end":2,"word":" hi"}]}]}`
	tr, err := parse([]byte(in))
	require.NoError(t, err)
	require.Len(t, tr.Segments, 1)
	require.Equal(t, "hi", tr.Segments[0].Text)
	require.Equal(t, "hi", tr.Segments[0].Words[0].Word)
}

func TestParse_Invalid(t *testing.T) {
	_, err := parse([]byte("{"))
	require.Error(t, err)
}
