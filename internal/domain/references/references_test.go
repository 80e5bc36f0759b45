package references

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/forPelevin/nledit/internal/types"
)

type mapEmbedder map[string][]float32

func (m mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := m[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return v, nil
}

func transcript() []types.TranscriptSegment {
	return []types.TranscriptSegment{
		{Sentence: "welcome back everyone", Start: 0, End: 4, Embedding: []float32{0, 0, 1}},
		{Sentence: "when I think of my childhood", Start: 25, End: 29, Embedding: []float32{1, 0, 0}},
		{Sentence: "and then she started to whisper", Start: 45, End: 49, Embedding: []float32{0, 1, 0}},
	}
}

func testEmbedder() mapEmbedder {
	return mapEmbedder{
		"childhood": {0.9, 0.1, 0},
		"whisper":   {0, 1, 0},
		"banana":    {0.5, 0.5, 0.7},
	}
}

func TestResolve_AnnotatesBothQuoteStyles(t *testing.T) {
	r := New(testEmbedder(), 0, nil)
	got, err := r.Resolve(context.Background(), `cut from 'childhood' to "whisper"`, transcript())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := `cut from 'childhood' [at 25.00s] to "whisper" [at 45.00s]`
	if got.Annotated != want {
		t.Fatalf("annotated = %q, want %q", got.Annotated, want)
	}
	if got.Original != `cut from 'childhood' to "whisper"` {
		t.Fatalf("original changed: %q", got.Original)
	}
	wantRefs := map[string]float64{"childhood": 25, "whisper": 45}
	if !reflect.DeepEqual(got.References, wantRefs) {
		t.Fatalf("references = %v, want %v", got.References, wantRefs)
	}
}

func TestResolve_AnnotatesPaddedQuotes(t *testing.T) {
	r := New(testEmbedder(), 0, nil)
	got, err := r.Resolve(context.Background(), `remove ' childhood ' and "childhood"`, transcript())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := `remove ' childhood ' [at 25.00s] and "childhood" [at 25.00s]`
	if got.Annotated != want {
		t.Fatalf("annotated = %q, want %q", got.Annotated, want)
	}
	if got.References["childhood"] != 25 {
		t.Fatalf("references = %v", got.References)
	}
}

func TestResolve_LeavesWeakMatchesUnannotated(t *testing.T) {
	r := New(testEmbedder(), 0.6, nil)
	cmd := `zoom in when I say "banana"`
	got, err := r.Resolve(context.Background(), cmd, transcript())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Annotated != cmd {
		t.Fatalf("annotated = %q, want unchanged", got.Annotated)
	}
	if len(got.References) != 0 {
		t.Fatalf("references = %v, want empty", got.References)
	}
}

func TestResolve_NoQuotesSkipsEmbedding(t *testing.T) {
	r := New(mapEmbedder{}, 0, nil)
	got, err := r.Resolve(context.Background(), "cut the first 5 seconds", transcript())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Annotated != "cut the first 5 seconds" {
		t.Fatalf("annotated = %q", got.Annotated)
	}
}

func TestResolve_EmptyTranscript(t *testing.T) {
	r := New(mapEmbedder{}, 0, nil)
	got, err := r.Resolve(context.Background(), `cut "childhood"`, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Annotated != `cut "childhood"` || len(got.References) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestResolve_EmbedErrorPropagates(t *testing.T) {
	r := New(mapEmbedder{}, 0, nil)
	if _, err := r.Resolve(context.Background(), `cut "unknown"`, transcript()); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`cut "a" and 'b'`, []string{"a", "b"}},
		{`"a" then "a" again`, []string{"a"}},
		{`don't cut 'the intro'`, []string{"the intro"}},
		{`it's Bob's 'big moment' ok`, []string{"big moment"}},
		{`unterminated "quote`, nil},
		{`empty "" quotes`, nil},
		{`no quotes at all`, nil},
	}
	for _, tt := range tests {
		got := Extract(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Extract(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
