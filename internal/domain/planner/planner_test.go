package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

type fakeCaller struct {
	raw   string
	err   error
	block bool
	got   []ports.FunctionCall
}

func (f *fakeCaller) Call(ctx context.Context, req ports.FunctionCall) (json.RawMessage, error) {
	f.got = append(f.got, req)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.raw), nil
}

type constEmbedder []float32

func (c constEmbedder) Embed(context.Context, string) ([]float32, error) { return c, nil }

func TestPlan_ParsesFunctionArguments(t *testing.T) {
	caller := &fakeCaller{raw: `{"action":"volume","factor":1.5,"start_sec":10,"end_sec":20,"reason":"louder intro"}`}
	p := New(caller, nil, Config{}, nil)

	got, err := p.Plan(context.Background(), types.ResolvedCommand{Original: "make the intro louder", Annotated: "make the intro louder"}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := types.Volume{Factor: 1.5, Range: &types.Span{Start: 10, End: 20}, Reason: "louder intro"}
	if diff := cmp.Diff(types.Action(want), got); diff != "" {
		t.Fatalf("action mismatch (-want +got):\n%s", diff)
	}
	if len(caller.got) != 1 || caller.got[0].Function.Name != FunctionName {
		t.Fatalf("unexpected calls: %+v", caller.got)
	}
}

func TestPlan_SendsAnnotatedCommandAndChronologicalContext(t *testing.T) {
	caller := &fakeCaller{raw: `{"action":"cut","start_sec":25,"end_sec":30,"reason":"r"}`}
	transcript := []types.TranscriptSegment{
		{Sentence: "far", Start: 0, End: 2, Embedding: []float32{0, 1}},
		{Sentence: "second", Start: 40, End: 45, Embedding: []float32{1, 0.2}},
		{Sentence: "first", Start: 25, End: 30.5, Embedding: []float32{1, 0.1}},
	}
	p := New(caller, constEmbedder{1, 0}, Config{TopK: 2}, nil)

	cmd := types.ResolvedCommand{Original: `cut "childhood"`, Annotated: `cut "childhood" [at 25.00s]`}
	if _, err := p.Plan(context.Background(), cmd, transcript); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := "cut \"childhood\" [at 25.00s]\n\nTranscript excerpts:\n25.0-30.5s: first\n40.0-45.0s: second"
	if got := caller.got[0].Prompt; got != want {
		t.Fatalf("prompt = %q, want %q", got, want)
	}
	if !strings.Contains(caller.got[0].System, "video editing command generator") {
		t.Fatalf("system prompt = %q", caller.got[0].System)
	}
}

func TestPlan_Failures(t *testing.T) {
	tests := []struct {
		name   string
		caller *fakeCaller
	}{
		{"refusal", &fakeCaller{err: ports.ErrNoFunctionCall}},
		{"transport", &fakeCaller{err: errors.New("502 bad gateway")}},
		{"unknown action", &fakeCaller{raw: `{"action":"blur","reason":"r"}`}},
		{"cut missing end", &fakeCaller{raw: `{"action":"cut","start_sec":1,"reason":"r"}`}},
		{"volume missing factor", &fakeCaller{raw: `{"action":"volume","reason":"r"}`}},
		{"caption missing text", &fakeCaller{raw: `{"action":"caption","start_sec":3,"reason":"r"}`}},
		{"negative factor", &fakeCaller{raw: `{"action":"zoom","factor":-2,"reason":"r"}`}},
		{"inverted range", &fakeCaller{raw: `{"action":"cut","start_sec":9,"end_sec":3,"reason":"r"}`}},
		{"missing reason", &fakeCaller{raw: `{"action":"cut","start_sec":1,"end_sec":2}`}},
		{"blank reason", &fakeCaller{raw: `{"action":"cut","start_sec":1,"end_sec":2,"reason":"  "}`}},
		{"action outside enum case", &fakeCaller{raw: `{"action":"CUT","start_sec":1,"end_sec":2,"reason":"r"}`}},
		{"not json", &fakeCaller{raw: `cut it`}},
		{"empty", &fakeCaller{raw: ``}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.caller, nil, Config{}, nil)
			_, err := p.Plan(context.Background(), types.ResolvedCommand{Original: "x", Annotated: "x"}, nil)
			if !errors.Is(err, ErrPlanner) {
				t.Fatalf("err = %v, want ErrPlanner", err)
			}
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("err = %T, want *Error", err)
			}
		})
	}
}

func TestPlan_Timeout(t *testing.T) {
	p := New(&fakeCaller{block: true}, nil, Config{Timeout: 10 * time.Millisecond}, nil)
	_, err := p.Plan(context.Background(), types.ResolvedCommand{Original: "x", Annotated: "x"}, nil)
	if !errors.Is(err, ErrPlanner) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&fakeCaller{block: true}, nil, Config{}, nil)
	_, err := p.Plan(ctx, types.ResolvedCommand{Original: "x", Annotated: "x"}, nil)
	if !errors.Is(err, ErrPlanner) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSchema_RequiresActionAndReason(t *testing.T) {
	s := Schema()
	if s.Name != "video_edit" {
		t.Fatalf("name = %q", s.Name)
	}
	if diff := cmp.Diff([]string{"action", "reason"}, s.Parameters["required"]); diff != "" {
		t.Fatalf("required mismatch:\n%s", diff)
	}
	props := s.Parameters["properties"].(map[string]any)
	enum := props["action"].(map[string]any)["enum"]
	if diff := cmp.Diff([]string{"cut", "volume", "zoom", "caption"}, enum); diff != "" {
		t.Fatalf("enum mismatch:\n%s", diff)
	}
}
