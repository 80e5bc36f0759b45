package types

import (
	"errors"
	"testing"
	"time"
)

func TestFromJSON_RequiresVariantFields(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		in      ActionJSON
		want    ActionKind
		wantErr bool
	}{
		{"cut ok", ActionJSON{Action: "cut", StartSec: f(1), EndSec: f(2), Reason: "r"}, KindCut, false},
		{"cut missing end", ActionJSON{Action: "cut", StartSec: f(1), Reason: "r"}, "", true},
		{"cut reversed", ActionJSON{Action: "cut", StartSec: f(3), EndSec: f(2)}, "", true},
		{"volume ok", ActionJSON{Action: "volume", Factor: f(2)}, KindVolume, false},
		{"volume zero factor", ActionJSON{Action: "volume", Factor: f(0)}, "", true},
		{"volume half range", ActionJSON{Action: "volume", Factor: f(2), StartSec: f(1)}, "", true},
		{"zoom missing factor", ActionJSON{Action: "zoom"}, "", true},
		{"zoom ranged", ActionJSON{Action: "ZOOM", Factor: f(1.5), StartSec: f(1), EndSec: f(4)}, KindZoom, false},
		{"caption ok", ActionJSON{Action: "caption", Text: s("hi"), StartSec: f(0)}, KindCaption, false},
		{"caption blank", ActionJSON{Action: "caption", Text: s("  "), StartSec: f(0)}, "", true},
		{"caption no start", ActionJSON{Action: "caption", Text: s("hi")}, "", true},
		{"unknown", ActionJSON{Action: "speed"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromJSON(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAction) {
					t.Fatalf("expected ErrInvalidAction, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind() != tt.want {
				t.Fatalf("kind = %s, want %s", got.Kind(), tt.want)
			}
		})
	}
}

func TestUnmarshalAction_WireShape(t *testing.T) {
	a, err := UnmarshalAction([]byte(`{"action":"cut","start_sec":0,"end_sec":5,"reason":"Cut first 5 seconds"}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cut, ok := a.(Cut)
	if !ok {
		t.Fatalf("expected Cut, got %T", a)
	}
	if cut.Start != 0 || cut.End != 5 || cut.Explain() != "Cut first 5 seconds" {
		t.Fatalf("unexpected cut: %+v", cut)
	}

	b, err := MarshalAction(Caption{Text: "Hello", Start: 30, Reason: "r"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"action":"caption","start_sec":30,"text":"Hello","reason":"r"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestEffect_ActionRoundTrip(t *testing.T) {
	src := Volume{Factor: 2, Range: &Span{Start: 1, End: 3}, Reason: "louder"}
	e := NewEffect("e1", "v2", src, time.Unix(0, 0))
	if e.Type != KindVolume || e.VideoID != "v2" || *e.Factor != 2 {
		t.Fatalf("unexpected effect: %+v", e)
	}
	back, err := e.Action()
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	v := back.(Volume)
	if v.Range == nil || v.Range.Start != 1 || v.Range.End != 3 || v.Reason != "louder" {
		t.Fatalf("unexpected volume: %+v", v)
	}
}
