package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

type ActionKind string

const (
	KindCut     ActionKind = "cut"
	KindVolume  ActionKind = "volume"
	KindZoom    ActionKind = "zoom"
	KindCaption ActionKind = "caption"
)

// Kinds lists every action kind in schema order.
var Kinds = []ActionKind{KindCut, KindVolume, KindZoom, KindCaption}

var ErrInvalidAction = errors.New("invalid action")

// Action is a closed set of edits: Cut, Volume, Zoom and Caption.
type Action interface {
	Kind() ActionKind
	// Explain returns the human-readable reason attached to the action.
	Explain() string
	Validate() error
	isAction()
}

// Span is an optional [Start, End] window in seconds.
type Span struct {
	Start float64
	End   float64
}

func (s Span) validate() error {
	if !finite(s.Start) || !finite(s.End) {
		return fmt.Errorf("%w: non-finite range", ErrInvalidAction)
	}
	if s.Start < 0 {
		return fmt.Errorf("%w: start %.3f is negative", ErrInvalidAction, s.Start)
	}
	if s.Start > s.End {
		return fmt.Errorf("%w: start %.3f after end %.3f", ErrInvalidAction, s.Start, s.End)
	}
	return nil
}

type Cut struct {
	Start  float64
	End    float64
	Reason string
}

type Volume struct {
	Factor float64
	Range  *Span
	Reason string
}

type Zoom struct {
	Factor float64
	Range  *Span
	Reason string
}

type Caption struct {
	Text   string
	Start  float64
	Reason string
}

func (Cut) Kind() ActionKind     { return KindCut }
func (Volume) Kind() ActionKind  { return KindVolume }
func (Zoom) Kind() ActionKind    { return KindZoom }
func (Caption) Kind() ActionKind { return KindCaption }

func (a Cut) Explain() string     { return a.Reason }
func (a Volume) Explain() string  { return a.Reason }
func (a Zoom) Explain() string    { return a.Reason }
func (a Caption) Explain() string { return a.Reason }

func (Cut) isAction()     {}
func (Volume) isAction()  {}
func (Zoom) isAction()    {}
func (Caption) isAction() {}

func (a Cut) Validate() error {
	return Span{Start: a.Start, End: a.End}.validate()
}

func (a Volume) Validate() error { return validateFactor(a.Factor, a.Range) }
func (a Zoom) Validate() error   { return validateFactor(a.Factor, a.Range) }

func (a Caption) Validate() error {
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("%w: caption text is empty", ErrInvalidAction)
	}
	if !finite(a.Start) || a.Start < 0 {
		return fmt.Errorf("%w: caption start %.3f is invalid", ErrInvalidAction, a.Start)
	}
	return nil
}

func validateFactor(f float64, r *Span) error {
	if !finite(f) || f <= 0 {
		return fmt.Errorf("%w: factor must be > 0, got %v", ErrInvalidAction, f)
	}
	if r != nil {
		return r.validate()
	}
	return nil
}

func NewCut(start, end float64, reason string) (Cut, error) {
	a := Cut{Start: start, End: end, Reason: reason}
	return a, a.Validate()
}

func NewVolume(factor float64, r *Span, reason string) (Volume, error) {
	a := Volume{Factor: factor, Range: r, Reason: reason}
	return a, a.Validate()
}

func NewZoom(factor float64, r *Span, reason string) (Zoom, error) {
	a := Zoom{Factor: factor, Range: r, Reason: reason}
	return a, a.Validate()
}

func NewCaption(text string, start float64, reason string) (Caption, error) {
	a := Caption{Text: text, Start: start, Reason: reason}
	return a, a.Validate()
}

// Window reports the time window an action touches, if it has one.
// Caption windows are open-ended and report only a start.
func Window(a Action) (start, end float64, ok bool) {
	switch x := a.(type) {
	case Cut:
		return x.Start, x.End, true
	case Volume:
		if x.Range != nil {
			return x.Range.Start, x.Range.End, true
		}
	case Zoom:
		if x.Range != nil {
			return x.Range.Start, x.Range.End, true
		}
	case Caption:
		return x.Start, x.Start, true
	}
	return 0, 0, false
}

// ActionJSON is the wire shape shared with the planner schema and the HTTP API.
type ActionJSON struct {
	Action   string   `json:"action"`
	StartSec *float64 `json:"start_sec,omitempty"`
	EndSec   *float64 `json:"end_sec,omitempty"`
	Factor   *float64 `json:"factor,omitempty"`
	Text     *string  `json:"text,omitempty"`
	Reason   string   `json:"reason"`
}

func ToJSON(a Action) ActionJSON {
	out := ActionJSON{Action: string(a.Kind()), Reason: a.Explain()}
	switch x := a.(type) {
	case Cut:
		out.StartSec, out.EndSec = ptr(x.Start), ptr(x.End)
	case Volume:
		out.Factor = ptr(x.Factor)
		if x.Range != nil {
			out.StartSec, out.EndSec = ptr(x.Range.Start), ptr(x.Range.End)
		}
	case Zoom:
		out.Factor = ptr(x.Factor)
		if x.Range != nil {
			out.StartSec, out.EndSec = ptr(x.Range.Start), ptr(x.Range.End)
		}
	case Caption:
		out.StartSec = ptr(x.Start)
		out.Text = ptr(x.Text)
	}
	return out
}

// FromJSON enforces the per-variant required fields and the action invariants.
func FromJSON(j ActionJSON) (Action, error) {
	switch ActionKind(strings.ToLower(strings.TrimSpace(j.Action))) {
	case KindCut:
		if j.StartSec == nil || j.EndSec == nil {
			return nil, fmt.Errorf("%w: cut requires start_sec and end_sec", ErrInvalidAction)
		}
		return NewCut(*j.StartSec, *j.EndSec, j.Reason)
	case KindVolume:
		if j.Factor == nil {
			return nil, fmt.Errorf("%w: volume requires factor", ErrInvalidAction)
		}
		r, err := optionalSpan(j)
		if err != nil {
			return nil, err
		}
		return NewVolume(*j.Factor, r, j.Reason)
	case KindZoom:
		if j.Factor == nil {
			return nil, fmt.Errorf("%w: zoom requires factor", ErrInvalidAction)
		}
		r, err := optionalSpan(j)
		if err != nil {
			return nil, err
		}
		return NewZoom(*j.Factor, r, j.Reason)
	case KindCaption:
		if j.Text == nil || j.StartSec == nil {
			return nil, fmt.Errorf("%w: caption requires text and start_sec", ErrInvalidAction)
		}
		return NewCaption(*j.Text, *j.StartSec, j.Reason)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, j.Action)
	}
}

func MarshalAction(a Action) ([]byte, error) {
	return json.Marshal(ToJSON(a))
}

func UnmarshalAction(b []byte) (Action, error) {
	var j ActionJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return FromJSON(j)
}

func optionalSpan(j ActionJSON) (*Span, error) {
	switch {
	case j.StartSec == nil && j.EndSec == nil:
		return nil, nil
	case j.StartSec != nil && j.EndSec != nil:
		return &Span{Start: *j.StartSec, End: *j.EndSec}, nil
	default:
		return nil, fmt.Errorf("%w: %s range needs both start_sec and end_sec", ErrInvalidAction, j.Action)
	}
}

func ptr[T any](v T) *T { return &v }

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
