package types

import "time"

// Transcript is the raw ASR output (whisper.cpp JSON).
type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// TranscriptSegment is a stored, embedded sentence of a video, ordered by Start.
type TranscriptSegment struct {
	Sentence  string    `json:"sentence"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Video is one immutable version node. ParentID is empty for the uploaded root.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FilePath  string    `json:"file_path"`
	Duration  float64   `json:"duration"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (v Video) IsRoot() bool { return v.ParentID == "" }

// Effect is the audit record of the edit that produced VideoID from its parent.
type Effect struct {
	ID             string     `json:"id"`
	VideoID        string     `json:"video_id"`
	Type           ActionKind `json:"type"`
	Start          *float64   `json:"start,omitempty"`
	End            *float64   `json:"end,omitempty"`
	Factor         *float64   `json:"factor,omitempty"`
	Text           *string    `json:"text,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewEffect records action a as the effect that produced videoID.
func NewEffect(id, videoID string, a Action, at time.Time) Effect {
	j := ToJSON(a)
	return Effect{
		ID:        id,
		VideoID:   videoID,
		Type:      a.Kind(),
		Start:     j.StartSec,
		End:       j.EndSec,
		Factor:    j.Factor,
		Text:      j.Text,
		Reason:    a.Explain(),
		CreatedAt: at,
	}
}

// Action rebuilds the action an effect was recorded from.
func (e Effect) Action() (Action, error) {
	return FromJSON(ActionJSON{
		Action:   string(e.Type),
		StartSec: e.Start,
		EndSec:   e.End,
		Factor:   e.Factor,
		Text:     e.Text,
		Reason:   e.Reason,
	})
}

// ResolvedCommand is a command annotated with transcript timestamps. Never persisted.
type ResolvedCommand struct {
	Original   string
	Annotated  string
	References map[string]float64
}
