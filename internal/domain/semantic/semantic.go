// Package semantic scores transcript segments against a query embedding.
package semantic

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/forPelevin/nledit/internal/types"
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. Zero vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Normalize returns a unit-norm copy of v. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	n = math.Sqrt(n)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

type Scored struct {
	Index int
	Score float64
}

// Score computes the similarity of query to every segment, in transcript order.
// Segments without an embedding or with a different dimension score -1.
func Score(query []float32, segs []types.TranscriptSegment) []Scored {
	out := make([]Scored, len(segs))
	for i, s := range segs {
		sim, err := Cosine(query, s.Embedding)
		if err != nil || len(s.Embedding) == 0 {
			sim = -1
		}
		out[i] = Scored{Index: i, Score: sim}
	}
	return out
}

// Best returns the highest-scoring segment; ties go to the earliest segment.
func Best(query []float32, segs []types.TranscriptSegment) (Scored, bool) {
	best := Scored{Index: -1, Score: math.Inf(-1)}
	for _, s := range Score(query, segs) {
		if s.Score > best.Score {
			best = s
		}
	}
	return best, best.Index >= 0
}

// TopK returns the k best segments by score (ties by transcript order).
func TopK(query []float32, segs []types.TranscriptSegment, k int) []Scored {
	if k <= 0 || len(segs) == 0 {
		return nil
	}
	scored := Score(query, segs)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// EncodeVector serializes v as little-endian float32 bytes.
func EncodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding: %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
