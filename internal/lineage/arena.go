// Package lineage keeps the version tree of videos: every edit produces a new
// child node, nodes are never mutated.
package lineage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

// Arena is an in-memory VideoStore and TranscriptStore, selected with
// `store: memory`. Nodes live in a map keyed by id; parent links are ids,
// children are derived.
type Arena struct {
	mu       sync.RWMutex
	videos   map[string]types.Video
	effects  map[string]types.Effect // by video id
	byKey    map[string]string       // idempotency key -> video id
	children map[string][]string
	segments map[string][]types.TranscriptSegment
}

func NewArena() *Arena {
	return &Arena{
		videos:   map[string]types.Video{},
		effects:  map[string]types.Effect{},
		byKey:    map[string]string{},
		children: map[string][]string{},
		segments: map[string][]types.TranscriptSegment{},
	}
}

func (a *Arena) CreateRoot(_ context.Context, v types.Video) error {
	if v.ID == "" {
		return fmt.Errorf("video id is required")
	}
	if v.ParentID != "" {
		return fmt.Errorf("root video %s must not have a parent", v.ID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.videos[v.ID]; ok {
		return fmt.Errorf("video %s already exists", v.ID)
	}
	a.videos[v.ID] = v
	return nil
}

func (a *Arena) Video(_ context.Context, id string) (types.Video, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.videos[id]
	if !ok {
		return types.Video{}, fmt.Errorf("video %s: %w", id, ports.ErrNotFound)
	}
	return v, nil
}

// Commit inserts the child video and its effect under one lock.
func (a *Arena) Commit(_ context.Context, v types.Video, e types.Effect) error {
	if v.ParentID == "" {
		return fmt.Errorf("derived video %s needs a parent", v.ID)
	}
	if e.VideoID != v.ID {
		return fmt.Errorf("effect %s belongs to %s, not %s", e.ID, e.VideoID, v.ID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.videos[v.ParentID]; !ok {
		return fmt.Errorf("parent %s: %w", v.ParentID, ports.ErrNotFound)
	}
	if _, ok := a.videos[v.ID]; ok {
		return fmt.Errorf("video %s already exists", v.ID)
	}
	if e.IdempotencyKey != "" {
		if _, ok := a.byKey[e.IdempotencyKey]; ok {
			return ports.ErrDuplicateKey
		}
		a.byKey[e.IdempotencyKey] = v.ID
	}
	a.videos[v.ID] = v
	a.effects[v.ID] = e
	a.children[v.ParentID] = append(a.children[v.ParentID], v.ID)
	return nil
}

func (a *Arena) EffectFor(_ context.Context, videoID string) (types.Effect, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.effects[videoID]
	if !ok {
		return types.Effect{}, fmt.Errorf("effect for %s: %w", videoID, ports.ErrNotFound)
	}
	return e, nil
}

func (a *Arena) EffectByKey(_ context.Context, key string) (types.Effect, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byKey[key]
	if !ok {
		return types.Effect{}, fmt.Errorf("effect with key %q: %w", key, ports.ErrNotFound)
	}
	return a.effects[id], nil
}

func (a *Arena) Children(_ context.Context, id string) ([]types.Video, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.videos[id]; !ok {
		return nil, fmt.Errorf("video %s: %w", id, ports.ErrNotFound)
	}
	ids := a.children[id]
	out := make([]types.Video, 0, len(ids))
	for _, cid := range ids {
		out = append(out, a.videos[cid])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (a *Arena) SaveSegments(_ context.Context, videoID string, segs []types.TranscriptSegment) error {
	cp := append([]types.TranscriptSegment(nil), segs...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Start < cp[j].Start })
	a.mu.Lock()
	a.segments[videoID] = cp
	a.mu.Unlock()
	return nil
}

// Segments returns the transcript stored for videoID, or nil when none was saved.
func (a *Arena) Segments(_ context.Context, videoID string) ([]types.TranscriptSegment, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]types.TranscriptSegment(nil), a.segments[videoID]...), nil
}
