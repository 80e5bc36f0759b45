package lineage

import (
	"context"
	"errors"
	"fmt"

	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

var (
	ErrAtRoot  = errors.New("already at the original video")
	ErrNoRedo  = errors.New("no later edit to redo")
	ErrTooDeep = errors.New("lineage chain too deep")
)

// maxDepth bounds parent walks so a corrupted store cannot loop forever.
const maxDepth = 10000

// Step is one node of a history chain. Effect is nil for the root.
type Step struct {
	Video  types.Video   `json:"video"`
	Effect *types.Effect `json:"effect,omitempty"`
}

// History returns the chain from the root to id, root first.
func History(ctx context.Context, store ports.VideoStore, id string) ([]Step, error) {
	var rev []Step
	cur := id
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return nil, ErrTooDeep
		}
		v, err := store.Video(ctx, cur)
		if err != nil {
			return nil, err
		}
		step := Step{Video: v}
		if !v.IsRoot() {
			e, err := store.EffectFor(ctx, v.ID)
			if err != nil {
				return nil, fmt.Errorf("history of %s: %w", id, err)
			}
			step.Effect = &e
		}
		rev = append(rev, step)
		if v.IsRoot() {
			break
		}
		cur = v.ParentID
	}
	out := make([]Step, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out, nil
}

// Root returns the original upload id belongs to.
func Root(ctx context.Context, store ports.VideoStore, id string) (types.Video, error) {
	h, err := History(ctx, store, id)
	if err != nil {
		return types.Video{}, err
	}
	return h[0].Video, nil
}

// Undo returns the parent of id.
func Undo(ctx context.Context, store ports.VideoStore, id string) (types.Video, error) {
	v, err := store.Video(ctx, id)
	if err != nil {
		return types.Video{}, err
	}
	if v.IsRoot() {
		return types.Video{}, ErrAtRoot
	}
	return store.Video(ctx, v.ParentID)
}

// Redo returns the most recently created child of id.
func Redo(ctx context.Context, store ports.VideoStore, id string) (types.Video, error) {
	kids, err := store.Children(ctx, id)
	if err != nil {
		return types.Video{}, err
	}
	if len(kids) == 0 {
		return types.Video{}, ErrNoRedo
	}
	return kids[len(kids)-1], nil
}
