package lineage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func child(id, parent string, at time.Time, key string) (types.Video, types.Effect) {
	v := types.Video{ID: id, Title: id, FilePath: "/tmp/" + id + ".mp4", Duration: 8, ParentID: parent, CreatedAt: at}
	e := types.NewEffect("e-"+id, id, types.Cut{Start: 0, End: 2, Reason: "Cut first 2 seconds"}, at)
	e.IdempotencyKey = key
	return v, e
}

func seeded(t *testing.T) *Arena {
	t.Helper()
	ctx := context.Background()
	a := NewArena()
	require.NoError(t, a.CreateRoot(ctx, types.Video{ID: "root", Duration: 10, CreatedAt: t0}))
	v, e := child("a", "root", t0.Add(time.Minute), "")
	require.NoError(t, a.Commit(ctx, v, e))
	v, e = child("b", "a", t0.Add(2*time.Minute), "")
	require.NoError(t, a.Commit(ctx, v, e))
	return a
}

func TestHistory_RootFirst(t *testing.T) {
	a := seeded(t)
	h, err := History(context.Background(), a, "b")
	require.NoError(t, err)
	require.Len(t, h, 3)
	require.Equal(t, "root", h[0].Video.ID)
	require.Nil(t, h[0].Effect)
	require.Equal(t, "a", h[1].Video.ID)
	require.Equal(t, types.KindCut, h[1].Effect.Type)
	require.Equal(t, "b", h[2].Video.ID)

	root, err := Root(context.Background(), a, "b")
	require.NoError(t, err)
	require.Equal(t, "root", root.ID)
}

func TestUndoRedo(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	p, err := Undo(ctx, a, "b")
	require.NoError(t, err)
	require.Equal(t, "a", p.ID)

	_, err = Undo(ctx, a, "root")
	require.ErrorIs(t, err, ErrAtRoot)

	v, e := child("a2", "root", t0.Add(5*time.Minute), "")
	require.NoError(t, a.Commit(ctx, v, e))
	next, err := Redo(ctx, a, "root")
	require.NoError(t, err)
	require.Equal(t, "a2", next.ID)

	_, err = Redo(ctx, a, "b")
	require.ErrorIs(t, err, ErrNoRedo)
}

func TestCommit_Rejects(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	v, e := child("orphan", "missing", t0, "")
	require.ErrorIs(t, a.Commit(ctx, v, e), ports.ErrNotFound)

	v, e = child("k1", "root", t0, "req-1")
	require.NoError(t, a.Commit(ctx, v, e))
	v, e = child("k2", "root", t0, "req-1")
	require.ErrorIs(t, a.Commit(ctx, v, e), ports.ErrDuplicateKey)
	_, err := a.Video(ctx, "k2")
	require.ErrorIs(t, err, ports.ErrNotFound)

	got, err := a.EffectByKey(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, "k1", got.VideoID)
}

func TestCommit_ConcurrentChildren(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, e := child(fmt.Sprintf("c%d", i), "root", t0.Add(time.Duration(i)*time.Second), "")
			assert.NoError(t, a.Commit(ctx, v, e))
		}(i)
	}
	wg.Wait()

	kids, err := a.Children(ctx, "root")
	require.NoError(t, err)
	require.Len(t, kids, 21)
	for i := 1; i < len(kids); i++ {
		require.False(t, kids[i].CreatedAt.Before(kids[i-1].CreatedAt))
	}
}

func TestSegments_SortedCopy(t *testing.T) {
	ctx := context.Background()
	a := NewArena()
	in := []types.TranscriptSegment{{Sentence: "b", Start: 5}, {Sentence: "a", Start: 1}}
	require.NoError(t, a.SaveSegments(ctx, "v", in))
	got, err := a.Segments(ctx, "v")
	require.NoError(t, err)
	require.Equal(t, "a", got[0].Sentence)
	got[0].Sentence = "mutated"
	again, _ := a.Segments(ctx, "v")
	require.Equal(t, "a", again[0].Sentence)
}
