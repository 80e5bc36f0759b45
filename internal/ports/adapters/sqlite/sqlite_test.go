package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forPelevin/nledit/internal/lineage"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

func openTest(t *testing.T) (*DB, *Store) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nledit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, NewStore(db)
}

func TestOpen_CreatesTables(t *testing.T) {
	db, _ := openTest(t)
	for _, table := range []string{"videos", "effects", "transcripts", "_migrations"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nledit.db")
	db1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(path, nil)
	require.NoError(t, err)
	defer db2.Close()

	var count int
	require.NoError(t, db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count))
	require.Equal(t, 2, count)
}

func TestStore_CommitAndLineage(t *testing.T) {
	ctx := context.Background()
	_, s := openTest(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	root := types.Video{ID: "root", Title: "talk", FilePath: "/v/root.mp4", Duration: 10, CreatedAt: t0}
	require.NoError(t, s.CreateRoot(ctx, root))

	child := types.Video{ID: "c1", Title: "talk", FilePath: "/v/c1.mp4", Duration: 8, ParentID: "root", CreatedAt: t0.Add(time.Second)}
	eff := types.NewEffect("e1", "c1", types.Cut{Start: 0, End: 2, Reason: "Cut first 2 seconds"}, child.CreatedAt)
	eff.IdempotencyKey = "req-1"
	require.NoError(t, s.Commit(ctx, child, eff))

	got, err := s.Video(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "root", got.ParentID)
	require.Equal(t, 8.0, got.Duration)
	require.True(t, got.CreatedAt.Equal(child.CreatedAt))

	gotEff, err := s.EffectFor(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, types.KindCut, gotEff.Type)
	require.Equal(t, 2.0, *gotEff.End)
	require.Nil(t, gotEff.Factor)
	act, err := gotEff.Action()
	require.NoError(t, err)
	require.Equal(t, types.Cut{Start: 0, End: 2, Reason: "Cut first 2 seconds"}, act)

	byKey, err := s.EffectByKey(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, "c1", byKey.VideoID)

	caption := types.NewEffect("e2", "c2", types.Caption{Text: "Hello", Start: 3, Reason: "r"}, t0.Add(2*time.Second))
	require.NoError(t, s.Commit(ctx, types.Video{ID: "c2", FilePath: "/v/c2.mp4", Duration: 10, ParentID: "root", CreatedAt: t0.Add(2 * time.Second)}, caption))

	kids, err := s.Children(ctx, "root")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	require.Equal(t, "c1", kids[0].ID)
	require.Equal(t, "c2", kids[1].ID)

	h, err := lineage.History(ctx, s, "c1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	require.Nil(t, h[0].Effect)
}

func TestStore_CommitRejects(t *testing.T) {
	ctx := context.Background()
	_, s := openTest(t)
	now := time.Now().UTC()
	require.NoError(t, s.CreateRoot(ctx, types.Video{ID: "root", FilePath: "/v/r.mp4", Duration: 10, CreatedAt: now}))

	first := types.NewEffect("e1", "c1", types.Volume{Factor: 2, Reason: "r"}, now)
	first.IdempotencyKey = "k"
	require.NoError(t, s.Commit(ctx, types.Video{ID: "c1", FilePath: "/v/c1.mp4", Duration: 10, ParentID: "root", CreatedAt: now}, first))

	dup := types.NewEffect("e2", "c2", types.Volume{Factor: 2, Reason: "r"}, now)
	dup.IdempotencyKey = "k"
	err := s.Commit(ctx, types.Video{ID: "c2", FilePath: "/v/c2.mp4", Duration: 10, ParentID: "root", CreatedAt: now}, dup)
	require.ErrorIs(t, err, ports.ErrDuplicateKey)
	_, err = s.Video(ctx, "c2")
	require.ErrorIs(t, err, ports.ErrNotFound)

	orphan := types.NewEffect("e3", "c3", types.Volume{Factor: 2, Reason: "r"}, now)
	err = s.Commit(ctx, types.Video{ID: "c3", FilePath: "/v/c3.mp4", Duration: 10, ParentID: "nope", CreatedAt: now}, orphan)
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_Segments(t *testing.T) {
	ctx := context.Background()
	_, s := openTest(t)
	require.NoError(t, s.CreateRoot(ctx, types.Video{ID: "v", FilePath: "/v.mp4", Duration: 60, CreatedAt: time.Now()}))

	in := []types.TranscriptSegment{
		{Sentence: "later", Start: 45, End: 49, Embedding: []float32{0, 1}},
		{Sentence: "earlier", Start: 25, End: 29, Embedding: []float32{1, 0}},
		{Sentence: "no vector", Start: 50, End: 51},
	}
	require.NoError(t, s.SaveSegments(ctx, "v", in))
	require.NoError(t, s.SaveSegments(ctx, "v", in))

	got, err := s.Segments(ctx, "v")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "earlier", got[0].Sentence)
	require.Equal(t, []float32{1, 0}, got[0].Embedding)
	require.Nil(t, got[2].Embedding)

	none, err := s.Segments(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, none)
}
