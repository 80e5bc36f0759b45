package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/nledit/internal/domain/semantic"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
)

// Fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ports.VideoStore and ports.TranscriptStore.
type Store struct {
	db *sql.DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db.conn}
}

func (s *Store) CreateRoot(ctx context.Context, v types.Video) error {
	if v.ParentID != "" {
		return fmt.Errorf("root video %s must not have a parent", v.ID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, title, file_path, duration, parent_id, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, v.ID, v.Title, v.FilePath, v.Duration, fmtTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert video %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) Video(ctx context.Context, id string) (types.Video, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, file_path, duration, parent_id, created_at
		FROM videos WHERE id = ?
	`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Video{}, fmt.Errorf("video %s: %w", id, ports.ErrNotFound)
	}
	return v, err
}

// Commit inserts the child video and its effect in one transaction.
func (s *Store) Commit(ctx context.Context, v types.Video, e types.Effect) (err error) {
	if v.ParentID == "" {
		return fmt.Errorf("derived video %s needs a parent", v.ID)
	}
	if e.VideoID != v.ID {
		return fmt.Errorf("effect %s belongs to %s, not %s", e.ID, e.VideoID, v.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var parent int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE id = ?`, v.ParentID).Scan(&parent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("parent %s: %w", v.ParentID, ports.ErrNotFound)
		}
		return err
	}
	if e.IdempotencyKey != "" {
		var dup int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM effects WHERE idempotency_key = ?`, e.IdempotencyKey).Scan(&dup)
		if err == nil {
			return ports.ErrDuplicateKey
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO videos (id, title, file_path, duration, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.Title, v.FilePath, v.Duration, v.ParentID, fmtTime(v.CreatedAt)); err != nil {
		return fmt.Errorf("insert video %s: %w", v.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO effects (id, video_id, type, start_sec, end_sec, factor, text, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.VideoID, string(e.Type), nullFloat(e.Start), nullFloat(e.End), nullFloat(e.Factor),
		nullText(e.Text), e.Reason, nullString(e.IdempotencyKey), fmtTime(e.CreatedAt)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: effects.idempotency_key") {
			return ports.ErrDuplicateKey
		}
		return fmt.Errorf("insert effect %s: %w", e.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) EffectFor(ctx context.Context, videoID string) (types.Effect, error) {
	e, err := scanEffect(s.db.QueryRowContext(ctx, effectSelect+` WHERE video_id = ?`, videoID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Effect{}, fmt.Errorf("effect for %s: %w", videoID, ports.ErrNotFound)
	}
	return e, err
}

func (s *Store) EffectByKey(ctx context.Context, key string) (types.Effect, error) {
	e, err := scanEffect(s.db.QueryRowContext(ctx, effectSelect+` WHERE idempotency_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Effect{}, fmt.Errorf("effect with key %q: %w", key, ports.ErrNotFound)
	}
	return e, err
}

func (s *Store) Children(ctx context.Context, id string) ([]types.Video, error) {
	if _, err := s.Video(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, file_path, duration, parent_id, created_at
		FROM videos WHERE parent_id = ? ORDER BY created_at ASC, rowid ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveSegments replaces the transcript of videoID.
func (s *Store) SaveSegments(ctx context.Context, videoID string, segs []types.TranscriptSegment) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE video_id = ?`, videoID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcripts (video_id, idx, sentence, start_sec, end_sec, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, seg := range segs {
		var emb []byte
		if len(seg.Embedding) > 0 {
			emb = semantic.EncodeVector(seg.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, videoID, i, seg.Sentence, seg.Start, seg.End, emb); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Segments(ctx context.Context, videoID string) ([]types.TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sentence, start_sec, end_sec, embedding
		FROM transcripts WHERE video_id = ? ORDER BY start_sec ASC, idx ASC
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.TranscriptSegment
	for rows.Next() {
		var seg types.TranscriptSegment
		var emb []byte
		if err := rows.Scan(&seg.Sentence, &seg.Start, &seg.End, &emb); err != nil {
			return nil, err
		}
		if len(emb) > 0 {
			if seg.Embedding, err = semantic.DecodeVector(emb); err != nil {
				return nil, fmt.Errorf("segment at %.2fs: %w", seg.Start, err)
			}
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

const effectSelect = `
	SELECT id, video_id, type, start_sec, end_sec, factor, text, reason, idempotency_key, created_at
	FROM effects`

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (types.Video, error) {
	var v types.Video
	var parent sql.NullString
	var createdAt string
	if err := row.Scan(&v.ID, &v.Title, &v.FilePath, &v.Duration, &parent, &createdAt); err != nil {
		return types.Video{}, err
	}
	v.ParentID = parent.String
	v.CreatedAt = parseTime(createdAt)
	return v, nil
}

func scanEffect(row scanner) (types.Effect, error) {
	var e types.Effect
	var typ, createdAt string
	var start, end, factor sql.NullFloat64
	var text, key sql.NullString
	if err := row.Scan(&e.ID, &e.VideoID, &typ, &start, &end, &factor, &text, &e.Reason, &key, &createdAt); err != nil {
		return types.Effect{}, err
	}
	e.Type = types.ActionKind(typ)
	e.Start = floatPtr(start)
	e.End = floatPtr(end)
	e.Factor = floatPtr(factor)
	if text.Valid {
		t := text.String
		e.Text = &t
	}
	e.IdempotencyKey = key.String
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullText(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
