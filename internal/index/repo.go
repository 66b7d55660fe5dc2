package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notetaker/internal/apperr"
	"github.com/starford/notetaker/internal/models"
)

// ListOptions filters and pages FetchAll.
type ListOptions struct {
	Kind   models.Kind // empty means every kind
	Limit  int
	Offset int
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string      `json:"id"`
	Kind    models.Kind `json:"kind"`
	Title   string      `json:"title"`
	Snippet string      `json:"snippet"`
}

const noteColumns = `id, kind, title, created_at, updated_at, duration_seconds, text_content,
	attachment_ref, attachment_size, attachment_sha256, attachment_file_name, source_url`

// Save inserts or replaces a note and its FTS entry within a transaction.
func (db *DB) Save(ctx context.Context, n *models.Note) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var ref, sum string
	var size int64
	if n.Attachment != nil {
		ref, size, sum = n.Attachment.Ref, n.Attachment.Size, n.Attachment.Checksum
	}

	// kind is deliberately absent from the update list: it never changes.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title                = excluded.title,
			updated_at           = excluded.updated_at,
			duration_seconds     = excluded.duration_seconds,
			text_content         = excluded.text_content,
			attachment_ref       = excluded.attachment_ref,
			attachment_size      = excluded.attachment_size,
			attachment_sha256    = excluded.attachment_sha256,
			attachment_file_name = excluded.attachment_file_name,
			source_url           = excluded.source_url
	`, n.ID, string(n.Kind), n.Title, n.CreatedAt.UTC(), n.UpdatedAt.UTC(), n.DurationSeconds,
		n.TextContent, ref, size, sum, n.AttachmentFileName, n.SourceURL)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.ID, n.Title, n.TextContent); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes a note and its FTS entry.
func (db *DB) Delete(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(id)
	}
	ftsDelete(tx, id)

	return tx.Commit()
}

// Get returns a single note.
func (db *DB) Get(ctx context.Context, id string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// FetchAll returns notes ordered by creation time, newest first, and the
// total number of notes matching the filter.
func (db *DB) FetchAll(ctx context.Context, opts ListOptions) ([]*models.Note, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := ""
	var args []any
	if opts.Kind != "" {
		where = " WHERE kind = ?"
		args = append(args, string(opts.Kind))
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("index: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// AttachmentRefs returns every attachment ref referenced by a note.
func (db *DB) AttachmentRefs(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT attachment_ref, id FROM notes WHERE attachment_ref != ''`)
	if err != nil {
		return nil, fmt.Errorf("index: attachment refs: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var ref, id string
		if err := rows.Scan(&ref, &id); err != nil {
			return nil, err
		}
		out[ref] = id
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n         models.Note
		kind      string
		created   time.Time
		updated   time.Time
		ref, sum  string
		size      int64
	)
	err := s.Scan(&n.ID, &kind, &n.Title, &created, &updated, &n.DurationSeconds, &n.TextContent,
		&ref, &size, &sum, &n.AttachmentFileName, &n.SourceURL)
	if err != nil {
		return nil, err
	}
	n.Kind = models.Kind(kind)
	n.CreatedAt = created.UTC()
	n.UpdatedAt = updated.UTC()
	if ref != "" {
		n.Attachment = &models.Attachment{Ref: ref, Size: size, Checksum: sum}
	}
	return &n, nil
}
