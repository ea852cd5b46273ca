package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/livepaste/livepaste/pkg/snippet"
)

var (
	// ErrNotFound is returned when no live snippet holds the slug.
	ErrNotFound = errors.New("snippet not found or expired")

	// ErrConflict is returned by Insert when a live snippet already holds the slug.
	ErrConflict = errors.New("slug already taken")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snippets (
		id         TEXT PRIMARY KEY,
		slug       TEXT NOT NULL UNIQUE,
		content    TEXT NOT NULL DEFAULT '',
		language   TEXT NOT NULL DEFAULT 'javascript',
		images     TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_expires ON snippets(expires_at)`,
}

// Fields is a partial update. Nil fields are left untouched.
type Fields struct {
	Content  *string
	Language *string
	Images   *[]snippet.Image
}

func (f Fields) empty() bool {
	return f.Content == nil && f.Language == nil && f.Images == nil
}

// Store is the SQLite-backed snippet store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	now    func() time.Time // injectable for deterministic tests
	newID  func() string
	purged atomic.Int64
}

// New wraps db and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("store: migrate: %w", err)
		}
	}
	return &Store{
		db:  db,
		now: time.Now,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the live snippet stored under slug.
func (s *Store) Get(ctx context.Context, slug string) (snippet.Snippet, error) {
	var (
		sn                 snippet.Snippet
		images             string
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT slug, content, language, images, created_at, expires_at
		   FROM snippets WHERE slug = ? AND expires_at > ?`,
		slug, millis(s.now()),
	).Scan(&sn.Slug, &sn.Content, &sn.Language, &images, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snippet.Snippet{}, ErrNotFound
	}
	if err != nil {
		return snippet.Snippet{}, fmt.Errorf("store: get %q: %w", slug, err)
	}

	sn.Images = decodeImages(images)
	sn.CreatedAt = time.UnixMilli(created).UTC()
	sn.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return sn, nil
}

// ExistsLive reports whether a live snippet holds slug.
func (s *Store) ExistsLive(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM snippets WHERE slug = ? AND expires_at > ?)`,
		slug, millis(s.now()),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: exists %q: %w", slug, err)
	}
	return exists, nil
}

// Insert stores a new snippet. An expired row still holding the slug is
// replaced; a live one yields ErrConflict.
func (s *Store) Insert(ctx context.Context, sn snippet.Snippet) error {
	if !sn.ExpiresAt.After(sn.CreatedAt) {
		return fmt.Errorf("store: insert %q: expires_at must be after created_at", sn.Slug)
	}
	if sn.Language == "" {
		sn.Language = snippet.DefaultLanguage
	}
	images, err := encodeImages(sn.Images)
	if err != nil {
		return fmt.Errorf("store: insert %q: %w", sn.Slug, err)
	}

	now := millis(s.now())
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM snippets WHERE slug = ? AND expires_at <= ?`, sn.Slug, now,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, slug, content, language, images, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.newID(), sn.Slug, sn.Content, sn.Language, images,
			millis(sn.CreatedAt), millis(sn.ExpiresAt),
		)
		return err
	})
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert %q: %w", sn.Slug, err)
	}
	return nil
}

// UpdateFields applies a partial update to the live snippet under slug.
func (s *Store) UpdateFields(ctx context.Context, slug string, f Fields) error {
	if f.empty() {
		ok, err := s.ExistsLive(ctx, slug)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	}

	var (
		sets []string
		args []any
	)
	if f.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *f.Content)
	}
	if f.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *f.Language)
	}
	if f.Images != nil {
		images, err := encodeImages(*f.Images)
		if err != nil {
			return fmt.Errorf("store: update %q: %w", slug, err)
		}
		sets = append(sets, "images = ?")
		args = append(args, images)
	}
	args = append(args, slug, millis(s.now()))

	res, err := execRetry(ctx, s.db,
		`UPDATE snippets SET `+strings.Join(sets, ", ")+` WHERE slug = ? AND expires_at > ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("store: update %q: %w", slug, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddImage appends img to the snippet's image list unless an image with the
// same id is already attached.
func (s *Store) AddImage(ctx context.Context, slug string, img snippet.Image) error {
	return s.mutateImages(ctx, slug, func(images []snippet.Image) []snippet.Image {
		return snippet.AppendImage(images, img)
	})
}

// RemoveImage detaches the image with the given id, if present.
func (s *Store) RemoveImage(ctx context.Context, slug, id string) error {
	return s.mutateImages(ctx, slug, func(images []snippet.Image) []snippet.Image {
		return snippet.RemoveImage(images, id)
	})
}

func (s *Store) mutateImages(ctx context.Context, slug string, fn func([]snippet.Image) []snippet.Image) error {
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		now := millis(s.now())
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT images FROM snippets WHERE slug = ? AND expires_at > ?`, slug, now,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		before := decodeImages(raw)
		after := fn(before)
		if len(after) == len(before) && sameIDs(before, after) {
			return nil
		}
		encoded, err := encodeImages(after)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET images = ? WHERE slug = ? AND expires_at > ?`, encoded, slug, now,
		)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: images %q: %w", slug, err)
	}
	return nil
}

// Delete removes the snippet under slug whether live or not. Deleting an
// unknown slug is not an error.
func (s *Store) Delete(ctx context.Context, slug string) error {
	if _, err := execRetry(ctx, s.db, `DELETE FROM snippets WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("store: delete %q: %w", slug, err)
	}
	return nil
}

// PurgeExpired deletes every row whose expires_at is at or before now and
// returns the number removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := execRetry(ctx, s.db, `DELETE FROM snippets WHERE expires_at <= ?`, millis(now))
	if err != nil {
		return 0, fmt.Errorf("store: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	s.purged.Add(n)
	return int(n), nil
}

// Purged returns the total number of rows removed by PurgeExpired since start.
func (s *Store) Purged() int64 {
	return s.purged.Load()
}

// Run starts the background purge loop, deleting expired snippets every
// interval. Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeExpired(ctx, s.now())
			if err != nil {
				slog.Error("store: purge failed", "err", err)
				continue
			}
			slog.Info("store: removed expired snippets", "count", n)
		}
	}
}

// --- helpers ----------------------------------------------------------------

func millis(t time.Time) int64 { return t.UnixMilli() }

// decodeImages parses the images column. A corrupt value reads as no images.
func decodeImages(raw string) []snippet.Image {
	var images []snippet.Image
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return []snippet.Image{}
	}
	if images == nil {
		images = []snippet.Image{}
	}
	return images
}

func encodeImages(images []snippet.Image) (string, error) {
	if images == nil {
		images = []snippet.Image{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(b), nil
}

func sameIDs(a, b []snippet.Image) bool {
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
