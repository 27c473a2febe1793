// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Compile-time interface check.
var _ store.ContentStore = (*ContentStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ContentStore implements store.ContentStore backed by a single SQLite file
// holding the images, tags and embeddings tables.
//
// All writes go through one lazily-begun transaction that stays open until
// Commit, Rollback or Close. Reads are routed through that transaction while
// it is open so callers always observe their own pending writes.
type ContentStore struct {
	mu       sync.Mutex
	db       *sql.DB
	tx       *sql.Tx
	pending  int
	path     string
	readOnly bool
	closed   bool
	logger   *slog.Logger
}

// Option configures a ContentStore.
type Option func(*ContentStore)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *ContentStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewContentStore opens (or creates) the SQLite database at dbPath and
// ensures the schema exists.
func NewContentStore(dbPath string, opts ...Option) (*ContentStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrateContent(db); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "migrating content tables: %w", err)
	}

	return newContentStore(db, dbPath, false, opts), nil
}

// OpenReadOnly opens an existing database without write access. The schema
// is not created; every write operation fails with a read_only error.
func OpenReadOnly(dbPath string, opts ...Option) (*ContentStore, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening read-only db: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	return newContentStore(db, dbPath, true, opts), nil
}

func newContentStore(db *sql.DB, path string, readOnly bool, opts []Option) *ContentStore {
	s := &ContentStore{db: db, path: path, readOnly: readOnly, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func migrateContent(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS images (
	id                TEXT PRIMARY KEY,
	extension         TEXT NOT NULL,
	timestamp         TEXT,
	bytes             BLOB NOT NULL,
	small_bytes       BLOB,
	preview_extension TEXT
);

CREATE TABLE IF NOT EXISTS tags (
	id   TEXT PRIMARY KEY REFERENCES images(id),
	tags TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS embeddings (
	id        TEXT PRIMARY KEY REFERENCES images(id),
	embedding BLOB NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// writer returns the pending transaction, beginning one if needed.
// The caller MUST hold s.mu.
func (s *ContentStore) writer() (*sql.Tx, error) {
	if s.closed {
		return nil, sigilerr.New(sigilerr.CodeStoreClosed, "content store is closed")
	}
	if s.readOnly {
		return nil, sigilerr.New(sigilerr.CodeStoreWriteReadOnly, "content store is opened read-only")
	}
	if s.tx != nil {
		return s.tx, nil
	}
	// The transaction outlives any single call, so it is not bound to a
	// caller's context.
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// reader returns the handle reads should use. The caller MUST hold s.mu.
func (s *ContentStore) reader() (querier, error) {
	if s.closed {
		return nil, sigilerr.New(sigilerr.CodeStoreClosed, "content store is closed")
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.db, nil
}

// InsertImage stores the image row keyed by the hash of its raw bytes.
func (s *ContentStore) InsertImage(ctx context.Context, img store.NewImage) (store.ContentHash, error) {
	if len(img.Raw) == 0 {
		return "", sigilerr.New(sigilerr.CodeStoreImageInsertInvalid, "image bytes are empty")
	}
	hash := store.HashBytes(img.Raw)

	var ts, preview, previewExt any
	if img.Timestamp != nil {
		ts = img.Timestamp.UTC().Format(time.RFC3339)
	}
	if len(img.Preview) > 0 {
		preview = img.Preview
		previewExt = img.PreviewExtension
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.writer()
	if err != nil {
		return "", err
	}

	const q = `INSERT OR IGNORE INTO images (id, extension, timestamp, bytes, small_bytes, preview_extension)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, string(hash), img.Extension, ts, img.Raw, preview, previewExt)
	if err != nil {
		return "", sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "inserting image", sigilerr.FieldHash(string(hash)))
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.pending++
	} else {
		s.logger.Debug("image already stored", "hash", hash)
	}
	return hash, nil
}

// InsertTags replaces the tag set of an existing image.
func (s *ContentStore) InsertTags(ctx context.Context, hash store.ContentHash, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.writer()
	if err != nil {
		return err
	}
	if err := s.upsertTags(ctx, tx, hash, tags); err != nil {
		return err
	}
	s.pending++
	return nil
}

// InsertEmbedding replaces the embedding of an existing image.
func (s *ContentStore) InsertEmbedding(ctx context.Context, hash store.ContentHash, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.writer()
	if err != nil {
		return err
	}
	if err := s.upsertEmbedding(ctx, tx, hash, embedding); err != nil {
		return err
	}
	s.pending++
	return nil
}

// InsertDescriptors writes tags and embedding under a savepoint so a
// failure of either leaves neither behind.
func (s *ContentStore) InsertDescriptors(ctx context.Context, hash store.ContentHash, tags []string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.writer()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT descriptors`); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening savepoint: %w", err)
	}
	rollback := func() {
		_, _ = tx.ExecContext(context.Background(), `ROLLBACK TO descriptors`)
		_, _ = tx.ExecContext(context.Background(), `RELEASE descriptors`)
	}

	if err := s.upsertTags(ctx, tx, hash, tags); err != nil {
		rollback()
		return err
	}
	if err := s.upsertEmbedding(ctx, tx, hash, embedding); err != nil {
		rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `RELEASE descriptors`); err != nil {
		rollback()
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "releasing savepoint: %w", err)
	}
	s.pending += 2
	return nil
}

func (s *ContentStore) upsertTags(ctx context.Context, tx *sql.Tx, hash store.ContentHash, tags []string) error {
	if err := requireImage(ctx, tx, hash); err != nil {
		return err
	}

	set := normalizeTags(tags)
	data, err := json.Marshal(set)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeStoreDescriptorInsertInvalid, "marshalling tags", sigilerr.FieldHash(string(hash)))
	}

	const q = `INSERT INTO tags (id, tags) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET tags = excluded.tags`
	if _, err := tx.ExecContext(ctx, q, string(hash), string(data)); err != nil {
		return classifyWriteError(err, hash, "upserting tags")
	}
	return nil
}

func (s *ContentStore) upsertEmbedding(ctx context.Context, tx *sql.Tx, hash store.ContentHash, embedding []float32) error {
	if len(embedding) == 0 {
		return sigilerr.New(sigilerr.CodeStoreDescriptorInsertInvalid, "embedding is empty", sigilerr.FieldHash(string(hash)))
	}
	if err := requireImage(ctx, tx, hash); err != nil {
		return err
	}

	blob, err := encodeEmbedding(embedding)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeStoreDescriptorInsertInvalid, "serializing embedding", sigilerr.FieldHash(string(hash)))
	}

	const q = `INSERT INTO embeddings (id, embedding) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`
	if _, err := tx.ExecContext(ctx, q, string(hash), blob); err != nil {
		return classifyWriteError(err, hash, "upserting embedding")
	}
	return nil
}

// requireImage fails with a referential violation when hash has no image row.
func requireImage(ctx context.Context, q querier, hash store.ContentHash) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM images WHERE id = ?`, string(hash)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return sigilerr.New(sigilerr.CodeStoreDescriptorReferential,
			"descriptor references an image that is not stored", sigilerr.FieldHash(string(hash)))
	}
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "checking image row", sigilerr.FieldHash(string(hash)))
	}
	return nil
}

func classifyWriteError(err error, hash store.ContentHash, msg string) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return sigilerr.Wrap(err, sigilerr.CodeStoreDescriptorReferential, msg, sigilerr.FieldHash(string(hash)))
	}
	return sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, msg, sigilerr.FieldHash(string(hash)))
}

// normalizeTags returns the sorted, de-duplicated, non-empty tags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// RetrieveImage returns the original bytes of hash.
func (s *ContentStore) RetrieveImage(ctx context.Context, hash store.ContentHash) (store.Blob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.reader()
	if err != nil {
		return store.Blob{}, false, err
	}

	var b store.Blob
	err = q.QueryRowContext(ctx, `SELECT bytes, extension FROM images WHERE id = ?`, string(hash)).Scan(&b.Data, &b.Extension)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Blob{}, false, nil
	}
	if err != nil {
		return store.Blob{}, false, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "retrieving image", sigilerr.FieldHash(string(hash)))
	}
	return b, true, nil
}

// RetrievePreview returns the preview of hash. Data is nil when the image
// was stored without one.
func (s *ContentStore) RetrievePreview(ctx context.Context, hash store.ContentHash) (store.Blob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.reader()
	if err != nil {
		return store.Blob{}, false, err
	}

	var (
		data []byte
		ext  sql.NullString
	)
	err = q.QueryRowContext(ctx, `SELECT small_bytes, preview_extension FROM images WHERE id = ?`, string(hash)).Scan(&data, &ext)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Blob{}, false, nil
	}
	if err != nil {
		return store.Blob{}, false, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "retrieving preview", sigilerr.FieldHash(string(hash)))
	}
	return store.Blob{Data: data, Extension: ext.String}, true, nil
}

// Has reports which rows exist for hash.
func (s *ContentStore) Has(ctx context.Context, hash store.ContentHash) (store.Descriptors, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.reader()
	if err != nil {
		return store.Descriptors{}, err
	}

	const query = `SELECT
	EXISTS(SELECT 1 FROM images WHERE id = ?1),
	EXISTS(SELECT 1 FROM tags WHERE id = ?1),
	EXISTS(SELECT 1 FROM embeddings WHERE id = ?1)`

	var d store.Descriptors
	if err := q.QueryRowContext(ctx, query, string(hash)).Scan(&d.Image, &d.Tags, &d.Embedding); err != nil {
		return store.Descriptors{}, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "checking descriptors", sigilerr.FieldHash(string(hash)))
	}
	return d, nil
}

// Incomplete lists images missing tags or an embedding in ingestion order.
func (s *ContentStore) Incomplete(ctx context.Context, limit int) ([]store.ContentHash, error) {
	if limit <= 0 {
		limit = -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.reader()
	if err != nil {
		return nil, err
	}

	const query = `SELECT i.id FROM images i
LEFT JOIN tags t ON t.id = i.id
LEFT JOIN embeddings e ON e.id = i.id
WHERE t.id IS NULL OR e.id IS NULL
ORDER BY i.rowid
LIMIT ?`

	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "listing incomplete images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.ContentHash
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "scanning incomplete image: %w", err)
		}
		out = append(out, store.ContentHash(id))
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "iterating incomplete images: %w", err)
	}
	return out, nil
}

// BuildSnapshot returns the inner join of tags and embeddings ordered by
// image ingestion order.
func (s *ContentStore) BuildSnapshot(ctx context.Context) (*store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.reader()
	if err != nil {
		return nil, err
	}

	const query = `SELECT i.id, t.tags, e.embedding
FROM images i
JOIN tags t ON t.id = i.id
JOIN embeddings e ON e.id = i.id
ORDER BY i.rowid`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreSnapshotQueryDatabaseFailure, "querying snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := &store.Snapshot{
		IDs:        []store.ContentHash{},
		Tags:       [][]string{},
		Embeddings: [][]float32{},
	}
	for rows.Next() {
		var (
			id      string
			tagJSON string
			blob    []byte
		)
		if err := rows.Scan(&id, &tagJSON, &blob); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeStoreSnapshotQueryDatabaseFailure, "scanning snapshot row: %w", err)
		}

		var tags []string
		if err := json.Unmarshal([]byte(tagJSON), &tags); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeStoreSnapshotQueryDatabaseFailure, "decoding tags", sigilerr.FieldHash(id))
		}
		if tags == nil {
			tags = []string{}
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeStoreSnapshotQueryDatabaseFailure, "decoding embedding", sigilerr.FieldHash(id))
		}

		snap.IDs = append(snap.IDs, store.ContentHash(id))
		snap.Tags = append(snap.Tags, tags)
		snap.Embeddings = append(snap.Embeddings, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreSnapshotQueryDatabaseFailure, "iterating snapshot: %w", err)
	}

	s.logger.Debug("snapshot built", "rows", len(snap.IDs))
	return snap, nil
}

// Commit makes every pending write durable. It is a no-op when nothing is
// pending.
func (s *ContentStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

func (s *ContentStore) commitLocked() error {
	if s.tx == nil {
		return nil
	}
	tx, n := s.tx, s.pending
	s.tx, s.pending = nil, 0
	if err := tx.Commit(); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "committing content store: %w", err)
	}
	s.logger.Debug("content store committed", "writes", n)
	return nil
}

// Rollback discards every pending write.
func (s *ContentStore) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx, n := s.tx, s.pending
	s.tx, s.pending = nil, 0
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "rolling back content store: %w", err)
	}
	s.logger.Debug("content store rolled back", "writes", n)
	return nil
}

// Close commits pending writes and closes the database. Calling Close more
// than once is safe.
func (s *ContentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	commitErr := s.commitLocked()
	s.closed = true
	if err := s.db.Close(); err != nil {
		return sigilerr.Join(commitErr, err)
	}
	return commitErr
}
