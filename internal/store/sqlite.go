// Package store persists uploaded documents and finished summaries in a
// local SQLite file using the pure-Go modernc driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgallion1/studykit/internal/document"
)

var ErrNotFound = errors.New("store: not found")

// DocumentMeta is the listing view of a stored document.
type DocumentMeta struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	Pages       int       `json:"pages"`
	Words       int       `json:"words"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is a cached summarization result. Variant identifies the options
// it was produced with.
type Summary struct {
	ContentHash   string    `json:"content_hash"`
	Variant       string    `json:"variant"`
	Text          string    `json:"text"`
	Chunks        int       `json:"chunks"`
	Aggregated    bool      `json:"aggregated"`
	ProcessTimeMs int64     `json:"process_time_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and its tables.
// All access goes through one connection so concurrent writers never see
// SQLITE_BUSY.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("sqlite store opened", "path", path)
	return s, nil
}

// Init creates the schema. It is safe to call more than once.
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			filename TEXT NOT NULL,
			pages TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			word_count INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			content_hash TEXT NOT NULL,
			variant TEXT NOT NULL,
			text TEXT NOT NULL,
			chunks INTEGER NOT NULL,
			aggregated INTEGER NOT NULL,
			process_time_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (content_hash, variant)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutDocument inserts or replaces doc. doc.ID must be set.
func (s *Store) PutDocument(ctx context.Context, doc *document.Document) (DocumentMeta, error) {
	if doc.ID == "" {
		return DocumentMeta{}, errors.New("store: document id is empty")
	}
	pages, err := json.Marshal(doc.Pages)
	if err != nil {
		return DocumentMeta{}, fmt.Errorf("marshal pages: %w", err)
	}
	meta := DocumentMeta{
		ID:          doc.ID,
		Title:       doc.Title,
		Filename:    doc.Filename,
		Pages:       len(doc.Pages),
		Words:       doc.WordCount(),
		ContentHash: doc.ContentHash(),
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, title, filename, pages, page_count, word_count, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Title, meta.Filename, string(pages), meta.Pages, meta.Words, meta.ContentHash, meta.CreatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("insert document failed", "id", doc.ID, "error", err)
		return DocumentMeta{}, fmt.Errorf("insert document: %w", err)
	}
	return meta, nil
}

// GetDocument loads a document with all of its pages.
func (s *Store) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var (
		doc   document.Document
		pages string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, filename, pages FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Filename, &pages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if err := json.Unmarshal([]byte(pages), &doc.Pages); err != nil {
		return nil, fmt.Errorf("decode pages of %s: %w", id, err)
	}
	return &doc, nil
}

// ListDocuments returns documents newest first. A non-positive limit lists all.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]DocumentMeta, error) {
	query := `SELECT id, title, filename, page_count, word_count, content_hash, created_at
		FROM documents ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentMeta{}
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, m)
	}
	return docs, rows.Err()
}

// FindByHash returns the most recent document with the given content hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (DocumentMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, filename, page_count, word_count, content_hash, created_at
		 FROM documents WHERE content_hash = ? ORDER BY created_at DESC LIMIT 1`, hash)
	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentMeta{}, ErrNotFound
	}
	return m, err
}

// DeleteDocument removes a document. Cached summaries stay, since another
// document may share the content hash.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PutSummary caches a summary, replacing any earlier one for the same key.
func (s *Store) PutSummary(ctx context.Context, sum Summary) error {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summaries (content_hash, variant, text, chunks, aggregated, process_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ContentHash, sum.Variant, sum.Text, sum.Chunks, sum.Aggregated, sum.ProcessTimeMs, sum.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// GetSummary looks up a cached summary.
func (s *Store) GetSummary(ctx context.Context, hash, variant string) (Summary, error) {
	var (
		sum       Summary
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, variant, text, chunks, aggregated, process_time_ms, created_at
		 FROM summaries WHERE content_hash = ? AND variant = ?`, hash, variant,
	).Scan(&sum.ContentHash, &sum.Variant, &sum.Text, &sum.Chunks, &sum.Aggregated, &sum.ProcessTimeMs, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("get summary: %w", err)
	}
	sum.CreatedAt = time.UnixMilli(createdAt).UTC()
	return sum, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeta(row scanner) (DocumentMeta, error) {
	var (
		m         DocumentMeta
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Filename, &m.Pages, &m.Words, &m.ContentHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentMeta{}, err
		}
		return DocumentMeta{}, fmt.Errorf("scan document: %w", err)
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return m, nil
}
