package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the default Store, a single file on local disk.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// sqliteDSN enables WAL for file databases. Transactions take the write
// lock at BEGIN.
func sqliteDSN(path string) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	if path != ":memory:" {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		filename     TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		text         TEXT NOT NULL,
		revision     INTEGER NOT NULL,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS documents_user_hash ON documents (user_id, content_hash);
	CREATE TABLE IF NOT EXISTS revisions (
		doc_id     TEXT NOT NULL,
		number     INTEGER NOT NULL,
		text       TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (doc_id, number)
	)`)
	return err
}

// Fixed-width so that text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func (s *SQLite) Create(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = NewID()
	}
	now := time.Now().UTC()
	doc.Revision = 1
	doc.CreatedAt, doc.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, filename, title, content_hash, text, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Filename, doc.Title, doc.ContentHash, doc.Text,
		doc.Revision, formatTime(now), formatTime(now),
	); err != nil {
		return fmt.Errorf("store: insert document: %w", err)
	}
	if err := insertRevision(ctx, tx, doc.ID, 1, doc.Text, "created", now); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRevision(ctx context.Context, tx *sql.Tx, id string, n int, text, note string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO revisions (doc_id, number, text, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, n, text, note, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("store: insert revision: %w", err)
	}
	return nil
}

const documentColumns = `id, user_id, filename, title, content_hash, text, revision, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var created, updated string
	if err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.Title, &d.ContentHash,
		&d.Text, &d.Revision, &created, &updated); err != nil {
		return nil, err
	}
	d.CreatedAt, d.UpdatedAt = parseTime(created), parseTime(updated)
	return &d, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLite) FindByHash(ctx context.Context, userID, hash string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? AND content_hash = ?
		 ORDER BY created_at LIMIT 1`, userID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("hash", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by hash: %w", err)
	}
	return d, nil
}

func (s *SQLite) List(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		d.Text = ""
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *SQLite) Update(ctx context.Context, id string, expected int, text, note string) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT revision FROM documents WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read revision: %w", err)
	}
	if current != expected {
		return nil, fmt.Errorf("%w: document %s is at revision %d, not %d", ErrConflict, id, current, expected)
	}

	now := time.Now().UTC()
	next := current + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET text = ?, revision = ?, updated_at = ? WHERE id = ?`,
		text, next, formatTime(now), id,
	); err != nil {
		return nil, fmt.Errorf("store: update: %w", err)
	}
	if err := insertRevision(ctx, tx, id, next, text, note, now); err != nil {
		return nil, err
	}

	d, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("store: reload: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return d, nil
}

func (s *SQLite) Revision(ctx context.Context, id string, n int) (*Revision, error) {
	r := Revision{DocID: id, Number: n}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT text, note, created_at FROM revisions WHERE doc_id = ? AND number = ?`, id, n,
	).Scan(&r.Text, &r.Note, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("revision", fmt.Sprintf("%s@%d", id, n))
	}
	if err != nil {
		return nil, fmt.Errorf("store: revision: %w", err)
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("document", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM revisions WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete revisions: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
