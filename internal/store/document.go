package store

import (
	"context"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// DocumentRecord is a registry row: the document plus what it was built from.
type DocumentRecord struct {
	model.Document
	Language      string `json:"language,omitempty"`
	Course        string `json:"course,omitempty"`
	Topic         string `json:"topic,omitempty"`
	QuestionCount int    `json:"question_count"`
}

// InsertDocument registers a rendered document.
func (s *Store) InsertDocument(ctx context.Context, d DocumentRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (filename, kind, format, size, language, course, topic, question_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Filename, d.Kind, d.Format, d.Size, d.Language, d.Course, d.Topic, d.QuestionCount, d.CreatedAt.UTC(),
	)
	return err
}

const documentColumns = `filename, kind, format, size, language, course, topic, question_count, created_at`

func scanDocument(row interface{ Scan(...any) error }) (DocumentRecord, error) {
	var d DocumentRecord
	err := row.Scan(&d.Filename, &d.Kind, &d.Format, &d.Size, &d.Language, &d.Course, &d.Topic, &d.QuestionCount, &d.CreatedAt)
	return d, err
}

// GetDocument returns a registry row by filename. It returns sql.ErrNoRows
// when the document is unknown.
func (s *Store) GetDocument(ctx context.Context, filename string) (DocumentRecord, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE filename = ?`, filename))
}

// ListDocuments returns the most recent documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]DocumentRecord, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, filename LIMIT ?`, limit)
}

// DocumentsOlderThan returns documents created before cutoff, oldest first.
func (s *Store) DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]DocumentRecord, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE created_at < ? ORDER BY created_at`, cutoff.UTC())
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []DocumentRecord
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a registry row. Unknown filenames are not an error.
func (s *Store) DeleteDocument(ctx context.Context, filename string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE filename = ?`, filename)
	return err
}

// DocumentCount returns the number of registered documents.
func (s *Store) DocumentCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}
