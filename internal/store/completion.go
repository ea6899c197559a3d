package store

import (
	"context"

	"github.com/pavelanni/examgen/internal/model"
)

// RecordCompletion appends a row to the completion log.
func (s *Store) RecordCompletion(ctx context.Context, rec model.CompletionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (purpose, provider, model, latency_ms, success, error, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Purpose, rec.Provider, rec.Model, rec.LatencyMs, rec.Success, rec.Error, rec.Response, rec.CreatedAt.UTC(),
	)
	return err
}

// ListCompletions returns the most recent completions, newest first.
func (s *Store) ListCompletions(ctx context.Context, limit int) ([]model.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, purpose, provider, model, latency_ms, success, error, response, created_at
		 FROM completions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []model.CompletionRecord
	for rows.Next() {
		var r model.CompletionRecord
		if err := rows.Scan(&r.ID, &r.Purpose, &r.Provider, &r.Model, &r.LatencyMs, &r.Success, &r.Error, &r.Response, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
