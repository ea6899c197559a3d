// Package retention removes generated documents and completion logs past
// their age limit.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examgen/internal/storage"
	"github.com/pavelanni/examgen/internal/store"
)

// Registry is the document and completion log.
type Registry interface {
	DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]store.DocumentRecord, error)
	DeleteDocument(ctx context.Context, filename string) error
	PruneCompletions(cutoff time.Time) (int64, error)
}

// Observer counts pruned documents by kind.
type Observer interface {
	DocumentsPruned(kind string, n int)
}

// Result summarises one prune pass.
type Result struct {
	Documents   int
	Completions int64
}

// Pruner deletes stored files and their registry rows.
type Pruner struct {
	registry Registry
	storage  storage.Store
	observer Observer
	now      func() time.Time
}

// New returns a Pruner. observer may be nil.
func New(registry Registry, st storage.Store, observer Observer) *Pruner {
	return &Pruner{registry: registry, storage: st, observer: observer, now: time.Now}
}

// Prune removes everything created more than maxAge ago. A file that is
// already gone still has its row removed; any other storage error keeps
// the row so the next pass retries.
func (p *Pruner) Prune(ctx context.Context, maxAge time.Duration) (Result, error) {
	cutoff := p.now().Add(-maxAge)
	docs, err := p.registry.DocumentsOlderThan(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("list expired documents: %w", err)
	}

	var res Result
	byKind := map[string]int{}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.storage.Delete(ctx, d.Filename); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "failed to delete document", "filename", d.Filename, "error", err)
			continue
		}
		if err := p.registry.DeleteDocument(ctx, d.Filename); err != nil {
			return res, fmt.Errorf("delete document %s: %w", d.Filename, err)
		}
		res.Documents++
		byKind[string(d.Kind)]++
	}
	if p.observer != nil {
		for kind, n := range byKind {
			p.observer.DocumentsPruned(kind, n)
		}
	}

	n, err := p.registry.PruneCompletions(cutoff)
	if err != nil {
		return res, fmt.Errorf("prune completions: %w", err)
	}
	res.Completions = n

	slog.InfoContext(ctx, "retention pass complete", "documents", res.Documents, "completions", res.Completions, "cutoff", cutoff)
	return res, nil
}

// Run prunes every interval until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Prune(ctx, maxAge); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "retention pass failed", "error", err)
			}
		}
	}
}
