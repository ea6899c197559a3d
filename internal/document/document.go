// Package document assembles generated exams and answer keys into
// downloadable DOCX or PDF files.
package document

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/storage"
	"github.com/pavelanni/examgen/internal/store"
)

// Registry records rendered documents.
type Registry interface {
	InsertDocument(ctx context.Context, d store.DocumentRecord) error
}

// Renderer writes documents to storage and records them in the registry.
type Renderer struct {
	storage  storage.Store
	registry Registry
	now      func() time.Time
}

// NewRenderer returns a Renderer. registry may be nil.
func NewRenderer(st storage.Store, registry Registry) *Renderer {
	return &Renderer{storage: st, registry: registry, now: time.Now}
}

// RenderExam renders a normalised exam in the given format.
func (r *Renderer) RenderExam(ctx context.Context, exam model.Exam, format model.Format) (model.Document, error) {
	return r.render(ctx, "generate", model.KindExam, format, examPage(exam), store.DocumentRecord{
		Language:      exam.Meta.Language,
		Course:        exam.Meta.Course,
		Topic:         exam.Meta.Topic,
		QuestionCount: len(exam.Questions),
	})
}

// RenderAnswerKey renders one "id. answer" line per item, in input order.
func (r *Renderer) RenderAnswerKey(ctx context.Context, items []model.AnswerKeyItem, lang string, format model.Format) (model.Document, error) {
	const op = "generate-key"
	clean := make([]model.AnswerKeyItem, len(items))
	for i, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		it.Answer = strings.TrimSpace(it.Answer)
		if it.ID == "" {
			return model.Document{}, apperr.Validation(op, "item %d: missing id", i)
		}
		if it.Answer == "" {
			return model.Document{}, apperr.Validation(op, "item %d: missing answer", i)
		}
		clean[i] = it
	}
	return r.render(ctx, op, model.KindAnswerKey, format, answerKeyPage(clean, lang), store.DocumentRecord{
		Language:      lang,
		QuestionCount: len(clean),
	})
}

func (r *Renderer) render(ctx context.Context, op string, kind model.DocumentKind, format model.Format, p page, rec store.DocumentRecord) (model.Document, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case model.FormatDOCX:
		err = writeDOCX(&buf, p)
	case model.FormatPDF:
		bad, cerr := unsupportedRune(p)
		if cerr != nil {
			return model.Document{}, apperr.IO(op, cerr)
		}
		if bad != 0 {
			return model.Document{}, apperr.Validation(op, "PDF output cannot render %q (U+%04X); request docx instead", bad, bad)
		}
		err = writePDF(&buf, p)
	default:
		return model.Document{}, apperr.Validation(op, "unsupported document format %q", format)
	}
	if err != nil {
		return model.Document{}, apperr.IO(op, fmt.Errorf("render %s: %w", format, err))
	}

	doc := model.Document{
		Filename:  NewFilename(kind, format),
		Kind:      kind,
		Format:    format,
		Size:      int64(buf.Len()),
		CreatedAt: r.now().UTC(),
	}
	if err := r.storage.Put(ctx, doc.Filename, bytes.NewReader(buf.Bytes()), doc.Size, format.ContentType()); err != nil {
		return model.Document{}, apperr.IO(op, fmt.Errorf("store %s: %w", doc.Filename, err))
	}

	if r.registry != nil {
		rec.Document = doc
		if err := r.registry.InsertDocument(context.WithoutCancel(ctx), rec); err != nil {
			slog.WarnContext(ctx, "failed to register document", "filename", doc.Filename, "error", err)
		}
	}
	slog.InfoContext(ctx, "document rendered", "filename", doc.Filename, "kind", kind, "size", doc.Size)
	return doc, nil
}

// NewFilename returns "<kind>_<32 hex>.<ext>" built from a random UUID.
func NewFilename(kind model.DocumentKind, format model.Format) string {
	id := uuid.New()
	return string(kind) + "_" + hex.EncodeToString(id[:]) + "." + format.Ext()
}
