// Package pipeline runs the exam operations end to end: prompt, completion,
// extraction, validation and, where requested, document rendering.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/document"
	"github.com/pavelanni/examgen/internal/extract"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

var tracer = otel.Tracer("github.com/pavelanni/examgen/internal/pipeline")

// Completer is the subset of llm.Gateway the pipeline needs.
type Completer interface {
	CompleteText(ctx context.Context, req llm.TextRequest) (string, error)
	CompleteVision(ctx context.Context, req llm.VisionRequest) (string, error)
}

// Renderer writes exams and answer keys to storage.
type Renderer interface {
	RenderExam(ctx context.Context, exam model.Exam, format model.Format) (model.Document, error)
	RenderAnswerKey(ctx context.Context, items []model.AnswerKeyItem, lang string, format model.Format) (model.Document, error)
}

// Service runs the four exam operations.
type Service struct {
	llm      Completer
	renderer Renderer
	cfg      Config
}

// New returns a Service. Zero fields in cfg take their defaults.
func New(c Completer, r Renderer, cfg Config) *Service {
	return &Service{llm: c, renderer: r, cfg: cfg.withDefaults()}
}

// GenerateResult is an exam plus, for document output, its download reference.
type GenerateResult struct {
	Exam     model.Exam
	Document *model.Document
}

// Generate produces an exam from a validated request. One invalid question
// fails the whole request.
func (s *Service) Generate(ctx context.Context, req model.ExamGenerationRequest) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Generate", trace.WithAttributes(
		attribute.Int("exam.questions", req.NumQuestions),
		attribute.String("exam.type", string(req.QuestionType)),
		attribute.String("exam.language", req.Language),
	))
	defer span.End()

	raw, err := s.llm.CompleteText(ctx, llm.TextRequest{
		System:      prompts.GenerationSystem(req.Language),
		Prompt:      prompts.Generation(req),
		Model:       s.cfg.GenerateModel,
		Temperature: *s.cfg.GenerateTemperature,
		MaxTokens:   s.cfg.GenerateMaxTokens,
		Purpose:     llm.PurposeGenerate,
	})
	if err != nil {
		return nil, fail(span, err)
	}

	questions, err := extract.Exam(raw)
	if err != nil {
		return nil, fail(span, err)
	}
	exam, err := document.Normalize(model.Exam{Questions: questions, Meta: req})
	if err != nil {
		return nil, fail(span, err)
	}

	result := &GenerateResult{Exam: exam}
	if format, ok := req.OutputFormat.DocumentFormat(s.cfg.DefaultFormat); ok {
		doc, err := s.renderer.RenderExam(ctx, exam, format)
		if err != nil {
			return nil, fail(span, err)
		}
		result.Document = &doc
		span.SetAttributes(attribute.String("document.filename", doc.Filename))
	}

	slog.InfoContext(ctx, "exam generated", "questions", len(exam.Questions), "course", req.Course)
	return result, nil
}

// Grade scores a student answer against a rubric.
func (s *Service) Grade(ctx context.Context, req model.GradingRequest) (model.GradingResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Grade", trace.WithAttributes(
		attribute.String("grade.language", req.Language),
	))
	defer span.End()

	raw, err := s.llm.CompleteText(ctx, llm.TextRequest{
		System:      prompts.GradingSystem(req.Language),
		Prompt:      prompts.Grading(req),
		Model:       s.cfg.GradeModel,
		Temperature: *s.cfg.GradeTemperature,
		MaxTokens:   s.cfg.GradeMaxTokens,
		Purpose:     llm.PurposeGrade,
		Cacheable:   true,
		Accept: func(text string) error {
			_, err := extract.Grade(text)
			return err
		},
	})
	if err != nil {
		return model.GradingResult{}, fail(span, err)
	}

	result, err := extract.Grade(raw)
	if err != nil {
		return model.GradingResult{}, fail(span, err)
	}
	span.SetAttributes(attribute.Float64("grade.score", result.Score))
	return result, nil
}

// AnalyzeImage sends a photographed exam to the vision model and returns its
// reply as plain text.
func (s *Service) AnalyzeImage(ctx context.Context, data []byte) (string, error) {
	const op = "analyze-image"
	ctx, span := tracer.Start(ctx, "pipeline.AnalyzeImage", trace.WithAttributes(
		attribute.Int("image.bytes", len(data)),
	))
	defer span.End()

	mime, err := DetectImageType(data)
	if err != nil {
		return "", fail(span, err)
	}
	span.SetAttributes(attribute.String("image.mime", mime))

	raw, err := s.llm.CompleteVision(ctx, llm.VisionRequest{
		Instruction: prompts.VisionInstruction,
		Image:       data,
		MIMEType:    mime,
		Model:       s.cfg.VisionModel,
		MaxTokens:   s.cfg.VisionMaxTokens,
	})
	if err != nil {
		return "", fail(span, err)
	}
	slog.DebugContext(ctx, "image analyzed", "op", op, "mime", mime)
	return strings.TrimSpace(raw), nil
}

// GenerateKey renders an answer key in the configured format and language.
func (s *Service) GenerateKey(ctx context.Context, items []model.AnswerKeyItem) (model.Document, error) {
	const op = "generate-key"
	ctx, span := tracer.Start(ctx, "pipeline.GenerateKey", trace.WithAttributes(
		attribute.Int("key.items", len(items)),
	))
	defer span.End()

	if len(items) == 0 {
		return model.Document{}, fail(span, apperr.Validation(op, "answer key needs at least one item"))
	}
	doc, err := s.renderer.RenderAnswerKey(ctx, items, s.cfg.Language, s.cfg.DefaultFormat)
	if err != nil {
		return model.Document{}, fail(span, err)
	}
	return doc, nil
}

// DetectImageType sniffs the MIME type of an upload. Unrecognised binary data
// is assumed to be JPEG; anything identified as a non-image type is rejected.
func DetectImageType(data []byte) (string, error) {
	const op = "analyze-image"
	if len(data) == 0 {
		return "", apperr.Validation(op, "empty upload")
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return mime, nil
	case mime == "application/octet-stream":
		return "image/jpeg", nil
	}
	return "", apperr.Validation(op, "upload is %s, not an image", mime)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	return err
}
