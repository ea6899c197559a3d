package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// CompletionRecorder persists a log row per completion.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, rec model.CompletionRecord) error
}

// LoggingProvider is a decorator that logs every completion and, when a
// recorder is set, stores it.
type LoggingProvider struct {
	inner    Provider
	recorder CompletionRecorder
}

// WithLogging wraps a Provider with completion logging. recorder may be nil.
func WithLogging(p Provider, recorder CompletionRecorder) Provider {
	return &LoggingProvider{inner: p, recorder: recorder}
}

func (l *LoggingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Complete(ctx, req)
	latency := time.Since(start)

	rec := model.CompletionRecord{
		Purpose:   req.Purpose,
		Provider:  l.inner.Name(),
		Model:     req.Model,
		LatencyMs: latency.Milliseconds(),
		Success:   err == nil,
		CreatedAt: start.UTC(),
	}
	if resp != nil {
		rec.Response = resp.Text
		if resp.Model != "" {
			rec.Model = resp.Model
		}
	}

	if err != nil {
		rec.Error = err.Error()
		slog.WarnContext(ctx, "completion failed",
			"purpose", req.Purpose, "provider", rec.Provider, "model", rec.Model,
			"latency", latency, "error", err)
	} else {
		slog.InfoContext(ctx, "completion",
			"purpose", req.Purpose, "provider", rec.Provider, "model", rec.Model,
			"latency", latency, "input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)
		slog.DebugContext(ctx, "completion text", "purpose", req.Purpose, "raw", resp.Text)
	}

	if l.recorder != nil {
		// A failed log write never fails the completion.
		if logErr := l.recorder.RecordCompletion(context.WithoutCancel(ctx), rec); logErr != nil {
			slog.WarnContext(ctx, "failed to record completion", "error", logErr)
		}
	}

	return resp, err
}

func (l *LoggingProvider) Name() string { return l.inner.Name() }
