// Package llm talks to language-model backends.
//
// A Provider is one backend. Cross-cutting behaviour (retries, caching,
// logging, metrics) is added by wrapping a Provider in decorators, and the
// Gateway is the single entry point the pipelines use.
package llm

import "context"

// Purposes label a completion for logging, metrics and caching.
const (
	PurposeGenerate = "generate"
	PurposeGrade    = "grade"
	PurposeVision   = "analyze-image"
)

// Provider is a language-model backend.
type Provider interface {
	// Complete sends one prompt, optionally with an image, and returns the
	// model's text reply.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend, e.g. "openai".
	Name() string
}

// Request describes a single completion.
type Request struct {
	System string
	Prompt string
	Image  *Image

	// Model overrides the provider's default model when set.
	Model       string
	Temperature float64
	MaxTokens   int

	// Purpose is one of the Purpose constants.
	Purpose string
	// Cacheable marks requests whose replies may be served from cache.
	Cacheable bool
	// Accept, when set, decides whether a reply may be cached. Rejected
	// replies are returned to the caller but never stored.
	Accept func(text string) error
}

// Image is an inline image attachment.
type Image struct {
	Data     []byte
	MIMEType string
}

// Response holds the model's reply.
type Response struct {
	Text   string
	Model  string
	Usage  Usage
	Cached bool
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
