package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/examgen/internal/apperr"
)

// Gateway is the single entry point for completions. It bounds each call
// with a deadline and reports every failure as an upstream error.
type Gateway struct {
	provider Provider
	timeout  time.Duration
}

// NewGateway returns a Gateway over p. A zero timeout disables the deadline.
func NewGateway(p Provider, timeout time.Duration) *Gateway {
	return &Gateway{provider: p, timeout: timeout}
}

// TextRequest is a text-only completion.
type TextRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	Purpose     string
	Cacheable   bool
	Accept      func(text string) error
}

// VisionRequest is a completion over a single image.
type VisionRequest struct {
	Instruction string
	Image       []byte
	MIMEType    string
	Model       string
	MaxTokens   int
}

// CompleteText returns the model's raw reply to a text prompt.
func (g *Gateway) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	return g.complete(ctx, Request{
		System:      req.System,
		Prompt:      req.Prompt,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Purpose:     req.Purpose,
		Cacheable:   req.Cacheable,
		Accept:      req.Accept,
	})
}

// CompleteVision returns the model's raw reply to an image and instruction.
func (g *Gateway) CompleteVision(ctx context.Context, req VisionRequest) (string, error) {
	return g.complete(ctx, Request{
		Prompt:    req.Instruction,
		Image:     &Image{Data: req.Image, MIMEType: req.MIMEType},
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Purpose:   PurposeVision,
	})
}

func (g *Gateway) complete(ctx context.Context, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", apperr.Upstream(req.Purpose, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", apperr.Upstream(req.Purpose, ErrEmptyCompletion)
	}
	return resp.Text, nil
}
