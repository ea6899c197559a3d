package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: &client, model: DefaultAnthropicModel}
}

func TestAnthropicProvider_VisionBlocks(t *testing.T) {
	var body struct {
		System   []map[string]any `json:"system"`
		Messages []struct {
			Role    string           `json:"role"`
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": "Pregunta 1: B"}},
			"model":       DefaultAnthropicModel,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
		})
	})

	resp, err := p.Complete(context.Background(), Request{
		System: "sys",
		Prompt: "Analyze this photo",
		Image:  &Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Pregunta 1: B" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 80 {
		t.Errorf("total tokens = %d, want 80", resp.Usage.TotalTokens)
	}

	if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
	img := body.Messages[0].Content[0]
	if img["type"] != "image" {
		t.Fatalf("first block type = %v, want image", img["type"])
	}
	src := img["source"].(map[string]any)
	if src["media_type"] != "image/jpeg" || src["data"] != "/9j/" {
		t.Errorf("unexpected image source: %v", src)
	}
	if len(body.System) != 1 {
		t.Errorf("expected system prompt, got %v", body.System)
	}
}

func TestAnthropicProvider_RateLimit(t *testing.T) {
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	})

	_, err := p.Complete(context.Background(), Request{Prompt: "x", MaxTokens: 10})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %T: %v", err, err)
	}
}
