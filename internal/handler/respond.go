package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/i18n"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads a single JSON value from a body of at most limit bytes.
// An oversized body yields an *http.MaxBytesError.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperr.Validation("decode", "invalid JSON body: %v", err)
	}
	return nil
}

// rejectBody answers a request whose body could not be decoded.
func (h *Handler) rejectBody(w http.ResponseWriter, r *http.Request, op string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.tooLarge(w, r, op, tooLarge.Limit)
		return
	}
	h.badRequest(w, r, op, err)
}

// badRequest answers a request rejected before the pipeline ran.
func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.InfoContext(r.Context(), "invalid request", "op", op, "error", err)
	detail := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) && e.Msg != "" {
		detail = e.Msg
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: i18n.Td(r.Context(), "ErrInvalidRequest", map[string]any{"Detail": detail}),
	})
}

func (h *Handler) tooLarge(w http.ResponseWriter, r *http.Request, op string, limit int64) {
	slog.InfoContext(r.Context(), "request body too large", "op", op, "limit", limit)
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: i18n.T(r.Context(), "ErrFileTooLarge")})
}

// serverError logs the full failure and sends only a localised generic message.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op, msgID string, err error) {
	attrs := []any{"op", op, "kind", apperr.KindOf(err), "error", err}
	if raw := apperr.RawOf(err); raw != "" {
		attrs = append(attrs, "raw", raw)
	}
	slog.ErrorContext(r.Context(), "request failed", attrs...)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: i18n.T(r.Context(), msgID)})
}
