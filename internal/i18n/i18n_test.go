package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "ErrGenerate"); got != "Error generando el examen" {
		t.Errorf("T(ErrGenerate) = %q", got)
	}
	if got := T(ctx, "AnswerSheet"); got != "Hoja de respuestas" {
		t.Errorf("T(AnswerSheet) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "ErrGrade"); got != "Error grading the answer" {
		t.Errorf("T(ErrGrade) = %q", got)
	}
	if got := T(ctx, "GeneratedBy"); got != "Generated by ExamGen AI" {
		t.Errorf("T(GeneratedBy) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsGenerated", 1); got != "1 question generated" {
		t.Errorf("Tp(1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsGenerated", 5); got != "5 questions generated" {
		t.Errorf("Tp(5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrInvalidRequest", map[string]any{"Detail": "topic is required"})
	if got != "Invalid request: topic is required" {
		t.Errorf("Td(ErrInvalidRequest) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLangFallsBackToDefault(t *testing.T) {
	initLang(t, "es")

	tests := []struct {
		lang string
		want string
	}{
		{"es", "Examen"},
		{"en", "Exam"},
		{"en-GB", "Exam"},
		{"fr", "Examen"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			if got := Lang(tt.lang, "ExamTitle"); got != tt.want {
				t.Errorf("Lang(%q) = %q, want %q", tt.lang, got, tt.want)
			}
		})
	}
}

func TestMiddlewareNegotiatesAcceptLanguage(t *testing.T) {
	initLang(t, "es")

	var got string
	h := Middleware("es")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrNotFound")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Not found" {
		t.Errorf("with en header: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "No encontrado" {
		t.Errorf("without header: %q", got)
	}
}
