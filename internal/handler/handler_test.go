package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/metrics"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/pipeline"
	"github.com/pavelanni/examgen/internal/storage"
)

const docName = "exam_0123456789abcdef0123456789abcdef.docx"

type fakeService struct {
	mu       sync.Mutex
	err      error
	lastGen  model.ExamGenerationRequest
	lastKey  []model.AnswerKeyItem
	images   int
	document bool
}

func (f *fakeService) Generate(_ context.Context, req model.ExamGenerationRequest) (*pipeline.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGen = req
	if f.err != nil {
		return nil, f.err
	}
	res := &pipeline.GenerateResult{Exam: model.Exam{
		Meta:      req,
		Questions: []model.ExamQuestion{{ID: "1", Question: "Q?", Options: []string{"a", "b", "c", "d"}, Answer: "a"}},
	}}
	if f.document {
		res.Document = &model.Document{Filename: docName}
	}
	return res, nil
}

func (f *fakeService) Grade(_ context.Context, _ model.GradingRequest) (model.GradingResult, error) {
	if f.err != nil {
		return model.GradingResult{}, f.err
	}
	return model.GradingResult{Score: 85, Feedback: "Good"}, nil
}

func (f *fakeService) AnalyzeImage(_ context.Context, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images++
	if f.err != nil {
		return "", f.err
	}
	return "Pregunta 1", nil
}

func (f *fakeService) GenerateKey(_ context.Context, items []model.AnswerKeyItem) (model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = items
	if f.err != nil {
		return model.Document{}, f.err
	}
	return model.Document{Filename: "answer_key_0123456789abcdef0123456789abcdef.docx"}, nil
}

type testServer struct {
	svc    *fakeService
	files  *storage.Local
	static string
	router http.Handler
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	static := t.TempDir()

	cfg := Config{
		StaticDir:      static,
		LangDir:        filepath.Join(static, "lang"),
		Language:       "es",
		MaxQuestions:   50,
		MaxUploadBytes: 1024,
		CORSOrigins:    []string{"*"},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := &fakeService{}
	h := New(Deps{Service: svc, Files: files, Metrics: metrics.New()}, cfg)
	return &testServer{svc: svc, files: files, static: static, router: h.Router(ctx)}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "exam.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGenerate(t *testing.T) {
	s := newTestServer(t)
	s.svc.document = true

	rec := s.do(t, postJSON("/generate", `{"course":"Bio","topic":"Cells","objectives":"Organelles","n_questions":1,"q_type":"multiple-choice","output_format":"docx"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Exam, 1)
	assert.Equal(t, "/files/"+docName, body.DownloadURL)
	assert.Equal(t, model.QuestionMultipleChoice, s.svc.lastGen.QuestionType)
	assert.Equal(t, "es", s.svc.lastGen.Language)
}

func TestGenerateStructuredOmitsDownloadURL(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, postJSON("/generate", `{"course":"Bio","topic":"Cells","objectives":"Organelles"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "download_url")
	assert.Equal(t, model.DefaultQuestionCount, s.svc.lastGen.NumQuestions)
}

func TestGenerateBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"course":`},
		{"missing course", `{"topic":"t","objectives":"o"}`},
		{"too many questions", `{"course":"c","topic":"t","objectives":"o","n_questions":51}`},
		{"zero questions", `{"course":"c","topic":"t","objectives":"o","n_questions":0}`},
		{"unknown type", `{"course":"c","topic":"t","objectives":"o","q_type":"essay"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, postJSON("/generate", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.True(t, strings.HasPrefix(errorBody(t, rec), "Solicitud inválida"), rec.Body.String())
		})
	}
}

func TestGenerateFailureIsGeneric(t *testing.T) {
	s := newTestServer(t)
	s.svc.err = apperr.Parse("generate", "secret raw output", errors.New("invalid character"))

	rec := s.do(t, postJSON("/generate", `{"course":"c","topic":"t","objectives":"o"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error generando el examen", errorBody(t, rec))
	assert.NotContains(t, rec.Body.String(), "secret")

	req := postJSON("/generate", `{"course":"c","topic":"t","objectives":"o"}`)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	rec = s.do(t, req)
	assert.Equal(t, "Error generating the exam", errorBody(t, rec))
}

func TestGrade(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, postJSON("/grade", `{"question":"q","rubric":"r","student_answer":"a"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"score":85,"feedback":"Good"}`, rec.Body.String())

	rec = s.do(t, postJSON("/grade", `{"question":"q","student_answer":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.svc.err = apperr.Upstream("grade", errors.New("boom"))
	rec = s.do(t, postJSON("/grade", `{"question":"q","student_answer":"a"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error al calificar", errorBody(t, rec))
}

func TestAnalyzeImage(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, uploadRequest(t, "file", pngHeader))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"result":"Pregunta 1"}`, rec.Body.String())
}

func TestAnalyzeImageRejections(t *testing.T) {
	tests := []struct {
		name  string
		field string
		data  []byte
		want  int
	}{
		{"too large", "file", append(pngHeader, bytes.Repeat([]byte{0}, 2048)...), http.StatusRequestEntityTooLarge},
		{"empty", "file", nil, http.StatusBadRequest},
		{"not an image", "file", []byte("plain text answers"), http.StatusBadRequest},
		{"wrong field", "photo", pngHeader, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, uploadRequest(t, tt.field, tt.data))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Zero(t, s.svc.images)
		})
	}
}

func TestGenerateKey(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, postJSON("/generate-key", `[{"id":1,"answer":"A","question":"ignored"},{"id":"2","answer":true}]`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"download_url":"/files/answer_key_0123456789abcdef0123456789abcdef.docx"}`, rec.Body.String())
	assert.Equal(t, []model.AnswerKeyItem{{ID: "1", Answer: "A"}, {ID: "2", Answer: "true"}}, s.svc.lastKey)

	rec = s.do(t, postJSON("/generate-key", `{"id":1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.svc.err = apperr.IO("generate-key", errors.New("disk full"))
	rec = s.do(t, postJSON("/generate-key", `[{"id":"1","answer":"A"}]`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error al generar gabarito", errorBody(t, rec))
}

func TestFiles(t *testing.T) {
	s := newTestServer(t)
	content := []byte("PK fake docx")
	require.NoError(t, s.files.Put(context.Background(), docName, bytes.NewReader(content), int64(len(content)), ""))

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/files/"+docName, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), docName)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	for _, path := range []string{
		"/files/exam_ffffffffffffffffffffffffffffffff.docx",
		"/files/..%2f..%2fetc%2fpasswd",
		"/files/exam_0123.docx",
		"/files/EXAM_0123456789abcdef0123456789abcdef.docx",
		"/files/exam_0123456789abcdef0123456789abcdef.exe",
	} {
		rec := s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestIndexAndStatic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No encontrado")

	require.NoError(t, os.WriteFile(filepath.Join(s.static, "index.html"), []byte("<h1>ExamGen</h1>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.static, "lang"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.static, "lang", "es.json"), []byte(`{"title":"ExamGen"}`), 0o644))

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>ExamGen</h1>", rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/static/lang/es.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/lang/es.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/grade", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := s.do(t, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	first := s.do(t, postJSON("/grade", `{"question":"q","student_answer":"a"}`))
	assert.Equal(t, http.StatusOK, first.Code)

	second := s.do(t, postJSON("/grade", `{"question":"q","student_answer":"a"}`))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// GET routes are not limited.
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	for i, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		req := postJSON("/grade", `{"question":"q","student_answer":"a"}`)
		req.Header.Set("X-Forwarded-For", ip)
		rec := s.do(t, req)
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		assert.Equal(t, want, rec.Code, "request %d from %s", i, ip)
	}
}

func TestRateLimitTrustedProxy(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
		c.TrustProxy = true
	})

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		req := postJSON("/grade", `{"question":"q","student_answer":"a"}`)
		req.Header.Set("X-Forwarded-For", ip)
		assert.Equal(t, http.StatusOK, s.do(t, req).Code, "first request from %s", ip)
	}
}

func TestJSONBodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.MaxBodyBytes = 64 })

	big := `{"question":"q","student_answer":"` + strings.Repeat("a", 200) + `"}`
	for _, path := range []string{"/generate", "/grade", "/generate-key"} {
		body := big
		if path == "/generate-key" {
			body = `[{"id":"Q1","answer":"` + strings.Repeat("A", 200) + `"}]`
		}
		rec := s.do(t, postJSON(path, body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, path)
		assert.NotEmpty(t, errorBody(t, rec), path)
	}

	rec := s.do(t, postJSON("/grade", `{"question":"q","student_answer":"a"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `examgen_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
