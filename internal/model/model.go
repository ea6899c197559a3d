package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/pavelanni/examgen/internal/apperr"
)

// QuestionType selects the kind of questions to generate.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "mcq"
	QuestionOpenEnded      QuestionType = "open"
)

// ParseQuestionType accepts the canonical names and their common aliases.
func ParseQuestionType(s string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mcq", "multiple-choice", "multiple_choice", "multiplechoice":
		return QuestionMultipleChoice, true
	case "open", "open-ended", "open_ended", "openended":
		return QuestionOpenEnded, true
	}
	return "", false
}

// Label is the human-readable name used in prompts.
func (t QuestionType) Label() string {
	if t == QuestionOpenEnded {
		return "open-ended"
	}
	return "multiple-choice"
}

// OutputFormat is the desired output of a generation request.
type OutputFormat string

const (
	OutputJSON     OutputFormat = "json"
	OutputDocument OutputFormat = "document" // configured default document format
	OutputDOCX     OutputFormat = "docx"
	OutputPDF      OutputFormat = "pdf"
)

// ParseOutputFormat accepts the canonical names and their aliases.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "structured-data", "structured_data":
		return OutputJSON, true
	case "document", "doc":
		return OutputDocument, true
	case "docx":
		return OutputDOCX, true
	case "pdf":
		return OutputPDF, true
	}
	return "", false
}

// DocumentFormat resolves the output to a document format. It returns false
// for structured-data output.
func (f OutputFormat) DocumentFormat(def Format) (Format, bool) {
	switch f {
	case OutputDOCX:
		return FormatDOCX, true
	case OutputPDF:
		return FormatPDF, true
	case OutputDocument:
		return def, true
	}
	return "", false
}

// Rubric levels, fixed for every question.
const (
	RubricExcellent    = "Excelente"
	RubricAcceptable   = "Aceptable"
	RubricInsufficient = "Insuficiente"
)

// RubricLevels lists the rubric levels from best to worst.
var RubricLevels = []string{RubricExcellent, RubricAcceptable, RubricInsufficient}

// Defaults applied to requests before decoding.
const (
	DefaultQuestionCount = 10
	DefaultLanguage      = "es"
)

// ExamGenerationRequest is the brief an exam is generated from.
type ExamGenerationRequest struct {
	Course       string       `json:"course"`
	Topic        string       `json:"topic"`
	Objectives   string       `json:"objectives"`
	NumQuestions int          `json:"n_questions"`
	QuestionType QuestionType `json:"q_type"`
	OutputFormat OutputFormat `json:"output_format"`
	Language     string       `json:"language"`
}

// NewGenerationRequest returns a request populated with defaults, meant to be
// decoded into so omitted fields keep their default values.
func NewGenerationRequest() ExamGenerationRequest {
	return ExamGenerationRequest{
		NumQuestions: DefaultQuestionCount,
		QuestionType: QuestionMultipleChoice,
		OutputFormat: OutputJSON,
		Language:     DefaultLanguage,
	}
}

// Validate normalises enum aliases and the language tag and checks invariants.
// maxQuestions <= 0 disables the upper bound.
func (r *ExamGenerationRequest) Validate(maxQuestions int) error {
	const op = "generate"
	r.Course = strings.TrimSpace(r.Course)
	r.Topic = strings.TrimSpace(r.Topic)
	r.Objectives = strings.TrimSpace(r.Objectives)
	switch {
	case r.Course == "":
		return apperr.Validation(op, "course is required")
	case r.Topic == "":
		return apperr.Validation(op, "topic is required")
	case r.Objectives == "":
		return apperr.Validation(op, "objectives are required")
	}
	if r.NumQuestions <= 0 {
		return apperr.Validation(op, "n_questions must be positive, got %d", r.NumQuestions)
	}
	if maxQuestions > 0 && r.NumQuestions > maxQuestions {
		return apperr.Validation(op, "n_questions must be at most %d, got %d", maxQuestions, r.NumQuestions)
	}
	qt, ok := ParseQuestionType(string(r.QuestionType))
	if !ok {
		return apperr.Validation(op, "unknown q_type %q", r.QuestionType)
	}
	r.QuestionType = qt
	of, ok := ParseOutputFormat(string(r.OutputFormat))
	if !ok {
		return apperr.Validation(op, "unknown output_format %q", r.OutputFormat)
	}
	r.OutputFormat = of
	lang, err := CanonicalLanguage(r.Language)
	if err != nil {
		return apperr.Validation(op, "invalid language %q", r.Language)
	}
	r.Language = lang
	return nil
}

// CanonicalLanguage parses an IETF language tag. Empty means the default.
func CanonicalLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLanguage, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// ExamQuestion is one generated question.
type ExamQuestion struct {
	ID       string            `json:"id"`
	Question string            `json:"question"`
	Options  []string          `json:"options,omitempty"`
	Answer   string            `json:"answer"`
	Rubric   map[string]string `json:"rubric,omitempty"`
}

// Exam is a generated question list plus the brief it came from.
type Exam struct {
	Questions []ExamQuestion
	Meta      ExamGenerationRequest
}

// GradingRequest asks for a free-text answer to be scored against a rubric.
type GradingRequest struct {
	Question      string `json:"question"`
	Rubric        string `json:"rubric"`
	StudentAnswer string `json:"student_answer"`
	Language      string `json:"language"`
}

// NewGradingRequest returns a request populated with defaults.
func NewGradingRequest() GradingRequest {
	return GradingRequest{Language: DefaultLanguage}
}

// Validate checks required fields and canonicalises the language.
func (r *GradingRequest) Validate() error {
	const op = "grade"
	if strings.TrimSpace(r.Question) == "" {
		return apperr.Validation(op, "question is required")
	}
	if strings.TrimSpace(r.StudentAnswer) == "" {
		return apperr.Validation(op, "student_answer is required")
	}
	lang, err := CanonicalLanguage(r.Language)
	if err != nil {
		return apperr.Validation(op, "invalid language %q", r.Language)
	}
	r.Language = lang
	return nil
}

// GradingResult is the model's assessment of one answer.
type GradingResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// AnswerKeyItem is the subset of a question the answer key needs. Any other
// fields the client echoes back are ignored.
type AnswerKeyItem struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// UnmarshalJSON accepts numeric and boolean ids and answers.
func (a *AnswerKeyItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	a.ID, _ = ScalarString(fields["id"])
	a.Answer, _ = ScalarString(fields["answer"])
	return nil
}

// ScalarString renders a JSON string, number or boolean as text. It reports
// false for null, objects, arrays and absent values.
func ScalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case 'n', '{', '[':
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}
