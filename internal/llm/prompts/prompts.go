// Package prompts builds the instructions sent to the language model.
// Every builder is a pure function of its input.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/pavelanni/examgen/internal/model"
)

// VisionInstruction is sent alongside a photographed exam.
const VisionInstruction = "You are an exam corrector. Analyze this photo, extract questions and answers, and prepare it for scoring. Answer in Spanish."

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

type generationData struct {
	Language       string
	LanguageName   string
	Count          int
	TypeLabel      string
	Course         string
	Topic          string
	Objectives     string
	MultipleChoice bool
	RubricKeys     string
	Example        string
}

type gradingData struct {
	LanguageName string
	Question     string
	Rubric       string
	Answer       string
}

type systemData struct {
	LanguageName string
}

// Generation builds the user prompt for exam generation.
func Generation(req model.ExamGenerationRequest) string {
	mcq := req.QuestionType != model.QuestionOpenEnded
	return execute("generation.txt", generationData{
		Language:       req.Language,
		LanguageName:   LanguageName(req.Language),
		Count:          req.NumQuestions,
		TypeLabel:      req.QuestionType.Label(),
		Course:         req.Course,
		Topic:          req.Topic,
		Objectives:     req.Objectives,
		MultipleChoice: mcq,
		RubricKeys:     rubricKeys(),
		Example:        example(mcq),
	})
}

// GenerationSystem is the system instruction for exam generation.
func GenerationSystem(lang string) string {
	return execute("generation_system.txt", systemData{LanguageName: LanguageName(lang)})
}

// Grading builds the user prompt for grading one answer.
func Grading(req model.GradingRequest) string {
	rubric := strings.TrimSpace(req.Rubric)
	if rubric == "" {
		rubric = "[No rubric provided. Grade on correctness and completeness.]"
	}
	return execute("grading.txt", gradingData{
		LanguageName: LanguageName(req.Language),
		Question:     strings.TrimSpace(req.Question),
		Rubric:       rubric,
		Answer:       sanitizeAnswer(req.StudentAnswer),
	})
}

// GradingSystem is the system instruction for grading.
func GradingSystem(lang string) string {
	return execute("grading_system.txt", systemData{LanguageName: LanguageName(lang)})
}

// LanguageName returns the English name of a language tag, or the tag
// itself when it cannot be parsed.
func LanguageName(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return lang
}

func execute(name string, data any) string {
	var buf bytes.Buffer
	// Templates are embedded and their data types are fixed, so execution
	// cannot fail at run time.
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		panic("prompts: " + name + ": " + err.Error())
	}
	return strings.TrimSpace(buf.String())
}

func rubricKeys() string {
	quoted := make([]string, len(model.RubricLevels))
	for i, l := range model.RubricLevels {
		quoted[i] = strconv.Quote(l)
	}
	return strings.Join(quoted, ", ")
}

func example(mcq bool) string {
	q := model.ExamQuestion{
		ID:       "1",
		Question: "...",
		Answer:   "...",
		Rubric: map[string]string{
			model.RubricExcellent:    "...",
			model.RubricAcceptable:   "...",
			model.RubricInsufficient: "...",
		},
	}
	if mcq {
		q.Options = []string{"...", "...", "...", "..."}
	}
	b, _ := json.MarshalIndent(q, "", "  ")
	return string(b)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
