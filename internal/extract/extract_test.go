package extract

import (
	"errors"
	"testing"

	"github.com/pavelanni/examgen/internal/apperr"
)

const fence = "```"

func TestCandidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare array", `  [{"id":"1"}]  `, `[{"id":"1"}]`},
		{"json fence", "Here you go:\n" + fence + "json\n[{\"id\":\"1\"}]\n" + fence + "\nThanks!", `[{"id":"1"}]`},
		{"uppercase tag", fence + "JSON\n{\"score\":85}\n" + fence, `{"score":85}`},
		{"untagged fence", fence + "\n{\"score\":85}\n" + fence, `{"score":85}`},
		{"first fence wins", fence + "json\n[1]\n" + fence + " and " + fence + "json\n[2]\n" + fence, `[1]`},
		{"fence without json", fence + "\nhello\n" + fence, fence + "\nhello\n" + fence},
		{"prose", "I cannot do that", "I cannot do that"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Candidate(tt.raw); got != tt.want {
				t.Errorf("Candidate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCandidateIdempotent(t *testing.T) {
	inputs := []string{
		fence + "json\n[{\"id\":\"1\"}]\n" + fence,
		"text " + fence + "\n{\"a\":1}\n" + fence + " more",
		`{"a":1}`,
		"not json",
	}
	for _, in := range inputs {
		once := Candidate(in)
		if twice := Candidate(once); twice != once {
			t.Errorf("Candidate not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestExam(t *testing.T) {
	raw := fence + `json
[
  {"id": 1, "question": "2+2?", "options": ["3", 4, "5", "6"], "answer": 4,
   "rubric": {"Excelente": "Correct", "Aceptable": "Close", "Insuficiente": {"min": 0}}},
  {"id": "2", "question": "Capital of France?", "answer": "Paris"}
]
` + fence

	qs, err := Exam(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	q := qs[0]
	if q.ID != "1" || q.Answer != "4" {
		t.Errorf("coercion failed: id=%q answer=%q", q.ID, q.Answer)
	}
	if len(q.Options) != 4 || q.Options[1] != "4" {
		t.Errorf("options = %v", q.Options)
	}
	if q.Rubric["Excelente"] != "Correct" || q.Rubric["Insuficiente"] != `{"min":0}` {
		t.Errorf("rubric = %v", q.Rubric)
	}
	if qs[1].Options != nil || qs[1].Rubric != nil {
		t.Errorf("absent fields should stay nil: %+v", qs[1])
	}
}

func TestExamErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", "Sorry, I can't help with that.", apperr.ErrParse},
		{"truncated", `[{"id":"1","question":"q"`, apperr.ErrParse},
		{"object instead of array", `{"id":"1","question":"q","answer":"a"}`, apperr.ErrValidation},
		{"missing answer", `[{"id":"1","question":"q","answer":"a"},{"id":"2","question":"q"}]`, apperr.ErrValidation},
		{"missing id", `[{"question":"q","answer":"a"}]`, apperr.ErrValidation},
		{"empty question", `[{"id":"1","question":"","answer":"a"}]`, apperr.ErrValidation},
		{"item not object", `["just text"]`, apperr.ErrValidation},
		{"options not array", `[{"id":"1","question":"q","answer":"a","options":"A,B"}]`, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Exam(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Exam() error = %v, want kind %v", err, apperr.KindOf(tt.want))
			}
		})
	}
}

func TestExamParseErrorKeepsRaw(t *testing.T) {
	raw := "definitely not json"
	_, err := Exam(raw)
	if got := apperr.RawOf(err); got != raw {
		t.Errorf("RawOf() = %q, want %q", got, raw)
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantFB    string
	}{
		{"number", `{"score": 85, "feedback": "Good"}`, 85, "Good"},
		{"fenced", fence + "json\n{\"score\": 72.5, \"feedback\": \"Bien\"}\n" + fence, 72.5, "Bien"},
		{"numeric string", `{"score": "85", "feedback": "Good"}`, 85, "Good"},
		{"bounds", `{"score": 0, "feedback": "No"}`, 0, "No"},
		{"upper bound", `{"score": 100, "feedback": "Perfect"}`, 100, "Perfect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Grade(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tt.wantScore || got.Feedback != tt.wantFB {
				t.Errorf("Grade() = %+v", got)
			}
		})
	}
}

func TestGradeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"prose", "The answer is good.", apperr.ErrParse},
		{"array", `[85, "Good"]`, apperr.ErrValidation},
		{"missing feedback", `{"score": 85}`, apperr.ErrValidation},
		{"missing score", `{"feedback": "Good"}`, apperr.ErrValidation},
		{"score word", `{"score": "high", "feedback": "Good"}`, apperr.ErrValidation},
		{"score too high", `{"score": 120, "feedback": "Good"}`, apperr.ErrValidation},
		{"negative score", `{"score": -1, "feedback": "Good"}`, apperr.ErrValidation},
		{"feedback not string", `{"score": 85, "feedback": 3}`, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Grade(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Grade() error = %v, want kind %v", err, apperr.KindOf(tt.want))
			}
		})
	}
}
