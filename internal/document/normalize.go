package document

import (
	"log/slog"
	"strings"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/model"
)

// MaxOptions is the number of options kept per multiple-choice question.
const MaxOptions = 4

// Normalize trims a generated exam and enforces its shape: unique non-empty
// ids, exactly the requested number of questions, and options only where
// the question type calls for them.
func Normalize(exam model.Exam) (model.Exam, error) {
	const op = "generate"
	want := exam.Meta.NumQuestions

	if want > 0 && len(exam.Questions) < want {
		return model.Exam{}, apperr.Validation(op, "model returned %d questions, %d requested", len(exam.Questions), want)
	}
	questions := exam.Questions
	if want > 0 && len(questions) > want {
		slog.Warn("truncating extra questions", "returned", len(questions), "requested", want)
		questions = questions[:want]
	}

	seen := make(map[string]bool, len(questions))
	out := make([]model.ExamQuestion, len(questions))
	for i, q := range questions {
		q.ID = strings.TrimSpace(q.ID)
		q.Question = strings.TrimSpace(q.Question)
		q.Answer = strings.TrimSpace(q.Answer)
		switch {
		case q.ID == "":
			return model.Exam{}, apperr.Validation(op, "item %d: missing id", i)
		case q.Question == "":
			return model.Exam{}, apperr.Validation(op, "item %d: missing question", i)
		case q.Answer == "":
			return model.Exam{}, apperr.Validation(op, "item %d: missing answer", i)
		case seen[q.ID]:
			return model.Exam{}, apperr.Validation(op, "item %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = true

		if exam.Meta.QuestionType == model.QuestionOpenEnded {
			q.Options = nil
		} else {
			q.Options = trimOptions(q.Options)
		}
		out[i] = q
	}

	return model.Exam{Questions: out, Meta: exam.Meta}, nil
}

func trimOptions(opts []string) []string {
	var out []string
	for _, o := range opts {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
		if len(out) == MaxOptions {
			break
		}
	}
	return out
}
