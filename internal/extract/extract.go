// Package extract turns raw model output into validated values.
//
// Models often wrap JSON in Markdown fences or surround it with prose. The
// first fenced JSON block wins; otherwise the whole reply is parsed.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/model"
)

var fenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")

// Candidate returns the JSON text to parse from a raw model reply: the
// content of the first fenced block, or the trimmed reply.
func Candidate(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// decode parses the candidate keeping numbers as json.Number.
func decode(op, raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(Candidate(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Parse(op, raw, err)
	}
	if dec.More() {
		return nil, apperr.Parse(op, raw, fmt.Errorf("unexpected data after JSON value"))
	}
	return v, nil
}

// Exam extracts a question list. Every item must carry an id, question and
// answer; one bad item fails the whole batch.
func Exam(raw string) ([]model.ExamQuestion, error) {
	const op = "generate"
	v, err := decode(op, raw)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, apperr.Validation(op, "expected a JSON array of questions, got %s", kindName(v))
	}

	out := make([]model.ExamQuestion, 0, len(items))
	for i, item := range items {
		if err := validate(questionSchema, item); err != nil {
			return nil, apperr.Validation(op, "item %d: %v", i, err)
		}
		obj := item.(map[string]any)
		q := model.ExamQuestion{
			ID:       scalar(obj["id"]),
			Question: scalar(obj["question"]),
			Answer:   scalar(obj["answer"]),
		}
		if opts, ok := obj["options"].([]any); ok {
			q.Options = make([]string, len(opts))
			for j, o := range opts {
				q.Options[j] = scalar(o)
			}
		}
		if rubric, ok := obj["rubric"].(map[string]any); ok {
			q.Rubric = make(map[string]string, len(rubric))
			for level, criteria := range rubric {
				q.Rubric[level] = text(criteria)
			}
		}
		out = append(out, q)
	}
	return out, nil
}

// Grade extracts a grading result. The score may be a number or a numeric
// string and must lie in [0, 100].
func Grade(raw string) (model.GradingResult, error) {
	const op = "grade"
	v, err := decode(op, raw)
	if err != nil {
		return model.GradingResult{}, err
	}
	if _, ok := v.(map[string]any); !ok {
		return model.GradingResult{}, apperr.Validation(op, "expected a JSON object, got %s", kindName(v))
	}
	if err := validate(gradeSchema, v); err != nil {
		return model.GradingResult{}, apperr.Validation(op, "%v", err)
	}
	obj := v.(map[string]any)

	score, err := strconv.ParseFloat(strings.TrimSpace(scalar(obj["score"])), 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return model.GradingResult{}, apperr.Validation(op, "score %q is not a number", scalar(obj["score"]))
	}
	if score < 0 || score > 100 {
		return model.GradingResult{}, apperr.Validation(op, "score %v is outside 0-100", score)
	}
	return model.GradingResult{
		Score:    score,
		Feedback: strings.TrimSpace(obj["feedback"].(string)),
	}, nil
}

// scalar renders a decoded string, number or boolean as text.
func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return text(v)
}

// text renders any decoded value, re-encoding non-strings as JSON.
func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}

func kindName(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return "null"
}
