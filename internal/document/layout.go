package document

import (
	"fmt"

	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

type style int

const (
	styleBody style = iota
	styleHeading
	styleOption
	styleBlank
)

type line struct {
	text  string
	style style
}

// page is a format-neutral document: a title plus styled lines.
type page struct {
	title string
	lines []line
}

func examPage(exam model.Exam) page {
	lang := exam.Meta.Language
	title := fmt.Sprintf("%s – %s", i18n.Lang(lang, "ExamTitle"), exam.Meta.Course)
	p := page{title: title}
	p.add(styleHeading, title)
	p.add(styleBody, i18n.Lang(lang, "Topic")+": "+exam.Meta.Topic)
	p.add(styleBody, i18n.Lang(lang, "Objectives")+": "+exam.Meta.Objectives)
	p.add(styleBlank, "")

	for _, q := range exam.Questions {
		p.add(styleBody, q.ID+". "+q.Question)
		for i, opt := range q.Options {
			p.add(styleOption, fmt.Sprintf("%c) %s", 'A'+i, opt))
		}
	}

	p.add(styleBlank, "")
	p.add(styleBody, "---")
	p.add(styleBody, i18n.Lang(lang, "GeneratedBy"))
	return p
}

func answerKeyPage(items []model.AnswerKeyItem, lang string) page {
	title := i18n.Lang(lang, "AnswerSheet")
	p := page{title: title}
	p.add(styleHeading, title)
	for _, it := range items {
		p.add(styleBody, it.ID+". "+it.Answer)
	}
	return p
}

func (p *page) add(s style, text string) {
	p.lines = append(p.lines, line{text: text, style: s})
}
