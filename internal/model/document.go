package model

import "time"

// DocumentKind distinguishes full exams from answer keys.
type DocumentKind string

const (
	KindExam      DocumentKind = "exam"
	KindAnswerKey DocumentKind = "answer_key"
)

// Format is a rendered document format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a document format name.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatDOCX, FormatPDF:
		return Format(s), true
	}
	return "", false
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// Document is a rendered file, referenced by its opaque filename.
type Document struct {
	Filename  string       `json:"filename"`
	Kind      DocumentKind `json:"kind"`
	Format    Format       `json:"format"`
	Size      int64        `json:"size"`
	CreatedAt time.Time    `json:"created_at"`
}

// URL is the relative download path of the document.
func (d Document) URL() string {
	return "/files/" + d.Filename
}

// CompletionRecord is one logged language-model call.
type CompletionRecord struct {
	ID        int64     `json:"id"`
	Purpose   string    `json:"purpose"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	LatencyMs int64     `json:"latency_ms"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Response  string    `json:"response,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
