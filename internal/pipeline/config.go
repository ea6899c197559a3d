package pipeline

import "github.com/pavelanni/examgen/internal/model"

// Default sampling parameters per operation.
const (
	DefaultGenerateTemperature = 0.7
	DefaultGenerateMaxTokens   = 1500
	DefaultGradeTemperature    = 0.2
	DefaultGradeMaxTokens      = 300
	DefaultVisionMaxTokens     = 1000
)

// Config holds the per-operation model settings. Empty model names defer to
// the provider's default model. A nil temperature selects the default; zero
// is a valid setting.
type Config struct {
	GenerateModel       string
	GenerateTemperature *float64
	GenerateMaxTokens   int

	GradeModel       string
	GradeTemperature *float64
	GradeMaxTokens   int

	VisionModel     string
	VisionMaxTokens int

	// DefaultFormat is used for answer keys and "document" output.
	DefaultFormat model.Format
	// Language of answer keys.
	Language string
}

func (c Config) withDefaults() Config {
	if c.GenerateTemperature == nil {
		t := DefaultGenerateTemperature
		c.GenerateTemperature = &t
	}
	if c.GenerateMaxTokens == 0 {
		c.GenerateMaxTokens = DefaultGenerateMaxTokens
	}
	if c.GradeTemperature == nil {
		t := DefaultGradeTemperature
		c.GradeTemperature = &t
	}
	if c.GradeMaxTokens == 0 {
		c.GradeMaxTokens = DefaultGradeMaxTokens
	}
	if c.VisionMaxTokens == 0 {
		c.VisionMaxTokens = DefaultVisionMaxTokens
	}
	if c.DefaultFormat == "" {
		c.DefaultFormat = model.FormatDOCX
	}
	if c.Language == "" {
		c.Language = model.DefaultLanguage
	}
	return c
}
