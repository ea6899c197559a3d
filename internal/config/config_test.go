package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/model"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	f := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	v := viper.New()
	if err := v.BindPFlags(f); err != nil {
		t.Fatalf("bind flags: %v", err)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EXAMGEN_OPENAI_API_KEY", "")

	c, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"language", c.Language, "es"},
		{"format", c.DefaultFormat, model.FormatDOCX},
		{"max questions", c.MaxQuestions, 50},
		{"max upload", c.MaxUploadBytes, int64(10 << 20)},
		{"max body", c.MaxBodyBytes, int64(1 << 20)},
		{"trust proxy", c.TrustProxy, false},
		{"timeout", c.LLMTimeout, 60 * time.Second},
		{"attempts", c.LLM.Retry.MaxAttempts, 1},
		{"shutdown", c.ShutdownTimeout, 15 * time.Second},
		{"retention", c.Retention, time.Duration(0)},
		{"storage", c.Storage, StorageLocal},
		{"provider", c.LLM.Provider, "openai"},
		{"pipeline lang", c.Pipeline.Language, "es"},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestOpenAIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LLM.OpenAI.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", c.LLM.OpenAI.APIKey)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EXAMGEN_OPENAI_API_KEY", "")

	c, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("Validate = %v, want configuration error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"mock needs no key", []string{"--llm-provider=mock"}, false},
		{"unknown provider", []string{"--llm-provider=llama"}, true},
		{"unknown storage", []string{"--llm-provider=mock", "--storage=s3"}, true},
		{"minio without endpoint", []string{"--llm-provider=mock", "--storage=minio"}, true},
		{"minio", []string{"--llm-provider=mock", "--storage=minio", "--minio-endpoint=localhost:9000"}, false},
		{"negative retries", []string{"--llm-provider=mock", "--llm-retries=-2"}, true},
		{"zero max questions", []string{"--llm-provider=mock", "--max-questions=0"}, true},
		{"rate limit without burst", []string{"--llm-provider=mock", "--rate-burst=0"}, true},
		{"rate limit disabled", []string{"--llm-provider=mock", "--rate-limit=0", "--rate-burst=0"}, false},
		{"retention", []string{"--llm-provider=mock", "--retention=720h"}, false},
		{"zero grade temperature", []string{"--llm-provider=mock", "--grade-temperature=0"}, false},
		{"temperature too high", []string{"--llm-provider=mock", "--generate-temperature=3"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(newViper(t, tt.args...))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			err = c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("error kind = %q, want configuration", apperr.KindOf(err))
			}
		})
	}
}

func TestLoadTemperatures(t *testing.T) {
	c, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := *c.Pipeline.GenerateTemperature; got != 0.7 {
		t.Errorf("default generate temperature = %v", got)
	}
	if got := *c.Pipeline.GradeTemperature; got != 0.2 {
		t.Errorf("default grade temperature = %v", got)
	}

	c, err = Load(newViper(t, "--grade-temperature=0"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := *c.Pipeline.GradeTemperature; got != 0 {
		t.Errorf("grade temperature = %v, want 0", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, args := range [][]string{
		{"--default-format=odt"},
		{"--language=not a tag!"},
	} {
		_, err := Load(newViper(t, args...))
		if !errors.Is(err, apperr.ErrConfiguration) {
			t.Errorf("Load(%v) = %v, want configuration error", args, err)
		}
	}
}

func TestLoadCanonicalisesLanguage(t *testing.T) {
	c, err := Load(newViper(t, "--language=EN-us", "--default-format=pdf", "--llm-model=gpt-4o-mini"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Language != "en-US" {
		t.Errorf("Language = %q", c.Language)
	}
	if c.Pipeline.DefaultFormat != model.FormatPDF {
		t.Errorf("Pipeline.DefaultFormat = %q", c.Pipeline.DefaultFormat)
	}
	if c.LLM.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q", c.LLM.OpenAI.Model)
	}
}
