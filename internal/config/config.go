// Package config builds the server configuration from flags, environment
// variables and an optional config file.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/apperr"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/pipeline"
	"github.com/pavelanni/examgen/internal/storage"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// Config is everything the server needs, resolved once at startup.
type Config struct {
	Addr         string
	DBPath       string
	GeneratedDir string
	StaticDir    string
	LangDir      string

	Language       string
	DefaultFormat  model.Format
	MaxQuestions   int
	MaxUploadBytes int64
	MaxBodyBytes   int64

	LLM        llm.Config
	LLMTimeout time.Duration
	Pipeline   pipeline.Config

	Storage  string
	MinIO    storage.MinIOConfig
	RedisURL string

	RateLimit   float64
	RateBurst   int
	TrustProxy  bool
	CORSOrigins []string

	ShutdownTimeout   time.Duration
	Retention         time.Duration
	RetentionInterval time.Duration

	TraceExporter string
}

// RegisterFlags adds the serve flags with their defaults.
func RegisterFlags(f *pflag.FlagSet) {
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "examgen.db", "SQLite database path")
	f.String("generated-dir", "generated", "Directory for generated documents (local storage)")
	f.String("static-dir", "static", "Directory served at / and /static")
	f.String("lang-dir", "", "Directory served at /lang (default <static-dir>/lang)")

	f.StringP("language", "l", model.DefaultLanguage, "Default language for documents and messages")
	f.String("default-format", string(model.FormatDOCX), "Document format for answer keys and \"document\" output (docx, pdf)")
	f.Int("max-questions", 50, "Maximum questions per exam")
	f.Int64("max-upload-bytes", 10<<20, "Maximum image upload size in bytes")
	f.Int64("max-body-bytes", 1<<20, "Maximum JSON request body size in bytes")

	f.String("llm-provider", "openai", "LLM provider (openai, anthropic, gemini, mock)")
	f.String("openai-api-key", "", "OpenAI API key (or set OPENAI_API_KEY)")
	f.String("llm-url", "", "OpenAI-compatible API base URL")
	f.String("anthropic-api-key", "", "Anthropic API key")
	f.String("gemini-api-key", "", "Gemini API key")
	f.String("llm-model", "", "Default model (provider default when empty)")
	f.String("generate-model", "", "Model for exam generation")
	f.String("grade-model", "", "Model for grading")
	f.String("vision-model", "", "Model for image analysis")
	f.Float64("generate-temperature", pipeline.DefaultGenerateTemperature, "Sampling temperature for exam generation")
	f.Float64("grade-temperature", pipeline.DefaultGradeTemperature, "Sampling temperature for grading")
	f.Duration("llm-timeout", 60*time.Second, "Per-completion timeout (0 disables)")
	f.Int("llm-retries", 0, "Retries for transient LLM failures")
	f.Duration("cache-ttl", 24*time.Hour, "Lifetime of cached grading completions")

	f.String("storage", StorageLocal, "Document storage (local, minio)")
	f.String("minio-endpoint", "", "MinIO endpoint host:port")
	f.String("minio-access-key", "", "MinIO access key")
	f.String("minio-secret-key", "", "MinIO secret key")
	f.String("minio-bucket", "examgen", "MinIO bucket")
	f.Bool("minio-ssl", false, "Use TLS for MinIO")
	f.String("redis-url", "", "Redis URL for the grading cache (empty disables it)")

	f.Float64("rate-limit", 2, "Requests per second per client IP on POST endpoints (0 disables)")
	f.Int("rate-burst", 10, "Burst size for the per-IP rate limit")
	f.Bool("trust-proxy", false, "Take client IPs from X-Forwarded-For/X-Real-IP (only behind a trusted proxy)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")

	f.Duration("shutdown-timeout", 15*time.Second, "Graceful shutdown timeout")
	f.Duration("retention", 0, "Delete documents older than this (0 keeps them forever)")
	f.Duration("retention-interval", time.Hour, "How often retention runs")
	f.String("trace-exporter", "none", "Trace exporter (none, stdout)")
}

// Load reads a Config from v. OPENAI_API_KEY is honoured alongside the
// prefixed variable.
func Load(v *viper.Viper) (Config, error) {
	_ = v.BindEnv("openai-api-key", "EXAMGEN_OPENAI_API_KEY", "OPENAI_API_KEY")

	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = v.GetInt("llm-retries") + 1

	defaultModel := v.GetString("llm-model")
	c := Config{
		Addr:         v.GetString("addr"),
		DBPath:       v.GetString("db"),
		GeneratedDir: v.GetString("generated-dir"),
		StaticDir:    v.GetString("static-dir"),
		LangDir:      v.GetString("lang-dir"),

		MaxQuestions:   v.GetInt("max-questions"),
		MaxUploadBytes: v.GetInt64("max-upload-bytes"),
		MaxBodyBytes:   v.GetInt64("max-body-bytes"),

		LLM: llm.Config{
			Provider: v.GetString("llm-provider"),
			OpenAI: llm.OpenAIConfig{
				APIKey:  v.GetString("openai-api-key"),
				Model:   defaultModel,
				BaseURL: v.GetString("llm-url"),
			},
			Anthropic: llm.AnthropicConfig{APIKey: v.GetString("anthropic-api-key"), Model: defaultModel},
			Gemini:    llm.GeminiConfig{APIKey: v.GetString("gemini-api-key"), Model: defaultModel},
			Retry:     retry,
			CacheTTL:  v.GetDuration("cache-ttl"),
		},
		LLMTimeout: v.GetDuration("llm-timeout"),

		Storage: v.GetString("storage"),
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("minio-endpoint"),
			AccessKey: v.GetString("minio-access-key"),
			SecretKey: v.GetString("minio-secret-key"),
			Bucket:    v.GetString("minio-bucket"),
			UseSSL:    v.GetBool("minio-ssl"),
		},
		RedisURL: v.GetString("redis-url"),

		RateLimit:   v.GetFloat64("rate-limit"),
		RateBurst:   v.GetInt("rate-burst"),
		TrustProxy:  v.GetBool("trust-proxy"),
		CORSOrigins: v.GetStringSlice("cors-origins"),

		ShutdownTimeout:   v.GetDuration("shutdown-timeout"),
		Retention:         v.GetDuration("retention"),
		RetentionInterval: v.GetDuration("retention-interval"),
		TraceExporter:     v.GetString("trace-exporter"),
	}

	lang, err := model.CanonicalLanguage(v.GetString("language"))
	if err != nil {
		return Config{}, apperr.Configuration("invalid language %q", v.GetString("language"))
	}
	c.Language = lang

	format, ok := model.ParseFormat(v.GetString("default-format"))
	if !ok {
		return Config{}, apperr.Configuration("invalid default-format %q (want docx or pdf)", v.GetString("default-format"))
	}
	c.DefaultFormat = format

	genTemp := v.GetFloat64("generate-temperature")
	gradeTemp := v.GetFloat64("grade-temperature")
	c.Pipeline = pipeline.Config{
		GenerateModel:       v.GetString("generate-model"),
		GenerateTemperature: &genTemp,
		GradeModel:          v.GetString("grade-model"),
		GradeTemperature:    &gradeTemp,
		VisionModel:         v.GetString("vision-model"),
		DefaultFormat:       format,
		Language:            lang,
	}
	return c, nil
}

// Validate reports the first configuration problem, if any.
func (c Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	switch {
	case c.MaxQuestions <= 0:
		return apperr.Configuration("max-questions must be positive")
	case c.MaxUploadBytes <= 0:
		return apperr.Configuration("max-upload-bytes must be positive")
	case c.MaxBodyBytes <= 0:
		return apperr.Configuration("max-body-bytes must be positive")
	case c.LLMTimeout < 0:
		return apperr.Configuration("llm-timeout must not be negative")
	case c.LLM.Retry.MaxAttempts < 1:
		return apperr.Configuration("llm-retries must not be negative")
	case c.RateLimit < 0 || c.RateBurst < 0:
		return apperr.Configuration("rate-limit and rate-burst must not be negative")
	case c.RateLimit > 0 && c.RateBurst == 0:
		return apperr.Configuration("rate-burst must be positive when rate-limit is set")
	case !validTemperature(c.Pipeline.GenerateTemperature) || !validTemperature(c.Pipeline.GradeTemperature):
		return apperr.Configuration("temperatures must be between 0 and 2")
	case c.Retention < 0:
		return apperr.Configuration("retention must not be negative")
	case c.Retention > 0 && c.RetentionInterval <= 0:
		return apperr.Configuration("retention-interval must be positive")
	}
	return nil
}

// ValidateStorage checks only the database and document storage settings.
func (c Config) ValidateStorage() error {
	if c.DBPath == "" {
		return apperr.Configuration("db path is required")
	}
	switch c.Storage {
	case StorageLocal:
		if c.GeneratedDir == "" {
			return apperr.Configuration("generated-dir is required for local storage")
		}
	case StorageMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return apperr.Configuration("minio-endpoint and minio-bucket are required for minio storage")
		}
	default:
		return apperr.Configuration("unknown storage %q (want local or minio)", c.Storage)
	}
	return nil
}

func validTemperature(t *float64) bool {
	return t == nil || (*t >= 0 && *t <= 2)
}
