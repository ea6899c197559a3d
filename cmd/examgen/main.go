package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/examgen/internal/config"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/retention"
	"github.com/pavelanni/examgen/internal/store"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examgen",
		Short:        "AI exam generator and grader",
		Version:      version,
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, pruneCmd(), generateCmd(), documentsCmd(), completionsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	config.RegisterFlags(cmd.Flags())
	addLogFlags(cmd)
	return cmd
}

func pruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete generated documents and completion logs older than a given age",
		RunE:  runPrune,
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().Duration("older-than", 0, "Age limit, e.g. 720h (required)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("older-than")
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an exam and print it as JSON",
		RunE:  runGenerate,
	}
	config.RegisterFlags(cmd.Flags())
	f := cmd.Flags()
	f.String("course", "", "Course name (required)")
	f.String("topic", "", "Exam topic (required)")
	f.String("objectives", "", "Learning objectives (required)")
	f.IntP("num-questions", "n", model.DefaultQuestionCount, "Number of questions")
	f.String("q-type", string(model.QuestionMultipleChoice), "Question type (mcq, open)")
	f.String("output-format", string(model.OutputJSON), "Output (json, docx, pdf, document)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("objectives")
	return cmd
}

// setupLogging installs the default slog logger and returns a function that
// closes the log file, if any.
func setupLogging(cmd *cobra.Command) func() {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if path := v.GetString("log-file"); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, lj)
		closeLog = func() { _ = lj.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeLog
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgen")
	v.AddConfigPath("/etc/examgen")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runPrune(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	olderThan := v.GetDuration("older-than")
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	ctx := cmd.Context()
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	res, err := retention.New(db, st, nil).Prune(ctx, olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d documents and %d completion records\n", res.Documents, res.Completions)
	return nil
}

type generateOutput struct {
	Exam        []model.ExamQuestion `json:"exam"`
	DownloadURL string               `json:"download_url,omitempty"`
	Path        string               `json:"path,omitempty"`
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	req := model.NewGenerationRequest()
	req.Course = v.GetString("course")
	req.Topic = v.GetString("topic")
	req.Objectives = v.GetString("objectives")
	req.NumQuestions = v.GetInt("num-questions")
	req.QuestionType = model.QuestionType(v.GetString("q-type"))
	req.OutputFormat = model.OutputFormat(v.GetString("output-format"))
	req.Language = cfg.Language
	if err := req.Validate(cfg.MaxQuestions); err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.LLMTimeout+time.Minute)
	defer cancel()
	res, err := app.service.Generate(ctx, req)
	if err != nil {
		return err
	}

	out := generateOutput{Exam: res.Exam.Questions}
	if res.Document != nil {
		out.DownloadURL = res.Document.URL()
		if cfg.Storage == config.StorageLocal {
			out.Path = filepath.Join(cfg.GeneratedDir, res.Document.Filename)
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
