package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hsinlab/cogscreen/internal/bank"
	"github.com/hsinlab/cogscreen/internal/handler"
	appI18n "github.com/hsinlab/cogscreen/internal/i18n"
	"github.com/hsinlab/cogscreen/internal/judge"
	"github.com/hsinlab/cogscreen/internal/report"
	"github.com/hsinlab/cogscreen/internal/scoring"
	"github.com/hsinlab/cogscreen/internal/store"
	"github.com/hsinlab/cogscreen/internal/transcribe"
)

func main() {
	// Missing .env is fine, environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cogscreen",
		Short: "Voice-driven cognitive screening server (AD8, SPMSQ, MMSE, MoCA)",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), submitCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `cogscreen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP screening server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "cogscreen.db", "SQLite database path")
	f.String("bank-dir", "questions", "Directory with per-instrument question JSON files")
	f.String("upload-dir", "uploads", "Directory for uploaded audio recordings")
	f.String("static-dir", "static", "Directory served under /static")
	f.String("frontend-dir", "frontend", "Directory with the frontend files served at /")
	f.String("report-dir", "reports", "Directory where submitted reports are archived")
	f.String("submit-url", "", "HTTPS endpoint that receives finished reports")
	f.String("openai-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("openai-key", "", "API key (or set COGSCREEN_OPENAI_KEY / OPENAI_API_KEY)")
	f.String("transcribe-model", "whisper-1", "Speech-to-text model name")
	f.String("transcribe-lang", "zh", "Language hint passed to speech-to-text")
	f.String("judge-model", "gpt-4o-mini", "LLM judge model name")
	f.String("judge-variant", string(judge.VariantStrict), "Judge prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "zh-TW", "Report language (zh-TW, en)")
	f.String("timezone", scoring.DefaultTimezone, "Timezone for date-dependent questions")
	f.String("president-current", "", "Default answer for the current-president question")
	f.String("president-previous", "", "Default answer for the previous-president question")
	f.String("ruleset-version", "", "Scoring ruleset version stamped into reports (empty = persisted or dated)")
	f.String("disclaimer", "", "Report disclaimer text (empty = localized default)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all screening sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "cogscreen.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Build a session report and send it to the collection endpoint",
		RunE:  runSubmit,
	}
	f := cmd.Flags()
	f.String("db", "cogscreen.db", "SQLite database path")
	f.String("bank-dir", "questions", "Directory with per-instrument question JSON files")
	f.String("session-id", "", "Session identifier (required)")
	f.String("submit-url", "", "HTTPS endpoint that receives finished reports (required)")
	f.String("report-dir", "", "Archive the report under this directory after submission")
	f.StringP("lang", "l", "zh-TW", "Report language (zh-TW, en)")
	f.String("ruleset-version", "", "Scoring ruleset version stamped into reports")
	f.String("disclaimer", "", "Report disclaimer text (empty = localized default)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("session-id")
	_ = cmd.MarkFlagRequired("submit-url")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("COGSCREEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("cogscreen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/cogscreen")
	v.AddConfigPath("/etc/cogscreen")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openAIKey(v *viper.Viper) string {
	if key := v.GetString("openai-key"); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}

// resolveRulesetVersion returns the version stamped into reports: the flag if
// set, otherwise the persisted value, otherwise a dated default that is then
// persisted so later restarts keep stamping the same version.
func resolveRulesetVersion(db *store.Store, flagValue string) (string, error) {
	if flagValue != "" {
		if err := db.SetMetadata(store.MetaRulesetVersion, flagValue); err != nil {
			return "", err
		}
		return flagValue, nil
	}

	stored, err := db.GetMetadata(store.MetaRulesetVersion)
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}

	version := "ruleset-" + time.Now().Format("2006-01-02")
	if err := db.SetMetadata(store.MetaRulesetVersion, version); err != nil {
		return "", err
	}
	return version, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	questionBank, err := bank.Load(v.GetString("bank-dir"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	slog.Info("question bank loaded", "dir", v.GetString("bank-dir"), "questions", questionBank.Len())

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	rulesetVersion, err := resolveRulesetVersion(db, v.GetString("ruleset-version"))
	if err != nil {
		return fmt.Errorf("resolve ruleset version: %w", err)
	}

	apiKey := openAIKey(v)
	var transcriber handler.Transcriber
	var answerJudge handler.Judge
	if apiKey == "" {
		slog.Warn("no API key configured, transcription and judging disabled")
	} else {
		transcriber = transcribe.New(v.GetString("openai-url"), apiKey,
			v.GetString("transcribe-model"), v.GetString("transcribe-lang"))

		variant := strings.ToLower(strings.TrimSpace(v.GetString("judge-variant")))
		if !judge.IsValidVariant(variant) {
			slog.Warn("invalid judge-variant, using strict", "variant", variant)
			variant = string(judge.VariantStrict)
		}
		j := judge.New(v.GetString("openai-url"), apiKey, v.GetString("judge-model"), judge.Variant(variant))
		if err := j.Ping(context.Background()); err != nil {
			slog.Warn("judge endpoint unreachable, continuing without judge", "error", err)
		} else {
			answerJudge = j
			slog.Info("judge endpoint OK", "model", v.GetString("judge-model"), "variant", variant)
		}
	}

	assembler := report.New(db, questionBank, report.Config{
		RulesetVersion: rulesetVersion,
		Disclaimer:     v.GetString("disclaimer"),
	})

	h := handler.New(db, questionBank, transcriber, answerJudge, assembler, handler.Config{
		UploadDir:   v.GetString("upload-dir"),
		StaticDir:   v.GetString("static-dir"),
		FrontendDir: v.GetString("frontend-dir"),
		ReportDir:   v.GetString("report-dir"),
		SubmitURL:   v.GetString("submit-url"),
		Defaults: scoring.Defaults{
			Timezone:          v.GetString("timezone"),
			PresidentCurrent:  v.GetString("president-current"),
			PresidentPrevious: v.GetString("president-previous"),
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"bank_dir", v.GetString("bank-dir"),
		"lang", lang,
		"ruleset_version", rulesetVersion,
		"transcribe_model", v.GetString("transcribe-model"),
		"judge_model", v.GetString("judge-model"),
		"submit_url", v.GetString("submit-url"),
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bundles, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(bundles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	questionBank, err := bank.Load(v.GetString("bank-dir"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	rulesetVersion, err := resolveRulesetVersion(db, v.GetString("ruleset-version"))
	if err != nil {
		return fmt.Errorf("resolve ruleset version: %w", err)
	}

	assembler := report.New(db, questionBank, report.Config{
		RulesetVersion: rulesetVersion,
		Disclaimer:     v.GetString("disclaimer"),
	})

	ctx := context.Background()
	sessionID := v.GetString("session-id")
	doc, err := assembler.Build(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	if err := report.Submit(ctx, v.GetString("submit-url"), doc); err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	slog.Info("report submitted", "session_id", sessionID, "url", v.GetString("submit-url"))

	if dir := v.GetString("report-dir"); dir != "" {
		path, err := assembler.Archive(doc, dir)
		if err != nil {
			return fmt.Errorf("archive report: %w", err)
		}
		slog.Info("report archived", "path", path)
	}

	return nil
}
