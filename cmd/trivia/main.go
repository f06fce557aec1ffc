package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/trivia/internal/assets"
	"github.com/pavelanni/trivia/internal/handler"
	appI18n "github.com/pavelanni/trivia/internal/i18n"
	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/sink"
	"github.com/pavelanni/trivia/internal/stimulus"
	"github.com/pavelanni/trivia/internal/store"
	"github.com/pavelanni/trivia/internal/survey"
)

// defaultContact is the research team address printed on the debrief page.
const defaultContact = "aw3088@columbia.edu"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trivia",
		Short: "True/false trivia survey server",
	}

	serve := serveCmd()
	root.AddCommand(serve, sampleCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `trivia --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addQuotaFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("stimuli", "s", "stimuli.json", "Stimulus corpus file (.json, .yaml)")
	f.Int("n-true", stimulus.DefaultQuota.NTrue, "True statements per session")
	f.Int("n-false", stimulus.DefaultQuota.NFalse, "False statements per session")
	f.Int("n-photo-each", stimulus.DefaultQuota.NPhotoEach, "Statements per truth label shown with a photo")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP survey server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "trivia.db", "SQLite database path")
	f.String("images", "images", "Directory holding stimulus photos")
	f.String("csv-path", "all_responses.csv", "Master CSV that completed sessions are appended to (empty to disable)")
	f.String("sheets-credentials", "", "Google service account credentials file")
	f.String("sheets-spreadsheet-id", "", "Google spreadsheet ID (empty to disable)")
	f.String("sheets-worksheet", sink.DefaultWorksheet, "Worksheet name inside the spreadsheet")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /study)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("contact", defaultContact, "Research team contact shown on the debrief page (empty to hide)")
	addQuotaFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func sampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print one sampled stimulus sequence without starting a server",
		RunE:  runSample,
	}
	cmd.Flags().Uint64("seed", 0, "Random seed (0 = random)")
	addQuotaFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded responses from the session database",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "trivia.db", "SQLite database path")
	f.StringP("format", "f", "csv", "Output format (csv, json, table)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Bool("all", false, "Include sessions that are not complete")
	addLogFlags(cmd)
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

	v.SetEnvPrefix("TRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("trivia")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/trivia")
	v.AddConfigPath("/etc/trivia")
	v.AddConfigPath("/data")
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

func quotaFromConfig(v *viper.Viper) stimulus.Quota {
	return stimulus.Quota{
		NTrue:      v.GetInt("n-true"),
		NFalse:     v.GetInt("n-false"),
		NPhotoEach: v.GetInt("n-photo-each"),
	}
}

// loadPool reads the corpus and checks it can fill a session.
func loadPool(path string, q stimulus.Quota) (*stimulus.Corpus, stimulus.Pool, error) {
	corpus, err := stimulus.Load(path)
	if err != nil {
		return nil, stimulus.Pool{}, fmt.Errorf("load stimuli: %w", err)
	}
	pool, err := stimulus.Partition(corpus.Stimuli, q.NTrue, q.NFalse)
	if err != nil {
		return nil, stimulus.Pool{}, fmt.Errorf("stimuli %s: %w", path, err)
	}
	return corpus, pool, nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	quota := quotaFromConfig(v)
	stimuliPath := v.GetString("stimuli")
	corpus, pool, err := loadPool(stimuliPath, quota)
	if err != nil {
		return err
	}
	if err := recordCorpus(db, model.CorpusInfo{Path: stimuliPath, SHA256: corpus.SHA256, Count: len(corpus.Stimuli)}); err != nil {
		return fmt.Errorf("record corpus: %w", err)
	}
	if err := logSessionCounts(db); err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := buildSink(ctx, v)
	if err != nil {
		return err
	}

	svc, err := survey.NewService(db, out, pool, quota)
	if err != nil {
		return fmt.Errorf("create survey: %w", err)
	}

	var lib *assets.Library
	if dir := v.GetString("images"); dir != "" {
		lib = assets.New(os.DirFS(dir))
	}

	cfg := model.SurveyConfig{
		NTrue:         quota.NTrue,
		NFalse:        quota.NFalse,
		NPhotoEach:    quota.NPhotoEach,
		BasePath:      normalizeBasePath(v.GetString("base-path")),
		SecureCookies: v.GetBool("secure-cookies"),
		Contact:       v.GetString("contact"),
	}
	h, err := handler.New(svc, lib, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"stimuli", stimuliPath,
		"corpus_size", pool.Size(),
		"n_true", quota.NTrue,
		"n_false", quota.NFalse,
		"n_photo_each", quota.NPhotoEach,
		"base_path", cfg.BasePath,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// recordCorpus stores the corpus fingerprint. Sessions keep their own copy of
// the stimuli they were shown, so a changed corpus only warrants a warning.
func recordCorpus(db *store.Store, info model.CorpusInfo) error {
	prev, err := db.GetCorpusInfo()
	if err != nil {
		return err
	}
	if prev.SHA256 != "" && prev.SHA256 != info.SHA256 {
		slog.Warn("stimulus corpus changed since last start",
			"path", info.Path,
			"previous_path", prev.Path,
			"previous_count", prev.Count,
			"count", info.Count,
		)
	}
	return db.SetCorpusInfo(info)
}

// logSessionCounts reports what the database already holds, so a restart
// mid-study shows how many participants are still in flight.
func logSessionCounts(db *store.Store) error {
	counts, err := db.CountByPhase()
	if err != nil {
		return err
	}
	slog.Info("session database",
		"instructions", counts[model.PhaseInstructions],
		"answering", counts[model.PhaseAnswering],
		"complete", counts[model.PhaseComplete],
	)
	return nil
}

// buildSink assembles the configured persistence destinations.
func buildSink(ctx context.Context, v *viper.Viper) (survey.Sink, error) {
	var sinks []sink.Named
	if path := v.GetString("csv-path"); path != "" {
		csvFile := sink.NewCSVFile(path)
		sinks = append(sinks, sink.Named{Name: "csv", Sink: csvFile})
		slog.Info("csv sink enabled", "path", csvFile.Path())
	}
	if id := v.GetString("sheets-spreadsheet-id"); id != "" {
		sh, err := sink.NewSheets(ctx, v.GetString("sheets-credentials"), id, v.GetString("sheets-worksheet"))
		if err != nil {
			return nil, fmt.Errorf("sheets sink: %w", err)
		}
		sinks = append(sinks, sink.Named{Name: "sheets", Sink: sh})
		slog.Info("sheets sink enabled", "spreadsheet_id", id, "worksheet", v.GetString("sheets-worksheet"))
	}
	if len(sinks) == 0 {
		slog.Warn("no persistence sink configured, responses are kept only in the session database")
		return sink.Nop{}, nil
	}
	return sink.NewFanout(sinks...), nil
}

func runSample(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	quota := quotaFromConfig(v)
	_, pool, err := loadPool(v.GetString("stimuli"), quota)
	if err != nil {
		return err
	}

	seed := v.GetUint64("seed")
	if seed == 0 {
		seed = rand.Uint64()
	}
	r := rand.New(rand.NewPCG(seed, seed))
	seq, err := stimulus.Sample(r, pool, quota)
	if err != nil {
		return err
	}
	cond := survey.PickCondition(r)

	rows := make([][]string, 0, len(seq))
	for i, s := range seq {
		shown := ""
		if s.ShowPhoto {
			shown = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), s.ID, strconv.FormatBool(s.Truth), s.Photo, shown, s.Text})
	}

	w := cmd.OutOrStdout()
	pt, pf := stimulus.CountPhotos(seq)
	fmt.Fprintf(w, "seed %d, condition %s, %d statements, photos %d true / %d false\n", seed, cond, len(seq), pt, pf)
	fmt.Fprintln(w, renderTable(
		[]string{"#", "ID", "Truth", "Photo", "Shown", "Text"},
		rows,
		[]columnAlignment{alignRight},
	))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	onlyComplete := !v.GetBool("all")

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format := strings.ToLower(v.GetString("format")); format {
	case "json":
		return exportJSON(w, db, onlyComplete)
	case "csv":
		return exportCSV(w, db, onlyComplete)
	case "table":
		return exportTable(w, db, onlyComplete)
	default:
		return fmt.Errorf("unknown export format %q (want csv, json or table)", format)
	}
}

func exportJSON(w io.Writer, db *store.Store, onlyComplete bool) error {
	results, err := db.ExportSessions(onlyComplete)
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	info, err := db.GetCorpusInfo()
	if err != nil {
		return fmt.Errorf("read corpus info: %w", err)
	}
	if results == nil {
		results = []model.SessionResult{}
	}
	export := model.SurveyExport{
		ExportedAt: time.Now().UTC(),
		CorpusHash: info.SHA256,
		Sessions:   results,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func exportCSV(w io.Writer, db *store.Store, onlyComplete bool) error {
	rows, err := db.ExportRecords(onlyComplete)
	if err != nil {
		return fmt.Errorf("export records: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(model.RecordHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Strings()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportTable(w io.Writer, db *store.Store, onlyComplete bool) error {
	results, err := db.ExportSessions(onlyComplete)
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		correct := 0
		for _, rec := range r.Responses {
			if rec.Answer == formatTruth(rec.Truth) {
				correct++
			}
		}
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			r.ParticipantID,
			string(r.Group),
			string(r.Phase),
			strconv.Itoa(len(r.Responses)),
			strconv.Itoa(correct),
			strconv.FormatBool(r.Persisted),
			completed,
		})
	}
	_, err = fmt.Fprintln(w, renderTable(
		[]string{"Participant", "Group", "Phase", "Responses", "Correct", "Persisted", "Completed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	return err
}

func formatTruth(b bool) string {
	if b {
		return string(model.AnswerTrue)
	}
	return string(model.AnswerFalse)
}
