// Package main is the taxonomia CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/analyzer"
	"github.com/hyperjump/taxonomia/internal/classify"
	"github.com/hyperjump/taxonomia/internal/cli"
	"github.com/hyperjump/taxonomia/internal/config"
	"github.com/hyperjump/taxonomia/internal/keyword"
	"github.com/hyperjump/taxonomia/internal/llm"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/report"
	"github.com/hyperjump/taxonomia/internal/server"
	"github.com/hyperjump/taxonomia/internal/storage"
	"github.com/hyperjump/taxonomia/internal/watcher"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/taxonomia/config.yaml"

// loadConfig loads config from path. When path is the default and ./config.yaml exists,
// that file is used instead so commands run from the project directory pick it up.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		runServer(args)
		return
	case "analyze":
		err = runAnalyze(args)
	case "history":
		err = runHistory(args)
	case "show":
		err = runShow(args)
	case "stats":
		err = runStats(args)
	case "export":
		err = runExport(args)
	case "delete":
		err = runDelete(args)
	case "search":
		err = runSearch(args)
	case "status":
		err = runStatus(args)
	case "reindex":
		err = runReindex(args)
	case "taxonomy":
		err = runTaxonomy(args)
	case "version", "--version", "-v":
		fmt.Printf("taxonomia version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.Service.ReindexIfEmpty(ctx); err != nil {
		logger.Warn("reindex failed", zap.Error(err))
	}

	var inbox *watcher.Inbox
	if len(cfg.Watch.Directories) > 0 {
		inbox = newInbox(cfg, components.Service, logger)
		if err := inbox.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Service, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if inbox != nil {
		inbox.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// newInbox analyzes files dropped into the configured directories with the default
// subject and grade.
func newInbox(cfg *config.Config, svc *analyzer.Service, logger *zap.Logger) *watcher.Inbox {
	meta := models.AnalysisInput{
		Subject:    models.Subject(cfg.Watch.DefaultSubject),
		GradeLevel: models.GradeLevel(cfg.Watch.DefaultGrade),
	}
	handle := func(ctx context.Context, path string) error {
		a, err := svc.AnalyzeFile(ctx, path, meta)
		if err != nil {
			return err
		}
		logger.Info("inbox analysis stored",
			zap.String("path", path),
			zap.String("id", a.ID),
			zap.Int("items", len(a.Items)))
		return nil
	}
	return watcher.NewInbox(cfg.Watch.Directories, cfg.Watch.Extensions, handle, watcher.WithLogger(logger))
}

// Components holds initialized services.
type Components struct {
	Storage storage.Storage
	Index   keyword.AnalysisIndex
	Service *analyzer.Service
}

// Close releases storage and index handles.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// errNoModel is returned by commands that need a model when none was configured.
var errNoModel = errors.New("no language model configured for this command")

type noModel struct{}

func (noModel) Classify(context.Context, string) (*classify.Result, error) {
	return nil, errNoModel
}

// initializeComponents opens storage and the search index. The language model client is
// created only when withModel is set, so read-only commands work without an API key.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withModel bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	opts := []analyzer.Option{analyzer.WithLogger(logger)}
	if cfg.Storage.BleveIndexPath != "" {
		index, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize search index: %w", err)
		}
		c.Index = index
		opts = append(opts, analyzer.WithIndex(index))
	}

	var classifier analyzer.Classifier = noModel{}
	if withModel {
		client, err := llm.New(ctx, cfg.LLM, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize language model: %w", err)
		}
		classifier = classify.NewPipeline(client,
			classify.WithLogger(logger),
			classify.WithPrompts(classify.Prompts{
				ClassifyTemperature: cfg.LLM.ClassifyTemp(),
				SummaryTemperature:  cfg.LLM.SummaryTemp(),
			}),
		)
		logger.Debug("language model ready", zap.String("client", client.Name()))
	}
	c.Service = analyzer.NewService(classifier, store, opts...)
	return c, nil
}

// reorderArgs moves flags that appear after positional arguments to the front so
// flag.Parse sees them ("taxonomia show <id> --format json"). A lone "-" names
// stdin and stays positional.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 1 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args so multi-word queries work with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// commonFlags are shared by every command that reads or writes the history.
type commonFlags struct {
	config    *string
	serverURL *string
	format    *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:    fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL: fs.String("server", os.Getenv("TAXONOMIA_SERVER"), "server URL; empty opens storage directly"),
		format:    fs.String("format", "text", "output format: text or json"),
	}
}

func addCriteriaFlags(fs *flag.FlagSet) func() report.Criteria {
	subject := fs.String("subject", "", "only this subject")
	grade := fs.String("grade", "", "only this grade level")
	search := fs.String("q", "", "case-insensitive match on title, subject or grade")
	return func() report.Criteria {
		return report.Criteria{
			Subject: models.Subject(*subject),
			Grade:   models.GradeLevel(*grade),
			Search:  *search,
		}
	}
}

// open returns a backend for cf: the HTTP API when a server URL is set, otherwise
// storage opened directly.
func open(ctx context.Context, cf commonFlags, withModel bool) (backend, error) {
	if *cf.serverURL != "" {
		return newRemote(*cf.serverURL), nil
	}
	cfg, _, err := loadConfig(*cf.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := zap.NewNop()
	if cfg.Debug {
		if logger, err = utils.NewLogger(true); err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}
	components, err := initializeComponents(ctx, cfg, logger, withModel)
	if err != nil {
		return nil, err
	}
	return &local{components: components, cfg: cfg, logger: logger}, nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cf := addCommonFlags(fs)
	title := fs.String("title", "", "instrument title (default: file name)")
	subject := fs.String("subject", "", "subject (see: taxonomia taxonomy)")
	grade := fs.String("grade", "", "grade level (see: taxonomia taxonomy)")
	text := fs.String("text", "", "instrument text; use instead of a file")
	_ = fs.Parse(reorderArgs(args))

	format, err := cli.ParseFormat(*cf.format)
	if err != nil {
		return err
	}
	meta := models.AnalysisInput{
		Title:      *title,
		Subject:    models.Subject(*subject),
		GradeLevel: models.GradeLevel(*grade),
	}

	ctx := context.Background()
	b, err := open(ctx, cf, true)
	if err != nil {
		return err
	}
	defer b.Close()

	var a *models.InstrumentAnalysis
	switch {
	case *text != "":
		meta.Text = *text
		a, err = b.Analyze(ctx, meta)
	case fs.NArg() == 1 && fs.Arg(0) == "-":
		data, readErr := io.ReadAll(os.Stdin)
		if readErr != nil {
			return fmt.Errorf("read stdin: %w", readErr)
		}
		meta.Text = string(data)
		a, err = b.Analyze(ctx, meta)
	case fs.NArg() == 1:
		a, err = b.AnalyzeFile(ctx, fs.Arg(0), meta)
	default:
		return errors.New("usage: taxonomia analyze --subject S --grade G [--title T] <file | - | --text TEXT>")
	}
	if err != nil {
		return describe(err)
	}
	return cli.WriteAnalysis(os.Stdout, a, format)
}

// describe turns service errors into the message shown to the user.
func describe(err error) error {
	if kind := analyzer.KindOf(err); kind != analyzer.KindInternal {
		return fmt.Errorf("%s (%s)", analyzer.UserMessage(err), kind)
	}
	return err
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cf := addCommonFlags(fs)
	criteria := addCriteriaFlags(fs)
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*cf.format)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	list, err := b.History(ctx, criteria())
	if err != nil {
		return describe(err)
	}
	return cli.WriteHistory(os.Stdout, list, format)
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	cf := addCommonFlags(fs)
	chartOnly := fs.Bool("chart", false, "print only the level distribution")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: taxonomia show [flags] <analysis-id>")
	}

	format, err := cli.ParseFormat(*cf.format)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	a, err := b.Get(ctx, fs.Arg(0))
	if err != nil {
		return describe(err)
	}
	if *chartOnly {
		return cli.WriteChart(os.Stdout, report.Aggregate(a.Items), format)
	}
	return cli.WriteAnalysis(os.Stdout, a, format)
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cf := addCommonFlags(fs)
	criteria := addCriteriaFlags(fs)
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*cf.format)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	stats, err := b.Consolidated(ctx, criteria())
	if err != nil {
		return describe(err)
	}
	return cli.WriteStats(os.Stdout, stats, format)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cf := addCommonFlags(fs)
	criteria := addCriteriaFlags(fs)
	workbook := fs.Bool("xlsx", false, "export the (filtered) history as an Excel workbook instead of one analysis as JSON")
	out := fs.String("out", "", "output file (default: derived from the title, or bloom_statistics.xlsx)")
	_ = fs.Parse(reorderArgs(args))

	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	if *workbook {
		path := *out
		if path == "" {
			path = "bloom_statistics.xlsx"
		}
		if err := writeFileWith(path, func(w io.Writer) error { return b.ExportWorkbook(ctx, criteria(), w) }); err != nil {
			return describe(err)
		}
		fmt.Printf("Workbook written: %s\n", path)
		return nil
	}

	if fs.NArg() != 1 {
		return errors.New("usage: taxonomia export [--out FILE] <analysis-id> | taxonomia export --xlsx [filters]")
	}
	a, err := b.Get(ctx, fs.Arg(0))
	if err != nil {
		return describe(err)
	}
	path := *out
	if path == "" {
		path = report.ExportFilename(a.InstrumentTitle, ".json")
	}
	if err := writeFileWith(path, func(w io.Writer) error { return report.WriteJSON(w, a) }); err != nil {
		return err
	}
	fmt.Printf("Analysis written: %s\n", path)
	return nil
}

func writeFileWith(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := addCommonFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: taxonomia delete [flags] <analysis-id>")
	}

	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Delete(ctx, fs.Arg(0)); err != nil {
		return describe(err)
	}
	fmt.Printf("Analysis deleted: %s\n", fs.Arg(0))
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := addCommonFlags(fs)
	limit := fs.Int("limit", 10, "maximum number of analyses")
	fuzzy := fs.Bool("fuzzy", false, "tolerate typos")
	_ = fs.Parse(reorderArgs(args))

	query := joinArgs(fs.Args())
	if query == "" {
		return errors.New("usage: taxonomia search [flags] <query>")
	}
	format, err := cli.ParseFormat(*cf.format)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	results, err := b.Search(ctx, query, *limit, *fuzzy)
	if err != nil {
		return describe(err)
	}
	// Retry with typo tolerance when an exact search finds nothing.
	if len(results) == 0 && !*fuzzy {
		if fuzzyResults, fuzzyErr := b.Search(ctx, query, *limit, true); fuzzyErr == nil {
			results = fuzzyResults
		}
	}
	return cli.WriteHistory(os.Stdout, results, format)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addCommonFlags(fs)
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*cf.format)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := open(ctx, cf, false)
	if err != nil {
		return err
	}
	defer b.Close()

	st, err := b.Status(ctx)
	if err != nil {
		return describe(err)
	}
	return writeStatus(os.Stdout, st, format)
}

func writeStatus(w io.Writer, st *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		return writeIndentedJSON(w, st)
	}
	fmt.Fprintf(w, "analyses:           %d\n", st.Analyses)
	fmt.Fprintf(w, "indexed:            %d\n", st.Indexed)
	fmt.Fprintf(w, "search_enabled:     %t\n", st.SearchEnabled)
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + index on disk\n", *st.DiskUsageBytes)
	}
	if c := st.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "llm_provider:       %s\n", c.Provider)
		fmt.Fprintf(w, "llm_model:          %s\n", c.Model)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.BleveIndexPath != "" {
			fmt.Fprintf(w, "bleve_index_path:   %s\n", c.BleveIndexPath)
		}
		for _, d := range c.Watch {
			fmt.Fprintf(w, "watch:              %s\n", d)
		}
	}
	return nil
}

func runReindex(args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer components.Close()

	n, err := components.Service.Reindex(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Reindexed %d analyses\n", n)
	return nil
}

func runTaxonomy(args []string) error {
	fs := flag.NewFlagSet("taxonomy", flag.ExitOnError)
	formatFlag := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}
	return cli.WriteTaxonomy(os.Stdout, format)
}

func printUsage() {
	fmt.Println(`taxonomia - Bloom's Taxonomy analysis of assessment instruments

Usage:
  taxonomia server [flags]                 Start the HTTP server (and inbox watcher)
  taxonomia analyze [flags] <file | ->     Classify an instrument and store the analysis
  taxonomia history [flags]                List stored analyses, newest first
  taxonomia show [flags] <id>              Show one analysis
  taxonomia stats [flags]                  Consolidated level distribution
  taxonomia export [flags] <id>            Write an analysis as JSON (or --xlsx for a workbook)
  taxonomia delete [flags] <id>            Delete an analysis
  taxonomia search [flags] <query>         Full-text search over analyses
  taxonomia status [flags]                 Show storage and index status
  taxonomia reindex [flags]                Rebuild the search index from storage
  taxonomia taxonomy                       List levels, subjects and grades
  taxonomia version                        Show version
  taxonomia help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/taxonomia/config.yaml)
  --server string    Server URL (default: $TAXONOMIA_SERVER). Empty opens storage directly.
  --format string    Output format: text or json (default: text)

Analyze Flags:
  --title string     Instrument title (default: file name without extension)
  --subject string   Subject, e.g. "Mathematics"
  --grade string     Grade level, e.g. "1º MEDIO"
  --text string      Instrument text instead of a file

History, Stats and Export Flags:
  --subject string   Only this subject
  --grade string     Only this grade level
  --q string         Match title, subject or grade
  --xlsx             (export) Write the filtered history as an Excel workbook
  --out string       (export) Output file

Search Flags:
  --limit int        Maximum number of analyses (default: 10)
  --fuzzy            Tolerate typos

Examples:
  taxonomia server
  taxonomia analyze --subject Mathematics --grade "2º MEDIO" exam.pdf
  cat quiz.txt | taxonomia analyze --title "Quiz 3" --subject Science --grade "1º MEDIO" -
  taxonomia history --subject Science
  taxonomia stats --grade "1º MEDIO" --format json
  taxonomia export --xlsx --subject Mathematics --out math.xlsx
  taxonomia search --fuzzy fotosintesis`)
}
