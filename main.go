package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/mickamy/xadvise/internal/advisor"
	"github.com/mickamy/xadvise/internal/cache"
	"github.com/mickamy/xadvise/internal/config"
	"github.com/mickamy/xadvise/internal/diff"
	"github.com/mickamy/xadvise/internal/engine"
	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/logs"
	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/internal/parser"
	"github.com/mickamy/xadvise/internal/planner"
	"github.com/mickamy/xadvise/internal/recommend"
	"github.com/mickamy/xadvise/internal/render/tui"
	"github.com/mickamy/xadvise/internal/server"
	"github.com/mickamy/xadvise/internal/statement"
	"github.com/mickamy/xadvise/internal/warmup"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = serveCommand(args)
	case "analyze":
		err = analyzeCommand(args)
	case "transpile":
		err = transpileCommand(args)
	case "diff":
		err = diffCommand(args)
	case "version":
		err = versionCommand(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`xadvise - PostgreSQL query advisor

Usage:
  xadvise <command> [options]

Commands:
  serve      Run the HTTP analysis API
  analyze    Analyze a single statement and print the result
  transpile  Show the SELECT equivalent of a write statement
  diff       Compare two saved EXPLAIN JSON plans
  version    Show CLI version information

Use "xadvise <command> -h" for command-specific help.`)
}

func applyConfigPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("XADVISE_CONFIG"))
	}
	return config.Apply(path)
}

// buildPipeline assembles the advisor and its dependencies from the
// active configuration.
func buildPipeline() (*advisor.Advisor, *engine.Postgres, *recommend.Client, error) {
	cfg := config.Active()
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, nil, nil, fmt.Errorf("database URL is required; set $DATABASE_URL or the config file")
	}

	db := engine.NewPostgres(cfg.Database.URL)

	active := recommend.Profile{
		Name:   "default",
		URL:    cfg.LLM.URL,
		Model:  cfg.LLM.Model,
		APIKey: cfg.LLM.APIKey,
	}
	var alternates []recommend.Profile
	for _, p := range cfg.LLM.Profiles {
		alternates = append(alternates, recommend.Profile{
			Name:   p.Name,
			URL:    p.URL,
			Model:  p.Model,
			APIKey: p.APIKey,
		})
	}
	recommender := recommend.NewClient(active, alternates)

	capacity := cfg.Cache.Capacity
	if capacity <= 0 {
		capacity = cache.DefaultCapacity
	}
	adv := advisor.New(db, recommender, cache.New(capacity), db)
	return adv, db, recommender, nil
}

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: xadvise serve [--addr :8000] [--warmup]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var (
		addr       = fs.String("addr", "", "Listen address; defaults to the configured server address")
		warm       = fs.Bool("warmup", false, "Pre-populate the analysis cache from the sample query file")
		configPath = fs.String("config", "", "Path to configuration file (JSON). Falls back to $XADVISE_CONFIG")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}

	adv, db, recommender, err := buildPipeline()
	if err != nil {
		return err
	}

	cfg := config.Active()
	listen := strings.TrimSpace(*addr)
	if listen == "" {
		listen = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *warm {
		go func() {
			if _, err := warmup.Run(ctx, adv, cfg.Cache.WarmupFile, cfg.Cache.WarmupLimit); err != nil {
				logging.Logger.Error("cache warmup failed", "error", err)
			}
		}()
	}

	logAnalyzer := logs.NewAnalyzer(cfg.Logs.Directory, cfg.Logs.SlowQueryMs)
	srv := server.New(adv, db, recommender, logAnalyzer, version)
	return srv.ListenAndServe(ctx, listen)
}

func analyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: xadvise analyze (--query \"SELECT ...\" | --sql file.sql) [--plan-only]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var (
		inlineSQL  = fs.String("query", "", "Inline SQL statement to analyze")
		sqlPath    = fs.String("sql", "", "Path to a SQL file to analyze")
		planOnly   = fs.Bool("plan-only", false, "Print the plan without asking the model for advice")
		format     = fs.String("format", "text", "Output format: text or json")
		color      = fs.Bool("color", true, "Enable ANSI colors for text output")
		configPath = fs.String("config", "", "Path to configuration file (JSON). Falls back to $XADVISE_CONFIG")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}

	if *sqlPath != "" && *inlineSQL != "" {
		return fmt.Errorf("specify only one of --sql or --query")
	}

	var sqlText string
	switch {
	case *sqlPath != "":
		data, err := os.ReadFile(*sqlPath)
		if err != nil {
			return fmt.Errorf("read sql file: %w", err)
		}
		sqlText = string(data)
	case *inlineSQL != "":
		sqlText = *inlineSQL
	default:
		return fmt.Errorf("--sql or --query is required")
	}

	ctx := context.Background()

	if *format != "text" && *format != "json" {
		return fmt.Errorf("unknown format %q (expected text or json)", *format)
	}

	if *planOnly {
		cfg := config.Active()
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return fmt.Errorf("database URL is required; set $DATABASE_URL or the config file")
		}
		db := engine.NewPostgres(cfg.Database.URL)
		ctrl := planner.New(db, planner.Options{DirectDML: cfg.Analysis.DirectDML})
		plan, err := ctrl.Acquire(ctx, sqlText)
		if err != nil {
			return err
		}
		if *format == "json" {
			return printJSON(planner.Summarize(plan))
		}
		return tui.Render(os.Stdout, plan, tui.Options{EnableColor: *color})
	}

	adv, _, _, err := buildPipeline()
	if err != nil {
		return err
	}
	analysis, err := adv.Analyze(ctx, sqlText)
	if err != nil {
		return err
	}
	if *format == "json" {
		return printJSON(analysis)
	}
	return tui.RenderAnalysis(os.Stdout, analysis, tui.Options{EnableColor: *color})
}

func diffCommand(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: xadvise diff --base base.json --target target.json [--format md|json]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var (
		basePath   = fs.String("base", "", "Path to baseline EXPLAIN JSON")
		targetPath = fs.String("target", "", "Path to target EXPLAIN JSON")
		format     = fs.String("format", "md", "Output format: md or json")
		output     = fs.String("out", "", "Output path (stdout if omitted)")
		minDelta   = fs.Float64("min-delta", 0, "Minimum cost delta to report")
		minPct     = fs.Float64("min-percent", 0, "Minimum percent change to report")
		maxItems   = fs.Int("limit", 0, "Maximum rows per section")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if *basePath == "" || *targetPath == "" {
		return fmt.Errorf("--base and --target are required")
	}

	base, err := loadPlan(*basePath)
	if err != nil {
		return fmt.Errorf("load base: %w", err)
	}
	target, err := loadPlan(*targetPath)
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}

	report, err := diff.Compare(base, target, diff.Options{
		MinCostDelta:     *minDelta,
		MinPercentChange: *minPct,
		MaxItems:         *maxItems,
	})
	if err != nil {
		return err
	}

	switch *format {
	case "md", "markdown":
		content := report.Markdown()
		if *output == "" {
			fmt.Print(content)
			return nil
		}
		return os.WriteFile(*output, []byte(content), 0o644)
	case "json":
		payload, err := report.JSON()
		if err != nil {
			return err
		}
		if *output == "" {
			os.Stdout.Write(payload)
			os.Stdout.WriteString("\n")
			return nil
		}
		return os.WriteFile(*output, payload, 0o644)
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
}

func loadPlan(path string) (*model.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	root, err := parser.ParseJSON(f)
	if err != nil {
		return nil, err
	}
	return &model.Plan{Root: root, Kind: string(statement.KindSelect), Source: model.SourceMeasured}, nil
}

func transpileCommand(args []string) error {
	fs := flag.NewFlagSet("transpile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: xadvise transpile --query \"UPDATE ...\"\n\nOptions:\n")
		fs.PrintDefaults()
	}

	inlineSQL := fs.String("query", "", "SQL statement to rewrite")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if strings.TrimSpace(*inlineSQL) == "" {
		return fmt.Errorf("--query is required")
	}

	kind := statement.Classify(*inlineSQL)
	rewritten := statement.ToSelect(*inlineSQL)

	fmt.Printf("kind: %s\n", kind)
	if rewritten == *inlineSQL {
		fmt.Println("rewrite: unavailable")
		return nil
	}
	fmt.Printf("rewrite: %s\n", rewritten)
	return nil
}

func versionCommand(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	short := fs.Bool("short", false, "Print only the version number")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}

	v, meta := resolveVersion()
	if *short {
		fmt.Println(v)
		return nil
	}
	if meta != "" {
		fmt.Printf("xadvise %s (%s)\n", v, meta)
	} else {
		fmt.Printf("xadvise %s\n", v)
	}
	return nil
}

func resolveVersion() (string, string) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}

	var commit, buildTime string
	var dirty bool
	if info, ok := debug.ReadBuildInfo(); ok {
		if (v == "dev" || v == "(devel)") &&
			info.Main.Version != "" &&
			info.Main.Version != "(devel)" &&
			!strings.HasPrefix(info.Main.Version, "v0.0.0-") {
			v = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
	}

	var details []string
	if commit != "" {
		short := commit
		if len(short) > 12 {
			short = short[:12]
		}
		if dirty {
			short += "*"
			dirty = false
		}
		details = append(details, fmt.Sprintf("commit %s", short))
	}
	if buildTime != "" {
		details = append(details, fmt.Sprintf("built %s", buildTime))
	}
	if dirty {
		details = append(details, "modified workspace")
	}

	return v, strings.Join(details, ", ")
}

func printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Println(string(payload))
	return err
}
