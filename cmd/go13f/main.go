package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/go13f/internal/app"
	"github.com/hyperifyio/go13f/internal/table"
)

const usage = `Usage: go13f [flags] <CIK|TICKER>

Lists the 13F-HR filings of an EDGAR filer and writes each filing's
information table as a tab-separated file. Prints the resolved CIK.

Flags:
`

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := app.LoadEnvFiles(".env"); err != nil {
		log.Warn().Err(err).Msg("could not load .env")
	}

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if errors.Is(err, errVersion) {
		fmt.Fprintf(os.Stdout, "go13f %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		os.Exit(0)
	}
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(exitUsage)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(exitCode(err))
	}
}

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitRun     = 2 // identifier or feed could not be resolved
	exitWrite   = 3 // an output file could not be written
	exitUsage   = 64
)

var errVersion = errors.New("version requested")

// exitCode maps run errors to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrIdentifierUnresolved), errors.Is(err, app.ErrFeedUnavailable):
		return exitRun
	case errors.Is(err, table.ErrWriteFailure):
		return exitWrite
	default:
		return exitFailure
	}
}

func run(ctx context.Context, cfg app.Config, stdout io.Writer) error {
	a, err := app.New(ctx, cfg, app.WithStdout(stdout))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}

// parseConfig builds the configuration from defaults, an optional config
// file, the environment and finally the flags the user actually set.
func parseConfig(args []string, stderr io.Writer) (app.Config, error) {
	fs := flag.NewFlagSet("go13f", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	var (
		fl         = app.DefaultConfig()
		configPath string
		version    bool
	)
	fs.StringVar(&configPath, "config", os.Getenv("GO13F_CONFIG"), "Path to a YAML or JSON config file")
	fs.BoolVar(&version, "version", false, "Print version and exit")
	fs.BoolVar(&fl.Verbose, "v", fl.Verbose, "Verbose logging")
	fs.StringVar(&fl.UserAgent, "ua", fl.UserAgent, "User-Agent sent to EDGAR, e.g. \"Name admin@example.com\" (required)")
	fs.StringVar(&fl.BaseURL, "sec.base", fl.BaseURL, "EDGAR base URL")
	fs.StringVar(&fl.FormType, "form", fl.FormType, "Form type to list")
	fs.IntVar(&fl.Count, "count", fl.Count, "Number of feed entries to request")
	fs.Float64Var(&fl.RequestsPerSecond, "rps", fl.RequestsPerSecond, "Maximum EDGAR requests per second; 0 disables pacing")
	fs.StringVar(&fl.OutputDir, "out.dir", fl.OutputDir, "Existing directory for .tsv files")
	fs.StringVar(&fl.ManifestPath, "manifest", fl.ManifestPath, "Write a JSON run manifest to this path")
	fs.StringVar(&fl.LedgerPath, "ledger", fl.LedgerPath, "SQLite ledger of converted filings")
	fs.BoolVar(&fl.SkipSeen, "skip-seen", fl.SkipSeen, "Skip filings already recorded in the ledger")
	fs.StringVar(&fl.RecordTag, "record", fl.RecordTag, "Element name of one table record")
	fs.StringVar(&fl.LocateRule, "locate", fl.LocateRule, "How to find the table in a filing: second or infotable")
	fs.BoolVar(&fl.Strict, "strict", fl.Strict, "Fail a filing whose rows differ in width from the header")
	fs.IntVar(&fl.MaxFilings, "max.filings", fl.MaxFilings, "Convert at most this many filings; 0 means all")
	fs.StringVar(&fl.CacheDir, "cache.dir", fl.CacheDir, "HTTP cache directory; empty disables caching")
	fs.DurationVar(&fl.CacheMaxAge, "cache.maxAge", fl.CacheMaxAge, "Purge cache entries older than this (e.g. 720h); 0 disables")
	fs.BoolVar(&fl.CacheClear, "cache.clear", fl.CacheClear, "Clear cache directory before run")
	fs.BoolVar(&fl.CacheBypass, "cache.bypass", fl.CacheBypass, "Ignore cached entries and refetch; responses are still saved")
	fs.BoolVar(&fl.CacheStrictPerms, "cache.strictPerms", fl.CacheStrictPerms, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.Int64Var(&fl.CacheMaxBytes, "cache.maxBytes", fl.CacheMaxBytes, "Evict least recently used cache entries above this size; 0 disables")
	fs.IntVar(&fl.CacheMaxEntries, "cache.maxEntries", fl.CacheMaxEntries, "Evict least recently used cache entries above this count; 0 disables")

	if err := fs.Parse(args); err != nil {
		return app.Config{}, err
	}
	if version {
		return app.Config{}, errVersion
	}

	cfg := app.DefaultConfig()
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config %s: %w", configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	fs.Visit(func(f *flag.Flag) { applyFlag(&cfg, fl, f.Name) })

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Identifier = strings.TrimSpace(fs.Arg(0))
	default:
		return app.Config{}, fmt.Errorf("expected one CIK or ticker, got %d arguments", fs.NArg())
	}
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// applyFlag copies one explicitly set flag value from fl into cfg.
func applyFlag(cfg *app.Config, fl app.Config, name string) {
	switch name {
	case "v":
		cfg.Verbose = fl.Verbose
	case "ua":
		cfg.UserAgent = fl.UserAgent
	case "sec.base":
		cfg.BaseURL = fl.BaseURL
	case "form":
		cfg.FormType = fl.FormType
	case "count":
		cfg.Count = fl.Count
	case "rps":
		cfg.RequestsPerSecond = fl.RequestsPerSecond
	case "out.dir":
		cfg.OutputDir = fl.OutputDir
	case "manifest":
		cfg.ManifestPath = fl.ManifestPath
	case "ledger":
		cfg.LedgerPath = fl.LedgerPath
	case "skip-seen":
		cfg.SkipSeen = fl.SkipSeen
	case "record":
		cfg.RecordTag = fl.RecordTag
	case "locate":
		cfg.LocateRule = fl.LocateRule
	case "strict":
		cfg.Strict = fl.Strict
	case "max.filings":
		cfg.MaxFilings = fl.MaxFilings
	case "cache.dir":
		cfg.CacheDir = fl.CacheDir
	case "cache.maxAge":
		cfg.CacheMaxAge = fl.CacheMaxAge
	case "cache.clear":
		cfg.CacheClear = fl.CacheClear
	case "cache.bypass":
		cfg.CacheBypass = fl.CacheBypass
	case "cache.strictPerms":
		cfg.CacheStrictPerms = fl.CacheStrictPerms
	case "cache.maxBytes":
		cfg.CacheMaxBytes = fl.CacheMaxBytes
	case "cache.maxEntries":
		cfg.CacheMaxEntries = fl.CacheMaxEntries
	}
}
