package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/go13f/internal/cache"
	"github.com/hyperifyio/go13f/internal/edgar"
	"github.com/hyperifyio/go13f/internal/fetch"
	"github.com/hyperifyio/go13f/internal/ledger"
	"github.com/hyperifyio/go13f/internal/markup"
	"github.com/hyperifyio/go13f/internal/table"
)

var (
	// ErrIdentifierUnresolved is returned when the feed does not yield a CIK
	// for the identifier.
	ErrIdentifierUnresolved = errors.New("identifier unresolved")
	// ErrFeedUnavailable is returned when the filing list cannot be fetched
	// or decoded.
	ErrFeedUnavailable = errors.New("filing feed unavailable")
)

type App struct {
	cfg       Config
	stdout    io.Writer
	now       func() time.Time
	get       edgar.Getter
	source    edgar.Source
	urls      edgar.URLs
	rule      edgar.SelectionRule
	sink      table.Sink
	ledger    *ledger.Ledger
	httpCache *cache.HTTPCache
	runID     string
	manifest  RunManifest
}

// Option customizes an App.
type Option func(*App)

// WithStdout sets where the resolved CIK is printed. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option { return func(a *App) { a.stdout = w } }

// WithClock replaces time.Now for manifest timestamps and file name stamps.
func WithClock(now func() time.Time) Option { return func(a *App) { a.now = now } }

// WithSource replaces the EDGAR Atom feed source.
func WithSource(s edgar.Source) Option { return func(a *App) { a.source = s } }

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	rule, err := edgar.ParseSelectionRule(cfg.LocateRule)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		stdout: os.Stdout,
		now:    time.Now,
		urls:   edgar.URLs{Base: cfg.BaseURL},
		rule:   rule,
		runID:  uuid.NewString(),
	}

	if cfg.CacheDir != "" {
		// Invalidation problems are not fatal; the cache only saves requests.
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged expired cache entries")
			}
		}
		if cfg.CacheMaxBytes > 0 || cfg.CacheMaxEntries > 0 {
			if n, err := cache.EnforceHTTPCacheLimits(cfg.CacheDir, cfg.CacheMaxBytes, cfg.CacheMaxEntries); err != nil {
				log.Warn().Err(err).Msg("cache limit enforcement failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("evicted cache entries")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}

	client := &fetch.Client{
		HTTPClient:          newEDGARHTTPClient(),
		UserAgent:           strings.TrimSpace(cfg.UserAgent + " " + userAgentSuffix()),
		MaxAttempts:         3,
		PerRequestTimeout:   60 * time.Second,
		Cache:               a.httpCache,
		BypassCache:         cfg.CacheBypass,
		AllowedContentTypes: fetch.XMLContentTypes,
		RedirectMaxHops:     5,
		MaxConcurrent:       1,
	}
	if cfg.RequestsPerSecond > 0 {
		client.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	a.get = client
	a.source = &edgar.Atom{URLs: a.urls, FormType: cfg.FormType, Count: cfg.Count, Getter: client}

	for _, o := range opts {
		o(a)
	}
	a.sink = table.Sink{Dir: cfg.OutputDir, Now: a.now}

	if strings.TrimSpace(cfg.LedgerPath) != "" {
		l, err := ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.ledger = l
	}
	return a, nil
}

func (a *App) Close() {
	if err := a.ledger.Close(); err != nil {
		log.Warn().Err(err).Msg("ledger close failed")
	}
}

// RunID identifies this run in the ledger and the manifest.
func (a *App) RunID() string { return a.runID }

// Manifest returns the record of the most recent Run.
func (a *App) Manifest() RunManifest { return a.manifest }

// Run resolves the identifier, prints its CIK, and converts each filing in
// feed order. A failing filing is logged and skipped; only an unresolvable
// identifier, an unavailable feed, a write failure or cancellation end the
// run early.
func (a *App) Run(ctx context.Context) error {
	a.manifest = RunManifest{
		RunID:      a.runID,
		Version:    BuildVersion,
		Identifier: a.cfg.Identifier,
		FormType:   a.cfg.FormType,
		LocateRule: string(a.rule),
		HTTPCache:  a.httpCache != nil,
		StartedAt:  a.now().UTC(),
		Filings:    []FilingResult{},
	}
	err := a.run(ctx)
	a.manifest.FinishedAt = a.now().UTC()
	if p := strings.TrimSpace(a.cfg.ManifestPath); p != "" {
		if werr := writeManifestJSON(p, a.manifest); werr != nil {
			log.Warn().Err(werr).Str("path", p).Msg("manifest not written")
		} else {
			log.Debug().Str("path", p).Msg("wrote manifest")
		}
	}
	return err
}

func (a *App) run(ctx context.Context) error {
	start := time.Now()
	feed, err := a.source.Feed(ctx, a.cfg.Identifier)
	if err != nil {
		if errors.Is(err, edgar.ErrUnknownIdentifier) {
			return fmt.Errorf("%w: %w", ErrIdentifierUnresolved, err)
		}
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	a.manifest.CIK = feed.CIK
	a.manifest.CompanyName = feed.CompanyName
	if _, err := fmt.Fprintln(a.stdout, feed.CIK); err != nil {
		return fmt.Errorf("print cik: %w", err)
	}

	filings := feed.Filings
	if a.cfg.MaxFilings > 0 && len(filings) > a.cfg.MaxFilings {
		filings = filings[:a.cfg.MaxFilings]
	}
	log.Info().
		Str("stage", "feed").
		Str("source", a.source.Name()).
		Str("cik", feed.CIK).
		Str("company", feed.CompanyName).
		Int("filings", len(filings)).
		Dur("elapsed", time.Since(start)).
		Msg("filings listed")

	for _, ref := range filings {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := a.processFiling(ctx, ref)
		a.manifest.Filings = append(a.manifest.Filings, res)
		if err == nil {
			continue
		}
		if errors.Is(err, table.ErrWriteFailure) || errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn().Err(err).Str("accession", ref.Accession).Msg("filing skipped")
	}

	written, skipped, failed := a.manifest.Counts()
	log.Info().
		Str("stage", "done").
		Str("cik", feed.CIK).
		Int("written", written).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("run complete")
	return nil
}

// processFiling converts one filing. The returned result is always suitable
// for the manifest, including on error.
func (a *App) processFiling(ctx context.Context, ref edgar.FilingReference) (FilingResult, error) {
	res := FilingResult{Accession: ref.Accession, FilingDate: ref.FilingDate, FormType: ref.FormType}

	if a.cfg.SkipSeen && a.ledger != nil {
		seen, err := a.ledger.Seen(ctx, ref.CIK, ref.Accession)
		if err != nil {
			log.Warn().Err(err).Str("accession", ref.Accession).Msg("ledger lookup failed")
		} else if seen {
			log.Debug().Str("accession", ref.Accession).Msg("already converted")
			res.Status = StatusSkipped
			return res, nil
		}
	}

	start := time.Now()
	out, err := a.convert(ctx, ref, &res)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res, err
	}
	res.Status = StatusWritten
	res.Output = out

	if sum, err := fileSHA256(out); err != nil {
		log.Warn().Err(err).Str("out", out).Msg("checksum failed")
	} else {
		res.SHA256 = sum
	}
	log.Info().
		Str("stage", "write").
		Str("accession", ref.Accession).
		Str("out", out).
		Int("rows", res.Rows).
		Int("columns", res.Columns).
		Dur("elapsed", time.Since(start)).
		Msg("wrote table")

	if a.ledger != nil {
		err := a.ledger.Record(ctx, ledger.Entry{
			CIK:        ref.CIK,
			Accession:  ref.Accession,
			RunID:      a.runID,
			FormType:   ref.FormType,
			FilingDate: ref.FilingDate,
			Path:       out,
			Rows:       res.Rows,
			Columns:    res.Columns,
			SHA256:     res.SHA256,
			WrittenAt:  a.now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Str("accession", ref.Accession).Msg("ledger record failed")
		}
	}
	return res, nil
}

// convert runs locate, fetch, parse, extract and write for one filing and
// returns the written path.
func (a *App) convert(ctx context.Context, ref edgar.FilingReference, res *FilingResult) (string, error) {
	envelope, _, err := a.get.Get(ctx, a.urls.Envelope(ref))
	if err != nil {
		return "", fmt.Errorf("fetch envelope: %w", err)
	}
	doc, err := edgar.Locate(string(envelope), a.rule)
	if err != nil {
		return "", err
	}
	res.Document = doc.Filename
	res.URL = a.urls.Document(ref, doc.Filename)

	body, _, err := a.get.Get(ctx, res.URL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", doc.Filename, err)
	}
	root, err := markup.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", doc.Filename, err)
	}
	t, err := table.Extract(root, a.cfg.RecordTag, doc.Filename)
	if err != nil {
		return "", fmt.Errorf("%s: %w", doc.Filename, err)
	}
	res.Rows = len(t.Rows)
	res.Columns = len(t.Schema)

	if m := t.Mismatches(); len(m) > 0 {
		res.Mismatches = len(m)
		if a.cfg.Strict {
			return "", fmt.Errorf("%s: %w", doc.Filename, t.CheckShape())
		}
		log.Warn().
			Str("accession", ref.Accession).
			Ints("rows", m).
			Int("columns", len(t.Schema)).
			Msg("rows differ from schema length")
	}
	if n := t.UnsafeCells(); n > 0 {
		res.UnsafeCells = n
		log.Warn().Str("accession", ref.Accession).Int("cells", n).Msg("cells contain tabs or line breaks")
	}

	return a.sink.Write(t, t.BaseName)
}
