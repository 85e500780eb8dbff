package app

import (
	"time"

	"github.com/hyperifyio/go13f/internal/edgar"
	"github.com/hyperifyio/go13f/internal/table"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Identifier is the CIK or ticker symbol given on the command line.
	Identifier string

	// EDGAR
	UserAgent         string
	BaseURL           string
	FormType          string
	Count             int
	RequestsPerSecond float64

	// Output
	OutputDir    string
	ManifestPath string
	LedgerPath   string
	SkipSeen     bool

	// Conversion
	RecordTag  string
	LocateRule string
	Strict     bool
	MaxFilings int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheBypass      bool
	CacheStrictPerms bool
	CacheMaxBytes    int64
	CacheMaxEntries  int

	Verbose bool
}

// Defaults used by flags and by the file/env overlays to recognize unset values.
const (
	DefaultOutputDir         = "."
	DefaultCacheDir          = ".go13f-cache"
	DefaultRequestsPerSecond = 8
	DefaultLocateRule        = string(edgar.SecondDeclared)
)

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		BaseURL:           edgar.DefaultBaseURL,
		FormType:          edgar.DefaultFormType,
		Count:             edgar.DefaultCount,
		RequestsPerSecond: DefaultRequestsPerSecond,
		OutputDir:         DefaultOutputDir,
		RecordTag:         table.DefaultRecordTag,
		LocateRule:        DefaultLocateRule,
		CacheDir:          DefaultCacheDir,
	}
}
