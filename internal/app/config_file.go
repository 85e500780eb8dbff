package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/go13f/internal/edgar"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to the dotted flag names.
type FileConfig struct {
	UserAgent string `yaml:"userAgent" json:"userAgent"`

	SEC struct {
		Base              string  `yaml:"base" json:"base"`
		FormType          string  `yaml:"form" json:"form"`
		Count             int     `yaml:"count" json:"count"`
		RequestsPerSecond float64 `yaml:"rps" json:"rps"`
	} `yaml:"sec" json:"sec"`

	Out struct {
		Dir      string `yaml:"dir" json:"dir"`
		Manifest string `yaml:"manifest" json:"manifest"`
	} `yaml:"out" json:"out"`

	Ledger struct {
		Path     string `yaml:"path" json:"path"`
		SkipSeen bool   `yaml:"skipSeen" json:"skipSeen"`
	} `yaml:"ledger" json:"ledger"`

	Convert struct {
		RecordTag  string `yaml:"recordTag" json:"recordTag"`
		Locate     string `yaml:"locate" json:"locate"`
		Strict     bool   `yaml:"strict" json:"strict"`
		MaxFilings int    `yaml:"maxFilings" json:"maxFilings"`
	} `yaml:"convert" json:"convert"`

	Cache struct {
		Dir         string   `yaml:"dir" json:"dir"`
		MaxAge      Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool     `yaml:"clear" json:"clear"`
		Bypass      bool     `yaml:"bypass" json:"bypass"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms"`
		MaxBytes    int64    `yaml:"maxBytes" json:"maxBytes"`
		MaxEntries  int      `yaml:"maxEntries" json:"maxEntries"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Duration accepts Go duration strings ("24h") in YAML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value the file sets onto cfg. Call it on
// defaults, before env and flags are applied.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	if fc.SEC.Base != "" {
		cfg.BaseURL = fc.SEC.Base
	}
	if fc.SEC.FormType != "" {
		cfg.FormType = fc.SEC.FormType
	}
	if fc.SEC.Count > 0 {
		cfg.Count = fc.SEC.Count
	}
	if fc.SEC.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = fc.SEC.RequestsPerSecond
	}

	if fc.Out.Dir != "" {
		cfg.OutputDir = fc.Out.Dir
	}
	if fc.Out.Manifest != "" {
		cfg.ManifestPath = fc.Out.Manifest
	}
	if fc.Ledger.Path != "" {
		cfg.LedgerPath = fc.Ledger.Path
	}
	if fc.Ledger.SkipSeen {
		cfg.SkipSeen = true
	}

	if fc.Convert.RecordTag != "" {
		cfg.RecordTag = fc.Convert.RecordTag
	}
	if fc.Convert.Locate != "" {
		cfg.LocateRule = fc.Convert.Locate
	}
	if fc.Convert.Strict {
		cfg.Strict = true
	}
	if fc.Convert.MaxFilings > 0 {
		cfg.MaxFilings = fc.Convert.MaxFilings
	}

	if fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = time.Duration(fc.Cache.MaxAge)
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.Bypass {
		cfg.CacheBypass = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if fc.Cache.MaxEntries > 0 {
		cfg.CacheMaxEntries = fc.Cache.MaxEntries
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal validation of required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Identifier) == "" {
		return errors.New("config: a CIK or ticker is required")
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		// EDGAR rejects anonymous clients with 403.
		return errors.New("config: user agent is required (-ua or SEC_USER_AGENT), e.g. \"Name admin@example.com\"")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return errors.New("config: output dir is required")
	}
	if cfg.Count < 0 || cfg.MaxFilings < 0 || cfg.RequestsPerSecond < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxEntries < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if _, err := edgar.ParseSelectionRule(cfg.LocateRule); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.SkipSeen && strings.TrimSpace(cfg.LedgerPath) == "" {
		return errors.New("config: -skip-seen needs a ledger path")
	}
	return nil
}
