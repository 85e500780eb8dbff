package edgar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperifyio/go13f/internal/markup"
)

// ErrUnknownIdentifier is returned when a ticker cannot be resolved to a CIK.
var ErrUnknownIdentifier = errors.New("identifier not resolved to a CIK")

// DefaultFormType is the institutional holdings report.
const DefaultFormType = "13F-HR"

// DefaultCount matches the page size EDGAR serves for company browse feeds.
const DefaultCount = 40

// Feed lists the filings of one filer.
type Feed struct {
	CIK         string
	CompanyName string
	Filings     []FilingReference
}

// Source produces the filings for an identifier, which may be a CIK or a
// ticker symbol. Implementations resolve tickers and report the CIK back.
type Source interface {
	Feed(ctx context.Context, identifier string) (Feed, error)
	Name() string
}

// Getter is the minimal HTTP dependency of the feed source.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// Atom implements Source against the EDGAR company browse Atom output.
type Atom struct {
	URLs     URLs
	FormType string
	Count    int
	Getter   Getter
}

func (a *Atom) Name() string { return "edgar-atom" }

func (a *Atom) Feed(ctx context.Context, identifier string) (Feed, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Feed{}, fmt.Errorf("%w: empty identifier", ErrUnknownIdentifier)
	}
	if a.Getter == nil {
		return Feed{}, errors.New("edgar feed: no http getter configured")
	}
	formType := a.FormType
	if formType == "" {
		formType = DefaultFormType
	}
	count := a.Count
	if count <= 0 {
		count = DefaultCount
	}
	body, _, err := a.Getter.Get(ctx, a.URLs.Feed(identifier, formType, count))
	if err != nil {
		return Feed{}, fmt.Errorf("fetch feed: %w", err)
	}
	return ParseFeed(body, identifier)
}

// ParseFeed decodes an Atom company feed. Numeric identifiers are taken as
// the CIK; otherwise the CIK comes from the feed's company-info block.
func ParseFeed(body []byte, identifier string) (Feed, error) {
	var af atomFeed
	if err := markup.NewDecoder(bytes.NewReader(body)).Decode(&af); err != nil {
		return Feed{}, fmt.Errorf("decode feed: %w: %v", markup.ErrMalformedMarkup, err)
	}
	cik := strings.TrimSpace(identifier)
	if !IsNumericIdentifier(cik) {
		cik = strings.TrimSpace(af.CompanyInfo.CIK)
		if cik == "" {
			return Feed{}, fmt.Errorf("%w: %q", ErrUnknownIdentifier, identifier)
		}
	}
	out := Feed{
		CIK:         cik,
		CompanyName: strings.TrimSpace(af.CompanyInfo.ConformedName),
		Filings:     make([]FilingReference, 0, len(af.Entries)),
	}
	for _, e := range af.Entries {
		acc := strings.TrimSpace(e.Content.AccessionNumber)
		if acc == "" {
			continue
		}
		out.Filings = append(out.Filings, FilingReference{
			CIK:        cik,
			Accession:  acc,
			FilingDate: strings.TrimSpace(e.Content.FilingDate),
			FormType:   strings.TrimSpace(e.Content.FilingType),
		})
	}
	return out, nil
}

type atomFeed struct {
	CompanyInfo struct {
		CIK           string `xml:"cik"`
		ConformedName string `xml:"conformed-name"`
	} `xml:"company-info"`
	Entries []struct {
		Content struct {
			AccessionNumber string `xml:"accession-number"`
			FilingDate      string `xml:"filing-date"`
			FilingType      string `xml:"filing-type"`
		} `xml:"content"`
	} `xml:"entry"`
}
