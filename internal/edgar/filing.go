package edgar

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the public EDGAR host.
const DefaultBaseURL = "https://www.sec.gov"

// FilingReference identifies one filing of one filer.
type FilingReference struct {
	CIK        string
	Accession  string // dashed form, e.g. 0000950123-24-008740
	FilingDate string
	FormType   string
}

// CompactAccession is the accession number without separators, as used in
// archive directory names.
func (f FilingReference) CompactAccession() string {
	return strings.ReplaceAll(f.Accession, "-", "")
}

// IsNumericIdentifier reports whether id is a CIK rather than a ticker symbol.
// Like EDGAR itself, only the first character is inspected.
func IsNumericIdentifier(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id[0] >= '0' && id[0] <= '9'
}

// ArchiveCIK drops leading zeros; archive paths use the integer form.
func ArchiveCIK(cik string) string {
	s := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if s == "" {
		return "0"
	}
	return s
}

// URLs builds EDGAR endpoints relative to Base.
type URLs struct {
	Base string
}

func (u URLs) base() string {
	b := strings.TrimRight(strings.TrimSpace(u.Base), "/")
	if b == "" {
		return DefaultBaseURL
	}
	return b
}

// Feed returns the Atom company browse URL listing filings of formType.
func (u URLs) Feed(identifier, formType string, count int) string {
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", identifier)
	q.Set("type", formType)
	q.Set("dateb", "")
	q.Set("owner", "exclude")
	q.Set("start", "0")
	q.Set("count", fmt.Sprintf("%d", count))
	q.Set("output", "atom")
	return u.base() + "/cgi-bin/browse-edgar?" + q.Encode()
}

// Envelope returns the URL of the full SGML submission text.
func (u URLs) Envelope(ref FilingReference) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s.txt",
		u.base(), ArchiveCIK(ref.CIK), ref.CompactAccession(), ref.Accession)
}

// Document returns the URL of one file declared inside the filing.
func (u URLs) Document(ref FilingReference, filename string) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		u.base(), ArchiveCIK(ref.CIK), ref.CompactAccession(), url.PathEscape(filename))
}
