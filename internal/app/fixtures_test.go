package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeFiling is one filing served by fakeEDGAR.
type fakeFiling struct {
	accession string
	// envelope lists the declared filenames; bodies maps filename to payload.
	filenames []string
	// types overrides the <TYPE> of each declared document.
	types  []string
	bodies map[string]string
}

const infoTableXML = `<?xml version="1.0" encoding="UTF-8"?>
<informationTable xmlns="http://www.sec.gov/edgar/document/thirteenf/informationtable">
  <infoTable>
    <nameOfIssuer>APPLE INC</nameOfIssuer>
    <titleOfClass>COM</titleOfClass>
    <cusip>037833100</cusip>
    <value>84247833</value>
    <shrsOrPrnAmt>
      <sshPrnamt>400000000</sshPrnamt>
      <sshPrnamtType>SH</sshPrnamtType>
    </shrsOrPrnAmt>
    <investmentDiscretion>DFND</investmentDiscretion>
    <votingAuthority>
      <Sole>400000000</Sole>
      <Shared>0</Shared>
      <None>0</None>
    </votingAuthority>
  </infoTable>
  <infoTable>
    <nameOfIssuer>AT&amp;T INC</nameOfIssuer>
    <titleOfClass>COM</titleOfClass>
    <cusip>00206R102</cusip>
    <value>1000</value>
    <shrsOrPrnAmt>
      <sshPrnamt>50</sshPrnamt>
      <sshPrnamtType>SH</sshPrnamtType>
    </shrsOrPrnAmt>
    <investmentDiscretion>SOLE</investmentDiscretion>
    <votingAuthority>
      <Sole>50</Sole>
      <Shared>0</Shared>
      <None>0</None>
    </votingAuthority>
  </infoTable>
</informationTable>
`

// raggedXML has a second record missing the class column.
const raggedXML = `<informationTable>
  <infoTable><nameOfIssuer>A</nameOfIssuer><titleOfClass>COM</titleOfClass><value>1</value></infoTable>
  <infoTable><nameOfIssuer>B</nameOfIssuer><titleOfClass></titleOfClass><value>2</value></infoTable>
</informationTable>`

const infoTableHeader = "nameOfIssuer\ttitleOfClass\tcusip\tvalue\tsshPrnamt\tsshPrnamtType\tinvestmentDiscretion\tSole\tShared\tNone"

func makeEnvelope(accession string, filenames, types []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<SEC-DOCUMENT>%s.txt : 20240814\n<SEC-HEADER>\nACCESSION NUMBER:\t\t%s\n</SEC-HEADER>\n", accession, accession)
	for i, name := range filenames {
		typ := "13F-HR"
		if i < len(types) {
			typ = types[i]
		} else if i > 0 {
			typ = "INFORMATION TABLE"
		}
		fmt.Fprintf(&b, "<DOCUMENT>\r\n<TYPE>%s\r\n<SEQUENCE>%d\r\n<FILENAME>%s\r\n<TEXT>\r\n</TEXT>\r\n</DOCUMENT>\r\n", typ, i+1, name)
	}
	b.WriteString("</SEC-DOCUMENT>\n")
	return b.String()
}

func makeAtom(cik string, filings []fakeFiling) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="ISO-8859-1" ?>` + "\n")
	b.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">`)
	if cik != "" {
		fmt.Fprintf(&b, `<company-info><cik>%s</cik><conformed-name>BERKSHIRE HATHAWAY INC</conformed-name></company-info>`, cik)
	}
	for _, f := range filings {
		fmt.Fprintf(&b, `<entry><category term="13F-HR"/><content type="text/xml"><accession-number>%s</accession-number><filing-date>2024-08-14</filing-date><filing-type>13F-HR</filing-type></content></entry>`, f.accession)
	}
	b.WriteString(`</feed>`)
	return b.String()
}

const (
	archiveETag = `"archive-v1"`
	// conditionalHit counts archive requests answered with 304.
	conditionalHit = "304"
)

// hits counts requests per path.
type hits struct {
	mu     sync.Mutex
	byPath map[string]int
}

func (h *hits) add(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byPath[path]++
}

func (h *hits) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byPath[path]
}

// fakeEDGAR serves an Atom feed for cik and the archive paths of filings.
func fakeEDGAR(t *testing.T, cik string, filings []fakeFiling) (*httptest.Server, *hits) {
	t.Helper()
	requests := &hits{byPath: map[string]int{}}
	archiveCIK := strings.TrimLeft(cik, "0")
	routes := map[string]struct{ ct, body string }{}
	for _, f := range filings {
		dir := "/Archives/edgar/data/" + archiveCIK + "/" + strings.ReplaceAll(f.accession, "-", "")
		routes[dir+"/"+f.accession+".txt"] = struct{ ct, body string }{"text/plain", makeEnvelope(f.accession, f.filenames, f.types)}
		for name, body := range f.bodies {
			routes[dir+"/"+name] = struct{ ct, body string }{"text/xml", body}
		}
	}
	atom := makeAtom(cik, filings)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.add(r.URL.Path)
		if r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path == "/cgi-bin/browse-edgar" {
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(atom))
			return
		}
		rt, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		// Archive documents never change, so one ETag serves them all.
		if r.Header.Get("If-None-Match") == archiveETag {
			requests.add(conditionalHit)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", archiveETag)
		w.Header().Set("Content-Type", rt.ct)
		_, _ = w.Write([]byte(rt.body))
	}))
	t.Cleanup(ts.Close)
	return ts, requests
}

func testConfig(baseURL, outDir string) Config {
	cfg := DefaultConfig()
	cfg.Identifier = "BRK"
	cfg.UserAgent = "Test Runner test@example.com"
	cfg.BaseURL = baseURL
	cfg.OutputDir = outDir
	cfg.CacheDir = ""
	cfg.RequestsPerSecond = 0
	return cfg
}
