package edgar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const envelope = `<SEC-DOCUMENT>0000950123-24-008740.txt : 20240814
<SEC-HEADER>0000950123-24-008740.hdr.sgml : 20240814
ACCESSION NUMBER:		0000950123-24-008740
CONFORMED SUBMISSION TYPE:	13F-HR
</SEC-HEADER>
<DOCUMENT>
<TYPE>13F-HR
<SEQUENCE>1
<FILENAME>primary_doc.xml
<TEXT>
<XML>
<edgarSubmission/>
</XML>
</TEXT>
</DOCUMENT>
<DOCUMENT>
<TYPE>INFORMATION TABLE
<SEQUENCE>2
<FILENAME>form13fInfoTable.xml
<TEXT>
<XML>
<informationTable/>
</XML>
</TEXT>
</DOCUMENT>
</SEC-DOCUMENT>
`

func TestDeclaredDocuments(t *testing.T) {
	docs := DeclaredDocuments(envelope)
	if len(docs) != 2 {
		t.Fatalf("expected 2 declared documents, got %d", len(docs))
	}
	want := DeclaredDocument{Sequence: "2", Type: "INFORMATION TABLE", Filename: "form13fInfoTable.xml"}
	if docs[1] != want {
		t.Fatalf("docs[1]=%+v, want %+v", docs[1], want)
	}
	if docs[0].Filename != "primary_doc.xml" || docs[0].Type != "13F-HR" {
		t.Fatalf("docs[0]=%+v", docs[0])
	}
}

func TestLocate_SecondDeclared(t *testing.T) {
	d, err := Locate(envelope, SecondDeclared)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if d.Filename != "form13fInfoTable.xml" {
		t.Fatalf("Filename=%q", d.Filename)
	}
}

func TestLocate_CRLFEnvelope(t *testing.T) {
	crlf := strings.ReplaceAll(envelope, "\n", "\r\n")
	d, err := Locate(crlf, SecondDeclared)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if d.Filename != "form13fInfoTable.xml" {
		t.Fatalf("Filename=%q, expected carriage return trimmed", d.Filename)
	}
}

func TestLocate_SingleFilenameFails(t *testing.T) {
	single := "<DOCUMENT>\n<TYPE>13F-HR\n<FILENAME>primary_doc.xml\n</DOCUMENT>\n"
	_, err := Locate(single, SecondDeclared)
	if !errors.Is(err, ErrStructuredFileNotFound) {
		t.Fatalf("expected ErrStructuredFileNotFound, got %v", err)
	}
	_, err = Locate("", SecondDeclared)
	if !errors.Is(err, ErrStructuredFileNotFound) {
		t.Fatalf("expected ErrStructuredFileNotFound on empty envelope, got %v", err)
	}
}

func TestLocate_InformationTableRule(t *testing.T) {
	// Table declared third: positional rule picks the wrong file, type rule does not.
	env := "<DOCUMENT>\n<TYPE>13F-HR\n<FILENAME>primary_doc.xml\n</DOCUMENT>\n" +
		"<DOCUMENT>\n<TYPE>EX-99\n<FILENAME>cover.htm\n</DOCUMENT>\n" +
		"<DOCUMENT>\n<TYPE>INFORMATION TABLE\n<FILENAME>table.xml\n</DOCUMENT>\n"
	d, err := Locate(env, InformationTable)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if d.Filename != "table.xml" {
		t.Fatalf("Filename=%q", d.Filename)
	}
	pos, err := Locate(env, SecondDeclared)
	if err != nil || pos.Filename != "cover.htm" {
		t.Fatalf("positional rule: %+v %v", pos, err)
	}
	_, err = Locate("<DOCUMENT>\n<TYPE>13F-HR\n<FILENAME>a.xml\n<DOCUMENT>\n<TYPE>X\n<FILENAME>b.xml\n", InformationTable)
	if !errors.Is(err, ErrStructuredFileNotFound) {
		t.Fatalf("expected ErrStructuredFileNotFound, got %v", err)
	}
}

func TestParseSelectionRule(t *testing.T) {
	cases := map[string]SelectionRule{"": SecondDeclared, "second": SecondDeclared, "InfoTable": InformationTable}
	for in, want := range cases {
		got, err := ParseSelectionRule(in)
		if err != nil || got != want {
			t.Fatalf("ParseSelectionRule(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseSelectionRule("third"); err == nil {
		t.Fatalf("expected error for unknown rule")
	}
}

func TestURLs(t *testing.T) {
	u := URLs{Base: "https://example.test/"}
	ref := FilingReference{CIK: "0001067983", Accession: "0000950123-24-008740"}
	if got := u.Envelope(ref); got != "https://example.test/Archives/edgar/data/1067983/000095012324008740/0000950123-24-008740.txt" {
		t.Fatalf("Envelope=%q", got)
	}
	if got := u.Document(ref, "form13fInfoTable.xml"); got != "https://example.test/Archives/edgar/data/1067983/000095012324008740/form13fInfoTable.xml" {
		t.Fatalf("Document=%q", got)
	}
	feed, err := url.Parse(URLs{}.Feed("BRK", "13F-HR", 40))
	if err != nil {
		t.Fatalf("parse feed url: %v", err)
	}
	q := feed.Query()
	if feed.Host != "www.sec.gov" || q.Get("CIK") != "BRK" || q.Get("type") != "13F-HR" || q.Get("output") != "atom" || q.Get("count") != "40" {
		t.Fatalf("unexpected feed url %s", feed)
	}
}

func TestIdentifierHelpers(t *testing.T) {
	if !IsNumericIdentifier("0001067983") || IsNumericIdentifier("BRK") || IsNumericIdentifier("") {
		t.Fatalf("IsNumericIdentifier misclassified")
	}
	if ArchiveCIK("0001067983") != "1067983" || ArchiveCIK("000") != "0" {
		t.Fatalf("ArchiveCIK unexpected")
	}
	if (FilingReference{Accession: "0000950123-24-008740"}).CompactAccession() != "000095012324008740" {
		t.Fatalf("CompactAccession unexpected")
	}
}

const atomBody = `<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
<company-info>
<cik>0001067983</cik>
<conformed-name>BERKSHIRE HATHAWAY INC</conformed-name>
</company-info>
<entry>
<content type="text/xml">
<accession-number>0000950123-24-008740</accession-number>
<filing-date>2024-08-14</filing-date>
<filing-type>13F-HR</filing-type>
</content>
</entry>
<entry>
<content type="text/xml">
<accession-number>0000950123-24-005886</accession-number>
<filing-date>2024-05-15</filing-date>
<filing-type>13F-HR</filing-type>
</content>
</entry>
<entry><content type="text/xml"></content></entry>
</feed>`

type getterFunc func(ctx context.Context, url string) ([]byte, string, error)

func (f getterFunc) Get(ctx context.Context, url string) ([]byte, string, error) { return f(ctx, url) }

func TestParseFeed_TickerResolvesCIK(t *testing.T) {
	f, err := ParseFeed([]byte(atomBody), "BRK")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CIK != "0001067983" || f.CompanyName != "BERKSHIRE HATHAWAY INC" {
		t.Fatalf("unexpected feed header %+v", f)
	}
	if len(f.Filings) != 2 {
		t.Fatalf("expected 2 filings, got %d", len(f.Filings))
	}
	if f.Filings[0].Accession != "0000950123-24-008740" || f.Filings[0].CIK != "0001067983" || f.Filings[1].FilingDate != "2024-05-15" {
		t.Fatalf("unexpected filings %+v", f.Filings)
	}
}

func TestParseFeed_NumericKeepsInput(t *testing.T) {
	f, err := ParseFeed([]byte(atomBody), "1067983")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CIK != "1067983" {
		t.Fatalf("CIK=%q, want input kept", f.CIK)
	}
}

func TestParseFeed_UnknownTicker(t *testing.T) {
	_, err := ParseFeed([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`), "NOPE")
	if !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
}

func TestAtom_Feed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cgi-bin/browse-edgar" || r.URL.Query().Get("CIK") != "BRK" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomBody))
	}))
	defer srv.Close()

	src := &Atom{URLs: URLs{Base: srv.URL}, Getter: getterFunc(func(ctx context.Context, u string) ([]byte, string, error) {
		resp, err := srv.Client().Get(u)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		return b, resp.Header.Get("Content-Type"), err
	})}
	f, err := src.Feed(context.Background(), "BRK")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if f.CIK != "0001067983" || len(f.Filings) != 2 {
		t.Fatalf("unexpected feed %+v", f)
	}
	if src.Name() == "" {
		t.Fatalf("expected provider name")
	}
}

func TestAtom_FeedPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	src := &Atom{Getter: getterFunc(func(context.Context, string) ([]byte, string, error) { return nil, "", boom })}
	if _, err := src.Feed(context.Background(), "BRK"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}
