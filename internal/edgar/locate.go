package edgar

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrStructuredFileNotFound means the envelope does not declare the document
// holding the information table.
var ErrStructuredFileNotFound = errors.New("structured data file not found")

// SelectionRule decides which declared document holds the information table.
type SelectionRule string

const (
	// SecondDeclared picks the second <FILENAME> in the envelope. 13F-HR
	// submissions declare the primary cover document first and the
	// information table second.
	SecondDeclared SelectionRule = "second"
	// InformationTable picks the first document whose <TYPE> is
	// INFORMATION TABLE.
	InformationTable SelectionRule = "infotable"
)

// InformationTableType is the document type EDGAR assigns to 13F tables.
const InformationTableType = "INFORMATION TABLE"

// ParseSelectionRule maps a config value to a rule. Empty selects SecondDeclared.
func ParseSelectionRule(s string) (SelectionRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "second", "second-declared", "positional":
		return SecondDeclared, nil
	case "infotable", "information-table", "type":
		return InformationTable, nil
	default:
		return "", fmt.Errorf("unknown locate rule %q", s)
	}
}

// DeclaredDocument is one <FILENAME> declaration with the <TYPE> and
// <SEQUENCE> of its enclosing <DOCUMENT> block, when present.
type DeclaredDocument struct {
	Sequence string
	Type     string
	Filename string
}

// DeclaredDocuments lists every <FILENAME> declaration in envelope order.
func DeclaredDocuments(envelope string) []DeclaredDocument {
	var (
		out     []DeclaredDocument
		curType string
		curSeq  string
	)
	sc := bufio.NewScanner(strings.NewReader(envelope))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "<DOCUMENT>"):
			curType, curSeq = "", ""
		case strings.HasPrefix(trimmed, "<TYPE>"):
			curType = tagValue(trimmed, "<TYPE>")
		case strings.HasPrefix(trimmed, "<SEQUENCE>"):
			curSeq = tagValue(trimmed, "<SEQUENCE>")
		}
		if i := strings.Index(line, "<FILENAME>"); i >= 0 {
			name := tagValue(line[i:], "<FILENAME>")
			if name == "" {
				continue
			}
			out = append(out, DeclaredDocument{Sequence: curSeq, Type: curType, Filename: name})
		}
	}
	return out
}

// Locate returns the declared document holding the structured table.
func Locate(envelope string, rule SelectionRule) (DeclaredDocument, error) {
	docs := DeclaredDocuments(envelope)
	switch rule {
	case "", SecondDeclared:
		if len(docs) < 2 {
			return DeclaredDocument{}, fmt.Errorf("%w: envelope declares %d file(s), need at least 2", ErrStructuredFileNotFound, len(docs))
		}
		return docs[1], nil
	case InformationTable:
		for _, d := range docs {
			if strings.EqualFold(d.Type, InformationTableType) {
				return d, nil
			}
		}
		return DeclaredDocument{}, fmt.Errorf("%w: no %s document among %d declared", ErrStructuredFileNotFound, InformationTableType, len(docs))
	default:
		return DeclaredDocument{}, fmt.Errorf("unknown locate rule %q", rule)
	}
}

func tagValue(line, tag string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, tag))
}
