package table

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hyperifyio/go13f/internal/markup"
)

// DefaultRecordTag marks one holding in a 13F information table.
const DefaultRecordTag = "infoTable"

var (
	// ErrSchemaNotFound means the document holds no record elements.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrShapeMismatch means at least one row does not match the schema width.
	ErrShapeMismatch = errors.New("row length does not match schema")
)

// Table is the flattened form of one information table.
type Table struct {
	Schema []string
	Rows   [][]string
	// BaseName is the source file name without its three-letter extension,
	// keeping the trailing dot.
	BaseName string
}

// Extract finds every recordTag element under doc, derives the schema from the
// first one and flattens each of them into a row. Row widths are not checked
// here; see Mismatches.
func Extract(doc *markup.Node, recordTag string, sourceName string) (Table, error) {
	if recordTag == "" {
		recordTag = DefaultRecordTag
	}
	records := doc.ElementsByName(recordTag)
	if len(records) == 0 {
		return Table{}, fmt.Errorf("%w: no <%s> elements", ErrSchemaNotFound, recordTag)
	}
	t := Table{
		Schema:   markup.Flatten(records[0].Children, markup.Keys),
		Rows:     make([][]string, 0, len(records)),
		BaseName: BaseName(sourceName),
	}
	for _, rec := range records {
		t.Rows = append(t.Rows, markup.Flatten(rec.Children, markup.Values))
	}
	return t, nil
}

// BaseName strips the directory and a three-character extension from name,
// leaving the dot in place: "form13fInfoTable.xml" becomes "form13fInfoTable.".
// Names without such an extension get a dot appended so callers can always
// add an extension directly.
func BaseName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		name = ""
	}
	if ext := path.Ext(name); len(ext) == 4 {
		return strings.TrimSuffix(name, ext[1:])
	}
	return name + "."
}

// Mismatches returns the indexes of rows whose width differs from the schema.
func (t Table) Mismatches() []int {
	var out []int
	for i, r := range t.Rows {
		if len(r) != len(t.Schema) {
			out = append(out, i)
		}
	}
	return out
}

// CheckShape returns ErrShapeMismatch describing the first offending rows.
func (t Table) CheckShape() error {
	bad := t.Mismatches()
	if len(bad) == 0 {
		return nil
	}
	first := bad[0]
	return fmt.Errorf("%w: %d of %d rows differ (row %d has %d cells, schema has %d)",
		ErrShapeMismatch, len(bad), len(t.Rows), first, len(t.Rows[first]), len(t.Schema))
}

// UnsafeCells counts header and body cells containing a tab or line break.
// Such cells are written verbatim and will not survive a tab-split reader.
func (t Table) UnsafeCells() int {
	n := 0
	count := func(cells []string) {
		for _, c := range cells {
			if strings.ContainsAny(c, "\t\r\n") {
				n++
			}
		}
	}
	count(t.Schema)
	for _, r := range t.Rows {
		count(r)
	}
	return n
}
