package markup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrMalformedMarkup is returned when the input cannot be parsed into a
// complete element tree.
var ErrMalformedMarkup = errors.New("malformed markup")

// Kind distinguishes element nodes from text nodes.
type Kind int

const (
	ElementNode Kind = iota
	TextNode
)

// Node is one node of a parsed markup tree. Element names are stored without
// their namespace prefix, so <ns1:infoTable> and <infoTable> both match
// "infoTable".
type Node struct {
	Kind     Kind
	Name     string
	Text     string
	Children []*Node
}

// IsLeaf reports whether n is an element holding exactly one text child.
func (n *Node) IsLeaf() bool {
	return n != nil && n.Kind == ElementNode && len(n.Children) == 1 && n.Children[0].Kind == TextNode
}

// TextValue returns the text of a leaf element, or "" for anything else.
func (n *Node) TextValue() string {
	if !n.IsLeaf() {
		return ""
	}
	return n.Children[0].Text
}

// ElementsByName returns every element named name below n (n included), in
// document order.
func (n *Node) ElementsByName(name string) []*Node {
	var out []*Node
	var dfs func(*Node)
	dfs = func(cur *Node) {
		if cur.Kind == ElementNode && cur.Name == name {
			out = append(out, cur)
		}
		for _, c := range cur.Children {
			dfs(c)
		}
	}
	if n != nil {
		dfs(n)
	}
	return out
}

// FindFirst returns the first element named name in document order, or nil.
func (n *Node) FindFirst(name string) *Node {
	var res *Node
	var dfs func(*Node)
	dfs = func(cur *Node) {
		if res != nil {
			return
		}
		if cur.Kind == ElementNode && cur.Name == name {
			res = cur
			return
		}
		for _, c := range cur.Children {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	if n != nil {
		dfs(n)
	}
	return res
}

// Parse reads an XML document and returns a synthetic root element whose
// children are the document's top-level elements. Whitespace-only character
// data is dropped from elements that also contain elements, so indentation
// never counts as a child; an element whose only content is whitespace keeps
// it as its text. Comments, processing instructions and directives are
// ignored. Any syntax error, unbalanced tag or missing root element yields
// ErrMalformedMarkup and no tree.
func Parse(r io.Reader) (*Node, error) {
	dec := NewDecoder(r)
	root := &Node{Kind: ElementNode}
	stack := []*Node{root}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMarkup, err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Node{Kind: ElementNode, Name: t.Name.Local}
			top.Children = append(top.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 1 {
				return nil, fmt.Errorf("%w: unexpected end element %q", ErrMalformedMarkup, t.Name.Local)
			}
			pruneIndentation(top)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 1 {
				continue
			}
			appendText(top, string(t))
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: unclosed element %q", ErrMalformedMarkup, stack[len(stack)-1].Name)
	}
	if len(root.Children) == 0 {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedMarkup)
	}
	return root, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// NewDecoder returns an xml.Decoder that skips a leading byte order mark and
// converts non-UTF-8 declared encodings. It is shared with other decoders of
// EDGAR XML so every payload is read the same way.
func NewDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = true
	return dec
}

// appendText merges adjacent character data (text split around entities or
// CDATA sections arrives as several tokens) into a single text node.
func appendText(parent *Node, s string) {
	if n := len(parent.Children); n > 0 && parent.Children[n-1].Kind == TextNode {
		parent.Children[n-1].Text += s
		return
	}
	parent.Children = append(parent.Children, &Node{Kind: TextNode, Text: s})
}

// pruneIndentation removes whitespace-only text children from an element that
// has element children.
func pruneIndentation(n *Node) {
	hasElement := false
	for _, c := range n.Children {
		if c.Kind == ElementNode {
			hasElement = true
			break
		}
	}
	if !hasElement {
		return
	}
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Kind == TextNode && strings.TrimSpace(c.Text) == "" {
			continue
		}
		kept = append(kept, c)
	}
	n.Children = kept
}
