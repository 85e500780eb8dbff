package markup

// Mode selects what Flatten emits for each leaf element.
type Mode int

const (
	// Keys emits leaf element names.
	Keys Mode = iota
	// Values emits leaf element text.
	Values
)

func (m Mode) String() string {
	if m == Values {
		return "values"
	}
	return "keys"
}

// Flatten reduces nested elements to a flat list of leaf names or leaf
// values, depth-first and left to right. Keys and Values walk the same
// path, so calling both on trees of the same shape yields aligned slices.
//
// Elements with several children are unwrapped recursively, as is an element
// whose only child is another element. An element with a single text child
// contributes one entry. Empty elements and bare text nodes contribute
// nothing.
func Flatten(nodes []*Node, mode Mode) []string {
	out := []string{}
	for _, n := range nodes {
		if n == nil || n.Kind != ElementNode {
			continue
		}
		switch {
		case len(n.Children) > 1:
			out = append(out, Flatten(n.Children, mode)...)
		case n.IsLeaf():
			if mode == Keys {
				out = append(out, n.Name)
			} else {
				out = append(out, n.TextValue())
			}
		case len(n.Children) == 1:
			out = append(out, Flatten(n.Children, mode)...)
		}
	}
	return out
}
