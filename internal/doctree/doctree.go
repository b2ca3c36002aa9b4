package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page/line (0 if N/A)
	Children []*DocNode // Subsections
}

// Text flattens the tree into plain CV text. Each heading sits on its own
// line and blocks are separated by one blank line.
func (t *DocTree) Text() string {
	var blocks []string
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			title := strings.TrimSpace(n.Title)
			body := strings.TrimSpace(n.Text)
			switch {
			case title != "" && body != "":
				blocks = append(blocks, title+"\n"+body)
			case title != "":
				blocks = append(blocks, title)
			case body != "":
				blocks = append(blocks, body)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// Headings returns every non-empty node title in document order.
func (t *DocTree) Headings() []string {
	var out []string
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if s := strings.TrimSpace(n.Title); s != "" {
				out = append(out, s)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return out
}
