package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/cvchat/internal/doctree"
	"github.com/dgallion1/cvchat/internal/section"
)

// TextParser handles plain text CVs. A line the section table recognizes
// as a header opens a titled node; paragraphs before the first header are
// untitled nodes and later ones form the open section's body.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tree := &doctree.DocTree{
		Title: stripExt(filename, ".txt"),
	}

	var open *doctree.DocNode
	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		text := strings.Join(para, "\n")
		para = para[:0]
		if open == nil {
			tree.Children = append(tree.Children, &doctree.DocNode{Text: text})
			return
		}
		if open.Text != "" {
			open.Text += "\n\n"
		}
		open.Text += text
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case isSectionHeader(line):
			flush()
			open = &doctree.DocNode{Title: strings.TrimSpace(line)}
			tree.Children = append(tree.Children, open)
		default:
			para = append(para, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return tree, nil
}

func isSectionHeader(line string) bool {
	return len(section.Outline(line)) > 0
}
