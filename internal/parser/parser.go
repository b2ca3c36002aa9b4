package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/cvchat/internal/doctree"
)

// Parser converts raw document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tune parser selection.
type Options struct {
	// PDFFallbackPdftotext shells out to pdftotext when the pure-Go PDF
	// reader yields no text.
	PDFFallbackPdftotext bool
}

// DefaultOptions is what ForFile and ExtractText use.
var DefaultOptions = Options{PDFFallbackPdftotext: true}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	return DefaultOptions.ForFile(filename)
}

// ForFile returns the appropriate parser for a filename.
func (o Options) ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: o.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ExtractText parses r with the parser for filename and returns normalized
// CV text ready for section detection.
func ExtractText(r io.Reader, filename string) (string, *doctree.DocTree, error) {
	return DefaultOptions.ExtractText(r, filename)
}

func (o Options) ExtractText(r io.Reader, filename string) (string, *doctree.DocTree, error) {
	p, err := o.ForFile(filename)
	if err != nil {
		return "", nil, err
	}
	tree, err := p.Parse(r, filename)
	if err != nil {
		return "", nil, err
	}
	return Normalize(tree.Text()), tree, nil
}

// stripExt removes ext from the end of filename, ignoring case.
func stripExt(filename string, exts ...string) string {
	for _, ext := range exts {
		if len(filename) >= len(ext) && strings.EqualFold(filename[len(filename)-len(ext):], ext) {
			return filename[:len(filename)-len(ext)]
		}
	}
	return filename
}

// leadingText keeps text that appeared before the first heading (a CV's
// name and contact block) as its own node.
func leadingText(root *doctree.DocNode) []*doctree.DocNode {
	if root.Text == "" {
		return root.Children
	}
	return append([]*doctree.DocNode{{Text: root.Text}}, root.Children...)
}
