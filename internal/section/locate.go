package section

import (
	"strings"
	"unicode/utf8"
)

// fuzzyMaxLen bounds the length of a line accepted as a header by the
// substring fallback.
const fuzzyMaxLen = 50

// Match describes where a section sits inside a document.
// Lines are zero-based; EndLine is exclusive. Offsets index the original
// document bytes, so doc[:StartOffset]+doc[StartOffset:EndOffset]+doc[EndOffset:]
// is always doc.
type Match struct {
	Found       bool     `json:"found"`
	Category    Category `json:"category"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Header      string   `json:"header"`
	Content     string   `json:"content"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	Fuzzy       bool     `json:"fuzzy,omitempty"`
}

// Split returns the text before, inside and after the matched section.
func (m Match) Split(doc string) (before, inside, after string) {
	if !m.Found {
		return doc, "", ""
	}
	return doc[:m.StartOffset], doc[m.StartOffset:m.EndOffset], doc[m.EndOffset:]
}

// Body returns the section content without its header line.
func (m Match) Body() string {
	if !m.Found {
		return ""
	}
	_, body, ok := strings.Cut(m.Content, "\n")
	if !ok {
		return ""
	}
	return body
}

// Locate finds the first header of category c in doc and the extent of
// its section. A missing section is reported with Found=false; the only
// error is an unknown category.
func Locate(doc string, c Category) (Match, error) {
	d, err := Lookup(c)
	if err != nil {
		return Match{}, err
	}
	return locate(splitLines(doc), c, d), nil
}

func locate(ls lines, c Category, d *Descriptor) Match {
	start := -1
	for i, l := range ls.text {
		if d.matches(normalize(l)) {
			start = i
			break
		}
	}
	fuzzy := false
	if start < 0 {
		start = fuzzyHeader(ls.text, c)
		fuzzy = start >= 0
	}
	if start < 0 {
		return Match{Category: c}
	}

	end := len(ls.text)
	for j := start + 1; j < len(ls.text); j++ {
		if _, ok := headerCategory(ls.text[j], c); ok {
			end = j
			break
		}
	}

	return Match{
		Found:       true,
		Category:    c,
		StartLine:   start,
		EndLine:     end,
		Header:      strings.TrimSpace(ls.text[start]),
		Content:     strings.Join(ls.text[start:end], "\n"),
		StartOffset: ls.offset(start),
		EndOffset:   ls.offset(end),
		Fuzzy:       fuzzy,
	}
}

// fuzzyHeader accepts a short, non-bullet line containing the category name.
func fuzzyHeader(text []string, c Category) int {
	name := c.Title()
	for i, l := range text {
		t := strings.TrimSpace(l)
		if t == "" || utf8.RuneCountInString(t) >= fuzzyMaxLen || isBullet(t) {
			continue
		}
		if strings.Contains(strings.ToUpper(t), name) {
			return i
		}
	}
	return -1
}

func isBullet(t string) bool {
	r, _ := utf8.DecodeRuneInString(t)
	switch r {
	case '-', '*', '•', '·', '‣', '◦', '+', '>':
		return true
	}
	return false
}

// Heading is one recognized section header.
type Heading struct {
	Line     int      `json:"line"`
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// Outline lists every line that the pattern table recognizes as a header.
// A line matching several categories is attributed to the first in table order.
func Outline(doc string) []Heading {
	var out []Heading
	for i, l := range splitLines(doc).text {
		if c, ok := headerCategory(l, ""); ok {
			out = append(out, Heading{Line: i, Category: c, Text: strings.TrimSpace(l)})
		}
	}
	return out
}

// lines is a document split on '\n'. A final newline terminates the last
// line rather than starting an empty one.
type lines struct {
	text     []string
	trailing bool
	size     int
}

func splitLines(doc string) lines {
	if doc == "" {
		return lines{}
	}
	ls := lines{size: len(doc)}
	if strings.HasSuffix(doc, "\n") {
		ls.trailing = true
		doc = doc[:len(doc)-1]
	}
	ls.text = strings.Split(doc, "\n")
	return ls
}

// offset returns the byte offset at which line i starts; len(text) maps to
// the end of the document.
func (ls lines) offset(i int) int {
	if i >= len(ls.text) {
		return ls.size
	}
	off := 0
	for _, l := range ls.text[:i] {
		off += len(l) + 1
	}
	return off
}

func (ls lines) join() string {
	if len(ls.text) == 0 {
		return ""
	}
	s := strings.Join(ls.text, "\n")
	if ls.trailing {
		s += "\n"
	}
	return s
}

func isBlank(l string) bool {
	return strings.TrimSpace(l) == ""
}
