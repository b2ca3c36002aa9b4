// Package diff computes line diffs between CV revisions.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

type Hunk struct {
	OldStart int    `json:"old_start"`
	NewStart int    `json:"new_start"`
	Lines    []Line `json:"lines"`
}

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// Lines annotates every line of before and after as context, added or removed.
func Lines(before, after string) []Line {
	oldText, newText, lineArray := linesToRunes(splitLines(before), splitLines(after))
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(oldText, newText, false)

	var lines []Line
	oldLine := 1
	newLine := 1
	for _, d := range diffs {
		for _, r := range d.Text {
			line := lineArray[runeIndex(r)]
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: line, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: line, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: line, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// splitLines splits on newlines. A trailing newline terminates the last
// line rather than starting an empty one.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// linesToRunes encodes each distinct line as one rune so the diff runs
// line by line. lineArray maps a rune back to its line via runeIndex.
func linesToRunes(a, b []string) ([]rune, []rune, []string) {
	index := map[string]int{}
	var lineArray []string
	encode := func(lines []string) []rune {
		out := make([]rune, len(lines))
		for i, l := range lines {
			n, ok := index[l]
			if !ok {
				n = len(lineArray)
				index[l] = n
				lineArray = append(lineArray, l)
			}
			out[i] = indexRune(n)
		}
		return out
	}
	return encode(a), encode(b), lineArray
}

// Surrogate code points are skipped so every encoded rune survives the
// library's round trips through string.
const surrogateStart, surrogateLen = 0xD800, 0x800

func indexRune(n int) rune {
	r := rune(n + 1)
	if r >= surrogateStart {
		r += surrogateLen
	}
	return r
}

func runeIndex(r rune) int {
	if r >= surrogateStart+surrogateLen {
		r -= surrogateLen
	}
	return int(r) - 1
}

// TextDiff groups changed lines into hunks with up to context unchanged
// lines on either side. Identical inputs yield no hunks.
func TextDiff(before, after string, context int) []Hunk {
	if context < 0 {
		context = DefaultContext
	}
	lines := Lines(before, after)

	var hunks []Hunk
	var cur *Hunk
	lastChange := -1
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		start := max(i-context, 0)
		if cur != nil && start <= lastChange+context+1 {
			start = lastChange + 1
		} else {
			if cur != nil {
				cur.Lines = append(cur.Lines, lines[lastChange+1:min(lastChange+1+context, len(lines))]...)
				hunks = append(hunks, *cur)
			}
			cur = &Hunk{OldStart: oldStart(lines, start), NewStart: newStart(lines, start)}
		}
		cur.Lines = append(cur.Lines, lines[start:i+1]...)
		lastChange = i
	}
	if cur != nil {
		cur.Lines = append(cur.Lines, lines[lastChange+1:min(lastChange+1+context, len(lines))]...)
		hunks = append(hunks, *cur)
	}
	return hunks
}

// oldStart is the old-file line number at which lines[i:] begins.
func oldStart(lines []Line, i int) int {
	n := 1
	for _, l := range lines[:i] {
		if l.Type != LineAdded {
			n++
		}
	}
	return n
}

func newStart(lines []Line, i int) int {
	n := 1
	for _, l := range lines[:i] {
		if l.Type != LineRemoved {
			n++
		}
	}
	return n
}

const MaxDiffLines = 5000

// TextDiffWithLimit is TextDiff that refuses oversized inputs, reporting
// true when the limit was hit.
func TextDiffWithLimit(before, after string, maxLines, context int) ([]Hunk, bool) {
	if maxLines <= 0 {
		maxLines = MaxDiffLines
	}
	if lineCount(before)+lineCount(after) > maxLines {
		return nil, true
	}
	return TextDiff(before, after, context), false
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, "\n") + 1
}

type Summary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

func Summarize(hunks []Hunk) Summary {
	var s Summary
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				s.Added++
			case LineRemoved:
				s.Removed++
			}
		}
	}
	return s
}

// Unified renders hunks in unified diff notation.
func Unified(hunks []Hunk) string {
	var sb strings.Builder
	for _, h := range hunks {
		var oldN, newN int
		for _, l := range h.Lines {
			if l.Type != LineAdded {
				oldN++
			}
			if l.Type != LineRemoved {
				newN++
			}
		}
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, oldN, h.NewStart, newN)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
