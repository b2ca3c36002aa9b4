package section

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode controls how new content merges with an existing section body.
type Mode string

const (
	Append  Mode = "append"
	Prepend Mode = "prepend"
	Replace Mode = "replace"
)

// ErrUnknownMode is returned for modes other than append, prepend and replace.
var ErrUnknownMode = errors.New("unknown insert mode")

// ParseMode resolves a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Append, Prepend, Replace:
		return m, nil
	case "":
		return Append, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Action reports what an edit did to the document.
type Action string

const (
	ActionAppended  Action = "appended"
	ActionPrepended Action = "prepended"
	ActionReplaced  Action = "replaced"
	ActionCreated   Action = "created"
	ActionRemoved   Action = "removed"
	ActionChanged   Action = "changed"
	ActionSkipped   Action = "skipped"
)

// Outcome is the result of an edit.
type Outcome struct {
	Document string `json:"document"`
	Action   Action `json:"action"`
	Match    Match  `json:"match"`
}

const headerRule = "________"

// HeaderFor returns the decorated header used when a section is created.
func HeaderFor(c Category) string {
	return headerRule + " " + c.Title() + " " + headerRule
}

// Insert places content into the c section of doc and returns the new text.
func Insert(doc string, c Category, content string, mode Mode) (string, error) {
	out, err := Apply(doc, c, content, mode)
	if err != nil {
		return "", err
	}
	return out.Document, nil
}

// Apply is Insert with a report of the action taken. Lines outside the
// located section are never dropped or reordered.
func Apply(doc string, c Category, content string, mode Mode) (Outcome, error) {
	d, err := Lookup(c)
	if err != nil {
		return Outcome{}, err
	}
	switch mode {
	case Append, Prepend, Replace:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	ls := splitLines(doc)
	add := contentLines(content)
	m := locate(ls, c, d)
	if !m.Found {
		return create(doc, ls, c, add), nil
	}

	var action Action
	switch mode {
	case Append:
		action = ActionAppended
		at := m.StartLine
		for i := m.EndLine - 1; i > m.StartLine; i-- {
			if !isBlank(ls.text[i]) {
				at = i
				break
			}
		}
		ls.text = splice(ls.text, at+1, at+1, add)
	case Prepend:
		action = ActionPrepended
		ls.text = splice(ls.text, m.StartLine+1, m.StartLine+1, add)
	case Replace:
		action = ActionReplaced
		tail := m.EndLine
		for tail-1 > m.StartLine && isBlank(ls.text[tail-1]) {
			tail--
		}
		ls.text = splice(ls.text, m.StartLine+1, tail, add)
	}
	return Outcome{Document: ls.join(), Action: action, Match: m}, nil
}

// create adds a new section block. Contact details already present in any
// form suppress a second contact block.
func create(doc string, ls lines, c Category, add []string) Outcome {
	if len(add) == 0 || (c == Contact && HasContactInfo(doc)) {
		return Outcome{Document: doc, Action: ActionSkipped, Match: Match{Category: c}}
	}

	at := insertionPoint(ls)
	block := make([]string, 0, len(add)+3)
	if at > 0 && !isBlank(ls.text[at-1]) {
		block = append(block, "")
	}
	block = append(block, HeaderFor(c))
	block = append(block, add...)
	if at < len(ls.text) && !isBlank(ls.text[at]) {
		block = append(block, "")
	}
	ls.text = splice(ls.text, at, at, block)

	return Outcome{Document: ls.join(), Action: ActionCreated, Match: Match{Category: c}}
}

// insertionPoint picks the line index before which a new section goes:
// after the objective/summary section when there is one, otherwise after
// the name block near the top of the document.
func insertionPoint(ls lines) int {
	n := len(ls.text)
	if n == 0 {
		return 0
	}
	if m := locate(ls, Objective, byCategory[Objective]); m.Found && !m.Fuzzy {
		at := m.EndLine
		for at-1 > m.StartLine && isBlank(ls.text[at-1]) {
			at--
		}
		return at
	}

	at := min(5, n)
	for i := 0; i < min(10, n); i++ {
		if isNameLine(ls.text[i]) {
			at = i + 1
			break
		}
	}
	// Never split a paragraph or contact block.
	for at < n && !isBlank(ls.text[at]) {
		if _, ok := headerCategory(ls.text[at], ""); ok {
			break
		}
		at++
	}
	return at
}

// isNameLine matches a short all-caps line that is not a section header,
// the usual shape of a name or title block.
func isNameLine(l string) bool {
	t := strings.TrimSpace(l)
	if t == "" || utf8.RuneCountInString(t) >= fuzzyMaxLen {
		return false
	}
	if _, ok := headerCategory(t, ""); ok {
		return false
	}
	letters := false
	for _, r := range t {
		if unicode.IsLetter(r) {
			letters = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return letters
}

var contactIndicators = regexp.MustCompile(
	`(?i)@|phone\s*:|email\s*:|e-mail\s*:|gmail|yahoo|outlook|hotmail|linkedin\.com|github\.com`)

// HasContactInfo reports whether doc already carries contact details.
func HasContactInfo(doc string) bool {
	return contactIndicators.MatchString(doc)
}

// Remove deletes body lines of the c section that mention fact. When fact is
// one item of a comma-separated line, only that item is dropped.
func Remove(doc string, c Category, fact string) (Outcome, error) {
	d, err := Lookup(c)
	if err != nil {
		return Outcome{}, err
	}
	ls := splitLines(doc)
	m := locate(ls, c, d)
	needle := strings.ToLower(strings.TrimSpace(fact))
	if !m.Found || needle == "" {
		return Outcome{Document: doc, Action: ActionSkipped, Match: m}, nil
	}

	kept := make([]string, 0, len(ls.text))
	kept = append(kept, ls.text[:m.StartLine+1]...)
	changed := false
	for _, l := range ls.text[m.StartLine+1 : m.EndLine] {
		if !strings.Contains(strings.ToLower(l), needle) {
			kept = append(kept, l)
			continue
		}
		changed = true
		if rest, ok := dropItem(l, needle); ok {
			kept = append(kept, rest)
		}
	}
	kept = append(kept, ls.text[m.EndLine:]...)
	if !changed {
		return Outcome{Document: doc, Action: ActionSkipped, Match: m}, nil
	}
	ls.text = kept
	return Outcome{Document: ls.join(), Action: ActionRemoved, Match: m}, nil
}

// Substitute rewrites one entry of the c section: the first body item equal
// to old (case-insensitive) becomes repl, or failing that the first
// occurrence of old inside a body line. Other lines are left alone. It
// reports ActionSkipped when old does not appear in the section.
func Substitute(doc string, c Category, old, repl string) (Outcome, error) {
	d, err := Lookup(c)
	if err != nil {
		return Outcome{}, err
	}
	ls := splitLines(doc)
	m := locate(ls, c, d)
	needle := strings.ToLower(strings.TrimSpace(old))
	repl = strings.TrimSpace(repl)
	if !m.Found || needle == "" || repl == "" {
		return Outcome{Document: doc, Action: ActionSkipped, Match: m}, nil
	}

	body := ls.text[m.StartLine+1 : m.EndLine]
	for i, l := range body {
		if out, ok := replaceItem(l, needle, repl); ok {
			body[i] = out
			return Outcome{Document: ls.join(), Action: ActionChanged, Match: m}, nil
		}
	}
	for i, l := range body {
		if at := wordIndex(l, needle); at >= 0 {
			body[i] = l[:at] + repl + l[at+len(needle):]
			return Outcome{Document: ls.join(), Action: ActionChanged, Match: m}, nil
		}
	}
	return Outcome{Document: doc, Action: ActionSkipped, Match: m}, nil
}

// wordIndex finds needle in line as a whole word, case-insensitively. It
// returns -1 when lowering line would shift byte offsets.
func wordIndex(line, needle string) int {
	lower := strings.ToLower(line)
	if len(lower) != len(line) {
		return -1
	}
	for from := 0; from < len(lower); {
		at := strings.Index(lower[from:], needle)
		if at < 0 {
			return -1
		}
		at += from
		end := at + len(needle)
		if !wordByte(lower, at-1) && !wordByte(lower, end) {
			return at
		}
		from = at + 1
	}
	return -1
}

func wordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	b := s[i]
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 0x80
}

// replaceItem swaps the comma-separated entry equal to needle, keeping the
// line's bullet or label prefix and the entry's spacing.
func replaceItem(line, needle, repl string) (string, bool) {
	prefix, list := splitPrefix(line)
	items := strings.Split(list, ",")
	for i, it := range items {
		trimmed := strings.TrimSpace(it)
		if !strings.EqualFold(trimmed, needle) {
			continue
		}
		lead := it[:len(it)-len(strings.TrimLeft(it, " \t"))]
		trail := it[len(strings.TrimRight(it, " \t")):]
		items[i] = lead + repl + trail
		return prefix + strings.Join(items, ","), true
	}
	return "", false
}

// dropItem removes the matching entry from a comma-separated line, keeping
// its bullet or label prefix. It returns false when the whole line should go.
func dropItem(line, needle string) (string, bool) {
	prefix, list := splitPrefix(line)
	items := strings.Split(list, ",")
	if len(items) < 2 {
		return "", false
	}
	rest := items[:0:0]
	for _, it := range items {
		if !strings.Contains(strings.ToLower(it), needle) {
			rest = append(rest, it)
		}
	}
	if len(rest) == 0 {
		return "", false
	}
	joined := strings.TrimSpace(strings.Join(rest, ","))
	joined = strings.TrimPrefix(joined, "and ")
	return prefix + joined, true
}

var listPrefix = regexp.MustCompile(`^\s*(?:[-*•·+]\s*)?(?:[^,:]{1,40}:\s*)?`)

func splitPrefix(line string) (string, string) {
	loc := listPrefix.FindStringIndex(line)
	if loc == nil {
		return "", line
	}
	return line[:loc[1]], line[loc[1]:]
}

// contentLines splits new content into lines, dropping trailing blank lines.
func contentLines(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	out := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for len(out) > 0 && isBlank(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	for len(out) > 0 && isBlank(out[0]) {
		out = out[1:]
	}
	return out
}

func splice(s []string, from, to int, ins []string) []string {
	out := make([]string, 0, len(s)-(to-from)+len(ins))
	out = append(out, s[:from]...)
	out = append(out, ins...)
	return append(out, s[to:]...)
}
