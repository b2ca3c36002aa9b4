package parser

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var punctReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u00a0", " ", // no-break space
	"\u200b", "", // zero-width space
	"\ufeff", "", // byte order mark
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u2032", "'",
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u2033", `"`,
	"\u2013", "-", "\u2014", "-", "\u2212", "-",
	"\u2022", "-", "\u25cf", "-", "\u25aa", "-", "\u25a0", "-", "\u25e6", "-",
	"\u2023", "-", "\u2043", "-", "\u00b7", "-", "\uf0b7", "-", "\uf0a7", "-",
	"\u2026", "...",
	"\t", "    ",
)

// Normalize applies the Unicode cleanup section detection relies on:
// NFKC, ASCII quotes and dashes, "-" bullets, LF line endings, no trailing
// spaces and at most one blank line in a row. Non-empty output ends with a
// single newline.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = punctReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := true // drops leading blank lines
	for _, line := range lines {
		line = strings.TrimRight(line, " \f\v")
		line = strings.TrimLeft(line, "\f\v")
		if strings.TrimSpace(line) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}
