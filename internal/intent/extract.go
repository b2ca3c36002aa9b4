package intent

import (
	"regexp"
	"slices"
	"strings"

	"github.com/dgallion1/cvchat/internal/section"
)

// Extraction is the fact isolated from a chat message and the section the
// rule table independently associates with it.
type Extraction struct {
	Fact     string           `json:"fact"`
	Category section.Category `json:"category"`
}

const maxStripPasses = 6

// Conversational lead-ins, longest first where one is a prefix of another.
var leadIns = []string{
	"please", "kindly", "hey", "hi", "ok", "okay",
	"can you", "could you", "would you", "will you",
	"i want to", "i'd like to", "i would like to", "i need to", "let's",
	"add to my", "add to the", "add", "include", "insert", "put", "append",
	"update my", "update", "change my", "change", "modify", "edit", "replace", "set",
	"remove from my", "remove", "delete", "drop", "erase",
	"show me", "show", "display", "list", "tell me",
	"i have recently learned", "i recently learned", "i have learned", "i've learned",
	"i learned", "i learnt", "learned",
	"i have completed my", "i completed my", "i have completed", "i completed",
	"complete my project of", "complete my", "completed",
	"i am skilled in", "i'm skilled in", "skilled in",
	"i am proficient in", "i'm proficient in", "proficient in",
	"i am familiar with", "i'm familiar with", "familiar with",
	"i have experience with", "i have experience in", "experienced in", "experienced with",
	"i speak", "i know", "i have", "i've", "i got", "i earned", "i received", "i am", "i'm",
	"that", "my",
}

var leadInRe = func() *regexp.Regexp {
	alts := make([]string, len(leadIns))
	for i, p := range leadIns {
		parts := strings.Fields(p)
		for j := range parts {
			parts[j] = regexp.QuoteMeta(parts[j])
		}
		alts[i] = strings.Join(parts, `\s+`)
	}
	return regexp.MustCompile(`(?i)^(?:` + strings.Join(alts, "|") + `)(?:[,:!]?\s+|[,:!]?$)`)
}()

// sectionNames matches category names and aliases as they appear in chat.
var sectionNames = func() string {
	names := []string{
		"cv", "resume", "résumé", "profile", "summary", "objective", "career objective",
		"skill", "skills", "technical skills", "language", "languages", "technology",
		"technologies", "tech stack", "tools", "programming languages", "certification",
		"certifications", "certificates", "project", "projects", "experience",
		"work experience", "education", "research", "publications", "achievement",
		"achievements", "awards", "leadership", "volunteer", "volunteering",
		"volunteer work", "interests", "hobbies", "references", "contact",
		"contact info", "contact information", "additional", "additional information",
	}
	// Longest first so "skills" is not cut to "skill".
	slices.SortStableFunc(names, func(a, b string) int { return len(b) - len(a) })
	for i, n := range names {
		parts := strings.Fields(n)
		for j := range parts {
			parts[j] = regexp.QuoteMeta(parts[j])
		}
		names[i] = strings.Join(parts, `\s+`)
	}
	return `(?:` + strings.Join(names, "|") + `)`
}()

var (
	// "skills: Go" / "objective to Lead a team" / "to my skills - Go"
	labelRe = regexp.MustCompile(`(?i)^(?:(?:to|in|into|from|on|under)\s+)?(?:(?:my|the)\s+)?` +
		sectionNames + `(?:\s+(?:section|list))?(?:\s*[:\-–]\s*|\s+(?:to|with|as)\s+)`)

	// "... to my skills section" / "... skill"
	suffixRe = regexp.MustCompile(`(?i)(?:\s+(?:to|in|into|from|on|under|as|for)\s+(?:(?:my|the|a|an)\s+)?(?:(?:cv|resume)\s+)?` +
		sectionNames + `(?:\s+(?:section|list|part))?|\s+(?:skills?|section))$`)

	quotedRe = regexp.MustCompile(`"([^"]+)"|“([^”]+)”|(?:^|\s)'([^']+)'(?:\s|$|[.,!?])`)

	// A stripped suffix that starts with a preposition named a destination.
	destSuffixRe = regexp.MustCompile(`(?i)^\s+(?:to|in|into|from|on|under|as|for)\s`)

	bareSectionRe = regexp.MustCompile(`(?i)^(?:(?:my|the)\s+)?` + sectionNames + `(?:\s+(?:section|list))?$`)
)

// Extract isolates the literal fact in message by stripping conversational
// lead-ins, section labels and trailing section references. The fact is
// always a contiguous piece of the whitespace-collapsed message; nothing is
// generated or reworded.
func Extract(message string) Extraction {
	cat, _ := match(message)
	return Extraction{Fact: extractFact(message), Category: cat}
}

func extractFact(message string) string {
	s := strings.Join(strings.Fields(message), " ")
	if s == "" {
		return ""
	}

	if m := quotedRe.FindStringSubmatch(s); m != nil {
		for _, g := range m[1:] {
			if g = strings.TrimSpace(g); g != "" {
				return g
			}
		}
	}

	// Once a destination has been stripped, what is left is the fact even
	// when it is itself a section word ("add leadership to my skills").
	targeted := false
	for range maxStripPasses {
		before := s
		if loc := leadInRe.FindStringIndex(s); loc != nil && loc[1] > 0 {
			s = s[loc[1]:]
		}
		if loc := suffixRe.FindStringIndex(s); loc != nil {
			if destSuffixRe.MatchString(s[loc[0]:]) {
				targeted = true
			}
			s = s[:loc[0]]
		}
		if !targeted {
			if loc := labelRe.FindStringIndex(s); loc != nil && loc[1] > 0 {
				s = s[loc[1]:]
			}
		}
		s = trimEdges(s)
		if s == before {
			break
		}
	}

	if !targeted && bareSectionRe.MatchString(s) {
		return ""
	}
	return s
}

// trimEdges drops surrounding whitespace, closing punctuation and quotes.
func trimEdges(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?;, ")
	s = strings.Trim(s, "\"'“”‘’")
	return strings.TrimSpace(s)
}
