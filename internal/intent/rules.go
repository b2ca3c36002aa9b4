package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/cvchat/internal/section"
)

// Rule is one row of the keyword table. SectionWords are matched as whole
// words or phrases (tier 1); Hints are content patterns consulted only when
// no rule matched on section words (tier 2). Exclude vetoes a tier-1 match.
type Rule struct {
	Category     section.Category
	SectionWords []string
	Hints        []*regexp.Regexp
	Exclude      []string

	words   *regexp.Regexp
	exclude *regexp.Regexp
}

func newRule(r Rule) *Rule {
	if len(r.SectionWords) > 0 {
		r.words = wordSet(r.SectionWords...)
	}
	if len(r.Exclude) > 0 {
		r.exclude = wordSet(r.Exclude...)
	}
	return &r
}

func (r *Rule) sectionMatch(msg string) bool {
	if r.words == nil || !r.words.MatchString(msg) {
		return false
	}
	return r.exclude == nil || !r.exclude.MatchString(msg)
}

func (r *Rule) hintMatch(msg string) bool {
	for _, h := range r.Hints {
		if h.MatchString(msg) {
			return true
		}
	}
	return false
}

// wordSet compiles a case-insensitive alternation that only matches whole
// words. Multi-word entries tolerate any run of whitespace.
func wordSet(words ...string) *regexp.Regexp {
	alts := make([]string, len(words))
	for i, w := range words {
		parts := strings.Fields(w)
		for j := range parts {
			parts[j] = regexp.QuoteMeta(parts[j])
		}
		alts[i] = strings.Join(parts, `\s+`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(alts, "|") + `)(?:$|[^\p{L}\p{N}_])`)
}

// Action word families, checked in this order.
var (
	addWords    = wordSet("add", "include", "insert", "put", "append")
	updateWords = wordSet("update", "change", "modify", "edit", "replace", "correct", "rewrite")
	deleteWords = wordSet("remove", "delete", "drop", "erase", "get rid of", "take out")
	readWords   = wordSet("show", "display", "list", "what", "view", "see", "read", "tell me", "print")
)

// operationFor picks the operation: an explicit add verb wins, then update,
// delete and read verbs; a bare statement is an implicit CREATE.
func operationFor(msg string) Operation {
	switch {
	case addWords.MatchString(msg):
		return Create
	case updateWords.MatchString(msg):
		return Update
	case deleteWords.MatchString(msg):
		return Delete
	case readWords.MatchString(msg):
		return Read
	}
	return Create
}

var spokenLanguages = []string{
	"english", "spanish", "french", "german", "chinese", "mandarin", "cantonese",
	"japanese", "korean", "hindi", "arabic", "portuguese", "russian", "italian",
	"dutch", "turkish", "vietnamese", "bengali", "urdu", "swahili", "polish",
	"greek", "hebrew", "tamil", "telugu", "punjabi", "persian", "farsi", "thai",
	"indonesian", "malay", "tagalog", "swedish", "norwegian", "danish", "finnish",
	"ukrainian", "czech", "romanian", "hungarian",
}

var techNames = []string{
	"python", "java", "javascript", "typescript", "golang", "rust", "c++", "c#",
	"ruby", "php", "swift", "kotlin", "scala", "sql", "nosql", "docker", "kubernetes",
	"k8s", "aws", "azure", "gcp", "terraform", "ansible", "jenkins", "git", "github",
	"gitlab", "react", "angular", "vue", "node.js", "nodejs", "django", "flask",
	"spring", "postgresql", "postgres", "mysql", "mongodb", "redis", "kafka", "linux",
	"tensorflow", "pytorch", "html", "css", "graphql", "excel", "tableau", "figma",
	"jira", "spark", "hadoop",
}

var (
	emailHint = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phoneHint = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	urlHint   = regexp.MustCompile(`(?i)linkedin\.com/|github\.com/`)
)

// rules is the classification table in priority order: specific categories
// come before generic ones so that, for example, a language name is never
// swallowed by skills. The order is part of the classifier's contract.
var rules = []*Rule{
	newRule(Rule{
		Category: section.Contact,
		SectionWords: []string{
			"contact", "contact info", "contact information", "contact details",
			"email", "e-mail", "email address", "phone", "phone number", "mobile number",
			"cell", "address", "linkedin", "linkedin profile", "personal website",
		},
		Hints: []*regexp.Regexp{emailHint, phoneHint, urlHint},
	}),
	newRule(Rule{
		Category:     section.References,
		SectionWords: []string{"reference", "references", "referee", "referees", "recommender"},
	}),
	newRule(Rule{
		Category: section.Languages,
		SectionWords: append([]string{
			"language", "languages", "fluent", "fluency", "native speaker", "bilingual",
			"trilingual", "multilingual", "speak", "speaks", "spoken", "mother tongue",
		}, spokenLanguages...),
		Exclude: []string{
			"programming language", "programming languages", "coding language",
			"coding languages", "scripting language", "scripting languages",
		},
	}),
	newRule(Rule{
		Category: section.Technologies,
		SectionWords: []string{
			"technology", "technologies", "tech stack", "tool", "tools", "framework",
			"frameworks", "library", "libraries", "programming language",
			"programming languages",
		},
		Hints: []*regexp.Regexp{wordSet(techNames...)},
	}),
	newRule(Rule{
		Category: section.Certifications,
		SectionWords: []string{
			"certification", "certifications", "certificate", "certificates", "certified",
			"license", "licence", "licensed", "accreditation", "accredited",
		},
	}),
	newRule(Rule{
		Category: section.Research,
		SectionWords: []string{
			"research", "researcher", "publication", "publications", "published",
			"paper", "papers", "journal", "conference paper", "thesis", "dissertation",
		},
	}),
	newRule(Rule{
		Category: section.Projects,
		SectionWords: []string{
			"project", "projects", "side project", "personal project", "hackathon",
			"open source", "open-source", "portfolio",
		},
	}),
	newRule(Rule{
		Category: section.Volunteer,
		SectionWords: []string{
			"volunteer", "volunteered", "volunteering", "charity", "non-profit",
			"nonprofit", "community service",
		},
	}),
	newRule(Rule{
		Category: section.Leadership,
		SectionWords: []string{
			"leadership", "leader", "led a team", "team lead", "captain", "president",
			"chair", "chairman", "mentored", "mentor", "mentoring",
		},
	}),
	newRule(Rule{
		Category: section.Achievements,
		SectionWords: []string{
			"achievement", "achievements", "award", "awards", "awarded", "won", "honor",
			"honors", "honour", "honours", "prize", "scholarship", "accomplishment",
			"accomplishments", "recognition", "recognized", "dean's list",
		},
	}),
	newRule(Rule{
		Category: section.Education,
		SectionWords: []string{
			"education", "degree", "bachelor", "bachelor's", "bachelors", "master's",
			"masters", "mba", "phd", "ph.d", "doctorate", "university", "college",
			"school", "graduated", "graduate", "gpa", "diploma", "studied", "major in",
		},
	}),
	newRule(Rule{
		Category: section.Experience,
		SectionWords: []string{
			"experience", "work experience", "job", "jobs", "worked", "working at",
			"work at", "employment", "employer", "employed", "internship", "intern",
			"position", "role", "company",
		},
		Exclude: []string{"experienced in", "experienced with", "experience with", "experience in"},
	}),
	newRule(Rule{
		Category: section.Objective,
		SectionWords: []string{
			"objective", "career objective", "professional objective", "goal", "goals",
			"career goal", "aim", "target", "summary", "profile", "about me",
			"personal statement",
		},
	}),
	newRule(Rule{
		Category: section.Interests,
		SectionWords: []string{
			"interest", "interests", "interested in", "hobby", "hobbies",
			"passionate about", "enjoy", "enjoys", "pastime", "free time",
		},
	}),
	newRule(Rule{
		Category: section.Additional,
		SectionWords: []string{
			"additional", "additional information", "additional info", "misc",
			"miscellaneous", "other information",
		},
	}),
	newRule(Rule{
		Category: section.Skills,
		SectionWords: []string{
			"skill", "skills", "skilled", "skillset", "skill set", "proficient",
			"proficiency", "expertise", "expert in", "good at", "knowledge of",
			"i learned", "learned", "learnt", "familiar with", "competent",
			"ability", "abilities", "experienced in", "experienced with",
			"experience with", "experience in", "capable of",
		},
	}),
}

// targetRe finds a section named as the destination at the end of a
// message: "... to my skills", "... in the projects section".
var targetRe = regexp.MustCompile(`(?i)(?:^|\s)(?:to|in|into|from|on|under)\s+(?:my|the)\s+(?:(?:cv|resume)\s+)?(` +
	sectionNames + `)(?:\s+(?:section|list|part))?[\s.!?]*$`)

// namedTarget returns the category the user explicitly points at, if any.
func namedTarget(msg string) (section.Category, bool) {
	m := targetRe.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	c, err := section.ParseCategory(m[1])
	if err != nil {
		return "", false
	}
	return c, true
}

// match returns the winning category and every category whose rules fired.
// A section named as the target ("to my skills") wins outright; otherwise
// section words are tried before content hints.
func match(message string) (section.Category, []section.Category) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return section.Unclassified, nil
	}
	if c, ok := namedTarget(msg); ok {
		return c, []section.Category{c}
	}
	var hits []section.Category
	for _, r := range rules {
		if r.sectionMatch(msg) {
			hits = append(hits, r.Category)
		}
	}
	if len(hits) == 0 {
		for _, r := range rules {
			if r.hintMatch(msg) {
				hits = append(hits, r.Category)
			}
		}
	}
	if len(hits) == 0 {
		return section.Unclassified, nil
	}
	return hits[0], hits
}

// RuleClassifier is the deterministic keyword classifier. It is total: every
// message, including the empty one, yields a Result.
type RuleClassifier struct {
	log *slog.Logger
}

func NewRuleClassifier(log *slog.Logger) *RuleClassifier {
	return &RuleClassifier{log: log}
}

// Classify implements Classifier. The document preview is not used.
func (c *RuleClassifier) Classify(_ context.Context, message, _ string) (Result, error) {
	return c.ClassifyMessage(message), nil
}

// ClassifyMessage is Classify without the interface plumbing.
func (c *RuleClassifier) ClassifyMessage(message string) Result {
	cat, hits := match(message)
	if cat == section.Unclassified {
		return helpResult()
	}
	if len(hits) > 1 && c.log != nil {
		c.log.Warn("ambiguous classification",
			"chosen", cat,
			"candidates", hits,
			"message", truncate(message, 120),
		)
	}
	return Result{
		Category:      cat,
		Operation:     operationFor(message),
		ExtractedInfo: Extract(message).Fact,
		Source:        SourceRules,
		Candidates:    hits,
	}
}

func truncate(s string, n int) string {
	if c, cut := clip(s, n); cut {
		return c + "..."
	}
	return s
}

// clip returns the first n runes of s and whether anything was dropped.
func clip(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}
