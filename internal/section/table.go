package section

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Category is a canonical CV section name.
type Category string

const (
	Contact        Category = "contact"
	Objective      Category = "objective"
	Experience     Category = "experience"
	Education      Category = "education"
	Skills         Category = "skills"
	Certifications Category = "certifications"
	Projects       Category = "projects"
	Research       Category = "research"
	Achievements   Category = "achievements"
	Leadership     Category = "leadership"
	Volunteer      Category = "volunteer"
	Languages      Category = "languages"
	Technologies   Category = "technologies"
	Interests      Category = "interests"
	References     Category = "references"
	Additional     Category = "additional"

	// Unclassified is only produced by classification; it never names a section.
	Unclassified Category = "unclassified"
)

// ErrUnknownCategory is returned for names outside the category table.
var ErrUnknownCategory = errors.New("unknown section category")

// Descriptor holds the header phrases of one category and the patterns
// compiled from them. Exact patterns are tried before decorated ones.
type Descriptor struct {
	Category  Category
	Phrases   []string
	exact     []*regexp.Regexp
	decorated []*regexp.Regexp
}

// Patterns returns the header patterns in match order.
func (d *Descriptor) Patterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(d.exact)+len(d.decorated))
	out = append(out, d.exact...)
	return append(out, d.decorated...)
}

// matches reports whether an already normalized line is a header for d.
func (d *Descriptor) matches(norm string) bool {
	for _, re := range d.exact {
		if re.MatchString(norm) {
			return true
		}
	}
	for _, re := range d.decorated {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

// Characters used as visual separators around headers.
const deco = `[_=\-*~#•]`

func newDescriptor(c Category, phrases ...string) *Descriptor {
	d := &Descriptor{Category: c, Phrases: phrases}
	for _, p := range phrases {
		body := phrasePattern(p)
		d.exact = append(d.exact, regexp.MustCompile(`^`+body+`\s*:?$`))
		d.decorated = append(d.decorated, regexp.MustCompile(
			`^(?:(?:`+deco+`{2,}|#{1,6})\s*`+body+`\s*:?\s*`+deco+`*|`+body+`\s*:?\s*`+deco+`{2,})\s*:?$`))
	}
	return d
}

func phrasePattern(p string) string {
	words := strings.Fields(strings.ToUpper(p))
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// table is evaluated in this order everywhere a line could belong to more
// than one category. Reordering it changes observable behavior.
var table = []*Descriptor{
	newDescriptor(Contact,
		"CONTACT", "CONTACT INFORMATION", "CONTACT INFO", "CONTACT DETAILS",
		"PERSONAL INFORMATION", "PERSONAL DETAILS"),
	newDescriptor(Objective,
		"OBJECTIVE", "CAREER OBJECTIVE", "PROFESSIONAL OBJECTIVE", "SUMMARY",
		"PROFESSIONAL SUMMARY", "CAREER SUMMARY", "EXECUTIVE SUMMARY", "PROFILE",
		"PROFESSIONAL PROFILE", "ABOUT ME", "PERSONAL STATEMENT"),
	newDescriptor(Experience,
		"EXPERIENCE", "WORK EXPERIENCE", "PROFESSIONAL EXPERIENCE", "RELEVANT EXPERIENCE",
		"EMPLOYMENT", "EMPLOYMENT HISTORY", "WORK HISTORY", "CAREER HISTORY",
		"INTERNSHIPS", "INTERNSHIP EXPERIENCE"),
	newDescriptor(Education,
		"EDUCATION", "ACADEMIC BACKGROUND", "EDUCATIONAL BACKGROUND",
		"ACADEMIC QUALIFICATIONS", "EDUCATION AND TRAINING", "EDUCATION & TRAINING",
		"QUALIFICATIONS"),
	newDescriptor(Skills,
		"SKILLS", "TECHNICAL SKILLS", "KEY SKILLS", "CORE SKILLS", "PROFESSIONAL SKILLS",
		"SOFT SKILLS", "SKILLS & ABILITIES", "SKILLS AND ABILITIES", "CORE COMPETENCIES",
		"COMPETENCIES", "AREAS OF EXPERTISE"),
	newDescriptor(Certifications,
		"CERTIFICATIONS", "CERTIFICATES", "PROFESSIONAL CERTIFICATIONS",
		"LICENSES & CERTIFICATIONS", "LICENSES AND CERTIFICATIONS",
		"CERTIFICATIONS & LICENSES", "COURSES", "COURSEWORK"),
	newDescriptor(Projects,
		"PROJECTS", "PERSONAL PROJECTS", "ACADEMIC PROJECTS", "KEY PROJECTS",
		"SELECTED PROJECTS", "PROJECT EXPERIENCE"),
	newDescriptor(Research,
		"RESEARCH", "RESEARCH EXPERIENCE", "PUBLICATIONS", "RESEARCH & PUBLICATIONS",
		"RESEARCH AND PUBLICATIONS", "PAPERS"),
	newDescriptor(Achievements,
		"ACHIEVEMENTS", "ACCOMPLISHMENTS", "AWARDS", "HONORS", "HONOURS",
		"HONORS & AWARDS", "HONORS AND AWARDS", "AWARDS & ACHIEVEMENTS",
		"AWARDS AND ACHIEVEMENTS"),
	newDescriptor(Leadership,
		"LEADERSHIP", "LEADERSHIP EXPERIENCE", "LEADERSHIP & ACTIVITIES",
		"EXTRACURRICULAR ACTIVITIES", "ACTIVITIES", "POSITIONS OF RESPONSIBILITY"),
	newDescriptor(Volunteer,
		"VOLUNTEER", "VOLUNTEER EXPERIENCE", "VOLUNTEERING", "VOLUNTEER WORK",
		"COMMUNITY SERVICE", "COMMUNITY INVOLVEMENT"),
	newDescriptor(Languages,
		"LANGUAGES", "LANGUAGE SKILLS", "LANGUAGE PROFICIENCY", "SPOKEN LANGUAGES"),
	newDescriptor(Technologies,
		"TECHNOLOGIES", "TECH STACK", "TECHNICAL STACK", "TOOLS", "TOOLS & TECHNOLOGIES",
		"TOOLS AND TECHNOLOGIES", "PROGRAMMING LANGUAGES", "FRAMEWORKS"),
	newDescriptor(Interests,
		"INTERESTS", "HOBBIES", "PERSONAL INTERESTS", "HOBBIES & INTERESTS",
		"HOBBIES AND INTERESTS"),
	newDescriptor(References,
		"REFERENCES", "REFEREES", "REFERENCES AVAILABLE UPON REQUEST"),
	newDescriptor(Additional,
		"ADDITIONAL", "ADDITIONAL INFORMATION", "ADDITIONAL DETAILS", "MISCELLANEOUS"),
}

var byCategory = func() map[Category]*Descriptor {
	m := make(map[Category]*Descriptor, len(table))
	for _, d := range table {
		m[d.Category] = d
	}
	return m
}()

// Categories returns every category in table order.
func Categories() []Category {
	out := make([]Category, len(table))
	for i, d := range table {
		out[i] = d.Category
	}
	return out
}

// Lookup returns the descriptor for c.
func Lookup(c Category) (*Descriptor, error) {
	d, ok := byCategory[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	return d, nil
}

// PatternsFor returns the header patterns of c, exact forms first.
func PatternsFor(c Category) ([]*regexp.Regexp, error) {
	d, err := Lookup(c)
	if err != nil {
		return nil, err
	}
	return d.Patterns(), nil
}

// Valid reports whether c names a section in the table.
func (c Category) Valid() bool {
	_, ok := byCategory[c]
	return ok
}

// Title returns the upper-case display form used in synthesized headers.
func (c Category) Title() string {
	return strings.ToUpper(string(c))
}

var aliases = map[string]Category{
	"contact info":           Contact,
	"contact information":    Contact,
	"contacts":               Contact,
	"career objective":       Objective,
	"work experience":        Experience,
	"technical skills":       Skills,
	"volunteer work":         Volunteer,
	"programming languages":  Technologies,
	"tech stack":             Technologies,
	"additional information": Additional,
	"summary":                Objective,
	"profile":                Objective,
	"objectives":             Objective,
	"work":                   Experience,
	"employment":             Experience,
	"experiences":            Experience,
	"skill":                  Skills,
	"certification":          Certifications,
	"certificate":            Certifications,
	"certificates":           Certifications,
	"project":                Projects,
	"publications":           Research,
	"achievement":            Achievements,
	"awards":                 Achievements,
	"volunteering":           Volunteer,
	"language":               Languages,
	"technology":             Technologies,
	"tech":                   Technologies,
	"tools":                  Technologies,
	"interest":               Interests,
	"hobbies":                Interests,
	"reference":              References,
	"other":                  Additional,
	"misc":                   Additional,
}

// ParseCategory resolves a category name or common alias, case-insensitively.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if c := Category(key); c.Valid() {
		return c, nil
	}
	if c, ok := aliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// headerCategory returns the first category, in table order, whose patterns
// match line. skip excludes one category from consideration.
func headerCategory(line string, skip Category) (Category, bool) {
	norm := normalize(line)
	if norm == "" {
		return "", false
	}
	for _, d := range table {
		if d.Category == skip {
			continue
		}
		if d.matches(norm) {
			return d.Category, true
		}
	}
	return "", false
}

func normalize(line string) string {
	return strings.ToUpper(strings.TrimSpace(line))
}
