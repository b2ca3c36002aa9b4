package intent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/cvchat/internal/section"
)

// Operation is the CRUD verb a chat message asks for.
type Operation string

const (
	Create Operation = "CREATE"
	Read   Operation = "READ"
	Update Operation = "UPDATE"
	Delete Operation = "DELETE"
)

var ErrUnknownOperation = errors.New("unknown operation")

// ParseOperation resolves an operation name case-insensitively.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToUpper(strings.TrimSpace(s))); op {
	case Create, Read, Update, Delete:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Classification sources.
const (
	SourceRules = "rules"
	SourceLLM   = "llm"
)

// Result is the outcome of classifying one chat message.
type Result struct {
	Category      section.Category   `json:"category"`
	Operation     Operation          `json:"operation"`
	ExtractedInfo string             `json:"extracted_info"`
	Source        string             `json:"source"`
	Candidates    []section.Category `json:"candidates,omitempty"`
}

// NewResult validates raw category and operation names, typically from
// model output, against the fixed enums.
func NewResult(category, operation, info string) (Result, error) {
	c, err := parseResultCategory(category)
	if err != nil {
		return Result{}, err
	}
	op, err := ParseOperation(operation)
	if err != nil {
		return Result{}, err
	}
	return Result{Category: c, Operation: op, ExtractedInfo: strings.TrimSpace(info)}, nil
}

func parseResultCategory(s string) (section.Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(section.Unclassified), "help", "general", "none":
		return section.Unclassified, nil
	}
	return section.ParseCategory(s)
}

// Unclassified reports whether no section could be determined.
func (r Result) Unclassified() bool {
	return r.Category == section.Unclassified
}

// Refine fills gaps in r from an independent extraction: a missing
// category or fact is taken from e.
func (r Result) Refine(e Extraction) Result {
	if r.Category == section.Unclassified && e.Category != section.Unclassified {
		r.Category = e.Category
	}
	if r.ExtractedInfo == "" {
		r.ExtractedInfo = e.Fact
	}
	return r
}

func helpResult() Result {
	return Result{
		Category:  section.Unclassified,
		Operation: Read,
		Source:    SourceRules,
	}
}

// HelpText describes what the chat understands. It is shown when a message
// cannot be classified.
func HelpText() string {
	names := make([]string, 0, len(section.Categories()))
	for _, c := range section.Categories() {
		names = append(names, string(c))
	}
	return "I can update your CV section by section. Try:\n" +
		"  - \"Add Docker and Kubernetes to my skills\"\n" +
		"  - \"I learned Rust\"\n" +
		"  - \"Update my objective to Lead a platform team\"\n" +
		"  - \"Remove JavaScript from skills\"\n" +
		"  - \"Show my experience\"\n" +
		"Sections: " + strings.Join(names, ", ")
}
