package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/dgallion1/cvchat/internal/section"
)

// Completer is the generative collaborator: one system+user exchange in,
// the text reply out. *claude.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const maxPreviewChars = 1500

// ErrSuspiciousMessage rejects messages that read as prompt injection. The
// fallback classifier still handles them with rules.
var ErrSuspiciousMessage = errors.New("message rejected by injection filter")

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|` +
		`new\s+instructions)`,
)

var classificationPrompt = func() string {
	var sb strings.Builder
	sb.WriteString(`You route chat messages about a CV to a section and a CRUD operation. Return a JSON object with these fields:

- "category": one of `)
	for i, c := range section.Categories() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", string(c))
	}
	sb.WriteString(`, or "unclassified" if the message is not about a CV section
- "operation": one of "CREATE", "READ", "UPDATE", "DELETE"
- "extracted_info": the literal fact from the message to store, update or remove (string, copied from the message, never reworded; "" for READ)

Rules:
- A bare statement such as "Fluent in German" is a CREATE
- Spoken languages go to "languages"; programming languages and tools go to "technologies" unless the user names the skills section
- Prefer the section the user names explicitly

Respond with ONLY the JSON object, no other text.`)
	return sb.String()
}()

type llmReply struct {
	Category      string `json:"category"`
	Operation     string `json:"operation"`
	ExtractedInfo string `json:"extracted_info"`
}

// LLMClassifier delegates classification to a language model. Concurrent
// calls are bounded by a weighted semaphore.
type LLMClassifier struct {
	llm Completer
	sem *semaphore.Weighted
	log *slog.Logger
}

func NewLLMClassifier(llm Completer, concurrency int64, log *slog.Logger) *LLMClassifier {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &LLMClassifier{llm: llm, sem: semaphore.NewWeighted(concurrency), log: log}
}

// BuildClassifyPrompt renders the user turn: the message plus an optional
// excerpt of the current document.
func BuildClassifyPrompt(message, preview string) string {
	var sb strings.Builder
	if preview = strings.TrimSpace(preview); preview != "" {
		preview, _ = clip(preview, maxPreviewChars)
		sb.WriteString("Current CV (excerpt):\n---\n")
		sb.WriteString(preview)
		sb.WriteString("\n---\n\n")
	}
	fmt.Fprintf(&sb, "Message: %q", message)
	return sb.String()
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, message, preview string) (Result, error) {
	if injectionPattern.MatchString(message) {
		return Result{}, ErrSuspiciousMessage
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer c.sem.Release(1)

	text, err := c.llm.Complete(ctx, classificationPrompt, BuildClassifyPrompt(message, preview))
	if err != nil {
		return Result{}, fmt.Errorf("llm classify: %w", err)
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return Result{}, fmt.Errorf("parse classification json: %w (raw: %s)", err, truncate(text, 200))
	}
	res, err := NewResult(reply.Category, reply.Operation, reply.ExtractedInfo)
	if err != nil {
		return Result{}, fmt.Errorf("invalid classification: %w", err)
	}

	// The model may paraphrase; only literal facts are stored.
	if res.ExtractedInfo != "" && !containsFold(message, res.ExtractedInfo) {
		c.log.Debug("llm fact not in message, using extractor",
			"llm_fact", truncate(res.ExtractedInfo, 80))
		res.ExtractedInfo = Extract(message).Fact
	}
	res.Source = SourceLLM
	return res, nil
}

func containsFold(s, sub string) bool {
	s = strings.Join(strings.Fields(s), " ")
	sub = strings.Join(strings.Fields(sub), " ")
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
