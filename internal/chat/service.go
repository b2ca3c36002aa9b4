// Package chat turns free-form messages into edits of a stored CV.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/cvchat/internal/diff"
	"github.com/dgallion1/cvchat/internal/intent"
	"github.com/dgallion1/cvchat/internal/section"
	"github.com/dgallion1/cvchat/internal/store"
)

var ErrEmptyMessage = errors.New("message is empty")

// Reply is the outcome of one chat message.
type Reply struct {
	DocID    string         `json:"doc_id"`
	Message  string         `json:"message"`
	Intent   intent.Result  `json:"intent"`
	Action   section.Action `json:"action,omitempty"`
	Content  string         `json:"content,omitempty"`
	Revision int            `json:"revision"`
	Changed  bool           `json:"changed"`
	Diff     string         `json:"diff,omitempty"`
}

// Options tune the revision diff attached to replies.
type Options struct {
	DiffContext  int
	MaxDiffLines int
}

// Service applies chat messages to documents held in a store.
type Service struct {
	store      store.Store
	locks      *store.Locks
	classifier intent.Classifier
	opts       Options
	log        *slog.Logger
}

func NewService(st store.Store, locks *store.Locks, classifier intent.Classifier, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if locks == nil {
		locks = store.NewLocks()
	}
	if classifier == nil {
		classifier = intent.NewFallbackClassifier(nil, nil, 0, log)
	}
	if opts.MaxDiffLines <= 0 {
		opts.MaxDiffLines = diff.MaxDiffLines
	}
	if opts.DiffContext <= 0 {
		opts.DiffContext = diff.DefaultContext
	}
	return &Service{store: st, locks: locks, classifier: classifier, opts: opts, log: log}
}

// Classify resolves a message to a section, operation and cleaned fact.
func (s *Service) Classify(ctx context.Context, message, preview string) (intent.Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return intent.Result{}, ErrEmptyMessage
	}
	res, err := s.classifier.Classify(ctx, message, preview)
	if err != nil {
		return intent.Result{}, err
	}
	return res.Refine(intent.Extract(message)), nil
}

// HandleMessage classifies message against the document and applies the
// resulting edit. Classification happens outside the document lock; the
// edit itself runs under it against a fresh read.
func (s *Service) HandleMessage(ctx context.Context, docID, message string) (Reply, error) {
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return Reply{}, err
	}
	res, err := s.Classify(ctx, message, doc.Text)
	if err != nil {
		return Reply{}, err
	}
	log := s.log.With("doc_id", docID, "category", res.Category, "operation", res.Operation, "source", res.Source)

	reply := Reply{DocID: docID, Intent: res, Revision: doc.Revision}
	switch {
	case res.Unclassified():
		reply.Message = intent.HelpText()
		return reply, nil
	case res.Operation == intent.Read:
		return s.read(doc, res, reply)
	case res.ExtractedInfo == "":
		reply.Message = fmt.Sprintf("What should I change in your %s section?", res.Category)
		return reply, nil
	}

	unlock, err := s.locks.Lock(ctx, docID)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	doc, err = s.store.Get(ctx, docID)
	if err != nil {
		return Reply{}, err
	}
	out, err := edit(doc.Text, res)
	if err != nil {
		return Reply{}, err
	}
	reply.Action = out.Action
	reply.Revision = doc.Revision
	if out.Action == section.ActionSkipped || out.Document == doc.Text {
		reply.Message = skippedMessage(res)
		log.Info("chat edit skipped")
		return reply, nil
	}

	note := fmt.Sprintf("%s %s: %s", strings.ToLower(string(res.Operation)), res.Category, res.ExtractedInfo)
	updated, err := s.store.Update(ctx, docID, doc.Revision, out.Document, note)
	if err != nil {
		return Reply{}, err
	}

	hunks, truncated := diff.TextDiffWithLimit(doc.Text, updated.Text, s.opts.MaxDiffLines, s.opts.DiffContext)
	if !truncated {
		reply.Diff = diff.Unified(hunks)
	}
	reply.Changed = true
	reply.Revision = updated.Revision
	reply.Message = doneMessage(res, out.Action)
	log.Info("chat edit applied", "action", out.Action, "revision", updated.Revision)
	return reply, nil
}

func (s *Service) read(doc *store.Document, res intent.Result, reply Reply) (Reply, error) {
	m, err := section.Locate(doc.Text, res.Category)
	if err != nil {
		return Reply{}, err
	}
	if !m.Found {
		reply.Message = fmt.Sprintf("Your CV has no %s section yet.", res.Category)
		return reply, nil
	}
	reply.Content = m.Content
	reply.Message = fmt.Sprintf("Here is your %s section.", res.Category)
	return reply, nil
}

// changeRe splits an UPDATE fact of the form "X to Y" or "X with Y".
var changeRe = regexp.MustCompile(`(?i)^(.+?)\s+(?:to|with)\s+(.+)$`)

// edit maps an operation onto the inserter: CREATE appends, DELETE removes
// matching lines. UPDATE swaps the named item when the fact reads "X to Y"
// and X is in the section; otherwise it replaces the section body.
func edit(text string, res intent.Result) (section.Outcome, error) {
	switch res.Operation {
	case intent.Create:
		return section.Apply(text, res.Category, res.ExtractedInfo, section.Append)
	case intent.Update:
		if m := changeRe.FindStringSubmatch(res.ExtractedInfo); m != nil {
			out, err := section.Substitute(text, res.Category, m[1], m[2])
			if err != nil || out.Action != section.ActionSkipped {
				return out, err
			}
		}
		return section.Apply(text, res.Category, res.ExtractedInfo, section.Replace)
	case intent.Delete:
		return section.Remove(text, res.Category, res.ExtractedInfo)
	}
	return section.Outcome{}, fmt.Errorf("%w: %q", intent.ErrUnknownOperation, res.Operation)
}

func doneMessage(res intent.Result, action section.Action) string {
	switch action {
	case section.ActionCreated:
		return fmt.Sprintf("Added a %s section with %q.", res.Category, res.ExtractedInfo)
	case section.ActionReplaced:
		return fmt.Sprintf("Updated your %s section.", res.Category)
	case section.ActionChanged:
		return fmt.Sprintf("Changed %s in your %s section.", res.ExtractedInfo, res.Category)
	case section.ActionRemoved:
		return fmt.Sprintf("Removed %q from your %s section.", res.ExtractedInfo, res.Category)
	}
	return fmt.Sprintf("Added %q to your %s section.", res.ExtractedInfo, res.Category)
}

func skippedMessage(res intent.Result) string {
	switch {
	case res.Operation == intent.Delete:
		return fmt.Sprintf("I couldn't find %q in your %s section.", res.ExtractedInfo, res.Category)
	case res.Category == section.Contact:
		return "Your CV already has contact details, so I left them as they are."
	}
	return fmt.Sprintf("Nothing changed in your %s section.", res.Category)
}
