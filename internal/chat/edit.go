package chat

import (
	"context"
	"fmt"

	"github.com/dgallion1/cvchat/internal/diff"
	"github.com/dgallion1/cvchat/internal/section"
	"github.com/dgallion1/cvchat/internal/store"
)

// EditResult is the outcome of a direct section edit.
type EditResult struct {
	DocID    string          `json:"doc_id"`
	Action   section.Action  `json:"action"`
	Match    section.Match   `json:"match"`
	Revision int             `json:"revision"`
	Changed  bool            `json:"changed"`
	Diff     string          `json:"diff,omitempty"`
	Summary  diff.Summary    `json:"summary"`
	Document *store.Document `json:"document,omitempty"`
}

// EditSection inserts content into one section of a stored document,
// bypassing classification.
func (s *Service) EditSection(ctx context.Context, docID string, c section.Category, content string, mode section.Mode) (EditResult, error) {
	unlock, err := s.locks.Lock(ctx, docID)
	if err != nil {
		return EditResult{}, err
	}
	defer unlock()

	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return EditResult{}, err
	}
	out, err := section.Apply(doc.Text, c, content, mode)
	if err != nil {
		return EditResult{}, err
	}
	res := EditResult{DocID: docID, Action: out.Action, Match: out.Match, Revision: doc.Revision}
	if out.Action == section.ActionSkipped || out.Document == doc.Text {
		return res, nil
	}

	updated, err := s.store.Update(ctx, docID, doc.Revision, out.Document, fmt.Sprintf("%s %s", mode, c))
	if err != nil {
		return EditResult{}, err
	}
	hunks, truncated := diff.TextDiffWithLimit(doc.Text, updated.Text, s.opts.MaxDiffLines, s.opts.DiffContext)
	if !truncated {
		res.Diff = diff.Unified(hunks)
		res.Summary = diff.Summarize(hunks)
	}
	res.Changed = true
	res.Revision = updated.Revision
	res.Document = updated
	s.log.Info("section edited", "doc_id", docID, "category", c, "mode", mode, "action", out.Action, "revision", updated.Revision)
	return res, nil
}

// RevisionDiff describes how revision n changed the document relative to
// revision n-1. Revision 1 is diffed against an empty document.
type RevisionDiff struct {
	DocID     string       `json:"doc_id"`
	Revision  int          `json:"revision"`
	Note      string       `json:"note,omitempty"`
	Hunks     []diff.Hunk  `json:"hunks"`
	Unified   string       `json:"unified"`
	Summary   diff.Summary `json:"summary"`
	Truncated bool         `json:"truncated"`
}

func (s *Service) RevisionDiff(ctx context.Context, docID string, n int) (RevisionDiff, error) {
	cur, err := s.store.Revision(ctx, docID, n)
	if err != nil {
		return RevisionDiff{}, err
	}
	var before string
	if n > 1 {
		prev, err := s.store.Revision(ctx, docID, n-1)
		if err != nil {
			return RevisionDiff{}, err
		}
		before = prev.Text
	}
	hunks, truncated := diff.TextDiffWithLimit(before, cur.Text, s.opts.MaxDiffLines, s.opts.DiffContext)
	if hunks == nil {
		hunks = []diff.Hunk{}
	}
	return RevisionDiff{
		DocID:     docID,
		Revision:  n,
		Note:      cur.Note,
		Hunks:     hunks,
		Unified:   diff.Unified(hunks),
		Summary:   diff.Summarize(hunks),
		Truncated: truncated,
	}, nil
}
