package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/cvchat/internal/parser"
	"github.com/dgallion1/cvchat/internal/section"
	"github.com/dgallion1/cvchat/internal/store"
)

// Worker processes a single CV upload.
type Worker struct {
	store   store.Store
	parsers parser.Options
	log     *slog.Logger
}

func NewWorker(st store.Store, parsers parser.Options, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{store: st, parsers: parsers, log: log}
}

// Process runs parse, dedup, section detection and storage for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "user_id", job.UserID)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	text, tree, err := w.parsers.ExtractText(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("no text extracted")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	title := job.Title
	if title == "" {
		title = tree.Title
	}

	// Phase 1.5: Dedup check
	hash := store.ContentHashHex([]byte(text))
	job.SetContentHash(hash)
	existing, err := w.store.FindByHash(ctx, job.UserID, hash)
	switch {
	case err == nil:
		log.Info("duplicate document, skipping", "existing_doc_id", existing.ID)
		job.SetDocID(existing.ID)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	case !errors.Is(err, store.ErrNotFound):
		log.Warn("dedup check failed, proceeding", "error", err)
	}

	// Phase 2: Detect sections
	job.SetStatus(StatusDetecting, "detecting")
	headings := section.Outline(text)
	names := make([]string, 0, len(headings))
	for _, h := range headings {
		names = append(names, string(h.Category))
	}
	job.SetExtracted(len(text), names)
	if len(headings) == 0 {
		log.Warn("no section headers recognized")
	}

	// Phase 3: Store
	job.SetStatus(StatusStoring, "storing")
	doc := &store.Document{
		ID:          job.DocID,
		UserID:      job.UserID,
		Filename:    job.Filename,
		Title:       title,
		ContentHash: hash,
		Text:        text,
	}
	if err := w.store.Create(ctx, doc); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	job.SetDocID(doc.ID)

	log.Info("cv stored", "chars", len(text), "sections", len(headings))
	job.SetStatus(StatusCompleted, "done")
}
