package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/cvchat/internal/chat"
	"github.com/dgallion1/cvchat/internal/section"
	"github.com/dgallion1/cvchat/internal/store"
)

// handleListCVs lists all CVs for a user, newest first.
func (s *Server) handleListCVs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	docs, err := s.store.List(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleGetCV returns a CV with its text. ?format=text returns the bare
// document as text/plain.
func (s *Server) handleGetCV(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("ETag", strconv.Quote(strconv.Itoa(doc.Revision)))
		w.Write([]byte(doc.Text))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteCV deletes a CV and its revision history. The owning user_id
// must be given.
func (s *Server) handleDeleteCV(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if doc.UserID != userID {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err := s.store.Delete(ctx, docID); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.log.Info("cv deleted", "doc_id", docID, "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "deleted": true})
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	headings := section.Outline(doc.Text)
	if headings == nil {
		headings = []section.Heading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":   doc.ID,
		"revision": doc.Revision,
		"sections": headings,
	})
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	c, err := section.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	m, err := section.Locate(doc.Text, c)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":   doc.ID,
		"revision": doc.Revision,
		"match":    m,
	})
}

func (s *Server) handleRevisionDiff(w http.ResponseWriter, r *http.Request) {
	rev, err := strconv.Atoi(chi.URLParam(r, "rev"))
	if err != nil || rev < 1 {
		jsonError(w, "revision must be a positive integer", http.StatusBadRequest)
		return
	}
	d, err := s.chat.RevisionDiff(r.Context(), chi.URLParam(r, "docID"), rev)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// storeError maps domain errors onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, section.ErrUnknownCategory),
		errors.Is(err, section.ErrUnknownMode),
		errors.Is(err, chat.ErrEmptyMessage):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "request timed out", http.StatusGatewayTimeout)
	default:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
