package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/cvchat/internal/intent"
	"github.com/dgallion1/cvchat/internal/section"
)

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

type messageRequest struct {
	Message string `json:"message"`
	Preview string `json:"preview,omitempty"`
}

type editRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.chat.HandleMessage(r.Context(), chi.URLParam(r, "docID"), req.Message)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleEditSection(w http.ResponseWriter, r *http.Request) {
	c, err := section.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := section.ParseMode(req.Mode)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.chat.EditSection(r.Context(), chi.URLParam(r, "docID"), c, req.Content, mode)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleClassify classifies a message without touching any document.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.chat.Classify(r.Context(), req.Message, req.Preview)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out := map[string]any{"result": res}
	if res.Unclassified() {
		out["help"] = intent.HelpText()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, intent.Extract(req.Message))
}
