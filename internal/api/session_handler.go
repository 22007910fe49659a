package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/session"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.SourceType) == "" {
		writeError(w, errs.Validation("source_type required"))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, errs.Validation("content required"))
		return
	}

	doc, err := s.parsers.Parse(req.SourceType, req.Content, req.SourceURL)
	if err != nil {
		writeError(w, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = doc.Title
	}

	sess, err := s.machine.Create(r.Context(), &session.Session{
		SourceType: req.SourceType,
		SourceURL:  req.SourceURL,
		Title:      title,
		RawContent: doc.Text,
		Chunking:   req.Chunking,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("api: session ingested", "session", sess.ID, "source_type", sess.SourceType, "content_length", len(sess.RawContent))
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, errs.Validation("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	sessions, err := s.machine.Store().List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.machine.Store().Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.machine.Delete(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	if s.ledger != nil {
		if err := s.ledger.Clear(r.Context(), sessionID); err != nil {
			common.Logger().Warn("api: failed to clear approvals", "session", sessionID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.machine.Generate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	sess, err := s.machine.Merge(r.Context(), chi.URLParam(r, "sessionID"), req.ChunkIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	_, elevated := requestUser(r)
	sess, err := s.machine.Split(r.Context(), chi.URLParam(r, "sessionID"), session.SplitRequest{
		ChunkID:       chi.URLParam(r, "chunkID"),
		SplitPoints:   req.SplitPoints,
		NewTextBlocks: req.NewTextBlocks,
		Elevated:      elevated,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateChunk(w http.ResponseWriter, r *http.Request) {
	var req updateChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	sess, err := s.machine.Update(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "chunkID"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	sess, err := s.machine.Reorder(r.Context(), chi.URLParam(r, "sessionID"), req.ChunkIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRemoveChunk(w http.ResponseWriter, r *http.Request) {
	sess, err := s.machine.Remove(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "chunkID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, warnings, err := s.machine.Preview(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, previewResponse{Session: sess, Warnings: warnings})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	sessionID := chi.URLParam(r, "sessionID")
	userID, _ := requestUser(r)
	result, err := s.engine.Publish(r.Context(), sessionID, s.collection, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("api: session published",
		"session", sessionID,
		"source_id", result.SourceID,
		"revision", result.Revision,
		"chunks", result.PublishedChunks,
	)
	writeJSON(w, http.StatusOK, result)
}
