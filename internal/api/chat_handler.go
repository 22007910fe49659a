package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/docloom/docloom/internal/agent"
	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
)

// handleChat streams agent events as server-sent events. Each event is
// one SSE message whose event field is the event kind.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, errs.Validation("session_id required"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, errs.Validation("message required"))
		return
	}
	if s.runner == nil {
		writeError(w, errs.Upstream(false, "chat agent unavailable"))
		return
	}
	// Fail before committing to the stream when the session is missing.
	if _, err := s.machine.Store().Load(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.Upstream(false, "streaming unsupported by connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	userID, _ := requestUser(r)
	logger.Info("api: chat stream started", "session", req.SessionID, "user", userID)

	events := s.runner.StreamChat(r.Context(), req.SessionID, userID, req.Message)
	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Error("api: failed to encode chat event", "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
		flusher.Flush()
		if event.Kind == agent.EventDone || event.Kind == agent.EventError {
			break
		}
	}
	logger.Info("api: chat stream finished", "session", req.SessionID)
}
