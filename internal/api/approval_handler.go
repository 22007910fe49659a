package api

import (
	"encoding/json"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
)

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	pending, err := s.suggestions.List(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]operationView, 0, len(pending))
	for _, suggestion := range pending {
		approved, err := s.ledger.Approved(r.Context(), sessionID, suggestion.OperationID)
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, operationView{
			OperationID: suggestion.OperationID,
			Action:      string(suggestion.Action),
			Rationale:   suggestion.Rationale,
			ChunkID:     suggestion.ChunkID,
			Approved:    approved,
		})
	}
	writeJSON(w, http.StatusOK, listOperationsResponse{Operations: views})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	operationID := strings.TrimSpace(req.OperationID)
	if operationID == "" {
		writeError(w, errs.Validation("operation_id required"))
		return
	}
	// Approvals must reference a pending suggestion so a typo cannot
	// authorize a future operation id.
	if _, err := s.suggestions.Get(r.Context(), sessionID, operationID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ledger.Approve(r.Context(), sessionID, operationID); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := requestUser(r)
	common.Logger().Info("api: operation approved", "session", sessionID, "operation", operationID, "user", userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved", "operation_id": operationID})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	operationID := chi.URLParam(r, "operationID")
	if err := s.ledger.Revoke(r.Context(), sessionID, operationID); err != nil {
		writeError(w, err)
		return
	}
	common.Logger().Info("api: approval revoked", "session", sessionID, "operation", operationID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "operation_id": operationID})
}
