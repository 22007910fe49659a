package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/docloom/docloom/internal/agent"
	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/parser"
	"github.com/docloom/docloom/internal/publish"
	"github.com/docloom/docloom/internal/session"
)

// Server exposes the curation workflow over HTTP: ingest, fragment
// editing, preview, publish, approvals, and the streaming agent chat.
type Server struct {
	router      chi.Router
	machine     *session.Machine
	engine      *publish.Engine
	runner      *agent.Runner
	ledger      *agent.Ledger
	suggestions *agent.SuggestionStore
	parsers     *parser.Registry
	collection  string
}

// Config controls server-level behavior.
type Config struct {
	// Collection is the vector index collection published sessions land in.
	Collection string
}

func (c Config) applyDefaults() Config {
	if strings.TrimSpace(c.Collection) == "" {
		c.Collection = "docloom_chunks"
	}
	return c
}

func NewServer(machine *session.Machine, engine *publish.Engine, runner *agent.Runner, ledger *agent.Ledger, suggestions *agent.SuggestionStore, cfg Config) (*Server, error) {
	logger := common.Logger()
	if machine == nil {
		return nil, fmt.Errorf("session machine required")
	}
	if engine == nil {
		return nil, fmt.Errorf("publish engine required")
	}
	cfg = cfg.applyDefaults()
	srv := &Server{
		router:      chi.NewRouter(),
		machine:     machine,
		engine:      engine,
		runner:      runner,
		ledger:      ledger,
		suggestions: suggestions,
		parsers:     parser.Default(),
		collection:  cfg.Collection,
	}
	srv.routes()
	logger.Info("api: server ready", "collection", cfg.Collection)
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Get("/v1/logs", s.handleLogs)

	s.router.Post("/v1/sessions", s.handleIngest)
	s.router.Get("/v1/sessions", s.handleListSessions)
	s.router.Get("/v1/sessions/{sessionID}", s.handleGetSession)
	s.router.Delete("/v1/sessions/{sessionID}", s.handleDeleteSession)

	s.router.Post("/v1/sessions/{sessionID}/chunks/generate", s.handleGenerate)
	s.router.Post("/v1/sessions/{sessionID}/chunks/merge", s.handleMerge)
	s.router.Post("/v1/sessions/{sessionID}/chunks/reorder", s.handleReorder)
	s.router.Post("/v1/sessions/{sessionID}/chunks/{chunkID}/split", s.handleSplit)
	s.router.Put("/v1/sessions/{sessionID}/chunks/{chunkID}", s.handleUpdateChunk)
	s.router.Delete("/v1/sessions/{sessionID}/chunks/{chunkID}", s.handleRemoveChunk)

	s.router.Post("/v1/sessions/{sessionID}/preview", s.handlePreview)
	s.router.Post("/v1/sessions/{sessionID}/publish", s.handlePublish)

	s.router.Get("/v1/sessions/{sessionID}/operations", s.handleListOperations)
	s.router.Post("/v1/sessions/{sessionID}/approvals", s.handleApprove)
	s.router.Delete("/v1/sessions/{sessionID}/approvals/{operationID}", s.handleRevoke)

	s.router.Post("/v1/chat", s.handleChat)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": common.LogEntries()})
}

// requestUser reads the caller identity headers. The role check itself
// happens in the state machine; the server only relays the flag.
func requestUser(r *http.Request) (userID string, elevated bool) {
	userID = strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		userID = "anonymous"
	}
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Role")))
	return userID, role == "editor" || role == "admin"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy to HTTP statuses and emits a
// machine-readable reason plus the retryable flag.
func writeError(w http.ResponseWriter, err error) {
	logger := common.Logger()
	status := http.StatusInternalServerError
	reason := string(errs.KindUpstream)
	retryable := errs.IsRetryable(err)

	var taxonomy *errs.Error
	if errors.As(err, &taxonomy) {
		reason = string(taxonomy.Kind)
		status = statusForKind(taxonomy.Kind)
		if taxonomy.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(taxonomy.RetryAfter/time.Second)))
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]interface{}{
		"error":     err.Error(),
		"reason":    reason,
		"retryable": retryable,
	})
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindInvalidState:
		return http.StatusConflict
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
