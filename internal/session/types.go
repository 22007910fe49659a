// Package session owns draft curation sessions: one ingested source held
// as an ordered fragment list, mutated through the state machine until it
// is published or deleted.
package session

import (
	"time"

	"github.com/docloom/docloom/internal/chunker"
)

// Status is the session lifecycle state. DRAFT and PREVIEW sessions are
// editable; PUBLISHED and DELETED are terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPreview   Status = "PREVIEW"
	StatusPublished Status = "PUBLISHED"
	StatusDeleted   Status = "DELETED"
)

// ChunkMode selects the fragment generation algorithm.
type ChunkMode string

const (
	ModeBoundary ChunkMode = "boundary"
	ModeSemantic ChunkMode = "semantic"
)

// ChunkConfig is the per-session chunking configuration.
type ChunkConfig struct {
	Mode      ChunkMode `json:"mode,omitempty"`
	ChunkSize int       `json:"chunk_size,omitempty"`
	Overlap   int       `json:"overlap,omitempty"`
}

// Session is a mutable, time-bounded draft holding one source's
// fragments pre-publish. Fragment ids are unique within a session and
// the list order is the publish order.
type Session struct {
	ID         string                  `json:"session_id"`
	SourceType string                  `json:"source_type"`
	SourceURL  string                  `json:"source_url,omitempty"`
	Title      string                  `json:"title,omitempty"`
	RawContent string                  `json:"raw_content,omitempty"`
	Status     Status                  `json:"status"`
	Chunking   ChunkConfig             `json:"chunking,omitempty"`
	Chunks     []chunker.TypedFragment `json:"chunks"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// ChunkIndex returns the position of the fragment with the given id, or
// -1 when absent.
func (s *Session) ChunkIndex(id string) int {
	for i := range s.Chunks {
		if s.Chunks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) editable() bool {
	return s.Status == StatusDraft || s.Status == StatusPreview
}
