package api

import "github.com/docloom/docloom/internal/session"

type ingestRequest struct {
	SourceType string              `json:"source_type"`
	SourceURL  string              `json:"source_url"`
	Title      string              `json:"title,omitempty"`
	Content    string              `json:"content"`
	Chunking   session.ChunkConfig `json:"chunking,omitempty"`
}

type mergeRequest struct {
	ChunkIDs []string `json:"chunk_ids"`
}

type splitRequest struct {
	SplitPoints   []int    `json:"split_points,omitempty"`
	NewTextBlocks []string `json:"new_text_blocks,omitempty"`
}

type updateChunkRequest struct {
	Text string `json:"text"`
}

type reorderRequest struct {
	ChunkIDs []string `json:"chunk_ids"`
}

type approveRequest struct {
	OperationID string `json:"operation_id"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type previewResponse struct {
	Session  *session.Session `json:"session"`
	Warnings []string         `json:"warnings"`
}

type listOperationsResponse struct {
	Operations []operationView `json:"operations"`
}

type operationView struct {
	OperationID string `json:"operation_id"`
	Action      string `json:"action"`
	Rationale   string `json:"rationale,omitempty"`
	ChunkID     string `json:"chunk_id,omitempty"`
	Approved    bool   `json:"approved"`
}
