package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/kvstore"
)

const suggestionKeyPrefix = "ops:"

// Action is the operation a suggestion proposes on a fragment.
type Action string

const (
	ActionSplit   Action = "SPLIT"
	ActionMerge   Action = "MERGE"
	ActionRewrite Action = "REWRITE"
	ActionDelete  Action = "DELETE"
	ActionKeep    Action = "KEEP"
)

// Suggestion is one proposed edit operation. The operation id is the
// approval key; a suggestion is consumed at most once and its id is
// never reused.
type Suggestion struct {
	OperationID      string   `json:"operation_id"`
	Action           Action   `json:"action"`
	Rationale        string   `json:"rationale,omitempty"`
	ChunkID          string   `json:"chunk_id,omitempty"`
	SplitPoints      []int    `json:"split_points,omitempty"`
	SplitBlocks      []string `json:"split_blocks,omitempty"`
	MergeWithIDs     []string `json:"merge_with_ids,omitempty"`
	SuggestedContent string   `json:"suggested_content,omitempty"`
}

// SuggestionStore persists pending suggestions per session so approvals
// granted in one chat turn can be executed in a later one.
type SuggestionStore struct {
	kv  kvstore.Store
	ttl time.Duration
}

func NewSuggestionStore(kv kvstore.Store, ttl time.Duration) *SuggestionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SuggestionStore{kv: kv, ttl: ttl}
}

func suggestionKey(sessionID string) string { return suggestionKeyPrefix + sessionID }

func (s *SuggestionStore) load(ctx context.Context, sessionID string) (map[string]Suggestion, error) {
	raw, err := s.kv.Get(ctx, suggestionKey(sessionID))
	if err != nil {
		if errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
			return map[string]Suggestion{}, nil
		}
		return nil, err
	}
	var pending map[string]Suggestion
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("decode pending operations: %w", err)
	}
	return pending, nil
}

func (s *SuggestionStore) save(ctx context.Context, sessionID string, pending map[string]Suggestion) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending operations: %w", err)
	}
	return s.kv.Set(ctx, suggestionKey(sessionID), string(data), s.ttl)
}

// Add assigns fresh operation ids and persists the suggestions.
func (s *SuggestionStore) Add(ctx context.Context, sessionID string, suggestions []Suggestion) ([]Suggestion, error) {
	pending, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range suggestions {
		suggestions[i].OperationID = uuid.NewString()
		pending[suggestions[i].OperationID] = suggestions[i]
	}
	if err := s.save(ctx, sessionID, pending); err != nil {
		return nil, err
	}
	return suggestions, nil
}

// Get returns a pending suggestion by operation id.
func (s *SuggestionStore) Get(ctx context.Context, sessionID, operationID string) (*Suggestion, error) {
	pending, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	suggestion, ok := pending[operationID]
	if !ok {
		return nil, errs.NotFound("operation %s not found for session %s", operationID, sessionID)
	}
	return &suggestion, nil
}

// Consume removes a suggestion after execution.
func (s *SuggestionStore) Consume(ctx context.Context, sessionID, operationID string) error {
	pending, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	delete(pending, operationID)
	return s.save(ctx, sessionID, pending)
}

// List returns all pending suggestions for a session.
func (s *SuggestionStore) List(ctx context.Context, sessionID string) ([]Suggestion, error) {
	pending, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(pending))
	for _, suggestion := range pending {
		out = append(out, suggestion)
	}
	return out, nil
}
