package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/session"
)

// sessionTools builds the registry for one chat call, with every tool
// bound to the target session.
func (r *Runner) sessionTools(sessionID string) *Registry {
	registry := NewRegistry()

	registry.Register(&Tool{
		Name:        "list_chunks",
		Description: "List the session's fragments in publish order with their ids, text, and dirty flags.",
		InputSchema: objectSchema(map[string]interface{}{}),
		Execute: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			sess, err := r.machine.Store().Load(ctx, sessionID)
			if err != nil {
				return "", err
			}
			return marshalResult(sess.Chunks)
		},
	})

	registry.Register(&Tool{
		Name:        "get_chunk",
		Description: "Fetch a single fragment by id.",
		InputSchema: objectSchema(map[string]interface{}{
			"chunk_id": stringProp("Fragment id to fetch."),
		}, "chunk_id"),
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			chunkID, _ := input["chunk_id"].(string)
			sess, err := r.machine.Store().Load(ctx, sessionID)
			if err != nil {
				return "", err
			}
			idx := sess.ChunkIndex(chunkID)
			if idx < 0 {
				return "", errs.NotFound("chunk %s not found", chunkID)
			}
			return marshalResult(sess.Chunks[idx])
		},
	})

	registry.Register(&Tool{
		Name: "suggest_operations",
		Description: "Propose edit operations (SPLIT, MERGE, REWRITE, DELETE, KEEP) on fragments. " +
			"Each proposal receives an operation id; a human must approve the id before execute_operation will run it.",
		InputSchema: objectSchema(map[string]interface{}{
			"operations": map[string]interface{}{
				"type":        "array",
				"description": "Proposed operations.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"action":            stringProp("One of SPLIT, MERGE, REWRITE, DELETE, KEEP."),
						"rationale":         stringProp("Why this edit improves the draft."),
						"chunk_id":          stringProp("Target fragment id."),
						"split_points":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
						"split_blocks":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"merge_with_ids":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"suggested_content": stringProp("Replacement text for REWRITE."),
					},
					"required": []string{"action", "chunk_id"},
				},
			},
		}, "operations"),
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			raw, err := json.Marshal(input["operations"])
			if err != nil {
				return "", errs.Validation("operations are not encodable: %v", err)
			}
			var proposals []Suggestion
			if err := json.Unmarshal(raw, &proposals); err != nil {
				return "", errs.Validation("operations are malformed: %v", err)
			}
			if len(proposals) == 0 {
				return "", errs.Validation("operations must not be empty")
			}
			stored, err := r.suggestions.Add(ctx, sessionID, proposals)
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]interface{}{
				"operations": stored,
				"note":       "operations are pending until a human approves their operation ids",
			})
		},
	})

	registry.Register(&Tool{
		Name: "execute_operation",
		Description: "Execute a previously suggested operation. Refuses unless the operation id " +
			"is present in the session's approval ledger.",
		InputSchema: objectSchema(map[string]interface{}{
			"operation_id": stringProp("Approved operation id to execute."),
		}, "operation_id"),
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			operationID, _ := input["operation_id"].(string)
			approved, err := r.ledger.Approved(ctx, sessionID, operationID)
			if err != nil {
				return "", err
			}
			if !approved {
				// The refusal is a tool result, not a fault, so the model
				// can ask the user for approval and carry on.
				return marshalResult(map[string]interface{}{
					"executed": false,
					"reason":   fmt.Sprintf("operation %s is not approved; ask the user to approve it first", operationID),
				})
			}
			suggestion, err := r.suggestions.Get(ctx, sessionID, operationID)
			if err != nil {
				return "", err
			}
			if err := r.apply(ctx, sessionID, suggestion); err != nil {
				return "", err
			}
			if err := r.suggestions.Consume(ctx, sessionID, operationID); err != nil {
				return "", err
			}
			if err := r.ledger.Revoke(ctx, sessionID, operationID); err != nil {
				return "", err
			}
			return marshalResult(map[string]interface{}{"executed": true, "action": suggestion.Action})
		},
	})

	return registry
}

// apply runs an approved suggestion through the state machine. Approval
// grants the elevated role the split capability requires.
func (r *Runner) apply(ctx context.Context, sessionID string, suggestion *Suggestion) error {
	switch suggestion.Action {
	case ActionSplit:
		_, err := r.machine.Split(ctx, sessionID, session.SplitRequest{
			ChunkID:       suggestion.ChunkID,
			SplitPoints:   suggestion.SplitPoints,
			NewTextBlocks: suggestion.SplitBlocks,
			Elevated:      true,
		})
		return err
	case ActionMerge:
		ids := append([]string{suggestion.ChunkID}, suggestion.MergeWithIDs...)
		_, err := r.machine.Merge(ctx, sessionID, ids)
		return err
	case ActionRewrite:
		_, err := r.machine.Update(ctx, sessionID, suggestion.ChunkID, suggestion.SuggestedContent)
		return err
	case ActionDelete:
		_, err := r.machine.Remove(ctx, sessionID, suggestion.ChunkID)
		return err
	case ActionKeep:
		return nil
	default:
		return errs.Validation("unknown action %q", suggestion.Action)
	}
}
