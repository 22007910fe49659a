package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/kvstore"
	"github.com/docloom/docloom/internal/llm"
)

const historyKeyPrefix = "chat:"

// emptyTurnPlaceholder is persisted when an assistant turn produced no
// text, keeping the history a strict human/assistant alternation.
const emptyTurnPlaceholder = "(no response)"

// History persists the per-session conversation used to build the next
// turn's prompt.
type History struct {
	kv  kvstore.Store
	ttl time.Duration
}

func NewHistory(kv kvstore.Store, ttl time.Duration) *History {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &History{kv: kv, ttl: ttl}
}

func historyKey(sessionID string) string { return historyKeyPrefix + sessionID }

// Load returns the ordered human/assistant turns for the session.
func (h *History) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	raw, err := h.kv.Get(ctx, historyKey(sessionID))
	if err != nil {
		if errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
			return nil, nil
		}
		return nil, err
	}
	var turns []llm.Message
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("decode chat history: %w", err)
	}
	return turns, nil
}

// Append persists exactly one human turn and one assistant turn. An
// empty assistant text is replaced with a placeholder so alternation is
// preserved.
func (h *History) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	turns, err := h.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if assistantText == "" {
		assistantText = emptyTurnPlaceholder
	}
	turns = append(turns,
		llm.Message{Role: "user", Content: userText},
		llm.Message{Role: "assistant", Content: assistantText},
	)
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	return h.kv.Set(ctx, historyKey(sessionID), string(data), h.ttl)
}

// Clear drops the session's conversation.
func (h *History) Clear(ctx context.Context, sessionID string) error {
	return h.kv.Del(ctx, historyKey(sessionID))
}
