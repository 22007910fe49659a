package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/llm"
	"github.com/docloom/docloom/internal/session"
)

const defaultMaxSteps = 8

// EventKind identifies one stream event emitted during a chat turn.
type EventKind string

const (
	EventThinking   EventKind = "thinking"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventMessage    EventKind = "message"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Event is one item on the chat stream. Tool fields are set for
// tool_call and tool_result events only.
type Event struct {
	Kind      EventKind `json:"kind"`
	Content   string    `json:"content,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Arguments string    `json:"arguments,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
}

// Runner drives the tool-calling loop for curation chats. Every stream
// ends with exactly one done or error event.
type Runner struct {
	provider    llm.Provider
	machine     *session.Machine
	suggestions *SuggestionStore
	ledger      *Ledger
	history     *History
	maxSteps    int
	logger      *slog.Logger
}

func NewRunner(provider llm.Provider, machine *session.Machine, suggestions *SuggestionStore, ledger *Ledger, history *History) *Runner {
	return &Runner{
		provider:    provider,
		machine:     machine,
		suggestions: suggestions,
		ledger:      ledger,
		history:     history,
		maxSteps:    defaultMaxSteps,
		logger:      common.Logger(),
	}
}

const chatSystemPrompt = "You are a document curation assistant. The user is editing a " +
	"session of draft fragments before they are published to a vector index. " +
	"Use the tools to inspect fragments and to propose edits. Proposals made " +
	"with suggest_operations are pending until the user approves their operation " +
	"ids; execute_operation refuses unapproved ids. Never claim an edit happened " +
	"unless execute_operation reported it as executed."

// StreamChat runs one chat turn against the session and streams events
// until the turn terminates. The returned channel is closed after the
// terminal event. The user turn and the final assistant text are
// persisted to the session's history even when the turn fails midway.
func (r *Runner) StreamChat(ctx context.Context, sessionID, userID, message string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		start := time.Now()
		finalText, err := r.run(ctx, sessionID, message, events)
		if histErr := r.history.Append(ctx, sessionID, message, finalText); histErr != nil {
			r.logger.Warn("agent: failed to persist chat turn", "session", sessionID, "error", histErr)
		}
		if err != nil {
			r.logger.Warn("agent: chat turn failed", "session", sessionID, "user", userID, "error", err)
			emit(ctx, events, Event{Kind: EventError, Content: err.Error(), IsError: true})
			return
		}
		r.logger.Info("agent: chat turn complete", "session", sessionID, "user", userID, "elapsed", time.Since(start))
		emit(ctx, events, Event{Kind: EventDone})
	}()
	return events
}

// run executes the bounded tool loop and returns the last assistant
// text, which the caller persists regardless of the error.
func (r *Runner) run(ctx context.Context, sessionID, message string, events chan<- Event) (string, error) {
	emit(ctx, events, Event{Kind: EventThinking, Content: "Reviewing session fragments"})

	history, err := r.history.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	registry := r.sessionTools(sessionID)
	specs := registry.Specs()

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: chatSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: message})

	var lastText string
	for step := 0; step < r.maxSteps; step++ {
		result, err := r.provider.ChatTools(ctx, messages, specs)
		if err != nil {
			return lastText, err
		}

		text := strings.TrimSpace(result.Content)
		if text != "" && text != lastText {
			emit(ctx, events, Event{Kind: EventMessage, Content: text})
			lastText = text
		}

		if len(result.ToolCalls) == 0 {
			return lastText, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})
		for _, call := range result.ToolCalls {
			messages = append(messages, r.invoke(ctx, registry, call, events))
		}
	}

	r.logger.Warn("agent: step limit reached", "session", sessionID, "steps", r.maxSteps)
	if lastText == "" {
		return "", errs.Upstream(false, "chat turn did not terminate within %d steps", r.maxSteps)
	}
	return lastText, nil
}

// invoke dispatches one tool call and converts any failure into a tool
// result so the model can recover instead of the turn aborting.
func (r *Runner) invoke(ctx context.Context, registry *Registry, call llm.ToolCall, events chan<- Event) llm.Message {
	emit(ctx, events, Event{
		Kind:      EventToolCall,
		Tool:      call.Name,
		CallID:    call.ID,
		Arguments: call.Arguments,
	})

	output, err := registry.Dispatch(ctx, call.Name, call.Arguments)
	isError := err != nil
	if isError {
		r.logger.Warn("agent: tool call failed", "tool", call.Name, "error", err)
		output = fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	emit(ctx, events, Event{
		Kind:    EventToolResult,
		Tool:    call.Name,
		CallID:  call.ID,
		Content: output,
		IsError: isError,
	})

	return llm.Message{Role: "tool", Content: output, ToolCallID: call.ID}
}

// emit delivers an event unless the consumer is gone.
func emit(ctx context.Context, events chan<- Event, event Event) {
	select {
	case events <- event:
	case <-ctx.Done():
	}
}
