package chunker

import (
	"context"
	"errors"
	"testing"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/llm/providers"
)

type scriptedChat struct {
	response string
	err      error
}

func (s *scriptedChat) Chat(_ context.Context, _ []providers.Message) (string, error) {
	return s.response, s.err
}

func TestSemanticChunk(t *testing.T) {
	chat := &scriptedChat{response: `[
		{"text": "Intro", "type": "heading", "heading_path": ["Intro"], "section": "1", "lang": "en"},
		{"text": "Body content.", "type": "TEXT", "heading_path": ["Intro"], "section": "1", "lang": "en-US"}
	]`}
	out, err := NewSemantic(chat).Chunk(context.Background(), "Intro\n\nBody content.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(out))
	}
	if out[0].Type != "heading" {
		t.Fatalf("expected heading type, got %q", out[0].Type)
	}
	if out[1].Type != "text" {
		t.Fatalf("expected type normalized to text, got %q", out[1].Type)
	}
	if out[1].Lang != "en" {
		t.Fatalf("expected lang truncated to en, got %q", out[1].Lang)
	}
	if out[0].ID == "" || out[0].ID == out[1].ID {
		t.Fatalf("fragment ids must be unique and non-empty")
	}
}

func TestSemanticChunkStripsCodeFence(t *testing.T) {
	chat := &scriptedChat{response: "```json\n[{\"text\": \"only chunk\", \"type\": \"text\"}]\n```"}
	out, err := NewSemantic(chat).Chunk(context.Background(), "some text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Text != "only chunk" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestSemanticChunkMalformedResponse(t *testing.T) {
	chat := &scriptedChat{response: "I could not split this document."}
	_, err := NewSemantic(chat).Chunk(context.Background(), "some text")
	if err == nil {
		t.Fatalf("expected parse error")
	}
	var taxonomy *errs.Error
	if !errors.As(err, &taxonomy) {
		t.Fatalf("expected taxonomy error, got %T", err)
	}
	if taxonomy.Raw == "" {
		t.Fatalf("parse error must carry the raw response")
	}
	if errs.IsRetryable(err) {
		t.Fatalf("parse errors are never retryable")
	}
}

func TestSemanticChunkEmptyTextFailsWholeCall(t *testing.T) {
	chat := &scriptedChat{response: `[{"text": "ok", "type": "text"}, {"text": "  ", "type": "text"}]`}
	_, err := NewSemantic(chat).Chunk(context.Background(), "some text")
	if err == nil {
		t.Fatalf("expected the whole call to fail on an empty chunk")
	}
}

func TestSemanticChunkRejectsEmptyInput(t *testing.T) {
	_, err := NewSemantic(&scriptedChat{}).Chunk(context.Background(), "   ")
	if !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSemanticChunkPropagatesProviderError(t *testing.T) {
	providerErr := errs.RateLimited(0, "slow down")
	_, err := NewSemantic(&scriptedChat{err: providerErr}).Chunk(context.Background(), "some text")
	if !errors.Is(err, providerErr) {
		t.Fatalf("expected provider error to propagate, got %v", err)
	}
}
