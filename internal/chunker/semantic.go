package chunker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/llm/providers"
	"github.com/docloom/docloom/internal/token"
)

// maxSemanticInputTokens bounds the text handed to the model in one call.
const maxSemanticInputTokens = 60000

var knownChunkTypes = map[string]struct{}{
	"text": {}, "heading": {}, "list": {}, "table": {}, "code": {}, "quote": {},
}

// ChatProvider is the slice of the LLM provider the semantic splitter
// needs.
type ChatProvider interface {
	Chat(ctx context.Context, messages []providers.Message) (string, error)
}

// Semantic delegates fragment boundaries to an LLM and validates the
// structured response. A validation failure fails the whole call; no
// fragment is ever silently dropped.
type Semantic struct {
	provider ChatProvider
}

func NewSemantic(provider ChatProvider) *Semantic {
	return &Semantic{provider: provider}
}

const semanticSystemPrompt = `You split documents into retrieval-sized semantic chunks.
Respond with a JSON array only, no prose and no code fences. Each element:
{"text": string, "type": "text"|"heading"|"list"|"table"|"code"|"quote",
 "heading_path": [string], "section": string, "lang": ISO 639-1 code}.
Chunks must appear in document order and jointly cover all meaningful content.`

type semanticChunk struct {
	Text        string   `json:"text"`
	Type        string   `json:"type"`
	HeadingPath []string `json:"heading_path"`
	Section     string   `json:"section"`
	Lang        string   `json:"lang"`
}

// Chunk produces ordered typed fragments for the text.
func (s *Semantic) Chunk(ctx context.Context, text string) ([]TypedFragment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.Validation("semantic chunker requires non-empty text")
	}
	if count := token.Count(text); count > maxSemanticInputTokens {
		return nil, errs.Validation("input of %d tokens exceeds the %d token limit", count, maxSemanticInputTokens)
	}
	messages := []providers.Message{
		{Role: "system", Content: semanticSystemPrompt},
		{Role: "user", Content: text},
	}
	raw, err := s.provider.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	fragments, err := parseSemanticResponse(raw)
	if err != nil {
		return nil, err
	}
	common.Logger().Debug("chunker: semantic split complete", "chunks", len(fragments))
	return fragments, nil
}

func parseSemanticResponse(raw string) ([]TypedFragment, error) {
	payload := strings.TrimSpace(raw)
	// Models occasionally wrap the array in a fence despite instructions.
	if strings.HasPrefix(payload, "```") {
		payload = strings.TrimPrefix(payload, "```json")
		payload = strings.TrimPrefix(payload, "```")
		payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")
		payload = strings.TrimSpace(payload)
	}
	var chunks []semanticChunk
	if err := json.Unmarshal([]byte(payload), &chunks); err != nil {
		return nil, errs.Parse(raw, "semantic chunker returned malformed JSON: %v", err)
	}
	if len(chunks) == 0 {
		return nil, errs.Parse(raw, "semantic chunker returned no chunks")
	}
	fragments := make([]TypedFragment, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			return nil, errs.Parse(raw, "semantic chunk %d has empty text", i)
		}
		fragments = append(fragments, TypedFragment{
			Fragment:    NewFragment(strings.TrimSpace(chunk.Text)),
			Type:        normalizeChunkType(chunk.Type),
			HeadingPath: chunk.HeadingPath,
			Section:     strings.TrimSpace(chunk.Section),
			Lang:        normalizeLang(chunk.Lang),
		})
	}
	return fragments, nil
}

func normalizeChunkType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := knownChunkTypes[t]; ok {
		return t
	}
	return "text"
}

func normalizeLang(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if len(lang) > 2 {
		lang = lang[:2]
	}
	return lang
}
