package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// LocalProvider is a deterministic offline fallback used when no API key
// is configured. Embeddings are hash-derived so equal texts map to equal
// vectors, which keeps local runs of the publish pipeline coherent.
type LocalProvider struct {
	dim int
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{dim: 8}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	last := messages[len(messages)-1].Content
	return "[local] " + strings.TrimSpace(last), nil
}

func (l *LocalProvider) ChatTools(ctx context.Context, messages []Message, tools []ToolSpec) (*ChatResult, error) {
	content, err := l.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Content: content}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vec := make([]float32, l.dim)
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum32()
		for j := range vec {
			seed = seed*1664525 + 1013904223
			vec[j] = float32(seed%1000)/1000 - 0.5
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (l *LocalProvider) Name() string {
	return "local"
}
