package parser

import (
	"sort"
	"strings"

	"github.com/docloom/docloom/internal/errs"
)

// Document is the normalized output of a parser: extracted title plus
// plain text ready for chunking.
type Document struct {
	Title string
	Text  string
}

// Parser normalizes one source format.
type Parser interface {
	Types() []string
	Parse(raw, uri string) (*Document, error)
}

// Registry resolves parsers by source type.
type Registry struct {
	byType map[string]Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byType: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Default returns a registry with the built-in parsers.
func Default() *Registry {
	return NewRegistry(NewPlaintext(), NewMarkdown(), NewHTML())
}

func (r *Registry) Register(p Parser) {
	for _, t := range p.Types() {
		r.byType[strings.ToLower(t)] = p
	}
}

// Parse normalizes raw content for the given source type. Unknown
// types fail with a validation error naming the supported ones.
func (r *Registry) Parse(sourceType, raw, uri string) (*Document, error) {
	p, ok := r.byType[strings.ToLower(strings.TrimSpace(sourceType))]
	if !ok {
		return nil, errs.Validation("unsupported source type %q; supported types: %s",
			sourceType, strings.Join(r.SupportedTypes(), ", "))
	}
	return p.Parse(raw, uri)
}

// SupportedTypes lists every registered type in sorted order.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// titleFromURI derives a fallback title from the source URI.
func titleFromURI(uri string) string {
	name := uri
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
