// Package chunker turns raw document text into ordered fragments, either
// with a deterministic boundary-aware splitter or with an LLM-backed
// semantic splitter.
package chunker

import "github.com/google/uuid"

// Fragment is one unit of curated text. IDs are immutable once created;
// Dirty is set whenever the text is altered after initial generation and
// never cleared automatically.
type Fragment struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Dirty bool   `json:"is_dirty"`
}

// TypedFragment is a fragment enriched with the metadata the semantic
// splitter extracts.
type TypedFragment struct {
	Fragment
	Type        string   `json:"type"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Section     string   `json:"section,omitempty"`
	Lang        string   `json:"lang,omitempty"`
}

// NewFragment creates a clean fragment with a fresh id.
func NewFragment(text string) Fragment {
	return Fragment{ID: uuid.NewString(), Text: text}
}
