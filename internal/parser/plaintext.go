package parser

import "strings"

// Plaintext passes text through untouched apart from whitespace
// trimming and newline normalization.
type Plaintext struct{}

func NewPlaintext() *Plaintext { return &Plaintext{} }

func (p *Plaintext) Types() []string {
	return []string{"text", "txt", "plaintext"}
}

func (p *Plaintext) Parse(raw, uri string) (*Document, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	return &Document{
		Title: titleFromURI(uri),
		Text:  strings.TrimSpace(text),
	}, nil
}
