package parser

import (
	"regexp"
	"strings"
)

var (
	mdImages        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLinks         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdFirstHeading  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	mdMultiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Markdown normalizes markdown lightly: images go, links keep their
// text, headings and lists stay so downstream chunking can use the
// document structure.
type Markdown struct{}

func NewMarkdown() *Markdown { return &Markdown{} }

func (p *Markdown) Types() []string {
	return []string{"markdown", "md"}
}

func (p *Markdown) Parse(raw, uri string) (*Document, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")

	title := ""
	if m := mdFirstHeading.FindStringSubmatch(text); len(m) > 1 {
		title = strings.TrimSpace(m[1])
	}
	if title == "" {
		title = titleFromURI(uri)
	}

	text = mdImages.ReplaceAllString(text, "")
	text = mdLinks.ReplaceAllString(text, "$1")
	text = mdMultiNewlines.ReplaceAllString(text, "\n\n")

	return &Document{Title: title, Text: strings.TrimSpace(text)}, nil
}
