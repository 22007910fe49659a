package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/docloom/docloom/internal/errs"
)

func TestUnsupportedTypeEnumeratesSupported(t *testing.T) {
	_, err := Default().Parse("pdf", "raw", "doc.pdf")
	if err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if !errors.Is(err, &errs.Error{Kind: errs.KindValidation}) {
		t.Fatalf("expected validation error, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"markdown", "html", "text"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q must list supported type %q", msg, want)
		}
	}
}

func TestPlaintext(t *testing.T) {
	doc, err := Default().Parse("text", "  hello\r\nworld  ", "/docs/release_notes.txt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Text != "hello\nworld" {
		t.Fatalf("text = %q", doc.Text)
	}
	if doc.Title != "release notes" {
		t.Fatalf("title = %q", doc.Title)
	}
}

func TestMarkdownTitleAndLinks(t *testing.T) {
	raw := "# Getting Started\n\nSee [the guide](https://example.com/guide) for more.\n\n![diagram](img.png)\n"
	doc, err := Default().Parse("md", raw, "getting-started.md")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Title != "Getting Started" {
		t.Fatalf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "See the guide for more.") {
		t.Fatalf("links must keep their text: %q", doc.Text)
	}
	if strings.Contains(doc.Text, "img.png") {
		t.Fatalf("images must be dropped: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "# Getting Started") {
		t.Fatalf("headings must survive for chunking: %q", doc.Text)
	}
}

func TestHTMLStrip(t *testing.T) {
	raw := `<html><head><title>API &amp; Auth</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><h1>Overview</h1><p>First paragraph.</p><p>Second &gt; first.</p></body></html>`
	doc, err := Default().Parse("html", raw, "page.html")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Title != "API & Auth" {
		t.Fatalf("title = %q", doc.Title)
	}
	if strings.Contains(doc.Text, "alert") || strings.Contains(doc.Text, "color:red") {
		t.Fatalf("script/style must be dropped: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Second > first.") {
		t.Fatalf("entities must be decoded: %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Overview\n\nFirst paragraph.") {
		t.Fatalf("block elements must become paragraph breaks: %q", doc.Text)
	}
}

func TestTypeResolutionIsCaseInsensitive(t *testing.T) {
	if _, err := Default().Parse("Markdown", "# T\n\nbody", "t.md"); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
