package parser

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTitleTag     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlScriptTag    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlStyleTag     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlNoscriptTag  = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	htmlHeadTag      = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlSvgTag       = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments     = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlOpenBlocks   = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	htmlCloseBlocks  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	htmlBreaks       = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	htmlAllTags      = regexp.MustCompile(`<[^>]+>`)
	htmlMultiSpaces  = regexp.MustCompile(`[ \t]+`)
	htmlMultiNewline = regexp.MustCompile(`\n{3,}`)
)

// HTML strips markup down to readable text. Block elements become
// paragraph breaks so chunking still sees document structure.
type HTML struct{}

func NewHTML() *HTML { return &HTML{} }

func (p *HTML) Types() []string {
	return []string{"html", "xhtml", "confluence"}
}

func (p *HTML) Parse(raw, uri string) (*Document, error) {
	title := ""
	if m := htmlTitleTag.FindStringSubmatch(raw); len(m) > 1 {
		title = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	if title == "" {
		title = titleFromURI(uri)
	}

	text := htmlScriptTag.ReplaceAllString(raw, "")
	text = htmlStyleTag.ReplaceAllString(text, "")
	text = htmlNoscriptTag.ReplaceAllString(text, "")
	text = htmlHeadTag.ReplaceAllString(text, "")
	text = htmlSvgTag.ReplaceAllString(text, "")
	text = htmlComments.ReplaceAllString(text, "")
	text = htmlOpenBlocks.ReplaceAllString(text, "\n\n")
	text = htmlCloseBlocks.ReplaceAllString(text, "\n\n")
	text = htmlBreaks.ReplaceAllString(text, "\n")
	text = htmlAllTags.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = htmlMultiSpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = htmlMultiNewline.ReplaceAllString(text, "\n\n")

	return &Document{Title: title, Text: strings.TrimSpace(text)}, nil
}
