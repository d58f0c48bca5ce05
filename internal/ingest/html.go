package ingest

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTitle      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlDropBlocks = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComments   = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlBlockOpen  = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	htmlBlockClose = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	htmlBreaks     = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	htmlAnyTag     = regexp.MustCompile(`<[^>]+>`)
	htmlSpaces     = regexp.MustCompile(`[ \t]+`)
)

type htmlNormaliser struct{}

func (n *htmlNormaliser) Format() string { return "html" }

func (n *htmlNormaliser) Extensions() []string { return []string{".html", ".htm"} }

func (n *htmlNormaliser) Normalise(path string, raw []byte) (Document, error) {
	content := string(raw)

	title := ""
	if m := htmlTitle.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	if title == "" {
		title = titleFromPath(path)
	}

	return Document{
		Title:   title,
		Format:  n.Format(),
		Content: stripHTML(content),
	}, nil
}

// stripHTML drops non-content elements and tags, keeping one line per block.
func stripHTML(content string) string {
	content = htmlDropBlocks.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = htmlBlockOpen.ReplaceAllString(content, "\n")
	content = htmlBlockClose.ReplaceAllString(content, "\n")
	content = htmlBreaks.ReplaceAllString(content, "\n")
	content = htmlAnyTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = htmlSpaces.ReplaceAllString(content, " ")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
