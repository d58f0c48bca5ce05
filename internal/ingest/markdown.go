package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	mdCodeBlock     = regexp.MustCompile("(?s)```[^`]*```")
	mdInlineCode    = regexp.MustCompile("`([^`]+)`")
	mdImage         = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLink          = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeading       = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdFirstHeading  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	mdBlockquote    = regexp.MustCompile(`(?m)^>\s*`)
	mdRule          = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	mdListMarker    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdNumberedList  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	mdEmphasis      = regexp.MustCompile(`(\*\*|__|\*)`)
	mdMultiNewlines = regexp.MustCompile(`\n{3,}`)
)

type markdownNormaliser struct{}

func (n *markdownNormaliser) Format() string { return "markdown" }

func (n *markdownNormaliser) Extensions() []string { return []string{".md", ".markdown"} }

func (n *markdownNormaliser) Normalise(path string, raw []byte) (Document, error) {
	content := strings.ReplaceAll(string(raw), "\r\n", "\n")

	meta, body, err := splitFrontMatter(content)
	if err != nil {
		return Document{}, fmt.Errorf("front matter in %s: %w", path, err)
	}

	title := ""
	if t, ok := meta["title"].(string); ok {
		title = strings.TrimSpace(t)
	}
	if title == "" {
		if m := mdFirstHeading.FindStringSubmatch(body); m != nil {
			title = strings.TrimSpace(m[1])
		}
	}
	if title == "" {
		title = titleFromPath(path)
	}

	return Document{
		Title:    title,
		Format:   n.Format(),
		Content:  stripMarkdown(body),
		Metadata: meta,
	}, nil
}

// splitFrontMatter separates a leading "---" YAML block from the body.
// Only scalar values are kept.
func splitFrontMatter(content string) (map[string]any, string, error) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content, nil
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, content, nil
	}
	block := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---"):], "\n")

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(block), &parsed); err != nil {
		return nil, "", err
	}

	meta := make(map[string]any, len(parsed))
	for k, v := range parsed {
		switch v.(type) {
		case string, int, int64, float64, bool:
			meta[k] = v
		}
	}
	return meta, body, nil
}

func stripMarkdown(content string) string {
	content = mdCodeBlock.ReplaceAllString(content, "")
	content = mdInlineCode.ReplaceAllString(content, "$1")
	content = mdImage.ReplaceAllString(content, "")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdRule.ReplaceAllString(content, "")
	content = mdListMarker.ReplaceAllString(content, "")
	content = mdNumberedList.ReplaceAllString(content, "")
	content = mdEmphasis.ReplaceAllString(content, "")
	content = mdMultiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
