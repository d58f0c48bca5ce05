package ingest

import (
	"strings"
	"unicode/utf8"
)

type plaintextNormaliser struct{}

func (n *plaintextNormaliser) Format() string { return "plaintext" }

func (n *plaintextNormaliser) Extensions() []string { return []string{".txt", ".text", ".log"} }

func (n *plaintextNormaliser) Normalise(path string, raw []byte) (Document, error) {
	content := string(raw)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}
	return Document{
		Title:   titleFromPath(path),
		Format:  n.Format(),
		Content: strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n")),
	}, nil
}
