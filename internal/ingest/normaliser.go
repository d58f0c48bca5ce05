package ingest

import (
	"path/filepath"
	"strings"
)

// Document is a file reduced to plain text.
type Document struct {
	Title    string
	Format   string
	Content  string
	Metadata map[string]any
}

// Normaliser converts one file format to plain text.
type Normaliser interface {
	// Format names the format, e.g. "markdown".
	Format() string

	// Extensions lists the lower-case file extensions handled, with the dot.
	Extensions() []string

	// Normalise extracts the text and metadata of a file at path.
	Normalise(path string, raw []byte) (Document, error)
}

// DefaultNormalisers returns the built-in normalisers.
func DefaultNormalisers() []Normaliser {
	return []Normaliser{
		&markdownNormaliser{},
		&htmlNormaliser{},
		&plaintextNormaliser{},
	}
}

// byExtension indexes normalisers by extension. Later entries win.
func byExtension(normalisers []Normaliser) map[string]Normaliser {
	out := make(map[string]Normaliser)
	for _, n := range normalisers {
		for _, ext := range n.Extensions() {
			out[strings.ToLower(ext)] = n
		}
	}
	return out
}

// titleFromPath turns "network/building-a_inventory.md" into "building a inventory".
func titleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ReplaceAll(name, "-", " ")
}
