package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/logger"
)

// Options configures LoadDir.
type Options struct {
	ChunkSize    int
	ChunkOverlap int

	// Normalisers overrides DefaultNormalisers.
	Normalisers []Normaliser
}

// LoadDir walks dir and returns one indexed document per chunk of every
// supported file. Hidden files and directories are skipped, as are files
// with no normaliser. A chunk's source is the file path relative to dir.
func LoadDir(ctx context.Context, dir string, opts Options) ([]domain.IndexedDocument, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus %s: %w", dir, domain.ErrInvalidInput)
	}

	normalisers := opts.Normalisers
	if len(normalisers) == 0 {
		normalisers = DefaultNormalisers()
	}
	byExt := byExtension(normalisers)
	chunker := NewChunker(WithChunkSize(opts.ChunkSize), WithOverlap(opts.ChunkOverlap))

	var docs []domain.IndexedDocument
	files := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		n, ok := byExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			logger.Debug("ingest: skipping %s (unsupported)", path)
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		doc, err := n.Normalise(rel, raw)
		if err != nil {
			return err
		}

		files++
		docs = append(docs, toIndexed(rel, doc, chunker.Split(doc.Content))...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("ingest: %d files, %d chunks from %s", files, len(docs), dir)
	return docs, nil
}

func toIndexed(rel string, doc Document, chunks []string) []domain.IndexedDocument {
	out := make([]domain.IndexedDocument, 0, len(chunks))
	for i, text := range chunks {
		meta := make(map[string]any, len(doc.Metadata)+4)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["title"] = doc.Title
		meta["format"] = doc.Format
		meta["chunk"] = i
		meta["chunks"] = len(chunks)

		out = append(out, domain.IndexedDocument{
			ID:       fmt.Sprintf("%s#%d", rel, i),
			Content:  text,
			Source:   rel,
			Metadata: meta,
		})
	}
	return out
}
