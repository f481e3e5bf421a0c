package docs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/avoskov/lectern/internal/index"
)

// Loader scans a folder of course documents and indexes the ones the
// catalog doesn't have yet.
type Loader struct {
	index     *index.Index
	processor *Processor
}

// NewLoader creates a Loader writing into the given index.
func NewLoader(ix *index.Index, processor *Processor) *Loader {
	return &Loader{index: ix, processor: processor}
}

// LoadFolder processes every .txt and .pdf file in dir, skipping courses
// whose title is already in the catalog. Returns the number of courses and
// chunks added. A missing directory is not an error; there is simply
// nothing to load.
func (l *Loader) LoadFolder(ctx context.Context, dir string) (coursesAdded, chunksAdded int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("docs folder not found, skipping load", "dir", dir)
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading docs folder: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".pdf":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)

		doc, err := l.processor.ProcessFile(path)
		if err != nil {
			slog.Warn("skipping unreadable course document", "file", name, "error", err)
			continue
		}

		exists, err := l.index.HasCourse(ctx, doc.Entry.Title)
		if err != nil {
			return coursesAdded, chunksAdded, err
		}
		if exists {
			slog.Debug("course already indexed", "course", doc.Entry.Title)
			continue
		}

		if err := l.index.UpsertCatalog(ctx, []index.CourseEntry{doc.Entry}); err != nil {
			return coursesAdded, chunksAdded, fmt.Errorf("indexing catalog entry for %q: %w", doc.Entry.Title, err)
		}
		if err := l.index.UpsertChunks(ctx, doc.Chunks); err != nil {
			return coursesAdded, chunksAdded, fmt.Errorf("indexing chunks for %q: %w", doc.Entry.Title, err)
		}

		coursesAdded++
		chunksAdded += len(doc.Chunks)
		slog.Info("course indexed", "course", doc.Entry.Title, "lessons", len(doc.Entry.Lessons), "chunks", len(doc.Chunks))
	}

	return coursesAdded, chunksAdded, nil
}
