package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/avoskov/lectern/internal/index"
)

// Document is a parsed course file: its catalog entry plus the content
// chunks ready for indexing.
type Document struct {
	Entry  index.CourseEntry
	Chunks []index.Chunk
}

// Processor parses course documents and splits their content into
// overlapping sentence-based chunks.
type Processor struct {
	chunkSize int
	overlap   int
}

// NewProcessor creates a Processor. chunkSize and overlap are measured in
// characters; non-positive values fall back to 800/100.
func NewProcessor(chunkSize, overlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 100
	}
	return &Processor{chunkSize: chunkSize, overlap: overlap}
}

// ProcessFile reads a course document (.txt or .pdf) and parses it.
func (p *Processor) ProcessFile(path string) (Document, error) {
	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading %s: %w", path, err)
		}
		text = string(data)
	case ".pdf":
		extracted, err := extractPDFText(path)
		if err != nil {
			return Document{}, fmt.Errorf("extracting text from %s: %w", path, err)
		}
		text = extracted
	default:
		return Document{}, fmt.Errorf("unsupported file type: %s", path)
	}

	return p.Parse(filepath.Base(path), text)
}

var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// Parse reads the course header lines ("Course Title:", "Course Link:",
// "Course Instructor:") and the "Lesson N:" markers, chunking the content
// under each. name is used as the course title when no header is present.
func (p *Processor) Parse(name, text string) (Document, error) {
	lines := strings.Split(text, "\n")

	entry := index.CourseEntry{Title: strings.TrimSuffix(name, filepath.Ext(name))}

	// Header lines may appear in any order before the first content line.
	i := 0
	for inHeader := true; inHeader && i < len(lines); {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "Course Title:"):
			if t := strings.TrimSpace(strings.TrimPrefix(line, "Course Title:")); t != "" {
				entry.Title = t
			}
		case strings.HasPrefix(line, "Course Link:"):
			entry.CourseLink = strings.TrimSpace(strings.TrimPrefix(line, "Course Link:"))
		case strings.HasPrefix(line, "Course Instructor:"):
			entry.Instructor = strings.TrimSpace(strings.TrimPrefix(line, "Course Instructor:"))
		case line == "":
			// blank lines between header and content
		default:
			inHeader = false
			continue
		}
		i++
	}

	var chunks []index.Chunk
	chunkIndex := 0

	var currentLesson *index.Lesson
	var content []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(content, "\n"))
		content = content[:0]
		if text == "" {
			return
		}
		var lessonNumber *int
		prefix := fmt.Sprintf("Course %s content: ", entry.Title)
		if currentLesson != nil {
			n := currentLesson.Number
			lessonNumber = &n
			prefix = fmt.Sprintf("Course %s Lesson %d content: ", entry.Title, n)
		}
		for _, piece := range chunkText(text, p.chunkSize, p.overlap) {
			chunks = append(chunks, index.Chunk{
				CourseTitle:  entry.Title,
				LessonNumber: lessonNumber,
				ChunkIndex:   chunkIndex,
				Content:      prefix + piece,
			})
			chunkIndex++
		}
	}

	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if m := lessonMarker.FindStringSubmatch(line); m != nil {
			flush()
			num, err := strconv.Atoi(m[1])
			if err != nil {
				return Document{}, fmt.Errorf("parsing lesson number in %q: %w", line, err)
			}
			entry.Lessons = append(entry.Lessons, index.Lesson{Number: num, Title: strings.TrimSpace(m[2])})
			currentLesson = &entry.Lessons[len(entry.Lessons)-1]
			continue
		}

		if currentLesson != nil && strings.HasPrefix(line, "Lesson Link:") && currentLesson.Link == "" && len(content) == 0 {
			currentLesson.Link = strings.TrimSpace(strings.TrimPrefix(line, "Lesson Link:"))
			continue
		}

		content = append(content, lines[i])
	}
	flush()

	return Document{Entry: entry, Chunks: chunks}, nil
}

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var sentences []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		// loc[3] is the end of the punctuation group.
		sentences = append(sentences, strings.TrimSpace(text[last:loc[3]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// chunkText groups sentences into chunks of at most size characters, with
// roughly overlap characters of trailing sentences repeated at the start of
// the next chunk. A single sentence longer than size becomes its own chunk.
func chunkText(text string, size, overlap int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with trailing sentences up to the overlap budget.
		var carried []string
		carriedLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			l := len(current[i])
			if carriedLen+l > overlap {
				break
			}
			carried = append([]string{current[i]}, carried...)
			carriedLen += l + 1
		}
		current = carried
		currentLen = carriedLen
	}

	for _, s := range sentences {
		if currentLen > 0 && currentLen+len(s)+1 > size {
			emit()
			// If the carry-over alone already exceeds the budget, drop it.
			if currentLen+len(s)+1 > size {
				current = current[:0]
				currentLen = 0
			}
		}
		current = append(current, s)
		currentLen += len(s) + 1
	}
	if len(current) > 0 {
		// Avoid emitting a chunk that is nothing but carried-over overlap.
		tail := strings.Join(current, " ")
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], tail) {
			chunks = append(chunks, tail)
		}
	}

	return chunks
}
