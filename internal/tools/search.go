package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avoskov/lectern/internal/engine"
	"github.com/avoskov/lectern/internal/index"
)

// SearchTool answers content questions by semantic search over the course
// chunks, with optional fuzzy course filtering and exact lesson filtering.
type SearchTool struct {
	index *index.Index
}

// NewSearchTool creates a SearchTool over the given index.
func NewSearchTool(ix *index.Index) *SearchTool {
	return &SearchTool{index: ix}
}

var _ Tool = (*SearchTool)(nil)

func (t *SearchTool) Definition() Definition {
	return Definition{
		Name:        "search_course_content",
		Description: "Search course materials with smart course name matching and lesson filtering",
		Parameters: engine.Schema{
			Type: "object",
			Properties: map[string]engine.SchemaProperty{
				"query": {
					Type:        "string",
					Description: "What to search for in the course content",
				},
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": {
					Type:        "integer",
					Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Execute runs the search. Index failures come back as result text, not
// errors, so the model can relay them or retry with different filters.
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	query, _ := args["query"].(string)
	courseName, _ := args["course_name"].(string)

	opts := index.SearchOptions{CourseName: courseName}
	if n, ok := intArg(args, "lesson_number"); ok {
		opts.LessonNumber = &n
	}

	results, err := t.index.SearchChunks(ctx, query, opts)
	if err != nil {
		switch {
		case errors.Is(err, index.ErrEmptyCatalog), errors.Is(err, index.ErrCourseNotFound):
			return Result{Text: fmt.Sprintf("No course found matching '%s'", courseName)}, nil
		default:
			return Result{Text: fmt.Sprintf("Search error: %v", err)}, nil
		}
	}

	if len(results) == 0 {
		var filters string
		if courseName != "" {
			filters += fmt.Sprintf(" in course '%s'", courseName)
		}
		if opts.LessonNumber != nil {
			filters += fmt.Sprintf(" in lesson %d", *opts.LessonNumber)
		}
		return Result{Text: fmt.Sprintf("No relevant content found%s.", filters)}, nil
	}

	blocks := make([]string, 0, len(results))
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		header := fmt.Sprintf("[%s]", r.CourseTitle)
		if r.LessonNumber != nil {
			header = fmt.Sprintf("[%s - Lesson %d]", r.CourseTitle, *r.LessonNumber)
		}
		blocks = append(blocks, header+"\n"+r.Content)

		src := Source{Course: r.CourseTitle, Lesson: r.LessonNumber}
		if r.LessonNumber != nil {
			link, err := t.index.LessonLink(ctx, r.CourseTitle, *r.LessonNumber)
			if err == nil {
				src.Link = link
			}
		}
		sources = append(sources, src)
	}

	return Result{Text: strings.Join(blocks, "\n\n"), Sources: sources}, nil
}

// intArg reads an integer argument in any of the numeric shapes JSON
// decoding produces.
func intArg(args map[string]any, key string) (int, bool) {
	switch n := args[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
