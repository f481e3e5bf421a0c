package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avoskov/lectern/internal/engine"
	"github.com/avoskov/lectern/internal/index"
)

// OutlineTool returns a course's full outline: title, link, and numbered
// lesson list. It answers structural questions the content search can't.
type OutlineTool struct {
	index *index.Index
}

// NewOutlineTool creates an OutlineTool over the given index.
func NewOutlineTool(ix *index.Index) *OutlineTool {
	return &OutlineTool{index: ix}
}

var _ Tool = (*OutlineTool)(nil)

func (t *OutlineTool) Definition() Definition {
	return Definition{
		Name:        "get_course_outline",
		Description: "Get the complete outline of a course: its title, link, and full lesson list",
		Parameters: engine.Schema{
			Type: "object",
			Properties: map[string]engine.SchemaProperty{
				"course_title": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
			},
			Required: []string{"course_title"},
		},
	}
}

func (t *OutlineTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	courseTitle, _ := args["course_title"].(string)

	resolved, err := t.index.ResolveCourseName(ctx, courseTitle)
	if err != nil {
		switch {
		case errors.Is(err, index.ErrEmptyCatalog), errors.Is(err, index.ErrCourseNotFound):
			return Result{Text: fmt.Sprintf("No course found matching '%s'", courseTitle)}, nil
		default:
			return Result{Text: fmt.Sprintf("Outline error: %v", err)}, nil
		}
	}

	entry, err := t.index.Course(ctx, resolved)
	if err != nil {
		if errors.Is(err, index.ErrCourseNotFound) {
			return Result{Text: fmt.Sprintf("No course found matching '%s'", courseTitle)}, nil
		}
		return Result{Text: fmt.Sprintf("Outline error: %v", err)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", entry.Title)
	if entry.CourseLink != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", entry.CourseLink)
	}
	fmt.Fprintf(&b, "Lessons (%d):", len(entry.Lessons))
	for _, l := range entry.Lessons {
		fmt.Fprintf(&b, "\n%d. %s", l.Number, l.Title)
	}

	return Result{
		Text:    b.String(),
		Sources: []Source{{Course: entry.Title, Link: entry.CourseLink}},
	}, nil
}
