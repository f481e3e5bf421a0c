package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/avoskov/lectern/internal/index"
)

func TestOutlineTool_FormatsOutline(t *testing.T) {
	ix := newSeededIndex(t, searchVectors())
	seedCourse(t, ix)
	tool := NewOutlineTool(ix)

	res, err := tool.Execute(context.Background(), map[string]any{"course_title": "embeddings"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := "Course: Intro to Embeddings\n" +
		"Course Link: https://example.com/embeddings\n" +
		"Lessons (2):\n" +
		"1. Vectors\n" +
		"2. Similarity"
	if res.Text != want {
		t.Errorf("outline = %q, want %q", res.Text, want)
	}

	if len(res.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(res.Sources))
	}
	src := res.Sources[0]
	if src.Course != "Intro to Embeddings" || src.Link != "https://example.com/embeddings" {
		t.Errorf("source = %+v, want the course and its link", src)
	}
	if src.Lesson != nil {
		t.Errorf("source lesson = %v, want nil for a course-level citation", src.Lesson)
	}
}

func TestOutlineTool_EmptyCatalog(t *testing.T) {
	ix := newSeededIndex(t, searchVectors())
	tool := NewOutlineTool(ix)

	res, err := tool.Execute(context.Background(), map[string]any{"course_title": "embeddings"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Text != "No course found matching 'embeddings'" {
		t.Errorf("result = %q, want a no-course message", res.Text)
	}
}

func TestOutlineTool_EngineFailureBecomesResultText(t *testing.T) {
	ix := newSeededIndex(t, map[string][]float32{"Intro to Embeddings": {1, 0, 0}})
	ctx := context.Background()
	// Seed one course so resolution gets past the empty-catalog check, then
	// fail on the unmapped query embedding.
	err := ix.UpsertCatalog(ctx, []index.CourseEntry{{Title: "Intro to Embeddings"}})
	if err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	tool := NewOutlineTool(ix)

	res, err := tool.Execute(ctx, map[string]any{"course_title": "unmapped"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(res.Text, "Outline error:") {
		t.Errorf("result = %q, want an outline-error message", res.Text)
	}
}
