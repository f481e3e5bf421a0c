package tools

import (
	"context"

	"github.com/avoskov/lectern/internal/engine"
)

// Definition declares a tool to the model: its name, purpose, and parameter
// schema.
type Definition struct {
	Name        string
	Description string
	Parameters  engine.Schema
}

// Source is a citation pointing at the course material a tool result came
// from. Lesson is nil for course-level sources.
type Source struct {
	Course string `json:"course"`
	Lesson *int   `json:"lesson,omitempty"`
	Link   string `json:"link,omitempty"`
}

// Result is a tool execution outcome: the text handed back to the model and
// the citations backing it. Sources are a per-invocation return value so
// concurrent queries never share citation state.
type Result struct {
	Text    string
	Sources []Source
}

// Tool is a callable capability exposed to the model.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, args map[string]any) (Result, error)
}
