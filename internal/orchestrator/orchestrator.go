package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avoskov/lectern/internal/engine"
	"github.com/avoskov/lectern/internal/session"
	"github.com/avoskov/lectern/internal/tools"
)

// systemPrompt frames the model's role and when to reach for each tool.
const systemPrompt = `You are an assistant specialized in course materials and educational content.

Available tools:
- search_course_content: search inside course materials for specific topics, explanations, or details. Supports an optional course name (partial matches work) and an optional lesson number.
- get_course_outline: fetch a course's full outline — title, link, and complete lesson list. Use this for questions about what a course covers or how it is structured.

Tool usage:
- Use at most one round of tool calls per question.
- For general knowledge questions unrelated to the courses, answer directly without tools.
- If a tool returns no results, say so plainly; do not invent course content.

Answer concisely. Do not mention the tools or your search process in the answer.`

// fallbackAnswer is returned when the model produces no usable text after
// the tool round.
const fallbackAnswer = "I was unable to complete that request."

// maxToolRounds caps tool execution per user message. After the cap the
// model's reply is taken as final, tools withheld.
const maxToolRounds = 1

// GenerationError marks a model-call failure. It propagates to the caller
// unretried; retry policy belongs to the surface that received the query.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Answer is a completed response: the final text and the citations gathered
// from this turn's tool executions (empty when no tool ran).
type Answer struct {
	Text    string
	Sources []tools.Source
}

// Orchestrator drives the multi-turn exchange for a single user query:
// model call, optional tool round, final model call, session bookkeeping.
type Orchestrator struct {
	engine   engine.Engine
	model    string
	registry *tools.Registry
	sessions *session.Store
}

// New creates an Orchestrator using the given chat model.
func New(e engine.Engine, model string, registry *tools.Registry, sessions *session.Store) *Orchestrator {
	return &Orchestrator{engine: e, model: model, registry: registry, sessions: sessions}
}

// Answer runs one user query to completion. Prior history for the session is
// injected into the system prompt; the completed exchange is appended to the
// session afterwards. Tool failures are fed back to the model as tool
// results and never abort the turn; model-call failures return a
// *GenerationError.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, query string) (Answer, error) {
	sys := systemPrompt
	if history := o.sessions.Context(sessionID); history != "" {
		sys += "\n\nPrevious conversation:\n" + history
	}

	messages := []engine.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: query},
	}

	defs := o.registry.Definitions()
	toolset := make([]engine.Tool, len(defs))
	for i, d := range defs {
		toolset[i] = engine.Tool{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}

	var sources []tools.Source

	reply, err := o.engine.Chat(ctx, o.model, messages, toolset)
	if err != nil {
		return Answer{}, &GenerationError{Err: err}
	}

	for round := 0; round < maxToolRounds && len(reply.ToolCalls) > 0; round++ {
		messages = append(messages, reply)

		for _, call := range reply.ToolCalls {
			result, err := o.registry.Execute(ctx, call.Name, call.Arguments)
			if err != nil {
				return Answer{}, fmt.Errorf("executing tool %q: %w", call.Name, err)
			}
			slog.Debug("tool executed", "tool", call.Name, "sources", len(result.Sources))
			sources = append(sources, result.Sources...)
			messages = append(messages, engine.Message{
				Role:     "tool",
				ToolName: call.Name,
				Content:  result.Text,
			})
		}

		// Final call: tools withheld so the model must answer in text.
		reply, err = o.engine.Chat(ctx, o.model, messages, nil)
		if err != nil {
			return Answer{}, &GenerationError{Err: err}
		}
	}

	text := reply.Content
	if text == "" {
		text = fallbackAnswer
	}

	o.sessions.Append(sessionID, query, text)

	return Answer{Text: text, Sources: sources}, nil
}
