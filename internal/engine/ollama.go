package engine

import (
	"context"

	"github.com/avoskov/lectern/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

var _ Engine = (*OllamaEngine)(nil)

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, tools []Tool) (Message, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content, ToolName: m.ToolName}
		if len(m.ToolCalls) > 0 {
			calls := make([]ollama.ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				calls[j] = ollama.ToolCall{Function: ollama.ToolCallFunction{Name: tc.Name, Arguments: tc.Arguments}}
			}
			msgs[i].ToolCalls = calls
		}
	}

	var ts []ollama.Tool
	if len(tools) > 0 {
		ts = make([]ollama.Tool, len(tools))
		for i, t := range tools {
			ts[i] = ollama.Tool{
				Type: "function",
				Function: ollama.ToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toOllamaSchema(t.Parameters),
				},
			}
		}
	}

	reply, err := e.client.Chat(ctx, model, msgs, ts)
	if err != nil {
		return Message{}, err
	}

	out := Message{Role: reply.Role, Content: reply.Content}
	for _, tc := range reply.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func toOllamaSchema(s Schema) ollama.Schema {
	out := ollama.Schema{Type: s.Type, Required: s.Required}
	if s.Properties != nil {
		out.Properties = make(map[string]ollama.SchemaProperty, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = ollama.SchemaProperty{Type: v.Type, Description: v.Description}
		}
	}
	return out
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
