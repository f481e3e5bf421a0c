package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/avoskov/lectern/internal/engine"
	"github.com/avoskov/lectern/internal/index"
	"github.com/avoskov/lectern/internal/session"
	"github.com/avoskov/lectern/internal/storage"
	"github.com/avoskov/lectern/internal/tools"
)

type chatCall struct {
	messages []engine.Message
	tools    []engine.Tool
}

// scriptedEngine replays a fixed sequence of chat replies and records every
// call it receives.
type scriptedEngine struct {
	replies []engine.Message
	errs    []error
	calls   []chatCall
}

var _ engine.Engine = (*scriptedEngine)(nil)

func (s *scriptedEngine) Chat(ctx context.Context, model string, messages []engine.Message, toolset []engine.Tool) (engine.Message, error) {
	i := len(s.calls)
	s.calls = append(s.calls, chatCall{messages: messages, tools: toolset})
	if i < len(s.errs) && s.errs[i] != nil {
		return engine.Message{}, s.errs[i]
	}
	if i >= len(s.replies) {
		return engine.Message{}, errors.New("scripted engine: no reply left")
	}
	return s.replies[i], nil
}

func (s *scriptedEngine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedEngine) IsRunning(ctx context.Context) bool { return true }

func (s *scriptedEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (s *scriptedEngine) HasModel(ctx context.Context, name string) bool { return true }

func (s *scriptedEngine) PullModel(ctx context.Context, name string, onProgress func(engine.PullProgress)) error {
	return nil
}

// countingTool returns a fixed result and counts executions.
type countingTool struct {
	name     string
	result   tools.Result
	execs    int
	lastArgs map[string]any
}

func (c *countingTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        c.name,
		Description: "test tool",
		Parameters: engine.Schema{
			Type: "object",
			Properties: map[string]engine.SchemaProperty{
				"query": {Type: "string"},
			},
			Required: []string{"query"},
		},
	}
}

func (c *countingTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	c.execs++
	c.lastArgs = args
	return c.result, nil
}

func lessonPtr(n int) *int { return &n }

func newTestOrchestrator(e engine.Engine, tool tools.Tool) (*Orchestrator, *session.Store) {
	registry := tools.NewRegistry()
	if tool != nil {
		registry.Register(tool)
	}
	sessions := session.NewStore(2)
	return New(e, "test-model", registry, sessions), sessions
}

func TestAnswer_DirectWithoutTools(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{{Role: "assistant", Content: "Paris."}},
	}
	tool := &countingTool{name: "search_course_content"}
	orch, _ := newTestOrchestrator(eng, tool)

	ans, err := orch.Answer(context.Background(), "s1", "What is the capital of France?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if ans.Text != "Paris." {
		t.Errorf("Text = %q, want Paris.", ans.Text)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("got %d sources, want 0 for a direct answer", len(ans.Sources))
	}
	if tool.execs != 0 {
		t.Errorf("tool executed %d times, want 0", tool.execs)
	}
	if len(eng.calls) != 1 {
		t.Fatalf("engine called %d times, want 1", len(eng.calls))
	}
	if len(eng.calls[0].tools) != 1 {
		t.Errorf("first call carried %d tools, want 1", len(eng.calls[0].tools))
	}
}

func TestAnswer_OneToolRound(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{
			{
				Role: "assistant",
				ToolCalls: []engine.ToolCall{{
					Name:      "search_course_content",
					Arguments: map[string]any{"query": "embeddings"},
				}},
			},
			{Role: "assistant", Content: "Embeddings map text to vectors."},
		},
	}
	tool := &countingTool{
		name: "search_course_content",
		result: tools.Result{
			Text:    "[Intro - Lesson 1]\nembeddings are vectors",
			Sources: []tools.Source{{Course: "Intro", Lesson: lessonPtr(1)}},
		},
	}
	orch, _ := newTestOrchestrator(eng, tool)

	ans, err := orch.Answer(context.Background(), "s1", "What are embeddings?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if ans.Text != "Embeddings map text to vectors." {
		t.Errorf("Text = %q", ans.Text)
	}
	if tool.execs != 1 {
		t.Errorf("tool executed %d times, want 1", tool.execs)
	}
	if tool.lastArgs["query"] != "embeddings" {
		t.Errorf("tool args = %v", tool.lastArgs)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Course != "Intro" {
		t.Errorf("Sources = %+v, want the tool's citation", ans.Sources)
	}

	if len(eng.calls) != 2 {
		t.Fatalf("engine called %d times, want 2", len(eng.calls))
	}
	second := eng.calls[1]
	if second.tools != nil {
		t.Error("final call must withhold tools")
	}

	// The tool result must be fed back as a tool message.
	last := second.messages[len(second.messages)-1]
	if last.Role != "tool" || last.ToolName != "search_course_content" {
		t.Errorf("last message = %+v, want a tool message", last)
	}
	if !strings.Contains(last.Content, "embeddings are vectors") {
		t.Errorf("tool message content = %q", last.Content)
	}
}

func TestAnswer_ToolRoundCap(t *testing.T) {
	// The model keeps asking for tools on the final call; the cap means its
	// reply is taken as-is and no second tool round runs.
	eng := &scriptedEngine{
		replies: []engine.Message{
			{
				Role: "assistant",
				ToolCalls: []engine.ToolCall{{
					Name:      "search_course_content",
					Arguments: map[string]any{"query": "first"},
				}},
			},
			{
				Role: "assistant",
				ToolCalls: []engine.ToolCall{{
					Name:      "search_course_content",
					Arguments: map[string]any{"query": "again"},
				}},
			},
		},
	}
	tool := &countingTool{name: "search_course_content", result: tools.Result{Text: "found"}}
	orch, _ := newTestOrchestrator(eng, tool)

	ans, err := orch.Answer(context.Background(), "s1", "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if tool.execs != 1 {
		t.Errorf("tool executed %d times, want 1 (round cap)", tool.execs)
	}
	if len(eng.calls) != 2 {
		t.Errorf("engine called %d times, want 2", len(eng.calls))
	}
	if ans.Text != fallbackAnswer {
		t.Errorf("Text = %q, want the fallback for an empty final reply", ans.Text)
	}
}

func TestAnswer_GenerationErrorNotRetried(t *testing.T) {
	cause := errors.New("model exploded")
	eng := &scriptedEngine{errs: []error{cause}}
	orch, _ := newTestOrchestrator(eng, &countingTool{name: "search_course_content"})

	_, err := orch.Answer(context.Background(), "s1", "q")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err should wrap the cause, got %v", err)
	}
	if len(eng.calls) != 1 {
		t.Errorf("engine called %d times, want 1 (no retry)", len(eng.calls))
	}
}

func TestAnswer_GenerationErrorOnFinalCall(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{
			{
				Role: "assistant",
				ToolCalls: []engine.ToolCall{{
					Name:      "search_course_content",
					Arguments: map[string]any{"query": "q"},
				}},
			},
		},
		errs: []error{nil, errors.New("model exploded")},
	}
	orch, _ := newTestOrchestrator(eng, &countingTool{name: "search_course_content", result: tools.Result{Text: "found"}})

	_, err := orch.Answer(context.Background(), "s1", "q")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
}

func TestAnswer_UnknownToolPropagates(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{
			{
				Role: "assistant",
				ToolCalls: []engine.ToolCall{{
					Name:      "not_registered",
					Arguments: map[string]any{},
				}},
			},
		},
	}
	orch, _ := newTestOrchestrator(eng, &countingTool{name: "search_course_content"})

	_, err := orch.Answer(context.Background(), "s1", "q")
	if !errors.Is(err, tools.ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestAnswer_HistoryInjectedIntoSystemPrompt(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{{Role: "assistant", Content: "It covers tool use."}},
	}
	orch, sessions := newTestOrchestrator(eng, &countingTool{name: "search_course_content"})
	sessions.Append("s1", "What is MCP?", "A protocol.")

	_, err := orch.Answer(context.Background(), "s1", "What does lesson 2 cover?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	sys := eng.calls[0].messages[0]
	if sys.Role != "system" {
		t.Fatalf("first message role = %q, want system", sys.Role)
	}
	if !strings.Contains(sys.Content, "Previous conversation:") {
		t.Error("system prompt missing the history header")
	}
	if !strings.Contains(sys.Content, "User: What is MCP?\nAssistant: A protocol.") {
		t.Errorf("system prompt missing the prior exchange:\n%s", sys.Content)
	}
}

func TestAnswer_AppendsExchangeToSession(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{{Role: "assistant", Content: "Paris."}},
	}
	orch, sessions := newTestOrchestrator(eng, &countingTool{name: "search_course_content"})

	_, err := orch.Answer(context.Background(), "s1", "Capital of France?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	got := sessions.Context("s1")
	if !strings.Contains(got, "User: Capital of France?\nAssistant: Paris.") {
		t.Errorf("session context = %q, want the completed exchange", got)
	}
}

func TestAnswer_NoHistoryHeaderOnFreshSession(t *testing.T) {
	eng := &scriptedEngine{
		replies: []engine.Message{{Role: "assistant", Content: "ok"}},
	}
	orch, _ := newTestOrchestrator(eng, &countingTool{name: "search_course_content"})

	if _, err := orch.Answer(context.Background(), "fresh", "q"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	sys := eng.calls[0].messages[0].Content
	if strings.Contains(sys, "Previous conversation:") {
		t.Error("fresh session must not inject a history block")
	}
}

// retrievalEngine serves scripted chat replies and canned embeddings so a
// full answer can run over a real index and registry.
type retrievalEngine struct {
	scriptedEngine
	vectors map[string][]float32
}

func (r *retrievalEngine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	vec, ok := r.vectors[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return vec, nil
}

func TestAnswer_EndToEndWithIndex(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	eng := &retrievalEngine{
		scriptedEngine: scriptedEngine{
			replies: []engine.Message{
				{
					Role: "assistant",
					ToolCalls: []engine.ToolCall{{
						Name: "search_course_content",
						Arguments: map[string]any{
							"query":         "what is a stack",
							"course_name":   "Data Structures",
							"lesson_number": float64(2),
						},
					}},
				},
				{Role: "assistant", Content: "A stack is a LIFO structure."},
			},
		},
		vectors: map[string][]float32{
			"Data Structures":  {1, 0},
			"A stack is LIFO.": {1, 0},
			"what is a stack":  {1, 0},
		},
	}

	ix := index.New(store.DB(), index.NewEmbedder(eng, "stub-embed"), 5)
	ctx := context.Background()
	err = ix.UpsertCatalog(ctx, []index.CourseEntry{{
		Title:   "Data Structures",
		Lessons: []index.Lesson{{Number: 2, Title: "Stacks", Link: "https://example.com/ds/2"}},
	}})
	if err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	err = ix.UpsertChunks(ctx, []index.Chunk{
		{CourseTitle: "Data Structures", LessonNumber: lessonPtr(2), ChunkIndex: 0, Content: "A stack is LIFO."},
	})
	if err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewSearchTool(ix))
	sessions := session.NewStore(2)
	orch := New(eng, "test-model", registry, sessions)

	ans, err := orch.Answer(ctx, "s1", "what is a stack in lesson 2 of Data Structures")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !strings.Contains(ans.Text, "LIFO") {
		t.Errorf("answer = %q, want it grounded in the retrieved chunk", ans.Text)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(ans.Sources))
	}
	src := ans.Sources[0]
	if src.Course != "Data Structures" || src.Lesson == nil || *src.Lesson != 2 {
		t.Errorf("source = %+v, want Data Structures lesson 2", src)
	}
	if src.Link != "https://example.com/ds/2" {
		t.Errorf("source link = %q, want the lesson link", src.Link)
	}

	// The tool result fed to the final call carries the retrieved text.
	final := eng.calls[1]
	last := final.messages[len(final.messages)-1]
	if !strings.Contains(last.Content, "[Data Structures - Lesson 2]\nA stack is LIFO.") {
		t.Errorf("tool message = %q", last.Content)
	}
}
