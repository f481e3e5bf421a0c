package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestCreate_UniqueIDs(t *testing.T) {
	s := NewStore(2)
	a := s.Create()
	b := s.Create()
	if a == "" || b == "" {
		t.Fatal("Create returned an empty id")
	}
	if a == b {
		t.Errorf("Create returned duplicate id %q", a)
	}
}

func TestContext_EmptyAndUnknownSessions(t *testing.T) {
	s := NewStore(2)
	id := s.Create()

	if got := s.Context(id); got != "" {
		t.Errorf("Context(new session) = %q, want empty", got)
	}
	if got := s.Context("never-created"); got != "" {
		t.Errorf("Context(unknown session) = %q, want empty", got)
	}
}

func TestContext_Format(t *testing.T) {
	s := NewStore(2)
	id := s.Create()
	s.Append(id, "What is MCP?", "A protocol for tool use.")
	s.Append(id, "Who teaches it?", "The course instructor.")

	want := "User: What is MCP?\nAssistant: A protocol for tool use.\n" +
		"User: Who teaches it?\nAssistant: The course instructor."
	if got := s.Context(id); got != want {
		t.Errorf("Context = %q, want %q", got, want)
	}
}

func TestAppend_FIFOEviction(t *testing.T) {
	s := NewStore(2)
	id := s.Create()
	s.Append(id, "q1", "a1")
	s.Append(id, "q2", "a2")
	s.Append(id, "q3", "a3")

	got := s.Context(id)
	if strings.Contains(got, "q1") {
		t.Errorf("oldest exchange should be evicted, got %q", got)
	}
	if !strings.Contains(got, "q2") || !strings.Contains(got, "q3") {
		t.Errorf("newest exchanges missing from %q", got)
	}
	// q2 stays before q3.
	if strings.Index(got, "q2") > strings.Index(got, "q3") {
		t.Errorf("exchanges out of order: %q", got)
	}
}

func TestAppend_UnknownSessionCreatesIt(t *testing.T) {
	s := NewStore(2)
	s.Append("adopted", "q", "a")
	if got := s.Context("adopted"); !strings.Contains(got, "q") {
		t.Errorf("Context = %q, want the appended exchange", got)
	}
}

func TestAppend_DisabledHistory(t *testing.T) {
	s := NewStore(0)
	id := s.Create()
	s.Append(id, "q", "a")
	if got := s.Context(id); got != "" {
		t.Errorf("Context = %q, want empty when history is disabled", got)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(2)
	id := s.Create()
	s.Append(id, "q", "a")
	s.Clear(id)

	if got := s.Context(id); got != "" {
		t.Errorf("Context after Clear = %q, want empty", got)
	}

	// The id stays usable.
	s.Append(id, "q2", "a2")
	if got := s.Context(id); !strings.Contains(got, "q2") {
		t.Errorf("Context = %q, want the new exchange", got)
	}
}

func TestConcurrentSessions(t *testing.T) {
	s := NewStore(2)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = s.Create()
	}
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Append(id, fmt.Sprintf("q%d-%d", i, j), "a")
				s.Context(id)
			}
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		got := s.Context(id)
		if !strings.Contains(got, fmt.Sprintf("q%d-9", i)) {
			t.Errorf("session %d missing its own latest exchange: %q", i, got)
		}
	}
}
