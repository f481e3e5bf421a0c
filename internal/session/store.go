package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Exchange is one completed user/assistant turn.
type Exchange struct {
	UserText      string
	AssistantText string
}

// Store keeps conversation history in memory for the lifetime of the
// process. Each session holds at most maxHistory exchanges; older ones are
// evicted strictly first-in first-out. Safe for concurrent sessions.
type Store struct {
	mu         sync.Mutex
	sessions   map[string][]Exchange
	maxHistory int
}

// NewStore creates a Store that retains up to maxHistory exchanges per
// session. maxHistory <= 0 disables history entirely.
func NewStore(maxHistory int) *Store {
	return &Store{
		sessions:   make(map[string][]Exchange),
		maxHistory: maxHistory,
	}
}

// Create registers a new empty session and returns its id.
func (s *Store) Create() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()
	return id
}

// Append records a completed exchange, evicting the oldest one when the
// session is at capacity. Appending to an unknown id creates the session.
func (s *Store) Append(id, userText, assistantText string) {
	if s.maxHistory <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[id], Exchange{UserText: userText, AssistantText: assistantText})
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	s.sessions[id] = history
}

// Context returns the session history formatted for prompt injection, one
// "User:"/"Assistant:" pair per exchange. Unknown or empty sessions yield "".
func (s *Store) Context(id string) string {
	s.mu.Lock()
	history := s.sessions[id]
	s.mu.Unlock()

	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, len(history))
	for _, e := range history {
		lines = append(lines, fmt.Sprintf("User: %s\nAssistant: %s", e.UserText, e.AssistantText))
	}
	return strings.Join(lines, "\n")
}

// Clear removes a session's history, keeping the id valid.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()
}
