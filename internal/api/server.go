package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avoskov/lectern/internal/orchestrator"
	"github.com/avoskov/lectern/internal/tools"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Answerer runs one user query to completion.
type Answerer interface {
	Answer(ctx context.Context, sessionID, query string) (orchestrator.Answer, error)
}

// SessionCreator mints new session ids for requests that don't carry one.
type SessionCreator interface {
	Create() string
}

// Catalog exposes the course analytics the API serves.
type Catalog interface {
	CourseCount(ctx context.Context) (int, error)
	CourseTitles(ctx context.Context) ([]string, error)
}

// Deps holds the collaborators for the HTTP API.
type Deps struct {
	Answerer Answerer
	Sessions SessionCreator
	Catalog  Catalog
}

// NewHandler returns the HTTP API: the query entry point, course analytics,
// and a health check.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/api/query", handleQuery(deps))
	r.Get("/api/courses", handleCourses(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// SourceRef is one citation in a query response.
type SourceRef struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// QueryResponse is the body returned by POST /api/query.
type QueryResponse struct {
	Answer    string      `json:"answer"`
	Sources   []SourceRef `json:"sources"`
	SessionID string      `json:"session_id"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = deps.Sessions.Create()
		}

		answer, err := deps.Answerer.Answer(r.Context(), sessionID, req.Query)
		if err != nil {
			// No internal retries; the caller owns retry policy.
			httpError(w, http.StatusBadGateway, "api_error", "answering query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{
			Answer:    answer.Text,
			Sources:   sourceRefs(answer.Sources),
			SessionID: sessionID,
		})
	}
}

// sourceRefs renders citations as display text plus optional link,
// "Course Title - Lesson N" for lesson-level sources.
func sourceRefs(sources []tools.Source) []SourceRef {
	refs := make([]SourceRef, len(sources))
	for i, s := range sources {
		text := s.Course
		if s.Lesson != nil {
			text = fmt.Sprintf("%s - Lesson %d", s.Course, *s.Lesson)
		}
		refs[i] = SourceRef{Text: text, Link: s.Link}
	}
	return refs
}

// CoursesResponse is the body returned by GET /api/courses.
type CoursesResponse struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

func handleCourses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Catalog.CourseCount(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting courses: %v", err)
			return
		}
		titles, err := deps.Catalog.CourseTitles(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing courses: %v", err)
			return
		}
		if titles == nil {
			titles = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CoursesResponse{
			TotalCourses: count,
			CourseTitles: titles,
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
